package dbuscon

import (
	"fmt"
	"sync"

	"github.com/LeoCommon/efiboot/pkg/log"
	"go.uber.org/zap"

	"github.com/godbus/dbus/v5"
)

// Bus selects which message bus the client talks to
type Bus string

const (
	SystemBus  Bus = "system"
	SessionBus Bus = "session"
)

type NotConnectedError struct{}

func (e *NotConnectedError) Error() string {
	return "client is not connected"
}

func (e *NotConnectedError) Is(target error) bool {
	_, ok := target.(*NotConnectedError)
	return ok
}

type Client struct {
	bus Bus

	mu      sync.Mutex
	conn    *dbus.Conn
	lastErr error
}

func (d *Client) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdown()
}

func (d *Client) shutdown() (err error) {
	if d.conn == nil {
		return
	}

	err = d.conn.Close()
	d.conn = nil
	return
}

// Reconnect re-establishes the bus connection if its down
func (d *Client) Reconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn != nil && d.conn.Connected() {
		return fmt.Errorf("connection is active and working, not reconnecting")
	}

	// Connection seems to be down, close it again
	_ = d.shutdown()

	// Re-connect
	return d.connect()
}

// Connected returns whether the bus connection is established or not
func (d *Client) Connected() (*dbus.Conn, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn, d.conn != nil && d.conn.Connected()
}

func (d *Client) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connect()
}

func (d *Client) connect() error {
	switch d.bus {
	case SessionBus:
		d.conn, d.lastErr = dbus.ConnectSessionBus()
	case SystemBus:
		d.conn, d.lastErr = dbus.ConnectSystemBus()
	default:
		d.lastErr = fmt.Errorf("unknown bus %q", d.bus)
	}

	if d.lastErr != nil {
		log.Error("Failed to connect to bus", zap.String("bus", string(d.bus)), zap.Error(d.lastErr))
	}

	return d.lastErr
}

// GetConnection returns the live connection or a NotConnectedError
func (d *Client) GetConnection() (*dbus.Conn, error) {
	conn, ok := d.Connected()
	if !ok {
		return nil, &NotConnectedError{}
	}
	return conn, nil
}

// Lost is closed once the current connection drops. Without a connection
// it is closed already.
func (d *Client) Lost() <-chan struct{} {
	conn, ok := d.Connected()
	if !ok {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return conn.Context().Done()
}

func (d *Client) Bus() Bus {
	return d.bus
}

func NewDbusClient(bus Bus) *Client {
	return &Client{bus: bus}
}
