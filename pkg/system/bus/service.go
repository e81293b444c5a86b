package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/LeoCommon/efiboot/internal/efiboot"
	"github.com/LeoCommon/efiboot/pkg/log"
	"github.com/LeoCommon/efiboot/pkg/system/cli"
	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"go.uber.org/zap"
)

const (
	Interface  = "io.github.leocommon.EFIBoot1"
	ObjectPath = dbus.ObjectPath("/io/github/leocommon/EFIBoot")

	SignalStateChanged = Interface + ".StateChanged"

	ErrorInvalidTarget  = Interface + ".Error.InvalidTarget"
	ErrorToolFailed     = Interface + ".Error.ToolFailed"
	ErrorSpawnFailed    = Interface + ".Error.SpawnFailed"
	ErrorBusy           = Interface + ".Error.Busy"
	ErrorUnsupportedOpt = Interface + ".Error.Unsupported"
)

const introspectionXML = `
<interface name='` + Interface + `'>
	<method name='Refresh'>
	</method>
	<method name='SetNextBoot'>
		<arg type='i' name='target' direction='in'/>
	</method>
	<method name='ClearNextBoot'>
	</method>
	<method name='SetFirmwareReboot'>
		<arg type='b' name='enable' direction='in'/>
	</method>
	<method name='Reset'>
	</method>
	<method name='State'>
		<arg type='i' name='current' direction='out'/>
		<arg type='i' name='next' direction='out'/>
		<arg type='b' name='pending' direction='out'/>
		<arg type='ai' name='order' direction='out'/>
		<arg type='b' name='firmware_supported' direction='out'/>
		<arg type='b' name='firmware_active' direction='out'/>
	</method>
	<method name='Entries'>
		<arg type='a(iss)' name='entries' direction='out'/>
	</method>
	<method name='Summary'>
		<arg type='s' name='summary' direction='out'/>
	</method>
	<signal name='StateChanged'>
		<arg type='s' name='summary'/>
	</signal>
</interface>`

// Backend is the boot state owner the service forwards every call to
type Backend interface {
	State() efiboot.BootState
	Refresh(ctx context.Context) error
	SetNextBoot(ctx context.Context, target efiboot.Target) error
	SetFirmwareReboot(ctx context.Context, enable bool) error
	Reset(ctx context.Context) error
}

// Entry is the wire form of a boot entry, (iss) on the bus
type Entry struct {
	Number int32
	Name   string
	Path   string
}

// UIDLookup resolves the unix user behind a bus sender
type UIDLookup func(sender dbus.Sender) (uint32, error)

// Service implements the io.github.leocommon.EFIBoot1 interface. Every
// method returns after the backend finished its follow-up refresh.
type Service struct {
	ctx     context.Context
	backend Backend

	mu   sync.RWMutex
	conn *dbus.Conn

	// nil lets every caller mutate
	allowed   map[uint32]bool
	lookupUID UIDLookup
}

func NewService(ctx context.Context, backend Backend) *Service {
	s := &Service{ctx: ctx, backend: backend}
	s.lookupUID = s.connectionUID
	return s
}

// AllowUsers restricts the mutating methods to the given unix users.
// Reading the state stays open to everyone the bus policy lets through.
func (s *Service) AllowUsers(uids ...uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.allowed = make(map[uint32]bool, len(uids))
	for _, uid := range uids {
		s.allowed[uid] = true
	}
}

// IntrospectionData gives the XML formatted introspection description
func (s *Service) IntrospectionData() string {
	return introspectionXML
}

// Export publishes the object on conn and then claims name. Handlers are in
// place before the name becomes visible, so no call can race the export.
func (s *Service) Export(conn *dbus.Conn, name string) error {
	if conn == nil {
		return errors.New("no bus connection")
	}

	xml := "<node>" + s.IntrospectionData() + introspect.IntrospectDataString + "</node>"
	if err := conn.Export(s, ObjectPath, Interface); err != nil {
		return fmt.Errorf("export %s: %w", Interface, err)
	}
	if err := conn.Export(introspect.Introspectable(xml), ObjectPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("export introspection: %w", err)
	}

	reply, err := conn.RequestName(name, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("request name %s: %w", name, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("cannot obtain bus name '%s'", name)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	log.Info("exported boot service", zap.String("name", name), zap.String("path", string(ObjectPath)))
	return nil
}

func (s *Service) Refresh() *dbus.Error {
	return s.result(s.backend.Refresh(s.ctx))
}

// SetNextBoot takes a raw entry number, the clear request number clears
func (s *Service) SetNextBoot(target int32, sender dbus.Sender) *dbus.Error {
	if dbusErr := s.authorize(sender); dbusErr != nil {
		return dbusErr
	}

	t, err := efiboot.TargetFromNumber(int(target))
	if err != nil {
		return s.result(err)
	}
	return s.result(s.backend.SetNextBoot(s.ctx, t))
}

func (s *Service) ClearNextBoot(sender dbus.Sender) *dbus.Error {
	if dbusErr := s.authorize(sender); dbusErr != nil {
		return dbusErr
	}
	return s.result(s.backend.SetNextBoot(s.ctx, efiboot.ClearPendingBoot()))
}

func (s *Service) SetFirmwareReboot(enable bool, sender dbus.Sender) *dbus.Error {
	if dbusErr := s.authorize(sender); dbusErr != nil {
		return dbusErr
	}
	return s.result(s.backend.SetFirmwareReboot(s.ctx, enable))
}

func (s *Service) Reset(sender dbus.Sender) *dbus.Error {
	if dbusErr := s.authorize(sender); dbusErr != nil {
		return dbusErr
	}
	return s.result(s.backend.Reset(s.ctx))
}

func (s *Service) State() (current, next int32, pending bool, order []int32, fwSupported, fwActive bool, dbusErr *dbus.Error) {
	state := s.backend.State()

	order = make([]int32, 0, len(state.Order))
	for _, n := range state.Order {
		order = append(order, int32(n))
	}

	return int32(state.Current), int32(state.Next), state.HasPendingNext, order,
		state.FirmwareRebootSupported, state.FirmwareRebootActive, nil
}

// Entries lists the boot entries in BootOrder
func (s *Service) Entries() ([]Entry, *dbus.Error) {
	ordered := s.backend.State().OrderedEntries()

	entries := make([]Entry, 0, len(ordered))
	for _, e := range ordered {
		entries = append(entries, Entry{Number: int32(e.Number), Name: e.Name, Path: e.Path})
	}
	return entries, nil
}

func (s *Service) Summary() (string, *dbus.Error) {
	return s.backend.State().Summary(), nil
}

// result announces the new state and converts err for the bus. The state
// changes on partial failures too, so the signal is sent either way.
func (s *Service) result(err error) *dbus.Error {
	if !errors.Is(err, efiboot.ErrInvalidTarget) {
		s.emitStateChanged()
	}

	if err == nil {
		return nil
	}

	log.Warn("boot service call failed", zap.Error(err))
	return makeError(err)
}

func (s *Service) authorize(sender dbus.Sender) *dbus.Error {
	s.mu.RLock()
	allowed := s.allowed
	s.mu.RUnlock()

	if allowed == nil {
		return nil
	}

	uid, err := s.lookupUID(sender)
	if err != nil {
		log.Warn("cannot identify caller", zap.String("sender", string(sender)), zap.Error(err))
		return makeAccessDeniedError(fmt.Errorf("cannot identify caller: %w", err))
	}

	if !allowed[uid] {
		log.Warn("caller not allowed to change the boot state", zap.String("sender", string(sender)), zap.Uint32("uid", uid))
		return makeAccessDeniedError(fmt.Errorf("user %d may not change the boot state", uid))
	}

	return nil
}

func (s *Service) connectionUID(sender dbus.Sender) (uint32, error) {
	conn := s.connection()
	if conn == nil {
		return 0, errors.New("no bus connection")
	}

	var uid uint32
	call := conn.BusObject().Call("org.freedesktop.DBus.GetConnectionUnixUser", 0, sender)
	if call.Err != nil {
		return 0, call.Err
	}
	if err := call.Store(&uid); err != nil {
		return 0, err
	}
	return uid, nil
}

func (s *Service) connection() *dbus.Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

func (s *Service) emitStateChanged() {
	conn := s.connection()
	if conn == nil {
		return
	}

	if err := conn.Emit(ObjectPath, SignalStateChanged, s.backend.State().Summary()); err != nil {
		log.Warn("could not emit state change", zap.Error(err))
	}
}

func makeAccessDeniedError(err error) *dbus.Error {
	return &dbus.Error{
		Name: "org.freedesktop.DBus.Error.AccessDenied",
		Body: []interface{}{err.Error()},
	}
}

func makeError(err error) *dbus.Error {
	name := "org.freedesktop.DBus.Error.Failed"
	switch {
	case errors.Is(err, efiboot.ErrInvalidTarget):
		name = ErrorInvalidTarget
	case errors.Is(err, efiboot.ErrRefreshInProgress):
		name = ErrorBusy
	case errors.Is(err, efiboot.ErrFirmwareUnsupported):
		name = ErrorUnsupportedOpt
	case errors.Is(err, &cli.SpawnError{}):
		name = ErrorSpawnFailed
	case errors.Is(err, &efiboot.ToolFailedError{}):
		name = ErrorToolFailed
	}

	return &dbus.Error{
		Name: name,
		Body: []interface{}{err.Error()},
	}
}
