package client

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/LeoCommon/efiboot/internal/client/config"
	"github.com/LeoCommon/efiboot/internal/efiboot"
	"github.com/LeoCommon/efiboot/pkg/log"
	"github.com/LeoCommon/efiboot/pkg/system/bus"
	"github.com/LeoCommon/efiboot/pkg/system/cli"
	"github.com/LeoCommon/efiboot/pkg/systemd"
	"github.com/LeoCommon/efiboot/pkg/systemd/dbuscon"
	"go.uber.org/zap"
)

// App global app struct that contains all services
type App struct {
	// A global wait group, all go routines that should
	// terminate when the application ends should be registered here
	WG sync.WaitGroup

	Conf *config.Manager

	// Runs the read-only tool invocations
	Runner cli.Runner
	// Runs the mutations, prefixed with the elevation tool unless disabled
	Elevated cli.Runner

	Reconciler *efiboot.Reconciler

	BusClient *dbuscon.Client
	Service   *bus.Service
}

func (a *App) Shutdown() {
	// Close the bus connection
	if a.BusClient != nil {
		if err := a.BusClient.Shutdown(); err != nil {
			log.Warn("closing the bus connection failed", zap.Error(err))
		}
	}

	_ = log.Sync()
}

func (a *App) loadConfiguration(configPath string, acceptEmptyConfig bool) error {
	// Create the new config manager and load the configuration
	a.Conf = config.NewManager()
	if err := a.Conf.Load(configPath, acceptEmptyConfig); err != nil {
		log.Error("an error occurred while trying to load the config file", zap.String("path", configPath), zap.Error(err))
		return err
	}

	return nil
}

// wire builds the runners and the reconciler on top of runner
func (a *App) wire(runner cli.Runner) {
	a.Runner = runner

	elevation := a.Conf.Elevation().C()
	if elevation.Disabled {
		log.Debug("privilege elevation disabled, mutations run directly")
		a.Elevated = runner
	} else {
		a.Elevated = cli.NewElevated(runner, elevation.Tool, elevation.Flags...)
	}

	tools := a.Conf.Tools().C()
	a.Reconciler = efiboot.NewReconciler(a.Runner, a.Elevated, efiboot.Tools{
		Efibootmgr: tools.Efibootmgr,
		Bootctl:    tools.Bootctl,
	})
}

// NewApp builds an app on top of an already loaded config and runner
func NewApp(conf *config.Manager, runner cli.Runner) *App {
	app := &App{Conf: conf}
	app.wire(runner)
	return app
}

// Setup initializes logging, loads the config and builds the reconciler.
// A missing config file is fine, the defaults apply.
func Setup(flags config.CLIFlags) (*App, error) {
	app := App{}

	// Initialize logger
	log.Init(flags.Debug)

	// Load the configuration file
	if err := app.loadConfiguration(flags.ConfigPath, true); err != nil {
		app.Shutdown()
		return nil, err
	}

	// The config may turn on debug logging too
	if !flags.Debug && app.Conf.Client().C().Debug {
		log.Init(true)
	}

	app.wire(cli.NewExecRunner())

	return &app, nil
}

// How long to wait between attempts to get back on the bus
var reconnectDelay = 5 * time.Second

// Serve exports the reconciler on the configured bus and blocks until ctx is done
func (a *App) Serve(ctx context.Context) error {
	// A partial snapshot is still worth serving, the error is in the log
	if err := a.Reconciler.Refresh(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("initial refresh incomplete", zap.Error(err))
	}

	if err := a.publish(ctx); err != nil {
		return err
	}

	a.WG.Add(1)
	go func() {
		defer a.WG.Done()
		a.watchBus(ctx)
	}()

	return a.serve(ctx)
}

// publish connects to the configured bus unless already connected and
// exports the boot service on it
func (a *App) publish(ctx context.Context) error {
	svc := a.Conf.Service().C()

	if a.BusClient == nil {
		a.BusClient = dbuscon.NewDbusClient(dbuscon.Bus(svc.Bus))
	}
	if _, ok := a.BusClient.Connected(); !ok {
		if err := a.BusClient.Connect(); err != nil {
			return err
		}
	}

	conn, err := a.BusClient.GetConnection()
	if err != nil {
		return err
	}

	if a.Service == nil {
		a.Service = bus.NewService(ctx, a.Reconciler)
		if uids := allowedUsers(svc); uids != nil {
			a.Service.AllowUsers(uids...)
		}
	}

	return a.Service.Export(conn, svc.Name)
}

// allowedUsers lists who may change the boot state over the bus, nil lets
// everyone. The system bus always restricts to root plus the configured users.
func allowedUsers(svc config.ServiceConfig) []uint32 {
	if svc.Bus == config.BusSystem {
		return append([]uint32{0}, svc.AllowedUsers...)
	}
	if len(svc.AllowedUsers) > 0 {
		return append([]uint32{uint32(os.Getuid())}, svc.AllowedUsers...)
	}
	return nil
}

// watchBus puts the service back on the bus whenever the connection drops
func (a *App) watchBus(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.BusClient.Lost():
		}

		log.Warn("bus connection lost, reconnecting", zap.String("bus", string(a.BusClient.Bus())))
		notify(systemd.Reloading())

		for {
			err := a.BusClient.Reconnect()
			if err == nil {
				err = a.publish(ctx)
			}
			if err == nil {
				break
			}

			log.Warn("getting back on the bus failed", zap.Error(err), zap.Duration("retry", reconnectDelay))
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
		}

		log.Info("back on the bus")
		notify(systemd.Ready())
		notify(systemd.Status(a.Reconciler.State().Summary()))
	}
}

// serve runs the background loops, reports readiness and blocks until ctx
// is done. It returns once every loop has finished.
func (a *App) serve(ctx context.Context) error {
	if interval := a.Conf.Service().C().RefreshInterval.Value(); interval > 0 {
		a.WG.Add(1)
		go func() {
			defer a.WG.Done()
			a.Reconciler.Run(ctx, interval)
		}()
	}

	if interval, ok := systemd.WatchdogInterval(); ok {
		a.WG.Add(1)
		go func() {
			defer a.WG.Done()
			entertainWatchdog(ctx, interval)
		}()
	}

	notify(systemd.Ready())
	notify(systemd.Status(a.Reconciler.State().Summary()))
	log.Info("serving boot state", zap.String("summary", a.Reconciler.State().Summary()))

	<-ctx.Done()

	notify(systemd.Stopping())
	a.WG.Wait()

	return nil
}

func entertainWatchdog(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			notify(systemd.EntertainWatchdog())
		}
	}
}

// notify drops the error when not running under systemd
func notify(err error) {
	if err != nil && !errors.Is(err, systemd.ErrNoNotifySocket) {
		log.Warn("systemd notification failed", zap.Error(err))
	}
}
