package efiboot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/LeoCommon/efiboot/pkg/log"
	"github.com/LeoCommon/efiboot/pkg/system/cli"
	"go.uber.org/zap"
)

const bootctlFirmwareVerb = "reboot-to-firmware"

// Tools names the programs the reconciler drives
type Tools struct {
	Efibootmgr string
	Bootctl    string
}

func DefaultTools() Tools {
	return Tools{
		Efibootmgr: "efibootmgr",
		Bootctl:    "bootctl",
	}
}

// Reconciler owns the boot state snapshot. It rebuilds the snapshot from the
// tool output on Refresh and after every mutation.
type Reconciler struct {
	// Serializes refreshes and mutations, one tool run at a time
	mu sync.Mutex

	stateMu sync.RWMutex
	state   BootState

	runner   cli.Runner
	elevated cli.Runner
	tools    Tools
	machine  *refreshMachine
}

// NewReconciler creates a reconciler that reads with runner and mutates with elevated
func NewReconciler(runner cli.Runner, elevated cli.Runner, tools Tools) *Reconciler {
	defaults := DefaultTools()
	if tools.Efibootmgr == "" {
		tools.Efibootmgr = defaults.Efibootmgr
	}
	if tools.Bootctl == "" {
		tools.Bootctl = defaults.Bootctl
	}

	return &Reconciler{
		state:    newBootState(),
		runner:   runner,
		elevated: elevated,
		tools:    tools,
		machine:  newRefreshMachine(),
	}
}

// State returns a copy of the current snapshot
func (r *Reconciler) State() BootState {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.state.Clone()
}

// Phase returns PhaseIdle or PhaseRefreshing
func (r *Reconciler) Phase() string {
	return r.machine.Current()
}

// Refresh re-reads both tools and replaces the snapshot
func (r *Reconciler) Refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refresh(ctx)
}

// SetNextBoot sets or clears BootNext and returns after the following refresh
func (r *Reconciler) SetNextBoot(ctx context.Context, target Target) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setNextBoot(ctx, target)
}

// SetFirmwareReboot sets the reboot-to-firmware flag and returns after the following refresh
func (r *Reconciler) SetFirmwareReboot(ctx context.Context, enable bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setFirmwareReboot(ctx, enable)
}

// Reset removes every diversion, a pending BootNext first, then the firmware flag
func (r *Reconciler) Reset(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	if r.State().HasPendingNext {
		errs = append(errs, r.setNextBoot(ctx, ClearPendingBoot()))
	}

	// Re-read, the snapshot was replaced by the clear above
	if r.State().FirmwareRebootActive {
		errs = append(errs, r.setFirmwareReboot(ctx, false))
	}

	return errors.Join(errs...)
}

// Run refreshes every interval until ctx is done
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
				log.Warn("periodic refresh failed", zap.Error(err))
			}
		}
	}
}

func (r *Reconciler) setNextBoot(ctx context.Context, target Target) error {
	args, err := target.efibootmgrArgs()
	if err != nil {
		return err
	}

	log.Info("setting next boot", zap.Stringer("target", target))
	return r.mutate(ctx, r.tools.Efibootmgr, args...)
}

func (r *Reconciler) setFirmwareReboot(ctx context.Context, enable bool) error {
	log.Info("setting reboot to firmware", zap.Bool("enable", enable))
	return r.mutate(ctx, r.tools.Bootctl, bootctlFirmwareVerb, strconv.FormatBool(enable))
}

// mutate runs one privileged command, waits for it and refreshes.
// If the command could not be started the snapshot stays untouched.
func (r *Reconciler) mutate(ctx context.Context, program string, args ...string) error {
	res, err := r.elevated.Run(ctx, program, args...)
	if err != nil {
		log.Error("mutation could not be run", zap.String("program", program), zap.Error(err))
		return fmt.Errorf("%s: %w", program, err)
	}

	var mutErr error
	if !res.Success {
		mutErr = &ToolFailedError{Program: program, ExitCode: res.ExitCode, Stderr: res.Stderr}
		log.Error("mutation failed", zap.String("program", program), zap.Strings("args", args), zap.Error(mutErr))
	}

	return errors.Join(mutErr, r.refresh(ctx))
}

// refresh runs efibootmgr and bootctl one after another. The firmware fields
// are always replaced, the boot fields only if efibootmgr succeeded.
func (r *Reconciler) refresh(ctx context.Context) error {
	if err := r.machine.begin(ctx); err != nil {
		return err
	}
	defer r.machine.finish(ctx)

	boot, bootErr := r.readBootManager(ctx)
	supported, active, fwErr := r.readFirmwareReboot(ctx)

	// A cancelled read says nothing about the firmware, keep the last snapshot
	if err := ctx.Err(); err != nil {
		log.Debug("refresh cancelled, snapshot kept", zap.Error(err))
		return errors.Join(bootErr, fwErr, err)
	}

	r.stateMu.Lock()
	snapshot := r.state.Clone()
	if bootErr == nil {
		snapshot = boot
	}
	snapshot.FirmwareRebootSupported = supported
	snapshot.FirmwareRebootActive = active
	r.state = snapshot
	r.stateMu.Unlock()

	return errors.Join(bootErr, fwErr)
}

func (r *Reconciler) readBootManager(ctx context.Context) (BootState, error) {
	res, err := r.runner.Run(ctx, r.tools.Efibootmgr)
	if err != nil {
		return BootState{}, fmt.Errorf("%s: %w", r.tools.Efibootmgr, err)
	}

	log.Debug("efibootmgr output", zap.String("stdout", res.Stdout), zap.String("stderr", res.Stderr))

	if !res.Success {
		err := &ToolFailedError{Program: r.tools.Efibootmgr, ExitCode: res.ExitCode, Stderr: res.Stderr}
		log.Error("could not read boot configuration", zap.Error(err))
		return BootState{}, err
	}

	return ParseBootState(Output{Stdout: res.Stdout, Stderr: res.Stderr}), nil
}

// readFirmwareReboot ignores the exit state, bootctl explains itself in the text
func (r *Reconciler) readFirmwareReboot(ctx context.Context) (supported, active bool, err error) {
	res, err := r.runner.Run(ctx, r.tools.Bootctl, bootctlFirmwareVerb)
	if err != nil {
		log.Error("could not read reboot to firmware state", zap.Error(err))
		return false, false, fmt.Errorf("%s: %w: %w", r.tools.Bootctl, ErrFirmwareStateUnknown, err)
	}

	log.Debug("bootctl output", zap.String("stdout", res.Stdout), zap.String("stderr", res.Stderr))

	supported, active = ParseFirmwareReboot(Output{Stdout: res.Stdout, Stderr: res.Stderr})
	return supported, active, nil
}
