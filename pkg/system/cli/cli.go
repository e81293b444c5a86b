package cli

import (
	"bytes"
	"context"
	"errors"
	"os/exec"

	"github.com/LeoCommon/efiboot/pkg/log"
	"go.uber.org/zap"
)

// Result holds the captured output of a finished process
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Success  bool
}

// Runner runs a program to completion and captures both output streams.
// The only error a Runner produces itself is the failure to start the process,
// an unsuccessful exit is reported through Result.Success.
type Runner interface {
	Run(ctx context.Context, program string, args ...string) (Result, error)
}

// ExecRunner runs programs on the local machine
type ExecRunner struct{}

func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

func (r *ExecRunner) Run(ctx context.Context, program string, args ...string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, program, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		log.Error("could not start process", zap.String("program", program), zap.Strings("args", args), zap.Error(err))
		return Result{}, &SpawnError{Program: program, Err: err}
	}

	// No timeout here, a hanging tool blocks until ctx is cancelled
	waitErr := cmd.Wait()

	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: cmd.ProcessState.ExitCode(),
		Success:  waitErr == nil,
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		// Copying the output failed, the exit state is meaningless
		return res, waitErr
	}

	log.Debug("process finished",
		zap.String("program", program),
		zap.Strings("args", args),
		zap.Int("exit_code", res.ExitCode),
	)

	return res, nil
}

// Elevated prefixes every invocation with a privilege elevation tool,
// e.g. "pkexec --disable-internal-agent efibootmgr -n 5"
type Elevated struct {
	Runner Runner
	Tool   string
	Flags  []string
}

func NewElevated(runner Runner, tool string, flags ...string) *Elevated {
	return &Elevated{Runner: runner, Tool: tool, Flags: flags}
}

func (e *Elevated) Run(ctx context.Context, program string, args ...string) (Result, error) {
	full := make([]string, 0, len(e.Flags)+len(args)+1)
	full = append(full, e.Flags...)
	full = append(full, program)
	full = append(full, args...)

	return e.Runner.Run(ctx, e.Tool, full...)
}
