package efiboot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/LeoCommon/efiboot/pkg/log"
	"github.com/LeoCommon/efiboot/pkg/system/cli"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// observeLogs routes the package logger into an observer for the duration of the test
func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	restore := log.Replace(zap.New(core))
	t.Cleanup(restore)
	return logs
}

func efibootmgrText(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

var sampleEfibootmgr = efibootmgrText(
	"BootCurrent: 0001",
	"Timeout: 1 seconds",
	"BootOrder: 0001,0000,0003",
	"Boot0000* Windows Boot Manager\tHD(1,GPT,c0ffee00-0000-0000-0000-000000000000,0x800,0x100000)/File(\\EFI\\Microsoft\\Boot\\bootmgfw.efi)",
	"Boot0001* ubuntu\tHD(1,GPT,c0ffee00-0000-0000-0000-000000000000,0x800,0x100000)/File(\\EFI\\ubuntu\\shimx64.efi)",
	"Boot0003* UEFI: USB Stick\tPciRoot(0x0)/Pci(0x14,0x0)/USB(1,0)",
)

type call struct {
	program string
	args    []string
}

func (c call) String() string {
	return strings.TrimSpace(c.program + " " + strings.Join(c.args, " "))
}

// fakeFirmware emulates efibootmgr and bootctl on top of a tiny firmware model.
// It implements cli.Runner, wrap it in cli.Elevated for the privileged path.
type fakeFirmware struct {
	mu sync.Mutex

	current    int
	order      []int
	entries    map[int]string
	bootNext   int
	fwActive   bool
	fwNoSupp   bool
	efiBroken  bool
	spawnFails map[string]bool

	running int
	overlap bool
	calls   []call
}

func newFakeFirmware() *fakeFirmware {
	return &fakeFirmware{
		current:    1,
		order:      []int{1, 0, 3},
		entries:    map[int]string{0: "Windows Boot Manager", 1: "ubuntu", 3: "UEFI: USB Stick"},
		bootNext:   Unknown,
		spawnFails: map[string]bool{},
	}
}

func (f *fakeFirmware) Run(ctx context.Context, program string, args ...string) (cli.Result, error) {
	f.mu.Lock()
	f.running++
	if f.running > 1 {
		f.overlap = true
	}
	f.calls = append(f.calls, call{program: program, args: args})
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.running--
		f.mu.Unlock()
	}()

	if err := ctx.Err(); err != nil {
		return cli.Result{}, err
	}

	// Strip the elevation prefix, the fake does not care who runs it
	if program == "pkexec" {
		program, args = args[1], args[2:]
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.spawnFails[program] {
		return cli.Result{}, &cli.SpawnError{Program: program, Err: fmt.Errorf("exec: %q: executable file not found in $PATH", program)}
	}

	switch program {
	case "efibootmgr":
		return f.efibootmgr(args), nil
	case "bootctl":
		return f.bootctl(args), nil
	}
	return cli.Result{}, &cli.SpawnError{Program: program, Err: fmt.Errorf("unknown program")}
}

func (f *fakeFirmware) efibootmgr(args []string) cli.Result {
	if f.efiBroken {
		return cli.Result{Stderr: "EFI variables are not supported on this system.\n", ExitCode: 2}
	}

	if len(args) == 2 && args[0] == "-n" {
		var n int
		fmt.Sscanf(args[1], "%d", &n)
		f.bootNext = n
	} else if len(args) == 1 && args[0] == "-N" {
		f.bootNext = Unknown
	}

	var b strings.Builder
	fmt.Fprintf(&b, "BootCurrent: %04d\n", f.current)
	if f.bootNext >= 0 {
		fmt.Fprintf(&b, "BootNext: %04d\n", f.bootNext)
	}
	b.WriteString("Timeout: 1 seconds\n")
	order := make([]string, 0, len(f.order))
	for _, n := range f.order {
		order = append(order, fmt.Sprintf("%04d", n))
	}
	fmt.Fprintf(&b, "BootOrder: %s\n", strings.Join(order, ","))
	for _, n := range f.order {
		if name, ok := f.entries[n]; ok {
			fmt.Fprintf(&b, "Boot%04d* %s\t\\EFI\\%04d\\BOOTX64.EFI\n", n, name, n)
		}
	}
	return cli.Result{Stdout: b.String(), Success: true}
}

func (f *fakeFirmware) bootctl(args []string) cli.Result {
	if len(args) == 2 && args[0] == "reboot-to-firmware" {
		if f.fwNoSupp {
			return cli.Result{Stderr: "Firmware does not support boot into firmware.\n", ExitCode: 1}
		}
		f.fwActive = args[1] == "true"
		return cli.Result{Success: true}
	}

	switch {
	case f.fwNoSupp:
		return cli.Result{Stdout: "not supported\n", ExitCode: 1}
	case f.fwActive:
		return cli.Result{Stdout: "active\n", Success: true}
	}
	return cli.Result{Stdout: "supported\n", Success: true}
}

func (f *fakeFirmware) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.String())
	}
	return out
}

func (f *fakeFirmware) resetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func newTestReconciler(f *fakeFirmware) *Reconciler {
	return NewReconciler(f, cli.NewElevated(f, "pkexec", "--disable-internal-agent"), Tools{})
}
