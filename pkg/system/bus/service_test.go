package bus

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/LeoCommon/efiboot/internal/efiboot"
	"github.com/LeoCommon/efiboot/pkg/log"
	"github.com/LeoCommon/efiboot/pkg/system/cli"
	"github.com/stretchr/testify/assert"
	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/require"
)

const caller = dbus.Sender(":1.42")

type fakeBackend struct {
	state efiboot.BootState
	err   error
	calls []string
}

func (f *fakeBackend) State() efiboot.BootState {
	return f.state
}

func (f *fakeBackend) Refresh(context.Context) error {
	f.calls = append(f.calls, "refresh")
	return f.err
}

func (f *fakeBackend) SetNextBoot(_ context.Context, target efiboot.Target) error {
	f.calls = append(f.calls, "next "+target.String())
	return f.err
}

func (f *fakeBackend) SetFirmwareReboot(_ context.Context, enable bool) error {
	if enable {
		f.calls = append(f.calls, "firmware on")
	} else {
		f.calls = append(f.calls, "firmware off")
	}
	return f.err
}

func (f *fakeBackend) Reset(context.Context) error {
	f.calls = append(f.calls, "reset")
	return f.err
}

func sampleState() efiboot.BootState {
	return efiboot.BootState{
		Entries: efiboot.Entries{
			0: {Number: 0, Name: "Windows Boot Manager", Path: "HD(1,GPT)/File(\\EFI\\Microsoft\\Boot\\bootmgfw.efi)"},
			1: {Number: 1, Name: "ubuntu", Path: "HD(1,GPT)/File(\\EFI\\ubuntu\\shimx64.efi)"},
		},
		Current:                 1,
		Next:                    0,
		HasPendingNext:          true,
		Order:                   []int{1, 0, 7},
		FirmwareRebootSupported: true,
	}
}

func TestServiceForwardsCalls(t *testing.T) {
	log.Init(true)

	f := &fakeBackend{state: sampleState()}
	s := NewService(context.Background(), f)

	assert.Nil(t, s.Refresh())
	assert.Nil(t, s.SetNextBoot(3, caller))
	assert.Nil(t, s.SetNextBoot(efiboot.ClearRequestNumber, caller))
	assert.Nil(t, s.ClearNextBoot(caller))
	assert.Nil(t, s.SetFirmwareReboot(true, caller))
	assert.Nil(t, s.SetFirmwareReboot(false, caller))
	assert.Nil(t, s.Reset(caller))

	assert.Equal(t, []string{
		"refresh",
		"next 3",
		"next clear",
		"next clear",
		"firmware on",
		"firmware off",
		"reset",
	}, f.calls)
}

func TestServiceRejectsInvalidTarget(t *testing.T) {
	log.Init(true)

	f := &fakeBackend{state: sampleState()}
	s := NewService(context.Background(), f)

	dbusErr := s.SetNextBoot(-1, caller)
	require.NotNil(t, dbusErr)
	assert.Equal(t, ErrorInvalidTarget, dbusErr.Name)
	assert.Empty(t, f.calls)
}

func TestServiceState(t *testing.T) {
	log.Init(true)

	s := NewService(context.Background(), &fakeBackend{state: sampleState()})

	current, next, pending, order, fwSupported, fwActive, dbusErr := s.State()
	assert.Nil(t, dbusErr)
	assert.Equal(t, int32(1), current)
	assert.Equal(t, int32(0), next)
	assert.True(t, pending)
	assert.Equal(t, []int32{1, 0, 7}, order)
	assert.True(t, fwSupported)
	assert.False(t, fwActive)

	summary, dbusErr := s.Summary()
	assert.Nil(t, dbusErr)
	assert.Equal(t, "1 -> 0", summary)
}

func TestServiceEntriesFollowBootOrder(t *testing.T) {
	log.Init(true)

	s := NewService(context.Background(), &fakeBackend{state: sampleState()})

	entries, dbusErr := s.Entries()
	assert.Nil(t, dbusErr)
	// 7 is in BootOrder without an entry and is skipped
	require.Len(t, entries, 2)
	assert.Equal(t, int32(1), entries[0].Number)
	assert.Equal(t, "ubuntu", entries[0].Name)
	assert.Equal(t, int32(0), entries[1].Number)
}

func TestServiceErrorNames(t *testing.T) {
	log.Init(true)

	tests := map[string]error{
		ErrorToolFailed:                     &efiboot.ToolFailedError{Program: "efibootmgr", ExitCode: 2},
		ErrorSpawnFailed:                    &cli.SpawnError{Program: "pkexec", Err: errors.New("not found")},
		ErrorBusy:                           efiboot.ErrRefreshInProgress,
		"org.freedesktop.DBus.Error.Failed": errors.New("boom"),
	}

	for name, err := range tests {
		t.Run(name, func(t *testing.T) {
			f := &fakeBackend{state: sampleState(), err: err}
			s := NewService(context.Background(), f)

			dbusErr := s.Reset(caller)
			require.NotNil(t, dbusErr)
			assert.Equal(t, name, dbusErr.Name)
			require.Len(t, dbusErr.Body, 1)
			assert.Equal(t, err.Error(), dbusErr.Body[0])
		})
	}
}

func TestServiceAllowedUsers(t *testing.T) {
	log.Init(true)

	f := &fakeBackend{state: sampleState()}
	s := NewService(context.Background(), f)
	s.AllowUsers(0, 1000)
	s.lookupUID = func(sender dbus.Sender) (uint32, error) {
		switch sender {
		case ":1.1":
			return 0, nil
		case ":1.2":
			return 1000, nil
		case ":1.3":
			return 1001, nil
		}
		return 0, errors.New("no such name")
	}

	assert.Nil(t, s.SetNextBoot(3, ":1.1"))
	assert.Nil(t, s.SetFirmwareReboot(true, ":1.2"))

	for _, sender := range []dbus.Sender{":1.3", ":1.9"} {
		for name, call := range map[string]func() *dbus.Error{
			"next":     func() *dbus.Error { return s.SetNextBoot(0, sender) },
			"clear":    func() *dbus.Error { return s.ClearNextBoot(sender) },
			"firmware": func() *dbus.Error { return s.SetFirmwareReboot(false, sender) },
			"reset":    func() *dbus.Error { return s.Reset(sender) },
		} {
			dbusErr := call()
			require.NotNil(t, dbusErr, "%s from %s", name, sender)
			assert.Equal(t, "org.freedesktop.DBus.Error.AccessDenied", dbusErr.Name)
		}
	}

	// Reads are not restricted
	assert.Nil(t, s.Refresh())
	_, dbusErr := s.Summary()
	assert.Nil(t, dbusErr)

	assert.Equal(t, []string{"next 3", "firmware on", "refresh"}, f.calls)
}

func TestServiceWithoutConnectionDeniesRestrictedCalls(t *testing.T) {
	log.Init(true)

	f := &fakeBackend{state: sampleState()}
	s := NewService(context.Background(), f)
	s.AllowUsers(0)

	dbusErr := s.Reset(caller)
	require.NotNil(t, dbusErr)
	assert.Equal(t, "org.freedesktop.DBus.Error.AccessDenied", dbusErr.Name)
	assert.Empty(t, f.calls)
}

func TestExportWithoutConnection(t *testing.T) {
	s := NewService(context.Background(), &fakeBackend{})
	assert.Error(t, s.Export(nil, "io.github.leocommon.EFIBoot"))
}

func TestIntrospectionListsMethods(t *testing.T) {
	s := NewService(context.Background(), &fakeBackend{})
	xml := s.IntrospectionData()

	for _, method := range []string{"Refresh", "SetNextBoot", "ClearNextBoot", "SetFirmwareReboot", "Reset", "State", "Entries", "Summary"} {
		assert.True(t, strings.Contains(xml, "<method name='"+method+"'>"), method)
	}
}
