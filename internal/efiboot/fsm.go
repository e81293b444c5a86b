package efiboot

import (
	"context"
	"errors"

	"github.com/LeoCommon/efiboot/pkg/log"
	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

const (
	PhaseIdle       = "idle"
	PhaseRefreshing = "refreshing"

	eventBegin  = "begin"
	eventFinish = "finish"
)

// refreshMachine tracks whether a refresh is running.
// Only one refresh may run at a time, a second begin fails.
type refreshMachine struct {
	*fsm.FSM
}

func newRefreshMachine() *refreshMachine {
	m := &refreshMachine{}

	events := fsm.Events{
		{Name: eventBegin, Src: []string{PhaseIdle}, Dst: PhaseRefreshing},
		{Name: eventFinish, Src: []string{PhaseRefreshing}, Dst: PhaseIdle},
	}

	callbacks := fsm.Callbacks{
		"enter_" + PhaseRefreshing: func(_ context.Context, e *fsm.Event) {
			log.Debug("refresh started", zap.String("from", e.Src))
		},
		"enter_" + PhaseIdle: func(_ context.Context, _ *fsm.Event) {
			log.Debug("refresh finished")
		},
	}

	m.FSM = fsm.NewFSM(PhaseIdle, events, callbacks)
	return m
}

// The transitions ignore cancellation, a cancelled refresh must still return to idle
func (m *refreshMachine) begin(ctx context.Context) error {
	err := m.Event(context.WithoutCancel(ctx), eventBegin)
	var invalid fsm.InvalidEventError
	if errors.As(err, &invalid) {
		return ErrRefreshInProgress
	}
	return err
}

func (m *refreshMachine) finish(ctx context.Context) {
	if err := m.Event(context.WithoutCancel(ctx), eventFinish); err != nil {
		log.Error("refresh state machine out of sync", zap.Error(err))
	}
}
