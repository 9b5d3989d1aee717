package gateway

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMultiSink_FansOutInOrder(t *testing.T) {
	var order []string
	sink := MultiSink{
		StatusSinkFunc(func(Transition) { order = append(order, "a") }),
		nil,
		StatusSinkFunc(func(Transition) { order = append(order, "b") }),
	}

	sink.PublishStatus(Transition{GatewayID: 1, Status: StatusUp})

	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Errorf("order = %v, want [a b]", order)
	}
}

func TestLogSink_LevelByStatus(t *testing.T) {
	tests := []struct {
		status Status
		level  string
	}{
		{StatusUp, "info"},
		{StatusDown, "warn"},
		{StatusError, "error"},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			logger := &recordingLogger{}
			LogSink{Logger: logger}.PublishStatus(Transition{GatewayID: 2, Status: tt.status, Message: "m"})

			entries := logger.find("gateway status")
			if len(entries) != 1 {
				t.Fatalf("entries = %d, want 1", len(entries))
			}
			if entries[0].level != tt.level {
				t.Errorf("level = %q, want %q", entries[0].level, tt.level)
			}
		})
	}
}

type fakeStatusWriter struct {
	calls []Status
	err   error
}

func (w *fakeStatusWriter) UpdateStatus(ctx context.Context, _ int64, status Status, _ string, _ time.Time) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("no deadline")
	}
	w.calls = append(w.calls, status)
	return w.err
}

func TestRepositorySink(t *testing.T) {
	w := &fakeStatusWriter{}
	RepositorySink{Writer: w}.PublishStatus(Transition{GatewayID: 1, Status: StatusDown})

	if len(w.calls) != 1 || w.calls[0] != StatusDown {
		t.Errorf("writer calls = %v, want [DOWN]", w.calls)
	}

	logger := &recordingLogger{}
	RepositorySink{Writer: &fakeStatusWriter{err: errors.New("locked")}, Logger: logger}.
		PublishStatus(Transition{GatewayID: 1, Status: StatusUp})
	if len(logger.find("persisting gateway status failed")) != 1 {
		t.Error("write failure not logged")
	}
}
