package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"childminder/internal/core"
)

func TestDefaultScheduleProcessorConfig(t *testing.T) {
	p := NewScheduleProcessor(nil, ScheduleProcessorConfig{})
	if p.config.Interval != 15*time.Minute {
		t.Errorf("expected default interval 15m, got %v", p.config.Interval)
	}
	if p.IsRunning() {
		t.Error("processor should not be running initially")
	}
}

func TestScheduleProcessor_Run(t *testing.T) {
	f := newFixture(t, wednesday)
	f.addChild(t, core.Child{Name: "Mia", Schedule: weekdaySchedule("08:00", "17:00")})

	p := NewScheduleProcessor(f.reconciler, ScheduleProcessorConfig{Interval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for len(f.records(t)) == 0 {
		select {
		case <-deadline:
			t.Fatal("processor did not reconcile")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if err := p.Run(ctx); !errors.Is(err, ErrProcessorRunning) {
		t.Errorf("second Run err = %v, want ErrProcessorRunning", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("processor did not stop")
	}

	if p.IsRunning() {
		t.Error("processor should not be running after stop")
	}
	if n := len(f.records(t)); n != 1 {
		t.Errorf("expected exactly one materialized record, got %d", n)
	}
}

func TestScheduleProcessor_OnMaterialized(t *testing.T) {
	f := newFixture(t, wednesday)
	f.addChild(t, core.Child{Name: "Mia", Schedule: weekdaySchedule("08:00", "17:00")})

	var calls []int
	p := NewScheduleProcessor(f.reconciler, ScheduleProcessorConfig{
		OnMaterialized: func(created int) { calls = append(calls, created) },
	})

	ctx := context.Background()
	if got := p.RunOnce(ctx); got != 1 {
		t.Fatalf("first RunOnce = %d, want 1", got)
	}
	if got := p.RunOnce(ctx); got != 0 {
		t.Fatalf("second RunOnce = %d, want 0", got)
	}
	if len(calls) != 1 || calls[0] != 1 {
		t.Errorf("OnMaterialized calls = %v, want [1]", calls)
	}
}
