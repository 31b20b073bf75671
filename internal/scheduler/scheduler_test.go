package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestRegisterRejectsBadSpec(t *testing.T) {
	s := New(time.UTC, 0, nil)
	noop := func(context.Context) error { return nil }

	tests := []struct {
		spec    string
		wantErr bool
	}{
		{"0 0 5 * * *", false},
		{"@daily", false},
		{"*/1 * * * * *", false},
		{"0 5 * * *", true},
		{"nonsense", true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			err := s.Register(context.Background(), "refresh", tt.spec, noop)
			if (err != nil) != tt.wantErr {
				t.Errorf("Register(%q) error = %v, wantErr %v", tt.spec, err, tt.wantErr)
			}
		})
	}
}

func TestRunExecutesJobs(t *testing.T) {
	s := New(time.UTC, time.Second, nil)

	var calls atomic.Int32
	done := make(chan struct{}, 1)
	err := s.Register(context.Background(), "tick", "* * * * * *", func(ctx context.Context) error {
		if calls.Add(1) == 1 {
			done <- struct{}{}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- s.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run within 3s")
	}
	cancel()

	select {
	case err := <-stopped:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestRunNowAppliesTimeout(t *testing.T) {
	s := New(time.UTC, 10*time.Millisecond, nil)

	var sawDeadline bool
	s.RunNow(context.Background(), "slow", func(ctx context.Context) error {
		_, sawDeadline = ctx.Deadline()
		return errors.New("failure is logged, not returned")
	})
	if !sawDeadline {
		t.Error("job context should carry the configured timeout")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := false
	s.RunNow(ctx, "cancelled", func(context.Context) error { ran = true; return nil })
	if ran {
		t.Error("job should not start once the scheduler context is done")
	}
}
