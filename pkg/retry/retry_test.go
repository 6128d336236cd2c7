package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func fastConfig(maxRetries int) *Config {
	return &Config{
		MaxRetries:   maxRetries,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxRetries != 3 {
		t.Errorf("expected MaxRetries=3, got %d", cfg.MaxRetries)
	}
	if cfg.InitialDelay != 200*time.Millisecond {
		t.Errorf("expected InitialDelay=200ms, got %v", cfg.InitialDelay)
	}
	if cfg.MaxDelay != 3*time.Second {
		t.Errorf("expected MaxDelay=3s, got %v", cfg.MaxDelay)
	}
}

func TestDo_Success(t *testing.T) {
	callCount := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		callCount++
		return nil
	})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}
}

func TestDo_TransientThenSuccess(t *testing.T) {
	callCount := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		callCount++
		if callCount < 3 {
			return errors.New("Unable to complete network request to host \"db\"")
		}
		return nil
	})

	if err != nil {
		t.Errorf("expected no error after retries, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls, got %d", callCount)
	}
}

func TestDo_PermanentErrorNotRetried(t *testing.T) {
	callCount := 0
	permanent := errors.New("Your user name and password are not defined")
	err := Do(context.Background(), fastConfig(3), func() error {
		callCount++
		return permanent
	})

	if !errors.Is(err, permanent) {
		t.Errorf("expected permanent error, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}
}

func TestDo_MaxRetriesExhausted(t *testing.T) {
	callCount := 0
	err := Do(context.Background(), fastConfig(2), func() error {
		callCount++
		return errors.New("connection refused")
	})

	if err == nil || err.Error() != "connection refused" {
		t.Errorf("expected last error, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls (1 + 2 retries), got %d", callCount)
	}
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &Config{
		MaxRetries:   5,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}

	callCount := 0
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, cfg, func() error {
		callCount++
		return errors.New("i/o timeout")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("expected 1 call before cancellation, got %d", callCount)
	}
}

func TestDoWithResult_ReturnsValue(t *testing.T) {
	callCount := 0
	got, err := DoWithResult(context.Background(), fastConfig(3), func() (string, error) {
		callCount++
		if callCount == 1 {
			return "", errors.New("connection reset by peer")
		}
		return "ok", nil
	})

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got != "ok" {
		t.Errorf("expected ok, got %q", got)
	}
}

func TestDoWithResult_NilConfig(t *testing.T) {
	got, err := DoWithResult(context.Background(), nil, func() (int, error) {
		return 42, nil
	})
	if err != nil || got != 42 {
		t.Errorf("got (%d, %v), want (42, nil)", got, err)
	}
}

type explicitErr struct{ retry bool }

func (e explicitErr) Error() string     { return "explicit" }
func (e explicitErr) IsRetryable() bool { return e.retry }

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"firebird network", errors.New("Unable to complete network request to host"), true},
		{"connection lost", errors.New("connection lost to database"), true},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"lock conflict", errors.New("lock conflict on no wait transaction"), true},
		{"bad credentials", errors.New("Your user name and password are not defined"), false},
		{"missing table", errors.New("Table unknown MATERIAL"), false},
		{"context canceled", context.Canceled, false},
		{"wrapped deadline", fmt.Errorf("ping: %w", context.DeadlineExceeded), false},
		{"explicit true", explicitErr{retry: true}, true},
		{"explicit false wrapped", fmt.Errorf("open: %w", explicitErr{retry: false}), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
