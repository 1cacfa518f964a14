package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"hookrelay/internal/config"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      2,
	}
}

func TestRetry_Classification(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		attempts int
	}{
		{"plain error is retried", errors.New("flaky"), 4},
		{"retryable is retried", NewRetryableError(errors.New("flaky")), 4},
		{"fatal stops", NewFatalError(errors.New("poison")), 1},
		{"retryable wrapper beats fatal cause", NewRetryableError(NewFatalError(errors.New("poison"))), 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Retry(context.Background(), fastPolicy(4), func() error {
				calls++
				return tt.err
			})
			assert.Error(t, err)
			assert.Equal(t, tt.attempts, calls)
		})
	}
}

func TestRetryWithCallback(t *testing.T) {
	var seen []int
	calls := 0
	err := RetryWithCallback(context.Background(), fastPolicy(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	}, func(attempt int, err error, _ time.Duration) {
		seen = append(seen, attempt)
	})

	assert.NoError(t, err)
	assert.Equal(t, []int{1, 2}, seen)
}

func TestRetry_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, fastPolicy(10), func() error {
		calls++
		cancel()
		return errors.New("flaky")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestPolicyFromConfig(t *testing.T) {
	p := PolicyFromConfig(config.RetryConfig{MaxAttempts: 7, InitialInterval: time.Second})
	assert.Equal(t, 7, p.MaxAttempts)
	assert.Equal(t, time.Second, p.InitialInterval)
	assert.Equal(t, DefaultPolicy().MaxInterval, p.MaxInterval)
	assert.Equal(t, DefaultPolicy().Multiplier, p.Multiplier)
}

func TestCalculateBackoffDuration(t *testing.T) {
	assert.Equal(t, 2*time.Second, CalculateBackoffDuration(1, time.Second, 2, time.Minute))
	assert.Equal(t, 4*time.Second, CalculateBackoffDuration(2, time.Second, 2, time.Minute))
	assert.Equal(t, 5*time.Second, CalculateBackoffDuration(10, time.Second, 2, 5*time.Second))
}
