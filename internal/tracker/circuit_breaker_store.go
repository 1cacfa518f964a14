package tracker

import (
	"context"
	"fmt"

	"hookrelay/internal/config"
	"hookrelay/pkg/circuitbreaker"
	"hookrelay/pkg/errors"
)

// CircuitBreakerStore fails fast while the backing store is unhealthy. A
// refused call surfaces as a retryable error so the sender redelivers.
type CircuitBreakerStore struct {
	store Store
	cb    *circuitbreaker.Wrapper
}

func NewCircuitBreakerStore(store Store, name string, cfg config.CircuitBreakerConfig) *CircuitBreakerStore {
	if !cfg.Enabled {
		return &CircuitBreakerStore{store: store}
	}

	cbConfig := circuitbreaker.FromConfig(name, cfg)
	// A commit race is a correct answer from a healthy store.
	cbConfig.IsSuccessful = func(err error) bool {
		return err == nil || errors.IsCommitRace(err)
	}

	return &CircuitBreakerStore{
		store: store,
		cb:    circuitbreaker.NewWrapper(cbConfig),
	}
}

func (s *CircuitBreakerStore) Get(ctx context.Context, key Key) (*Record, error) {
	if s.cb == nil {
		return s.store.Get(ctx, key)
	}

	result, err := s.cb.ExecuteWithContext(ctx, func() (interface{}, error) {
		return s.store.Get(ctx, key)
	})

	s.cb.RecordRequest(err == nil)

	if err != nil {
		return nil, s.wrap(err)
	}

	rec, ok := result.(*Record)
	if !ok {
		return nil, fmt.Errorf("tracker store returned invalid result type")
	}
	return rec, nil
}

func (s *CircuitBreakerStore) Advance(ctx context.Context, key Key, created int64) (bool, error) {
	if s.cb == nil {
		return s.store.Advance(ctx, key, created)
	}

	result, err := s.cb.ExecuteWithContext(ctx, func() (interface{}, error) {
		return s.store.Advance(ctx, key, created)
	})

	s.cb.RecordRequest(err == nil || errors.IsCommitRace(err))

	if err != nil {
		return false, s.wrap(err)
	}

	advanced, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("tracker store returned invalid result type")
	}
	return advanced, nil
}

func (s *CircuitBreakerStore) wrap(err error) error {
	if errors.IsCommitRace(err) {
		return err
	}
	if s.cb.IsOpen() {
		return errors.ErrServiceUnavailable.WithCause(fmt.Errorf("circuit breaker is open for %s: %w", s.cb.Name(), err))
	}
	return err
}

func (s *CircuitBreakerStore) State() string {
	if s.cb == nil {
		return "disabled"
	}
	return s.cb.State().String()
}
