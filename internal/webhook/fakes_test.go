package webhook

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v82"

	"hookrelay/internal/broker"
	"hookrelay/internal/config"
	"hookrelay/internal/logger"
	"hookrelay/internal/processor"
	"hookrelay/internal/tracker"
	"hookrelay/pkg/errors"
	"hookrelay/pkg/models"
)

const testWebhookSecret = "whsec_test_secret"

type fakeProcessor struct {
	*processor.StripeClient
	customers map[string]*stripe.Customer
	err       error
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{
		StripeClient: processor.NewStripeClient(config.StripeConfig{WebhookSecret: testWebhookSecret}),
		customers:    make(map[string]*stripe.Customer),
	}
}

func (p *fakeProcessor) Customer(_ context.Context, id string) (*stripe.Customer, error) {
	if p.err != nil {
		return nil, p.err
	}
	cust, ok := p.customers[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return cust, nil
}

type published struct {
	topic string
	msg   broker.Message
}

type fakeProducer struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (p *fakeProducer) Publish(_ context.Context, topic string, msg broker.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, published{topic: topic, msg: msg})
	return nil
}

func (p *fakeProducer) Name() string                  { return "fake" }
func (p *fakeProducer) Check(_ context.Context) error { return nil }
func (p *fakeProducer) Close() error                  { return nil }

func (p *fakeProducer) Sent() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.sent...)
}

// racingStore reports every Advance as lost, as if another replica had
// committed an equal or newer timestamp first.
type racingStore struct {
	*tracker.MemoryStore
}

func (s racingStore) Advance(context.Context, tracker.Key, int64) (bool, error) {
	return false, nil
}

type brokenStore struct {
	err error
}

func (s brokenStore) Get(context.Context, tracker.Key) (*tracker.Record, error) {
	return nil, s.err
}

func (s brokenStore) Advance(context.Context, tracker.Key, int64) (bool, error) {
	return false, s.err
}

// recorder counts handler invocations.
type recorder struct {
	mu    sync.Mutex
	calls []*HandlerContext
	err   error
}

func (r *recorder) handle(_ context.Context, hc *HandlerContext) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, hc)
	return r.err
}

func (r *recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func newEvent(id, eventType, resourceID string, created int64) *models.Event {
	return models.NewEventBuilder().
		WithID(id).
		WithType(eventType).
		WithCreated(created).
		WithResource(resourceID, map[string]interface{}{"object": "subscription"}).
		Build()
}

type pipelineFixture struct {
	registry *Registry
	store    tracker.Store
	pipeline *Pipeline
	proc     *fakeProcessor
	producer *fakeProducer
}

func newPipelineFixture(t *testing.T, store tracker.Store, rules ...config.SkipRule) *pipelineFixture {
	t.Helper()

	if store == nil {
		store = tracker.NewMemoryStore()
	}
	log := logger.NopLogger()

	filter, err := NewFilter(rules, log)
	if err != nil {
		t.Fatalf("failed to build filter: %v", err)
	}

	f := &pipelineFixture{
		registry: NewRegistry(),
		store:    store,
		proc:     newFakeProcessor(),
		producer: &fakeProducer{},
	}
	f.pipeline = NewPipeline(f.registry, tracker.New(store, log), filter, Dependencies{
		Processor: f.proc,
		Producer:  f.producer,
	}, log)
	return f
}

func unix(ts string) int64 {
	parsed, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		panic(err)
	}
	return parsed.Unix()
}
