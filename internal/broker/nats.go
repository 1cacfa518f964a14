package broker

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"hookrelay/internal/config"
	"hookrelay/internal/constants"
	"hookrelay/internal/logger"
	"hookrelay/pkg/errors"
	"hookrelay/pkg/logging"
	"hookrelay/pkg/metrics"
	"hookrelay/pkg/tracing"
)

const (
	defaultNATSDurable    = "webhook-relay"
	defaultNATSAckWait    = 30 * time.Second
	defaultNATSMaxDeliver = 5
	defaultNATSNakDelay   = 2 * time.Second
	natsSideStreamMaxAge  = 7 * 24 * time.Hour
	partitionKeyHeader    = "partition_key"
)

func connectJetStream(cfg config.NATSConfig, log logger.Logger) (*nats.Conn, jetstream.JetStream, error) {
	reconnectWait := cfg.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := cfg.MaxReconnects
	if maxReconnects == 0 {
		maxReconnects = -1
	}

	opts := []nats.Option{
		nats.Name(constants.ServiceName),
		nats.MaxReconnects(maxReconnects),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warnw("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infow("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Errorw("NATS error", "error", err)
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create JetStream context: %w", err)
	}

	return nc, js, nil
}

func ensureStream(ctx context.Context, js jetstream.JetStream, cfg config.NATSConfig) (jetstream.Stream, error) {
	subjects := []string{cfg.Subject}
	if cfg.Subject == "" {
		subjects = []string{constants.DefaultRelayTopic}
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        cfg.Stream,
		Description: "Relayed webhook events",
		Subjects:    subjects,
		Retention:   jetstream.WorkQueuePolicy,
		Storage:     jetstream.FileStorage,
		Duplicates:  2 * time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("ensure stream %s: %w", cfg.Stream, err)
	}
	return stream, nil
}

// ensureSubjectStream makes sure some stream captures subject. Subjects
// outside the relay stream (entitlement grants, for instance) get a limits
// stream of their own named after the subject.
func ensureSubjectStream(ctx context.Context, js jetstream.JetStream, subject string) (string, error) {
	name, err := js.StreamNameBySubject(ctx, subject)
	if err == nil {
		return name, nil
	}
	if !stderrors.Is(err, jetstream.ErrStreamNotFound) {
		return "", fmt.Errorf("lookup stream for %s: %w", subject, err)
	}

	name = streamNameForSubject(subject)
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        name,
		Description: "Events published to " + subject,
		Subjects:    []string{subject},
		Retention:   jetstream.LimitsPolicy,
		Storage:     jetstream.FileStorage,
		MaxAge:      natsSideStreamMaxAge,
		Duplicates:  2 * time.Hour,
	})
	if err != nil {
		return "", fmt.Errorf("ensure stream %s: %w", name, err)
	}
	return name, nil
}

// streamNameForSubject upper-cases subject and replaces anything JetStream
// rejects in a stream name with an underscore.
func streamNameForSubject(subject string) string {
	return strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_') {
			return unicode.ToUpper(r)
		}
		return '_'
	}, subject)
}

type NATSProducer struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger logger.Logger

	// subjects already known to be captured by a stream.
	streams sync.Map
}

func NewNATSProducer(cfg config.NATSConfig, log logger.Logger) (*NATSProducer, error) {
	nc, js, err := connectJetStream(cfg, log)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.NATSPublishTimeout)
	defer cancel()
	stream, err := ensureStream(ctx, js, cfg)
	if err != nil {
		nc.Close()
		return nil, err
	}

	p := &NATSProducer{nc: nc, js: js, logger: log}
	for _, subject := range stream.CachedInfo().Config.Subjects {
		p.streams.Store(subject, cfg.Stream)
	}
	return p, nil
}

func (p *NATSProducer) Name() string {
	return constants.BrokerTypeNATS
}

// Publish waits for the stream's PubAck. The event id doubles as
// Nats-Msg-Id so a redelivered webhook relayed twice is stored once.
// A subject no stream captures yet gets its own stream on first use.
func (p *NATSProducer) Publish(ctx context.Context, subject string, msg Message) error {
	start := time.Now()

	if _, known := p.streams.Load(subject); !known {
		name, err := ensureSubjectStream(ctx, p.js, subject)
		if err != nil {
			return err
		}
		p.streams.Store(subject, name)
		p.logger.InfowCtx(ctx, "Using JetStream stream for subject", "subject", subject, "stream", name)
	}

	// Header keys are assigned directly so propagation keys keep their case.
	header := nats.Header{}
	for k, v := range tracing.InjectHeaders(ctx, copyHeaders(msg.Headers)) {
		header[k] = []string{v}
	}
	if len(msg.Key) > 0 {
		header[partitionKeyHeader] = []string{string(msg.Key)}
	}

	var opts []jetstream.PublishOpt
	if msg.ID != "" {
		header[eventIDHeader] = []string{msg.ID}
		opts = append(opts, jetstream.WithMsgID(msg.ID))
	}

	ack, err := p.js.PublishMsg(ctx, &nats.Msg{
		Subject: subject,
		Data:    msg.Value,
		Header:  header,
	}, opts...)
	if err != nil {
		return fmt.Errorf("failed to publish to JetStream: %w", err)
	}

	if ack.Duplicate {
		p.logger.DebugwCtx(ctx, "JetStream reported duplicate publish",
			"stream", ack.Stream,
			"sequence", ack.Sequence,
		)
	}

	metrics.IncBrokerMessagesWritten(p.Name(), subject)
	metrics.ObserveBrokerWriteDuration(p.Name(), subject, time.Since(start))
	return nil
}

func (p *NATSProducer) Check(_ context.Context) error {
	if status := p.nc.Status(); status != nats.CONNECTED {
		return fmt.Errorf("nats connection status: %s", status)
	}
	return nil
}

func (p *NATSProducer) Close() error {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return err
	}
	return nil
}

type NATSConsumer struct {
	cfg         config.NATSConfig
	nc          *nats.Conn
	js          jetstream.JetStream
	logger      logger.Logger
	serviceName string

	mu   sync.Mutex
	ctxs []jetstream.ConsumeContext
}

func NewNATSConsumer(cfg config.NATSConfig, log logger.Logger) (*NATSConsumer, error) {
	nc, js, err := connectJetStream(cfg, log)
	if err != nil {
		return nil, err
	}
	return &NATSConsumer{
		cfg:         cfg,
		nc:          nc,
		js:          js,
		logger:      log,
		serviceName: constants.ServiceName,
	}, nil
}

func (c *NATSConsumer) SetServiceName(name string) {
	c.serviceName = name
}

// Consume attaches a durable pull consumer to subject and blocks until ctx
// is cancelled. Failed messages are NAKed with a delay until MaxDeliver is
// reached, then terminated.
func (c *NATSConsumer) Consume(ctx context.Context, subject string, handler HandlerFunc) error {
	stream, err := ensureStream(ctx, c.js, c.cfg)
	if err != nil {
		return err
	}

	durable := c.cfg.Durable
	if durable == "" {
		durable = defaultNATSDurable
	}
	ackWait := c.cfg.AckWait
	if ackWait <= 0 {
		ackWait = defaultNATSAckWait
	}
	maxDeliver := c.cfg.MaxDeliver
	if maxDeliver <= 0 {
		maxDeliver = defaultNATSMaxDeliver
	}
	nakDelay := c.cfg.NakDelay
	if nakDelay <= 0 {
		nakDelay = defaultNATSNakDelay
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          durable,
		Durable:       durable,
		Description:   "Webhook relay consumer",
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       ackWait,
		MaxDeliver:    maxDeliver,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", durable, err)
	}

	consumeCtx := logging.WithServiceName(ctx, c.serviceName)
	cc, err := cons.Consume(func(m jetstream.Msg) {
		c.handleMessage(consumeCtx, m, handler, subject, maxDeliver, nakDelay)
	})
	if err != nil {
		return fmt.Errorf("start consuming %s: %w", subject, err)
	}

	c.mu.Lock()
	c.ctxs = append(c.ctxs, cc)
	c.mu.Unlock()

	c.logger.InfowCtx(consumeCtx, "Started consuming",
		"subject", subject,
		"stream", c.cfg.Stream,
		"durable", durable,
	)

	<-ctx.Done()
	c.stopAndWait(cc)
	return ctx.Err()
}

// stopAndWait stops cc and waits for the in-flight handler to return.
func (c *NATSConsumer) stopAndWait(cc jetstream.ConsumeContext) {
	cc.Stop()
	select {
	case <-cc.Closed():
	case <-time.After(constants.ShutdownTimeout):
		c.logger.Warnw("Timed out waiting for NATS consumer to stop")
	}
}

func (c *NATSConsumer) handleMessage(ctx context.Context, m jetstream.Msg, handler HandlerFunc, subject string, maxDeliver int, nakDelay time.Duration) {
	metrics.IncBrokerMessagesRead(constants.BrokerTypeNATS, subject)

	msg := fromNATSMessage(m)
	msgCtx, span := tracing.StartConsumerSpan(ctx, "nats.consume", msg.Headers)
	defer span.End()

	if msg.ID != "" {
		msgCtx = logging.WithMessageID(msgCtx, msg.ID)
	}

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errors.RecoverPanic(r)
			}
		}()
		return handler(msgCtx, msg)
	}()

	if err == nil {
		if ackErr := m.Ack(); ackErr != nil {
			c.logger.ErrorwCtx(msgCtx, "Failed to ack message", "error", ackErr, "subject", subject)
		}
		return
	}

	delivered := uint64(1)
	if meta, metaErr := m.Metadata(); metaErr == nil {
		delivered = meta.NumDelivered
	}

	if delivered >= uint64(maxDeliver) {
		metrics.DLQMessagesTotal.WithLabelValues(c.serviceName, subject, "max_deliver_exceeded").Inc()
		c.logger.ErrorwCtx(msgCtx, "Terminating message after max deliveries",
			"error", err,
			"subject", subject,
			"delivered", delivered,
		)
		_ = m.Term()
		return
	}

	metrics.RetryAttemptsTotal.WithLabelValues(c.serviceName, subject).Inc()
	c.logger.WarnwCtx(msgCtx, "Message processing failed, requesting redelivery",
		"error", err,
		"subject", subject,
		"delivered", delivered,
	)
	_ = m.NakWithDelay(nakDelay)
}

func (c *NATSConsumer) Close() error {
	c.mu.Lock()
	ctxs := c.ctxs
	c.ctxs = nil
	c.mu.Unlock()

	for _, cc := range ctxs {
		c.stopAndWait(cc)
	}
	c.nc.Close()
	return nil
}

func fromNATSMessage(m jetstream.Msg) Message {
	headers := make(map[string]string, len(m.Headers()))
	for k, vs := range m.Headers() {
		if len(vs) > 0 {
			headers[k] = vs[0]
		}
	}
	return Message{
		ID:      headers[eventIDHeader],
		Key:     []byte(headers[partitionKeyHeader]),
		Value:   m.Data(),
		Headers: headers,
	}
}
