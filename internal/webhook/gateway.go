package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"hookrelay/internal/broker"
	"hookrelay/internal/constants"
	"hookrelay/internal/logger"
	"hookrelay/internal/processor"
	"hookrelay/pkg/errors"
	"hookrelay/pkg/metrics"
	"hookrelay/pkg/models"
	"hookrelay/pkg/retry"
)

const (
	PathReceive = "/receive"
	PathPubSub  = "/pubsub"
)

// Ack documents the success body of both ingestion endpoints.
type Ack struct {
	Success bool `json:"success"`
	Queued  bool `json:"queued,omitempty"`
}

// Gateway is the HTTP face of the pipeline. The direct path authenticates
// with the processor signature; the relayed path with the shared relay
// secret inside the envelope.
type Gateway struct {
	pipeline     *Pipeline
	relay        *Relay
	processor    processor.Client
	relaySecret  string
	maxBodyBytes int64
	logger       logger.Logger
}

type GatewayOptions struct {
	RelaySecret  string
	MaxBodyBytes int64
}

func NewGateway(pipeline *Pipeline, relay *Relay, proc processor.Client, opts GatewayOptions, log logger.Logger) *Gateway {
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &Gateway{
		pipeline:     pipeline,
		relay:        relay,
		processor:    proc,
		relaySecret:  opts.RelaySecret,
		maxBodyBytes: maxBody,
		logger:       log,
	}
}

func (g *Gateway) RegisterRoutes(r gin.IRouter) {
	r.POST(PathReceive, g.Receive)
	r.POST(PathPubSub, g.PubSub)
}

// Receive godoc
// @Summary      Receive a webhook event
// @Description  Direct delivery from the payment processor. The raw body is verified against the Stripe-Signature header before anything else.
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Param        Stripe-Signature  header    string  true  "Processor signature"
// @Success      200  {object}  Ack
// @Success      202  {object}  Ack
// @Failure      400  {object}  errors.ErrorResponse
// @Failure      401  {object}  errors.ErrorResponse
// @Failure      429  {object}  errors.ErrorResponse
// @Failure      500  {object}  errors.ErrorResponse
// @Router       /receive [post]
func (g *Gateway) Receive(c *gin.Context) {
	body, err := g.readBody(c)
	if err != nil {
		g.respond(c, PathReceive, Outcome{Kind: Invalid, Reason: "unreadable body", Err: err})
		return
	}
	out := g.Deliver(c.Request.Context(), c.GetHeader(constants.SignatureHeader), body)
	g.respond(c, PathReceive, out)
}

// PubSub godoc
// @Summary      Receive a relayed webhook event
// @Description  Push delivery of a relay envelope. Envelopes with a wrong secret are dropped with 204 so the push subscription stops redelivering.
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Param        envelope  body      models.RelayEnvelope  true  "Relay envelope"
// @Success      200  {object}  Ack
// @Success      204
// @Failure      400  {object}  errors.ErrorResponse
// @Failure      429  {object}  errors.ErrorResponse
// @Failure      500  {object}  errors.ErrorResponse
// @Router       /pubsub [post]
func (g *Gateway) PubSub(c *gin.Context) {
	body, err := g.readBody(c)
	if err != nil {
		g.respond(c, PathPubSub, Outcome{Kind: Invalid, Reason: "unreadable body", Err: err})
		return
	}
	out := g.DeliverRelayed(c.Request.Context(), body, "http")
	g.respond(c, PathPubSub, out)
}

// Deliver handles one direct delivery. Nothing is decoded before the
// signature over the raw bytes has been verified.
func (g *Gateway) Deliver(ctx context.Context, signature string, body []byte) Outcome {
	if !g.processor.VerifySignature(signature, body) {
		metrics.WebhookSignatureFailuresTotal.Inc()
		g.logger.WarnwCtx(ctx, "Rejected delivery with invalid signature")
		return Outcome{Kind: Unauthenticated, Reason: "signature verification failed"}
	}

	evt, err := decodeEvent(body)
	if err != nil {
		g.logger.WarnwCtx(ctx, "Rejected malformed event", "error", err)
		return Outcome{Kind: Invalid, Reason: "malformed event", Err: err}
	}

	if g.relay.Enabled() {
		err := g.relay.Publish(ctx, evt)
		if err == nil {
			g.logger.InfowCtx(ctx, "Event relayed", "event_id", evt.ID, "event_type", evt.Type)
			return Outcome{Kind: Relayed, Reason: "queued"}
		}
		g.logger.WarnwCtx(ctx, "Relay publish failed, processing inline",
			"event_id", evt.ID,
			"error", err,
		)
	}

	return g.pipeline.Process(ctx, evt)
}

// DeliverRelayed handles one relay envelope, from a push endpoint or a
// broker consumer. The secret is checked before the event is decoded, so
// an envelope with a bad secret is dropped whatever its event holds.
func (g *Gateway) DeliverRelayed(ctx context.Context, body []byte, source string) Outcome {
	var raw struct {
		Secret string          `json:"secret"`
		Event  json.RawMessage `json:"event"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return Outcome{Kind: Invalid, Reason: "malformed envelope", Err: errors.ErrInvalidPayload.WithCause(err)}
	}

	if !g.secretMatches(raw.Secret) {
		metrics.IncRelayDropped(source)
		g.logger.WarnwCtx(ctx, "Dropping relayed event with bad secret", "source", source)
		return Outcome{Kind: Dropped, Reason: "relay secret mismatch"}
	}

	env := models.RelayEnvelope{Secret: raw.Secret}
	if len(raw.Event) > 0 {
		if err := json.Unmarshal(raw.Event, &env.Event); err != nil {
			return Outcome{Kind: Invalid, Reason: "malformed event", Err: errors.ErrInvalidPayload.WithCause(err)}
		}
	}
	if err := models.ValidateRelayEnvelope(&env); err != nil {
		return Outcome{Kind: Invalid, Reason: "malformed event", Err: errors.ErrInvalidPayload.WithCause(err)}
	}

	return g.pipeline.Process(ctx, &env.Event)
}

// ConsumeRelayed adapts DeliverRelayed to a broker handler. Failures are
// returned as retryable so the consumer retries and then dead-letters them.
func (g *Gateway) ConsumeRelayed(ctx context.Context, msg broker.Message) error {
	out := g.DeliverRelayed(ctx, msg.Value, "broker")
	metrics.IncWebhookEvent("broker", out.Kind.String())

	switch out.Kind {
	case Retryable, Fatal:
		return retry.NewRetryableError(out.Err)
	case Invalid:
		g.logger.WarnwCtx(ctx, "Discarding invalid relayed message", "message_id", msg.ID, "error", out.Err)
		return nil
	default:
		return nil
	}
}

func (g *Gateway) secretMatches(got string) bool {
	if g.relaySecret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(g.relaySecret)) == 1
}

func (g *Gateway) readBody(c *gin.Context) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, g.maxBodyBytes))
	if err != nil {
		return nil, errors.ErrInvalidPayload.WithCause(fmt.Errorf("read body: %w", err))
	}
	return body, nil
}

func (g *Gateway) respond(c *gin.Context, path string, out Outcome) {
	metrics.IncWebhookEvent(path, out.Kind.String())

	body := out.Body()
	if body == nil {
		c.Status(out.Status())
		return
	}
	c.JSON(out.Status(), body)
}

func decodeEvent(body []byte) (*models.Event, error) {
	var evt models.Event
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, errors.ErrInvalidPayload.WithCause(err)
	}
	if err := models.ValidateEvent(&evt); err != nil {
		return nil, errors.ErrInvalidPayload.WithCause(err)
	}
	return &evt, nil
}
