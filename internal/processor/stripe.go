// Package processor wraps the payment processor API used by the webhook
// pipeline: signature verification and the lookups handlers need.
package processor

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"hookrelay/internal/config"
	"hookrelay/pkg/errors"
	"hookrelay/pkg/metrics"
)

type Client interface {
	// VerifySignature authenticates the raw request body against the
	// signature header. It never returns an error; any failure is false.
	VerifySignature(header string, payload []byte) bool
	Customer(ctx context.Context, id string) (*stripe.Customer, error)
}

type StripeClient struct {
	api       *client.API
	secret    string
	tolerance time.Duration
}

func NewStripeClient(cfg config.StripeConfig) *StripeClient {
	return &StripeClient{
		api:       client.New(cfg.APIKey, nil),
		secret:    cfg.WebhookSecret,
		tolerance: cfg.Tolerance(),
	}
}

func (c *StripeClient) VerifySignature(header string, payload []byte) bool {
	if header == "" || c.secret == "" {
		return false
	}
	return webhook.ValidatePayloadWithTolerance(payload, header, c.secret, c.tolerance) == nil
}

func (c *StripeClient) Customer(ctx context.Context, id string) (*stripe.Customer, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx

	cust, err := c.api.Customers.Get(id, params)
	if err != nil {
		metrics.IncProcessorRequest("customer.get", "error")
		return nil, classify(err)
	}

	metrics.IncProcessorRequest("customer.get", "ok")
	return cust, nil
}

// IsRateLimited reports whether err, at any depth, is the processor telling
// us to slow down.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.IsRateLimited(err) {
		return true
	}
	var stripeErr *stripe.Error
	if stderrors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode == http.StatusTooManyRequests ||
			stripeErr.Code == stripe.ErrorCodeRateLimit
	}
	return false
}

func classify(err error) error {
	if IsRateLimited(err) {
		return errors.ErrRateLimited.WithCause(err)
	}
	var stripeErr *stripe.Error
	if stderrors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
		return errors.ErrNotFound.WithCause(err)
	}
	return err
}
