package webhook

import (
	"context"

	"github.com/stripe/stripe-go/v82"

	"hookrelay/internal/broker"
	"hookrelay/internal/entitlements"
	"hookrelay/internal/logger"
	"hookrelay/internal/processor"
	"hookrelay/internal/tracker"
	"hookrelay/pkg/models"
)

// Dependencies are the shared client handles passed to every handler
// invocation. Producer and Catalog may be nil when not configured.
type Dependencies struct {
	Store     tracker.Store
	Processor processor.Client
	Producer  broker.Producer
	Catalog   entitlements.Catalog
}

// HandlerContext is built per event. The event id, event type and resource
// id reach handler log lines through the context passed to the *Ctx logger
// methods.
type HandlerContext struct {
	Event *models.Event
	Dependencies
	Logger logger.Logger
}

func newHandlerContext(evt *models.Event, deps Dependencies, log logger.Logger) *HandlerContext {
	return &HandlerContext{
		Event:        evt,
		Dependencies: deps,
		Logger:       log,
	}
}

// Resource is the event's data object as delivered.
func (hc *HandlerContext) Resource() map[string]interface{} {
	return hc.Event.Data.Object
}

func (hc *HandlerContext) ResourceID() string {
	return hc.Event.ResourceID()
}

// PreviousAttributes is never nil.
func (hc *HandlerContext) PreviousAttributes() map[string]interface{} {
	if hc.Event.Data.PreviousAttributes == nil {
		return map[string]interface{}{}
	}
	return hc.Event.Data.PreviousAttributes
}

// UserID reads the user_id metadata the application stores on customers.
func (hc *HandlerContext) UserID(ctx context.Context, cust *stripe.Customer) (string, bool) {
	if cust == nil {
		return "", false
	}
	if cust.Metadata == nil {
		hc.Logger.ErrorwCtx(ctx, "Customer has no metadata, unable to fetch user", "customer_id", cust.ID)
		return "", false
	}
	userID, ok := cust.Metadata["user_id"]
	if !ok || userID == "" {
		hc.Logger.WarnwCtx(ctx, "Customer has no user_id metadata", "customer_id", cust.ID)
		return "", false
	}
	return userID, true
}
