// Package handlers holds the business reactions to processor events.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"hookrelay/internal/broker"
	"hookrelay/internal/constants"
	"hookrelay/internal/entitlements"
	"hookrelay/internal/webhook"
)

const EventInvoicePaid = "invoice.paid"

type Options struct {
	GrantTopic string
}

// Register binds every supported event type on reg.
func Register(reg *webhook.Registry, opts Options) {
	if opts.GrantTopic == "" {
		opts.GrantTopic = constants.DefaultGrantTopic
	}
	inv := &invoiceHandler{grantTopic: opts.GrantTopic}
	reg.Register(EventInvoicePaid, inv.paid)
}

type invoiceHandler struct {
	grantTopic string
}

// paid grants entitlements for one-off purchases. Subscription invoices are
// left to the subscription lifecycle.
func (h *invoiceHandler) paid(ctx context.Context, hc *webhook.HandlerContext) error {
	invoice := hc.Resource()

	if subscriptionID := invoiceSubscription(invoice); subscriptionID != "" {
		hc.Logger.DebugwCtx(ctx, "Ignoring subscription invoice", "subscription_id", subscriptionID)
		return nil
	}

	customerID := idOf(invoice["customer"])
	if customerID == "" {
		hc.Logger.WarnwCtx(ctx, "Invoice has no customer")
		return nil
	}

	cust, err := hc.Processor.Customer(ctx, customerID)
	if err != nil {
		return fmt.Errorf("fetch customer %s: %w", customerID, err)
	}

	userID, ok := hc.UserID(ctx, cust)
	if !ok {
		return nil
	}

	priceIDs := invoicePriceIDs(invoice)
	if len(priceIDs) == 0 {
		hc.Logger.WarnwCtx(ctx, "No price ids on invoice", "user_id", userID)
		return nil
	}

	if hc.Catalog == nil {
		hc.Logger.WarnwCtx(ctx, "No entitlement catalog configured", "user_id", userID)
		return nil
	}

	ents, err := hc.Catalog.ForPrices(ctx, priceIDs)
	if err != nil {
		return err
	}
	if len(ents) == 0 {
		hc.Logger.InfowCtx(ctx, "No entitlements for purchased prices", "user_id", userID, "price_ids", priceIDs)
		return nil
	}

	grant := entitlements.Grant{
		UserID:       userID,
		CustomerID:   customerID,
		InvoiceID:    hc.ResourceID(),
		EventID:      hc.Event.ID,
		Entitlements: ents,
		GrantedAt:    time.Unix(hc.Event.Created, 0).UTC(),
	}

	if hc.Producer == nil {
		hc.Logger.InfowCtx(ctx, "Entitlements resolved, no producer configured",
			"user_id", userID,
			"entitlements", len(ents),
		)
		return nil
	}

	value, err := json.Marshal(grant)
	if err != nil {
		return fmt.Errorf("marshal grant: %w", err)
	}

	err = hc.Producer.Publish(ctx, h.grantTopic, broker.Message{
		ID:    hc.Event.ID,
		Key:   []byte(userID),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("publish grant: %w", err)
	}

	hc.Logger.InfowCtx(ctx, "Entitlements granted", "user_id", userID, "entitlements", len(ents))
	return nil
}

// invoiceSubscription covers both the legacy top-level field and the
// parent.subscription_details shape of newer API versions.
func invoiceSubscription(invoice map[string]interface{}) string {
	if id := idOf(invoice["subscription"]); id != "" {
		return id
	}
	parent, _ := invoice["parent"].(map[string]interface{})
	details, _ := parent["subscription_details"].(map[string]interface{})
	return idOf(details["subscription"])
}

func invoicePriceIDs(invoice map[string]interface{}) []string {
	lines, _ := invoice["lines"].(map[string]interface{})
	data, _ := lines["data"].([]interface{})

	seen := make(map[string]struct{})
	var out []string
	for _, raw := range data {
		line, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		id := idOf(line["price"])
		if id == "" {
			pricing, _ := line["pricing"].(map[string]interface{})
			details, _ := pricing["price_details"].(map[string]interface{})
			id = idOf(details["price"])
		}
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// idOf reads an expandable field: either a bare id or an object with an id.
func idOf(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]interface{}:
		id, _ := t["id"].(string)
		return id
	default:
		return ""
	}
}
