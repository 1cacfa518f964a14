package models

// Event is an inbound webhook notification as delivered by the payment
// processor. It is immutable once decoded.
type Event struct {
	ID         string        `json:"id"`
	Object     string        `json:"object,omitempty"`
	APIVersion string        `json:"api_version,omitempty"`
	Type       string        `json:"type"`
	Created    int64         `json:"created"`
	Livemode   bool          `json:"livemode"`
	Data       EventData     `json:"data"`
	Request    *EventRequest `json:"request,omitempty"`
}

type EventData struct {
	Object             map[string]interface{} `json:"object"`
	PreviousAttributes map[string]interface{} `json:"previous_attributes,omitempty"`
}

type EventRequest struct {
	ID             string `json:"id,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// ResourceID returns the id of the object the event describes, which is
// the first half of the idempotency key.
func (e *Event) ResourceID() string {
	if e == nil || e.Data.Object == nil {
		return ""
	}
	id, _ := e.Data.Object["id"].(string)
	return id
}

// RelayEnvelope wraps an already authenticated event for transit through
// the broker. Secret is compared on the consuming side.
type RelayEnvelope struct {
	Secret string `json:"secret"`
	Event  Event  `json:"event"`
}
