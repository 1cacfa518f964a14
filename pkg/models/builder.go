package models

import "time"

type EventBuilder struct {
	event *Event
}

func NewEventBuilder() *EventBuilder {
	return &EventBuilder{
		event: &Event{
			Object: "event",
			Data: EventData{
				Object: make(map[string]interface{}),
			},
		},
	}
}

func (b *EventBuilder) WithID(id string) *EventBuilder {
	b.event.ID = id
	return b
}

func (b *EventBuilder) WithType(eventType string) *EventBuilder {
	b.event.Type = eventType
	return b
}

func (b *EventBuilder) WithCreated(created int64) *EventBuilder {
	b.event.Created = created
	return b
}

func (b *EventBuilder) WithLivemode(livemode bool) *EventBuilder {
	b.event.Livemode = livemode
	return b
}

// WithResource sets the data object and forces its id field.
func (b *EventBuilder) WithResource(id string, fields map[string]interface{}) *EventBuilder {
	obj := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		obj[k] = v
	}
	obj["id"] = id
	b.event.Data.Object = obj
	return b
}

func (b *EventBuilder) WithPreviousAttributes(attrs map[string]interface{}) *EventBuilder {
	b.event.Data.PreviousAttributes = attrs
	return b
}

func (b *EventBuilder) WithRequest(id, idempotencyKey string) *EventBuilder {
	b.event.Request = &EventRequest{ID: id, IdempotencyKey: idempotencyKey}
	return b
}

func (b *EventBuilder) Build() *Event {
	if b.event.Created == 0 {
		b.event.Created = time.Now().Unix()
	}
	return b.event
}
