package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateEvent(t *testing.T) {
	valid := func() *Event {
		return NewEventBuilder().
			WithID("evt_1").
			WithType("invoice.paid").
			WithCreated(1700000000).
			WithResource("in_1", nil).
			Build()
	}

	tests := []struct {
		name   string
		mutate func(*Event)
		field  string
	}{
		{"valid", func(*Event) {}, ""},
		{"missing id", func(e *Event) { e.ID = "" }, "id"},
		{"missing type", func(e *Event) { e.Type = "" }, "type"},
		{"zero created", func(e *Event) { e.Created = 0 }, "created"},
		{"nil object", func(e *Event) { e.Data.Object = nil }, "data.object"},
		{"missing resource id", func(e *Event) { delete(e.Data.Object, "id") }, "data.object.id"},
		{"numeric resource id", func(e *Event) { e.Data.Object["id"] = 42 }, "data.object.id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt := valid()
			tt.mutate(evt)

			err := ValidateEvent(evt)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}

	assert.Error(t, ValidateEvent(nil))
	assert.Error(t, ValidateRelayEnvelope(nil))
}

func TestEvent_DecodesProcessorPayload(t *testing.T) {
	raw := `{
		"id": "evt_1NG8Du2eZvKYlo2CUI79vXWy",
		"object": "event",
		"api_version": "2024-06-20",
		"created": 1686089970,
		"livemode": false,
		"type": "customer.subscription.updated",
		"request": {"id": "req_1", "idempotency_key": "key_1"},
		"data": {
			"object": {"id": "sub_1", "object": "subscription", "status": "active"},
			"previous_attributes": {"status": "trialing"}
		}
	}`

	var evt Event
	require.NoError(t, json.Unmarshal([]byte(raw), &evt))
	require.NoError(t, ValidateEvent(&evt))

	assert.Equal(t, "sub_1", evt.ResourceID())
	assert.Equal(t, "customer.subscription.updated", evt.Type)
	assert.Equal(t, int64(1686089970), evt.Created)
	assert.Equal(t, "trialing", evt.Data.PreviousAttributes["status"])
	require.NotNil(t, evt.Request)
	assert.Equal(t, "key_1", evt.Request.IdempotencyKey)
}

func TestEventBuilder_DefaultsCreated(t *testing.T) {
	evt := NewEventBuilder().WithID("evt_1").WithType("ping").WithResource("x", map[string]interface{}{"id": "ignored", "a": 1}).Build()
	assert.Positive(t, evt.Created)
	assert.Equal(t, "x", evt.ResourceID())
	assert.Equal(t, 1, evt.Data.Object["a"])
}
