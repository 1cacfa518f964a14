package models

import "fmt"

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidateEvent checks the fields the pipeline relies on for routing and
// idempotency. Everything else in the payload is opaque.
func ValidateEvent(evt *Event) error {
	if evt == nil {
		return &ValidationError{
			Field:   "event",
			Message: "event cannot be nil",
		}
	}

	if evt.ID == "" {
		return &ValidationError{
			Field:   "id",
			Message: "event ID is required",
		}
	}

	if evt.Type == "" {
		return &ValidationError{
			Field:   "type",
			Message: "event type is required",
		}
	}

	if evt.Created <= 0 {
		return &ValidationError{
			Field:   "created",
			Message: "created timestamp must be positive",
		}
	}

	if evt.Data.Object == nil {
		return &ValidationError{
			Field:   "data.object",
			Message: "event data object is required",
		}
	}

	if evt.ResourceID() == "" {
		return &ValidationError{
			Field:   "data.object.id",
			Message: "resource id is required",
		}
	}

	return nil
}

func ValidateRelayEnvelope(env *RelayEnvelope) error {
	if env == nil {
		return &ValidationError{
			Field:   "envelope",
			Message: "relay envelope cannot be nil",
		}
	}
	return ValidateEvent(&env.Event)
}
