package webhook

import (
	"net/http"

	"hookrelay/pkg/errors"
)

type OutcomeKind int

const (
	Handled OutcomeKind = iota
	SkippedStale
	SkippedUnresolved
	SkippedFiltered
	Relayed
	Retryable
	Fatal
	// Gateway-only kinds, never produced by the pipeline.
	Unauthenticated
	Dropped
	Invalid
)

func (k OutcomeKind) String() string {
	switch k {
	case Handled:
		return "handled"
	case SkippedStale:
		return "skipped_stale"
	case SkippedUnresolved:
		return "skipped_unresolved"
	case SkippedFiltered:
		return "skipped_filtered"
	case Relayed:
		return "relayed"
	case Retryable:
		return "retryable"
	case Fatal:
		return "fatal"
	case Unauthenticated:
		return "unauthenticated"
	case Dropped:
		return "dropped"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Outcome is the single result of delivering one event. Reason is a short
// human-readable note for logs; Err is set for Retryable, Fatal and Invalid.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
	Err    error
}

// Acknowledged reports whether the sender should consider the delivery done.
func (o Outcome) Acknowledged() bool {
	switch o.Kind {
	case Handled, SkippedStale, SkippedUnresolved, SkippedFiltered, Relayed, Dropped:
		return true
	default:
		return false
	}
}

// Status is the HTTP status reported to the sender for this outcome.
func (o Outcome) Status() int {
	switch o.Kind {
	case Handled, SkippedStale, SkippedUnresolved, SkippedFiltered:
		return http.StatusOK
	case Relayed:
		return http.StatusAccepted
	case Dropped:
		return http.StatusNoContent
	case Unauthenticated:
		return http.StatusUnauthorized
	case Invalid:
		return http.StatusBadRequest
	case Retryable:
		return http.StatusTooManyRequests
	default:
		if status := errors.ToHTTPStatus(o.Err); status >= http.StatusInternalServerError {
			return status
		}
		return http.StatusInternalServerError
	}
}

// Body is the JSON response body for this outcome; nil means no body.
func (o Outcome) Body() map[string]interface{} {
	switch o.Kind {
	case Handled, SkippedStale, SkippedUnresolved, SkippedFiltered:
		return map[string]interface{}{"success": true}
	case Relayed:
		return map[string]interface{}{"success": true, "queued": true}
	case Dropped:
		return nil
	case Unauthenticated:
		return errors.ToErrorResponse(errors.ErrInvalidSignature)
	case Invalid:
		if o.Err == nil {
			return errors.ToErrorResponse(errors.ErrInvalidPayload)
		}
		return errors.ToErrorResponse(o.Err)
	case Retryable:
		if o.Err == nil {
			return errors.ToErrorResponse(errors.ErrRateLimited)
		}
		return errors.ToErrorResponse(o.Err)
	default:
		return errors.ToErrorResponse(o.Err)
	}
}

func handled() Outcome {
	return Outcome{Kind: Handled}
}

func skipped(kind OutcomeKind, reason string) Outcome {
	return Outcome{Kind: kind, Reason: reason}
}

func retryable(reason string, err error) Outcome {
	return Outcome{Kind: Retryable, Reason: reason, Err: err}
}

func fatal(reason string, err error) Outcome {
	return Outcome{Kind: Fatal, Reason: reason, Err: err}
}
