package logging

import (
	"context"
)

type contextKey string

const (
	TraceIDKey     contextKey = "trace_id"
	MessageIDKey   contextKey = "message_id"
	ServiceNameKey contextKey = "service_name"
	EventIDKey     contextKey = "event_id"
	EventTypeKey   contextKey = "event_type"
	ResourceIDKey  contextKey = "resource_id"
)

// WithTraceID records the active trace id so log lines can be joined to
// their span.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func WithMessageID(ctx context.Context, messageID string) context.Context {
	return context.WithValue(ctx, MessageIDKey, messageID)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return context.WithValue(ctx, ServiceNameKey, serviceName)
}

// WithEvent attaches the identifying fields of a webhook event so every
// log line written while processing it can be correlated.
func WithEvent(ctx context.Context, eventID, eventType, resourceID string) context.Context {
	ctx = context.WithValue(ctx, EventIDKey, eventID)
	ctx = context.WithValue(ctx, EventTypeKey, eventType)
	return context.WithValue(ctx, ResourceIDKey, resourceID)
}

func stringValue(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

func GetMessageID(ctx context.Context) string {
	return stringValue(ctx, MessageIDKey)
}

func GetServiceName(ctx context.Context) string {
	return stringValue(ctx, ServiceNameKey)
}

func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 12)

	for _, key := range []contextKey{TraceIDKey, MessageIDKey, ServiceNameKey, EventIDKey, EventTypeKey, ResourceIDKey} {
		if v := stringValue(ctx, key); v != "" {
			fields = append(fields, string(key), v)
		}
	}

	return fields
}
