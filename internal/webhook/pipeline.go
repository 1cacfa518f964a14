package webhook

import (
	"context"
	stderrors "errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"hookrelay/internal/logger"
	"hookrelay/internal/processor"
	"hookrelay/internal/tracker"
	"hookrelay/pkg/errors"
	"hookrelay/pkg/logging"
	"hookrelay/pkg/metrics"
	"hookrelay/pkg/models"
	"hookrelay/pkg/tracing"
)

// Pipeline runs one authenticated event through filter, routing, the
// idempotency gate, the handler and the tracker commit. It is shared by
// the direct and the relayed ingestion paths.
type Pipeline struct {
	router  *Registry
	tracker *tracker.Tracker
	filter  *Filter
	deps    Dependencies
	logger  logger.Logger
	tracer  trace.Tracer
}

func NewPipeline(router *Registry, trk *tracker.Tracker, filter *Filter, deps Dependencies, log logger.Logger) *Pipeline {
	if deps.Store == nil {
		deps.Store = trk.Store()
	}
	return &Pipeline{
		router:  router,
		tracker: trk,
		filter:  filter,
		deps:    deps,
		logger:  log,
		tracer:  tracing.GetTracer("hookrelay/webhook"),
	}
}

// Process never returns an error; every failure is folded into the Outcome.
// The tracker only advances after the handler returned nil.
func (p *Pipeline) Process(ctx context.Context, evt *models.Event) (out Outcome) {
	start := time.Now()
	resourceID := evt.ResourceID()

	ctx = logging.WithEvent(ctx, evt.ID, evt.Type, resourceID)
	ctx, span := p.tracer.Start(ctx, "webhook.process", trace.WithAttributes(
		attribute.String("webhook.event_id", evt.ID),
		attribute.String("webhook.event_type", evt.Type),
		attribute.String("webhook.resource_id", resourceID),
		attribute.Int64("webhook.created", evt.Created),
	))
	if sc := span.SpanContext(); sc.HasTraceID() {
		ctx = logging.WithTraceID(ctx, sc.TraceID().String())
	}
	defer func() {
		span.SetAttributes(attribute.String("webhook.outcome", out.Kind.String()))
		if out.Err != nil {
			span.RecordError(out.Err)
			span.SetStatus(codes.Error, out.Reason)
		}
		span.End()
		metrics.ObserveProcessingDuration(out.Kind.String(), time.Since(start))
	}()

	if rule, ok := p.filter.Match(ctx, evt); ok {
		p.logger.InfowCtx(ctx, "Event matched skip rule", "rule", rule)
		return skipped(SkippedFiltered, "skip rule "+rule)
	}

	res, err := p.router.Resolve(ctx, evt.Type)
	if err != nil {
		if processor.IsRateLimited(err) {
			p.logger.WarnwCtx(ctx, "Rate limited while resolving handler", "error", err)
			return retryable("rate limited during resolution", errors.ErrRateLimited.WithCause(err))
		}
		p.logger.ErrorwCtx(ctx, "Handler resolution failed", "error", err)
		return fatal("handler resolution failed", asAppError(err))
	}

	switch res.Kind {
	case NamespaceMissing:
		p.logger.WarnwCtx(ctx, "No event namespace for "+res.Namespace)
		return skipped(SkippedUnresolved, "namespace missing")
	case ActionMissing:
		p.logger.WarnwCtx(ctx, "No event handler for "+res.Action+" in "+res.Namespace)
		return skipped(SkippedUnresolved, "action missing")
	}

	key := tracker.Key{ResourceID: resourceID, EventType: evt.Type}

	fresh, err := p.tracker.Check(ctx, key, evt.Created)
	if err != nil {
		p.logger.ErrorwCtx(ctx, "Tracker check failed", "error", err)
		return fatal("tracker check failed", err)
	}
	if !fresh {
		p.logger.InfowCtx(ctx, "Skipping stale or duplicate event", "created", evt.Created)
		return skipped(SkippedStale, "already processed")
	}

	hc := newHandlerContext(evt, p.deps, p.logger)
	if err := p.invoke(ctx, res.Handler, hc); err != nil {
		if processor.IsRateLimited(err) {
			p.logger.WarnwCtx(ctx, "Rate limited while handling event", "error", err)
			return retryable("rate limited during handling", errors.ErrRateLimited.WithCause(err))
		}
		p.logger.ErrorwCtx(ctx, "Event handler failed", "error", err)
		return fatal("handler failed", asAppError(err))
	}

	if err := p.tracker.Commit(ctx, key, evt.Created); err != nil {
		if errors.IsCommitRace(err) {
			p.logger.ErrorwCtx(ctx, "Tracker advanced by a concurrent delivery", "error", err)
		} else {
			p.logger.ErrorwCtx(ctx, "Tracker commit failed", "error", err)
		}
		return fatal("tracker commit failed", err)
	}

	p.logger.InfowCtx(ctx, "Event handled")
	return handled()
}

func (p *Pipeline) invoke(ctx context.Context, fn HandlerFunc, hc *HandlerContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.RecoverPanic(r)
		}
	}()
	return fn(ctx, hc)
}

func asAppError(err error) error {
	var appErr *errors.Error
	if stderrors.As(err, &appErr) {
		return err
	}
	return errors.ErrHandlerFailed.WithCause(err)
}
