package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type spanIDs struct {
	trace string
	span  string
}

// Span represents a logical unit of work tied to a request trace.
type Span struct {
	name   string
	logger *slog.Logger
	start  time.Time
	err    error
}

// StartSpan derives a child span from the provided context, enriching the logger
// with tracing metadata. It returns the derived context and the span handle.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	logger := FromContext(ctx)
	parent, _ := ctx.Value(spanKey).(spanIDs)

	ids := spanIDs{trace: parent.trace, span: uuid.NewString()}
	if ids.trace == "" {
		ids.trace = uuid.NewString()
		logger = logger.With(slog.String("trace_id", ids.trace))
	}

	logger = logger.With(
		slog.String("span_id", ids.span),
		slog.String("span_name", name),
	)
	if parent.span != "" {
		logger = logger.With(slog.String("parent_span_id", parent.span))
	}

	ctx = context.WithValue(ctx, spanKey, ids)
	ctx = WithLogger(ctx, logger)

	return ctx, &Span{name: name, logger: logger, start: time.Now()}
}

// TraceID returns the trace the context belongs to, if any.
func TraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ids, _ := ctx.Value(spanKey).(spanIDs)
	return ids.trace
}

// Fail marks the span as failed; End then logs at warn level.
func (s *Span) Fail(err error) {
	if s != nil {
		s.err = err
	}
}

// End finalizes the span and emits a completion log entry.
func (s *Span) End() {
	if s == nil {
		return
	}
	elapsed := slog.Duration("duration", time.Since(s.start))
	if s.err != nil {
		s.logger.Warn("span failed", elapsed, slog.Any("error", s.err))
		return
	}
	s.logger.Debug("span completed", elapsed)
}
