package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Span times one domain operation and logs its outcome.
type Span struct {
	name   string
	logger *slog.Logger
	start  time.Time
	err    error
}

// StartSpan derives a child context whose logger is tagged with the operation
// name and a span id. Nested spans record their parent.
func StartSpan(ctx context.Context, name string, args ...any) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	spanID := uuid.NewString()
	logger := FromContext(ctx).With(
		slog.String("span_id", spanID),
		slog.String("operation", name),
	)
	if parent, ok := ctx.Value(spanKey{}).(string); ok {
		logger = logger.With(slog.String("parent_span_id", parent))
	}
	if len(args) > 0 {
		logger = logger.With(args...)
	}

	ctx = WithLogger(ctx, logger)
	ctx = context.WithValue(ctx, spanKey{}, spanID)

	return ctx, &Span{name: name, logger: logger, start: time.Now()}
}

// Fail records the error the operation ended with. Returns err unchanged.
func (s *Span) Fail(err error) error {
	if s != nil && err != nil {
		s.err = err
	}
	return err
}

// End emits the completion entry for the span.
func (s *Span) End() {
	if s == nil {
		return
	}
	elapsed := slog.Duration("duration", time.Since(s.start))
	if s.err != nil {
		s.logger.Warn("operation failed", elapsed, slog.String("error", s.err.Error()))
		return
	}
	s.logger.Debug("operation completed", elapsed)
}
