package observability

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/cccc-dev/cccc/internal/apperr"
	"github.com/cccc-dev/cccc/internal/ipc"
)

// TraceHandler wraps an op handler in a span named after the op,
// matching the shape of internal/ipc's Dispatcher.Trace field so
// internal/daemon can wire it in directly:
//
//	dispatcher.Trace = mgr.TraceHandler
//
// internal/ipc never imports this package (it only declares the
// function-typed field), keeping the dispatcher decoupled from the
// OTel SDK the same way it is decoupled from internal/broadcast.
func (m *Manager) TraceHandler(op string, fn ipc.HandlerFunc) ipc.HandlerFunc {
	tracer := m.Tracer()
	return func(ctx *ipc.OpContext) (any, error) {
		// Op handlers take *OpContext rather than context.Context (spec
		// §4.H ops are synchronous request/response, not cancellable),
		// so each span is its own root rather than part of a caller trace.
		_, span := tracer.Start(context.Background(), "op "+op)
		defer span.End()

		span.SetAttributes(
			attribute.String("cccc.op", op),
			attribute.String("cccc.by", ctx.By),
		)

		result, err := fn(ctx)
		if err != nil {
			var ae *apperr.Error
			if errors.As(err, &ae) {
				span.SetAttributes(attribute.String("cccc.error_code", string(ae.Code)))
			}
			span.SetStatus(codes.Error, err.Error())
		}
		return result, err
	}
}
