package operation

import (
	"context"
	"fmt"
	"time"

	"github.com/lemonshq/lemonaide/pkg/errors"
	"github.com/lemonshq/lemonaide/pkg/logging"
)

// ExecutionContext carries request metadata through the middleware chain.
type ExecutionContext struct {
	Context       context.Context
	OperationName string
	Operation     Operation
	WidgetID      string
	CallID        string
	Params        map[string]any
	StartTime     time.Time
}

// Executor is the function signature for operation execution.
type Executor func(ctx *ExecutionContext) (*Result, error)

// Middleware wraps an Executor with additional behavior.
type Middleware func(next Executor) Executor

// Chain composes middlewares in order (first middleware is outermost).
func Chain(middlewares ...Middleware) Middleware {
	return func(final Executor) Executor {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// Logging records every execution with its outcome and duration.
func Logging(logger *logging.Logger) Middleware {
	return func(next Executor) Executor {
		return func(ctx *ExecutionContext) (*Result, error) {
			if ctx.StartTime.IsZero() {
				ctx.StartTime = time.Now()
			}
			res, err := next(ctx)

			details := map[string]any{
				"operation":   ctx.OperationName,
				"call_id":     ctx.CallID,
				"duration_ms": time.Since(ctx.StartTime).Milliseconds(),
			}
			switch {
			case err != nil:
				details["error"] = err.Error()
				logger.Error(logging.CategoryOperation, "execute_failed", "", details)
			case res != nil && !res.Success:
				details["error"] = res.Error
				details["error_code"] = res.ErrorCode
				logger.Warn(logging.CategoryOperation, "execute_rejected", "", details)
			default:
				logger.Info(logging.CategoryOperation, "execute", "", details)
			}
			return res, err
		}
	}
}

// Timeout applies a per-operation or default timeout via the context.
func Timeout(defaultTimeout time.Duration, perOperation map[string]time.Duration) Middleware {
	return func(next Executor) Executor {
		return func(ctx *ExecutionContext) (*Result, error) {
			timeout := defaultTimeout
			if t, ok := perOperation[ctx.OperationName]; ok {
				timeout = t
			}
			if timeout <= 0 {
				return next(ctx)
			}

			base := ctx.Context
			if base == nil {
				base = context.Background()
			}
			timeoutCtx, cancel := context.WithTimeout(base, timeout)
			defer cancel()

			ctx.Context = timeoutCtx
			return next(ctx)
		}
	}
}

// Recover converts a panicking operation into a structured failure so one bad
// execution never takes down the widget runtime.
func Recover() Middleware {
	return func(next Executor) Executor {
		return func(ctx *ExecutionContext) (res *Result, err error) {
			defer func() {
				if r := recover(); r != nil {
					res = failure(errors.ErrCodeInternal, fmt.Sprintf("operation panicked: %v", r))
					err = nil
				}
			}()
			return next(ctx)
		}
	}
}
