// Package groutine starts named goroutines for the radio back ends. Names show
// up as pprof labels and in panic reports.
package groutine

import (
	"context"
	"runtime/debug"
	"runtime/pprof"

	"github.com/sirupsen/logrus"
)

type ctxKey string

const goroutineNameKey ctxKey = "goroutine_name"

// Go starts fn on a goroutine labelled with name.
// If parentCtx is nil, context.Background() is used.
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	labels := pprof.Labels("goroutine_name", name)

	go pprof.Do(parentCtx, labels, func(ctx context.Context) {
		ctx = context.WithValue(ctx, goroutineNameKey, name)
		fn(ctx)
	})
}

// GoSafe is Go with panic recovery. A panic in fn is logged with its stack
// instead of crashing the process. The returned channel is closed when fn
// has returned or panicked.
func GoSafe(parentCtx context.Context, name string, logger *logrus.Logger, fn func(ctx context.Context)) <-chan struct{} {
	if logger == nil {
		logger = logrus.New()
	}
	done := make(chan struct{})

	Go(parentCtx, name, func(ctx context.Context) {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(logrus.Fields{
					"goroutine": name,
					"panic":     r,
					"stack":     string(debug.Stack()),
				}).Error("Goroutine panicked")
			}
		}()
		fn(ctx)
	})

	return done
}

// GetName retrieves the goroutine name from the context.
func GetName(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(goroutineNameKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
