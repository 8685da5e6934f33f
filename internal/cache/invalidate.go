package cache

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Scope selects which cached views Invalidate drops.
type Scope uint8

const (
	Images Scope = 1 << iota
	Tags
)

// Invalidate drops the cached views in scope. Failures are logged and
// otherwise ignored; cached entries expire on their own.
func Invalidate(ctx context.Context, inv Invalidator, scope Scope, log *zap.Logger) {
	if scope&Images != 0 {
		if err := inv.InvalidateImagesList(ctx); err != nil {
			log.Warn("failed to invalidate image lists", zap.Error(err))
		}
	}
	if scope&Tags != 0 {
		if err := inv.InvalidateTagsList(ctx); err != nil {
			log.Warn("failed to invalidate tag list", zap.Error(err))
		}
	}
}

// InvalidateAsync runs Invalidate in the background with its own timeout so
// it outlives the request that triggered it.
func InvalidateAsync(inv Invalidator, scope Scope, log *zap.Logger) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		Invalidate(ctx, inv, scope, log)
	}()
}
