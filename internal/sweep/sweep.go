// Package sweep removes images whose expiry time has passed.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/petermazzocco/go-image-host/internal/cache"
	"github.com/petermazzocco/go-image-host/internal/metadata"
	"github.com/petermazzocco/go-image-host/internal/storage"
	"go.uber.org/zap"
)

// Store is the part of the metadata service the sweep needs.
type Store interface {
	ListExpiredImages(ctx context.Context) ([]metadata.ImageRecord, error)
	DeleteImage(ctx context.Context, id string) (bool, error)
}

type Job struct {
	store    Store
	blobs    storage.BlobStore
	cache    cache.Invalidator
	interval time.Duration
	log      *zap.Logger
}

func New(store Store, blobs storage.BlobStore, inv cache.Invalidator, interval time.Duration, log *zap.Logger) *Job {
	if inv == nil {
		inv = cache.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Job{
		store:    store,
		blobs:    blobs,
		cache:    inv,
		interval: interval,
		log:      log,
	}
}

// Run sweeps once immediately and then every interval until ctx is done.
func (j *Job) Run(ctx context.Context) {
	j.log.Info("expiry sweep started", zap.Duration("interval", j.interval))
	j.tick(ctx)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info("expiry sweep stopped")
			return
		case <-ticker.C:
			j.tick(ctx)
		}
	}
}

func (j *Job) tick(ctx context.Context) {
	n, err := j.RunOnce(ctx)
	if err != nil {
		j.log.Error("expiry sweep failed", zap.Int("deleted", n), zap.Error(err))
		return
	}
	if n > 0 {
		j.log.Info("expired images removed", zap.Int("deleted", n))
	}
}

// RunOnce deletes every currently expired image and returns how many records
// were removed. Blob deletion failures are logged and do not stop the
// record from being deleted; record deletion failures are collected and
// returned after the remaining images have been processed.
func (j *Job) RunOnce(ctx context.Context) (int, error) {
	expired, err := j.store.ListExpiredImages(ctx)
	if err != nil {
		return 0, fmt.Errorf("list expired images: %w", err)
	}

	var (
		deleted int
		errs    []error
	)
	for _, rec := range expired {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		j.deleteBlobs(ctx, rec)

		ok, err := j.store.DeleteImage(ctx, rec.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("delete image %s: %w", rec.ID, err))
			continue
		}
		if ok {
			deleted++
			j.log.Debug("expired image deleted", zap.String("id", rec.ID))
		}
	}

	if deleted > 0 {
		cache.Invalidate(ctx, j.cache, cache.Images|cache.Tags, j.log)
	}
	return deleted, errors.Join(errs...)
}

func (j *Job) deleteBlobs(ctx context.Context, rec metadata.ImageRecord) {
	for _, key := range storage.Keys(rec.PathOriginal, rec.PathWebP, rec.PathAVIF) {
		if err := j.blobs.Delete(ctx, key); err != nil {
			j.log.Warn("failed to delete blob",
				zap.String("id", rec.ID),
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}
}
