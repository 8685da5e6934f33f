package sweep

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/petermazzocco/go-image-host/internal/config"
	"github.com/petermazzocco/go-image-host/internal/db"
	"github.com/petermazzocco/go-image-host/internal/metadata"
	"github.com/petermazzocco/go-image-host/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeBlobs struct {
	mu      sync.Mutex
	deleted []string
	failOn  string
}

func (f *fakeBlobs) Upload(context.Context, string, []byte, string) error { return nil }

func (f *fakeBlobs) Delete(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if path == f.failOn {
		return errors.New("bucket unavailable")
	}
	f.deleted = append(f.deleted, path)
	return nil
}

func (f *fakeBlobs) URL(path string) string { return path }

type countingInvalidator struct {
	images, tags int
}

func (c *countingInvalidator) InvalidateImagesList(context.Context) error {
	c.images++
	return nil
}

func (c *countingInvalidator) InvalidateTagsList(context.Context) error {
	c.tags++
	return nil
}

func newService(t *testing.T) *metadata.Service {
	t.Helper()

	gdb, err := db.Open(config.DatabaseConfig{
		Driver:   "sqlite",
		DSN:      filepath.Join(t.TempDir(), "sweep.db"),
		LogLevel: "silent",
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(gdb) })
	require.NoError(t, db.NewMigrator(gdb).Migrate(context.Background()))

	return metadata.New(gdb, metadata.WithClock(func() time.Time { return now }))
}

func record(id string, expiry *time.Time, tags ...string) metadata.ImageRecord {
	return metadata.ImageRecord{
		ID:           id,
		OriginalName: id + ".png",
		UploadTime:   now.Add(-48 * time.Hour),
		ExpiryTime:   expiry,
		Orientation:  models.Landscape,
		Format:       "png",
		Width:        10,
		Height:       5,
		PathOriginal: "images/original/" + id + ".png",
		PathWebP:     "images/webp/" + id + ".webp",
		SizeOriginal: 100,
		SizeWebP:     50,
		Tags:         tags,
	}
}

func at(t time.Time) *time.Time { return &t }

func TestRunOnce(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.SaveImage(ctx, record("gone", at(now.Add(-time.Minute)), "tmp")))
	require.NoError(t, svc.SaveImage(ctx, record("later", at(now.Add(time.Hour)))))
	require.NoError(t, svc.SaveImage(ctx, record("forever", nil, "tmp")))

	blobs := &fakeBlobs{}
	inv := &countingInvalidator{}
	job := New(svc, blobs, inv, time.Minute, nil)

	n, err := job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"images/original/gone.png", "images/webp/gone.webp"}, blobs.deleted)
	assert.Equal(t, 1, inv.images)
	assert.Equal(t, 1, inv.tags)

	got, err := svc.GetImage(ctx, "gone")
	require.NoError(t, err)
	assert.Nil(t, got)

	for _, id := range []string{"later", "forever"} {
		got, err := svc.GetImage(ctx, id)
		require.NoError(t, err)
		assert.NotNil(t, got, id)
	}

	tags, err := svc.ListTags(ctx)
	require.NoError(t, err)
	assert.Equal(t, []metadata.TagCount{{Name: "tmp", Count: 1}}, tags)
}

func TestRunOnce_NothingExpired(t *testing.T) {
	svc := newService(t)
	require.NoError(t, svc.SaveImage(context.Background(), record("keep", nil)))

	inv := &countingInvalidator{}
	n, err := New(svc, &fakeBlobs{}, inv, time.Minute, nil).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, inv.images)
	assert.Zero(t, inv.tags)
}

func TestRunOnce_BlobFailureIsNotFatal(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	require.NoError(t, svc.SaveImage(ctx, record("gone", at(now.Add(-time.Second)))))

	core, logs := observer.New(zap.WarnLevel)
	blobs := &fakeBlobs{failOn: "images/original/gone.png"}

	n, err := New(svc, blobs, nil, time.Minute, zap.New(core)).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"images/webp/gone.webp"}, blobs.deleted)
	assert.Equal(t, 1, logs.FilterMessage("failed to delete blob").Len())

	got, err := svc.GetImage(ctx, "gone")
	require.NoError(t, err)
	assert.Nil(t, got)
}

type brokenStore struct {
	expired []metadata.ImageRecord
}

func (b brokenStore) ListExpiredImages(context.Context) ([]metadata.ImageRecord, error) {
	return b.expired, nil
}

func (b brokenStore) DeleteImage(_ context.Context, id string) (bool, error) {
	if id == "bad" {
		return false, errors.New("database is locked")
	}
	return true, nil
}

func TestRunOnce_DeleteErrorsAreCollected(t *testing.T) {
	store := brokenStore{expired: []metadata.ImageRecord{
		record("bad", at(now)),
		record("good", at(now)),
	}}
	inv := &countingInvalidator{}

	n, err := New(store, &fakeBlobs{}, inv, time.Minute, nil).RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delete image bad")
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, inv.images)
}

func TestRun_StopsWithContext(t *testing.T) {
	svc := newService(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		New(svc, &fakeBlobs{}, nil, time.Hour, nil).Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sweep did not stop")
	}
}
