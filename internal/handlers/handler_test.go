package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/petermazzocco/go-image-host/internal/cache"
	"github.com/petermazzocco/go-image-host/internal/compress"
	"github.com/petermazzocco/go-image-host/internal/config"
	"github.com/petermazzocco/go-image-host/internal/db"
	"github.com/petermazzocco/go-image-host/internal/metadata"
	"github.com/petermazzocco/go-image-host/models"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 7, 1, 9, 30, 0, 0, time.UTC)

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	deleted []string
	failKey string
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memBlobs) Upload(_ context.Context, path string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if path == m.failKey {
		return errors.New("bucket unavailable")
	}
	m.objects[path] = data
	m.types[path] = contentType
	return nil
}

func (m *memBlobs) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, path)
	m.deleted = append(m.deleted, path)
	return nil
}

func (m *memBlobs) URL(path string) string {
	if path == "" {
		return ""
	}
	return "https://cdn.test/" + path
}

type fakeCompressor struct {
	info compress.Info
	err  error
}

func (f fakeCompressor) Inspect([]byte) (compress.Info, error) {
	return f.info, f.err
}

func (f fakeCompressor) Compress(_ []byte, format string, _ compress.Options) (*compress.Result, error) {
	if compress.IsAnimated(format) {
		return &compress.Result{}, nil
	}
	return &compress.Result{WebP: []byte("webp-bytes"), AVIF: []byte("avif")}, nil
}

// memCache is an in-process cache.Cache that records invalidations.
type memCache struct {
	mu              sync.Mutex
	entries         map[string][]byte
	imageInvalidate int
	tagInvalidate   int
}

func newMemCache() *memCache {
	return &memCache{entries: map[string][]byte{}}
}

func (c *memCache) GetJSON(_ context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

func (c *memCache) SetJSON(_ context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = raw
	return nil
}

func (c *memCache) InvalidateImagesList(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.imageInvalidate++
	for key := range c.entries {
		if key != cache.TagsListKey() {
			delete(c.entries, key)
		}
	}
	return nil
}

func (c *memCache) InvalidateTagsList(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tagInvalidate++
	delete(c.entries, cache.TagsListKey())
	return nil
}

type testEnv struct {
	router chi.Router
	meta   *metadata.Service
	blobs  *memBlobs
	cache  *memCache
}

func newTestEnv(t *testing.T, compressor compress.Compressor) *testEnv {
	t.Helper()

	gdb, err := db.Open(config.DatabaseConfig{
		Driver:   "sqlite",
		DSN:      filepath.Join(t.TempDir(), "handlers.db"),
		LogLevel: "silent",
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(gdb) })
	require.NoError(t, db.NewMigrator(gdb).Migrate(context.Background()))

	env := &testEnv{
		meta:  metadata.New(gdb),
		blobs: newMemBlobs(),
		cache: newMemCache(),
	}

	h := New(env.meta, env.blobs, compressor, WithCache(env.cache), WithMaxUploadSize(1<<20))
	h.newID = func() string { return "img-1" }
	h.now = func() time.Time { return testNow }
	h.invalidate = func(scope cache.Scope) {
		cache.Invalidate(context.Background(), h.cache, scope, h.log)
	}

	env.router = NewRouter(h, RouterConfig{})
	return env
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) upload(t *testing.T, fields map[string]string, file []byte) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if file != nil {
		part, err := mw.CreateFormFile("image", "holiday photo.png")
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) seed(t *testing.T, id string, minutes int, orientation models.Orientation, tags ...string) {
	t.Helper()

	require.NoError(t, e.meta.SaveImage(context.Background(), metadata.ImageRecord{
		ID:           id,
		OriginalName: id + ".png",
		UploadTime:   testNow.Add(time.Duration(minutes) * time.Minute),
		Orientation:  orientation,
		Format:       "png",
		Width:        800,
		Height:       600,
		PathOriginal: "images/original/" + id + ".png",
		PathWebP:     "images/webp/" + id + ".webp",
		SizeOriginal: 1000,
		SizeWebP:     400,
		Tags:         tags,
	}))
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}
