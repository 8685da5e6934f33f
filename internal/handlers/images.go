package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/petermazzocco/go-image-host/internal/cache"
	"github.com/petermazzocco/go-image-host/internal/metadata"
	"github.com/petermazzocco/go-image-host/internal/storage"
	"github.com/petermazzocco/go-image-host/models"
	"go.uber.org/zap"
)

func (h *Handler) ListImages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	orientation, ok := parseOrientation(q.Get("orientation"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid orientation")
		return
	}

	page, err := intParam(r, "page")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid page")
		return
	}
	if page < 1 {
		page = 1
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if limit <= 0 {
		limit = metadata.DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	tag := strings.TrimSpace(q.Get("tag"))

	key := cache.ImagesListKey(page, limit, tag, string(orientation))
	var cached listResponse
	if hit, err := h.cache.GetJSON(r.Context(), key, &cached); err != nil {
		h.log.Warn("image list cache read failed", zap.Error(err))
	} else if hit {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	result, err := h.meta.ListImages(r.Context(), metadata.ListFilter{
		Page:        page,
		Limit:       limit,
		Tag:         tag,
		Orientation: orientation,
	})
	if err != nil {
		h.log.Error("failed to list images", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list images")
		return
	}

	resp := h.presentPage(result)
	if err := h.cache.SetJSON(r.Context(), key, resp); err != nil {
		h.log.Warn("image list cache write failed", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := h.meta.GetImage(r.Context(), id)
	if err != nil {
		h.log.Error("failed to fetch image", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch image")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "image not found")
		return
	}
	writeJSON(w, http.StatusOK, h.present(*rec))
}

func (h *Handler) RandomImage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	orientation, ok := parseOrientation(q.Get("orientation"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid orientation")
		return
	}

	rec, err := h.meta.GetRandomImage(r.Context(), metadata.RandomFilter{
		Tags:        splitList(q.Get("tags")),
		Exclude:     splitList(q.Get("exclude")),
		Orientation: orientation,
	})
	if err != nil {
		h.log.Error("failed to pick random image", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to pick random image")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "no image matches")
		return
	}
	writeJSON(w, http.StatusOK, h.present(*rec))
}

// UploadImage stores the original, its compressed variants and the metadata
// record. Blobs already written are removed again if a later step fails.
func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing image file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read image")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "empty image")
		return
	}

	var expiry *time.Time
	if raw := strings.TrimSpace(r.FormValue("expires_in")); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil || ttl <= 0 {
			writeError(w, http.StatusBadRequest, "expires_in must be a positive duration")
			return
		}
		at := h.now().Add(ttl).UTC()
		expiry = &at
	}

	info, err := h.compressor.Inspect(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unsupported image")
		return
	}

	variants, err := h.compressor.Compress(data, info.Format, h.compress)
	if err != nil {
		h.log.Error("failed to compress image", zap.String("name", header.Filename), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to compress image")
		return
	}

	id := h.newID()
	rec := metadata.ImageRecord{
		ID:           id,
		OriginalName: filepath.Base(header.Filename),
		UploadTime:   h.now().UTC(),
		ExpiryTime:   expiry,
		Orientation:  models.OrientationFor(info.Width, info.Height),
		Format:       info.Format,
		Width:        info.Width,
		Height:       info.Height,
		PathOriginal: storage.OriginalKey(id, info.Format),
		SizeOriginal: int64(len(data)),
		Tags:         splitList(r.FormValue("tags")),
	}

	var uploaded []string
	put := func(key string, body []byte, format string) error {
		if err := h.blobs.Upload(r.Context(), key, body, storage.ContentType(format)); err != nil {
			return err
		}
		uploaded = append(uploaded, key)
		return nil
	}

	err = put(rec.PathOriginal, data, info.Format)
	if err == nil && len(variants.WebP) > 0 {
		rec.PathWebP = storage.WebPKey(id)
		rec.SizeWebP = int64(len(variants.WebP))
		err = put(rec.PathWebP, variants.WebP, "webp")
	}
	if err == nil && len(variants.AVIF) > 0 {
		rec.PathAVIF = storage.AVIFKey(id)
		rec.SizeAVIF = int64(len(variants.AVIF))
		err = put(rec.PathAVIF, variants.AVIF, "avif")
	}
	if err != nil {
		h.log.Error("failed to upload image", zap.String("id", id), zap.Error(err))
		h.removeBlobs(id, uploaded)
		writeError(w, http.StatusInternalServerError, "failed to upload image")
		return
	}

	if err := h.meta.SaveImage(r.Context(), rec); err != nil {
		h.log.Error("failed to save image metadata", zap.String("id", id), zap.Error(err))
		h.removeBlobs(id, uploaded)
		if errors.Is(err, metadata.ErrInvalidRecord) {
			writeError(w, http.StatusBadRequest, "invalid image")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to save image")
		return
	}

	h.log.Info("image uploaded",
		zap.String("id", id),
		zap.String("format", info.Format),
		zap.Int64("bytes", rec.SizeOriginal),
	)
	h.invalidate(cache.Images | cache.Tags)

	saved, err := h.meta.GetImage(r.Context(), id)
	if err != nil || saved == nil {
		saved = &rec
	}
	writeJSON(w, http.StatusCreated, h.present(*saved))
}

type updateImageRequest struct {
	// ExpiryTime is absent (leave), null (clear) or an RFC 3339 time.
	ExpiryTime json.RawMessage `json:"expiry_time"`
	Tags       *[]string       `json:"tags"`
}

func (req updateImageRequest) toUpdate() (metadata.ImageUpdate, error) {
	var upd metadata.ImageUpdate
	if len(req.ExpiryTime) > 0 {
		upd.SetExpiry = true
		if err := json.Unmarshal(req.ExpiryTime, &upd.ExpiryTime); err != nil {
			return upd, err
		}
	}
	if req.Tags != nil {
		upd.SetTags = true
		upd.Tags = *req.Tags
	}
	return upd, nil
}

func (h *Handler) UpdateImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateImageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	upd, err := req.toUpdate()
	if err != nil {
		writeError(w, http.StatusBadRequest, "expiry_time must be an RFC 3339 time or null")
		return
	}

	rec, err := h.meta.UpdateImage(r.Context(), id, upd)
	if err != nil {
		h.log.Error("failed to update image", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to update image")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "image not found")
		return
	}

	h.invalidate(cache.Images | cache.Tags)
	writeJSON(w, http.StatusOK, h.present(*rec))
}

// DeleteImage removes the record first so a failed blob delete never leaves
// a record pointing at missing files.
func (h *Handler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := h.meta.GetImage(r.Context(), id)
	if err != nil {
		h.log.Error("failed to fetch image", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete image")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "image not found")
		return
	}

	deleted, err := h.meta.DeleteImage(r.Context(), id)
	if err != nil {
		h.log.Error("failed to delete image", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete image")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "image not found")
		return
	}

	h.removeBlobs(id, storage.Keys(rec.PathOriginal, rec.PathWebP, rec.PathAVIF))
	h.invalidate(cache.Images | cache.Tags)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeBlobs(id string, keys []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, key := range keys {
		if err := h.blobs.Delete(ctx, key); err != nil {
			h.log.Warn("failed to delete blob", zap.String("id", id), zap.String("key", key), zap.Error(err))
		}
	}
}
