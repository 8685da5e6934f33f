package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/petermazzocco/go-image-host/internal/cache"
	"github.com/petermazzocco/go-image-host/internal/metadata"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type tagRequest struct {
	Name string `json:"name"`
}

type tagCountResponse struct {
	Name   string `json:"name"`
	Images int64  `json:"images"`
}

type batchTagsRequest struct {
	ImageIDs []string `json:"image_ids"`
	Add      []string `json:"add"`
	Remove   []string `json:"remove"`
}

func (h *Handler) ListTags(w http.ResponseWriter, r *http.Request) {
	key := cache.TagsListKey()
	var cached []metadata.TagCount
	if hit, err := h.cache.GetJSON(r.Context(), key, &cached); err != nil {
		h.log.Warn("tag list cache read failed", zap.Error(err))
	} else if hit {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	tags, err := h.meta.ListTags(r.Context())
	if err != nil {
		h.log.Error("failed to list tags", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list tags")
		return
	}
	if err := h.cache.SetJSON(r.Context(), key, tags); err != nil {
		h.log.Warn("tag list cache write failed", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, tags)
}

func (h *Handler) CreateTag(w http.ResponseWriter, r *http.Request) {
	var req tagRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.meta.CreateTag(r.Context(), req.Name)
	if err != nil {
		h.tagError(w, "create", err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		h.invalidate(cache.Tags)
	}
	writeJSON(w, status, map[string]any{"name": req.Name, "created": created})
}

func (h *Handler) RenameTag(w http.ResponseWriter, r *http.Request) {
	oldName := chi.URLParam(r, "name")

	var req tagRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	count, err := h.meta.RenameTag(r.Context(), oldName, req.Name)
	if err != nil {
		h.tagError(w, "rename", err)
		return
	}

	h.invalidate(cache.Images | cache.Tags)
	writeJSON(w, http.StatusOK, tagCountResponse{Name: req.Name, Images: count})
}

func (h *Handler) DeleteTag(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	count, err := h.meta.DeleteTag(r.Context(), name)
	if err != nil {
		h.tagError(w, "delete", err)
		return
	}

	h.invalidate(cache.Images | cache.Tags)
	writeJSON(w, http.StatusOK, tagCountResponse{Name: name, Images: count})
}

func (h *Handler) BatchUpdateTags(w http.ResponseWriter, r *http.Request) {
	var req batchTagsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	n, err := h.meta.BatchUpdateTags(r.Context(), req.ImageIDs, req.Add, req.Remove)
	if err != nil {
		h.tagError(w, "batch update", err)
		return
	}

	h.invalidate(cache.Images | cache.Tags)
	writeJSON(w, http.StatusOK, map[string]int{"images": n})
}

func (h *Handler) tagError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, metadata.ErrInvalidTag):
		writeError(w, http.StatusBadRequest, "invalid tag name")
	case errors.Is(err, gorm.ErrDuplicatedKey):
		writeError(w, http.StatusConflict, "tag already exists")
	default:
		h.log.Error("tag operation failed", zap.String("op", op), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to "+op+" tag")
	}
}
