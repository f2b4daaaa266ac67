package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/mintresearch/agent-engine/repositories"
	"github.com/mintresearch/agent-engine/utils"
	"go.uber.org/zap"
)

// PutMemoryRequest is the body of POST /mcp/memory/{key}
type PutMemoryRequest struct {
	Data json.RawMessage `json:"data" validate:"required"`
}

// MemoryHandler exposes the memory table over HTTP. The wire format is the
// one the httpstore repository speaks, so one engine can serve as the
// memory backend of another.
type MemoryHandler struct {
	repo   repositories.MemoryRepository
	logger *zap.Logger
}

// NewMemoryHandler creates a new MemoryHandler
func NewMemoryHandler(repo repositories.MemoryRepository, logger *zap.Logger) *MemoryHandler {
	return &MemoryHandler{
		repo:   repo,
		logger: logger,
	}
}

// HandleListKeys handles GET /mcp/memory
func (h *MemoryHandler) HandleListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.repo.Keys(r.Context())
	if err != nil {
		h.logger.Error("failed to list memory keys", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to list memory keys")
		return
	}

	_ = utils.WriteOK(w, keys)
}

// HandleGet handles GET /mcp/memory/{key}
func (h *MemoryHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	key, ok := h.memoryKey(w, r)
	if !ok {
		return
	}

	value, err := h.repo.Get(r.Context(), key)
	if errors.Is(err, repositories.ErrMemoryNotFound) {
		_ = utils.WriteNotFound(w, "memory key not found: "+key)
		return
	}
	if err != nil {
		h.logger.Error("failed to read memory", zap.String("key", key), zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to read memory")
		return
	}

	_ = utils.WriteOK(w, value)
}

// HandlePut handles POST /mcp/memory/{key}
func (h *MemoryHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	key, ok := h.memoryKey(w, r)
	if !ok {
		return
	}

	var req PutMemoryRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if string(req.Data) == "null" {
		_ = utils.WriteBadRequest(w, "data must not be null", nil)
		return
	}

	if err := h.repo.Put(r.Context(), key, req.Data); err != nil {
		h.logger.Error("failed to write memory", zap.String("key", key), zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to write memory")
		return
	}

	_ = utils.WriteOK(w, map[string]interface{}{
		"key":    key,
		"stored": true,
	})
}

// memoryKey returns the unescaped {key} path parameter
func (h *MemoryHandler) memoryKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	key, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil || key == "" {
		_ = utils.WriteBadRequest(w, "invalid memory key", nil)
		return "", false
	}
	return key, true
}
