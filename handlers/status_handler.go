package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mintresearch/agent-engine/services/runtime"
	"github.com/mintresearch/agent-engine/utils"
	"go.uber.org/zap"
)

// LogsQuery holds the query parameters of GET /mcp/logs
type LogsQuery struct {
	Unit string `validate:"required,unit_name"`
}

// StateParams holds the path parameters of GET /mcp/state/{area}
type StateParams struct {
	Area string `validate:"required,state_area"`
}

// RuntimeService reports registered units, their logs and state files
type RuntimeService interface {
	Status(ctx context.Context) (*runtime.StatusResult, error)
	Logs(ctx context.Context, unit string) (*runtime.LogsResult, error)
	State(ctx context.Context, area string) (json.RawMessage, error)
}

// StatusHandler handles runtime status requests
type StatusHandler struct {
	service RuntimeService
	logger  *zap.Logger
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(service RuntimeService, logger *zap.Logger) *StatusHandler {
	return &StatusHandler{
		service: service,
		logger:  logger,
	}
}

// HandleStatus handles GET /mcp/status
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Status(r.Context())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteOK(w, result); err != nil {
		h.logger.Error("failed to write status response", zap.Error(err))
	}
}

// HandleLogs handles GET /mcp/logs?unit=
func (h *StatusHandler) HandleLogs(w http.ResponseWriter, r *http.Request) {
	query := LogsQuery{Unit: r.URL.Query().Get("unit")}
	if err := utils.ValidateStruct(&query); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	result, err := h.service.Logs(r.Context(), query.Unit)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteOK(w, result); err != nil {
		h.logger.Error("failed to write logs response", zap.Error(err))
	}
}

// HandleState handles GET /mcp/state/{area}
func (h *StatusHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	params := StateParams{Area: chi.URLParam(r, "area")}
	if err := utils.ValidateStruct(&params); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	state, err := h.service.State(r.Context(), params.Area)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteOK(w, state); err != nil {
		h.logger.Error("failed to write state response", zap.Error(err))
	}
}
