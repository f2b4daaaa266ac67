package handlers

import (
	"context"
	"net/http"

	"github.com/mintresearch/agent-engine/middleware"
	"github.com/mintresearch/agent-engine/models"
	"github.com/mintresearch/agent-engine/services/interaction"
	"github.com/mintresearch/agent-engine/utils"
	"go.uber.org/zap"
)

// InferRequest is the body of POST /mcp/infer
type InferRequest struct {
	Input  string        `json:"input" validate:"required"`
	Policy models.Policy `json:"policy,omitempty"`
}

// InteractionService runs one request through the pipeline
type InteractionService interface {
	Invoke(ctx context.Context, input string, policy models.Policy) *interaction.Result
}

// InteractionHandler handles pipeline invocations
type InteractionHandler struct {
	service InteractionService
	logger  *zap.Logger
}

// NewInteractionHandler creates a new InteractionHandler
func NewInteractionHandler(service InteractionService, logger *zap.Logger) *InteractionHandler {
	return &InteractionHandler{
		service: service,
		logger:  logger,
	}
}

// HandleInfer handles POST /mcp/infer. A well-formed request always gets a
// 200; pipeline failures are carried in the result's error field.
func (h *InteractionHandler) HandleInfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	var req InferRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	h.logger.Debug("invoking pipeline",
		zap.String("request_id", requestID),
		zap.Int("input_length", len(req.Input)),
		zap.Int("policy_fields", len(req.Policy)))

	result := h.service.Invoke(ctx, req.Input, req.Policy)

	if err := utils.WriteOK(w, result); err != nil {
		h.logger.Error("failed to write infer response", zap.Error(err))
	}
}
