package pipeline

import (
	"context"
	"fmt"

	"github.com/mintresearch/agent-engine/internal/observability"
	"go.uber.org/zap"
)

// Orchestrator walks the stage state machine for one request at a time.
// It holds no per-request state and is safe for concurrent use.
type Orchestrator struct {
	stages  *Stages
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewOrchestrator creates a new orchestrator over stages
func NewOrchestrator(stages *Stages, metrics *observability.Metrics, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		stages:  stages,
		metrics: metrics,
		logger:  logger,
	}
}

// Next returns the stage that follows current. The only branch is after
// the tool decision.
func Next(current Stage, st *RequestState) Stage {
	switch current {
	case StageMemoryLookup:
		return StageToolDecider
	case StageToolDecider:
		if st.UseTool {
			return StageToolExecute
		}
		return StageLLMInfer
	case StageToolExecute:
		return StageLLMInfer
	case StageLLMInfer:
		return StageResponseFormatter
	default:
		return StageDone
	}
}

// Run executes the pipeline on st. The first failing stage stops the run
// and is returned as a *StageError; st.Visited keeps the stages completed so far.
func (o *Orchestrator) Run(ctx context.Context, st *RequestState) error {
	for stage := StageMemoryLookup; stage != StageDone; stage = Next(stage, st) {
		if err := ctx.Err(); err != nil {
			return &StageError{Stage: stage, Err: fmt.Errorf("pipeline interrupted: %w", err)}
		}

		o.logger.Debug("running stage", zap.String("stage", stage.String()))
		o.metrics.RecordStageVisit(stage.String())

		if err := o.stages.Run(ctx, stage, st); err != nil {
			o.metrics.RecordStageError(stage.String())
			o.logger.Debug("stage failed",
				zap.String("stage", stage.String()),
				zap.Error(err),
			)
			return &StageError{Stage: stage, Err: err}
		}
	}
	return nil
}
