package interaction

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mintresearch/agent-engine/config"
	"github.com/mintresearch/agent-engine/internal/observability"
	"github.com/mintresearch/agent-engine/models"
	"github.com/mintresearch/agent-engine/services/pipeline"
	"go.uber.org/zap"
)

// EventUnit is the unit name invocations log their events under
const EventUnit = "graph_executor"

const timestampLayout = "2006-01-02T15:04:05Z"

// Invocation outcomes recorded in metrics
const (
	StatusSuccess  = "success"
	StatusError    = "error"
	StatusRejected = "rejected"
)

// PolicyChecker validates a policy and returns its violations
type PolicyChecker interface {
	CheckPolicy(policy models.Policy) []string
}

// Result is the outcome of one invocation
type Result struct {
	Output        string   `json:"output"`
	VisitedStages []string `json:"nodes_visited"`
	Timestamp     string   `json:"timestamp"`
	DurationMs    int64    `json:"duration_ms"`
	Error         *string  `json:"error"`
	Violations    []string `json:"violations,omitempty"`
	InvocationID  string   `json:"invocation_id"`
}

// Service is the single entry point for running the interaction pipeline.
// Invoke never fails; failures are reported inside the Result.
type Service struct {
	orchestrator *pipeline.Orchestrator
	checker      PolicyChecker
	enforcement  string
	events       observability.EventRecorder
	metrics      *observability.Metrics
	logger       *zap.Logger
}

// NewService creates a new interaction service. enforcement is one of the
// config.Enforcement* modes; checker may be nil when enforcement is off.
func NewService(
	orchestrator *pipeline.Orchestrator,
	checker PolicyChecker,
	enforcement string,
	events observability.EventRecorder,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Service {
	if enforcement == "" || checker == nil {
		enforcement = config.EnforcementOff
	}
	if events == nil {
		events = observability.NopEvents{}
	}
	return &Service{
		orchestrator: orchestrator,
		checker:      checker,
		enforcement:  enforcement,
		events:       events,
		metrics:      metrics,
		logger:       logger,
	}
}

// Invoke runs the pipeline for input under policy
func (s *Service) Invoke(ctx context.Context, input string, policy models.Policy) *Result {
	start := time.Now()
	invocationID := uuid.New().String()

	result := &Result{
		VisitedStages: []string{},
		Timestamp:     start.UTC().Format(timestampLayout),
		InvocationID:  invocationID,
	}

	s.logger.Info("starting invocation",
		zap.String("invocation_id", invocationID),
		zap.Int("input_length", len(input)),
		zap.Bool("has_policy", !policy.IsEmpty()),
	)
	s.events.Log(EventUnit, observability.LevelInfo, "graph_invocation_started", "Starting graph execution",
		map[string]interface{}{
			"invocation_id": invocationID,
			"input_length":  len(input),
			"has_policy":    !policy.IsEmpty(),
		})

	if violations := s.checkPolicy(policy); len(violations) > 0 {
		result.Violations = violations

		s.events.Log(EventUnit, observability.LevelWarning, "policy_violations_detected",
			fmt.Sprintf("Policy has %d violation(s)", len(violations)),
			map[string]interface{}{
				"invocation_id":   invocationID,
				"violation_count": len(violations),
				"enforcement":     s.enforcement,
			})

		if s.enforcement == config.EnforcementEnforce {
			err := fmt.Errorf("policy rejected: %d violation(s)", len(violations))
			return s.fail(result, start, StatusRejected, err)
		}
	}

	st := pipeline.NewRequestState(input, policy)
	err := s.orchestrator.Run(ctx, st)
	result.VisitedStages = st.Visited
	if err != nil {
		return s.fail(result, start, StatusError, err)
	}

	result.Output = st.Output
	result.DurationMs = time.Since(start).Milliseconds()
	s.metrics.RecordInvocation(StatusSuccess, time.Since(start))

	s.logger.Info("invocation completed",
		zap.String("invocation_id", invocationID),
		zap.Int64("duration_ms", result.DurationMs),
		zap.Strings("nodes_visited", result.VisitedStages),
	)
	s.events.Log(EventUnit, observability.LevelInfo, "graph_invocation_completed", "Graph execution completed successfully",
		map[string]interface{}{
			"invocation_id": invocationID,
			"output_length": len(result.Output),
			"nodes_visited": len(result.VisitedStages),
			"duration_ms":   result.DurationMs,
		})

	return result
}

// checkPolicy returns the violations to act on. An empty policy has nothing
// to enforce and is never checked.
func (s *Service) checkPolicy(policy models.Policy) []string {
	if s.enforcement == config.EnforcementOff || policy.IsEmpty() {
		return nil
	}
	return s.checker.CheckPolicy(policy)
}

func (s *Service) fail(result *Result, start time.Time, status string, err error) *Result {
	message := err.Error()
	result.Error = &message
	result.Output = "Error: " + message
	result.DurationMs = time.Since(start).Milliseconds()
	s.metrics.RecordInvocation(status, time.Since(start))

	s.logger.Warn("invocation failed",
		zap.String("invocation_id", result.InvocationID),
		zap.String("status", status),
		zap.Error(err),
	)
	s.events.Log(EventUnit, observability.LevelError, "graph_invocation_failed",
		fmt.Sprintf("Error during graph execution: %s", message),
		map[string]interface{}{
			"invocation_id": result.InvocationID,
			"error":         message,
		})

	return result
}
