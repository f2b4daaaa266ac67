package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/mintresearch/agent-engine/internal/observability"
	"github.com/mintresearch/agent-engine/models"
	"go.uber.org/zap"
)

// EventUnit is the unit name rule operations log their events under
const EventUnit = "rules_api"

const timestampLayout = "2006-01-02T15:04:05Z"

// RuleFile is one loaded rule source as exposed to callers
type RuleFile struct {
	FilePath string                 `json:"file_path"`
	RuleType string                 `json:"rule_type"`
	Content  map[string]interface{} `json:"content"`
}

// ListResult is the outcome of listing rule sources
type ListResult struct {
	Rules     []RuleFile `json:"rules"`
	Count     int        `json:"count"`
	Timestamp string     `json:"timestamp"`
}

// CheckResult is the outcome of a policy check
type CheckResult struct {
	Valid      bool     `json:"valid"`
	Violations []string `json:"violations"`
	Timestamp  string   `json:"timestamp"`
	DurationMs int64    `json:"duration_ms"`
}

// Service exposes rule listing and policy checks with event logging
type Service struct {
	loader    *Loader
	validator *Validator
	events    observability.EventRecorder
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewService creates a new rules service
func NewService(
	loader *Loader,
	validator *Validator,
	events observability.EventRecorder,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Service {
	if events == nil {
		events = observability.NopEvents{}
	}
	return &Service{
		loader:    loader,
		validator: validator,
		events:    events,
		metrics:   metrics,
		logger:    logger,
	}
}

// Loader returns the underlying rule loader
func (s *Service) Loader() *Loader {
	return s.loader
}

// List loads every rule source. Sources that fail to load or decode are
// skipped and reported as RULE_LOAD_ERROR events.
func (s *Service) List(ctx context.Context) (*ListResult, error) {
	s.events.Log(EventUnit, observability.LevelInfo, "rules_list_requested", "Received request to list rules", nil)

	sources, err := s.loader.ListSources()
	if err != nil {
		s.events.Log(EventUnit, observability.LevelError, "rules_list_failed",
			fmt.Sprintf("Error listing rules: %s", describe(err)),
			map[string]interface{}{"error": describe(err)})
		return nil, err
	}

	rules := make([]RuleFile, 0, len(sources))
	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		category := CategoryOf(source)
		doc, err := s.loader.Load(source)
		if err == nil && doc == nil {
			continue
		}
		var content map[string]interface{}
		if err == nil {
			content, err = doc.Content()
		}
		if err != nil {
			s.metrics.RecordRuleLoadError(category)
			s.events.Log(EventUnit, observability.LevelError, "RULE_LOAD_ERROR",
				fmt.Sprintf("Error loading rule file %s: %s", source, describe(err)), nil)
			continue
		}

		rules = append(rules, RuleFile{
			FilePath: source,
			RuleType: category,
			Content:  content,
		})
	}

	s.events.Log(EventUnit, observability.LevelInfo, "rules_list_completed", "Successfully listed rules",
		map[string]interface{}{"rule_count": len(rules)})

	return &ListResult{
		Rules:     rules,
		Count:     len(rules),
		Timestamp: time.Now().UTC().Format(timestampLayout),
	}, nil
}

// Check validates policy. A nil ruleFiles checks against every source in the
// rules directory; a non-nil slice, even an empty one, is used verbatim after
// each name is resolved inside the rules directory.
func (s *Service) Check(ctx context.Context, policy models.Policy, ruleFiles []string) (*CheckResult, error) {
	s.events.Log(EventUnit, observability.LevelInfo, "policy_check_requested", "Received policy check request",
		map[string]interface{}{
			"policy_size":        len(policy),
			"has_specific_rules": len(ruleFiles) > 0,
		})

	start := time.Now()

	var violations []string
	if ruleFiles == nil {
		violations = s.validator.CheckPolicy(policy)
	} else {
		sources := make([]string, 0, len(ruleFiles))
		for _, name := range ruleFiles {
			source, err := s.loader.Resolve(name)
			if err != nil {
				s.events.Log(EventUnit, observability.LevelError, "policy_check_failed",
					fmt.Sprintf("Error checking policy against rules: %s", describe(err)),
					map[string]interface{}{"error": describe(err)})
				return nil, err
			}
			sources = append(sources, source)
		}
		violations = s.validator.CheckPolicyAgainst(policy, sources)
	}

	durationMs := time.Since(start).Milliseconds()
	result := &CheckResult{
		Valid:      len(violations) == 0,
		Violations: violations,
		Timestamp:  time.Now().UTC().Format(timestampLayout),
		DurationMs: durationMs,
	}

	s.logger.Debug("policy checked",
		zap.Bool("valid", result.Valid),
		zap.Int("violations", len(violations)),
		zap.Int64("duration_ms", durationMs),
	)
	s.events.Log(EventUnit, observability.LevelInfo, "policy_check_completed", "Successfully checked policy against rules",
		map[string]interface{}{
			"valid":           result.Valid,
			"violation_count": len(violations),
			"duration_ms":     durationMs,
		})

	return result, nil
}
