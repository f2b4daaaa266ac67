package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/mintresearch/agent-engine/internal/observability"
	"github.com/mintresearch/agent-engine/models"
	"github.com/mintresearch/agent-engine/services"
	"go.uber.org/zap"
)

// EmptyPolicyViolation is the single violation reported for a missing policy
const EmptyPolicyViolation = "Policy is empty or None"

var builtinComponentPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Validator checks a policy against rule sources and reports violations as
// human-readable strings. It never fails: missing sources are skipped and
// unreadable ones become a violation.
type Validator struct {
	loader   *Loader
	patterns *PatternCache
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewValidator creates a Validator reading sources through loader
func NewValidator(loader *Loader, metrics *observability.Metrics, logger *zap.Logger) *Validator {
	return &Validator{
		loader:   loader,
		patterns: NewPatternCache(DefaultPatternCacheSize),
		metrics:  metrics,
		logger:   logger,
	}
}

// CheckPolicy validates the policy against every source in the rules directory
func (v *Validator) CheckPolicy(policy models.Policy) []string {
	if policy.IsEmpty() {
		return v.finish([]string{EmptyPolicyViolation})
	}

	sources, err := v.loader.ListSources()
	if err != nil {
		return v.finish([]string{loadFailure(err)})
	}
	return v.finish(v.check(policy, sources))
}

// CheckPolicyAgainst validates the policy against the given sources, used verbatim
func (v *Validator) CheckPolicyAgainst(policy models.Policy, sources []string) []string {
	if policy.IsEmpty() {
		return v.finish([]string{EmptyPolicyViolation})
	}
	return v.finish(v.check(policy, sources))
}

func (v *Validator) finish(violations []string) []string {
	v.metrics.RecordPolicyCheck(len(violations))
	return violations
}

func (v *Validator) check(policy models.Policy, sources []string) []string {
	violations := []string{}
	if len(sources) == 0 {
		v.logger.Debug("no rule sources to check against")
		return violations
	}

	component, hasComponent := policy.Component()
	nameViolation := ""
	if hasComponent && !builtinComponentPattern.MatchString(component) {
		nameViolation = fmt.Sprintf(
			"Component name '%s' is invalid. Must contain only lowercase letters, numbers, and underscores, and must not start with a number.",
			component)
	}
	// The name check reports at the first naming source, or ahead of
	// everything when the list has none.
	if nameViolation != "" && !hasNamingSource(sources) {
		violations = append(violations, nameViolation)
		nameViolation = ""
	}

	for _, source := range sources {
		if nameViolation != "" && CategoryOf(source) == models.CategoryNaming {
			violations = append(violations, nameViolation)
			nameViolation = ""
		}

		doc, err := v.loader.Load(source)
		if services.IsRuleNotFoundError(err) {
			v.logger.Warn("rule source not found, skipping",
				zap.String("source", source),
			)
			continue
		}
		if err != nil {
			v.logger.Warn("rule source failed to load",
				zap.String("source", source),
				zap.Error(err),
			)
			return append(violations, loadFailure(err))
		}
		if doc == nil {
			continue
		}

		found, err := v.checkDocument(doc, policy, component, hasComponent)
		if err != nil {
			parseErr := services.NewRuleParseError(source, err)
			v.logger.Warn("rule source has an invalid shape",
				zap.String("source", source),
				zap.Error(err),
			)
			return append(violations, loadFailure(parseErr))
		}
		violations = append(violations, found...)
	}

	return violations
}

func hasNamingSource(sources []string) bool {
	for _, source := range sources {
		if CategoryOf(source) == models.CategoryNaming {
			return true
		}
	}
	return false
}

// checkDocument runs the category check for doc followed by the generic
// per-component check
func (v *Validator) checkDocument(doc *models.RuleDocument, policy models.Policy, component string, hasComponent bool) ([]string, error) {
	if !doc.HasSection() {
		return nil, nil
	}

	var violations []string

	switch doc.Category {
	case models.CategoryNaming:
		if hasComponent {
			rules, err := doc.Naming()
			if err != nil {
				return nil, err
			}
			if rules.ComponentPattern != nil {
				// Overrides match from the start of the name; a trailing
				// remainder is allowed unless the expression anchors it.
				re, err := v.patterns.Compile("^(?:" + rules.ComponentPattern.Regex + ")")
				if err != nil {
					return nil, fmt.Errorf("invalid component_pattern regex: %w", err)
				}
				if !re.MatchString(component) {
					violations = append(violations, fmt.Sprintf("Component name '%s' does not match required pattern", component))
				}
			}
		}

	case models.CategoryStructure:
		rules, err := doc.Structure()
		if err != nil {
			return nil, err
		}
		for _, field := range rules.RequiredFields {
			if !policy.Has(field) {
				violations = append(violations, fmt.Sprintf("Missing required field: %s", field))
			}
		}

	case models.CategoryCapabilities:
		if capabilities, ok := policy.Capabilities(); ok {
			rules, err := doc.Capabilities()
			if err != nil {
				return nil, err
			}
			for _, capability := range capabilities {
				if !rules.Allows(capability) {
					violations = append(violations, fmt.Sprintf("Undefined capability used: %v", capability))
				}
			}
		}

	case models.CategoryAgents:
		if hasComponent {
			rule, listed, err := doc.Agent(component)
			if err != nil {
				return nil, err
			}
			if listed {
				for _, field := range rule.RequiredFields {
					if !policy.Has(field) {
						violations = append(violations, fmt.Sprintf("Missing required field for agent %s: %s", component, field))
					}
				}
			}
		}

	case models.CategoryPermissions:
		if hasComponent {
			rules, err := doc.Permissions()
			if err != nil {
				return nil, err
			}
			if !rules.Lists(component) && rules.Default != nil && rules.Default.Access == "restricted" {
				violations = append(violations, fmt.Sprintf("Component %s has restricted access by default", component))
			}
		}

	case models.CategoryLogging:
		if policy.Has(models.PolicyFieldLogLevel) {
			rules, err := doc.Logging()
			if err != nil {
				return nil, err
			}
			level := policy[models.PolicyFieldLogLevel]
			if rules.AllowedLevels != nil && !models.Contains(rules.AllowedLevels, level) {
				violations = append(violations, fmt.Sprintf("Invalid log level: %v. Allowed levels: %s", level, formatList(rules.AllowedLevels)))
			}
		}
	}

	if !hasComponent {
		return violations, nil
	}

	rules, found, err := doc.ComponentRules(component)
	if err != nil {
		return nil, err
	}
	if !found {
		return violations, nil
	}

	for _, field := range rules.RequiredFields {
		if !policy.Has(field) {
			violations = append(violations, fmt.Sprintf("Missing required field for %s: %s", component, field))
		}
	}
	for _, rule := range rules.Fields {
		value, ok := policy[rule.Field]
		if !ok {
			continue
		}
		if !models.Contains(rule.AllowedValues, value) {
			violations = append(violations, fmt.Sprintf("Invalid value for %s: %v. Allowed values: %s", rule.Field, value, formatList(rule.AllowedValues)))
		}
	}

	return violations, nil
}

func loadFailure(err error) string {
	return "Error during rule validation: " + describe(err)
}

// formatList renders an allowed-values list the way rule authors write it in
// messages: ['DEBUG', 'INFO'], [1, 2.5], [True, None].
func formatList(items []interface{}) string {
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = formatItem(item)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatItem(item interface{}) string {
	switch v := item.(type) {
	case nil:
		return "None"
	case bool:
		if v {
			return "True"
		}
		return "False"
	case string:
		if strings.Contains(v, "'") && !strings.Contains(v, `"`) {
			return `"` + v + `"`
		}
		return "'" + strings.NewReplacer(`\`, `\\`, "'", `\'`).Replace(v) + "'"
	case float64:
		return formatFloat(v, 64)
	case float32:
		return formatFloat(float64(v), 32)
	case []interface{}:
		return formatList(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func formatFloat(f float64, bits int) string {
	out := strconv.FormatFloat(f, 'g', -1, bits)
	if !strings.ContainsAny(out, ".eEnN") {
		out += ".0"
	}
	return out
}
