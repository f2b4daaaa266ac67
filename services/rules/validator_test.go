package rules

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/mintresearch/agent-engine/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const invalidNameFormat = "Component name '%s' is invalid. Must contain only lowercase letters, numbers, and underscores, and must not start with a number."

func TestValidator_EmptyPolicy(t *testing.T) {
	dir := writeRules(t, map[string]string{
		"structure.rules.yaml": "structure:\n  required_fields: [component]\n",
	})
	_, v := newTestValidator(dir)

	for _, policy := range []models.Policy{nil, {}} {
		assert.Equal(t, []string{EmptyPolicyViolation}, v.CheckPolicy(policy))
		assert.Equal(t, []string{EmptyPolicyViolation}, v.CheckPolicyAgainst(policy, nil))
		assert.Equal(t, []string{EmptyPolicyViolation}, v.CheckPolicyAgainst(policy, []string{}))
	}
}

func TestValidator_BuiltinNaming(t *testing.T) {
	dir := writeRules(t, map[string]string{
		"logging.rules.yaml": "logging:\n  allowed_levels: [INFO]\n",
	})
	_, v := newTestValidator(dir)

	tests := []struct {
		component string
		want      []string
	}{
		{"VALID_123", []string{strings.Replace(invalidNameFormat, "%s", "VALID_123", 1)}},
		{"1abc", []string{strings.Replace(invalidNameFormat, "%s", "1abc", 1)}},
		{"has-dash", []string{strings.Replace(invalidNameFormat, "%s", "has-dash", 1)}},
		{"valid_component_1", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.component, func(t *testing.T) {
			got := v.CheckPolicy(models.Policy{"component": tt.component})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidator_NamingNeverFiresWithoutComponent(t *testing.T) {
	dir := writeRules(t, map[string]string{
		"naming.rules.yaml": "naming:\n  component_pattern:\n    regex: \"^never$\"\n",
	})
	_, v := newTestValidator(dir)

	assert.Empty(t, v.CheckPolicy(models.Policy{"enabled": true, "name": "BAD NAME"}))
}

func TestValidator_ExplicitEmptySourceList(t *testing.T) {
	dir := writeRules(t, map[string]string{
		"structure.rules.yaml": "structure:\n  required_fields: [owner]\n",
	})
	_, v := newTestValidator(dir)

	got := v.CheckPolicyAgainst(models.Policy{"component": "NOT valid!"}, []string{})
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestValidator_EmptyRulesDirectory(t *testing.T) {
	_, v := newTestValidator(filepath.Join(t.TempDir(), "missing"))

	assert.Empty(t, v.CheckPolicy(models.Policy{"component": "1abc"}))
}

func TestValidator_GraphPolicyScenario(t *testing.T) {
	dir := writeRules(t, map[string]string{
		"structure.rules.yaml": `structure:
  required_fields:
    - component
    - enabled
    - log_each_step
    - fallback_on_failure
`,
	})
	_, v := newTestValidator(dir)

	policy := models.Policy{
		"component":           "graph_engine",
		"enabled":             true,
		"log_each_step":       true,
		"fallback_on_failure": false,
	}
	assert.Empty(t, v.CheckPolicy(policy))
}

func TestValidator_Categories(t *testing.T) {
	tests := []struct {
		name   string
		files  map[string]string
		policy models.Policy
		want   []string
	}{
		{
			name: "structure missing fields",
			files: map[string]string{
				"structure.rules.yaml": "structure:\n  required_fields: [component, enabled, owner]\n",
			},
			policy: models.Policy{"component": "a"},
			want:   []string{"Missing required field: enabled", "Missing required field: owner"},
		},
		{
			name: "naming override mismatch",
			files: map[string]string{
				"naming.rules.yaml": "naming:\n  component_pattern:\n    regex: \"svc_\"\n",
			},
			policy: models.Policy{"component": "graph"},
			want:   []string{"Component name 'graph' does not match required pattern"},
		},
		{
			name: "naming override matches from the start",
			files: map[string]string{
				"naming.rules.yaml": "naming:\n  component_pattern:\n    regex: \"graph\"\n",
			},
			policy: models.Policy{"component": "graph_engine"},
			want:   []string{},
		},
		{
			name: "builtin and override both report",
			files: map[string]string{
				"naming.rules.yaml": "naming:\n  component_pattern:\n    regex: \"^svc_\"\n",
			},
			policy: models.Policy{"component": "Graph"},
			want: []string{
				strings.Replace(invalidNameFormat, "%s", "Graph", 1),
				"Component name 'Graph' does not match required pattern",
			},
		},
		{
			// A capability allowed for any component is accepted, even if the
			// policy's own component does not list it.
			name: "capabilities accept any component allow-list",
			files: map[string]string{
				"capabilities.rules.yaml": "capabilities:\n  graph_engine: [read]\n  tool_executor: [exec]\n",
			},
			policy: models.Policy{"component": "graph_engine", "capabilities": []interface{}{"read", "exec", "fly"}},
			want:   []string{"Undefined capability used: fly"},
		},
		{
			name: "capabilities ignore non-list values",
			files: map[string]string{
				"capabilities.rules.yaml": "capabilities:\n  graph_engine: [read]\n",
			},
			policy: models.Policy{"capabilities": "fly"},
			want:   []string{},
		},
		{
			name: "agents required fields also hit the generic check",
			files: map[string]string{
				"agents.rules.yaml": "agents:\n  graph_engine:\n    required_fields: [enabled, mode]\n",
			},
			policy: models.Policy{"component": "graph_engine", "enabled": true},
			want: []string{
				"Missing required field for agent graph_engine: mode",
				"Missing required field for graph_engine: mode",
			},
		},
		{
			name: "agents skip unlisted components",
			files: map[string]string{
				"agents.rules.yaml": "agents:\n  graph_engine:\n    required_fields: [enabled]\n",
			},
			policy: models.Policy{"component": "other"},
			want:   []string{},
		},
		{
			name: "permissions restricted default",
			files: map[string]string{
				"permissions.rules.yaml": "permissions:\n  default:\n    access: restricted\n  graph_engine:\n    access: full\n",
			},
			policy: models.Policy{"component": "unknown_unit"},
			want:   []string{"Component unknown_unit has restricted access by default"},
		},
		{
			// Listed components are never checked against their own entry.
			name: "permissions listed component",
			files: map[string]string{
				"permissions.rules.yaml": "permissions:\n  default:\n    access: restricted\n  graph_engine:\n    access: none\n",
			},
			policy: models.Policy{"component": "graph_engine"},
			want:   []string{},
		},
		{
			name: "permissions open default",
			files: map[string]string{
				"permissions.rules.yaml": "permissions:\n  default:\n    access: open\n",
			},
			policy: models.Policy{"component": "unknown_unit"},
			want:   []string{},
		},
		{
			name: "logging invalid level",
			files: map[string]string{
				"logging.rules.yaml": "logging:\n  allowed_levels: [DEBUG, INFO]\n",
			},
			policy: models.Policy{"log_level": "TRACE"},
			want:   []string{"Invalid log level: TRACE. Allowed levels: ['DEBUG', 'INFO']"},
		},
		{
			name: "logging allowed level",
			files: map[string]string{
				"logging.rules.yaml": "logging:\n  allowed_levels: [DEBUG, INFO]\n",
			},
			policy: models.Policy{"log_level": "INFO"},
			want:   []string{},
		},
		{
			name: "logging empty allow-list rejects everything",
			files: map[string]string{
				"logging.rules.yaml": "logging:\n  allowed_levels: []\n",
			},
			policy: models.Policy{"log_level": "INFO"},
			want:   []string{"Invalid log level: INFO. Allowed levels: []"},
		},
		{
			name: "custom category generic checks",
			files: map[string]string{
				"security.rules.yaml": `security:
  graph_engine:
    required_fields: [owner]
    mode:
      allowed_values: [strict, relaxed]
    retries:
      allowed_values: [1, 2, 3]
`,
			},
			policy: models.Policy{"component": "graph_engine", "mode": "loose", "retries": float64(2)},
			want: []string{
				"Missing required field for graph_engine: owner",
				"Invalid value for mode: loose. Allowed values: ['strict', 'relaxed']",
			},
		},
		{
			name: "document without its own category key",
			files: map[string]string{
				"structure.rules.yaml": "other:\n  required_fields: [owner]\n",
			},
			policy: models.Policy{"component": "a"},
			want:   []string{},
		},
		{
			name: "empty document is skipped",
			files: map[string]string{
				"structure.rules.yaml": "",
			},
			policy: models.Policy{"component": "a"},
			want:   []string{},
		},
		{
			name: "invalid section shape becomes a violation",
			files: map[string]string{
				"structure.rules.yaml": "structure:\n  required_fields: owner\n",
			},
			policy: models.Policy{"component": "a"},
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeRules(t, tt.files)
			_, v := newTestValidator(dir)

			got := v.CheckPolicy(tt.policy)
			if tt.want == nil {
				require.Len(t, got, 1)
				assert.True(t, strings.HasPrefix(got[0], "Error during rule validation: "), got[0])
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidator_SourceOrder(t *testing.T) {
	dir := writeRules(t, map[string]string{
		"structure.rules.yaml": "structure:\n  required_fields: [owner]\n",
		"logging.rules.yaml":   "logging:\n  allowed_levels: [INFO]\n",
	})
	_, v := newTestValidator(dir)

	got := v.CheckPolicy(models.Policy{"component": "Bad", "log_level": "TRACE"})
	assert.Equal(t, []string{
		strings.Replace(invalidNameFormat, "%s", "Bad", 1),
		"Invalid log level: TRACE. Allowed levels: ['INFO']",
		"Missing required field: owner",
	}, got)
}

func TestValidator_NamingReportsAtNamingSource(t *testing.T) {
	dir := writeRules(t, map[string]string{
		"agents.rules.yaml":    "agents:\n  other: {}\n",
		"logging.rules.yaml":   "logging:\n  allowed_levels: [INFO]\n",
		"naming.rules.yaml":    "naming: {}\n",
		"structure.rules.yaml": "structure:\n  required_fields: [owner]\n",
	})
	_, v := newTestValidator(dir)

	got := v.CheckPolicy(models.Policy{"component": "Bad", "log_level": "TRACE"})
	assert.Equal(t, []string{
		"Invalid log level: TRACE. Allowed levels: ['INFO']",
		strings.Replace(invalidNameFormat, "%s", "Bad", 1),
		"Missing required field: owner",
	}, got)
}

func TestValidator_MissingSourceIsSkipped(t *testing.T) {
	dir := writeRules(t, map[string]string{
		"structure.rules.yaml": "structure:\n  required_fields: [owner]\n",
		"logging.rules.yaml":   "logging:\n  allowed_levels: [INFO]\n",
	})
	loader, v := newTestValidator(dir)

	tests := []struct {
		name    string
		policy  models.Policy
		sources []string
		want    []string
	}{
		{
			name:    "only a missing source",
			policy:  models.Policy{"component": "graph_engine"},
			sources: []string{filepath.Join(dir, "nonexistent.rules.yaml")},
			want:    []string{},
		},
		{
			name:   "missing source between existing ones",
			policy: models.Policy{"component": "a", "log_level": "TRACE"},
			sources: []string{
				filepath.Join(loader.Dir(), "structure.rules.yaml"),
				filepath.Join(dir, "missing.rules.yaml"),
				filepath.Join(loader.Dir(), "logging.rules.yaml"),
			},
			want: []string{
				"Missing required field: owner",
				"Invalid log level: TRACE. Allowed levels: ['INFO']",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, v.CheckPolicyAgainst(tt.policy, tt.sources))
		})
	}
}

func TestValidator_ParseErrorKeepsAccumulatedViolations(t *testing.T) {
	dir := writeRules(t, map[string]string{
		"structure.rules.yaml": "structure:\n  required_fields: [owner]\n",
		"broken.rules.yaml":    "broken: [unclosed\n",
		"logging.rules.yaml":   "logging:\n  allowed_levels: [INFO]\n",
	})
	loader, v := newTestValidator(dir)

	got := v.CheckPolicyAgainst(models.Policy{"component": "a", "log_level": "TRACE"}, []string{
		filepath.Join(loader.Dir(), "structure.rules.yaml"),
		filepath.Join(loader.Dir(), "broken.rules.yaml"),
		filepath.Join(loader.Dir(), "logging.rules.yaml"),
	})

	require.Len(t, got, 2)
	assert.Equal(t, "Missing required field: owner", got[0])
	assert.True(t, strings.HasPrefix(got[1], "Error during rule validation: invalid rule source "), got[1])
}

func TestFormatList(t *testing.T) {
	tests := []struct {
		name  string
		items []interface{}
		want  string
	}{
		{"empty", []interface{}{}, "[]"},
		{"strings", []interface{}{"DEBUG", "INFO"}, "['DEBUG', 'INFO']"},
		{"numbers", []interface{}{1, 2.5, float64(3)}, "[1, 2.5, 3.0]"},
		{"bools and null", []interface{}{true, false, nil}, "[True, False, None]"},
		{"quote inside string", []interface{}{"it's"}, `["it's"]`},
		{"nested", []interface{}{[]interface{}{"a"}}, "[['a']]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatList(tt.items))
		})
	}
}

func TestValidator_ParseErrorBecomesViolation(t *testing.T) {
	dir := writeRules(t, map[string]string{
		"structure.rules.yaml": "structure: [unclosed\n",
	})
	_, v := newTestValidator(dir)

	got := v.CheckPolicy(models.Policy{"component": "a"})
	require.Len(t, got, 1)
	assert.True(t, strings.HasPrefix(got[0], "Error during rule validation: invalid rule source "), got[0])
}

func TestValidator_InvalidOverrideRegex(t *testing.T) {
	dir := writeRules(t, map[string]string{
		"naming.rules.yaml": "naming:\n  component_pattern:\n    regex: \"([a-z\"\n",
	})
	_, v := newTestValidator(dir)

	got := v.CheckPolicy(models.Policy{"component": "abc"})
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "invalid component_pattern regex")
}

func TestValidator_Idempotent(t *testing.T) {
	dir := writeRules(t, map[string]string{
		"structure.rules.yaml": "structure:\n  required_fields: [owner]\n",
		"naming.rules.yaml":    "naming:\n  component_pattern:\n    regex: \"^svc_\"\n",
	})
	_, v := newTestValidator(dir)

	policy := models.Policy{"component": "Graph"}
	first := v.CheckPolicy(policy)
	second := v.CheckPolicy(policy)
	assert.Equal(t, first, second)
	assert.Len(t, first, 3)
}

func TestValidator_ShippedRules(t *testing.T) {
	_, v := newTestValidator(filepath.Join("..", "..", "config", "rules"))

	policy := models.Policy{
		"component":           "graph_engine",
		"enabled":             true,
		"log_each_step":       true,
		"fallback_on_failure": false,
		"log_level":           "INFO",
		"capabilities":        []interface{}{"read_memory", "call_llm"},
	}
	assert.Empty(t, v.CheckPolicy(policy))
}
