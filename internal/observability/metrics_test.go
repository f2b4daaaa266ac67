package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.RecordInvocation("success", 20*time.Millisecond)
	m.RecordInvocation("error", time.Millisecond)
	m.RecordStageVisit("memory_lookup")
	m.RecordStageVisit("memory_lookup")
	m.RecordStageError("llm_infer")
	m.RecordCollaboratorCall("llm", nil)
	m.RecordCollaboratorCall("llm", errors.New("down"))
	m.RecordPolicyCheck(0)
	m.RecordPolicyCheck(3)
	m.RecordRuleLoadError("naming")
	m.RecordRuleReload(true)
	m.RecordHTTPRequest(http.MethodPost, "/mcp/infer", http.StatusOK, 5*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.invocationsTotal.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.invocationsTotal.WithLabelValues("error")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.stageVisitsTotal.WithLabelValues("memory_lookup")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.stageErrorsTotal.WithLabelValues("llm_infer")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.collaboratorCalls.WithLabelValues("llm", "error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.policyChecksTotal.WithLabelValues("valid")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.policyChecksTotal.WithLabelValues("invalid")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.violationsTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ruleLoadErrors.WithLabelValues("naming")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("POST", "/mcp/infer", "200")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.invocationDuration))
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordInvocation("success", time.Second)
		m.RecordStageVisit("llm_infer")
		m.RecordPolicyCheck(2)
		m.RecordEventDropped("unit")
		m.RecordHTTPRequest("GET", "/health", 200, time.Millisecond)
	})
	assert.Nil(t, m.Registry())
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics(nil)
	m.RecordStageVisit("tool_decider")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `agent_engine_stage_visits_total{stage="tool_decider"} 1`)
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		wantErr bool
	}{
		{"json info", "info", "json", false},
		{"console debug", "DEBUG", "console", false},
		{"bad level", "loud", "json", true},
		{"bad format", "info", "xml", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.level, tt.format)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}
