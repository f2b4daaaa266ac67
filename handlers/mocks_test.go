package handlers

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mintresearch/agent-engine/models"
	"github.com/mintresearch/agent-engine/services/interaction"
	"github.com/mintresearch/agent-engine/services/rules"
	"github.com/mintresearch/agent-engine/services/runtime"
	"github.com/stretchr/testify/mock"
)

// MockInteractionService is a mock implementation of InteractionService
type MockInteractionService struct {
	mock.Mock
}

func (m *MockInteractionService) Invoke(ctx context.Context, input string, policy models.Policy) *interaction.Result {
	args := m.Called(ctx, input, policy)
	return args.Get(0).(*interaction.Result)
}

// MockRulesService is a mock implementation of RulesService
type MockRulesService struct {
	mock.Mock
}

func (m *MockRulesService) List(ctx context.Context) (*rules.ListResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*rules.ListResult), args.Error(1)
}

func (m *MockRulesService) Check(ctx context.Context, policy models.Policy, ruleFiles []string) (*rules.CheckResult, error) {
	args := m.Called(ctx, policy, ruleFiles)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*rules.CheckResult), args.Error(1)
}

// MockRuntimeService is a mock implementation of RuntimeService
type MockRuntimeService struct {
	mock.Mock
}

func (m *MockRuntimeService) Status(ctx context.Context) (*runtime.StatusResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*runtime.StatusResult), args.Error(1)
}

func (m *MockRuntimeService) Logs(ctx context.Context, unit string) (*runtime.LogsResult, error) {
	args := m.Called(ctx, unit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*runtime.LogsResult), args.Error(1)
}

func (m *MockRuntimeService) State(ctx context.Context, area string) (json.RawMessage, error) {
	args := m.Called(ctx, area)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

// MockPinger is a mock implementation of Pinger
type MockPinger struct {
	mock.Mock
}

func (m *MockPinger) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// decodeEnvelope decodes a {"data": ...} or error response body
func decodeEnvelope(t *testing.T, body []byte) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("invalid response body %q: %v", body, err)
	}
	return out
}
