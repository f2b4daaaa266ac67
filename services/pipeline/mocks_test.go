package pipeline

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/mintresearch/agent-engine/repositories"
	"github.com/stretchr/testify/mock"
)

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

type MockTool struct {
	mock.Mock
}

func (m *MockTool) Run(ctx context.Context, command string) (string, error) {
	args := m.Called(ctx, command)
	return args.String(0), args.Error(1)
}

// echoGenerator returns its prompt unchanged
type echoGenerator struct{}

func (echoGenerator) Generate(_ context.Context, prompt string) (string, error) {
	return prompt, nil
}

// mapMemory is an in-process MemoryStore
type mapMemory struct {
	mu      sync.Mutex
	data    map[string]json.RawMessage
	getErr  error
	saveErr error
}

func newMapMemory() *mapMemory {
	return &mapMemory{data: make(map[string]json.RawMessage)}
}

func (m *mapMemory) Get(_ context.Context, key string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, repositories.ErrMemoryNotFound
	}
	return v, nil
}

func (m *mapMemory) Update(_ context.Context, key string, fn repositories.UpdateFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	current, found := m.data[key]
	next, err := fn(current, found)
	if err != nil {
		return err
	}
	m.data[key] = next
	return nil
}
