package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mintresearch/agent-engine/models"
	"github.com/mintresearch/agent-engine/repositories"
)

// TextGenerator produces text for a prompt
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ToolRunner executes a tool command and returns its textual result
type ToolRunner interface {
	Run(ctx context.Context, command string) (string, error)
}

// MemoryStore is the part of the shared memory table the pipeline uses.
// Get returns repositories.ErrMemoryNotFound for unset keys.
type MemoryStore interface {
	Get(ctx context.Context, key string) (json.RawMessage, error)
	Update(ctx context.Context, key string, fn repositories.UpdateFunc) error
}

// Stage identifies one step of the pipeline
type Stage int

const (
	StageMemoryLookup Stage = iota
	StageToolDecider
	StageToolExecute
	StageLLMInfer
	StageResponseFormatter
	StageDone
)

// String returns the stage name used in visited-stage traces
func (s Stage) String() string {
	switch s {
	case StageMemoryLookup:
		return "memory_lookup"
	case StageToolDecider:
		return "tool_decider"
	case StageToolExecute:
		return "tool_execute"
	case StageLLMInfer:
		return "llm_infer"
	case StageResponseFormatter:
		return "response_formatter"
	case StageDone:
		return "done"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// RequestState is the working state of one invocation. It is created per
// call and never shared between invocations.
type RequestState struct {
	Input       string
	Policy      models.Policy
	Context     interface{}
	History     []json.RawMessage
	UseTool     bool
	ToolCommand string
	ToolResult  string
	LLMResponse string
	Output      string
	Visited     []string
}

// NewRequestState creates the initial state for an invocation
func NewRequestState(input string, policy models.Policy) *RequestState {
	if policy == nil {
		policy = models.Policy{}
	}
	return &RequestState{
		Input:   input,
		Policy:  policy,
		Context: map[string]interface{}{},
		History: []json.RawMessage{},
		Visited: []string{},
	}
}

func (st *RequestState) visit(stage Stage) {
	st.Visited = append(st.Visited, stage.String())
}

// StageError reports the stage an invocation failed in
type StageError struct {
	Stage Stage
	Err   error
}

// Error implements the error interface
func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *StageError) Unwrap() error {
	return e.Err
}
