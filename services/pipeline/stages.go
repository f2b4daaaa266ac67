package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mintresearch/agent-engine/internal/observability"
	"github.com/mintresearch/agent-engine/models"
	"github.com/mintresearch/agent-engine/repositories"
	"github.com/mintresearch/agent-engine/services"
	"go.uber.org/zap"
)

// historyWindow is how many past exchanges are included in a prompt
const historyWindow = 3

// Collaborator names used in errors and metrics
const (
	CollaboratorLLM    = "llm"
	CollaboratorTool   = "tool"
	CollaboratorMemory = "memory"
)

// Collaborators are the external services the stages call
type Collaborators struct {
	Generator TextGenerator
	Tool      ToolRunner
	Memory    MemoryStore
}

// Timeouts bound each collaborator call. Zero means no extra deadline.
type Timeouts struct {
	LLM    time.Duration
	Tool   time.Duration
	Memory time.Duration
}

// Stages implements the pipeline steps over a set of collaborators
type Stages struct {
	collab   Collaborators
	timeouts Timeouts
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewStages creates the stage set
func NewStages(collab Collaborators, timeouts Timeouts, metrics *observability.Metrics, logger *zap.Logger) *Stages {
	return &Stages{
		collab:   collab,
		timeouts: timeouts,
		metrics:  metrics,
		logger:   logger,
	}
}

// Run dispatches to the given stage
func (s *Stages) Run(ctx context.Context, stage Stage, st *RequestState) error {
	switch stage {
	case StageMemoryLookup:
		return s.MemoryLookup(ctx, st)
	case StageToolDecider:
		return s.ToolDecider(ctx, st)
	case StageToolExecute:
		return s.ToolExecute(ctx, st)
	case StageLLMInfer:
		return s.LLMInfer(ctx, st)
	case StageResponseFormatter:
		return s.ResponseFormatter(ctx, st)
	default:
		return fmt.Errorf("unknown stage %s", stage)
	}
}

// MemoryLookup loads the stored context and conversation history.
// Unset keys leave the empty defaults in place; stored values of any shape
// are accepted.
func (s *Stages) MemoryLookup(ctx context.Context, st *RequestState) error {
	s.logger.Debug("memory lookup", zap.String("input", truncate(st.Input, 50)))

	memCtx, cancel := withTimeout(ctx, s.timeouts.Memory)
	defer cancel()

	raw, err := s.readMemory(memCtx, models.MemoryKeyContext)
	if err != nil {
		return err
	}
	if stored := decodeContext(raw); stored != nil {
		st.Context = stored
	}

	raw, err = s.readMemory(memCtx, models.MemoryKeyConversationHistory)
	if err != nil {
		return err
	}
	if history := decodeHistory(raw); history != nil {
		st.History = history
	}

	st.visit(StageMemoryLookup)
	return nil
}

// ToolDecider reads the tool decision from the policy
func (s *Stages) ToolDecider(ctx context.Context, st *RequestState) error {
	st.UseTool = st.Policy.UseTool()
	st.ToolCommand = st.Policy.ToolCommand()

	s.logger.Debug("tool decision", zap.Bool("use_tool", st.UseTool))
	st.visit(StageToolDecider)
	return nil
}

// ToolExecute runs the policy's tool command. A failing tool is reported in
// the tool result and never stops the pipeline.
func (s *Stages) ToolExecute(ctx context.Context, st *RequestState) error {
	if !st.UseTool {
		return nil
	}

	s.logger.Debug("executing tool", zap.String("command", st.ToolCommand))

	toolCtx, cancel := withTimeout(ctx, s.timeouts.Tool)
	defer cancel()

	result, err := s.collab.Tool.Run(toolCtx, st.ToolCommand)
	s.metrics.RecordCollaboratorCall(CollaboratorTool, err)
	if err != nil {
		s.logger.Warn("tool execution failed", zap.String("command", st.ToolCommand), zap.Error(err))
		st.ToolResult = fmt.Sprintf("Error executing tool: %v", err)
	} else {
		st.ToolResult = result
	}

	st.visit(StageToolExecute)
	return nil
}

// LLMInfer builds the prompt, generates a response and appends the exchange
// to the stored conversation history
func (s *Stages) LLMInfer(ctx context.Context, st *RequestState) error {
	prompt := BuildPrompt(st)
	s.logger.Debug("generating response", zap.String("prompt", truncate(prompt, 50)))

	llmCtx, cancel := withTimeout(ctx, s.timeouts.LLM)
	response, err := s.collab.Generator.Generate(llmCtx, prompt)
	cancel()
	s.metrics.RecordCollaboratorCall(CollaboratorLLM, err)
	if err != nil {
		return services.WrapCollaborator(CollaboratorLLM, err)
	}
	st.LLMResponse = response

	entry, err := json.Marshal(models.HistoryEntry{User: st.Input, System: response})
	if err != nil {
		return err
	}
	memCtx, cancel := withTimeout(ctx, s.timeouts.Memory)
	defer cancel()

	err = s.collab.Memory.Update(memCtx, models.MemoryKeyConversationHistory, appendHistory(entry))
	s.metrics.RecordCollaboratorCall(CollaboratorMemory, err)
	if err != nil {
		return services.WrapCollaborator(CollaboratorMemory, err)
	}
	st.History = append(st.History, entry)

	st.visit(StageLLMInfer)
	return nil
}

// ResponseFormatter produces the final output text
func (s *Stages) ResponseFormatter(ctx context.Context, st *RequestState) error {
	if st.ToolResult != "" {
		st.Output = fmt.Sprintf("Tool output: %s\n\nResponse: %s", st.ToolResult, st.LLMResponse)
	} else {
		st.Output = st.LLMResponse
	}

	st.visit(StageResponseFormatter)
	return nil
}

// BuildPrompt renders the prompt sent to the text generator
func BuildPrompt(st *RequestState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User input: %s\n", st.Input)

	if !isEmptyValue(st.Context) {
		fmt.Fprintf(&b, "Context: %s\n", renderValue(st.Context))
	}

	if len(st.History) > 0 {
		b.WriteString("Conversation history:\n")
		start := len(st.History) - historyWindow
		if start < 0 {
			start = 0
		}
		for _, entry := range st.History[start:] {
			fmt.Fprintf(&b, "- %s\n", historyLine(entry))
		}
	}

	if st.ToolResult != "" {
		fmt.Fprintf(&b, "Tool result: %s\n", st.ToolResult)
	}
	return b.String()
}

func (s *Stages) readMemory(ctx context.Context, key string) (json.RawMessage, error) {
	raw, err := s.collab.Memory.Get(ctx, key)
	if errors.Is(err, repositories.ErrMemoryNotFound) {
		s.metrics.RecordCollaboratorCall(CollaboratorMemory, nil)
		return nil, nil
	}
	s.metrics.RecordCollaboratorCall(CollaboratorMemory, err)
	if err != nil {
		return nil, services.WrapCollaborator(CollaboratorMemory, err)
	}
	return raw, nil
}

// appendHistory appends entry to the stored history, keeping entries it
// does not understand as they are. A stored value that is not a list becomes
// the first entry.
func appendHistory(entry json.RawMessage) repositories.UpdateFunc {
	return func(current json.RawMessage, found bool) (json.RawMessage, error) {
		var history []json.RawMessage
		if found {
			history = decodeHistory(current)
		}
		return json.Marshal(append(history, entry))
	}
}

// decodeContext returns the stored context value, or nil when it is unset
func decodeContext(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return string(raw)
	}
	return value
}

// decodeHistory splits a stored history into its entries. Anything other
// than a list is kept as a single entry.
func decodeHistory(raw json.RawMessage) []json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	var history []json.RawMessage
	if err := json.Unmarshal(trimmed, &history); err != nil {
		return []json.RawMessage{trimmed}
	}
	return history
}

// historyLine renders one stored entry for the prompt: exchanges through
// HistoryEntry, strings as they are, anything else as JSON
func historyLine(raw json.RawMessage) string {
	var fields map[string]json.RawMessage
	if json.Unmarshal(raw, &fields) == nil {
		_, hasUser := fields["user"]
		_, hasSystem := fields["system"]
		var entry models.HistoryEntry
		if (hasUser || hasSystem) && json.Unmarshal(raw, &entry) == nil {
			return entry.String()
		}
	}
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return string(raw)
	}
	return renderValue(value)
}

func renderValue(value interface{}) string {
	if text, ok := value.(string); ok {
		return text
	}
	rendered, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value)
	}
	return string(rendered)
}

// isEmptyValue reports whether a decoded context carries nothing to show
func isEmptyValue(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case bool:
		return !v
	case float64:
		return v == 0
	case map[string]interface{}:
		return len(v) == 0
	case []interface{}:
		return len(v) == 0
	default:
		return false
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
