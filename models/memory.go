package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Memory keys read and written by the interaction pipeline
const (
	MemoryKeyContext             = "context"
	MemoryKeyConversationHistory = "conversation_history"
)

// MemoryRecord is one key/value entry of the shared memory store
type MemoryRecord struct {
	Key       string          `json:"key" db:"key"`
	Data      json.RawMessage `json:"data" db:"data"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the MemoryRecord model
func (MemoryRecord) TableName() string {
	return "agent_memory"
}

// NewMemoryRecord creates a new MemoryRecord instance
func NewMemoryRecord(key string, data json.RawMessage) *MemoryRecord {
	return &MemoryRecord{
		Key:       key,
		Data:      data,
		UpdatedAt: time.Now().UTC(),
	}
}

// HistoryEntry is one exchange of the conversation history
type HistoryEntry struct {
	User   string `json:"user"`
	System string `json:"system"`
}

// String renders the entry the way it appears in generated prompts
func (e HistoryEntry) String() string {
	return fmt.Sprintf("user: %s | system: %s", e.User, e.System)
}
