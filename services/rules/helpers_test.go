package rules

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// writeRules creates a rules directory holding the given files
func writeRules(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func newTestValidator(dir string) (*Loader, *Validator) {
	loader := NewLoader(dir, zap.NewNop())
	return loader, NewValidator(loader, nil, zap.NewNop())
}

type recordedEvent struct {
	unit    string
	level   string
	event   string
	message string
	fields  map[string]interface{}
}

// recordingEvents captures events in memory
type recordingEvents struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingEvents) Log(unit, level, event, message string, fields map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{unit, level, event, message, fields})
}

func (r *recordingEvents) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.event
	}
	return out
}

func (r *recordingEvents) find(name string) (recordedEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.event == name {
			return ev, true
		}
	}
	return recordedEvent{}, false
}
