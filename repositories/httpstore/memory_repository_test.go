package httpstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/mintresearch/agent-engine/repositories"
	"github.com/mintresearch/agent-engine/repositories/repotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeMemoryService serves the memory API from a map
type fakeMemoryService struct {
	mu   sync.Mutex
	data map[string]json.RawMessage
}

func (f *fakeMemoryService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	writeData := func(v interface{}) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"data": v})
	}

	switch {
	case r.URL.Path == "/health":
		writeData("ok")
	case r.URL.Path == "/memory" && r.Method == http.MethodGet:
		keys := make([]string, 0, len(f.data))
		for k := range f.data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		writeData(keys)
	case strings.HasPrefix(r.URL.Path, "/memory/"):
		key := strings.TrimPrefix(r.URL.Path, "/memory/")
		switch r.Method {
		case http.MethodGet:
			value, ok := f.data[key]
			if !ok {
				http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
				return
			}
			writeData(value)
		case http.MethodPost:
			var body envelope
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			f.data[key] = body.Data
			writeData(map[string]string{"key": key})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newFakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(&fakeMemoryService{data: make(map[string]json.RawMessage)})
	t.Cleanup(server.Close)
	return server
}

func TestMemoryRepository_Contract(t *testing.T) {
	repotest.RunMemoryRepositoryTests(t, func(t *testing.T) repositories.MemoryRepository {
		server := newFakeServer(t)
		repo := NewMemoryRepository(server.URL+"/", server.Client(), zap.NewNop())
		t.Cleanup(func() { repo.Close() })
		return repo
	})
}

func TestMemoryRepository_ServiceDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	repo := NewMemoryRepository(server.URL, nil, zap.NewNop())
	ctx := context.Background()

	_, err := repo.Get(ctx, "context")
	require.Error(t, err)
	assert.NotErrorIs(t, err, repositories.ErrMemoryNotFound)
	assert.Contains(t, err.Error(), "status 502")

	assert.Error(t, repo.Ping(ctx))

	called := false
	err = repo.Update(ctx, "context", func(json.RawMessage, bool) (json.RawMessage, error) {
		called = true
		return json.RawMessage(`{}`), nil
	})
	assert.Error(t, err)
	assert.False(t, called)
}

func TestMemoryRepository_EscapesKeys(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	repo := NewMemoryRepository(server.URL, nil, zap.NewNop())
	_, err := repo.Get(context.Background(), "a b/c")
	assert.ErrorIs(t, err, repositories.ErrMemoryNotFound)
	assert.Equal(t, "/memory/a%20b%2Fc", gotPath)
}
