// Package httpstore reaches a remote memory service over HTTP.
//
// The remote service exposes the memory table under a base URL:
//
//	GET  <base>/memory         -> {"data": ["key", ...]}
//	GET  <base>/memory/{key}   -> {"data": <value>}, 404 when unset
//	POST <base>/memory/{key}   <- {"data": <value>}
//	GET  <base>/health
package httpstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/mintresearch/agent-engine/repositories"
	"go.uber.org/zap"
)

var _ repositories.MemoryRepository = (*MemoryRepository)(nil)

type envelope struct {
	Data json.RawMessage `json:"data"`
}

// MemoryRepository implements repositories.MemoryRepository against a remote
// memory service. Update is serialized per key within this process only.
type MemoryRepository struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewMemoryRepository creates a client for the memory service at baseURL
func NewMemoryRepository(baseURL string, httpClient *http.Client, logger *zap.Logger) *MemoryRepository {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &MemoryRepository{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
		locks:      make(map[string]*sync.Mutex),
	}
}

// Get retrieves the value stored under key
func (r *MemoryRepository) Get(ctx context.Context, key string) (json.RawMessage, error) {
	var env envelope
	status, err := r.do(ctx, http.MethodGet, r.keyURL(key), nil, &env)
	if status == http.StatusNotFound {
		return nil, repositories.ErrMemoryNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, repositories.ErrMemoryNotFound
	}
	return env.Data, nil
}

// Put stores value under key
func (r *MemoryRepository) Put(ctx context.Context, key string, value json.RawMessage) error {
	if !json.Valid(value) {
		return fmt.Errorf("memory value for %s is not valid JSON", key)
	}
	_, err := r.do(ctx, http.MethodPost, r.keyURL(key), envelope{Data: value}, nil)
	return err
}

// Update runs read, compute and write while holding the key's lock
func (r *MemoryRepository) Update(ctx context.Context, key string, fn repositories.UpdateFunc) error {
	lock := r.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	current, err := r.Get(ctx, key)
	found := true
	if errors.Is(err, repositories.ErrMemoryNotFound) {
		found = false
	} else if err != nil {
		return err
	}

	next, err := fn(current, found)
	if err != nil {
		return err
	}
	return r.Put(ctx, key, next)
}

// Keys lists the stored keys as returned by the service
func (r *MemoryRepository) Keys(ctx context.Context) ([]string, error) {
	var env envelope
	if _, err := r.do(ctx, http.MethodGet, r.baseURL+"/memory", nil, &env); err != nil {
		return nil, err
	}

	keys := []string{}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &keys); err != nil {
			return nil, fmt.Errorf("failed to decode memory keys: %w", err)
		}
	}
	return keys, nil
}

// Ping calls the service health endpoint
func (r *MemoryRepository) Ping(ctx context.Context) error {
	_, err := r.do(ctx, http.MethodGet, r.baseURL+"/health", nil, nil)
	return err
}

// Close releases idle connections
func (r *MemoryRepository) Close() error {
	r.httpClient.CloseIdleConnections()
	return nil
}

func (r *MemoryRepository) keyURL(key string) string {
	return r.baseURL + "/memory/" + url.PathEscape(key)
}

func (r *MemoryRepository) lockFor(key string) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()

	lock, ok := r.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[key] = lock
	}
	return lock
}

// do performs a request and decodes a 2xx body into out when out is non-nil.
// The status code is returned even when the request fails.
func (r *MemoryRepository) do(ctx context.Context, method, target string, in, out interface{}) (int, error) {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("memory service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		r.logger.Debug("memory service returned an error",
			zap.String("method", method),
			zap.String("url", target),
			zap.Int("status", resp.StatusCode),
		)
		return resp.StatusCode, fmt.Errorf("memory service returned status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode memory response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
