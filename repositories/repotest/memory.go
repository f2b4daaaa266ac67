// Package repotest holds behaviour tests shared by every MemoryRepository backend.
package repotest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/mintresearch/agent-engine/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunMemoryRepositoryTests exercises the MemoryRepository contract against a fresh repository per subtest
func RunMemoryRepositoryTests(t *testing.T, newRepo func(t *testing.T) repositories.MemoryRepository) {
	t.Helper()
	ctx := context.Background()

	t.Run("get missing key", func(t *testing.T) {
		repo := newRepo(t)

		_, err := repo.Get(ctx, "context")
		assert.ErrorIs(t, err, repositories.ErrMemoryNotFound)
	})

	t.Run("put then get", func(t *testing.T) {
		repo := newRepo(t)

		require.NoError(t, repo.Put(ctx, "context", json.RawMessage(`{"topic":"rules"}`)))

		data, err := repo.Get(ctx, "context")
		require.NoError(t, err)
		assert.JSONEq(t, `{"topic":"rules"}`, string(data))
	})

	t.Run("put replaces", func(t *testing.T) {
		repo := newRepo(t)

		require.NoError(t, repo.Put(ctx, "context", json.RawMessage(`{"a":1}`)))
		require.NoError(t, repo.Put(ctx, "context", json.RawMessage(`{"a":2}`)))

		data, err := repo.Get(ctx, "context")
		require.NoError(t, err)
		assert.JSONEq(t, `{"a":2}`, string(data))
	})

	t.Run("keys are sorted", func(t *testing.T) {
		repo := newRepo(t)

		require.NoError(t, repo.Put(ctx, "b", json.RawMessage(`1`)))
		require.NoError(t, repo.Put(ctx, "a", json.RawMessage(`2`)))

		keys, err := repo.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, keys)
	})

	t.Run("update error leaves value untouched", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Put(ctx, "history", json.RawMessage(`[1]`)))

		err := repo.Update(ctx, "history", func(json.RawMessage, bool) (json.RawMessage, error) {
			return nil, fmt.Errorf("refused")
		})
		require.Error(t, err)

		data, err := repo.Get(ctx, "history")
		require.NoError(t, err)
		assert.JSONEq(t, `[1]`, string(data))
	})

	t.Run("concurrent updates are not lost", func(t *testing.T) {
		repo := newRepo(t)
		const writers = 20

		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				errs <- repo.Update(ctx, "history", func(current json.RawMessage, found bool) (json.RawMessage, error) {
					var list []int
					if found {
						if err := json.Unmarshal(current, &list); err != nil {
							return nil, err
						}
					}
					list = append(list, n)
					return json.Marshal(list)
				})
			}(i)
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			require.NoError(t, err)
		}

		data, err := repo.Get(ctx, "history")
		require.NoError(t, err)

		var list []int
		require.NoError(t, json.Unmarshal(data, &list))
		assert.Len(t, list, writers)
	})

	t.Run("ping", func(t *testing.T) {
		repo := newRepo(t)
		assert.NoError(t, repo.Ping(ctx))
	})
}
