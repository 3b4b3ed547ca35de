package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dachid/flowscope/internal/shared/types"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "traces.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sqlite,
	}
}

func makeTrace(id, sessionID string) *types.Trace {
	return &types.Trace{
		ID:        id,
		SessionID: sessionID,
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
		Type:      types.TypePrompt,
		Status:    types.StatusCompleted,
		Data:      map[string]interface{}{"text": "hello"},
		Metadata:  map[string]interface{}{"language": "python"},
	}
}

func TestSaveTraceIdempotent(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			tr := makeTrace("t1", "s1")
			require.NoError(t, store.SaveTrace(ctx, tr))

			// Resubmit with updated status; must not duplicate.
			tr.Status = types.StatusFailed
			require.NoError(t, store.SaveTrace(ctx, tr))

			traces, err := store.LoadSessionTraces(ctx, "s1")
			require.NoError(t, err)
			require.Len(t, traces, 1)
			assert.Equal(t, types.StatusFailed, traces[0].Status)
		})
	}
}

func TestLoadSessionTracesOrder(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			ids := []string{"a", "b", "c", "d"}
			for _, id := range ids {
				require.NoError(t, store.SaveTrace(ctx, makeTrace(id, "s1")))
			}
			require.NoError(t, store.SaveTrace(ctx, makeTrace("other", "s2")))

			traces, err := store.LoadSessionTraces(ctx, "s1")
			require.NoError(t, err)
			require.Len(t, traces, len(ids))
			for i, id := range ids {
				assert.Equal(t, id, traces[i].ID)
			}

			// Unknown session yields empty, not an error.
			empty, err := store.LoadSessionTraces(ctx, "nope")
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestLoadTracesByIDsSkipsUnknown(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, store.SaveTrace(ctx, makeTrace("t1", "s1")))
			require.NoError(t, store.SaveTrace(ctx, makeTrace("t2", "s1")))

			traces, err := store.LoadTracesByIDs(ctx, []string{"t1", "ghost", "t2"})
			require.NoError(t, err)
			assert.Len(t, traces, 2)

			none, err := store.LoadTracesByIDs(ctx, nil)
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestTraceRoundTrip(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			parent := "t0"
			duration := 42.5
			tr := makeTrace("t1", "s1")
			tr.ParentID = &parent
			tr.DurationMs = &duration

			require.NoError(t, store.SaveTrace(ctx, tr))

			traces, err := store.LoadTracesByIDs(ctx, []string{"t1"})
			require.NoError(t, err)
			require.Len(t, traces, 1)

			got := traces[0]
			assert.Equal(t, tr.ID, got.ID)
			assert.Equal(t, tr.SessionID, got.SessionID)
			require.NotNil(t, got.ParentID)
			assert.Equal(t, parent, *got.ParentID)
			require.NotNil(t, got.DurationMs)
			assert.Equal(t, duration, *got.DurationMs)
			assert.Equal(t, "hello", got.Data["text"])
			assert.Equal(t, "python", got.Metadata["language"])
			assert.True(t, tr.Timestamp.Equal(got.Timestamp))
		})
	}
}

func TestSessionLifecycle(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.LoadSession(ctx, "s1")
			assert.ErrorIs(t, err, ErrNotFound)

			sess := &types.Session{
				ID:        "s1",
				Name:      "debug run",
				StartTime: time.Now().UTC().Truncate(time.Millisecond),
				Status:    types.SessionActive,
				Metadata:  map[string]interface{}{"app": "demo"},
			}
			require.NoError(t, store.SaveSession(ctx, sess))

			require.NoError(t, store.UpdateSessionCounters(ctx, "s1", CounterDelta{Traces: 3, Successes: 2, Errors: 1}))

			got, err := store.LoadSession(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, "debug run", got.Name)
			assert.Equal(t, types.SessionActive, got.Status)
			assert.Equal(t, 3, got.TotalTraces)
			assert.Equal(t, 2, got.SuccessCount)
			assert.Equal(t, 1, got.ErrorCount)
			assert.Equal(t, "demo", got.Metadata["app"])

			// Explicit completion with end time.
			end := time.Now().UTC().Truncate(time.Millisecond)
			got.Status = types.SessionCompleted
			got.EndTime = &end
			require.NoError(t, store.SaveSession(ctx, got))

			reloaded, err := store.LoadSession(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, types.SessionCompleted, reloaded.Status)
			require.NotNil(t, reloaded.EndTime)
			assert.True(t, end.Equal(*reloaded.EndTime))

			err = store.UpdateSessionCounters(ctx, "ghost", CounterDelta{Traces: 1})
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}
