package persist

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "mnemon:alice:blocks", Key("alice", "blocks"))
	assert.Equal(t, "mnemon:anonymous:turns", Key("anonymous", "turns"))
}

// backendConformance exercises the Backend contract shared by every
// implementation.
func backendConformance(t *testing.T, backend Backend) {
	t.Helper()
	ctx := context.Background()

	// Absent key: found false, no error.
	_, found, err := backend.Get(ctx, "mnemon:test:absent")
	require.NoError(t, err)
	assert.False(t, found)

	// Round trip.
	require.NoError(t, backend.Set(ctx, "mnemon:test:blocks", `{"a":1}`))
	value, found, err := backend.Get(ctx, "mnemon:test:blocks")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, `{"a":1}`, value)

	// Overwrite.
	require.NoError(t, backend.Set(ctx, "mnemon:test:blocks", `{"a":2}`))
	value, _, err = backend.Get(ctx, "mnemon:test:blocks")
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, value)

	// Remove, including removing an absent key.
	require.NoError(t, backend.Remove(ctx, "mnemon:test:blocks"))
	_, found, err = backend.Get(ctx, "mnemon:test:blocks")
	require.NoError(t, err)
	assert.False(t, found)
	require.NoError(t, backend.Remove(ctx, "mnemon:test:blocks"))
}

func TestMemoryBackend(t *testing.T) {
	backend := NewMemoryBackend()
	backendConformance(t, backend)

	require.NoError(t, backend.Close())
	err := backend.Set(context.Background(), "k", "v")
	assert.ErrorIs(t, err, ErrBackendClosed)
}

func TestRedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	backend := NewRedisBackendFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer backend.Close()

	backendConformance(t, backend)
}

func TestAdapterRoundTrip(t *testing.T) {
	backend := NewMemoryBackend()
	adapter := NewAdapter(backend, "alice", slog.Default())

	type snapshot struct {
		Count int      `json:"count"`
		Names []string `json:"names"`
	}

	ctx := context.Background()
	adapter.Save(ctx, "blocks", snapshot{Count: 3, Names: []string{"persona"}})

	var loaded snapshot
	require.True(t, adapter.Load(ctx, "blocks", &loaded))
	assert.Equal(t, 3, loaded.Count)
	assert.Equal(t, []string{"persona"}, loaded.Names)
}

func TestAdapterNilBackend(t *testing.T) {
	adapter := NewAdapter(nil, "alice", slog.Default())
	assert.False(t, adapter.Enabled())

	ctx := context.Background()
	adapter.Save(ctx, "blocks", map[string]int{"a": 1})

	var loaded map[string]int
	assert.False(t, adapter.Load(ctx, "blocks", &loaded))
}

func TestAdapterMalformedSnapshot(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()
	require.NoError(t, backend.Set(ctx, Key("alice", "blocks"), "{not json"))

	adapter := NewAdapter(backend, "alice", slog.Default())
	var loaded map[string]int
	assert.False(t, adapter.Load(ctx, "blocks", &loaded))
}

// failingBackend errors on every call.
type failingBackend struct{}

func (failingBackend) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("backend down")
}
func (failingBackend) Set(context.Context, string, string) error { return errors.New("backend down") }
func (failingBackend) Remove(context.Context, string) error      { return errors.New("backend down") }
func (failingBackend) Close() error                              { return nil }

func TestAdapterBackendFailureIsSilent(t *testing.T) {
	adapter := NewAdapter(failingBackend{}, "alice", slog.Default())
	ctx := context.Background()

	// Neither call panics or surfaces the error.
	adapter.Save(ctx, "blocks", map[string]int{"a": 1})
	var loaded map[string]int
	assert.False(t, adapter.Load(ctx, "blocks", &loaded))
	adapter.Clear(ctx, "blocks", "turns")
}

func TestAdapterClear(t *testing.T) {
	backend := NewMemoryBackend()
	adapter := NewAdapter(backend, "alice", slog.Default())
	ctx := context.Background()

	adapter.Save(ctx, "blocks", 1)
	adapter.Save(ctx, "turns", 2)
	require.Equal(t, 2, backend.Len())

	adapter.Clear(ctx, "blocks", "turns")
	assert.Equal(t, 0, backend.Len())
}
