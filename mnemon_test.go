package mnemon

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/mnemon-ai/mnemon/config"
	"github.com/mnemon-ai/mnemon/event"
	"github.com/mnemon-ai/mnemon/persist"
	"github.com/mnemon-ai/mnemon/turn"
)

// clock is a mutable time source for driving session expiry.
type clock struct {
	current time.Time
}

func newClock() *clock {
	return &clock{current: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time          { return c.current }
func (c *clock) Advance(d time.Duration) { c.current = c.current.Add(d) }

func newManager(t *testing.T, backend persist.Backend, clk *clock, opts ...Option) *Manager {
	t.Helper()
	opts = append([]Option{
		WithBackend(backend),
		WithClock(clk.Now),
	}, opts...)
	m, err := New("alice", opts...)
	require.NoError(t, err)
	return m
}

func TestNewDefinesDefaultBlocks(t *testing.T) {
	m := newManager(t, nil, newClock())
	defer m.Close()

	for _, label := range []string{"persona", "subject-info", "task-state", "project-facts"} {
		_, ok := m.GetBlock(label)
		assert.True(t, ok, "default block %s missing", label)
	}
	assert.Equal(t, 4, m.Stats().BlockCount)
	assert.NotEmpty(t, m.Session().ID)
}

func TestAnonymousFallback(t *testing.T) {
	m, err := New("")
	require.NoError(t, err)
	defer m.Close()
	assert.Equal(t, AnonymousSubject, m.Subject())
}

func TestSessionExpiryAfterIdle(t *testing.T) {
	backend := persist.NewMemoryBackend()
	clk := newClock()

	m := newManager(t, backend, clk)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := m.AppendTurn(ctx, turn.RoleSubject, fmt.Sprintf("turn %d", i), "chat")
		require.NoError(t, err)
	}
	first := m.Session().ID
	require.NoError(t, m.Close())

	clk.Advance(31 * time.Minute)

	m2 := newManager(t, backend, clk)
	defer m2.Close()

	assert.NotEqual(t, first, m2.Session().ID, "expired session should rotate")
	assert.Equal(t, 0, m2.TurnCount(), "stale turns discarded after folding")

	summaries := m2.Summaries()
	require.Len(t, summaries, 1)
	assert.Equal(t, 5, summaries[0].TurnsFolded)
	assert.Equal(t, first, summaries[0].SessionID)
}

func TestSessionResumptionWithinTimeout(t *testing.T) {
	backend := persist.NewMemoryBackend()
	clk := newClock()

	m := newManager(t, backend, clk)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := m.AppendTurn(ctx, turn.RoleRespondent, fmt.Sprintf("reply %d", i), "chat")
		require.NoError(t, err)
	}
	first := m.Session().ID
	require.NoError(t, m.Close())

	clk.Advance(5 * time.Minute)

	m2 := newManager(t, backend, clk)
	defer m2.Close()

	assert.Equal(t, first, m2.Session().ID, "live session should resume")
	assert.Equal(t, 3, m2.TurnCount())
	assert.Empty(t, m2.Summaries())
}

func TestShortStaleSessionDiscardedWithoutSummary(t *testing.T) {
	backend := persist.NewMemoryBackend()
	clk := newClock()

	m := newManager(t, backend, clk)
	_, err := m.AppendTurn(context.Background(), turn.RoleSubject, "hi", "chat")
	require.NoError(t, err)
	require.NoError(t, m.Close())

	clk.Advance(31 * time.Minute)

	m2 := newManager(t, backend, clk)
	defer m2.Close()

	assert.Equal(t, 0, m2.TurnCount())
	assert.Empty(t, m2.Summaries(), "two or fewer turns are not worth a summary")
}

func TestThresholdCompaction(t *testing.T) {
	cfg := &config.Config{
		Compaction: &config.CompactionConfig{SummarizeThreshold: 80, KeepRecent: 24},
	}
	m := newManager(t, nil, newClock(), WithConfig(cfg))
	defer m.Close()

	var compacted []event.Event
	m.Subscribe(func(e event.Event) { compacted = append(compacted, e) }, event.KindBufferCompacted)

	ctx := context.Background()
	for i := 0; i < 80; i++ {
		role := turn.RoleSubject
		if i%2 == 1 {
			role = turn.RoleRespondent
		}
		_, err := m.AppendTurn(ctx, role, fmt.Sprintf("message %d", i), "chat")
		require.NoError(t, err)
	}

	assert.Equal(t, 24, m.TurnCount(), "only the recent tail survives")
	summaries := m.Summaries()
	require.Len(t, summaries, 1)
	assert.Equal(t, 56, summaries[0].TurnsFolded)
	require.Len(t, compacted, 1)

	// Kept turns were re-indexed from zero.
	for i, kept := range m.SearchTurns("message") {
		assert.Equal(t, i, kept.Seq)
	}
}

func TestContextRendersIdentically(t *testing.T) {
	m := newManager(t, nil, newClock())
	defer m.Close()

	ctx := context.Background()
	_, err := m.AppendTurn(ctx, turn.RoleSubject, "hello", "chat")
	require.NoError(t, err)
	_, err = m.SetBlock(ctx, "task-state", "reviewing notes")
	require.NoError(t, err)

	first := m.Context()
	second := m.Context()
	assert.Equal(t, first, second, "no mutation between renders")
	assert.Contains(t, first, "Subject: alice")
	assert.Contains(t, first, "reviewing notes")
	assert.Contains(t, first, "subject: hello")
}

func TestPersistenceFailureDegradesGracefully(t *testing.T) {
	backend := failingBackend{}
	m := newManager(t, backend, newClock())
	defer m.Close()

	ctx := context.Background()
	_, err := m.AppendTurn(ctx, turn.RoleSubject, "still works", "chat")
	require.NoError(t, err)
	_, err = m.SetBlock(ctx, "task-state", "still works")
	require.NoError(t, err)

	assert.Equal(t, 1, m.TurnCount())
	value, _ := m.GetBlock("task-state")
	assert.Equal(t, "still works", value)
}

func TestFactLearning(t *testing.T) {
	m := newManager(t, nil, newClock())
	defer m.Close()

	var learned []event.Event
	m.Subscribe(func(e event.Event) { learned = append(learned, e) }, event.KindFactLearned)

	ctx := context.Background()
	_, err := m.AppendTurn(ctx, turn.RoleSubject, "my name is Ada", "chat")
	require.NoError(t, err)

	value, _ := m.GetBlock("subject-info")
	assert.Contains(t, value, "Name: Ada")
	require.Len(t, learned, 1)

	// Respondent turns are never mined for facts.
	_, err = m.AppendTurn(ctx, turn.RoleRespondent, "my name is HAL", "chat")
	require.NoError(t, err)
	value, _ = m.GetBlock("subject-info")
	assert.NotContains(t, value, "HAL")
}

func TestDeadlineUpdateReplacesLine(t *testing.T) {
	m := newManager(t, nil, newClock())
	defer m.Close()

	ctx := context.Background()
	_, err := m.AppendTurn(ctx, turn.RoleSubject, "the deadline is March 3", "chat")
	require.NoError(t, err)
	_, err = m.AppendTurn(ctx, turn.RoleSubject, "the deadline is April 1", "chat")
	require.NoError(t, err)

	value, _ := m.GetBlock("task-state")
	assert.Contains(t, value, "Deadline: April 1")
	assert.NotContains(t, value, "March 3")
}

func TestDefineBlockIdempotent(t *testing.T) {
	m := newManager(t, nil, newClock())
	defer m.Close()

	ctx := context.Background()
	created, err := m.DefineBlock(ctx, "scratch", "seed", 100, false, "scratch space")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = m.DefineBlock(ctx, "scratch", "other", 100, false, "scratch space")
	require.NoError(t, err)
	assert.False(t, created)

	value, _ := m.GetBlock("scratch")
	assert.Equal(t, "seed", value, "re-definition never clobbers data")
}

func TestExportImportRoundTrip(t *testing.T) {
	m := newManager(t, nil, newClock())
	ctx := context.Background()
	_, err := m.AppendTurn(ctx, turn.RoleSubject, "remember that the demo is Friday", "chat")
	require.NoError(t, err)
	snap := m.Export()
	require.NoError(t, m.Close())

	m2 := newManager(t, nil, newClock())
	defer m2.Close()
	require.NoError(t, m2.Import(ctx, snap))

	assert.Equal(t, snap.Session.ID, m2.Session().ID)
	assert.Equal(t, 1, m2.TurnCount())
	value, _ := m2.GetBlock("project-facts")
	assert.Contains(t, value, "the demo is Friday")
}

func TestReset(t *testing.T) {
	backend := persist.NewMemoryBackend()
	m := newManager(t, backend, newClock())
	defer m.Close()

	ctx := context.Background()
	_, err := m.AppendTurn(ctx, turn.RoleSubject, "hello", "chat")
	require.NoError(t, err)
	first := m.Session().ID

	require.NoError(t, m.Reset(ctx))

	assert.Equal(t, 0, m.TurnCount())
	assert.NotEqual(t, first, m.Session().ID)
	assert.Equal(t, 4, m.Stats().BlockCount, "defaults re-created")
	value, _ := m.GetBlock("subject-info")
	assert.Empty(t, value)
}

func TestClearTurnsLeavesArchive(t *testing.T) {
	cfg := &config.Config{
		Compaction: &config.CompactionConfig{SummarizeThreshold: 4, KeepRecent: 2},
	}
	m := newManager(t, nil, newClock(), WithConfig(cfg))
	defer m.Close()

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_, err := m.AppendTurn(ctx, turn.RoleSubject, fmt.Sprintf("m%d", i), "chat")
		require.NoError(t, err)
	}
	require.Len(t, m.Summaries(), 1)

	require.NoError(t, m.ClearTurns(ctx))
	assert.Equal(t, 0, m.TurnCount())
	assert.Len(t, m.Summaries(), 1, "archive survives a buffer clear")
}

func TestClosedManagerRefusesOperations(t *testing.T) {
	m := newManager(t, nil, newClock())
	require.NoError(t, m.Close())

	ctx := context.Background()
	_, err := m.AppendTurn(ctx, turn.RoleSubject, "late", "chat")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = m.SetBlock(ctx, "persona", "late")
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, m.Close(), "double close is harmless")
}

func TestRecentTurnsNonPositiveCount(t *testing.T) {
	m := newManager(t, nil, newClock())
	defer m.Close()

	_, err := m.AppendTurn(context.Background(), turn.RoleSubject, "hello", "chat")
	require.NoError(t, err)

	for _, n := range []int{0, -1} {
		count := 0
		for range m.RecentTurns(n) {
			count++
		}
		assert.Equal(t, 0, count, "RecentTurns(%d) must yield nothing", n)
	}
}

func TestCloseReleasesOwnedBackend(t *testing.T) {
	backend := persist.NewMemoryBackend()
	m := newManager(t, backend, newClock())
	m.ownsBackend = true

	require.NoError(t, m.Close())

	err := backend.Set(context.Background(), "k", "v")
	assert.ErrorIs(t, err, persist.ErrBackendClosed)
}

func TestCloseSwallowsBackendCloseFailure(t *testing.T) {
	m := newManager(t, closeFailingBackend{persist.NewMemoryBackend()}, newClock())
	m.ownsBackend = true

	assert.NoError(t, m.Close(), "a backend close failure is logged, never surfaced")
}

// closeFailingBackend works normally but errors on Close.
type closeFailingBackend struct {
	*persist.MemoryBackend
}

func (closeFailingBackend) Close() error { return assert.AnError }

func TestTracerRecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := provider.Tracer("test")

	m := newManager(t, nil, newClock(), WithTracer(tracer))
	defer m.Close()

	_, err := m.AppendTurn(context.Background(), turn.RoleSubject, "traced", "chat")
	require.NoError(t, err)

	spans := recorder.Ended()
	require.NotEmpty(t, spans)
	assert.Equal(t, "Manager.AppendTurn", spans[0].Name())
}

// failingBackend errors on every call, standing in for a backend that
// is down or over quota.
type failingBackend struct{}

func (failingBackend) Get(context.Context, string) (string, bool, error) {
	return "", false, assert.AnError
}
func (failingBackend) Set(context.Context, string, string) error { return assert.AnError }
func (failingBackend) Remove(context.Context, string) error      { return assert.AnError }
func (failingBackend) Close() error                              { return nil }
