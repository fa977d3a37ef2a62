package mnemon

import (
	"context"
	"iter"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/mnemon-ai/mnemon/archive"
	"github.com/mnemon-ai/mnemon/assemble"
	"github.com/mnemon-ai/mnemon/block"
	"github.com/mnemon-ai/mnemon/compact"
	"github.com/mnemon-ai/mnemon/config"
	"github.com/mnemon-ai/mnemon/event"
	"github.com/mnemon-ai/mnemon/learn"
	"github.com/mnemon-ai/mnemon/persist"
	"github.com/mnemon-ai/mnemon/session"
	"github.com/mnemon-ai/mnemon/turn"
)

// AnonymousSubject is used when no subject identifier is supplied.
const AnonymousSubject = "anonymous"

// Store names under which each store's snapshot is persisted.
const (
	storeBlocks    = "blocks"
	storeTurns     = "turns"
	storeSession   = "session"
	storeSummaries = "summaries"
)

// shortSessionTurns is the turn count at or below which an expired
// session is discarded without producing a summary.
const shortSessionTurns = 2

// defaultBlocks are defined at initialization for every subject, unless
// a restored snapshot already defines them.
var defaultBlocks = []struct {
	label       string
	description string
}{
	{"persona", "standing instructions and personality for the respondent"},
	{"subject-info", "durable facts about the subject: name, preferences"},
	{"task-state", "current task progress, blockers, and deadlines"},
	{"project-facts", "facts the subject explicitly asked to remember"},
}

// defaultBlockLimit is the capacity of each default block, in characters.
const defaultBlockLimit = 2000

// Stats summarizes the current state of every store.
type Stats struct {
	BlockCount      int    `json:"block_count"`
	TotalBlockChars int    `json:"total_block_chars"`
	TurnCount       int    `json:"turn_count"`
	SessionID       string `json:"session_id"`
	SummaryCount    int    `json:"summary_count"`
}

// Snapshot is a full serializable copy of every store, produced by
// Export and accepted by Import. Intended for diagnostics and backup.
type Snapshot struct {
	Subject   string            `json:"subject"`
	Session   session.Session   `json:"session"`
	Blocks    []block.Block     `json:"blocks"`
	Turns     []turn.Turn       `json:"turns"`
	Summaries []compact.Summary `json:"summaries"`
}

// Manager owns all conversational memory for one subject: the block
// store, the turn log, the summary archive, and the active session. All
// operations run synchronously to completion; the manager is built for
// a single logical caller per subject and is not safe for concurrent
// use.
type Manager struct {
	subject string
	cfg     *config.Config
	logger  *slog.Logger
	tracer  trace.Tracer

	blocks    *block.Store
	turns     *turn.Log
	summaries *archive.Archive
	sessions  *session.Controller
	adapter   *persist.Adapter
	bus       *event.Bus
	now       func() time.Time

	backend     persist.Backend
	ownsBackend bool
	closed      bool

	turnsAppended  metric.Int64Counter
	compactionsRun metric.Int64Counter
	factsLearned   metric.Int64Counter
}

// New creates a memory manager for the given subject, restoring any
// prior state from the persistence backend. An empty subjectID falls
// back to a fixed anonymous identity. New is where session expiry is
// checked: a restored session idle past the inactivity timeout is
// closed (summarizing its turns when there are enough to matter) and a
// fresh session started.
//
// Example:
//
//	mgr, err := mnemon.New("alice",
//	    mnemon.WithLogger(logger),
//	    mnemon.WithConfigFile("/path/to/mnemon.yaml"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer mgr.Close()
func New(subjectID string, opts ...Option) (*Manager, error) {
	mc := &managerConfig{}
	for _, opt := range opts {
		opt(mc)
	}

	// Create default logger if not provided
	if mc.logger == nil {
		mc.logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	if subjectID == "" {
		mc.logger.Warn("no subject identity supplied, using anonymous scope")
		subjectID = AnonymousSubject
	}

	cfg := mc.cfg
	if cfg == nil && mc.configPath != "" {
		loaded, err := config.Load(mc.configPath)
		if err != nil {
			return nil, NewConfigurationError("New", err)
		}
		cfg = loaded
	}
	if cfg == nil {
		cfg = &config.Config{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, NewConfigurationError("New", err)
	}

	now := mc.now
	if now == nil {
		now = time.Now
	}

	m := &Manager{
		subject:   subjectID,
		cfg:       cfg,
		logger:    mc.logger,
		tracer:    mc.tracer,
		blocks:    block.NewStore(now),
		turns:     turn.NewLog(now),
		summaries: archive.New(cfg.Compaction.GetMaxSummaries()),
		sessions:  session.NewController(cfg.Session.GetInactivityTimeout(), now),
		bus:       event.NewBus(mc.logger),
		now:       now,
	}

	m.backend = mc.backend
	if m.backend == nil {
		backend, owns := openBackend(cfg.Persistence, mc.logger)
		m.backend, m.ownsBackend = backend, owns
	}
	m.adapter = persist.NewAdapter(m.backend, subjectID, mc.logger)

	if err := m.initMetrics(mc.meterProvider); err != nil {
		return nil, NewInternalError("New", err)
	}

	ctx := context.Background()
	m.restore(ctx)
	m.rotateIfStale(ctx)
	m.defineDefaults(ctx)

	return m, nil
}

// openBackend builds a backend from configuration. Backend failures are
// not fatal: the manager degrades to memory-only operation.
func openBackend(pc *config.PersistenceConfig, logger *slog.Logger) (persist.Backend, bool) {
	switch pc.GetBackend() {
	case "redis":
		backend, err := persist.NewRedisBackend(persist.RedisOptions{URL: pc.URL})
		if err != nil {
			logger.Warn("redis backend unavailable, continuing in memory",
				"error", err)
			return nil, false
		}
		return backend, true
	case "etcd":
		backend, err := persist.NewEtcdBackend(persist.EtcdOptions{Endpoints: pc.Endpoints})
		if err != nil {
			logger.Warn("etcd backend unavailable, continuing in memory",
				"error", err)
			return nil, false
		}
		return backend, true
	default:
		return nil, false
	}
}

func (m *Manager) initMetrics(provider metric.MeterProvider) error {
	if provider == nil {
		return nil
	}
	meter := provider.Meter("github.com/mnemon-ai/mnemon")

	var err error
	m.turnsAppended, err = meter.Int64Counter("mnemon.turns.appended",
		metric.WithDescription("Turns appended to the recall buffer"))
	if err != nil {
		return err
	}
	m.compactionsRun, err = meter.Int64Counter("mnemon.compactions.run",
		metric.WithDescription("Turn buffer compactions performed"))
	if err != nil {
		return err
	}
	m.factsLearned, err = meter.Int64Counter("mnemon.facts.learned",
		metric.WithDescription("Facts derived from subject turns"))
	return err
}

// restore loads prior store snapshots. Each store falls back to its
// defaults independently on a missing or malformed snapshot.
func (m *Manager) restore(ctx context.Context) {
	var blocks []block.Block
	if m.adapter.Load(ctx, storeBlocks, &blocks) {
		m.blocks.Restore(blocks)
	}

	var turns []turn.Turn
	if m.adapter.Load(ctx, storeTurns, &turns) {
		m.turns.Restore(turns)
	}

	var summaries []compact.Summary
	if m.adapter.Load(ctx, storeSummaries, &summaries) {
		m.summaries.Restore(summaries)
	}

	var sess session.Session
	if m.adapter.Load(ctx, storeSession, &sess) && sess.ID != "" {
		m.sessions.Resume(sess)
	}
}

// rotateIfStale closes an expired restored session and starts a new one.
// An expired session with enough turns is folded into a summary first;
// a near-empty one is discarded silently.
func (m *Manager) rotateIfStale(ctx context.Context) {
	current := m.sessions.Current()
	if current.ID != "" && !m.sessions.Expired(current) {
		return
	}

	if current.ID != "" {
		folded := 0
		if count := m.turns.Count(); count > shortSessionTurns {
			summary, _ := compact.Compact(m.turns.All(), current.ID, 0, m.now())
			m.summaries.Add(summary)
			folded = summary.TurnsFolded
			m.bus.Publish(event.SummaryAdded{Summary: summary})
			m.logger.Info("expired session summarized",
				"session", current.ID,
				"turns_folded", folded)
		}
		m.turns.Clear()
		m.bus.Publish(event.SessionExpired{Session: current, TurnsFolded: folded})
	}

	started := m.sessions.Start()
	m.bus.Publish(event.SessionStarted{Session: started})

	m.adapter.Save(ctx, storeTurns, m.turns.All())
	m.adapter.Save(ctx, storeSummaries, m.summaries.All())
	m.adapter.Save(ctx, storeSession, started)
}

// defineDefaults creates the standard blocks where a restored snapshot
// has not already defined them.
func (m *Manager) defineDefaults(ctx context.Context) {
	created := false
	for _, d := range defaultBlocks {
		ok, err := m.blocks.Define(d.label, "", defaultBlockLimit, false, d.description)
		if err != nil {
			m.logger.Warn("failed to define default block",
				"label", d.label,
				"error", err)
			continue
		}
		if ok {
			created = true
			if blk, found := m.blocks.Lookup(d.label); found {
				m.bus.Publish(event.BlockDefined{Block: blk, At: m.now()})
			}
		}
	}
	if created {
		m.adapter.Save(ctx, storeBlocks, m.blocks.All())
	}
}

func (m *Manager) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if m.tracer == nil {
		return ctx, nil
	}
	return m.tracer.Start(ctx, name)
}

func endSpan(span trace.Span) {
	if span != nil {
		span.End()
	}
}

// Subject returns the subject identity this manager is scoped to.
func (m *Manager) Subject() string {
	return m.subject
}

// Session returns the currently active session.
func (m *Manager) Session() session.Session {
	return m.sessions.Current()
}

// DefineBlock creates a knowledge block. Defining an existing label is a
// no-op that reports false, so restored state is never clobbered by
// re-initialization.
func (m *Manager) DefineBlock(ctx context.Context, label, initial string, limit int, readOnly bool, description string) (bool, error) {
	if m.closed {
		return false, ErrClosed
	}
	ctx, span := m.startSpan(ctx, "Manager.DefineBlock")
	defer endSpan(span)

	created, err := m.blocks.Define(label, initial, limit, readOnly, description)
	if err != nil {
		return false, NewValidationError("Manager.DefineBlock", err)
	}
	if created {
		if blk, ok := m.blocks.Lookup(label); ok {
			m.bus.Publish(event.BlockDefined{Block: blk, At: m.now()})
		}
		m.adapter.Save(ctx, storeBlocks, m.blocks.All())
	}
	return created, nil
}

// GetBlock returns the current value of a block.
func (m *Manager) GetBlock(label string) (string, bool) {
	return m.blocks.Get(label)
}

// SetBlock overwrites a block's value. The returned bool reports the
// size warning: the value exceeded the block's limit and was truncated
// before committing.
func (m *Manager) SetBlock(ctx context.Context, label, value string) (bool, error) {
	if m.closed {
		return false, ErrClosed
	}
	ctx, span := m.startSpan(ctx, "Manager.SetBlock")
	defer endSpan(span)

	truncated, err := m.blocks.Set(label, value)
	if err != nil {
		return false, NewRefusedError("Manager.SetBlock", err)
	}
	if truncated {
		m.logger.Warn("block value truncated to limit", "label", label)
	}
	if blk, ok := m.blocks.Lookup(label); ok {
		m.bus.Publish(event.BlockSet{Block: blk, Truncated: truncated, At: m.now()})
	}
	m.adapter.Save(ctx, storeBlocks, m.blocks.All())
	return truncated, nil
}

// AppendBlock appends a fragment to a block. When the result would
// exceed the limit, the oldest content is dropped from the front so the
// newest information survives; the returned bool reports that trim.
func (m *Manager) AppendBlock(ctx context.Context, label, fragment string) (bool, error) {
	if m.closed {
		return false, ErrClosed
	}
	ctx, span := m.startSpan(ctx, "Manager.AppendBlock")
	defer endSpan(span)

	trimmed, err := m.blocks.Append(label, fragment)
	if err != nil {
		return false, NewRefusedError("Manager.AppendBlock", err)
	}
	if blk, ok := m.blocks.Lookup(label); ok {
		m.bus.Publish(event.BlockAppended{Block: blk, Fragment: fragment, Trimmed: trimmed, At: m.now()})
	}
	m.adapter.Save(ctx, storeBlocks, m.blocks.All())
	return trimmed, nil
}

// ReplaceBlock swaps the first occurrence of old for new within a block.
// Unlike SetBlock, an edit that would exceed the limit is refused rather
// than truncated.
func (m *Manager) ReplaceBlock(ctx context.Context, label, old, new string) error {
	if m.closed {
		return ErrClosed
	}
	ctx, span := m.startSpan(ctx, "Manager.ReplaceBlock")
	defer endSpan(span)

	if err := m.blocks.Replace(label, old, new); err != nil {
		if err == block.ErrNoMatch {
			return NewNoMatchError("Manager.ReplaceBlock", err)
		}
		return NewRefusedError("Manager.ReplaceBlock", err)
	}
	if blk, ok := m.blocks.Lookup(label); ok {
		m.bus.Publish(event.BlockReplaced{Block: blk, At: m.now()})
	}
	m.adapter.Save(ctx, storeBlocks, m.blocks.All())
	return nil
}

// BlockUsage reports a block's size against its limit.
func (m *Manager) BlockUsage(label string) (block.Usage, error) {
	return m.blocks.Usage(label)
}

// Blocks returns every defined block in definition order.
func (m *Manager) Blocks() []block.Block {
	return m.blocks.All()
}

// AppendTurn records one conversational exchange. Subject turns are also
// run through fact extraction, and when the buffer reaches the
// summarize threshold the older turns are folded into a summary before
// this call returns.
func (m *Manager) AppendTurn(ctx context.Context, role turn.Role, content, source string) (turn.Turn, error) {
	if m.closed {
		return turn.Turn{}, ErrClosed
	}
	ctx, span := m.startSpan(ctx, "Manager.AppendTurn")
	defer endSpan(span)

	t, err := m.turns.Append(role, content, source)
	if err != nil {
		return turn.Turn{}, NewValidationError("Manager.AppendTurn", err)
	}
	m.sessions.Touch()
	if m.turnsAppended != nil {
		m.turnsAppended.Add(ctx, 1)
	}
	m.bus.Publish(event.TurnAppended{Turn: t, SessionID: m.sessions.Current().ID})

	if role == turn.RoleSubject {
		m.extractFact(ctx, content)
	}

	if m.turns.Count() >= m.cfg.Compaction.GetSummarizeThreshold() {
		m.compactBuffer(ctx)
	}

	m.adapter.Save(ctx, storeTurns, m.turns.All())
	m.adapter.Save(ctx, storeSession, m.sessions.Current())
	return t, nil
}

// extractFact runs the learning rules over a subject turn and applies
// any resulting block mutation. Extraction failures never fail the turn.
func (m *Manager) extractFact(ctx context.Context, content string) {
	action := learn.Process(content, m.blocks.Get)
	if action == nil {
		return
	}

	var err error
	switch action.Kind {
	case learn.ActionAppend:
		_, err = m.blocks.Append(action.Target, action.Fragment)
	case learn.ActionReplaceLine:
		err = m.blocks.Replace(action.Target, action.Old, action.New)
	}
	if err != nil {
		m.logger.Warn("derived fact could not be applied",
			"rule", action.Rule,
			"target", action.Target,
			"error", err)
		return
	}

	if m.factsLearned != nil {
		m.factsLearned.Add(ctx, 1)
	}
	m.logger.Debug("fact learned", "rule", action.Rule, "thought", action.Thought)
	m.bus.Publish(event.FactLearned{
		Rule:    action.Rule,
		Target:  action.Target,
		Thought: action.Thought,
		At:      m.now(),
	})
	m.adapter.Save(ctx, storeBlocks, m.blocks.All())
}

// compactBuffer folds the older portion of the turn log into a summary
// record. The buffer is never observed partially compacted: the log is
// swapped for the kept tail in one step.
func (m *Manager) compactBuffer(ctx context.Context) {
	summary, kept := compact.Compact(
		m.turns.All(),
		m.sessions.Current().ID,
		m.cfg.Compaction.GetKeepRecent(),
		m.now(),
	)
	m.turns.ReplaceAll(kept)
	m.summaries.Add(summary)

	if m.compactionsRun != nil {
		m.compactionsRun.Add(ctx, 1)
	}
	m.logger.Info("turn buffer compacted",
		"turns_folded", summary.TurnsFolded,
		"kept", len(kept))
	m.bus.Publish(event.BufferCompacted{Summary: summary, Kept: len(kept)})
	m.bus.Publish(event.SummaryAdded{Summary: summary})
	m.adapter.Save(ctx, storeSummaries, m.summaries.All())
}

// RecentTurns returns a lazy view over the n most recent turns, oldest
// first. The view is restartable and safe to abandon early.
func (m *Manager) RecentTurns(n int) iter.Seq[turn.Turn] {
	return m.turns.Recent(n)
}

// SearchTurns returns every buffered turn whose content contains the
// keyword, case-insensitively.
func (m *Manager) SearchTurns(keyword string) []turn.Turn {
	return m.turns.Search(keyword)
}

// TurnCount reports the number of turns currently buffered.
func (m *Manager) TurnCount() int {
	return m.turns.Count()
}

// ClearTurns empties the recall buffer for the current session. The
// summary archive is untouched.
func (m *Manager) ClearTurns(ctx context.Context) error {
	if m.closed {
		return ErrClosed
	}
	m.turns.Clear()
	m.adapter.Save(ctx, storeTurns, m.turns.All())
	return nil
}

// Summaries returns the archive contents, oldest first.
func (m *Manager) Summaries() []compact.Summary {
	return m.summaries.All()
}

// Context renders the full memory payload: metadata, blocks, recent
// summaries, recent turns. Read-only; calling it twice with no
// intervening mutation yields byte-identical output.
func (m *Manager) Context() string {
	current := m.sessions.Current()
	return assemble.Render(assemble.Snapshot{
		SubjectID:      m.subject,
		SessionID:      current.ID,
		SessionStarted: current.StartedAt,
		Blocks:         m.blocks.All(),
		Summaries:      m.summaries.All(),
		Turns:          m.turns.All(),
	}, assemble.Options{
		Summaries: m.cfg.Context.GetSummaries(),
		Turns:     m.cfg.Context.GetTurns(),
	})
}

// Stats reports the size of every store.
func (m *Manager) Stats() Stats {
	return Stats{
		BlockCount:      m.blocks.Count(),
		TotalBlockChars: m.blocks.TotalChars(),
		TurnCount:       m.turns.Count(),
		SessionID:       m.sessions.Current().ID,
		SummaryCount:    m.summaries.Count(),
	}
}

// Export produces a full copy of every store for diagnostics or backup.
func (m *Manager) Export() *Snapshot {
	return &Snapshot{
		Subject:   m.subject,
		Session:   m.sessions.Current(),
		Blocks:    m.blocks.All(),
		Turns:     m.turns.All(),
		Summaries: m.summaries.All(),
	}
}

// Import replaces every store with the snapshot's contents and persists
// the result. The snapshot's subject is ignored; the manager keeps its
// own scope.
func (m *Manager) Import(ctx context.Context, snap *Snapshot) error {
	if m.closed {
		return ErrClosed
	}
	if snap == nil {
		return NewValidationError("Manager.Import", ErrInvalidConfig)
	}
	ctx, span := m.startSpan(ctx, "Manager.Import")
	defer endSpan(span)

	m.blocks.Restore(snap.Blocks)
	m.turns.Restore(snap.Turns)
	m.summaries.Restore(snap.Summaries)
	if snap.Session.ID != "" {
		m.sessions.Resume(snap.Session)
	} else {
		started := m.sessions.Start()
		m.bus.Publish(event.SessionStarted{Session: started})
	}

	m.persistAll(ctx)
	return nil
}

// Reset destroys all memory for the subject: every store is cleared,
// the default blocks re-created, and a fresh session started.
func (m *Manager) Reset(ctx context.Context) error {
	if m.closed {
		return ErrClosed
	}
	ctx, span := m.startSpan(ctx, "Manager.Reset")
	defer endSpan(span)

	m.blocks.Reset()
	m.turns.Clear()
	m.summaries.Reset()
	m.adapter.Clear(ctx, storeBlocks, storeTurns, storeSession, storeSummaries)

	started := m.sessions.Start()
	m.bus.Publish(event.SessionStarted{Session: started})
	m.defineDefaults(ctx)
	m.persistAll(ctx)

	m.logger.Info("memory reset", "subject", m.subject, "session", started.ID)
	return nil
}

// Subscribe registers a handler for the given event kinds (all kinds
// when none given). The returned function cancels the subscription.
func (m *Manager) Subscribe(handler event.Handler, kinds ...event.Kind) func() {
	return m.bus.Subscribe(handler, kinds...)
}

// SubscribeWhere registers a handler gated by a CEL filter expression
// over event attributes, e.g.
//
//	mgr.SubscribeWhere(`event.kind == "block_set" && event.truncated`, handler)
func (m *Manager) SubscribeWhere(expr string, handler event.Handler) (func(), error) {
	return m.bus.SubscribeWhere(expr, handler)
}

func (m *Manager) persistAll(ctx context.Context) {
	m.adapter.Save(ctx, storeBlocks, m.blocks.All())
	m.adapter.Save(ctx, storeTurns, m.turns.All())
	m.adapter.Save(ctx, storeSession, m.sessions.Current())
	m.adapter.Save(ctx, storeSummaries, m.summaries.All())
}

// Close persists every store one final time and releases the backend if
// the manager opened it. A backend close failure is logged, not
// returned: persistence trouble is never fatal here either. The manager
// accepts no operations afterwards.
func (m *Manager) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true

	m.persistAll(context.Background())
	if m.ownsBackend {
		CloseWithLog(m.backend, m.logger, "persistence backend")
	}
	return nil
}
