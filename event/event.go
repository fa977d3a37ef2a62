package event

import (
	"time"

	"github.com/mnemon-ai/mnemon/block"
	"github.com/mnemon-ai/mnemon/compact"
	"github.com/mnemon-ai/mnemon/session"
	"github.com/mnemon-ai/mnemon/turn"
)

// Kind identifies an event variant.
type Kind string

// The closed set of event kinds emitted by the memory manager.
const (
	KindBlockDefined    Kind = "block_defined"
	KindBlockSet        Kind = "block_set"
	KindBlockAppended   Kind = "block_appended"
	KindBlockReplaced   Kind = "block_replaced"
	KindTurnAppended    Kind = "turn_appended"
	KindBufferCompacted Kind = "buffer_compacted"
	KindSummaryAdded    Kind = "summary_added"
	KindFactLearned     Kind = "fact_learned"
	KindSessionStarted  Kind = "session_started"
	KindSessionExpired  Kind = "session_expired"
)

// Event is the sealed union of everything the manager can announce.
// Attributes exposes a flat view of the payload for filter expressions;
// every map includes at least the "kind" key.
type Event interface {
	Kind() Kind
	Attributes() map[string]any

	isEvent()
}

// BlockDefined announces a newly created knowledge block.
type BlockDefined struct {
	Block block.Block
	At    time.Time
}

// BlockSet announces an overwritten block value. Truncated reports the
// size warning: the value exceeded the limit and was cut.
type BlockSet struct {
	Block     block.Block
	Truncated bool
	At        time.Time
}

// BlockAppended announces an appended fragment. Trimmed reports that old
// content was dropped from the front to make room.
type BlockAppended struct {
	Block    block.Block
	Fragment string
	Trimmed  bool
	At       time.Time
}

// BlockReplaced announces an in-place edit.
type BlockReplaced struct {
	Block block.Block
	At    time.Time
}

// TurnAppended announces a turn stored in the recall buffer.
type TurnAppended struct {
	Turn      turn.Turn
	SessionID string
}

// BufferCompacted announces that older turns were folded into a summary.
type BufferCompacted struct {
	Summary compact.Summary
	Kept    int
}

// SummaryAdded announces a record appended to the summary archive.
type SummaryAdded struct {
	Summary compact.Summary
}

// FactLearned announces that a fact-extraction rule matched a subject
// turn. Thought carries the extractor's diagnostic record; it is not
// user-visible output.
type FactLearned struct {
	Rule    string
	Target  string
	Thought string
	At      time.Time
}

// SessionStarted announces a fresh session becoming current.
type SessionStarted struct {
	Session session.Session
}

// SessionExpired announces a stale session closing. TurnsFolded is zero
// when the session was too short to summarize.
type SessionExpired struct {
	Session     session.Session
	TurnsFolded int
}

func (BlockDefined) Kind() Kind { return KindBlockDefined }
func (BlockSet) Kind() Kind { return KindBlockSet }
func (BlockAppended) Kind() Kind { return KindBlockAppended }
func (BlockReplaced) Kind() Kind { return KindBlockReplaced }
func (TurnAppended) Kind() Kind { return KindTurnAppended }
func (BufferCompacted) Kind() Kind { return KindBufferCompacted }
func (SummaryAdded) Kind() Kind { return KindSummaryAdded }
func (FactLearned) Kind() Kind { return KindFactLearned }
func (SessionStarted) Kind() Kind { return KindSessionStarted }
func (SessionExpired) Kind() Kind { return KindSessionExpired }

func (e BlockDefined) Attributes() map[string]any {
	return map[string]any{"kind": string(e.Kind()), "label": e.Block.Label, "read_only": e.Block.ReadOnly}
}

func (e BlockSet) Attributes() map[string]any {
	return map[string]any{"kind": string(e.Kind()), "label": e.Block.Label, "truncated": e.Truncated}
}

func (e BlockAppended) Attributes() map[string]any {
	return map[string]any{"kind": string(e.Kind()), "label": e.Block.Label, "trimmed": e.Trimmed}
}

func (e BlockReplaced) Attributes() map[string]any {
	return map[string]any{"kind": string(e.Kind()), "label": e.Block.Label}
}

func (e TurnAppended) Attributes() map[string]any {
	return map[string]any{
		"kind":    string(e.Kind()),
		"role":    string(e.Turn.Role),
		"seq":     e.Turn.Seq,
		"session": e.SessionID,
	}
}

func (e BufferCompacted) Attributes() map[string]any {
	return map[string]any{
		"kind":         string(e.Kind()),
		"session":      e.Summary.SessionID,
		"turns_folded": e.Summary.TurnsFolded,
		"kept":         e.Kept,
	}
}

func (e SummaryAdded) Attributes() map[string]any {
	return map[string]any{
		"kind":         string(e.Kind()),
		"session":      e.Summary.SessionID,
		"turns_folded": e.Summary.TurnsFolded,
	}
}

func (e FactLearned) Attributes() map[string]any {
	return map[string]any{"kind": string(e.Kind()), "rule": e.Rule, "target": e.Target}
}

func (e SessionStarted) Attributes() map[string]any {
	return map[string]any{"kind": string(e.Kind()), "session": e.Session.ID}
}

func (e SessionExpired) Attributes() map[string]any {
	return map[string]any{
		"kind":         string(e.Kind()),
		"session":      e.Session.ID,
		"turns_folded": e.TurnsFolded,
	}
}

func (BlockDefined) isEvent() {}
func (BlockSet) isEvent() {}
func (BlockAppended) isEvent() {}
func (BlockReplaced) isEvent() {}
func (TurnAppended) isEvent() {}
func (BufferCompacted) isEvent() {}
func (SummaryAdded) isEvent() {}
func (FactLearned) isEvent() {}
func (SessionStarted) isEvent() {}
func (SessionExpired) isEvent() {}
