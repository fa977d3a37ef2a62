package turn

import (
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"
)

// CharsPerWeight is the divisor used to derive a turn's weight from its
// content length. One weight unit approximates one token of payload.
const CharsPerWeight = 4

// ErrInvalidRole is returned when a Role value is not recognized.
var ErrInvalidRole = errors.New("turn: invalid role")

// Role attributes a turn to one of the three conversation parties.
type Role string

const (
	// RoleSubject is the human (or external caller) the memory belongs to.
	RoleSubject Role = "subject"

	// RoleRespondent is the downstream responder.
	RoleRespondent Role = "respondent"

	// RoleSystem is infrastructure-injected content.
	RoleSystem Role = "system"
)

// String returns the string representation of the Role.
func (r Role) String() string {
	return string(r)
}

// IsValid returns true if the Role is one of the defined constants.
func (r Role) IsValid() bool {
	switch r {
	case RoleSubject, RoleRespondent, RoleSystem:
		return true
	default:
		return false
	}
}

// Validate returns an error if the Role is not valid.
func (r Role) Validate() error {
	if !r.IsValid() {
		return fmt.Errorf("%w: %q (must be one of: subject, respondent, system)", ErrInvalidRole, r)
	}
	return nil
}

// Turn is one message in the conversation. Turns are immutable once
// appended; only compaction re-indexes the sequence ids of survivors.
type Turn struct {
	Seq       int       `json:"seq"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source,omitempty"`
	Weight    int       `json:"weight"`
}

// Log is the recall buffer: the ordered, append-only sequence of turns for
// the active session. Sequence ids are strictly increasing within a
// session and restart at zero when compaction replaces the buffer.
//
// Log is not safe for concurrent use; there is exactly one logical owner
// per subject at a time.
type Log struct {
	turns   []Turn
	nextSeq int
	now     func() time.Time
}

// NewLog creates an empty turn log. The now function supplies timestamps;
// pass nil to use time.Now.
func NewLog(now func() time.Time) *Log {
	if now == nil {
		now = time.Now
	}
	return &Log{now: now}
}

// Append stores a new turn and returns it with its assigned sequence id
// and derived weight. The role must be valid.
func (l *Log) Append(role Role, content, source string) (Turn, error) {
	if err := role.Validate(); err != nil {
		return Turn{}, err
	}

	t := Turn{
		Seq:       l.nextSeq,
		Role:      role,
		Content:   content,
		Timestamp: l.now(),
		Source:    source,
		Weight:    Weigh(content),
	}
	l.turns = append(l.turns, t)
	l.nextSeq++
	return t, nil
}

// Recent returns a lazy, restartable view over the last n turns in order.
// Iterating never mutates the log; the view is finite and can be ranged
// over multiple times. A non-positive n yields an empty view.
func (l *Log) Recent(n int) iter.Seq[Turn] {
	if n < 0 {
		n = 0
	}
	start := len(l.turns) - n
	if start < 0 {
		start = 0
	}
	tail := l.turns[start:]
	return func(yield func(Turn) bool) {
		for _, t := range tail {
			if !yield(t) {
				return
			}
		}
	}
}

// Search returns all turns whose content contains keyword,
// case-insensitive, in sequence order.
func (l *Log) Search(keyword string) []Turn {
	keyword = strings.ToLower(keyword)
	var out []Turn
	for _, t := range l.turns {
		if strings.Contains(strings.ToLower(t.Content), keyword) {
			out = append(out, t)
		}
	}
	return out
}

// Count returns the number of turns in the buffer.
func (l *Log) Count() int {
	return len(l.turns)
}

// All returns a copy of every turn in order.
func (l *Log) All() []Turn {
	out := make([]Turn, len(l.turns))
	copy(out, l.turns)
	return out
}

// Clear empties the buffer for the current session and resets the
// sequence counter. The summary archive is untouched; clearing discards
// raw turns only.
func (l *Log) Clear() {
	l.turns = nil
	l.nextSeq = 0
}

// ReplaceAll swaps the buffer for the kept turns after compaction,
// re-indexing their sequence ids from zero.
func (l *Log) ReplaceAll(kept []Turn) {
	l.turns = make([]Turn, len(kept))
	for i, t := range kept {
		t.Seq = i
		l.turns[i] = t
	}
	l.nextSeq = len(kept)
}

// Restore replaces the buffer with previously persisted turns. The
// sequence counter resumes after the highest stored id.
func (l *Log) Restore(turns []Turn) {
	l.turns = make([]Turn, len(turns))
	copy(l.turns, turns)
	l.nextSeq = 0
	for _, t := range turns {
		if t.Seq >= l.nextSeq {
			l.nextSeq = t.Seq + 1
		}
	}
}

// Weigh derives a turn's weight from its content length. It is a cheap
// proxy for payload size, not an exact token count.
func Weigh(content string) int {
	return len(content) / CharsPerWeight
}
