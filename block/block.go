package block

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// Common errors returned by block store operations.
var (
	// ErrUndefined is returned when the requested label has no block.
	ErrUndefined = errors.New("block: label not defined")

	// ErrReadOnly is returned when a mutation targets a read-only block.
	ErrReadOnly = errors.New("block: block is read-only")

	// ErrNoMatch is returned by Replace when the old text is not a literal
	// substring of the current value. It reports a no-op, not a failure.
	ErrNoMatch = errors.New("block: replace target not found")

	// ErrOverLimit is returned by Replace when the edit would exceed the
	// block's character limit. Replace never truncates.
	ErrOverLimit = errors.New("block: replacement exceeds limit")

	// ErrInvalidLabel is returned when a label is empty.
	ErrInvalidLabel = errors.New("block: invalid label")

	// ErrInvalidLimit is returned when a block is defined with a
	// non-positive character limit.
	ErrInvalidLimit = errors.New("block: limit must be positive")
)

// Block is a labeled, size-bounded piece of always-available context.
// The invariant len(Value) <= Limit (measured in characters) holds after
// every mutation.
type Block struct {
	Label        string    `json:"label"`
	Value        string    `json:"value"`
	Limit        int       `json:"limit"`
	ReadOnly     bool      `json:"read_only"`
	Description  string    `json:"description,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastModified time.Time `json:"last_modified"`
	EditCount    int       `json:"edit_count"`
}

// Usage reports how full a block is.
type Usage struct {
	Current int     `json:"current"`
	Limit   int     `json:"limit"`
	Percent float64 `json:"percent"`
}

// Store owns the mapping of label to knowledge block for one subject.
// Blocks are kept in definition order so that exports and rendered context
// are deterministic.
//
// Store is not safe for concurrent use; there is exactly one logical owner
// per subject at a time.
type Store struct {
	blocks map[string]*Block
	order  []string
	now    func() time.Time
}

// NewStore creates an empty block store. The now function supplies
// timestamps for mutations; pass nil to use time.Now.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		blocks: make(map[string]*Block),
		now:    now,
	}
}

// Define creates a block for label if one does not already exist. Defining
// an existing label is a no-op and returns false, so stored state restored
// before defaults are applied always wins.
//
// The initial value is truncated to limit if necessary.
func (s *Store) Define(label, initial string, limit int, readOnly bool, description string) (bool, error) {
	if label == "" {
		return false, ErrInvalidLabel
	}
	if limit <= 0 {
		return false, ErrInvalidLimit
	}
	if _, ok := s.blocks[label]; ok {
		return false, nil
	}

	value, _ := truncate(initial, limit)
	now := s.now()
	s.blocks[label] = &Block{
		Label:        label,
		Value:        value,
		Limit:        limit,
		ReadOnly:     readOnly,
		Description:  description,
		CreatedAt:    now,
		LastModified: now,
	}
	s.order = append(s.order, label)
	return true, nil
}

// Get returns the current value for label.
func (s *Store) Get(label string) (string, bool) {
	b, ok := s.blocks[label]
	if !ok {
		return "", false
	}
	return b.Value, true
}

// Lookup returns a copy of the full block record for label.
func (s *Store) Lookup(label string) (Block, bool) {
	b, ok := s.blocks[label]
	if !ok {
		return Block{}, false
	}
	return *b, true
}

// Set overwrites the value of label. Values longer than the block's limit
// are silently truncated; the returned bool reports whether truncation
// happened so callers can surface a size warning.
func (s *Store) Set(label, value string) (bool, error) {
	b, err := s.writable(label)
	if err != nil {
		return false, err
	}

	value, truncated := truncate(value, b.Limit)
	b.Value = value
	s.touch(b)
	return truncated, nil
}

// Append adds fragment to the end of label's value. If the combined length
// exceeds the limit, characters are dropped from the front of the existing
// value (oldest content first) until the fragment fits. The returned bool
// reports whether anything was dropped.
func (s *Store) Append(label, fragment string) (bool, error) {
	b, err := s.writable(label)
	if err != nil {
		return false, err
	}

	fragment, _ = truncate(fragment, b.Limit)
	trimmed := false
	existing := b.Value
	if room := b.Limit - runeLen(fragment); runeLen(existing) > room {
		existing = trimFront(existing, room)
		trimmed = true
	}
	b.Value = existing + fragment
	s.touch(b)
	return trimmed, nil
}

// Replace substitutes the first occurrence of old with new in label's
// value. Replace is an edit, not a capacity-management primitive: if the
// result would exceed the limit it returns ErrOverLimit and changes
// nothing. A missing old text returns ErrNoMatch and leaves the block
// untouched, edit count included.
func (s *Store) Replace(label, old, new string) error {
	b, err := s.writable(label)
	if err != nil {
		return err
	}

	if old == "" {
		return ErrNoMatch
	}
	idx := strings.Index(b.Value, old)
	if idx < 0 {
		return ErrNoMatch
	}

	replaced := b.Value[:idx] + new + b.Value[idx+len(old):]
	if runeLen(replaced) > b.Limit {
		return ErrOverLimit
	}
	b.Value = replaced
	s.touch(b)
	return nil
}

// Usage reports the current size of label against its limit.
func (s *Store) Usage(label string) (Usage, error) {
	b, ok := s.blocks[label]
	if !ok {
		return Usage{}, ErrUndefined
	}
	current := runeLen(b.Value)
	return Usage{
		Current: current,
		Limit:   b.Limit,
		Percent: float64(current) / float64(b.Limit) * 100,
	}, nil
}

// All returns copies of every block in definition order.
func (s *Store) All() []Block {
	out := make([]Block, 0, len(s.order))
	for _, label := range s.order {
		out = append(out, *s.blocks[label])
	}
	return out
}

// Labels returns every defined label in definition order.
func (s *Store) Labels() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Count returns the number of defined blocks.
func (s *Store) Count() int {
	return len(s.blocks)
}

// TotalChars returns the combined character count of all block values.
func (s *Store) TotalChars() int {
	total := 0
	for _, b := range s.blocks {
		total += runeLen(b.Value)
	}
	return total
}

// Reset removes every block. Individual blocks are never deleted; this
// wholesale clear is the only way a defined label goes away.
func (s *Store) Reset() {
	s.blocks = make(map[string]*Block)
	s.order = nil
}

// Restore replaces the store contents with previously persisted blocks,
// preserving their order, timestamps, and edit counts.
func (s *Store) Restore(blocks []Block) {
	s.Reset()
	for i := range blocks {
		b := blocks[i]
		if b.Label == "" || b.Limit <= 0 {
			continue
		}
		b.Value, _ = truncate(b.Value, b.Limit)
		s.blocks[b.Label] = &b
		s.order = append(s.order, b.Label)
	}
}

func (s *Store) writable(label string) (*Block, error) {
	b, ok := s.blocks[label]
	if !ok {
		return nil, ErrUndefined
	}
	if b.ReadOnly {
		return nil, ErrReadOnly
	}
	return b, nil
}

func (s *Store) touch(b *Block) {
	b.EditCount++
	b.LastModified = s.now()
}

// Limits are measured in characters, not bytes, so multi-byte content is
// never split mid-rune.

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// truncate keeps the first limit characters of s.
func truncate(s string, limit int) (string, bool) {
	if runeLen(s) <= limit {
		return s, false
	}
	runes := []rune(s)
	return string(runes[:limit]), true
}

// trimFront keeps the last keep characters of s.
func trimFront(s string, keep int) string {
	if keep <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= keep {
		return s
	}
	return string(runes[len(runes)-keep:])
}
