// Package archive keeps the bounded list of summary records produced by
// compaction. The archive has pure ring-buffer semantics: once the cap is
// reached, adding a record evicts the oldest one without re-compaction.
// Information loss at the cap is accepted by design.
package archive

import (
	"strings"

	"github.com/mnemon-ai/mnemon/compact"
)

// DefaultMaxSummaries is the default archive capacity.
const DefaultMaxSummaries = 20

// DefaultContextRecords is the number of records RenderContext includes
// when no explicit count is given.
const DefaultContextRecords = 3

// Archive is the bounded, oldest-first list of summaries for one subject.
//
// Archive is not safe for concurrent use; there is exactly one logical
// owner per subject at a time.
type Archive struct {
	max     int
	records []compact.Summary
}

// New creates an archive holding at most max records. A non-positive max
// falls back to DefaultMaxSummaries.
func New(max int) *Archive {
	if max <= 0 {
		max = DefaultMaxSummaries
	}
	return &Archive{max: max}
}

// Add appends a record, evicting the oldest one if the archive is full.
func (a *Archive) Add(record compact.Summary) {
	a.records = append(a.records, record)
	if len(a.records) > a.max {
		a.records = a.records[len(a.records)-a.max:]
	}
}

// All returns a copy of every record, oldest first.
func (a *Archive) All() []compact.Summary {
	out := make([]compact.Summary, len(a.records))
	copy(out, a.records)
	return out
}

// Latest returns the most recently added record.
func (a *Archive) Latest() (compact.Summary, bool) {
	if len(a.records) == 0 {
		return compact.Summary{}, false
	}
	return a.records[len(a.records)-1], true
}

// Count returns the number of archived records.
func (a *Archive) Count() int {
	return len(a.records)
}

// Max returns the archive capacity.
func (a *Archive) Max() int {
	return a.max
}

// RenderContext renders the most recent max records as text for context
// assembly, oldest of the selected records first. A non-positive max
// falls back to DefaultContextRecords. It returns the empty string when
// the archive is empty.
func (a *Archive) RenderContext(max int) string {
	if max <= 0 {
		max = DefaultContextRecords
	}
	if len(a.records) == 0 {
		return ""
	}
	start := len(a.records) - max
	if start < 0 {
		start = 0
	}

	var b strings.Builder
	for i, record := range a.records[start:] {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(record.ContextLine())
	}
	return b.String()
}

// Reset discards every record.
func (a *Archive) Reset() {
	a.records = nil
}

// Restore replaces the archive contents with previously persisted
// records, trimming to capacity from the oldest end if needed.
func (a *Archive) Restore(records []compact.Summary) {
	a.records = make([]compact.Summary, len(records))
	copy(a.records, records)
	if len(a.records) > a.max {
		a.records = a.records[len(a.records)-a.max:]
	}
}
