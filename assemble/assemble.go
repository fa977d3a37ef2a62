package assemble

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mnemon-ai/mnemon/block"
	"github.com/mnemon-ai/mnemon/compact"
	"github.com/mnemon-ai/mnemon/turn"
)

// Default history depth included in a rendered context.
const (
	DefaultSummaries = 2
	DefaultTurns     = 6
)

const timeLayout = "2006-01-02 15:04"

// Snapshot is an immutable view of every store at one instant. The
// caller builds it from copies; Render never reaches back into live
// state.
type Snapshot struct {
	SubjectID      string
	SessionID      string
	SessionStarted time.Time
	Blocks         []block.Block
	Summaries      []compact.Summary
	Turns          []turn.Turn
}

// Options bounds how much history Render includes. Zero values fall
// back to the defaults.
type Options struct {
	Summaries int
	Turns     int
}

func (o Options) summaries() int {
	if o.Summaries <= 0 {
		return DefaultSummaries
	}
	return o.Summaries
}

func (o Options) turns() int {
	if o.Turns <= 0 {
		return DefaultTurns
	}
	return o.Turns
}

// Render produces the ordered context payload for a snapshot: store
// metadata, every block in full, the most recent summaries, then the
// most recent turns as role-labeled lines. Pure and deterministic:
// identical snapshots render to byte-identical output.
func Render(snap Snapshot, opts Options) string {
	var b strings.Builder

	renderMetadata(&b, snap)
	renderBlocks(&b, snap.Blocks)
	renderSummaries(&b, snap.Summaries, opts.summaries())
	renderTurns(&b, snap.Turns, opts.turns())

	return b.String()
}

func renderMetadata(b *strings.Builder, snap Snapshot) {
	b.WriteString("=== MEMORY ===\n")
	fmt.Fprintf(b, "Subject: %s\n", snap.SubjectID)
	fmt.Fprintf(b, "Session: %s (started %s)\n",
		snap.SessionID, snap.SessionStarted.UTC().Format(timeLayout))

	total, capacity := 0, 0
	for _, blk := range snap.Blocks {
		total += utf8.RuneCountInString(blk.Value)
		capacity += blk.Limit
	}
	fmt.Fprintf(b, "Blocks: %d defined, %d/%d chars\n", len(snap.Blocks), total, capacity)
	for _, blk := range snap.Blocks {
		current := utf8.RuneCountInString(blk.Value)
		percent := 0
		if blk.Limit > 0 {
			percent = current * 100 / blk.Limit
		}
		fmt.Fprintf(b, "  %s: %d/%d (%d%%)\n", blk.Label, current, blk.Limit, percent)
	}
}

func renderBlocks(b *strings.Builder, blocks []block.Block) {
	b.WriteString("\n=== BLOCKS ===\n")
	for _, blk := range blocks {
		fmt.Fprintf(b, "<%s>\n%s\n</%s>\n", blk.Label, blk.Value, blk.Label)
	}
}

func renderSummaries(b *strings.Builder, summaries []compact.Summary, max int) {
	b.WriteString("\n=== EARLIER CONVERSATION ===\n")
	if len(summaries) == 0 {
		b.WriteString("(none)\n")
		return
	}
	start := len(summaries) - max
	if start < 0 {
		start = 0
	}
	for _, s := range summaries[start:] {
		b.WriteString(s.ContextLine())
		b.WriteByte('\n')
	}
}

func renderTurns(b *strings.Builder, turns []turn.Turn, max int) {
	b.WriteString("\n=== RECENT TURNS ===\n")
	if len(turns) == 0 {
		b.WriteString("(none)\n")
		return
	}
	start := len(turns) - max
	if start < 0 {
		start = 0
	}
	for _, t := range turns[start:] {
		fmt.Fprintf(b, "%s: %s\n", t.Role, t.Content)
	}
}
