package compact

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemon-ai/mnemon/turn"
)

func makeTurns(n int) []turn.Turn {
	turns := make([]turn.Turn, n)
	base := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	for i := range turns {
		role := turn.RoleSubject
		if i%2 == 1 {
			role = turn.RoleRespondent
		}
		turns[i] = turn.Turn{
			Seq:       i,
			Role:      role,
			Content:   fmt.Sprintf("message %d", i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Source:    "chat",
		}
	}
	return turns
}

func TestCompact_Partition(t *testing.T) {
	turns := makeTurns(DefaultThreshold)
	now := time.Date(2026, 1, 15, 11, 0, 0, 0, time.UTC)

	summary, kept := Compact(turns, "sess-1", DefaultKeepRecent, now)

	assert.Equal(t, DefaultThreshold-DefaultKeepRecent, summary.TurnsFolded)
	assert.Equal(t, "sess-1", summary.SessionID)
	assert.Equal(t, now, summary.CreatedAt)
	assert.Equal(t, "chat", summary.Source)

	require.Len(t, kept, DefaultKeepRecent)
	assert.Equal(t, "message 56", kept[0].Content, "kept turns are the most recent ones")
	assert.Equal(t, "message 79", kept[len(kept)-1].Content)

	// Pure function: the input slice is untouched.
	assert.Equal(t, "message 0", turns[0].Content)
	assert.Len(t, turns, DefaultThreshold)
}

func TestCompact_EntireBuffer(t *testing.T) {
	// Session expiry compacts the whole buffer, below threshold or not.
	turns := makeTurns(5)

	summary, kept := Compact(turns, "sess-2", 0, time.Now())

	assert.Equal(t, 5, summary.TurnsFolded)
	assert.Empty(t, kept)
}

func TestCompact_KeepExceedsBuffer(t *testing.T) {
	turns := makeTurns(3)

	summary, kept := Compact(turns, "s", 24, time.Now())

	assert.Equal(t, 0, summary.TurnsFolded)
	assert.Len(t, kept, 3)
}

func TestSummaryText(t *testing.T) {
	turns := []turn.Turn{
		{Role: turn.RoleSubject, Content: "the deadline for the release is Friday"},
		{Role: turn.RoleRespondent, Content: "noted, I will schedule the deploy"},
		{Role: turn.RoleSubject, Content: "also there is a bug in the login flow"},
		{Role: turn.RoleSystem, Content: "session checkpoint"},
		{Role: turn.RoleSubject, Content: "please fix the error before the deadline"},
	}

	summary, _ := Compact(turns, "s", 0, time.Now())

	assert.Contains(t, summary.Text, "Folded 5 turns (3 from subject).")
	assert.Contains(t, summary.Text, `First: "the deadline for the release is Friday"`)
	assert.Contains(t, summary.Text, `Last: "please fix the error before the deadline"`)
	assert.Contains(t, summary.Topics, "scheduling")
	assert.Contains(t, summary.Topics, "debugging")
}

func TestSummaryText_Bookends(t *testing.T) {
	long := strings.Repeat("deadline ", 30)
	turns := []turn.Turn{{Role: turn.RoleSubject, Content: long}}

	summary, _ := Compact(turns, "s", 0, time.Now())

	// Bookends are quoted verbatim but truncated to 80 characters.
	start := strings.Index(summary.Text, `First: "`)
	require.GreaterOrEqual(t, start, 0)
	quoted := summary.Text[start+len(`First: "`):]
	end := strings.Index(quoted, `"`)
	require.GreaterOrEqual(t, end, 0)
	assert.Len(t, quoted[:end], BookendLength)
}

func TestScanTopics(t *testing.T) {
	t.Run("frequency order", func(t *testing.T) {
		turns := []turn.Turn{
			{Role: turn.RoleSubject, Content: "bug bug bug"},
			{Role: turn.RoleSubject, Content: "deadline deadline"},
			{Role: turn.RoleSubject, Content: "deploy"},
		}
		assert.Equal(t, []string{"debugging", "scheduling", "operations"}, ScanTopics(turns, 5))
	})

	t.Run("first seen breaks ties", func(t *testing.T) {
		turns := []turn.Turn{
			{Role: turn.RoleSubject, Content: "deploy then test"},
			{Role: turn.RoleSubject, Content: "test then deploy"},
		}
		assert.Equal(t, []string{"operations", "testing"}, ScanTopics(turns, 5))
	})

	t.Run("cap at max", func(t *testing.T) {
		turns := []turn.Turn{
			{Role: turn.RoleSubject, Content: "deadline bug deploy test review design api"},
		}
		topics := ScanTopics(turns, MaxTopics)
		assert.Len(t, topics, MaxTopics)
	})

	t.Run("punctuation stripped", func(t *testing.T) {
		turns := []turn.Turn{
			{Role: turn.RoleSubject, Content: "Found a bug! The deadline?"},
		}
		topics := ScanTopics(turns, 5)
		assert.Contains(t, topics, "debugging")
		assert.Contains(t, topics, "scheduling")
	})

	t.Run("no vocabulary hits", func(t *testing.T) {
		turns := []turn.Turn{{Role: turn.RoleSubject, Content: "completely unrelated words"}}
		assert.Empty(t, ScanTopics(turns, 5))
	})
}
