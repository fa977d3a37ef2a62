package compact

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mnemon-ai/mnemon/turn"
)

// Defaults for the compaction policy.
const (
	// DefaultThreshold is the buffer length at which compaction runs.
	DefaultThreshold = 80

	// DefaultKeepRecent is the number of most recent turns that survive
	// compaction in raw form.
	DefaultKeepRecent = 24

	// MaxTopics caps the number of topics recorded per summary.
	MaxTopics = 5

	// BookendLength is the truncation length for the verbatim first and
	// last subject-authored turns quoted in the summary text.
	BookendLength = 80
)

// Summary is the extractive digest of a folded run of turns. It is
// produced only by Compact and never mutated afterwards.
type Summary struct {
	SessionID   string    `json:"session_id"`
	CreatedAt   time.Time `json:"created_at"`
	TurnsFolded int       `json:"turns_folded"`
	Text        string    `json:"text"`
	Topics      []string  `json:"topics,omitempty"`
	Source      string    `json:"source,omitempty"`
}

// ContextLine renders the summary as the single timestamped line used in
// context assembly.
func (s Summary) ContextLine() string {
	return fmt.Sprintf("[%s] %s", s.CreatedAt.UTC().Format("2006-01-02 15:04"), s.Text)
}

// topicVocabulary is the fixed keyword-to-topic dictionary used by the
// topic-frequency scan. The vocabulary is deliberately small and curated;
// this is an extractive summarizer, not a reasoning engine.
var topicVocabulary = map[string]string{
	"deadline": "scheduling",
	"due":      "scheduling",
	"schedule": "scheduling",
	"meeting":  "scheduling",
	"calendar": "scheduling",
	"bug":      "debugging",
	"error":    "debugging",
	"crash":    "debugging",
	"fix":      "debugging",
	"broken":   "debugging",
	"deploy":   "operations",
	"release":  "operations",
	"server":   "operations",
	"rollback": "operations",
	"test":     "testing",
	"tests":    "testing",
	"coverage": "testing",
	"review":   "code review",
	"merge":    "code review",
	"design":   "design",
	"api":      "api",
	"endpoint": "api",
	"database": "storage",
	"query":    "storage",
	"migrate":  "storage",
	"plan":     "planning",
	"budget":   "planning",
	"goal":     "planning",
	"prefer":   "preferences",
	"remember": "facts",
	"name":     "identity",
}

// Compact folds the older portion of the buffer into one Summary, keeping
// the most recent keepRecent turns in raw form. It is a pure function:
// the input slice is not modified, and the returned kept slice aliases
// nothing mutable.
//
// The summary text is built from the evicted turns only: their count, the
// count of subject-authored turns among them, the top topics by keyword
// frequency (ties broken by first appearance), and the first and last
// subject-authored turns quoted verbatim as bookends. Nothing is
// discarded without first being folded into the summary.
func Compact(turns []turn.Turn, sessionID string, keepRecent int, now time.Time) (Summary, []turn.Turn) {
	if keepRecent < 0 {
		keepRecent = 0
	}
	if keepRecent > len(turns) {
		keepRecent = len(turns)
	}

	split := len(turns) - keepRecent
	evicted := turns[:split]
	kept := make([]turn.Turn, keepRecent)
	copy(kept, turns[split:])

	return Summary{
		SessionID:   sessionID,
		CreatedAt:   now,
		TurnsFolded: len(evicted),
		Text:        summarize(evicted),
		Topics:      ScanTopics(evicted, MaxTopics),
		Source:      sourceOf(evicted),
	}, kept
}

// ScanTopics runs the fixed-vocabulary frequency scan over the given
// turns and returns up to max topics ordered by descending frequency,
// with ties broken by first-seen order.
func ScanTopics(turns []turn.Turn, max int) []string {
	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	order := 0

	for _, t := range turns {
		for _, word := range strings.Fields(strings.ToLower(t.Content)) {
			word = strings.Trim(word, ".,!?;:'\"()")
			topic, ok := topicVocabulary[word]
			if !ok {
				continue
			}
			if _, seen := counts[topic]; !seen {
				firstSeen[topic] = order
				order++
			}
			counts[topic]++
		}
	}

	topics := make([]string, 0, len(counts))
	for topic := range counts {
		topics = append(topics, topic)
	}
	sort.Slice(topics, func(i, j int) bool {
		if counts[topics[i]] != counts[topics[j]] {
			return counts[topics[i]] > counts[topics[j]]
		}
		return firstSeen[topics[i]] < firstSeen[topics[j]]
	})

	if len(topics) > max {
		topics = topics[:max]
	}
	return topics
}

func summarize(evicted []turn.Turn) string {
	subjectTurns := 0
	var firstSubject, lastSubject string
	for _, t := range evicted {
		if t.Role != turn.RoleSubject {
			continue
		}
		subjectTurns++
		if firstSubject == "" {
			firstSubject = t.Content
		}
		lastSubject = t.Content
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Folded %d turns (%d from subject).", len(evicted), subjectTurns)

	if topics := ScanTopics(evicted, MaxTopics); len(topics) > 0 {
		fmt.Fprintf(&b, " Topics: %s.", strings.Join(topics, ", "))
	}
	if firstSubject != "" {
		fmt.Fprintf(&b, " First: %q.", clip(firstSubject, BookendLength))
		fmt.Fprintf(&b, " Last: %q.", clip(lastSubject, BookendLength))
	}
	return b.String()
}

// sourceOf carries the source context of the folded run, taken from its
// first turn.
func sourceOf(evicted []turn.Turn) string {
	if len(evicted) == 0 {
		return ""
	}
	return evicted[0].Source
}

func clip(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
