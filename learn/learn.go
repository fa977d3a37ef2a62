package learn

import (
	"fmt"
	"regexp"
	"strings"
)

// Action kinds. Append adds Fragment to the target block; ReplaceLine
// swaps Old for New within it.
type ActionKind string

const (
	ActionAppend      ActionKind = "append"
	ActionReplaceLine ActionKind = "replace_line"
)

// Action is a derived fact the caller should apply to a block. The
// extractor never writes blocks itself.
type Action struct {
	// Target is the block label to mutate.
	Target string

	// Kind selects the mutation.
	Kind ActionKind

	// Fragment is the text to append (append and replace-miss cases).
	Fragment string

	// Old and New drive a replace-line action.
	Old string
	New string

	// Rule names the matching rule.
	Rule string

	// Thought is a diagnostic line describing what was inferred.
	Thought string
}

// Lookup returns the current value of a block, reporting whether the
// label is defined. The deadline rule uses it to decide between
// replacing an existing "Deadline:" line and appending a new one.
type Lookup func(label string) (string, bool)

// rules are applied in order; the first match wins and no later rule is
// consulted for the same turn.
var rules = []struct {
	name   string
	re     *regexp.Regexp
	target string
	apply  func(m []string, lookup Lookup) *Action
}{
	{
		name:   "name-declaration",
		re:     regexp.MustCompile(`(?i)\bmy name is\s+([A-Za-z][A-Za-z .'-]{0,60}?)[.!]?\s*$`),
		target: "subject-info",
		apply: func(m []string, _ Lookup) *Action {
			name := strings.TrimSpace(m[1])
			return &Action{
				Target:   "subject-info",
				Kind:     ActionAppend,
				Fragment: fmt.Sprintf("Name: %s\n", name),
				Thought:  fmt.Sprintf("subject stated their name is %s", name),
			}
		},
	},
	{
		name:   "remember-that",
		re:     regexp.MustCompile(`(?i)\bremember that\s+(.+?)\.?\s*$`),
		target: "project-facts",
		apply: func(m []string, _ Lookup) *Action {
			fact := strings.TrimSpace(m[1])
			return &Action{
				Target:   "project-facts",
				Kind:     ActionAppend,
				Fragment: fmt.Sprintf("- %s\n", fact),
				Thought:  fmt.Sprintf("subject asked to remember: %s", fact),
			}
		},
	},
	{
		name:   "preference",
		re:     regexp.MustCompile(`(?i)\bI (?:prefer|like|always use|usually use)\s+(.+?)\.?\s*$`),
		target: "subject-info",
		apply: func(m []string, _ Lookup) *Action {
			pref := strings.TrimSpace(m[1])
			return &Action{
				Target:   "subject-info",
				Kind:     ActionAppend,
				Fragment: fmt.Sprintf("Prefers: %s\n", pref),
				Thought:  fmt.Sprintf("subject expressed a preference: %s", pref),
			}
		},
	},
	{
		name:   "deadline",
		re:     regexp.MustCompile(`(?i)\b(?:the\s+)?deadline is\s+(.+?)\.?\s*$`),
		target: "task-state",
		apply: func(m []string, lookup Lookup) *Action {
			when := strings.TrimSpace(m[1])
			line := fmt.Sprintf("Deadline: %s", when)
			if lookup != nil {
				if value, ok := lookup("task-state"); ok {
					if old := deadlineLine(value); old != "" {
						return &Action{
							Target:  "task-state",
							Kind:    ActionReplaceLine,
							Old:     old,
							New:     line,
							Thought: fmt.Sprintf("deadline updated to %s", when),
						}
					}
				}
			}
			return &Action{
				Target:   "task-state",
				Kind:     ActionAppend,
				Fragment: line + "\n",
				Thought:  fmt.Sprintf("deadline recorded as %s", when),
			}
		},
	},
}

// deadlineLine returns the first line of value starting with "Deadline:",
// or "" if none exists.
func deadlineLine(value string) string {
	for _, line := range strings.Split(value, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "Deadline:") {
			return strings.TrimRight(line, "\r")
		}
	}
	return ""
}

// Process scans one subject turn for a derivable fact. It returns nil
// when no rule matches. Rules are consulted in declaration order and the
// first match wins; later rules never layer on top of an earlier one.
func Process(text string, lookup Lookup) *Action {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	for _, rule := range rules {
		m := rule.re.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		action := rule.apply(m, lookup)
		if action == nil {
			continue
		}
		action.Rule = rule.name
		return action
	}
	return nil
}
