// Package block implements the knowledge block store: a small set of
// labeled, size-limited text blocks that are always visible to the
// downstream responder.
//
// Each block carries a hard character limit that holds after every
// mutation. The three mutation primitives enforce it differently:
//
//   - Set truncates over-limit values and reports the truncation so the
//     caller can emit a size warning.
//   - Append drops characters from the front of the existing value until
//     the new fragment fits, preserving the most recent information.
//   - Replace refuses over-limit edits outright; it is an editing tool,
//     not a capacity-management one.
//
// Blocks are created once per label via Define, which is idempotent: a
// label that already holds data (for example, restored from persistence)
// is left alone. Individual blocks are never deleted; only a wholesale
// Reset clears the store.
//
// Example:
//
//	store := block.NewStore(nil)
//	store.Define("subject-info", "", 2000, false, "facts about the subject")
//	truncated, err := store.Set("subject-info", "Name: Ada")
//	if err != nil {
//	    // undefined label or read-only block
//	}
//	if truncated {
//	    // value exceeded the 2000 character limit and was cut
//	}
package block
