// Package turn implements the recall buffer: the ordered, append-only log
// of interaction turns for the active session.
//
// Each appended turn receives a sequence id that is strictly increasing
// within the session and a derived weight approximating its payload size.
// The buffer itself has no size policy; the owning manager watches Count
// after every append and triggers compaction when the configured
// threshold is reached, replacing the buffer via ReplaceAll with the
// turns that survive.
package turn
