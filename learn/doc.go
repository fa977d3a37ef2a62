// Package learn derives durable facts from subject turns using a fixed,
// ordered list of pattern rules: name declarations, explicit "remember
// that" requests, preference statements, and deadline updates.
//
// The extractor is deliberately side-effect free: Process returns an
// Action describing the block mutation to perform, and the caller
// applies it. The first matching rule wins; a turn never produces more
// than one action.
package learn
