// Package assemble renders a memory snapshot into the single ordered
// text payload injected ahead of a conversation: metadata, full block
// values, the most recent summaries, then the most recent turns.
//
// Render is a pure function over an immutable Snapshot. It never
// mutates a store, and rendering the same snapshot twice yields
// byte-identical output.
package assemble
