// Package compact folds runs of older turns into extractive summary
// records. Compaction is the only place raw turns are permanently
// discarded: the evicted prefix of the buffer is summarized by a
// fixed-vocabulary keyword scan and the most recent turns survive intact.
//
// The summarizer is deliberately dumb. It counts turns, scans a curated
// keyword-to-topic dictionary, and quotes the first and last
// subject-authored turns as bookends. It never generates novel text.
package compact
