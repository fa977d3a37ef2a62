// Package persist stores memory snapshots in an external key-value
// backend so they survive process restarts.
//
// The backend holds opaque JSON text under keys of the form
// mnemon:<subject>:<store>, where store is one of "blocks", "turns",
// "session", or "summaries". Redis and etcd backends are provided, plus
// an in-process MemoryBackend for tests.
//
// Persistence is deliberately best-effort. In-memory state is
// authoritative and is always updated before the backend is touched, so
// a write failure degrades durability but never correctness: the
// Adapter logs the failure and the session continues in memory.
package persist
