package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// ErrBackendClosed is returned by backends after Close.
var ErrBackendClosed = errors.New("persist: backend closed")

// Backend is the external key-value store contract. Values are opaque
// serialized text; keys are namespaced by subject and store name via Key.
// A missing key is reported through the bool, not an error.
type Backend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Close() error
}

// Key builds the backend key for one store of one subject.
func Key(subject, store string) string {
	return fmt.Sprintf("mnemon:%s:%s", subject, store)
}

// Adapter serializes store snapshots to a Backend on behalf of one
// subject. Writes are best-effort: the in-memory state is authoritative
// and is updated before the adapter is invoked, so a failed write is
// logged and forgotten, never surfaced as an operation failure. Reads
// happen only at initialization; a malformed snapshot is treated the
// same as an absent one so the affected store falls back to defaults.
//
// A nil Backend puts the adapter in memory-only mode: every call becomes
// a no-op and a single warning is logged at construction.
type Adapter struct {
	backend Backend
	subject string
	logger  *slog.Logger
}

// NewAdapter creates an adapter for the given subject. Backend may be
// nil for memory-only operation.
func NewAdapter(backend Backend, subject string, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	if backend == nil {
		logger.Warn("no persistence backend configured, memory state will not survive restarts",
			"subject", subject)
	}
	return &Adapter{backend: backend, subject: subject, logger: logger}
}

// Enabled reports whether a backend is configured.
func (a *Adapter) Enabled() bool {
	return a.backend != nil
}

// Save serializes v under the named store. Failures are logged, never
// returned.
func (a *Adapter) Save(ctx context.Context, store string, v any) {
	if a.backend == nil {
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		a.logger.Warn("failed to serialize store snapshot",
			"store", store,
			"error", err)
		return
	}
	if err := a.backend.Set(ctx, Key(a.subject, store), string(data)); err != nil {
		a.logger.Warn("persistence write failed, continuing in memory",
			"store", store,
			"error", err)
	}
}

// Load deserializes the named store into v, reporting whether a usable
// snapshot was found. Backend failures and malformed snapshots both
// return false so the caller falls back to defaults.
func (a *Adapter) Load(ctx context.Context, store string, v any) bool {
	if a.backend == nil {
		return false
	}

	data, found, err := a.backend.Get(ctx, Key(a.subject, store))
	if err != nil {
		a.logger.Warn("persistence read failed, using defaults",
			"store", store,
			"error", err)
		return false
	}
	if !found {
		return false
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		a.logger.Warn("stored snapshot is malformed, using defaults",
			"store", store,
			"error", err)
		return false
	}
	return true
}

// Clear removes the named stores from the backend. Best-effort, like
// Save.
func (a *Adapter) Clear(ctx context.Context, stores ...string) {
	if a.backend == nil {
		return
	}
	for _, store := range stores {
		if err := a.backend.Remove(ctx, Key(a.subject, store)); err != nil {
			a.logger.Warn("persistence remove failed",
				"store", store,
				"error", err)
		}
	}
}
