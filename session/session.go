// Package session tracks the identity and inactivity-based lifecycle of
// the active conversation session. Exactly one session is current per
// subject; a session that outlives the inactivity timeout is stale and
// must be closed (compacting its turns) before any new turn is accepted.
//
// Expiry is purely inactivity-driven and is checked at subsystem
// (re)initialization. There is no explicit end-session call.
package session

import (
	"time"

	"github.com/google/uuid"
)

// DefaultInactivityTimeout is the default idle duration after which a
// session is considered stale.
const DefaultInactivityTimeout = 30 * time.Minute

// Session is a bounded period of continuous activity for one subject.
type Session struct {
	// ID is an opaque, time-and-random derived identifier.
	ID string `json:"id"`

	StartedAt   time.Time `json:"started_at"`
	LastTouched time.Time `json:"last_touched"`
}

// New creates a fresh session starting at the given instant.
func New(now time.Time) Session {
	return Session{
		ID:          NewID(),
		StartedAt:   now,
		LastTouched: now,
	}
}

// NewID generates an opaque session identifier. UUIDv7 keeps ids sortable
// by creation time while staying unguessable.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Stale reports whether the session has been idle for at least timeout.
func (s Session) Stale(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.LastTouched) >= timeout
}

// Controller owns the current session and applies the inactivity policy.
//
// Controller is not safe for concurrent use; there is exactly one logical
// owner per subject at a time.
type Controller struct {
	current Session
	timeout time.Duration
	now     func() time.Time
}

// NewController creates a controller with the given inactivity timeout.
// A non-positive timeout falls back to DefaultInactivityTimeout; a nil
// now function falls back to time.Now. No session is current until Start
// or Resume is called.
func NewController(timeout time.Duration, now func() time.Time) *Controller {
	if timeout <= 0 {
		timeout = DefaultInactivityTimeout
	}
	if now == nil {
		now = time.Now
	}
	return &Controller{timeout: timeout, now: now}
}

// Start begins a fresh session and makes it current.
func (c *Controller) Start() Session {
	c.current = New(c.now())
	return c.current
}

// Resume adopts a previously stored session as current without altering
// its timestamps.
func (c *Controller) Resume(s Session) {
	c.current = s
}

// Current returns the active session.
func (c *Controller) Current() Session {
	return c.current
}

// Touch refreshes the current session's last-touched timestamp. Every
// successful turn append calls this.
func (c *Controller) Touch() {
	c.current.LastTouched = c.now()
}

// Timeout returns the configured inactivity timeout.
func (c *Controller) Timeout() time.Duration {
	return c.timeout
}

// Expired reports whether a stored session is stale under the
// controller's timeout. A zero-valued session (nothing stored) counts as
// expired so initialization always starts fresh.
func (c *Controller) Expired(s Session) bool {
	if s.ID == "" {
		return true
	}
	return s.Stale(c.now(), c.timeout)
}
