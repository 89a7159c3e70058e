package retirement

import (
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("retirement not found")
	ErrAlreadyInProgress = errors.New("retirement already in progress")
	ErrAlreadyTerminal   = errors.New("retirement already at a dead-end state")
	ErrInvalidTransition = errors.New("invalid state transition")
)

// Snapshot captures the identity being retired as it looked before any
// destructive step ran. It is immutable once the record is created and
// feeds downstream notification and audit.
type Snapshot struct {
	UserID   string
	Username string
	Email    string
	Name     string
}

// Response is one entry in the append-only audit log: the outcome or
// diagnostic text an executor produced while the record was at State.
type Response struct {
	State string    `json:"state"`
	Note  string    `json:"note"`
	At    time.Time `json:"at"`
}

// Record tracks one user's retirement progress. A user has at most one
// record that is not at a dead-end state. Records are never deleted;
// a dead-end state marks logical end of life.
type Record struct {
	ID string

	UserID           string
	OriginalUsername string
	OriginalEmail    string
	OriginalName     string

	// Set by the account-locking step once the anonymizer has run.
	RetiredUsername string
	RetiredEmail    string

	CurrentState string
	// LastState holds the state immediately prior to the most recent
	// transition. current == last means the record has not moved since
	// creation or is re-attempting the same state.
	LastState string

	Responses []Response

	// Attempts counts executor invocations for the current state. It
	// resets on every transition to a different state.
	Attempts int

	Traceparent string

	Created  time.Time
	Modified time.Time
}

// Filter narrows List results. Nil/zero fields match everything.
type Filter struct {
	StateName string
	DeadEnd   *bool
	OlderThan time.Time
	Limit     int
	Offset    int
}

// Stats are aggregate counts for reporting.
type Stats struct {
	Total    int
	Pending  int
	Active   int
	Errored  int
	Aborted  int
	Complete int
}
