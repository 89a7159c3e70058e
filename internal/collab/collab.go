// Package collab declares the external subsystems the retirement engine
// erases PII from. Each collaborator is owned and operated independently
// and fails independently; executors must not assume transactional
// consistency between any of them and the retirement record store.
package collab

import (
	"context"
	"time"
)

// IdentityView is the observable identity state, used by the verifier
// to check that irreversible effects actually landed.
type IdentityView struct {
	Username string
	Email    string
	FullName string
	Active   bool
}

// Identity is the account/identity store.
type Identity interface {
	// LockIdentity replaces the login identifiers with their retired
	// forms, revokes the password and unlinks third-party social-auth
	// sign-in methods, so no login path survives. Re-locking an already
	// locked identity succeeds and returns the same retired identifiers.
	LockIdentity(ctx context.Context, userID string) (retiredUsername, retiredEmail string, err error)
	Deactivate(ctx context.Context, userID string) error
	ClearProfilePII(ctx context.Context, userID string) error
	View(ctx context.Context, userID string) (IdentityView, error)
}

// Enrollments is the learning-activity enrollment service.
type Enrollments interface {
	UnenrollAll(ctx context.Context, username string) error
	Active(ctx context.Context, username string) ([]string, error)
}

// Eraser is the shape of the single-purpose collaborators that scrub
// one subsystem's copy of a user's data: credentials, commerce, forums,
// notes and email lists. Retire must be a no-op on already-erased data.
type Eraser interface {
	Retire(ctx context.Context, originalUsername, originalEmail string) error
}

// PartnerNotice tells downstream partners which identifiers to purge on
// their side. It carries the originals: partners never saw the retired
// forms.
type PartnerNotice struct {
	UserID           string    `json:"userId"`
	OriginalUsername string    `json:"originalUsername"`
	OriginalEmail    string    `json:"originalEmail"`
	OriginalName     string    `json:"originalName"`
	RetiredAt        time.Time `json:"retiredAt"`
}

// PartnerQueue delivers retirement notices to downstream partners.
type PartnerQueue interface {
	Notify(ctx context.Context, notice PartnerNotice) error
}

// Directory resolves a username to the identity snapshot a retirement
// record is created from.
type Directory interface {
	Lookup(ctx context.Context, username string) (UserInfo, error)
}

// UserInfo is the pre-retirement identity snapshot source.
type UserInfo struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Name     string `json:"name"`
}

// Anonymizer derives the retired username and email from the originals.
// Implementations must be pure: the same input always yields the same
// retired identifier, so re-running the locking step is idempotent.
type Anonymizer interface {
	RetiredUsername(original string) string
	RetiredEmail(original string) string
}
