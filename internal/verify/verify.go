// Package verify re-derives whether the observable account state is
// consistent with what a retirement record claims. It never mutates
// state machine data; it only reports.
package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pavitrk/retirepipe/internal/collab"
	"github.com/pavitrk/retirepipe/internal/retirement"
	"github.com/pavitrk/retirepipe/internal/states"
)

var ErrInconsistentTerminalState = errors.New("terminal state inconsistent with observable account state")

type Verifier struct {
	identity    collab.Identity
	enrollments collab.Enrollments
	anonymizer  collab.Anonymizer
}

func New(identity collab.Identity, enrollments collab.Enrollments, anonymizer collab.Anonymizer) *Verifier {
	return &Verifier{identity: identity, enrollments: enrollments, anonymizer: anonymizer}
}

// VerifyComplete asserts that every required, irreversible effect of a
// completed retirement is actually observable: identity locked and
// anonymized, account inactive, profile PII gone, no active
// enrollments. The returned error wraps ErrInconsistentTerminalState
// and lists each missing effect.
func (v *Verifier) VerifyComplete(ctx context.Context, rec retirement.Record) error {
	var findings []string

	view, err := v.identity.View(ctx, rec.UserID)
	if err != nil {
		return fmt.Errorf("inspect identity: %w", err)
	}

	wantUsername := rec.RetiredUsername
	if wantUsername == "" {
		wantUsername = v.anonymizer.RetiredUsername(rec.OriginalUsername)
	}
	wantEmail := rec.RetiredEmail
	if wantEmail == "" {
		wantEmail = v.anonymizer.RetiredEmail(rec.OriginalEmail)
	}

	if view.Active {
		findings = append(findings, "identity is still active")
	}
	if view.Username != wantUsername {
		findings = append(findings, fmt.Sprintf("username is %q, want retired form %q", view.Username, wantUsername))
	}
	if view.Email != wantEmail {
		findings = append(findings, fmt.Sprintf("email is %q, want retired form %q", view.Email, wantEmail))
	}
	if view.FullName != "" {
		findings = append(findings, "profile name not cleared")
	}

	active, err := v.enrollments.Active(ctx, rec.OriginalUsername)
	if err != nil {
		return fmt.Errorf("inspect enrollments: %w", err)
	}
	if len(active) > 0 {
		findings = append(findings, fmt.Sprintf("%d enrollments still active", len(active)))
	}

	if len(findings) > 0 {
		return fmt.Errorf("%w: %s", ErrInconsistentTerminalState, strings.Join(findings, "; "))
	}
	return nil
}

// EffectLanded reports whether the executor bound to stateName has
// observably taken effect, used during recovery to decide between
// re-running the last step and advancing past it. Re-running is always
// safe, so unknown states report false.
func (v *Verifier) EffectLanded(ctx context.Context, rec retirement.Record, stateName string) (bool, error) {
	switch stateName {
	case states.StateLockingAccount:
		view, err := v.identity.View(ctx, rec.UserID)
		if err != nil {
			return false, err
		}
		return view.Username != rec.OriginalUsername, nil
	case states.StateRetiringLMS:
		view, err := v.identity.View(ctx, rec.UserID)
		if err != nil {
			return false, err
		}
		return !view.Active && view.FullName == "", nil
	case states.StateRetiringEnrollments:
		active, err := v.enrollments.Active(ctx, rec.OriginalUsername)
		if err != nil {
			return false, err
		}
		return len(active) == 0, nil
	default:
		return false, nil
	}
}

// FastForward applies the important retirement effects directly,
// bypassing the pipeline, then checks the result would satisfy a
// COMPLETE claim. Used in tests and in recovery when all effects are
// already known to have occurred. Every effect applied here is
// idempotent, so fast-forwarding a partially retired account is safe.
func (v *Verifier) FastForward(ctx context.Context, rec retirement.Record) error {
	if _, _, err := v.identity.LockIdentity(ctx, rec.UserID); err != nil {
		return fmt.Errorf("lock identity: %w", err)
	}
	if err := v.identity.Deactivate(ctx, rec.UserID); err != nil {
		return fmt.Errorf("deactivate: %w", err)
	}
	if err := v.identity.ClearProfilePII(ctx, rec.UserID); err != nil {
		return fmt.Errorf("clear profile pii: %w", err)
	}
	if err := v.enrollments.UnenrollAll(ctx, rec.OriginalUsername); err != nil {
		return fmt.Errorf("unenroll all: %w", err)
	}
	return v.VerifyComplete(ctx, rec)
}
