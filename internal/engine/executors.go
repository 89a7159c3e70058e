package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/pavitrk/retirepipe/internal/collab"
	"github.com/pavitrk/retirepipe/internal/retirement"
	"github.com/pavitrk/retirepipe/internal/states"
)

// RecordWriter is the narrow slice of the store executors may write
// through. State transitions stay with the engine.
type RecordWriter interface {
	SetRetiredIdentity(ctx context.Context, id, username, email string) error
}

// Deps are the collaborator subsystems the default executors erase from.
// A nil collaborator disables its step: the executor is not registered
// and the driver skips the (optional) state.
type Deps struct {
	Identity    collab.Identity
	Enrollments collab.Enrollments
	Credentials collab.Eraser
	Commerce    collab.Eraser
	Forums      collab.Eraser
	Notes       collab.Eraser
	EmailLists  collab.Eraser
	Partners    collab.PartnerQueue
	Records     RecordWriter
}

// DefaultExecutors builds the executor list for the configured
// collaborators, in pipeline order.
func DefaultExecutors(d Deps) []Executor {
	var out []Executor
	if d.Identity != nil && d.Records != nil {
		out = append(out, &lockAccount{identity: d.Identity, records: d.Records})
	}
	if d.Credentials != nil {
		out = append(out, eraseStep(states.StateRetiringCredentials, states.StateCredentialsComplete, "credentials", d.Credentials))
	}
	if d.Commerce != nil {
		out = append(out, eraseStep(states.StateRetiringEcom, states.StateEcomComplete, "commerce", d.Commerce))
	}
	if d.Forums != nil {
		out = append(out, eraseStep(states.StateRetiringForums, states.StateForumsComplete, "forums", d.Forums))
	}
	if d.EmailLists != nil {
		out = append(out, eraseStep(states.StateRetiringEmailLists, states.StateEmailListsComplete, "email lists", d.EmailLists))
	}
	if d.Enrollments != nil {
		out = append(out, &unenrollAll{enrollments: d.Enrollments})
	}
	if d.Notes != nil {
		out = append(out, eraseStep(states.StateRetiringNotes, states.StateNotesComplete, "notes", d.Notes))
	}
	if d.Identity != nil {
		out = append(out, &retireLMS{identity: d.Identity})
	}
	if d.Partners != nil {
		out = append(out, &notifyPartners{partners: d.Partners})
	}
	return out
}

// lockAccount anonymizes the login identifiers and revokes access.
// This always runs first: once the account is locked, no racing login
// can mutate the account while later steps erase it.
type lockAccount struct {
	identity collab.Identity
	records  RecordWriter
}

func (e *lockAccount) State() string     { return states.StateLockingAccount }
func (e *lockAccount) DoneState() string { return states.StateLockingComplete }

func (e *lockAccount) Execute(ctx context.Context, rec retirement.Record) (string, error) {
	retiredUsername, retiredEmail, err := e.identity.LockIdentity(ctx, rec.UserID)
	if err != nil {
		return "", fmt.Errorf("lock identity: %w", err)
	}
	if err := e.records.SetRetiredIdentity(ctx, rec.ID, retiredUsername, retiredEmail); err != nil {
		return "", fmt.Errorf("record retired identity: %w", err)
	}
	return "account locked as " + retiredUsername, nil
}

type unenrollAll struct {
	enrollments collab.Enrollments
}

func (e *unenrollAll) State() string     { return states.StateRetiringEnrollments }
func (e *unenrollAll) DoneState() string { return states.StateEnrollmentsComplete }

func (e *unenrollAll) Execute(ctx context.Context, rec retirement.Record) (string, error) {
	if err := e.enrollments.UnenrollAll(ctx, rec.OriginalUsername); err != nil {
		return "", fmt.Errorf("unenroll all: %w", err)
	}
	return "unenrolled from all learning activity", nil
}

// retireLMS deactivates the account and scrubs remaining profile PII.
type retireLMS struct {
	identity collab.Identity
}

func (e *retireLMS) State() string     { return states.StateRetiringLMS }
func (e *retireLMS) DoneState() string { return states.StateLMSComplete }

func (e *retireLMS) Execute(ctx context.Context, rec retirement.Record) (string, error) {
	if err := e.identity.Deactivate(ctx, rec.UserID); err != nil {
		return "", fmt.Errorf("deactivate: %w", err)
	}
	if err := e.identity.ClearProfilePII(ctx, rec.UserID); err != nil {
		return "", fmt.Errorf("clear profile pii: %w", err)
	}
	return "account deactivated, profile pii cleared", nil
}

type notifyPartners struct {
	partners collab.PartnerQueue
}

func (e *notifyPartners) State() string     { return states.StateAddingPartnerQueue }
func (e *notifyPartners) DoneState() string { return states.StatePartnerQueueDone }

func (e *notifyPartners) Execute(ctx context.Context, rec retirement.Record) (string, error) {
	notice := collab.PartnerNotice{
		UserID:           rec.UserID,
		OriginalUsername: rec.OriginalUsername,
		OriginalEmail:    rec.OriginalEmail,
		OriginalName:     rec.OriginalName,
		RetiredAt:        time.Now().UTC(),
	}
	if err := e.partners.Notify(ctx, notice); err != nil {
		return "", fmt.Errorf("notify partners: %w", err)
	}
	return "partner queue notified", nil
}

// eraser adapts a single-purpose collab.Eraser to an executor.
type eraser struct {
	state     string
	doneState string
	label     string
	target    collab.Eraser
}

func eraseStep(state, doneState, label string, target collab.Eraser) Executor {
	return &eraser{state: state, doneState: doneState, label: label, target: target}
}

func (e *eraser) State() string     { return e.state }
func (e *eraser) DoneState() string { return e.doneState }

func (e *eraser) Execute(ctx context.Context, rec retirement.Record) (string, error) {
	if err := e.target.Retire(ctx, rec.OriginalUsername, rec.OriginalEmail); err != nil {
		return "", fmt.Errorf("retire %s: %w", e.label, err)
	}
	return e.label + " retired", nil
}
