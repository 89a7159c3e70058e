package testkit

import (
	"context"
	"fmt"
	"sync"

	"github.com/pavitrk/retirepipe/internal/collab"
)

// FakeUser is the identity-store view of one account.
type FakeUser struct {
	Username string
	Email    string
	FullName string
	Active   bool

	origUsername string
	origEmail    string
	locked       bool
}

// FakeIdentity is an in-memory identity store with idempotent
// retirement operations, matching the contract real executors rely on.
type FakeIdentity struct {
	Anonymizer collab.Anonymizer

	mu    sync.Mutex
	users map[string]*FakeUser

	LockErr       error
	DeactivateErr error
	ClearErr      error
	LockCalls     int
}

func NewFakeIdentity(anonymizer collab.Anonymizer) *FakeIdentity {
	return &FakeIdentity{
		Anonymizer: anonymizer,
		users:      make(map[string]*FakeUser),
	}
}

func (f *FakeIdentity) AddUser(userID, username, email, fullName string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[userID] = &FakeUser{
		Username:     username,
		Email:        email,
		FullName:     fullName,
		Active:       true,
		origUsername: username,
		origEmail:    email,
	}
}

func (f *FakeIdentity) LockIdentity(ctx context.Context, userID string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.LockCalls++
	if f.LockErr != nil {
		return "", "", f.LockErr
	}
	u, ok := f.users[userID]
	if !ok {
		return "", "", fmt.Errorf("unknown user %s", userID)
	}
	if !u.locked {
		u.Username = f.Anonymizer.RetiredUsername(u.origUsername)
		u.Email = f.Anonymizer.RetiredEmail(u.origEmail)
		u.locked = true
	}
	return u.Username, u.Email, nil
}

func (f *FakeIdentity) Deactivate(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DeactivateErr != nil {
		return f.DeactivateErr
	}
	u, ok := f.users[userID]
	if !ok {
		return fmt.Errorf("unknown user %s", userID)
	}
	u.Active = false
	return nil
}

func (f *FakeIdentity) ClearProfilePII(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ClearErr != nil {
		return f.ClearErr
	}
	u, ok := f.users[userID]
	if !ok {
		return fmt.Errorf("unknown user %s", userID)
	}
	u.FullName = ""
	return nil
}

func (f *FakeIdentity) View(ctx context.Context, userID string) (collab.IdentityView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return collab.IdentityView{}, fmt.Errorf("unknown user %s", userID)
	}
	return collab.IdentityView{
		Username: u.Username,
		Email:    u.Email,
		FullName: u.FullName,
		Active:   u.Active,
	}, nil
}

type FakeEnrollments struct {
	mu      sync.Mutex
	courses map[string][]string

	UnenrollErr error
}

func NewFakeEnrollments() *FakeEnrollments {
	return &FakeEnrollments{courses: make(map[string][]string)}
}

func (f *FakeEnrollments) Enroll(username string, courses ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.courses[username] = append(f.courses[username], courses...)
}

func (f *FakeEnrollments) UnenrollAll(ctx context.Context, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.UnenrollErr != nil {
		return f.UnenrollErr
	}
	delete(f.courses, username)
	return nil
}

func (f *FakeEnrollments) Active(ctx context.Context, username string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.courses[username]...), nil
}

// FakeEraser records Retire calls and can be told to fail the first
// FailTimes invocations with FailWith, which is how retry behavior is
// exercised.
type FakeEraser struct {
	mu sync.Mutex

	FailTimes int
	FailWith  error

	Calls   int
	Retired map[string]bool
}

func NewFakeEraser() *FakeEraser {
	return &FakeEraser{Retired: make(map[string]bool)}
}

func (f *FakeEraser) Retire(ctx context.Context, originalUsername, originalEmail string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	if f.Calls <= f.FailTimes {
		return f.FailWith
	}
	f.Retired[originalUsername] = true
	return nil
}

// FakeDirectory resolves usernames registered with AddUser. Setting
// LookupErr makes every lookup fail with it, standing in for an
// identity service that is down.
type FakeDirectory struct {
	mu    sync.Mutex
	users map[string]collab.UserInfo

	LookupErr error
}

func NewFakeDirectory() *FakeDirectory {
	return &FakeDirectory{users: make(map[string]collab.UserInfo)}
}

func (f *FakeDirectory) AddUser(userID, username, email, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[username] = collab.UserInfo{UserID: userID, Username: username, Email: email, Name: name}
}

func (f *FakeDirectory) Lookup(ctx context.Context, username string) (collab.UserInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.LookupErr != nil {
		return collab.UserInfo{}, f.LookupErr
	}
	info, ok := f.users[username]
	if !ok {
		return collab.UserInfo{}, fmt.Errorf("unknown username %s", username)
	}
	return info, nil
}

type FakePartnerQueue struct {
	mu      sync.Mutex
	Notices []collab.PartnerNotice
}

func (f *FakePartnerQueue) Notify(ctx context.Context, notice collab.PartnerNotice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Notices = append(f.Notices, notice)
	return nil
}
