// Package testkit provides in-memory implementations of the store, the
// queue and the collaborator subsystems for tests.
package testkit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavitrk/retirepipe/internal/retirement"
	"github.com/pavitrk/retirepipe/internal/states"
)

type lease struct {
	owner     string
	expiresAt time.Time
}

// MemoryStore mirrors the postgres store's semantics, including the
// one-active-record-per-user rule and the dead-end re-check on Advance.
type MemoryStore struct {
	reg *states.Registry

	mu      sync.Mutex
	records map[string]*retirement.Record
	leases  map[string]lease
}

func NewMemoryStore(reg *states.Registry) *MemoryStore {
	return &MemoryStore{
		reg:     reg,
		records: make(map[string]*retirement.Record),
		leases:  make(map[string]lease),
	}
}

func (s *MemoryStore) Registry() *states.Registry { return s.reg }

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func clone(rec *retirement.Record) retirement.Record {
	out := *rec
	out.Responses = append([]retirement.Response(nil), rec.Responses...)
	return out
}

func (s *MemoryStore) CreateRetirement(ctx context.Context, user retirement.Snapshot) (retirement.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.records {
		st, err := s.reg.ByName(rec.CurrentState)
		if err != nil {
			return retirement.Record{}, err
		}
		if rec.UserID == user.UserID && !st.DeadEnd() {
			return retirement.Record{}, retirement.ErrAlreadyInProgress
		}
	}

	now := time.Now().UTC()
	initial := s.reg.Initial()
	rec := &retirement.Record{
		ID:               uuid.New().String(),
		UserID:           user.UserID,
		OriginalUsername: user.Username,
		OriginalEmail:    user.Email,
		OriginalName:     user.Name,
		CurrentState:     initial.Name,
		LastState:        initial.Name,
		Created:          now,
		Modified:         now,
	}
	s.records[rec.ID] = rec
	return clone(rec), nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (retirement.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return retirement.Record{}, retirement.ErrNotFound
	}
	return clone(rec), nil
}

func (s *MemoryStore) GetByUser(ctx context.Context, userID string) (retirement.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *retirement.Record
	for _, rec := range s.records {
		if rec.UserID != userID {
			continue
		}
		if latest == nil || rec.Created.After(latest.Created) {
			latest = rec
		}
	}
	if latest == nil {
		return retirement.Record{}, retirement.ErrNotFound
	}
	return clone(latest), nil
}

func (s *MemoryStore) Advance(ctx context.Context, id, target, note string, allowSkip bool) (retirement.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return retirement.Record{}, retirement.ErrNotFound
	}
	current, err := s.reg.ByName(rec.CurrentState)
	if err != nil {
		return retirement.Record{}, err
	}
	targetState, err := s.reg.ByName(target)
	if err != nil {
		return retirement.Record{}, err
	}
	if err := retirement.ValidateTransition(s.reg, current, targetState, allowSkip); err != nil {
		return retirement.Record{}, err
	}

	now := time.Now().UTC()
	if target == current.Name {
		rec.Attempts++
	} else {
		rec.LastState = rec.CurrentState
		rec.CurrentState = target
		rec.Attempts = 0
	}
	rec.Responses = append(rec.Responses, retirement.Response{State: target, Note: note, At: now})
	rec.Modified = now
	return clone(rec), nil
}

func (s *MemoryStore) AppendResponse(ctx context.Context, id, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return retirement.ErrNotFound
	}
	st, err := s.reg.ByName(rec.CurrentState)
	if err != nil {
		return err
	}
	if st.DeadEnd() {
		return fmt.Errorf("%w: %s", retirement.ErrAlreadyTerminal, rec.CurrentState)
	}
	now := time.Now().UTC()
	rec.Responses = append(rec.Responses, retirement.Response{State: rec.CurrentState, Note: note, At: now})
	rec.Modified = now
	return nil
}

func (s *MemoryStore) SetRetiredIdentity(ctx context.Context, id, username, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return retirement.ErrNotFound
	}
	rec.RetiredUsername = username
	rec.RetiredEmail = email
	rec.Modified = time.Now().UTC()
	return nil
}

func (s *MemoryStore) SetTraceparent(ctx context.Context, id, traceparent string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return retirement.ErrNotFound
	}
	rec.Traceparent = traceparent
	return nil
}

func (s *MemoryStore) List(ctx context.Context, f retirement.Filter) ([]retirement.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []retirement.Record
	for _, rec := range s.records {
		st, err := s.reg.ByName(rec.CurrentState)
		if err != nil {
			return nil, err
		}
		if f.StateName != "" && rec.CurrentState != f.StateName {
			continue
		}
		if f.DeadEnd != nil && st.DeadEnd() != *f.DeadEnd {
			continue
		}
		if !f.OlderThan.IsZero() && !rec.Modified.Before(f.OlderThan) {
			continue
		}
		out = append(out, clone(rec))
	}
	return out, nil
}

func (s *MemoryStore) Stats(ctx context.Context) (retirement.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st retirement.Stats
	for _, rec := range s.records {
		st.Total++
		switch rec.CurrentState {
		case states.StatePending:
			st.Pending++
			st.Active++
		case states.StateErrored:
			st.Errored++
		case states.StateAborted:
			st.Aborted++
		case states.StateComplete:
			st.Complete++
		default:
			st.Active++
		}
	}
	return st, nil
}

func (s *MemoryStore) AcquireLease(ctx context.Context, id, owner string, now time.Time, leaseFor time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return false, nil
	}
	st, err := s.reg.ByName(rec.CurrentState)
	if err != nil {
		return false, err
	}
	if st.DeadEnd() {
		return false, nil
	}
	if l, held := s.leases[id]; held && l.expiresAt.After(now) {
		return false, nil
	}
	s.leases[id] = lease{owner: owner, expiresAt: now.Add(leaseFor)}
	return true, nil
}

func (s *MemoryStore) RenewLease(ctx context.Context, id, owner string, now time.Time, leaseFor time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, held := s.leases[id]
	if !held || l.owner != owner {
		return false, nil
	}
	s.leases[id] = lease{owner: owner, expiresAt: now.Add(leaseFor)}
	return true, nil
}

func (s *MemoryStore) ResetLease(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.leases, id)
	return nil
}

func (s *MemoryStore) ListExpiredLeases(ctx context.Context, now time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, l := range s.leases {
		if len(ids) >= limit {
			break
		}
		if !l.expiresAt.After(now) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *MemoryStore) ListStalled(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, rec := range s.records {
		if len(ids) >= limit {
			break
		}
		st, err := s.reg.ByName(rec.CurrentState)
		if err != nil {
			return nil, err
		}
		if st.DeadEnd() {
			continue
		}
		if _, held := s.leases[id]; held {
			continue
		}
		if rec.Modified.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
