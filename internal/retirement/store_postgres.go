package retirement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pavitrk/retirepipe/internal/states"
)

type PostgresStore struct {
	pool *pgxpool.Pool
	reg  *states.Registry
}

func NewPostgresStore(pool *pgxpool.Pool, reg *states.Registry) *PostgresStore {
	return &PostgresStore{pool: pool, reg: reg}
}

func (s *PostgresStore) Registry() *states.Registry { return s.reg }

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// EnsureSchema creates the tables and seeds the state catalog. The
// catalog is append-only: existing rows are never renumbered, new states
// are inserted with their fresh execution order.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, catalog []states.State) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS retirement_states (
			name TEXT PRIMARY KEY,
			execution_order INT NOT NULL UNIQUE,
			kind TEXT NOT NULL,
			required BOOLEAN NOT NULL DEFAULT FALSE
		);

		CREATE TABLE IF NOT EXISTS retirements (
			id UUID PRIMARY KEY,
			user_id TEXT NOT NULL,
			original_username TEXT NOT NULL,
			original_email TEXT NOT NULL,
			original_name TEXT NOT NULL,
			retired_username TEXT NOT NULL DEFAULT '',
			retired_email TEXT NOT NULL DEFAULT '',
			current_state TEXT NOT NULL REFERENCES retirement_states(name),
			last_state TEXT NOT NULL REFERENCES retirement_states(name),
			dead_end BOOLEAN NOT NULL DEFAULT FALSE,
			responses JSONB NOT NULL DEFAULT '[]',
			attempts INT NOT NULL DEFAULT 0,
			traceparent TEXT NOT NULL DEFAULT '',
			lease_owner TEXT,
			lease_expires_at TIMESTAMPTZ,
			created TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			modified TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE UNIQUE INDEX IF NOT EXISTS retirements_one_active_per_user
			ON retirements (user_id) WHERE NOT dead_end;
		CREATE INDEX IF NOT EXISTS retirements_current_state
			ON retirements (current_state);
	`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	for _, st := range catalog {
		_, err := pool.Exec(ctx, `
			INSERT INTO retirement_states (name, execution_order, kind, required)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (name) DO NOTHING
		`, st.Name, st.ExecutionOrder, string(st.Kind), st.Required)
		if err != nil {
			return fmt.Errorf("seed state %s: %w", st.Name, err)
		}
	}
	return nil
}

// LoadCatalog reads the persisted state catalog, which may carry states
// appended after the binary shipped.
func LoadCatalog(ctx context.Context, pool *pgxpool.Pool) ([]states.State, error) {
	rows, err := pool.Query(ctx, `
		SELECT name, execution_order, kind, required
		FROM retirement_states
		ORDER BY execution_order ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var catalog []states.State
	for rows.Next() {
		var st states.State
		var kind string
		if err := rows.Scan(&st.Name, &st.ExecutionOrder, &kind, &st.Required); err != nil {
			return nil, err
		}
		st.Kind = states.Kind(kind)
		catalog = append(catalog, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return catalog, nil
}

const recordColumns = `
	id, user_id, original_username, original_email, original_name,
	retired_username, retired_email, current_state, last_state,
	responses, attempts, traceparent, created, modified`

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	var responses []byte
	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.OriginalUsername,
		&rec.OriginalEmail,
		&rec.OriginalName,
		&rec.RetiredUsername,
		&rec.RetiredEmail,
		&rec.CurrentState,
		&rec.LastState,
		&responses,
		&rec.Attempts,
		&rec.Traceparent,
		&rec.Created,
		&rec.Modified,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	if len(responses) > 0 {
		if err := json.Unmarshal(responses, &rec.Responses); err != nil {
			return Record{}, fmt.Errorf("decode responses for %s: %w", rec.ID, err)
		}
	}
	return rec, nil
}

func (s *PostgresStore) CreateRetirement(ctx context.Context, user Snapshot) (Record, error) {
	initial := s.reg.Initial()
	id := uuid.New().String()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO retirements (
			id, user_id, original_username, original_email, original_name,
			current_state, last_state
		)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, id, user.UserID, user.Username, user.Email, user.Name, initial.Name)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Record{}, ErrAlreadyInProgress
		}
		return Record{}, err
	}
	return s.Get(ctx, id)
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Record, error) {
	return scanRecord(s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM retirements WHERE id = $1`, id))
}

func (s *PostgresStore) GetByUser(ctx context.Context, userID string) (Record, error) {
	return scanRecord(s.pool.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM retirements
		WHERE user_id = $1
		ORDER BY created DESC
		LIMIT 1
	`, userID))
}

func (s *PostgresStore) Advance(ctx context.Context, id, target, note string, allowSkip bool) (Record, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return Record{}, err
	}
	current, err := s.reg.ByName(rec.CurrentState)
	if err != nil {
		return Record{}, err
	}
	targetState, err := s.reg.ByName(target)
	if err != nil {
		return Record{}, err
	}
	if err := ValidateTransition(s.reg, current, targetState, allowSkip); err != nil {
		return Record{}, err
	}

	entry, err := json.Marshal([]Response{{State: target, Note: note, At: time.Now().UTC()}})
	if err != nil {
		return Record{}, err
	}

	// Same-state re-attempt keeps last_state and bumps the attempt
	// counter; a real move resets it.
	var tag pgconn.CommandTag
	if target == current.Name {
		tag, err = s.pool.Exec(ctx, `
			UPDATE retirements
			SET attempts = attempts + 1,
				responses = responses || $1::jsonb,
				modified = NOW()
			WHERE id = $2 AND current_state = $3
		`, entry, id, current.Name)
	} else {
		tag, err = s.pool.Exec(ctx, `
			UPDATE retirements
			SET last_state = current_state,
				current_state = $1,
				dead_end = $2,
				attempts = 0,
				responses = responses || $3::jsonb,
				modified = NOW()
			WHERE id = $4 AND current_state = $5
		`, target, targetState.DeadEnd(), entry, id, current.Name)
	}
	if err != nil {
		return Record{}, err
	}
	if tag.RowsAffected() == 0 {
		// The record moved underneath us. An in-flight executor result
		// is discarded once the record reached a dead end concurrently.
		moved, err := s.Get(ctx, id)
		if err != nil {
			return Record{}, err
		}
		if st, err := s.reg.ByName(moved.CurrentState); err == nil && st.DeadEnd() {
			return Record{}, fmt.Errorf("%w: %s", ErrAlreadyTerminal, moved.CurrentState)
		}
		return Record{}, fmt.Errorf("%w: record %s moved concurrently", ErrInvalidTransition, id)
	}
	return s.Get(ctx, id)
}

func (s *PostgresStore) AppendResponse(ctx context.Context, id, note string) error {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	entry, err := json.Marshal([]Response{{State: rec.CurrentState, Note: note, At: time.Now().UTC()}})
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE retirements
		SET responses = responses || $1::jsonb,
			modified = NOW()
		WHERE id = $2 AND NOT dead_end
	`, entry, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrAlreadyTerminal, rec.CurrentState)
	}
	return nil
}

func (s *PostgresStore) SetRetiredIdentity(ctx context.Context, id, username, email string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE retirements
		SET retired_username = $1, retired_email = $2, modified = NOW()
		WHERE id = $3
	`, username, email, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetTraceparent(ctx context.Context, id, traceparent string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE retirements SET traceparent = $1 WHERE id = $2
	`, traceparent, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]Record, error) {
	whereParts := []string{"1=1"}
	args := []any{}
	argID := 1

	addArg := func(v any) string {
		args = append(args, v)
		placeholder := fmt.Sprintf("$%d", argID)
		argID++
		return placeholder
	}

	if f.StateName != "" {
		whereParts = append(whereParts, "current_state = "+addArg(f.StateName))
	}
	if f.DeadEnd != nil {
		whereParts = append(whereParts, "dead_end = "+addArg(*f.DeadEnd))
	}
	if !f.OlderThan.IsZero() {
		whereParts = append(whereParts, "modified < "+addArg(f.OlderThan))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + recordColumns + `
		FROM retirements
		WHERE ` + strings.Join(whereParts, " AND ") + `
		ORDER BY created ASC
		LIMIT ` + addArg(limit) + ` OFFSET ` + addArg(f.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(1),
			COUNT(1) FILTER (WHERE current_state = 'PENDING'),
			COUNT(1) FILTER (WHERE NOT dead_end),
			COUNT(1) FILTER (WHERE current_state = 'ERRORED'),
			COUNT(1) FILTER (WHERE current_state = 'ABORTED'),
			COUNT(1) FILTER (WHERE current_state = 'COMPLETE')
		FROM retirements
	`).Scan(&st.Total, &st.Pending, &st.Active, &st.Errored, &st.Aborted, &st.Complete)
	if err != nil {
		return Stats{}, err
	}
	return st, nil
}

func (s *PostgresStore) AcquireLease(ctx context.Context, id, owner string, now time.Time, leaseFor time.Duration) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE retirements
		SET lease_owner = $1, lease_expires_at = $2
		WHERE id = $3
			AND NOT dead_end
			AND (lease_expires_at IS NULL OR lease_expires_at <= $4)
	`, owner, now.Add(leaseFor), id, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) RenewLease(ctx context.Context, id, owner string, now time.Time, leaseFor time.Duration) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE retirements
		SET lease_expires_at = $1
		WHERE id = $2 AND lease_owner = $3
	`, now.Add(leaseFor), id, owner)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ResetLease(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE retirements
		SET lease_owner = NULL, lease_expires_at = NULL
		WHERE id = $1
	`, id)
	return err
}

func (s *PostgresStore) ListExpiredLeases(ctx context.Context, now time.Time, limit int) ([]string, error) {
	return s.listIDs(ctx, `
		SELECT id
		FROM retirements
		WHERE NOT dead_end
			AND lease_expires_at IS NOT NULL
			AND lease_expires_at <= $1
		ORDER BY lease_expires_at ASC
		LIMIT $2
	`, now, limit)
}

func (s *PostgresStore) ListStalled(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	return s.listIDs(ctx, `
		SELECT id
		FROM retirements
		WHERE NOT dead_end
			AND lease_owner IS NULL
			AND modified < $1
		ORDER BY modified ASC
		LIMIT $2
	`, cutoff, limit)
}

func (s *PostgresStore) listIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
