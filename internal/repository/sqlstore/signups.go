package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"iter"

	"github.com/founderfund/waitlist/internal/domain"
	"github.com/founderfund/waitlist/internal/service/signup"
)

const stateReserved = "reserved"

const signupColumns = `id, email, email_key, role, founder_stage, funding_stage,
	biggest_pain, detailed_pain, created_at, sync_status, sync_external_id, sync_external_status`

// Reserve inserts s as a reserved row. The unique index on email_key
// rejects a second reservation for the same email.
func (s *Store) Reserve(ctx context.Context, rec *domain.Signup) (signup.Reservation, error) {
	now := s.clock()

	// A reservation left behind by a crashed process would block the email
	// forever; expired ones are reclaimed here.
	if _, err := s.db.ExecContext(ctx, s.q(`
		DELETE FROM waitlist_signups
		WHERE email_key = ? AND record_state = 'reserved' AND reserved_until < ?
	`), rec.EmailKey, s.dialect.TimeArg(now)); err != nil {
		return nil, fmt.Errorf("reclaim expired reservation: %w", err)
	}

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO waitlist_signups (`+signupColumns+`, record_state, reserved_until)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		rec.ID, rec.Email, rec.EmailKey, rec.Role, rec.FounderStage, rec.FundingStage,
		rec.BiggestPain, rec.DetailedPain, s.dialect.TimeArg(rec.CreatedAt),
		string(rec.Sync.Status), rec.Sync.ExternalID, rec.Sync.ExternalStatus,
		stateReserved, s.dialect.TimeArg(now.Add(s.reservationTTL)),
	)
	if err != nil {
		if s.dialect.IsUniqueViolation(err) {
			return nil, signup.ErrAlreadyExists
		}
		return nil, fmt.Errorf("reserve signup: %w", err)
	}
	return &reservation{store: s, id: rec.ID}, nil
}

type reservation struct {
	store *Store
	id    string
}

func (r *reservation) Commit(ctx context.Context, st domain.SyncState) error {
	res, err := r.store.db.ExecContext(ctx, r.store.q(`
		UPDATE waitlist_signups
		SET record_state = 'committed', sync_status = ?, sync_external_id = ?, sync_external_status = ?
		WHERE id = ? AND record_state = 'reserved'
	`), string(st.Status), st.ExternalID, st.ExternalStatus, r.id)
	if err != nil {
		return fmt.Errorf("commit signup: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("commit signup: %w", err)
	}
	if n == 0 {
		return signup.ErrReservationLost
	}
	return nil
}

func (r *reservation) Release(ctx context.Context) error {
	_, err := r.store.db.ExecContext(ctx, r.store.q(
		`DELETE FROM waitlist_signups WHERE id = ? AND record_state = 'reserved'`,
	), r.id)
	if err != nil {
		return fmt.Errorf("release signup: %w", err)
	}
	return nil
}

// Count returns the number of committed signups matching f.
func (s *Store) Count(ctx context.Context, f signup.CountFilter) (int, error) {
	query := `SELECT COUNT(*) FROM waitlist_signups WHERE record_state = 'committed'`
	var args []any
	if f.Role != "" {
		query += ` AND role = ?`
		args = append(args, f.Role)
	}

	var n int
	if err := s.db.QueryRowContext(ctx, s.q(query), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count signups: %w", err)
	}
	return n, nil
}

// All streams committed signups oldest first over a single rows cursor.
func (s *Store) All(ctx context.Context) iter.Seq2[domain.Signup, error] {
	return func(yield func(domain.Signup, error) bool) {
		rows, err := s.db.QueryContext(ctx, `
			SELECT `+signupColumns+`
			FROM waitlist_signups
			WHERE record_state = 'committed'
			ORDER BY created_at, id
		`)
		if err != nil {
			yield(domain.Signup{}, fmt.Errorf("list signups: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			rec, err := scanSignup(rows)
			if err != nil {
				yield(domain.Signup{}, err)
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(domain.Signup{}, fmt.Errorf("list signups: %w", err))
		}
	}
}

func scanSignup(rows *sql.Rows) (domain.Signup, error) {
	var (
		rec     domain.Signup
		created timeValue
		status  string
	)
	if err := rows.Scan(
		&rec.ID, &rec.Email, &rec.EmailKey, &rec.Role, &rec.FounderStage, &rec.FundingStage,
		&rec.BiggestPain, &rec.DetailedPain, &created,
		&status, &rec.Sync.ExternalID, &rec.Sync.ExternalStatus,
	); err != nil {
		return domain.Signup{}, fmt.Errorf("scan signup: %w", err)
	}
	rec.CreatedAt = created.t
	rec.Sync.Status = domain.SyncStatus(status)
	return rec, nil
}

var _ signup.Repository = (*Store)(nil)
