package sqlstore

import (
	"context"
	"fmt"

	"github.com/founderfund/waitlist/internal/domain"
	"github.com/founderfund/waitlist/internal/service/status"
)

func (s *Store) CreateStatusCheck(ctx context.Context, c *domain.StatusCheck) error {
	_, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO waitlist_status_checks (id, client_name, created_at) VALUES (?, ?, ?)`,
	), c.ID, c.ClientName, s.dialect.TimeArg(c.Timestamp))
	if err != nil {
		return fmt.Errorf("create status check: %w", err)
	}
	return nil
}

func (s *Store) ListStatusChecks(ctx context.Context, limit int) ([]domain.StatusCheck, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, client_name, created_at
		FROM waitlist_status_checks
		ORDER BY created_at DESC
		LIMIT ?
	`), limit)
	if err != nil {
		return nil, fmt.Errorf("list status checks: %w", err)
	}
	defer rows.Close()

	var out []domain.StatusCheck
	for rows.Next() {
		var (
			c  domain.StatusCheck
			ts timeValue
		)
		if err := rows.Scan(&c.ID, &c.ClientName, &ts); err != nil {
			return nil, fmt.Errorf("scan status check: %w", err)
		}
		c.Timestamp = ts.t
		out = append(out, c)
	}
	return out, rows.Err()
}

var _ status.Repository = (*Store)(nil)
