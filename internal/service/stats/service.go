// Package stats derives aggregate waitlist counts from the signup store.
package stats

import (
	"context"
	"iter"
	"time"

	"github.com/founderfund/waitlist/internal/domain"
	"github.com/founderfund/waitlist/internal/service/signup"
)

const defaultTimeout = 5 * time.Second

// Reader is the read side of signup.Repository.
type Reader interface {
	Count(ctx context.Context, filter signup.CountFilter) (int, error)
	All(ctx context.Context) iter.Seq2[domain.Signup, error]
}

// Snapshot is a point-in-time view of the waitlist.
type Snapshot struct {
	Total  int            `json:"total"`
	ByRole map[string]int `json:"by_role"`
}

// Role returns the count for role, zero if none were observed.
func (s *Snapshot) Role(role string) int { return s.ByRole[role] }

// Service computes snapshots. It holds no state between calls.
type Service struct {
	repo    Reader
	timeout time.Duration
}

// NewService creates a new stats service. Each store read is bounded by
// timeout; zero selects 5s.
func NewService(repo Reader, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Service{repo: repo, timeout: timeout}
}

// Snapshot streams every committed signup once to count roles, then reads
// the total. Records are never deleted, so a write landing in between can
// only raise Total: Total >= sum(ByRole) always holds.
func (s *Service) Snapshot(ctx context.Context) (*Snapshot, error) {
	byRole, err := s.countRoles(ctx)
	if err != nil {
		return nil, &signup.StorageError{Op: "list", Err: err}
	}

	total, err := s.count(ctx)
	if err != nil {
		return nil, &signup.StorageError{Op: "count", Err: err}
	}

	return &Snapshot{Total: total, ByRole: byRole}, nil
}

func (s *Service) countRoles(ctx context.Context) (map[string]int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	byRole := make(map[string]int, len(domain.KnownRoles))
	for _, role := range domain.KnownRoles {
		byRole[role] = 0
	}
	for rec, err := range s.repo.All(ctx) {
		if err != nil {
			return nil, err
		}
		byRole[rec.Role]++
	}
	return byRole, nil
}

func (s *Service) count(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.repo.Count(ctx, signup.CountFilter{})
}
