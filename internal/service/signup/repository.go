package signup

import (
	"context"
	"iter"

	"github.com/founderfund/waitlist/internal/domain"
)

// Repository defines the data access contract for waitlist signups.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Reserve atomically claims s.EmailKey and stages s for insertion.
	// Returns ErrAlreadyExists if another record (committed or reserved)
	// holds the key. The record stays invisible to Count and All until the
	// reservation is committed.
	Reserve(ctx context.Context, s *domain.Signup) (Reservation, error)

	// Count returns the number of committed signups matching the filter.
	Count(ctx context.Context, filter CountFilter) (int, error)

	// All streams every committed signup. Iteration stops at the first error.
	All(ctx context.Context) iter.Seq2[domain.Signup, error]
}

// Reservation is a claimed but not yet visible signup.
type Reservation interface {
	// Commit records the sync outcome and makes the signup visible.
	Commit(ctx context.Context, sync domain.SyncState) error

	// Release abandons the reservation, freeing the email key. Releasing a
	// committed reservation is a no-op.
	Release(ctx context.Context) error
}

// CountFilter restricts Count. An empty Role counts every signup.
type CountFilter struct {
	Role string
}
