package signuptest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/founderfund/waitlist/internal/domain"
	"github.com/founderfund/waitlist/internal/service/signup"
)

// NewRecord builds a valid uncommitted signup for email and role.
func NewRecord(email, role string) *domain.Signup {
	return &domain.Signup{
		ID:           uuid.New().String(),
		Email:        email,
		EmailKey:     domain.NormalizeEmail(email),
		Role:         role,
		FounderStage: "MVP",
		BiggestPain:  "Finding investors",
		DetailedPain: "Warm intros are hard to get",
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
		Sync:         domain.NotAttempted(),
	}
}

// Insert reserves and commits rec with sync state st.
func Insert(t *testing.T, repo signup.Repository, rec *domain.Signup, st domain.SyncState) {
	t.Helper()
	res, err := repo.Reserve(context.Background(), rec)
	require.NoError(t, err)
	require.NoError(t, res.Commit(context.Background(), st))
	rec.Sync = st
}

// Collect drains All into a map keyed by ID.
func Collect(t *testing.T, repo signup.Repository) map[string]domain.Signup {
	t.Helper()
	out := make(map[string]domain.Signup)
	for s, err := range repo.All(context.Background()) {
		require.NoError(t, err)
		out[s.ID] = s
	}
	return out
}

// RunRepositoryContract exercises the behavior every signup.Repository
// must provide. newRepo must return an empty repository.
func RunRepositoryContract(t *testing.T, newRepo func(t *testing.T) signup.Repository) {
	ctx := context.Background()

	t.Run("CommitMakesRecordVisible", func(t *testing.T) {
		repo := newRepo(t)
		rec := NewRecord("Jane@Example.com", domain.RoleFounder)

		res, err := repo.Reserve(ctx, rec)
		require.NoError(t, err)

		n, err := repo.Count(ctx, signup.CountFilter{})
		require.NoError(t, err)
		assert.Equal(t, 0, n, "reserved record must not be counted")
		assert.Empty(t, Collect(t, repo))

		st := domain.Synced("hash-1", "pending")
		require.NoError(t, res.Commit(ctx, st))

		n, err = repo.Count(ctx, signup.CountFilter{})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		all := Collect(t, repo)
		require.Len(t, all, 1)
		got := all[rec.ID]
		assert.Equal(t, rec.Email, got.Email)
		assert.Equal(t, rec.EmailKey, got.EmailKey)
		assert.Equal(t, rec.Role, got.Role)
		assert.Equal(t, rec.FounderStage, got.FounderStage)
		assert.Equal(t, rec.FundingStage, got.FundingStage)
		assert.Equal(t, rec.BiggestPain, got.BiggestPain)
		assert.Equal(t, rec.DetailedPain, got.DetailedPain)
		assert.True(t, rec.CreatedAt.Equal(got.CreatedAt), "created_at %v != %v", rec.CreatedAt, got.CreatedAt)
		assert.Equal(t, st, got.Sync)
	})

	t.Run("DuplicateKeyRejected", func(t *testing.T) {
		repo := newRepo(t)
		Insert(t, repo, NewRecord("a@example.com", domain.RoleFounder), domain.NotAttempted())

		_, err := repo.Reserve(ctx, NewRecord("A@EXAMPLE.COM", domain.RoleInvestor))
		assert.True(t, errors.Is(err, signup.ErrAlreadyExists), "got %v", err)

		n, err := repo.Count(ctx, signup.CountFilter{})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("PendingReservationBlocksKey", func(t *testing.T) {
		repo := newRepo(t)
		res, err := repo.Reserve(ctx, NewRecord("b@example.com", domain.RoleFund))
		require.NoError(t, err)
		defer res.Release(ctx)

		_, err = repo.Reserve(ctx, NewRecord("b@example.com", domain.RoleFund))
		assert.True(t, errors.Is(err, signup.ErrAlreadyExists), "got %v", err)
	})

	t.Run("ReleaseFreesKey", func(t *testing.T) {
		repo := newRepo(t)
		res, err := repo.Reserve(ctx, NewRecord("c@example.com", domain.RoleFounder))
		require.NoError(t, err)
		require.NoError(t, res.Release(ctx))

		Insert(t, repo, NewRecord("c@example.com", domain.RoleInvestor), domain.Failed())
		n, err := repo.Count(ctx, signup.CountFilter{Role: domain.RoleInvestor})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("ReleaseAfterCommitIsNoop", func(t *testing.T) {
		repo := newRepo(t)
		rec := NewRecord("d@example.com", domain.RoleFounder)
		res, err := repo.Reserve(ctx, rec)
		require.NoError(t, err)
		require.NoError(t, res.Commit(ctx, domain.NotAttempted()))
		_ = res.Release(ctx)

		assert.Contains(t, Collect(t, repo), rec.ID)
	})

	t.Run("CountByRole", func(t *testing.T) {
		repo := newRepo(t)
		roles := []string{domain.RoleFounder, domain.RoleFounder, domain.RoleInvestor, domain.RoleFund, "Advisor"}
		for i, role := range roles {
			Insert(t, repo, NewRecord(fmt.Sprintf("user%d@example.com", i), role), domain.NotAttempted())
		}

		want := map[string]int{domain.RoleFounder: 2, domain.RoleInvestor: 1, domain.RoleFund: 1, "Advisor": 1, "Nobody": 0}
		for role, n := range want {
			got, err := repo.Count(ctx, signup.CountFilter{Role: role})
			require.NoError(t, err)
			assert.Equal(t, n, got, role)
		}
		total, err := repo.Count(ctx, signup.CountFilter{})
		require.NoError(t, err)
		assert.Equal(t, len(roles), total)
		assert.Len(t, Collect(t, repo), len(roles))
	})

	t.Run("AllStopsEarly", func(t *testing.T) {
		repo := newRepo(t)
		for i := 0; i < 3; i++ {
			Insert(t, repo, NewRecord(fmt.Sprintf("early%d@example.com", i), domain.RoleFund), domain.NotAttempted())
		}
		seen := 0
		for _, err := range repo.All(ctx) {
			require.NoError(t, err)
			seen++
			break
		}
		assert.Equal(t, 1, seen)
	})

	t.Run("ConcurrentReserveSameKey", func(t *testing.T) {
		repo := newRepo(t)
		const n = 20

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			wins      int
			conflicts int
			others    []error
		)
		start := make(chan struct{})
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				email := "race@example.com"
				if i%2 == 1 {
					email = "RACE@example.com"
				}
				res, err := repo.Reserve(ctx, NewRecord(email, domain.RoleFounder))
				if err == nil {
					err = res.Commit(ctx, domain.NotAttempted())
				}
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case errors.Is(err, signup.ErrAlreadyExists):
					conflicts++
				default:
					others = append(others, err)
				}
			}(i)
		}
		close(start)
		wg.Wait()

		assert.Empty(t, others)
		assert.Equal(t, 1, wins)
		assert.Equal(t, n-1, conflicts)

		total, err := repo.Count(ctx, signup.CountFilter{})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
	})
}
