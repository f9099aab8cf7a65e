package dynamo

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/founderfund/waitlist/internal/domain"
	"github.com/founderfund/waitlist/internal/service/signup"
	"github.com/founderfund/waitlist/internal/service/signup/signuptest"
)

func newTestStore(t *testing.T) (*Store, *fakeDynamo) {
	t.Helper()
	fake := newFakeDynamo("signups", "status")
	return New(fake, "signups", "status", 10*time.Second), fake
}

func TestStore_Contract(t *testing.T) {
	signuptest.RunRepositoryContract(t, func(t *testing.T) signup.Repository {
		store, _ := newTestStore(t)
		return store
	})
}

func TestReserve_ReclaimsExpiredReservation(t *testing.T) {
	store, _ := newTestStore(t)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store.clock = func() time.Time { return now }
	ctx := context.Background()

	stale, err := store.Reserve(ctx, signuptest.NewRecord("ghost@example.com", domain.RoleFounder))
	require.NoError(t, err)

	_, err = store.Reserve(ctx, signuptest.NewRecord("ghost@example.com", domain.RoleFounder))
	assert.ErrorIs(t, err, signup.ErrAlreadyExists)

	now = now.Add(11 * time.Second)
	fresh := signuptest.NewRecord("ghost@example.com", domain.RoleFund)
	res, err := store.Reserve(ctx, fresh)
	require.NoError(t, err)

	assert.ErrorIs(t, stale.Commit(ctx, domain.NotAttempted()), signup.ErrReservationLost)
	assert.NoError(t, stale.Release(ctx), "releasing a lost reservation is a no-op")

	require.NoError(t, res.Commit(ctx, domain.Synced("id", "pending")))
	all := signuptest.Collect(t, store)
	require.Contains(t, all, fresh.ID)
	assert.Equal(t, domain.RoleFund, all[fresh.ID].Role)
}

func TestCount_PaginatesScan(t *testing.T) {
	store, fake := newTestStore(t)
	for i := 0; i < 5; i++ {
		signuptest.Insert(t, store, signuptest.NewRecord(fmt.Sprintf("p%d@example.com", i), domain.RoleInvestor), domain.NotAttempted())
	}
	// A pending reservation must not be counted.
	_, err := store.Reserve(context.Background(), signuptest.NewRecord("zz@example.com", domain.RoleInvestor))
	require.NoError(t, err)

	fake.scans = 0
	n, err := store.Count(context.Background(), signup.CountFilter{Role: domain.RoleInvestor})
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 3, fake.scans)
}

func TestStore_Errors(t *testing.T) {
	store, fake := newTestStore(t)
	fake.err = errThrottled
	ctx := context.Background()

	_, err := store.Reserve(ctx, signuptest.NewRecord("e@example.com", domain.RoleFounder))
	require.Error(t, err)
	assert.NotErrorIs(t, err, signup.ErrAlreadyExists)
	assert.ErrorIs(t, err, errThrottled)

	_, err = store.Count(ctx, signup.CountFilter{})
	assert.ErrorIs(t, err, errThrottled)

	for _, err := range store.All(ctx) {
		assert.ErrorIs(t, err, errThrottled)
	}
	assert.Error(t, store.Ping(ctx))
}

func TestPing(t *testing.T) {
	store, _ := newTestStore(t)
	assert.NoError(t, store.Ping(context.Background()))
	assert.Equal(t, "dynamodb", store.Name())
	assert.NoError(t, store.Close())

	missing := New(newFakeDynamo(), "nope", "status", 0)
	assert.Error(t, missing.Ping(context.Background()))
}

func TestStatusChecks(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, name := range []string{"first", "second", "third"} {
		require.NoError(t, store.CreateStatusCheck(ctx, &domain.StatusCheck{
			ID: name, ClientName: name, Timestamp: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	checks, err := store.ListStatusChecks(ctx, 2)
	require.NoError(t, err)
	require.Len(t, checks, 2)
	assert.Equal(t, "third", checks[0].ClientName)
	assert.Equal(t, "second", checks[1].ClientName)
}
