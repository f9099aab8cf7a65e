package signup_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/founderfund/waitlist/internal/domain"
	"github.com/founderfund/waitlist/internal/mailchimp"
	"github.com/founderfund/waitlist/internal/membersync"
	"github.com/founderfund/waitlist/internal/pkg/logger"
	"github.com/founderfund/waitlist/internal/service/signup"
	"github.com/founderfund/waitlist/internal/service/signup/signuptest"
)

// stubSyncer returns a fixed outcome and records calls.
type stubSyncer struct {
	mu     sync.Mutex
	calls  int
	state  domain.SyncState
	err    error
	during func()
}

func (s *stubSyncer) Push(ctx context.Context, _ *domain.Signup) (domain.SyncState, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.during != nil {
		s.during()
	}
	if s.err != nil {
		return domain.Failed(), s.err
	}
	return s.state, nil
}

// blockingClient never answers until the context ends.
type blockingClient struct{}

func (blockingClient) AddListMember(ctx context.Context, _ string, _ mailchimp.Member) (*mailchimp.MemberResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingClient) Ping(context.Context) error { return nil }

func quietLogger() *logger.Logger {
	return logger.New(&bytes.Buffer{}, logger.ERROR, true)
}

func newService(repo signup.Repository, syncer membersync.Syncer) *signup.Service {
	return signup.NewService(repo, syncer, signup.Options{Logger: quietLogger()})
}

func validInput(email, role string) signup.RegisterInput {
	return signup.RegisterInput{
		Email:        email,
		Role:         role,
		FounderStage: "MVP",
		BiggestPain:  "Finding investors",
	}
}

func count(t *testing.T, repo signup.Repository, role string) int {
	t.Helper()
	n, err := repo.Count(context.Background(), signup.CountFilter{Role: role})
	require.NoError(t, err)
	return n
}

func TestRegister_Scenario(t *testing.T) {
	repo := signuptest.NewMemoryRepo()
	svc := newService(repo, membersync.Disabled{})
	ctx := context.Background()

	rec, err := svc.Register(ctx, validInput("a@example.com", domain.RoleFounder))
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "a@example.com", rec.Email)
	assert.Equal(t, domain.RoleFounder, rec.Role)
	assert.False(t, rec.Sync.IsSynced())
	assert.Equal(t, domain.SyncNotAttempted, rec.Sync.Status)
	assert.Equal(t, time.UTC, rec.CreatedAt.Location())

	_, err = svc.Register(ctx, validInput("a@example.com", domain.RoleInvestor))
	assert.ErrorIs(t, err, signup.ErrDuplicateEmail)
	assert.NotErrorIs(t, err, signup.ErrInvalidInput)

	assert.Equal(t, 1, count(t, repo, ""))
	assert.Equal(t, 1, count(t, repo, domain.RoleFounder))
	assert.Equal(t, 0, count(t, repo, domain.RoleInvestor))
}

func TestRegister_DuplicateIgnoresCase(t *testing.T) {
	repo := signuptest.NewMemoryRepo()
	svc := newService(repo, nil)

	_, err := svc.Register(context.Background(), validInput("Jane.Doe@Example.com", domain.RoleFounder))
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), validInput("  jane.doe@example.COM ", domain.RoleFund))
	assert.ErrorIs(t, err, signup.ErrDuplicateEmail)
	assert.Equal(t, 1, count(t, repo, ""))
}

func TestRegister_ConcurrentSameEmail(t *testing.T) {
	repo := signuptest.NewMemoryRepo()
	syncer := &stubSyncer{state: domain.Synced("id", "pending")}
	svc := newService(repo, syncer)

	const n = 50
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		dupes     int
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.Register(context.Background(), validInput("same@example.com", domain.RoleFounder))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if errors.Is(err, signup.ErrDuplicateEmail) {
				dupes++
			} else {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, dupes)
	assert.Equal(t, 1, count(t, repo, ""))
	assert.Equal(t, 1, syncer.calls, "only the winner is pushed")
}

func TestRegister_InvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		in     signup.RegisterInput
		fields []string
	}{
		{"malformed email", validInput("not-an-email", domain.RoleFounder), []string{"email"}},
		{"missing email", validInput("", domain.RoleFounder), []string{"email"}},
		{"no dot in domain", validInput("a@localhost", domain.RoleFounder), []string{"email"}},
		{"display name form", validInput("Bob <bob@example.com>", domain.RoleFounder), []string{"email"}},
		{"empty role", validInput("a@example.com", "  "), []string{"role"}},
		{"empty pain", signup.RegisterInput{Email: "a@example.com", Role: domain.RoleFund, BiggestPain: " \t"}, []string{"biggest_pain"}},
		{"everything", signup.RegisterInput{}, []string{"email", "role", "biggest_pain"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := signuptest.NewMemoryRepo()
			syncer := &stubSyncer{}
			svc := newService(repo, syncer)

			_, err := svc.Register(context.Background(), tt.in)
			require.Error(t, err)
			assert.ErrorIs(t, err, signup.ErrInvalidInput)

			var verr *signup.ValidationError
			require.True(t, errors.As(err, &verr))
			var got []string
			for _, f := range verr.Fields {
				got = append(got, f.Field)
			}
			assert.Equal(t, tt.fields, got)

			assert.Equal(t, 0, count(t, repo, ""))
			assert.Equal(t, 0, repo.Pending())
			assert.Equal(t, 0, syncer.calls)
		})
	}
}

func TestRegister_SyncOutcomes(t *testing.T) {
	tests := []struct {
		name       string
		syncer     membersync.Syncer
		wantStatus domain.SyncStatus
	}{
		{"disabled", membersync.Disabled{}, domain.SyncNotAttempted},
		{"failing", &stubSyncer{err: errors.New("mailchimp down")}, domain.SyncFailed},
		{"synced", &stubSyncer{state: domain.Synced("abc", "pending")}, domain.SyncSynced},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := signuptest.NewMemoryRepo()
			svc := newService(repo, tt.syncer)

			rec, err := svc.Register(context.Background(), validInput("x@example.com", domain.RoleInvestor))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, rec.Sync.Status)
			assert.Equal(t, tt.wantStatus == domain.SyncSynced, rec.Sync.IsSynced())

			stored := signuptest.Collect(t, repo)
			require.Contains(t, stored, rec.ID)
			assert.Equal(t, rec.Sync, stored[rec.ID].Sync)
			assert.Equal(t, 1, count(t, repo, domain.RoleInvestor))
		})
	}
}

func TestRegister_SyncTimeoutRecordedAsFailed(t *testing.T) {
	repo := signuptest.NewMemoryRepo()
	slow := membersync.NewMailchimp(blockingClient{}, "aud", 0)
	svc := signup.NewService(repo, slow, signup.Options{SyncTimeout: 20 * time.Millisecond, Logger: quietLogger()})

	start := time.Now()
	rec, err := svc.Register(context.Background(), validInput("slow@example.com", domain.RoleFounder))
	require.NoError(t, err)
	assert.Equal(t, domain.SyncFailed, rec.Sync.Status)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRegister_StorageUnavailableOnReserve(t *testing.T) {
	repo := signuptest.NewMemoryRepo()
	repo.ReserveErr = errors.New("connection refused")
	syncer := &stubSyncer{}
	svc := newService(repo, syncer)

	_, err := svc.Register(context.Background(), validInput("a@example.com", domain.RoleFounder))
	assert.ErrorIs(t, err, signup.ErrStorageUnavailable)

	var serr *signup.StorageError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "reserve", serr.Op)
	assert.Equal(t, 0, syncer.calls)
}

func TestRegister_CommitFailureReleases(t *testing.T) {
	repo := signuptest.NewMemoryRepo()
	repo.CommitErr = errors.New("disk full")
	svc := newService(repo, membersync.Disabled{})

	_, err := svc.Register(context.Background(), validInput("a@example.com", domain.RoleFounder))
	assert.ErrorIs(t, err, signup.ErrStorageUnavailable)
	assert.Equal(t, 1, repo.Released)
	assert.Equal(t, 0, repo.Pending())

	repo.CommitErr = nil
	_, err = svc.Register(context.Background(), validInput("a@example.com", domain.RoleFounder))
	assert.NoError(t, err, "released key can be registered again")
}

func TestRegister_CancelAfterReserveStillCommits(t *testing.T) {
	repo := signuptest.NewMemoryRepo()
	ctx, cancel := context.WithCancel(context.Background())
	syncer := &stubSyncer{state: domain.Synced("id", "pending"), during: cancel}
	svc := newService(repo, syncer)

	rec, err := svc.Register(ctx, validInput("a@example.com", domain.RoleFounder))
	require.NoError(t, err)
	assert.True(t, rec.Sync.IsSynced())
	assert.Equal(t, 1, count(t, repo, ""))
	assert.Equal(t, 0, repo.Pending())
}

func TestRegister_TrimsFieldsAndUsesClock(t *testing.T) {
	repo := signuptest.NewMemoryRepo()
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.FixedZone("EST", -5*3600))
	svc := signup.NewService(repo, nil, signup.Options{Clock: func() time.Time { return fixed }, Logger: quietLogger()})

	rec, err := svc.Register(context.Background(), signup.RegisterInput{
		Email:        "  Mixed@Example.com ",
		Role:         " Founder ",
		FundingStage: " Seed ",
		BiggestPain:  " Hiring ",
	})
	require.NoError(t, err)
	assert.Equal(t, "Mixed@Example.com", rec.Email)
	assert.Equal(t, "mixed@example.com", rec.EmailKey)
	assert.Equal(t, domain.RoleFounder, rec.Role)
	assert.Equal(t, "Seed", rec.FundingStage)
	assert.Equal(t, "Hiring", rec.BiggestPain)
	assert.True(t, rec.CreatedAt.Equal(fixed))
	assert.Equal(t, time.UTC, rec.CreatedAt.Location())
}

func TestRegister_LogsRedactedEmail(t *testing.T) {
	var buf bytes.Buffer
	repo := signuptest.NewMemoryRepo()
	svc := signup.NewService(repo, &stubSyncer{err: errors.New("boom")}, signup.Options{Logger: logger.New(&buf, logger.DEBUG, true)})

	_, err := svc.Register(context.Background(), validInput("john.doe@example.com", domain.RoleFounder))
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "member sync failed")
	assert.Contains(t, out, "jo***@example.com")
	assert.False(t, strings.Contains(out, "john.doe@example.com"))
}

// hangingRepo is a store whose Reserve never returns on its own.
type hangingRepo struct {
	*signuptest.MemoryRepo
}

func (hangingRepo) Reserve(ctx context.Context, _ *domain.Signup) (signup.Reservation, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRegister_ReserveIsBounded(t *testing.T) {
	repo := hangingRepo{signuptest.NewMemoryRepo()}
	syncer := &stubSyncer{}
	svc := signup.NewService(repo, syncer, signup.Options{
		SyncTimeout:   50 * time.Millisecond,
		CommitTimeout: 50 * time.Millisecond,
		StoreTimeout:  50 * time.Millisecond,
		Logger:        quietLogger(),
	})

	done := make(chan error, 1)
	go func() {
		_, err := svc.Register(context.Background(), validInput("a@example.com", domain.RoleFounder))
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, signup.ErrStorageUnavailable)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		var serr *signup.StorageError
		require.True(t, errors.As(err, &serr))
		assert.Equal(t, "reserve", serr.Op)
		assert.Equal(t, 0, syncer.calls)
	case <-time.After(2 * time.Second):
		t.Fatal("Register blocked in Reserve past the store timeout")
	}
}
