package signup

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/founderfund/waitlist/internal/domain"
	"github.com/founderfund/waitlist/internal/membersync"
	"github.com/founderfund/waitlist/internal/pkg/logger"
)

const (
	defaultSyncTimeout   = 5 * time.Second
	defaultCommitTimeout = 5 * time.Second
	defaultStoreTimeout  = 5 * time.Second
)

// Options tunes a Service. Zero values select defaults.
type Options struct {
	SyncTimeout   time.Duration
	CommitTimeout time.Duration
	// StoreTimeout bounds Reserve, which still runs on the caller's context.
	StoreTimeout time.Duration
	Clock        func() time.Time
	Logger       *logger.Logger
}

// RegisterInput is a signup request as submitted by the landing page.
type RegisterInput struct {
	Email        string `json:"email"`
	Role         string `json:"role"`
	FounderStage string `json:"founder_stage,omitempty"`
	FundingStage string `json:"funding_stage,omitempty"`
	BiggestPain  string `json:"biggest_pain"`
	DetailedPain string `json:"detailed_pain,omitempty"`
}

// Service provides waitlist registration.
type Service struct {
	repo   Repository
	syncer membersync.Syncer
	opts   Options
	log    *logger.Logger
}

// NewService creates a new signup service.
func NewService(repo Repository, syncer membersync.Syncer, opts Options) *Service {
	if syncer == nil {
		syncer = membersync.Disabled{}
	}
	if opts.SyncTimeout <= 0 {
		opts.SyncTimeout = defaultSyncTimeout
	}
	if opts.CommitTimeout <= 0 {
		opts.CommitTimeout = defaultCommitTimeout
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = defaultStoreTimeout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = logger.Default()
	}
	return &Service{repo: repo, syncer: syncer, opts: opts, log: log.With("component", "signup")}
}

// Register validates in, claims its email, pushes it to the mailing list
// and commits the record with the sync outcome.
//
// Returned errors match ErrInvalidInput, ErrDuplicateEmail or
// ErrStorageUnavailable. A sync failure is never an error; it is recorded
// on the returned signup.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*domain.Signup, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}

	email := strings.TrimSpace(in.Email)
	rec := &domain.Signup{
		ID:           uuid.New().String(),
		Email:        email,
		EmailKey:     domain.NormalizeEmail(email),
		Role:         strings.TrimSpace(in.Role),
		FounderStage: strings.TrimSpace(in.FounderStage),
		FundingStage: strings.TrimSpace(in.FundingStage),
		BiggestPain:  strings.TrimSpace(in.BiggestPain),
		DetailedPain: strings.TrimSpace(in.DetailedPain),
		CreatedAt:    s.opts.Clock().UTC(),
		Sync:         domain.NotAttempted(),
	}

	res, err := s.reserve(ctx, rec)
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, ErrDuplicateEmail
		}
		return nil, &StorageError{Op: "reserve", Err: err}
	}

	// The email is claimed. From here on the request finishing early must
	// not leave the claim dangling, so the rest runs detached.
	detached := context.WithoutCancel(ctx)

	rec.Sync = s.push(detached, rec)

	commitCtx, cancel := context.WithTimeout(detached, s.opts.CommitTimeout)
	defer cancel()
	if err := res.Commit(commitCtx, rec.Sync); err != nil {
		s.release(detached, res, rec.ID)
		return nil, &StorageError{Op: "commit", Err: err}
	}

	s.log.Info("signup registered",
		"signup_id", rec.ID,
		"email", rec.Email,
		"role", rec.Role,
		"sync_status", string(rec.Sync.Status),
	)
	return rec, nil
}

func (s *Service) reserve(ctx context.Context, rec *domain.Signup) (Reservation, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	return s.repo.Reserve(ctx, rec)
}

func (s *Service) push(ctx context.Context, rec *domain.Signup) domain.SyncState {
	ctx, cancel := context.WithTimeout(ctx, s.opts.SyncTimeout)
	defer cancel()

	state, err := s.syncer.Push(ctx, rec)
	if err != nil {
		s.log.Warn("member sync failed", "signup_id", rec.ID, "email", rec.Email, "error", err)
		return domain.Failed()
	}
	return state
}

func (s *Service) release(ctx context.Context, res Reservation, id string) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.CommitTimeout)
	defer cancel()
	if err := res.Release(ctx); err != nil {
		s.log.Error("release after failed commit", "signup_id", id, "error", err)
	}
}

// Validate checks a request without touching storage.
func Validate(in RegisterInput) error {
	var fields []FieldError

	if msg := checkEmail(in.Email); msg != "" {
		fields = append(fields, FieldError{Field: "email", Message: msg})
	}
	if strings.TrimSpace(in.Role) == "" {
		fields = append(fields, FieldError{Field: "role", Message: "is required"})
	}
	if strings.TrimSpace(in.BiggestPain) == "" {
		fields = append(fields, FieldError{Field: "biggest_pain", Message: "is required"})
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func checkEmail(raw string) string {
	email := strings.TrimSpace(raw)
	if email == "" {
		return "is required"
	}
	addr, err := mail.ParseAddress(email)
	// Reject display-name forms like "Bob <bob@example.com>".
	if err != nil || addr.Address != email {
		return "is not a valid email address"
	}
	at := strings.LastIndex(email, "@")
	domainPart := email[at+1:]
	if !strings.Contains(domainPart, ".") || strings.HasPrefix(domainPart, ".") || strings.HasSuffix(domainPart, ".") {
		return "is not a valid email address"
	}
	return ""
}
