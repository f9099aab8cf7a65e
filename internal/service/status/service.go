// Package status records client pings for the legacy status endpoints.
package status

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/founderfund/waitlist/internal/domain"
)

// MaxList caps how many status checks List returns.
const MaxList = 1000

const defaultTimeout = 5 * time.Second

// ErrClientNameRequired is returned when Create is called without a name.
var ErrClientNameRequired = errors.New("client_name is required")

// Repository stores status checks.
type Repository interface {
	CreateStatusCheck(ctx context.Context, c *domain.StatusCheck) error
	// ListStatusChecks returns up to limit checks, most recent first.
	ListStatusChecks(ctx context.Context, limit int) ([]domain.StatusCheck, error)
}

// Service provides status check operations.
type Service struct {
	repo    Repository
	clock   func() time.Time
	timeout time.Duration
}

// NewService creates a new status service. Store calls are bounded by 5s
// unless WithTimeout says otherwise.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now, timeout: defaultTimeout}
}

// WithTimeout sets the bound on each store call. Non-positive values are ignored.
func (s *Service) WithTimeout(d time.Duration) *Service {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Create records a ping from clientName.
func (s *Service) Create(ctx context.Context, clientName string) (*domain.StatusCheck, error) {
	clientName = strings.TrimSpace(clientName)
	if clientName == "" {
		return nil, ErrClientNameRequired
	}
	c := &domain.StatusCheck{
		ID:         uuid.New().String(),
		ClientName: clientName,
		Timestamp:  s.clock().UTC(),
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.repo.CreateStatusCheck(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// List returns the most recent status checks.
func (s *Service) List(ctx context.Context) ([]domain.StatusCheck, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	checks, err := s.repo.ListStatusChecks(ctx, MaxList)
	if err != nil {
		return nil, err
	}
	if checks == nil {
		checks = []domain.StatusCheck{}
	}
	return checks, nil
}
