package membersync

import (
	"context"
	"fmt"
	"time"

	"github.com/founderfund/waitlist/internal/domain"
	"github.com/founderfund/waitlist/internal/mailchimp"
)

const (
	maxPainRunes = 50
	noStage      = "N/A"
)

// MemberAdder is the part of the Mailchimp client the syncer uses.
type MemberAdder interface {
	AddListMember(ctx context.Context, listID string, m mailchimp.Member) (*mailchimp.MemberResponse, error)
	Ping(ctx context.Context) error
}

// Mailchimp pushes signups to a Mailchimp audience as pending members.
type Mailchimp struct {
	client     MemberAdder
	audienceID string
	timeout    time.Duration
}

// NewMailchimp creates a Mailchimp syncer. A zero timeout leaves the call
// bounded only by ctx.
func NewMailchimp(client MemberAdder, audienceID string, timeout time.Duration) *Mailchimp {
	return &Mailchimp{client: client, audienceID: audienceID, timeout: timeout}
}

// Push adds s to the audience. Any failure yields SyncFailed and the error.
func (m *Mailchimp) Push(ctx context.Context, s *domain.Signup) (domain.SyncState, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	resp, err := m.client.AddListMember(ctx, m.audienceID, memberFor(s))
	if err != nil {
		return domain.Failed(), fmt.Errorf("mailchimp add member: %w", err)
	}

	id := resp.ID
	if id == "" {
		id = mailchimp.SubscriberHash(s.Email)
	}
	return domain.Synced(id, resp.Status), nil
}

// Ping checks that the Mailchimp API is reachable with the configured key.
func (m *Mailchimp) Ping(ctx context.Context) error {
	return m.client.Ping(ctx)
}

func memberFor(s *domain.Signup) mailchimp.Member {
	stage := s.Stage()
	if stage == "" {
		stage = noStage
	}
	return mailchimp.Member{
		EmailAddress: s.Email,
		Status:       mailchimp.StatusPending,
		MergeFields: map[string]string{
			"ROLE":  s.Role,
			"STAGE": stage,
			"PAIN":  truncateRunes(s.BiggestPain, maxPainRunes),
		},
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
