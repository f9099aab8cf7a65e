// Package membersync mirrors new signups into an external mailing list.
//
// The Syncer is chosen once at startup. Disabled performs no I/O; the
// Mailchimp variant makes exactly one request per signup and never retries.
// Neither variant lets a provider failure escape as anything other than a
// SyncFailed state plus an error for the caller to log.
package membersync

import (
	"context"

	"github.com/founderfund/waitlist/internal/config"
	"github.com/founderfund/waitlist/internal/domain"
	"github.com/founderfund/waitlist/internal/mailchimp"
)

// Syncer pushes a signup to the mailing-list provider.
// The returned state is always usable, even when err is non-nil.
type Syncer interface {
	Push(ctx context.Context, s *domain.Signup) (domain.SyncState, error)
}

// Pinger is implemented by syncers that can report provider reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Disabled is the Syncer used when no provider is configured.
type Disabled struct{}

// Push returns SyncNotAttempted without doing anything.
func (Disabled) Push(context.Context, *domain.Signup) (domain.SyncState, error) {
	return domain.NotAttempted(), nil
}

// New returns the Mailchimp variant when cfg is complete, otherwise Disabled.
func New(cfg config.MailchimpConfig) Syncer {
	if !cfg.Enabled() {
		return Disabled{}
	}
	return NewMailchimp(mailchimp.NewClient(cfg), cfg.AudienceID, cfg.Timeout())
}
