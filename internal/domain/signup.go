package domain

import (
	"strings"
	"time"
)

// Well-known signup roles reported by the stats endpoint. Role itself is
// free-form; these are only the values the landing page offers.
const (
	RoleFounder  = "Founder"
	RoleInvestor = "Investor"
	RoleFund     = "Fund"
)

// KnownRoles lists the roles that always appear in a stats snapshot.
var KnownRoles = []string{RoleFounder, RoleInvestor, RoleFund}

// SyncStatus enumerates the outcome of mirroring a signup to the mailing-list provider.
type SyncStatus string

const (
	SyncNotAttempted SyncStatus = "not_attempted"
	SyncSynced       SyncStatus = "synced"
	SyncFailed       SyncStatus = "failed"
)

// SyncState records what happened when the signup was pushed to the provider.
// ExternalID and ExternalStatus are only set when Status is SyncSynced.
type SyncState struct {
	Status         SyncStatus `json:"status"`
	ExternalID     string     `json:"external_id,omitempty"`
	ExternalStatus string     `json:"external_status,omitempty"`
}

// NotAttempted is the state of a signup that was never pushed.
func NotAttempted() SyncState { return SyncState{Status: SyncNotAttempted} }

// Synced is the state of a signup the provider accepted.
func Synced(externalID, externalStatus string) SyncState {
	return SyncState{Status: SyncSynced, ExternalID: externalID, ExternalStatus: externalStatus}
}

// Failed is the state of a signup whose push errored or timed out.
func Failed() SyncState { return SyncState{Status: SyncFailed} }

// IsSynced reports whether the provider accepted the signup.
func (s SyncState) IsSynced() bool { return s.Status == SyncSynced }

// Signup is a single waitlist registration. Records are created once and
// never updated or deleted.
type Signup struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	EmailKey     string    `json:"-"`
	Role         string    `json:"role"`
	FounderStage string    `json:"founder_stage,omitempty"`
	FundingStage string    `json:"funding_stage,omitempty"`
	BiggestPain  string    `json:"biggest_pain"`
	DetailedPain string    `json:"detailed_pain,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	Sync         SyncState `json:"sync"`
}

// Stage returns the most specific stage the signup reported, or "" if none.
func (s *Signup) Stage() string {
	if s.FounderStage != "" {
		return s.FounderStage
	}
	return s.FundingStage
}

// NormalizeEmail returns the uniqueness key for an email address: trimmed
// and lower-cased as a whole. Two addresses that differ only in case are
// the same signup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
