package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/founderfund/waitlist/internal/domain"
	"github.com/founderfund/waitlist/internal/pkg/httputil"
	"github.com/founderfund/waitlist/internal/pkg/logger"
	"github.com/founderfund/waitlist/internal/service/signup"
	"github.com/founderfund/waitlist/internal/service/stats"
	"github.com/founderfund/waitlist/internal/service/status"
)

// Handlers contains the HTTP handlers for the waitlist API.
type Handlers struct {
	signups *signup.Service
	stats   *stats.Service
	status  *status.Service
	log     *logger.Logger
}

// NewHandlers creates a new Handlers instance. A nil logger uses the
// process default.
func NewHandlers(signups *signup.Service, st *stats.Service, sc *status.Service, log *logger.Logger) *Handlers {
	if log == nil {
		log = logger.Default()
	}
	return &Handlers{signups: signups, stats: st, status: sc, log: log.With("component", "api")}
}

// SignupResponse is the body of a successful registration.
type SignupResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	Synced    bool      `json:"synced"`
	// MailchimpSynced mirrors Synced for older landing page builds.
	MailchimpSynced bool `json:"mailchimp_synced"`
}

// StatsResponse is the body of GET /api/waitlist/stats.
type StatsResponse struct {
	TotalSignups int            `json:"total_signups"`
	Founders     int            `json:"founders"`
	Investors    int            `json:"investors"`
	Funds        int            `json:"funds"`
	ByRole       map[string]int `json:"by_role"`
}

type statusCheckRequest struct {
	ClientName string `json:"client_name"`
}

// Root handles GET /api/.
func (h *Handlers) Root(w http.ResponseWriter, _ *http.Request) {
	httputil.OK(w, map[string]string{"message": "FounderFund API"})
}

// JoinWaitlist handles POST /api/waitlist.
func (h *Handlers) JoinWaitlist(w http.ResponseWriter, r *http.Request) {
	var in signup.RegisterInput
	if !httputil.Decode(w, r, &in) {
		return
	}

	rec, err := h.signups.Register(r.Context(), in)
	if err != nil {
		respondServiceError(w, h.log, r, err)
		return
	}

	synced := rec.Sync.IsSynced()
	httputil.Created(w, SignupResponse{
		ID:              rec.ID,
		Email:           rec.Email,
		Role:            rec.Role,
		CreatedAt:       rec.CreatedAt.UTC(),
		Synced:          synced,
		MailchimpSynced: synced,
	})
}

// WaitlistStats handles GET /api/waitlist/stats.
func (h *Handlers) WaitlistStats(w http.ResponseWriter, r *http.Request) {
	snap, err := h.stats.Snapshot(r.Context())
	if err != nil {
		respondServiceError(w, h.log, r, err)
		return
	}

	httputil.OK(w, StatsResponse{
		TotalSignups: snap.Total,
		Founders:     snap.Role(domain.RoleFounder),
		Investors:    snap.Role(domain.RoleInvestor),
		Funds:        snap.Role(domain.RoleFund),
		ByRole:       snap.ByRole,
	})
}

// CreateStatusCheck handles POST /api/status.
func (h *Handlers) CreateStatusCheck(w http.ResponseWriter, r *http.Request) {
	var req statusCheckRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	check, err := h.status.Create(r.Context(), req.ClientName)
	if err != nil {
		respondServiceError(w, h.log, r, err)
		return
	}
	httputil.OK(w, check)
}

// ListStatusChecks handles GET /api/status.
func (h *Handlers) ListStatusChecks(w http.ResponseWriter, r *http.Request) {
	checks, err := h.status.List(r.Context())
	if err != nil {
		respondServiceError(w, h.log, r, err)
		return
	}
	httputil.OK(w, checks)
}

func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}
