package membersync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/founderfund/waitlist/internal/config"
	"github.com/founderfund/waitlist/internal/domain"
	"github.com/founderfund/waitlist/internal/mailchimp"
)

type fakeClient struct {
	got   []mailchimp.Member
	resp  *mailchimp.MemberResponse
	err   error
	block bool
}

func (f *fakeClient) AddListMember(ctx context.Context, _ string, m mailchimp.Member) (*mailchimp.MemberResponse, error) {
	f.got = append(f.got, m)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.resp, f.err
}

func (f *fakeClient) Ping(context.Context) error { return f.err }

func testSignup() *domain.Signup {
	return &domain.Signup{
		ID:          "id-1",
		Email:       "a@example.com",
		EmailKey:    "a@example.com",
		Role:        domain.RoleFounder,
		BiggestPain: "Finding investors",
	}
}

func TestDisabled_Push(t *testing.T) {
	state, err := Disabled{}.Push(context.Background(), testSignup())
	require.NoError(t, err)
	assert.Equal(t, domain.SyncNotAttempted, state.Status)
	assert.False(t, state.IsSynced())
}

func TestNew_SelectsVariant(t *testing.T) {
	assert.IsType(t, Disabled{}, New(config.MailchimpConfig{}))
	assert.IsType(t, Disabled{}, New(config.MailchimpConfig{APIKey: "k", ServerPrefix: "us1"}))

	s := New(config.MailchimpConfig{APIKey: "k", ServerPrefix: "us1", AudienceID: "aud", TimeoutSeconds: 5})
	mc, ok := s.(*Mailchimp)
	require.True(t, ok)
	assert.Equal(t, "aud", mc.audienceID)
	assert.Equal(t, 5*time.Second, mc.timeout)
}

func TestMailchimp_PushSuccess(t *testing.T) {
	fc := &fakeClient{resp: &mailchimp.MemberResponse{ID: "abc123", Status: mailchimp.StatusPending}}
	m := NewMailchimp(fc, "aud", time.Second)

	state, err := m.Push(context.Background(), testSignup())
	require.NoError(t, err)
	assert.Equal(t, domain.Synced("abc123", "pending"), state)

	require.Len(t, fc.got, 1)
	assert.Equal(t, "a@example.com", fc.got[0].EmailAddress)
	assert.Equal(t, mailchimp.StatusPending, fc.got[0].Status)
	assert.Equal(t, map[string]string{"ROLE": "Founder", "STAGE": "N/A", "PAIN": "Finding investors"}, fc.got[0].MergeFields)
}

func TestMailchimp_PushFailure(t *testing.T) {
	fc := &fakeClient{err: &mailchimp.APIError{HTTPStatus: 400, Title: "Member Exists"}}
	m := NewMailchimp(fc, "aud", time.Second)

	state, err := m.Push(context.Background(), testSignup())
	require.Error(t, err)
	assert.Equal(t, domain.SyncFailed, state.Status)

	var apiErr *mailchimp.APIError
	assert.True(t, errors.As(err, &apiErr))
	assert.Len(t, fc.got, 1, "no retries")
}

func TestMailchimp_PushTimeout(t *testing.T) {
	fc := &fakeClient{block: true}
	m := NewMailchimp(fc, "aud", 20*time.Millisecond)

	start := time.Now()
	state, err := m.Push(context.Background(), testSignup())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, domain.SyncFailed, state.Status)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestMailchimp_FallsBackToSubscriberHash(t *testing.T) {
	fc := &fakeClient{resp: &mailchimp.MemberResponse{Status: mailchimp.StatusPending}}
	state, err := NewMailchimp(fc, "aud", 0).Push(context.Background(), testSignup())
	require.NoError(t, err)
	assert.Equal(t, mailchimp.SubscriberHash("a@example.com"), state.ExternalID)
}

func TestMemberFor_MergeFields(t *testing.T) {
	s := testSignup()
	s.FundingStage = "Seed"
	assert.Equal(t, "Seed", memberFor(s).MergeFields["STAGE"])

	s.FounderStage = "Pre-seed"
	assert.Equal(t, "Pre-seed", memberFor(s).MergeFields["STAGE"])

	s.BiggestPain = strings.Repeat("é", 60)
	pain := memberFor(s).MergeFields["PAIN"]
	assert.Equal(t, 50, len([]rune(pain)))
	assert.Equal(t, strings.Repeat("é", 50), pain)
}

func TestMailchimp_AgainstHTTPServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var m mailchimp.Member
		require.NoError(t, json.NewDecoder(r.Body).Decode(&m))
		assert.Equal(t, "/lists/aud-9/members", r.URL.Path)
		json.NewEncoder(w).Encode(mailchimp.MemberResponse{ID: "x1", Status: m.Status})
	}))
	defer server.Close()

	s := New(config.MailchimpConfig{APIKey: "k", AudienceID: "aud-9", BaseURL: server.URL, TimeoutSeconds: 2})
	state, err := s.Push(context.Background(), testSignup())
	require.NoError(t, err)
	assert.True(t, state.IsSynced())
	assert.Equal(t, "x1", state.ExternalID)
	assert.Equal(t, "pending", state.ExternalStatus)
}
