package mailchimp

import "fmt"

// Member statuses accepted by the lists API.
const (
	StatusSubscribed   = "subscribed"
	StatusPending      = "pending"
	StatusUnsubscribed = "unsubscribed"
)

// Member is the request body for adding a list member.
type Member struct {
	EmailAddress string            `json:"email_address"`
	Status       string            `json:"status"`
	MergeFields  map[string]string `json:"merge_fields,omitempty"`
}

// MemberResponse is the subset of the list member resource we read back.
type MemberResponse struct {
	ID            string `json:"id"`
	EmailAddress  string `json:"email_address"`
	UniqueEmailID string `json:"unique_email_id"`
	Status        string `json:"status"`
	ListID        string `json:"list_id"`
}

// PingResponse is returned by the API health check endpoint.
type PingResponse struct {
	HealthStatus string `json:"health_status"`
}

// APIError is the problem-detail document Mailchimp returns for non-2xx responses.
type APIError struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	Status     int    `json:"status"`
	Detail     string `json:"detail"`
	Instance   string `json:"instance"`
	HTTPStatus int    `json:"-"`
}

func (e *APIError) Error() string {
	if e.Title == "" && e.Detail == "" {
		return fmt.Sprintf("mailchimp API error (status %d)", e.HTTPStatus)
	}
	return fmt.Sprintf("mailchimp API error (status %d): %s: %s", e.HTTPStatus, e.Title, e.Detail)
}
