// Package mailchimp is a minimal client for the Mailchimp Marketing API v3.
package mailchimp

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/founderfund/waitlist/internal/config"
)

// HTTPDoer is the interface for executing HTTP requests.
// *http.Client satisfies it; tests substitute their own.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a Mailchimp Marketing API client
type Client struct {
	baseURL    string
	apiKey     string
	httpClient HTTPDoer
}

// NewClient creates a new Mailchimp API client
func NewClient(cfg config.MailchimpConfig) *Client {
	return &Client{
		baseURL: cfg.APIBaseURL(),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout(),
		},
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing)
func (c *Client) SetHTTPClient(client HTTPDoer) {
	c.httpClient = client
}

// doRequest makes an HTTP request to the Mailchimp API with Basic Auth and
// decodes a 2xx JSON body into out. Non-2xx responses return *APIError.
func (c *Client) doRequest(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	// Mailchimp ignores the username; the API key is the password.
	req.SetBasicAuth("anystring", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{HTTPStatus: resp.StatusCode}
		_ = json.Unmarshal(respBody, apiErr)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

// AddListMember adds a new member to an audience. Mailchimp rejects
// addresses already on the list with a 400 "Member Exists" APIError.
func (c *Client) AddListMember(ctx context.Context, listID string, m Member) (*MemberResponse, error) {
	path := fmt.Sprintf("/lists/%s/members", url.PathEscape(listID))

	var out MemberResponse
	if err := c.doRequest(ctx, http.MethodPost, path, m, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ping calls the API health check endpoint.
func (c *Client) Ping(ctx context.Context) error {
	var out PingResponse
	return c.doRequest(ctx, http.MethodGet, "/ping", nil, &out)
}

// SubscriberHash returns the member identifier Mailchimp derives from an
// email address: the hex MD5 of the lower-cased address.
func SubscriberHash(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}
