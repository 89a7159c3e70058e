package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pavitrk/retirepipe/internal/retry"
)

// restClient is the shared HTTP plumbing for collaborator services.
// Server-side failures and throttling come back wrapped as retryable so
// the engine backs off instead of erroring the retirement; client-side
// rejections are terminal.
type restClient struct {
	baseURL string
	http    *http.Client
}

func newRESTClient(baseURL string) restClient {
	return restClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c restClient) post(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return retry.Terminal(fmt.Errorf("encode request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return retry.Terminal(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return retry.Retryable(err)
	}
	defer resp.Body.Close()
	return c.checkStatus(resp)
}

func (c restClient) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return retry.Terminal(fmt.Errorf("encode request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return retry.Terminal(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return retry.Retryable(err)
	}
	defer resp.Body.Close()
	if err := c.checkStatus(resp); err != nil {
		return err
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c restClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return retry.Terminal(err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return retry.Retryable(err)
	}
	defer resp.Body.Close()
	if err := c.checkStatus(resp); err != nil {
		return err
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c restClient) checkStatus(resp *http.Response) error {
	if resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	err := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return retry.Retryable(err)
	}
	return retry.Terminal(err)
}

// RESTIdentity talks to the identity service. It also serves as the
// Directory for username lookups.
type RESTIdentity struct {
	c restClient
}

func NewRESTIdentity(baseURL string) *RESTIdentity {
	return &RESTIdentity{c: newRESTClient(baseURL)}
}

func (s *RESTIdentity) LockIdentity(ctx context.Context, userID string) (string, string, error) {
	var out struct {
		RetiredUsername string `json:"retiredUsername"`
		RetiredEmail    string `json:"retiredEmail"`
	}
	err := s.c.postJSON(ctx, "/users/"+url.PathEscape(userID)+"/lock", struct{}{}, &out)
	if err != nil {
		return "", "", err
	}
	return out.RetiredUsername, out.RetiredEmail, nil
}

func (s *RESTIdentity) Deactivate(ctx context.Context, userID string) error {
	return s.c.post(ctx, "/users/"+url.PathEscape(userID)+"/deactivate", struct{}{})
}

func (s *RESTIdentity) ClearProfilePII(ctx context.Context, userID string) error {
	return s.c.post(ctx, "/users/"+url.PathEscape(userID)+"/profile/clear", struct{}{})
}

func (s *RESTIdentity) View(ctx context.Context, userID string) (IdentityView, error) {
	var out IdentityView
	err := s.c.getJSON(ctx, "/users/"+url.PathEscape(userID), &out)
	return out, err
}

func (s *RESTIdentity) Lookup(ctx context.Context, username string) (UserInfo, error) {
	var out UserInfo
	err := s.c.getJSON(ctx, "/lookup?username="+url.QueryEscape(username), &out)
	return out, err
}

// RESTEnrollments talks to the enrollment service.
type RESTEnrollments struct {
	c restClient
}

func NewRESTEnrollments(baseURL string) *RESTEnrollments {
	return &RESTEnrollments{c: newRESTClient(baseURL)}
}

func (s *RESTEnrollments) UnenrollAll(ctx context.Context, username string) error {
	return s.c.post(ctx, "/enrollments/unenroll_all", map[string]string{"username": username})
}

func (s *RESTEnrollments) Active(ctx context.Context, username string) ([]string, error) {
	var out struct {
		Courses []string `json:"courses"`
	}
	err := s.c.getJSON(ctx, "/enrollments/active?username="+url.QueryEscape(username), &out)
	return out.Courses, err
}

// RESTEraser retires one subsystem's copy of a user's data over a
// single conventional endpoint.
type RESTEraser struct {
	c restClient
}

func NewRESTEraser(baseURL string) *RESTEraser {
	return &RESTEraser{c: newRESTClient(baseURL)}
}

func (s *RESTEraser) Retire(ctx context.Context, originalUsername, originalEmail string) error {
	return s.c.post(ctx, "/retire_user", map[string]string{
		"username": originalUsername,
		"email":    originalEmail,
	})
}
