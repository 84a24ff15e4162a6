// Package client calls the issues server over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/amonks/issues/api"
	"github.com/amonks/issues/auth"
	"github.com/amonks/issues/issue"
)

// APIError is a non-200 response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("issues server: %s", http.StatusText(e.Status))
	}
	return e.Message
}

// Unwrap maps the status back to the error kind the server reported, so
// callers can use errors.Is with auth.ErrUnauthenticated,
// issue.ErrValidation and issue.ErrIssueNotFound.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return auth.ErrUnauthenticated
	case http.StatusConflict:
		return auth.ErrUserExists
	case http.StatusBadRequest:
		return issue.ErrValidation
	case http.StatusNotFound:
		return issue.ErrIssueNotFound
	default:
		return nil
	}
}

// Client calls issues RPCs. The zero token is allowed for sign-up and
// sign-in.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// New creates a client for the given address or URL.
func New(addr, token string) *Client {
	return NewWithHTTPClient(addr, token, &http.Client{})
}

// NewWithHTTPClient is New with a caller-supplied http.Client.
func NewWithHTTPClient(addr, token string, httpClient *http.Client) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(addr), "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}
	return &Client{baseURL: baseURL, token: strings.TrimSpace(token), client: httpClient}
}

// BaseURL returns the server URL the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// WithToken returns a copy of the client that authenticates with token.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.token = strings.TrimSpace(token)
	return &clone
}

// SignUp creates an account and returns its first session.
func (c *Client) SignUp(ctx context.Context, email, password string) (auth.Session, error) {
	var response api.SessionResponse
	err := c.post(ctx, api.RouteSignUp, api.CredentialsRequest{Email: email, Password: password}, &response)
	return response, err
}

// SignIn starts a session.
func (c *Client) SignIn(ctx context.Context, email, password string) (auth.Session, error) {
	var response api.SessionResponse
	err := c.post(ctx, api.RouteSignIn, api.CredentialsRequest{Email: email, Password: password}, &response)
	return response, err
}

// SignOut ends the client's session.
func (c *Client) SignOut(ctx context.Context) error {
	return c.post(ctx, api.RouteSignOut, api.EmptyRequest{}, &api.EmptyResponse{})
}

// WhoAmI returns the email the client's token belongs to.
func (c *Client) WhoAmI(ctx context.Context) (string, error) {
	var response api.WhoAmIResponse
	if err := c.post(ctx, api.RouteWhoAmI, api.EmptyRequest{}, &response); err != nil {
		return "", err
	}
	return response.Email, nil
}

// List returns the issues matching filter, newest first.
func (c *Client) List(ctx context.Context, filter issue.Filter) (issue.Snapshot, error) {
	var response api.ListResponse
	if err := c.post(ctx, api.RouteList, api.ListRequest{Filter: filter}, &response); err != nil {
		return issue.Snapshot{}, err
	}
	return response, nil
}

// Create stores a new issue.
func (c *Client) Create(ctx context.Context, in issue.NewIssue) (issue.Issue, error) {
	created, _, err := c.CreateWithSimilar(ctx, in)
	return created, err
}

// CreateWithSimilar stores a new issue and also returns the issues whose
// titles looked similar before it was created.
func (c *Client) CreateWithSimilar(ctx context.Context, in issue.NewIssue) (issue.Issue, []issue.Issue, error) {
	var response api.CreateResponse
	if err := c.post(ctx, api.RouteCreate, api.CreateRequest(in), &response); err != nil {
		return issue.Issue{}, nil, err
	}
	return response.Issue, response.Similar, nil
}

// Update applies patch to the issue with the given id or unique prefix.
func (c *Client) Update(ctx context.Context, id string, patch issue.Patch) (issue.Issue, error) {
	var response api.IssueResponse
	if err := c.post(ctx, api.RouteUpdate, api.UpdateRequest{ID: id, Patch: patch}, &response); err != nil {
		return issue.Issue{}, err
	}
	return response.Issue, nil
}

// Delete removes the issue with the given id or unique prefix.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.post(ctx, api.RouteDelete, api.DeleteRequest{ID: id}, &api.EmptyResponse{})
}

// Similar runs the duplicate check for title against the server's issues.
func (c *Client) Similar(ctx context.Context, title string) ([]issue.Issue, error) {
	var response api.SimilarResponse
	if err := c.post(ctx, api.RouteSimilar, api.SimilarRequest{Title: title}, &response); err != nil {
		return nil, err
	}
	return response.Issues, nil
}

// Import bulk-loads exported issues and returns how many were stored.
func (c *Client) Import(ctx context.Context, items []issue.Issue) (int, error) {
	var response api.ImportResponse
	if err := c.post(ctx, api.RouteImport, api.ImportRequest{Issues: items}, &response); err != nil {
		return 0, err
	}
	return response.Count, nil
}

// Resolve expands unique id prefixes to full ids using one List call.
func (c *Client) Resolve(ctx context.Context, prefixes ...string) ([]string, error) {
	snapshot, err := c.List(ctx, issue.Filter{})
	if err != nil {
		return nil, err
	}
	index := issue.NewIDIndex(snapshot.Issues)
	resolved := make([]string, 0, len(prefixes))
	for _, prefix := range prefixes {
		id, err := index.Resolve(strings.TrimSpace(prefix))
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, id)
	}
	return resolved, nil
}

// Subscribe streams snapshots until ctx ends or the server closes the
// stream. The first snapshot is the current state. The error channel
// receives exactly one value, nil on a clean end, after the snapshot channel
// closes.
func (c *Client) Subscribe(ctx context.Context) (<-chan issue.Snapshot, <-chan error) {
	snapshots := make(chan issue.Snapshot, 1)
	errCh := make(chan error, 1)

	go func() {
		err := c.subscribe(ctx, snapshots)
		close(snapshots)
		if ctx.Err() != nil {
			err = nil
		}
		errCh <- err
	}()

	return snapshots, errCh
}

func (c *Client) subscribe(ctx context.Context, snapshots chan<- issue.Snapshot) error {
	resp, err := c.do(ctx, api.RouteSubscribe, api.EmptyRequest{})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return readErrorResponse(resp)
	}
	decoder := json.NewDecoder(resp.Body)
	for {
		var snapshot issue.Snapshot
		if err := decoder.Decode(&snapshot); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		select {
		case snapshots <- snapshot:
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Client) post(ctx context.Context, path string, payload any, dest any) error {
	resp, err := c.do(ctx, path, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return readErrorResponse(resp)
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, path string, payload any) (*http.Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.client.Do(req)
}

func readErrorResponse(resp *http.Response) error {
	var payload api.ErrorResponse
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(&payload); err == nil && payload.Error != "" {
		return &APIError{Status: resp.StatusCode, Message: payload.Error}
	}
	return &APIError{Status: resp.StatusCode}
}
