// Package gist is the remote document client used as the synchronization
// target: a thin wrapper over the GitHub gist REST API.
package gist

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultBaseURL is the public GitHub API endpoint. Tests point the client
// at a local server instead.
const DefaultBaseURL = "https://api.github.com"

// File is one named file inside a gist.
type File struct {
	Content string `json:"content"`
}

// Gist is the remote document: a named-file map plus its id.
type Gist struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Files       map[string]File `json:"files"`
}

// APIError carries the HTTP status and message of a failed API call.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github api: %d %s", e.StatusCode, e.Message)
}

// IsNotFound reports a 404 response.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsUnauthorized reports a 401 response (bad credential).
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// IsForbidden reports a 403 response (missing scope or throttling).
func IsForbidden(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusForbidden
}

// IsRateLimited reports responses that look like API throttling: a 403 or an
// explicit rate-limit message.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusForbidden ||
		strings.Contains(strings.ToLower(apiErr.Message), "rate limit")
}

// Client calls the gist API with a fixed credential.
type Client struct {
	http *resty.Client
}

// NewClient returns a client authenticated with token against baseURL.
func NewClient(baseURL, token string) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetHeader("Accept", "application/vnd.github+json").
		SetAuthToken(token)
	return &Client{http: httpClient}
}

type errorBody struct {
	Message string `json:"message"`
}

// Get fetches a gist by id.
func (c *Client) Get(ctx context.Context, id string) (*Gist, error) {
	var out Gist
	var apiErr errorBody
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&apiErr).
		Get("/gists/" + id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch gist %s: %w", id, err)
	}
	if resp.IsError() {
		return nil, &APIError{StatusCode: resp.StatusCode(), Message: apiErr.Message}
	}
	return &out, nil
}

type createRequest struct {
	Description string          `json:"description"`
	Public      bool            `json:"public"`
	Files       map[string]File `json:"files"`
}

// Create makes a new gist and returns it with the server-assigned id.
func (c *Client) Create(ctx context.Context, description string, public bool, files map[string]File) (*Gist, error) {
	var out Gist
	var apiErr errorBody
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(createRequest{Description: description, Public: public, Files: files}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/gists")
	if err != nil {
		return nil, fmt.Errorf("failed to create gist: %w", err)
	}
	if resp.IsError() {
		return nil, &APIError{StatusCode: resp.StatusCode(), Message: apiErr.Message}
	}
	return &out, nil
}

type updateRequest struct {
	Files map[string]File `json:"files"`
}

// Update replaces files in an existing gist.
func (c *Client) Update(ctx context.Context, id string, files map[string]File) error {
	var apiErr errorBody
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(updateRequest{Files: files}).
		SetError(&apiErr).
		Patch("/gists/" + id)
	if err != nil {
		return fmt.Errorf("failed to update gist %s: %w", id, err)
	}
	if resp.IsError() {
		return &APIError{StatusCode: resp.StatusCode(), Message: apiErr.Message}
	}
	return nil
}

type userBody struct {
	Login string `json:"login"`
}

// AuthenticatedUser returns the login of the account owning the credential.
func (c *Client) AuthenticatedUser(ctx context.Context) (string, error) {
	var out userBody
	var apiErr errorBody
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&apiErr).
		Get("/user")
	if err != nil {
		return "", fmt.Errorf("failed to fetch authenticated user: %w", err)
	}
	if resp.IsError() {
		return "", &APIError{StatusCode: resp.StatusCode(), Message: apiErr.Message}
	}
	return out.Login, nil
}
