// Package client is a thin HTTP client for the user management API.
package client

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

	"usermanager.org/internal/auth"
)

// RegisterRequest is the body of POST /api/auth/register.
type RegisterRequest struct {
	UserName  string   `json:"userName,omitempty"`
	Email     string   `json:"email"`
	Password  string   `json:"password"`
	FirstName string   `json:"firstName,omitempty"`
	LastName  string   `json:"lastName,omitempty"`
	Address   string   `json:"address,omitempty"`
	Roles     []string `json:"roles,omitempty"`
}

// Status is the envelope returned by commands and errors.
type Status struct {
	IsSucceed  bool   `json:"isSucceed"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

// LoginResponse is the body of a successful login.
type LoginResponse struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expiresAt"`
	UserInfo  auth.UserInfo `json:"userInfo"`
}

// LogEntry is one audit entry as served by get-logs.
type LogEntry struct {
	UserName    string    `json:"username"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
}

// Client talks to one API base URL. It is safe for concurrent use except for
// SetToken.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// New returns a client for baseURL. A nil httpClient selects a default with
// a 30s timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// SetToken sets the bearer token sent with every later request.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*Status, error) {
	var resp Status
	if err := c.doRequest(ctx, http.MethodPost, "/api/auth/register", req, &resp); err != nil {
		return nil, fmt.Errorf("register request failed: %w", err)
	}
	return &resp, nil
}

// Login authenticates and remembers the returned token.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	var resp LoginResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.doRequest(ctx, http.MethodPost, "/api/auth/login", body, &resp); err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	c.SetToken(resp.Token)
	return &resp, nil
}

// UpdateRole replaces the roles of the user with email by role.
func (c *Client) UpdateRole(ctx context.Context, email, role string) (*Status, error) {
	var resp Status
	body := map[string]string{"email": email, "newRole": role}
	if err := c.doRequest(ctx, http.MethodPost, "/api/auth/update-role", body, &resp); err != nil {
		return nil, fmt.Errorf("update role request failed: %w", err)
	}
	return &resp, nil
}

// Users lists every user with its roles.
func (c *Client) Users(ctx context.Context) ([]auth.UserInfo, error) {
	var resp []auth.UserInfo
	if err := c.doRequest(ctx, http.MethodGet, "/api/auth/get-users", nil, &resp); err != nil {
		return nil, fmt.Errorf("get users request failed: %w", err)
	}
	return resp, nil
}

// UserByEmail looks up one user.
func (c *Client) UserByEmail(ctx context.Context, email string) (*auth.UserInfo, error) {
	var resp auth.UserInfo
	path := "/api/auth/get-user-email?" + url.Values{"email": {email}}.Encode()
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("get user request failed: %w", err)
	}
	return &resp, nil
}

// Usernames lists every username.
func (c *Client) Usernames(ctx context.Context) ([]string, error) {
	var resp []string
	if err := c.doRequest(ctx, http.MethodGet, "/api/auth/get-usernames", nil, &resp); err != nil {
		return nil, fmt.Errorf("get usernames request failed: %w", err)
	}
	return resp, nil
}

// Roles lists the defined roles.
func (c *Client) Roles(ctx context.Context) ([]auth.Role, error) {
	var resp []auth.Role
	if err := c.doRequest(ctx, http.MethodGet, "/api/auth/get-roles", nil, &resp); err != nil {
		return nil, fmt.Errorf("get roles request failed: %w", err)
	}
	return resp, nil
}

// CreateRole defines a new role.
func (c *Client) CreateRole(ctx context.Context, name string) (*auth.Role, error) {
	var resp auth.Role
	if err := c.doRequest(ctx, http.MethodPost, "/api/auth/create-role", map[string]string{"name": name}, &resp); err != nil {
		return nil, fmt.Errorf("create role request failed: %w", err)
	}
	return &resp, nil
}

// Logs returns audit entries, newest first.
func (c *Client) Logs(ctx context.Context) ([]LogEntry, error) {
	var resp []LogEntry
	if err := c.doRequest(ctx, http.MethodGet, "/api/logs/get-logs", nil, &resp); err != nil {
		return nil, fmt.Errorf("get logs request failed: %w", err)
	}
	return resp, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		var status Status
		if err := json.Unmarshal(respBody, &status); err == nil && status.Message != "" {
			apiErr.Message = status.Message
		}
		return apiErr
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
