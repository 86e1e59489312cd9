package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"fflux/internal/debug"
	"fflux/internal/domain"
	appErrors "fflux/internal/errors"
)

const (
	// DefaultUserAgent identifies fflux to the backend.
	DefaultUserAgent = "fflux-cli"

	maxErrorBody = 4 << 10
)

var logf = debug.Scope("backend").Logf

// HTTPClient calls the backend's JSON API.
type HTTPClient struct {
	baseURL    *url.URL
	token      string
	userAgent  string
	httpClient *http.Client
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPClient) {
		c.httpClient = client
	}
}

// WithToken sends token as a bearer credential on every request.
func WithToken(token string) Option {
	return func(c *HTTPClient) {
		c.token = strings.TrimSpace(token)
	}
}

// WithUserAgent overrides DefaultUserAgent.
func WithUserAgent(ua string) Option {
	return func(c *HTTPClient) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// NewHTTPClient returns a client for the API rooted at baseURL.
func NewHTTPClient(baseURL string, opts ...Option) (*HTTPClient, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return nil, appErrors.New(appErrors.CodeConfigurationError, "backend url is not configured (set backend.url or FF_BACKEND_URL)", nil)
	}
	u, err := url.Parse(trimmed)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, appErrors.New(appErrors.CodeConfigurationError, fmt.Sprintf("invalid backend url %q", trimmed), err)
	}
	u.Path = strings.TrimRight(u.Path, "/")

	c := &HTTPClient{
		baseURL:    u,
		userAgent:  DefaultUserAgent,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *HTTPClient) ListBuilds(ctx context.Context, target *string) ([]domain.BuildEntry, error) {
	var query url.Values
	if target != nil {
		query = url.Values{"target": []string{*target}}
	}
	var builds []domain.BuildEntry
	if err := c.do(ctx, http.MethodGet, "/api/builds", query, nil, &builds); err != nil {
		return nil, err
	}
	if builds == nil {
		builds = []domain.BuildEntry{}
	}
	return builds, nil
}

func (c *HTTPClient) GetBuild(ctx context.Context, id string) (domain.BuildEntry, error) {
	var build domain.BuildEntry
	err := c.do(ctx, http.MethodGet, "/api/builds/"+url.PathEscape(id), nil, nil, &build)
	return build, err
}

func (c *HTTPClient) GetDeviceProfile(ctx context.Context, principal domain.Principal) (domain.DeviceProfile, error) {
	var profile domain.DeviceProfile
	err := c.do(ctx, http.MethodGet, "/api/device-profiles/"+url.PathEscape(string(principal)), nil, nil, &profile)
	if appErrors.IsCode(err, appErrors.CodeNotFound) {
		return domain.DeviceProfile{}, appErrors.New(appErrors.CodeProfileNotFound, "device profile not registered", ErrNotFound)
	}
	return profile, err
}

func (c *HTTPClient) RegisterDeviceProfile(ctx context.Context, profile domain.DeviceProfile) error {
	return c.do(ctx, http.MethodPut, "/api/device-profiles", nil, profile, nil)
}

func (c *HTTPClient) UploadBuild(ctx context.Context, input domain.UploadBuildInput) error {
	return c.do(ctx, http.MethodPost, "/api/builds", nil, input, nil)
}

func (c *HTTPClient) IsCallerAdmin(ctx context.Context) (bool, error) {
	var resp struct {
		Admin bool `json:"admin"`
	}
	err := c.do(ctx, http.MethodGet, "/api/me/admin", nil, nil, &resp)
	return resp.Admin, err
}

func (c *HTTPClient) GetCallerUserRole(ctx context.Context) (domain.UserRole, error) {
	var resp struct {
		Role string `json:"role"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/me/role", nil, nil, &resp); err != nil {
		return "", err
	}
	role, err := domain.ParseUserRole(resp.Role)
	if err != nil {
		return "", appErrors.New(appErrors.CodeRemoteFailed, fmt.Sprintf("backend returned unknown role %q", resp.Role), err)
	}
	return role, nil
}

func (c *HTTPClient) GetCallerUserProfile(ctx context.Context) (*domain.UserProfile, error) {
	var profile *domain.UserProfile
	err := c.do(ctx, http.MethodGet, "/api/me/profile", nil, nil, &profile)
	if appErrors.IsCode(err, appErrors.CodeNotFound) {
		return nil, nil
	}
	return profile, err
}

func (c *HTTPClient) SaveCallerUserProfile(ctx context.Context, profile domain.UserProfile) error {
	return c.do(ctx, http.MethodPut, "/api/me/profile", nil, profile, nil)
}

func (c *HTTPClient) AssignCallerUserRole(ctx context.Context, user domain.Principal, role domain.UserRole) error {
	body := struct {
		Role domain.UserRole `json:"role"`
	}{Role: role}
	return c.do(ctx, http.MethodPut, "/api/users/"+url.PathEscape(string(user))+"/role", nil, body, nil)
}

// do sends one request and decodes a JSON response into out when non-nil.
func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := *c.baseURL
	u.Path += path
	u.RawQuery = query.Encode()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	logf("%s %s", method, u.Path)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return appErrors.New(appErrors.CodeNetwork, "could not reach the build service", fmt.Errorf("%w: %v", ErrNetworkFailure, err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(method, u.Path, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return appErrors.New(appErrors.CodeRemoteFailed, "unreadable response from the build service", fmt.Errorf("decode %s: %w", u.Path, err))
	}
	return nil
}

func statusError(method, path string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	detail := remoteMessage(raw)
	logf("%s %s -> %d %s", method, path, resp.StatusCode, detail)

	cause := fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, detail)
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return appErrors.New(appErrors.CodeUnauthenticated, "the build service rejected the session; log in again", cause)
	case http.StatusForbidden:
		return appErrors.New(appErrors.CodeForbidden, "not permitted: "+detail, cause)
	case http.StatusNotFound:
		return appErrors.New(appErrors.CodeNotFound, "not found", fmt.Errorf("%w: %v", ErrNotFound, cause))
	}
	return appErrors.New(appErrors.CodeRemoteFailed, "the build service reported an error", cause)
}

// remoteMessage extracts {"error": "..."} or {"message": "..."} bodies,
// falling back to the raw text.
func remoteMessage(raw []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return strings.TrimSpace(string(raw))
}
