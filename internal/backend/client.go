// Package backend is the HTTP client for the external policy REST backend.
//
// The backend owns reference data and policy persistence. Client serves the
// five reference catalogs (catalog.Source) and stores policies. Every
// response body is wrapped as {"data": ...}.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/solatis/policykit/internal/types"
)

// DefaultTimeout bounds a single backend request.
const DefaultTimeout = 10 * time.Second

// APIKeyHeader carries the backend API key.
const APIKeyHeader = "x-api-key"

const apiPrefix = "/api/v1"

// Endpoint paths relative to the API prefix.
const (
	pathOperators     = "/policy-operators"
	pathResourceTypes = "/resource-types"
	pathConditions    = "/policy-conditions"
	pathRoles         = "/roles"
	pathDepartments   = "/departments"
	pathPolicies      = "/policies"
)

// maxErrorBody caps how much of an error response is echoed into errors.
const maxErrorBody = 512

// errNotFound marks a 404 from the backend.
var errNotFound = errors.New("not found")

// Client talks to the backend REST API.
type Client struct {
	// baseURL is the backend origin, without the API prefix
	baseURL string
	// apiKey is sent on every request when set
	apiKey string
	// HTTPClient is used to make requests to the backend
	HTTPClient *http.Client
	logger     *slog.Logger
}

// New creates a backend client. A non-positive timeout uses DefaultTimeout.
func New(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		HTTPClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// envelope is the backend response wrapper.
type envelope struct {
	Data json.RawMessage `json:"data"`
}

// do sends one request and decodes the enveloped response into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		reqBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(reqBody)
	}

	endpoint := c.baseURL + apiPrefix + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(APIKeyHeader, c.apiKey)
	}

	c.logger.Debug("backend request", "method", method, "path", path)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to backend: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.logger.Error("failed to close response body", "error", err)
		}
	}(resp.Body)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := truncate(string(respBody), maxErrorBody)
		c.logger.Error("backend returned error", "method", method, "path", path, "status", resp.StatusCode, "body", msg)
		switch resp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%s %s: %w", method, path, errNotFound)
		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			return fmt.Errorf("%w: backend rejected request: %s", types.ErrValidation, msg)
		default:
			return fmt.Errorf("backend returned status %d: %s", resp.StatusCode, msg)
		}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to parse response data: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func (c *Client) Operators(ctx context.Context) ([]types.Operator, error) {
	var out []types.Operator
	if err := c.do(ctx, http.MethodGet, pathOperators, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch operators: %w", err)
	}
	return out, nil
}

func (c *Client) ResourceTypes(ctx context.Context) ([]types.ResourceType, error) {
	var out []types.ResourceType
	if err := c.do(ctx, http.MethodGet, pathResourceTypes, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch resource types: %w", err)
	}
	return out, nil
}

func (c *Client) Conditions(ctx context.Context) ([]types.ConditionDef, error) {
	var out []types.ConditionDef
	if err := c.do(ctx, http.MethodGet, pathConditions, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch conditions: %w", err)
	}
	return out, nil
}

func (c *Client) Roles(ctx context.Context) ([]types.Role, error) {
	var out []types.Role
	if err := c.do(ctx, http.MethodGet, pathRoles, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch roles: %w", err)
	}
	return out, nil
}

func (c *Client) Departments(ctx context.Context) ([]types.Department, error) {
	var out []types.Department
	if err := c.do(ctx, http.MethodGet, pathDepartments, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch departments: %w", err)
	}
	return out, nil
}

// CreatePolicy posts a new policy. Server-assigned fields (ID, timestamps)
// are copied back into p.
func (c *Client) CreatePolicy(ctx context.Context, p *types.Policy) error {
	var created types.Policy
	if err := c.do(ctx, http.MethodPost, pathPolicies, p, &created); err != nil {
		return fmt.Errorf("failed to create policy: %w", err)
	}
	mergeServerFields(p, created)
	c.logger.Info("created policy in backend", "id", p.ID, "name", p.Name)
	return nil
}

// UpdatePolicy replaces an existing policy.
func (c *Client) UpdatePolicy(ctx context.Context, p *types.Policy) error {
	var updated types.Policy
	err := c.do(ctx, http.MethodPut, policyPath(p.ID), p, &updated)
	if errors.Is(err, errNotFound) {
		return fmt.Errorf("%w: %s", types.ErrPolicyNotFound, p.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update policy: %w", err)
	}
	mergeServerFields(p, updated)
	c.logger.Info("updated policy in backend", "id", p.ID)
	return nil
}

// GetPolicy fetches one policy.
func (c *Client) GetPolicy(ctx context.Context, id types.PolicyID) (*types.Policy, error) {
	var p types.Policy
	err := c.do(ctx, http.MethodGet, policyPath(id), nil, &p)
	if errors.Is(err, errNotFound) {
		return nil, fmt.Errorf("%w: %s", types.ErrPolicyNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch policy: %w", err)
	}
	if p.ID == "" {
		p.ID = id
	}
	return &p, nil
}

// ListPolicies fetches every policy the backend returns.
func (c *Client) ListPolicies(ctx context.Context) ([]types.Policy, error) {
	var out []types.Policy
	if err := c.do(ctx, http.MethodGet, pathPolicies, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	return out, nil
}

func policyPath(id types.PolicyID) string {
	return pathPolicies + "/" + url.PathEscape(string(id))
}

func mergeServerFields(dst *types.Policy, src types.Policy) {
	if src.ID != "" {
		dst.ID = src.ID
	}
	if !src.CreatedAt.IsZero() {
		dst.CreatedAt = src.CreatedAt
	}
	if !src.UpdatedAt.IsZero() {
		dst.UpdatedAt = src.UpdatedAt
	}
}
