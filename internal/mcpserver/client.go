package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds the configuration for connecting to the Atelier backend.
type Config struct {
	APIURL string // Base URL, e.g. "http://localhost:8080"
	UserID string // Acting user's ID, forwarded as the caller identity
}

// AtelierClient is a pure HTTP client for the Atelier contract API.
type AtelierClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewAtelierClient creates a new client for the Atelier backend.
func NewAtelierClient(cfg Config) *AtelierClient {
	return &AtelierClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the backend.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the backend and returns the response body.
func (c *AtelierClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("X-User-Id", c.cfg.UserID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// GetContract fetches a single contract by ID.
func (c *AtelierClient) GetContract(ctx context.Context, contractID string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/contracts/"+contractID, nil, nil)
}

// ListContracts lists contracts the acting user is party to.
func (c *AtelierClient) ListContracts(ctx context.Context, status string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/v1/users/" + c.cfg.UserID + "/contracts"
	return c.doRequest(ctx, http.MethodGet, path, q, nil)
}

// GetActions returns the actions available to the acting user on a contract.
func (c *AtelierClient) GetActions(ctx context.Context, contractID string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/contracts/"+contractID+"/actions", nil, nil)
}

// GetSignatureData returns the EIP-712 terms and typed hash for signing.
func (c *AtelierClient) GetSignatureData(ctx context.Context, contractID string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/contracts/"+contractID+"/signature-data", nil, nil)
}

// RequestCancellation asks the other party to cancel a paid contract.
func (c *AtelierClient) RequestCancellation(ctx context.Context, contractID, reason string) (json.RawMessage, error) {
	body := map[string]string{"reason": reason}
	return c.doRequest(ctx, http.MethodPost, "/v1/contracts/"+contractID+"/cancel", nil, body)
}

// ConfirmSettlement marks a completed contract as settled.
func (c *AtelierClient) ConfirmSettlement(ctx context.Context, contractID string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/v1/contracts/"+contractID+"/settle", nil, nil)
}
