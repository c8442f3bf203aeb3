package base

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

	"github.com/rs/zerolog/log"
)

// HTTPClient provides common HTTP functionality for gateways
type HTTPClient struct {
	client  *http.Client
	baseURL string
	name    string // provider name for logging
}

// NewHTTPClient creates a new HTTP client with default settings
func NewHTTPClient(providerName string, timeoutSec int) *HTTPClient {
	if timeoutSec == 0 {
		timeoutSec = 30
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout: time.Duration(timeoutSec) * time.Second,
		},
		name: providerName,
	}
}

// SetBaseURL sets the base URL for all requests
func (c *HTTPClient) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimRight(baseURL, "/")
}

func (c *HTTPClient) BaseURL() string { return c.baseURL }

// SetTransport replaces the underlying client, e.g. for tests.
func (c *HTTPClient) SetTransport(client *http.Client) {
	if client != nil {
		c.client = client
	}
}

// PostJSON makes a POST request with JSON payload
func (c *HTTPClient) PostJSON(ctx context.Context, endpoint string, payload any, headers map[string]string) (*HTTPResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON payload: %w", err)
	}
	return c.do(ctx, http.MethodPost, endpoint, bytes.NewReader(body), "application/json", headers)
}

// PostForm makes a POST request with a urlencoded body.
func (c *HTTPClient) PostForm(ctx context.Context, endpoint string, form url.Values, headers map[string]string) (*HTTPResponse, error) {
	return c.do(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", headers)
}

// Post sends a body-less POST.
func (c *HTTPClient) Post(ctx context.Context, endpoint string, headers map[string]string) (*HTTPResponse, error) {
	return c.do(ctx, http.MethodPost, endpoint, nil, "", headers)
}

// Get makes a GET request
func (c *HTTPClient) Get(ctx context.Context, endpoint string, headers map[string]string) (*HTTPResponse, error) {
	return c.do(ctx, http.MethodGet, endpoint, nil, "", headers)
}

func (c *HTTPClient) do(ctx context.Context, method, endpoint string, body io.Reader, contentType string, headers map[string]string) (*HTTPResponse, error) {
	target := c.baseURL + endpoint
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", fmt.Sprintf("PayGate/%s", c.name))
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	// Log the request (without sensitive data)
	log.Debug().
		Str("provider", c.name).
		Str("method", method).
		Str("url", target).
		Msg("making HTTP request")

	resp, err := c.client.Do(req)
	if err != nil {
		log.Error().
			Str("provider", c.name).
			Str("url", target).
			Err(err).
			Msg("HTTP request failed")
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}

	return c.handleResponse(resp)
}

// handleResponse processes the HTTP response
func (c *HTTPClient) handleResponse(resp *http.Response) (*HTTPResponse, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	log.Debug().
		Str("provider", c.name).
		Int("status_code", resp.StatusCode).
		Int("body_length", len(body)).
		Msg("received HTTP response")

	return &HTTPResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}, nil
}

// HTTPResponse represents an HTTP response
type HTTPResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// IsSuccess checks if the response indicates success (2xx status code)
func (r *HTTPResponse) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode unmarshals the response body into the provided struct
func (r *HTTPResponse) Decode(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Map decodes the body as a JSON object. Non-object bodies yield an empty map.
func (r *HTTPResponse) Map() map[string]any {
	out := map[string]any{}
	if len(r.Body) == 0 {
		return out
	}
	dec := json.NewDecoder(bytes.NewReader(r.Body))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return map[string]any{}
	}
	return out
}

func (r *HTTPResponse) String() string {
	return string(r.Body)
}
