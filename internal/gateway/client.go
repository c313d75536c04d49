// Package gateway is the HTTP client for the ai4all community gateway.
// It covers the OpenAI-compatible chat surface plus the node-local
// telemetry routes: wallet balance, node status, GPU inventory and
// system stats.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the gateway address on a stock local install.
	DefaultBaseURL = "http://localhost:8000"

	defaultRequestTimeout = 10 * time.Second

	// maxBodyBytes caps how much of a response body is read for the
	// plain JSON routes.
	maxBodyBytes = 1 << 20
)

// Client talks to one gateway instance. It is safe for concurrent use.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	requestTimeout time.Duration
}

// NewClient returns a client for the gateway at baseURL. timeout bounds
// the plain request/response calls; streaming calls are bounded only by
// their context so a slow generation is never cut off mid-reply.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		// No http.Client.Timeout here: it would also cap the total
		// lifetime of streaming response bodies.
		httpClient:     &http.Client{},
		requestTimeout: timeout,
	}
}

// BaseURL reports the gateway address this client targets.
func (c *Client) BaseURL() string { return c.baseURL }

// Health probes the gateway liveness route.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.getJSON(ctx, "/health", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// ListModels returns the gateway model catalogue.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	var list modelList
	if err := c.getJSON(ctx, "/v1/models", &list); err != nil {
		return nil, err
	}
	return list.Data, nil
}

// Balance fetches the local wallet summary.
func (c *Client) Balance(ctx context.Context) (*TokenBalance, error) {
	var bal TokenBalance
	if err := c.getJSON(ctx, "/v1/tokens/balance", &bal); err != nil {
		return nil, err
	}
	return &bal, nil
}

// NodeStatus fetches the node daemon status as proxied by the gateway.
func (c *Client) NodeStatus(ctx context.Context) (*NodeStatus, error) {
	var st NodeStatus
	if err := c.getJSON(ctx, "/v1/node/status", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// GPUStatus fetches the detected GPU inventory of the gateway host.
func (c *Client) GPUStatus(ctx context.Context) (*GPUStatus, error) {
	var st GPUStatus
	if err := c.getJSON(ctx, "/v1/gpu", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// SystemStats fetches a host utilisation sample.
func (c *Client) SystemStats(ctx context.Context) (*SystemStats, error) {
	var st SystemStats
	if err := c.getJSON(ctx, "/v1/system/stats", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// ClaimStarter requests the one-time starter token grant for sessionID.
// A refusal (already granted) is reported in the result, not as an
// error; the error return covers transport and HTTP failures only.
func (c *Client) ClaimStarter(ctx context.Context, sessionID string) (*StarterGrant, error) {
	var grant StarterGrant
	in := starterGrantRequest{SessionID: sessionID}
	if err := c.postJSON(ctx, "/v1/tokens/starter", in, &grant); err != nil {
		return nil, err
	}
	return &grant, nil
}

// Chat runs a buffered, non-streaming completion. Interactive callers
// want ChatStream; this exists for scripted one-shot use.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatCompletion, error) {
	req.Stream = false
	var completion ChatCompletion
	if err := c.postJSON(ctx, "/v1/chat/completions", req, &completion); err != nil {
		return nil, err
	}
	return &completion, nil
}

// withTimeout applies the client's default timeout when the caller's
// context carries no deadline of its own.
func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.requestTimeout)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", path, err)
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request for %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read gateway response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newRequestError(resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}
