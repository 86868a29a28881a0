// Package httpclient implements the orchestration BotClient interface over
// HTTP for out-of-process bots. Transport failures and empty or unreadable
// replies degrade to no-response sentinels instead of surfacing as errors, so
// a misbehaving peer can never abort an orchestration attempt.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dialogmesh/dialogmesh/runtime/orchestration"
)

const (
	// EligibilityPath is the wire path for eligibility requests.
	EligibilityPath = "/orchestration/eligibility"
	// ProxyPath is the wire path for resume (proxy) requests.
	ProxyPath = "/orchestration/proxy"

	defaultTimeout = 5 * time.Second
)

type (
	// Option configures the HTTP client.
	Option func(*Client)

	// Client implements orchestration.BotClient over HTTP. A single timeout
	// applies uniformly to connect, read, write, and overall call duration;
	// transport keep-alive handles reconnection, and no business-level retry
	// is performed: a failed call degrades immediately to a sentinel.
	Client struct {
		target  orchestration.TargetBot
		http    *http.Client
		headers http.Header
	}
)

// WithTimeout overrides the uniform call timeout. The default is 5s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithHTTPClient overrides the underlying *http.Client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithHeader adds a static header to all outgoing requests.
func WithHeader(name, value string) Option {
	return func(c *Client) {
		c.headers.Add(name, value)
	}
}

// WithBearerToken configures the client to send an Authorization Bearer token.
func WithBearerToken(token string) Option {
	return WithHeader("Authorization", "Bearer "+token)
}

// New constructs a Client for the given target bot. The target URL must point
// to the peer's base address (for example, "https://faq-bot.example.com").
func New(target orchestration.TargetBot, opts ...Option) (*Client, error) {
	if target.ID == "" {
		return nil, errors.New("target bot id is required")
	}
	if target.URL == "" {
		return nil, errors.New("target bot url is required")
	}
	c := &Client{
		target:  target,
		http:    &http.Client{Timeout: defaultTimeout},
		headers: make(http.Header),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Ensure Client implements orchestration.BotClient.
var _ orchestration.BotClient = (*Client)(nil)

// Target returns the bot's identity.
func (c *Client) Target() orchestration.TargetBot {
	return c.target
}

// AskEligibility posts the eligibility payload to the peer. Any transport
// failure, non-2xx status, empty body, or unrecognized reply returns
// NoResponse with status NOT_AVAILABLE; the metadata is echoed from the
// request when present and synthesized otherwise.
func (c *Client) AskEligibility(ctx context.Context, req orchestration.EligibilityRequest) (orchestration.SecondaryBotResponse, error) {
	metadata := c.askMetadata(req.Metadata)
	resp, ok := c.post(ctx, EligibilityPath, req)
	if !ok {
		return orchestration.NoResponse(orchestration.StatusNotAvailable, metadata), nil
	}
	return resp, nil
}

// Resume posts the resume payload to the peer. Any transport failure, non-2xx
// status, empty body, or unrecognized reply returns NoResponse with status
// END and the request's metadata.
func (c *Client) Resume(ctx context.Context, req orchestration.ResumeRequest) (orchestration.SecondaryBotResponse, error) {
	var metadata orchestration.Metadata
	if req.Metadata != nil {
		metadata = *req.Metadata
	}
	resp, ok := c.post(ctx, ProxyPath, req)
	if !ok {
		return orchestration.NoResponse(orchestration.StatusEnd, metadata), nil
	}
	return resp, nil
}

// post issues one JSON POST and decodes the reply fail-soft. The boolean
// reports whether a recognized bot response was obtained.
func (c *Client) post(ctx context.Context, path string, body any) (orchestration.SecondaryBotResponse, bool) {
	var zero orchestration.SecondaryBotResponse

	encoded, err := json.Marshal(body)
	if err != nil {
		return zero, false
	}
	url := strings.TrimSuffix(c.target.URL, "/") + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return zero, false
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, vs := range c.headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return zero, false
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return zero, false
	}
	raw, err := io.ReadAll(httpResp.Body)
	if err != nil || len(bytes.TrimSpace(raw)) == 0 {
		return zero, false
	}
	var resp orchestration.SecondaryBotResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return zero, false
	}
	if resp.Kind() == orchestration.BotUnknown {
		return zero, false
	}
	return resp, true
}

func (c *Client) askMetadata(md *orchestration.Metadata) orchestration.Metadata {
	if md != nil {
		return *md
	}
	return orchestration.Metadata{
		UserID:         "unknown",
		BotID:          c.target.ID,
		OrchestratorID: "orchestrator",
	}
}
