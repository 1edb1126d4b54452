// Package payout is a client for the external transfer service that moves funds
// to delegators.
package payout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"
)

// Sentinel errors for transfer failures. ErrRejected and ErrUnavailable mean
// the transfer did not happen; after ErrUnconfirmed it may have.
var (
	ErrRejected    = errors.New("transfer rejected")
	ErrUnavailable = errors.New("transfer service unavailable")
	ErrUnconfirmed = errors.New("transfer outcome unknown")
)

const transfersPath = "/v1/transfers"

// maxErrorBody caps how much of an error response is kept
const maxErrorBody = 512

// Request is a transfer instruction. Reference makes it idempotent: the service
// answers 409 Conflict for a reference it has already executed.
type Request struct {
	Reference string
	Recipient string
	Amount    uint64
}

type requestBody struct {
	Reference string `json:"reference"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

// Client represents a transfer service client
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// Option configures the Client
type Option func(*Client)

// WithToken authenticates requests with a bearer token
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// NewClient creates a new transfer service client
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send executes a transfer. A nil error means the funds were moved, now or by an
// earlier request with the same reference. Once the request may have reached
// the service, timeouts and server errors are reported as ErrUnconfirmed.
func (c *Client) Send(ctx context.Context, req Request) error {
	body, err := json.Marshal(requestBody{
		Reference: req.Reference,
		Recipient: req.Recipient,
		Amount:    strconv.FormatUint(req.Amount, 10),
	})
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+transfersPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.Reference)
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if notSent(err) {
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return fmt.Errorf("%w: %w", ErrUnconfirmed, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusConflict:
		// already executed under this reference
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, readMessage(resp.Body))
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d: %s", ErrUnconfirmed, resp.StatusCode, readMessage(resp.Body))
	default:
		return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, readMessage(resp.Body))
	}
}

// notSent reports whether the request failed before a connection was made
func notSent(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func readMessage(r io.Reader) string {
	msg, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return string(bytes.TrimSpace(msg))
}
