// Package transport performs the single-attempt HTTP exchange with the
// warehouse server. One JSON request yields one JSON response; there are no
// retries and no backoff; a caller that needs resilience re-issues the
// operation, typically on the next poll cycle.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	// ConnectTimeout and ReadTimeout are fixed per attempt.
	ConnectTimeout = 5 * time.Second
	ReadTimeout    = 5 * time.Second

	// maxLogBody caps pretty-printed payloads in logs.
	maxLogBody = 4096
)

// FailureKind distinguishes transport-level failures.
type FailureKind int

const (
	FailureOther FailureKind = iota
	FailureTimeout
	FailureUnreachable
)

// Error is a transport-level failure: the request never produced a usable
// response body.
type Error struct {
	Kind FailureKind
	Err  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case FailureTimeout:
		return fmt.Sprintf("transport: timeout: %v", e.Err)
	case FailureUnreachable:
		return fmt.Sprintf("transport: unreachable: %v", e.Err)
	default:
		return fmt.Sprintf("transport: %v", e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// RawResult is the body and status of one completed HTTP exchange. Non-2xx
// statuses are not errors here: the body still goes through classification,
// and only afterwards may the status be surfaced.
type RawResult struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the HTTP status is 2xx.
func (r RawResult) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode <= 299
}

// Client posts typed request bodies as JSON to the server base address.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
}

// NewClient builds a client for the given base address. The address is used
// as-is; normalization happens in the config layer.
func NewClient(baseURL string) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: ConnectTimeout,
		}).DialContext,
		ResponseHeaderTimeout: ReadTimeout,
		DisableKeepAlives:     true,
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   ConnectTimeout + ReadTimeout,
		},
	}
}

// SetLogger sets the logger for request/response dumps.
func (c *Client) SetLogger(logger *log.Logger) {
	c.logger = logger
}

// BaseURL returns the configured server base address.
func (c *Client) BaseURL() string { return c.baseURL }

// Post serializes body to JSON and performs exactly one POST attempt.
// logRequest gates the request/response dump so high-frequency background
// polls stay silent while user-initiated actions are logged.
func (c *Client) Post(ctx context.Context, path string, body any, logRequest bool) (RawResult, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return RawResult{}, &Error{Kind: FailureOther, Err: fmt.Errorf("encode request: %w", err)}
	}

	url := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if logRequest && c.logger != nil {
		c.logger.Printf("REQUEST POST %s\n%s", url, formatForLog(payload))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return RawResult{}, &Error{Kind: FailureOther, Err: err}
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return RawResult{}, classifyNetErr(err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return RawResult{}, classifyNetErr(err)
	}

	if logRequest && c.logger != nil {
		c.logger.Printf("RESPONSE %d from %s\n%s", resp.StatusCode, url, formatForLog(data))
	}
	return RawResult{StatusCode: resp.StatusCode, Body: data}, nil
}

func classifyNetErr(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: FailureTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: FailureTimeout, Err: err}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &Error{Kind: FailureUnreachable, Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &Error{Kind: FailureUnreachable, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: FailureOther, Err: err}
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host") {
		return &Error{Kind: FailureUnreachable, Err: err}
	}
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") {
		return &Error{Kind: FailureTimeout, Err: err}
	}
	return &Error{Kind: FailureOther, Err: err}
}
