// Package resolume talks to the mixer's HTTP API and provides an
// in-process stand-in for it.
package resolume

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"showcall/lib/connstate"
)

const (
	CompositionPath = "/api/v1/composition"

	DefaultTimeout       = 5 * time.Second
	DefaultCheckInterval = 3 * time.Second

	maxResponseBytes = 16 << 20
)

type Options struct {
	Host string
	Port int
	// Timeout bounds every request. Defaults to DefaultTimeout.
	Timeout time.Duration
	// CheckInterval is the debounce window for CheckConnection.
	CheckInterval time.Duration
	HTTPClient    *http.Client
	Logger        *slog.Logger
}

type Client struct {
	opts  Options
	base  string
	http  *http.Client
	log   *slog.Logger
	state *connstate.Tracker

	// checkMu serializes CheckConnection so simultaneous UI actions share
	// one request.
	checkMu sync.Mutex
}

func New(opts Options) *Client {
	if opts.Host == "" {
		opts.Host = "localhost"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = DefaultCheckInterval
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		opts:  opts,
		base:  "http://" + net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
		http:  hc,
		log:   log.With(slog.String("component", "resolume")),
		state: connstate.NewTracker(),
	}
}

func (c *Client) BaseURL() string { return c.base }

func (c *Client) State() connstate.State { return c.state.Snapshot() }

// Tracker exposes the connection tracker so tests can control its clock.
func (c *Client) Tracker() *connstate.Tracker { return c.state }

// Get issues a GET and decodes the JSON response into out when out is
// non-nil.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return decodeInto(path, body, out)
}

// Post sends body as JSON.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	resp, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	return decodeInto(path, resp, out)
}

// Composition returns the raw composition document.
func (c *Client) Composition(ctx context.Context) ([]byte, error) {
	body, err := c.do(ctx, http.MethodGet, CompositionPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get composition: %w", err)
	}
	return body, nil
}

// CheckConnection probes the mixer unless the last observation (from a
// probe or any other request) is younger than the check interval, in
// which case the cached state is returned without I/O.
func (c *Client) CheckConnection(ctx context.Context) connstate.State {
	c.checkMu.Lock()
	defer c.checkMu.Unlock()

	if !c.state.Due(c.opts.CheckInterval) {
		return c.state.Snapshot()
	}
	_, _ = c.do(ctx, http.MethodGet, CompositionPath, nil)
	return c.state.Snapshot()
}

func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	var reader io.Reader
	if body != nil && (method == http.MethodPost || method == http.MethodPut) {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("resolume: encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return nil, fmt.Errorf("resolume: %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.log.Debug("request", slog.String("method", method), slog.String("url", req.URL.String()))
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.fail(method, path, 0, err.Error())
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, c.fail(method, path, resp.StatusCode, err.Error())
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.fail(method, path, resp.StatusCode, upstreamMessage(resp, data))
	}

	c.state.MarkOK()
	return data, nil
}

// Error is a normalized failure talking to the mixer.
type Error struct {
	Method string
	Path   string
	Status int
	Msg    string
}

func (e *Error) Error() string {
	return "resolume error: " + e.Msg
}

func (c *Client) fail(method, path string, status int, msg string) error {
	err := &Error{Method: method, Path: path, Status: status, Msg: msg}
	c.state.MarkFailed(err)
	c.log.Error("request failed",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.String("error", msg))
	return err
}

// upstreamMessage prefers the mixer's own error field, then the status
// text.
func upstreamMessage(resp *http.Response, data []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil && strings.TrimSpace(payload.Error) != "" {
		return payload.Error
	}
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return resp.Status
}

func decodeInto(path string, body []byte, out any) error {
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("resolume: decode %s: %w", path, err)
	}
	return nil
}

// IsUnreachable reports whether err came from the transport rather than
// an HTTP status.
func IsUnreachable(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Status == 0
}
