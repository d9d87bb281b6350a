package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-remote/types"
)

const (
	// RunIDHeader carries the run identifier on submit answers
	RunIDHeader = "X-Run-ID"

	DefaultFetchRetries  = 3
	DefaultRetryInterval = 200 * time.Millisecond

	maxErrorBody = 64 * 1024
)

// Config holds the configuration for a transport Client
type Config struct {
	ServerURL string
	// HTTPClient is optional; a client with Timeout is created when nil
	HTTPClient *http.Client
	// Timeout bounds a single request. Zero means no limit, which sync
	// submissions usually need.
	Timeout time.Duration
	// FetchRetries bounds the retries of artifact downloads on connection
	// failures
	FetchRetries  uint64
	RetryInterval time.Duration
	Log           log.Logger
}

// SubmissionHandle identifies a submitted run. Sync submissions carry their
// final results.
type SubmissionHandle struct {
	RunID   string
	Async   bool
	Results types.ResultSet
}

// Acknowledgement is the body of an async submit answer
type Acknowledgement struct {
	RunID string `json:"runId"`
}

// Client issues the submit, poll and fetch operations against a remote test
// server. It holds no state between calls.
type Client struct {
	baseURL       *url.URL
	http          *http.Client
	fetchRetries  uint64
	retryInterval time.Duration
	log           log.Logger
}

// New creates a transport Client
func New(cfg Config) (*Client, error) {
	if cfg.ServerURL == "" {
		return nil, errors.New("server URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.ServerURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", cfg.ServerURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid server URL %q: scheme must be http or https", cfg.ServerURL)
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}

	return &Client{
		baseURL:       base,
		http:          httpClient,
		fetchRetries:  cfg.FetchRetries,
		retryInterval: cfg.RetryInterval,
		log:           cfg.Log,
	}, nil
}

// Submit sends the run descriptor. Sync runs (POST) answer with the final
// results; async runs (PUT) answer with an acknowledgement only.
func (c *Client) Submit(ctx context.Context, desc types.RunDescriptor) (*SubmissionHandle, error) {
	const op = "submit run"

	body, err := json.Marshal(desc)
	if err != nil {
		return nil, &Error{Op: op, Err: fmt.Errorf("encode descriptor: %w", err)}
	}

	method := http.MethodPost
	if desc.Async {
		method = http.MethodPut
	}

	c.log.Debug("Submitting run", "method", method, "server", c.baseURL.String())
	resp, err := c.do(ctx, method, c.endpoint("run"), bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(op, resp)
	}

	handle := &SubmissionHandle{
		RunID: resp.Header.Get(RunIDHeader),
		Async: desc.Async,
	}

	if desc.Async {
		var ack Acknowledgement
		if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil && !errors.Is(err, io.EOF) {
			return nil, &Error{Op: op, Err: fmt.Errorf("decode acknowledgement: %w", err)}
		}
		if ack.RunID != "" {
			handle.RunID = ack.RunID
		}
		return handle, nil
	}

	if err := json.NewDecoder(resp.Body).Decode(&handle.Results); err != nil {
		return nil, &Error{Op: op, Err: fmt.Errorf("decode results: %w", err)}
	}
	return handle, nil
}

// PollOnce issues a single results query. The answer kind is decided by the
// status code alone: 206 is partial, 200 is final.
func (c *Client) PollOnce(ctx context.Context, handle *SubmissionHandle, timeoutHint time.Duration) (types.PollResponse, error) {
	const op = "poll results"

	u := c.endpoint("results")
	q := u.Query()
	q.Set("timeout", strconv.FormatInt(hintSeconds(timeoutHint), 10))
	u.RawQuery = q.Encode()

	resp, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return types.PollResponse{}, &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	var build func(types.ResultSet) types.PollResponse
	switch resp.StatusCode {
	case http.StatusPartialContent:
		build = types.NewPartial
	case http.StatusOK:
		build = types.NewFinal
	default:
		return types.PollResponse{}, statusError(op, resp)
	}

	var rs types.ResultSet
	if err := json.NewDecoder(resp.Body).Decode(&rs); err != nil {
		return types.PollResponse{}, &Error{Op: op, Err: fmt.Errorf("decode results: %w", err)}
	}

	if handle != nil && handle.RunID != "" {
		if runID := resp.Header.Get(RunIDHeader); runID != "" && runID != handle.RunID {
			c.log.Warn("Poll answered for a different run", "expected", handle.RunID, "got", runID)
		}
	}

	return build(rs), nil
}

// FetchArtifactList returns the names of the report files the server holds
func (c *Client) FetchArtifactList(ctx context.Context) ([]string, error) {
	const op = "list artifacts"

	var names []string
	err := c.fetch(ctx, op, c.endpoint("results", "files"), func(r io.Reader) error {
		if err := json.NewDecoder(r).Decode(&names); err != nil {
			return fmt.Errorf("decode artifact list: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// FetchSuiteArtifact returns the suite summary report
func (c *Client) FetchSuiteArtifact(ctx context.Context) (io.ReadCloser, error) {
	return c.fetchBytes(ctx, "fetch suite artifact", c.endpoint("results", "suite"))
}

// FetchArtifact returns a single named report file
func (c *Client) FetchArtifact(ctx context.Context, name string) (io.ReadCloser, error) {
	return c.fetchBytes(ctx, fmt.Sprintf("fetch artifact %q", name), c.endpoint("results", "file", name))
}

func (c *Client) fetchBytes(ctx context.Context, op string, u *url.URL) (io.ReadCloser, error) {
	var data []byte
	err := c.fetch(ctx, op, u, func(r io.Reader) error {
		var err error
		data, err = io.ReadAll(r)
		return err
	})
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// fetch runs an artifact GET. Connection failures are retried with
// exponential backoff; any answer other than 200 is final.
func (c *Client) fetch(ctx context.Context, op string, u *url.URL, read func(io.Reader) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.fetchRetries), ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		resp, err := c.do(ctx, http.MethodGet, u, nil)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(&Error{Op: op, Err: err})
			}
			c.log.Debug("Artifact request failed", "op", op, "attempt", attempt, "err", err)
			return &Error{Op: op, Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(statusError(op, resp))
		}
		if err := read(resp.Body); err != nil {
			return backoff.Permanent(&Error{Op: op, Err: err})
		}
		return nil
	}, policy)

	var tErr *Error
	if err != nil && !errors.As(err, &tErr) {
		return &Error{Op: op, Err: err}
	}
	return err
}

func (c *Client) do(ctx context.Context, method string, u *url.URL, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.http.Do(req)
}

func (c *Client) endpoint(segments ...string) *url.URL {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	raw := u.Path
	for _, s := range segments {
		u.Path += "/" + s
		raw += "/" + url.PathEscape(s)
	}
	u.RawPath = raw
	return &u
}

// statusError reads the diagnostic text of an unexpected answer. JSON error
// bodies of the form {"error": "..."} are unwrapped.
func statusError(op string, resp *http.Response) *Error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	body := string(data)

	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		body = payload.Error
	}
	return &Error{Op: op, StatusCode: resp.StatusCode, Body: body}
}

func hintSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}
