package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultBaseURL is the public guide service.
const DefaultBaseURL = "https://guide-server.aki-game.net"

const successCode = 200

var (
	// ErrNoData means upstream answered but had nothing for us: a non-200
	// application code or an empty data field (null, {}, [] or ""). Retrying
	// will not help.
	ErrNoData = errors.New("upstream: no data")
	// ErrExhausted means every attempt hit a transient failure.
	ErrExhausted = errors.New("upstream: attempts exhausted")
)

type MissReason string

const (
	MissDefinitive MissReason = "definitive"
	MissExhausted  MissReason = "exhausted"
)

// MissError is returned when a call produced no usable payload.
type MissError struct {
	URL      string
	Reason   MissReason
	Attempts int
	Code     int   // application code, for definitive misses
	Err      error // last transient error, for exhausted misses
}

func (e *MissError) Error() string {
	switch e.Reason {
	case MissDefinitive:
		return fmt.Sprintf("upstream: %s: no data (code %d)", e.URL, e.Code)
	default:
		return fmt.Sprintf("upstream: %s: failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
	}
}

func (e *MissError) Unwrap() error { return e.Err }

func (e *MissError) Is(target error) bool {
	switch target {
	case ErrNoData:
		return e.Reason == MissDefinitive
	case ErrExhausted:
		return e.Reason == MissExhausted
	}
	return false
}

// Options tune the client. Zero values fall back to the service defaults.
type Options struct {
	BaseURL    string
	Language   string
	Timeout    time.Duration
	Attempts   int
	RetryDelay time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to the guide service. It does not cache anything.
type Client struct {
	baseURL    string
	language   string
	attempts   int
	retryDelay time.Duration
	http       *http.Client
	logger     *zap.Logger
}

func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Language == "" {
		opts.Language = "en"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		language:   opts.Language,
		attempts:   opts.Attempts,
		retryDelay: opts.RetryDelay,
		http:       opts.HTTPClient,
		logger:     opts.Logger.Named("upstream"),
	}
}

// Language is the localization the client asks for.
func (c *Client) Language() string { return c.language }

type envelope struct {
	Code int             `json:"code"`
	Data json.RawMessage `json:"data"`
}

// Get fetches path and decodes the envelope's data into out. Transport errors,
// non-2xx statuses and undecodable bodies are retried; a non-200 application
// code or empty data is returned at once as ErrNoData.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		env, err := c.do(ctx, u)
		if err == nil {
			if env.Code != successCode {
				return &MissError{URL: u, Reason: MissDefinitive, Attempts: attempt, Code: env.Code}
			}
			if isEmpty(env.Data) {
				return &MissError{URL: u, Reason: MissDefinitive, Attempts: attempt, Code: env.Code}
			}
			if err = json.Unmarshal(env.Data, out); err == nil {
				return nil
			}
			err = fmt.Errorf("decode data: %w", err)
		}

		lastErr = err
		c.logger.Warn("attempt failed",
			zap.String("url", u),
			zap.Int("attempt", attempt),
			zap.Int("attempts", c.attempts),
			zap.Error(err),
		)

		if attempt < c.attempts {
			if err := sleep(ctx, c.retryDelay); err != nil {
				return &MissError{URL: u, Reason: MissExhausted, Attempts: attempt, Err: err}
			}
		}
	}
	return &MissError{URL: u, Reason: MissExhausted, Attempts: c.attempts, Err: lastErr}
}

func (c *Client) do(ctx context.Context, u string) (envelope, error) {
	var env envelope

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return env, fmt.Errorf("build request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return env, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return env, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return env, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 200))
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// setHeaders mimics the official guide site; the service rejects bare clients.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Origin", "https://wuwaguide.kurogames.com")
	req.Header.Set("Referer", "https://wuwaguide.kurogames.com/")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/137.0.0.0 Safari/537.36")
	req.Header.Set("x-language", c.language)
	req.Header.Set("x-token", "")
}

// isEmpty reports data the service uses to mean "nothing here": absent, null,
// an empty object, an empty array or an empty string.
func isEmpty(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	switch {
	case len(raw) == 0, bytes.Equal(raw, []byte("null")), bytes.Equal(raw, []byte(`""`)):
		return true
	case len(raw) >= 2 && (raw[0] == '{' && raw[len(raw)-1] == '}' || raw[0] == '[' && raw[len(raw)-1] == ']'):
		return len(bytes.TrimSpace(raw[1:len(raw)-1])) == 0
	}
	return false
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
