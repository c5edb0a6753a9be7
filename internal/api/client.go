package api

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

	"go.uber.org/zap"

	"mess-ordersync/internal/auth"
	"mess-ordersync/internal/logger"
)

const defaultTimeout = 15 * time.Second

type Options struct {
	BaseURL  string
	MessSlug string
	Token    auth.Token

	// Write throttling; zero values use the default tier.
	RateLimit float64
	RateBurst int

	Timeout time.Duration
	// Transport is the innermost round tripper; http.DefaultTransport when nil.
	Transport http.RoundTripper
}

// Client talks to the order service of one mess.
type Client struct {
	baseURL    string
	mess       string
	token      auth.Token
	httpClient *http.Client
	throttle   *throttle
	now        func() time.Time
}

func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, ErrMissingBaseURL
	}
	if opts.MessSlug == "" {
		return nil, ErrMissingMess
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		mess:    opts.MessSlug,
		token:   opts.Token,
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: logger.RequestIDTransport(logger.Transport(opts.Transport)),
		},
		throttle: newThrottle(opts.RateLimit, opts.RateBurst),
		now:      time.Now,
	}, nil
}

// path joins escaped segments under the mess prefix.
func (c *Client) path(segments ...string) string {
	var b strings.Builder
	b.WriteString(c.baseURL)
	b.WriteString("/")
	b.WriteString(url.PathEscape(c.mess))
	for _, s := range segments {
		b.WriteString("/")
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}

func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, body, out any) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "api"),
		zap.String("method", method),
	)

	if err := c.token.Check(c.now()); err != nil {
		log.Warn("refusing request with expired token")
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	if err := c.throttle.wait(ctx, method); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			log.Error("failed to marshal request body", zap.Error(err))
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		log.Error("failed creating request", zap.Error(err))
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.token.Apply(req.Header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error("failed to read response body", zap.Error(err))
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := parseError(resp.StatusCode, respBody)
		log.Info("order service rejected request",
			zap.String("path", req.URL.Path),
			zap.Int("status", resp.StatusCode),
			zap.String("message", apiErr.Message),
		)
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		log.Error("failed decoding response", zap.Error(err))
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
