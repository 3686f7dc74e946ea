package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"messaging-client/internal/logging"

	"go.uber.org/zap"
)

// Session supplies the endpoint base URL and the current access token.
type Session interface {
	MessagingBaseURL() string
	AccessToken() string
}

type Request struct {
	// Op names the call for logs and metrics.
	Op      string
	Method  string
	Path    string
	Query   url.Values
	Headers http.Header
	Body    any
	// Token overrides the session token for this request.
	Token string
	// Anonymous suppresses the Authorization header entirely.
	Anonymous bool
}

type Client struct {
	session Session
	http    *http.Client
	logger  *zap.Logger
	now     func() time.Time
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = logging.OrNop(l).Named("transport") }
}

func New(session Session, opts ...Option) *Client {
	c := &Client{
		session: session,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do sends req and decodes a JSON response into out when out is non-nil and
// the server returned a body. 204 and empty bodies succeed without touching
// out. Any other non-2xx status yields *HTTPError. Nothing is retried.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	base := strings.TrimRight(c.session.MessagingBaseURL(), "/")
	if base == "" {
		return errors.New("transport: messaging base url is not set")
	}

	target := base + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("transport: encode %s body: %w", req.Op, err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return fmt.Errorf("transport: build %s request: %w", req.Op, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	for k, vals := range req.Headers {
		httpReq.Header.Del(k)
		for _, v := range vals {
			httpReq.Header.Add(k, v)
		}
	}
	if !req.Anonymous {
		token := req.Token
		if token == "" {
			token = c.session.AccessToken()
		}
		if token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := c.now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		observeRequest(req.Op, "error", c.now().Sub(start))
		return fmt.Errorf("transport: %s %s: %w", req.Method, req.Path, err)
	}
	defer resp.Body.Close()
	observeRequest(req.Op, strconv.Itoa(resp.StatusCode), c.now().Sub(start))

	c.logger.Debug("request completed",
		zap.String("op", req.Op),
		zap.String("method", req.Method),
		zap.String("path", req.Path),
		zap.Int("status", resp.StatusCode),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newHTTPError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("transport: read %s response: %w", req.Op, err)
	}
	if resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(data)) == 0 || out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("transport: decode %s response: %w", req.Op, err)
	}
	return nil
}
