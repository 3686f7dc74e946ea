package eventsource

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// ErrHeartbeatTimeout ends a stream that delivered no bytes, comments
// included, within the heartbeat window.
var ErrHeartbeatTimeout = errors.New("eventsource: heartbeat timeout")

// Event is one dispatched server-sent event. ID carries the last event id
// seen on the stream, which persists across events that omit it.
type Event struct {
	Name string
	ID   string
	Data string
}

type Stream interface {
	// Next blocks until the next event. It returns io.EOF when the server
	// ends the stream.
	Next() (Event, error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Stream, error)
}

// AuthError reports that the stream endpoint rejected the credentials.
type AuthError struct {
	StatusCode int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("event stream rejected credentials: status %d", e.StatusCode)
}

type HTTPDialer struct {
	Client *http.Client
	// Heartbeat is the longest the stream may stay silent before it is
	// dropped and reported as ErrHeartbeatTimeout. Zero disables the check.
	Heartbeat time.Duration
}

func (d *HTTPDialer) Dial(ctx context.Context, url string, header http.Header) (Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	for k, vals := range header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("connect event stream: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		resp.Body.Close()
		cancel()
		return nil, &AuthError{StatusCode: resp.StatusCode}
	case resp.StatusCode != http.StatusOK:
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("event stream returned status %d", resp.StatusCode)
	}

	return NewReader(watchBody(resp.Body, d.Heartbeat, cancel)), nil
}

// watchedBody cancels the stream request when no bytes arrive for timeout.
type watchedBody struct {
	body    io.ReadCloser
	cancel  context.CancelFunc
	timeout time.Duration
	timer   *time.Timer
	expired atomic.Bool
}

func watchBody(body io.ReadCloser, timeout time.Duration, cancel context.CancelFunc) *watchedBody {
	b := &watchedBody{body: body, cancel: cancel, timeout: timeout}
	if timeout > 0 {
		b.timer = time.AfterFunc(timeout, func() {
			b.expired.Store(true)
			cancel()
		})
	}
	return b
}

func (b *watchedBody) Read(p []byte) (int, error) {
	n, err := b.body.Read(p)
	if b.expired.Load() {
		return n, ErrHeartbeatTimeout
	}
	if n > 0 && b.timer != nil {
		b.timer.Reset(b.timeout)
	}
	return n, err
}

func (b *watchedBody) Close() error {
	if b.timer != nil {
		b.timer.Stop()
	}
	err := b.body.Close()
	b.cancel()
	return err
}

// Reader parses the text/event-stream wire format.
type Reader struct {
	body   io.ReadCloser
	sc     *bufio.Scanner
	lastID string
}

func NewReader(body io.ReadCloser) *Reader {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return &Reader{body: body, sc: sc}
}

func (r *Reader) Next() (Event, error) {
	var (
		name    string
		data    []string
		hasData bool
	)

	for r.sc.Scan() {
		line := strings.TrimSuffix(r.sc.Text(), "\r")
		if line == "" {
			if !hasData {
				name = ""
				continue
			}
			if name == "" {
				name = "message"
			}
			return Event{Name: name, ID: r.lastID, Data: strings.Join(data, "\n")}, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			name = value
		case "data":
			data = append(data, value)
			hasData = true
		case "id":
			if !strings.ContainsRune(value, 0) {
				r.lastID = value
			}
		case "retry":
			// reconnection timing is owned by Policy
		}
	}

	if err := r.sc.Err(); err != nil {
		return Event{}, err
	}
	return Event{}, io.EOF
}

func (r *Reader) Close() error {
	return r.body.Close()
}
