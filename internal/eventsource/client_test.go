package eventsource

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeStream struct {
	events    chan Event
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeStream(buffer int) *fakeStream {
	return &fakeStream{events: make(chan Event, buffer), closed: make(chan struct{})}
}

func (s *fakeStream) Next() (Event, error) {
	select {
	case ev, ok := <-s.events:
		if !ok {
			return Event{}, io.EOF
		}
		return ev, nil
	case <-s.closed:
		return Event{}, io.ErrClosedPipe
	}
}

func (s *fakeStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

type dialCall struct {
	url    string
	header http.Header
}

type fakeDialer struct {
	mu    sync.Mutex
	calls []dialCall
	dial  func(ctx context.Context, n int) (Stream, error)
}

func (d *fakeDialer) Dial(ctx context.Context, url string, header http.Header) (Stream, error) {
	d.mu.Lock()
	d.calls = append(d.calls, dialCall{url: url, header: header})
	n := len(d.calls)
	d.mu.Unlock()
	return d.dial(ctx, n)
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

type recordedWaits struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordedWaits) wait(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *recordedWaits) get() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func newTestClient(cfg Config, waits *recordedWaits) *Client {
	c := New(cfg)
	c.wait = waits.wait
	return c
}

func TestPolicyDelay(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		n    int
		want time.Duration
	}{
		{0, time.Second},
		{1, 1500 * time.Millisecond},
		{2, 2250 * time.Millisecond},
		{3, 3375 * time.Millisecond},
		{8, time.Duration(float64(time.Second) * 25.62890625)},
		{9, 30 * time.Second},
		{50, 30 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Delay(tt.n), "attempt %d", tt.n)
	}
}

func TestConnectExhaustsAttempts(t *testing.T) {
	defer goleak.VerifyNone(t)

	dialer := &fakeDialer{dial: func(ctx context.Context, n int) (Stream, error) {
		return nil, errors.New("connection refused")
	}}
	waits := &recordedWaits{}
	c := newTestClient(Config{URL: "https://x.test/eventrouter/v1/sse", Dialer: dialer}, waits)

	err := c.Connect(context.Background())
	require.ErrorIs(t, err, ErrAttemptsExhausted)
	assert.Equal(t, StateFailed, c.State())
	assert.Equal(t, 11, dialer.count(), "initial attempt plus ten reconnects")

	p := DefaultPolicy()
	want := make([]time.Duration, 0, 10)
	for i := 0; i < 10; i++ {
		want = append(want, p.Delay(i))
	}
	assert.Equal(t, want, waits.get(), "no eleventh reconnect is scheduled")

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestConnectDispatchesEvents(t *testing.T) {
	defer goleak.VerifyNone(t)

	stream := newFakeStream(4)
	dialer := &fakeDialer{dial: func(ctx context.Context, n int) (Stream, error) {
		return stream, nil
	}}

	got := make(chan Event, 4)
	c := newTestClient(Config{
		URL:    "https://x.test/eventrouter/v1/sse",
		Dialer: dialer,
		Handlers: map[string]Handler{
			"CONVERSATION_MESSAGE": func(ev Event) { got <- ev },
		},
	}, &recordedWaits{})

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, StateOpen, c.State())

	stream.events <- Event{Name: "UNKNOWN_EVENT", Data: "{}"}
	stream.events <- Event{Name: "CONVERSATION_MESSAGE", ID: "7", Data: `{"a":1}`}

	select {
	case ev := <-got:
		assert.Equal(t, "7", ev.ID)
		assert.Equal(t, `{"a":1}`, ev.Data)
	case <-time.After(time.Second):
		t.Fatal("handler not invoked")
	}

	require.NoError(t, c.Close())
	assert.Equal(t, StateClosed, c.State())
	require.NoError(t, c.Close())
}

func TestReconnectResetsAttemptsAndRefreshesHeaders(t *testing.T) {
	defer goleak.VerifyNone(t)

	first := newFakeStream(1)
	second := newFakeStream(1)
	reopened := make(chan struct{})
	dialer := &fakeDialer{dial: func(ctx context.Context, n int) (Stream, error) {
		switch n {
		case 1:
			return first, nil
		case 2:
			return nil, errors.New("network down")
		default:
			close(reopened)
			return second, nil
		}
	}}

	var mu sync.Mutex
	lastID := "1"
	waits := &recordedWaits{}
	c := newTestClient(Config{
		URL:    "https://x.test/eventrouter/v1/sse?foo=bar",
		Dialer: dialer,
		Header: func() http.Header {
			mu.Lock()
			defer mu.Unlock()
			h := http.Header{}
			h.Set("Last-Event-ID", lastID)
			return h
		},
	}, waits)

	require.NoError(t, c.Connect(context.Background()))

	mu.Lock()
	lastID = "9"
	mu.Unlock()
	close(first.events)

	select {
	case <-reopened:
	case <-time.After(time.Second):
		t.Fatal("client did not reconnect")
	}

	require.NoError(t, c.Close())

	p := DefaultPolicy()
	assert.Equal(t, []time.Duration{p.Delay(0), p.Delay(1)}, waits.get())

	dialer.mu.Lock()
	calls := append([]dialCall(nil), dialer.calls...)
	dialer.mu.Unlock()
	require.Len(t, calls, 3)
	assert.Equal(t, "1", calls[0].header.Get("Last-Event-ID"))
	assert.Equal(t, "9", calls[2].header.Get("Last-Event-ID"))
	for _, call := range calls {
		u, err := url.Parse(call.url)
		require.NoError(t, err)
		assert.NotEmpty(t, u.Query().Get("_ts"), "every attempt is cache busted")
		assert.Equal(t, "bar", u.Query().Get("foo"))
	}
}

func TestFailureAfterOpenReachesOwner(t *testing.T) {
	defer goleak.VerifyNone(t)

	stream := newFakeStream(0)
	dialer := &fakeDialer{dial: func(ctx context.Context, n int) (Stream, error) {
		if n == 1 {
			return stream, nil
		}
		return nil, errors.New("gone")
	}}

	failed := make(chan error, 1)
	c := newTestClient(Config{
		URL:       "https://x.test/sse",
		Dialer:    dialer,
		Policy:    Policy{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1},
		OnFailure: func(err error) { failed <- err },
	}, &recordedWaits{})

	require.NoError(t, c.Connect(context.Background()))
	close(stream.events)

	select {
	case err := <-failed:
		assert.ErrorIs(t, err, ErrAttemptsExhausted)
	case <-time.After(time.Second):
		t.Fatal("owner was not told about the failure")
	}
	assert.Equal(t, 3, dialer.count())
	require.NoError(t, c.Close())
	assert.Equal(t, StateFailed, c.State())
}

func TestAuthRejectionIsNotRetried(t *testing.T) {
	defer goleak.VerifyNone(t)

	dialer := &fakeDialer{dial: func(ctx context.Context, n int) (Stream, error) {
		return nil, &AuthError{StatusCode: http.StatusUnauthorized}
	}}
	waits := &recordedWaits{}
	c := newTestClient(Config{URL: "https://x.test/sse", Dialer: dialer}, waits)

	err := c.Connect(context.Background())
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, 1, dialer.count())
	assert.Empty(t, waits.get())
}

func TestConnectHonoursContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	dialer := &fakeDialer{dial: func(ctx context.Context, n int) (Stream, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	c := newTestClient(Config{URL: "https://x.test/sse", Dialer: dialer}, &recordedWaits{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.Connect(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateClosed, c.State())
	require.NoError(t, c.Close())
}

func TestCloseBeforeConnect(t *testing.T) {
	c := New(Config{URL: "https://x.test/sse", Dialer: &fakeDialer{}})
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Connect(context.Background()), ErrClosed)
}

func TestStateTransitions(t *testing.T) {
	assert.True(t, canTransition(StateConnecting, StateOpen))
	assert.True(t, canTransition(StateOpen, StateReconnecting))
	assert.True(t, canTransition(StateReconnecting, StateConnecting))
	assert.False(t, canTransition(StateClosed, StateConnecting))
	assert.False(t, canTransition(StateFailed, StateOpen))
	assert.False(t, canTransition(StateOpen, StateConnecting))
}
