package eventsource

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"messaging-client/internal/logging"

	"go.uber.org/zap"
)

var (
	ErrAttemptsExhausted = errors.New("eventsource: reconnect attempts exhausted")
	ErrClosed            = errors.New("eventsource: client closed")
	ErrAlreadyStarted    = errors.New("eventsource: client already started")
)

type Handler func(Event)

type Config struct {
	URL string
	// Header is called before every attempt so credentials and the last
	// event id are always current.
	Header   func() http.Header
	Handlers map[string]Handler
	Policy   Policy
	Dialer   Dialer
	Logger   *zap.Logger

	// OnFailure receives the terminal error when the stream fails after
	// Connect has already returned. Handlers and OnFailure run on the
	// reader goroutine and must not call Close.
	OnFailure func(error)
}

type Client struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
	wait   func(ctx context.Context, d time.Duration) error

	mu        sync.Mutex
	state     State
	stream    Stream
	cancel    context.CancelFunc
	started   bool
	wasOpened bool
	err       error

	opened    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func New(cfg Config) *Client {
	if cfg.Policy == (Policy{}) {
		cfg.Policy = DefaultPolicy()
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &HTTPDialer{Heartbeat: cfg.Policy.Heartbeat}
	}
	return &Client{
		cfg:    cfg,
		logger: logging.OrNop(cfg.Logger).Named("eventsource"),
		now:    time.Now,
		wait:   sleep,
		state:  StateIdle,
		opened: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts the connection loop and blocks until the stream opens for
// the first time, fails terminally, or ctx ends. Once it has returned nil
// the client keeps reconnecting in the background until Close.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Terminal() {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.mu.Unlock()

	go c.run(runCtx)

	select {
	case <-c.opened:
		return nil
	case <-c.done:
		return c.terminalErr()
	case <-ctx.Done():
		c.Close()
		return ctx.Err()
	}
}

// Close stops the client. It is idempotent and never fails.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		cancel := c.cancel
		stream := c.stream
		started := c.started
		c.transitionLocked(StateClosed)
		c.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if stream != nil {
			stream.Close()
		}
		if !started {
			close(c.done)
		}
	})
	<-c.done
	return nil
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)

	attempts := 0
	for {
		if !c.transition(StateConnecting) {
			return
		}

		stream, err := c.cfg.Dialer.Dial(ctx, c.attemptURL(), c.header())
		if err == nil {
			attempts = 0
			if !c.open(stream) {
				stream.Close()
				return
			}
			err = c.read(stream)
			stream.Close()
			c.mu.Lock()
			c.stream = nil
			c.mu.Unlock()
		}

		if ctx.Err() != nil {
			return
		}

		var authErr *AuthError
		if errors.As(err, &authErr) {
			c.fail(authErr)
			return
		}

		attempts++
		if attempts > c.cfg.Policy.MaxAttempts {
			c.logger.Error("event stream failed",
				zap.Int("attempts", c.cfg.Policy.MaxAttempts),
				zap.Error(err),
			)
			c.fail(fmt.Errorf("%w after %d attempts: %v", ErrAttemptsExhausted, c.cfg.Policy.MaxAttempts, err))
			return
		}

		delay := c.cfg.Policy.Delay(attempts - 1)
		if !c.transition(StateReconnecting) {
			return
		}
		reconnectsTotal.Inc()
		c.logger.Warn("event stream error, reconnecting",
			zap.Int("attempt", attempts),
			zap.Int("max_attempts", c.cfg.Policy.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if c.wait(ctx, delay) != nil {
			return
		}
	}
}

func (c *Client) open(stream Stream) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.transitionLocked(StateOpen) {
		return false
	}
	c.stream = stream
	if !c.wasOpened {
		c.wasOpened = true
		close(c.opened)
	}
	c.logger.Info("event stream open")
	return true
}

func (c *Client) read(stream Stream) error {
	for {
		ev, err := stream.Next()
		if err != nil {
			return err
		}
		eventsTotal.WithLabelValues(ev.Name).Inc()
		h, ok := c.cfg.Handlers[ev.Name]
		if !ok {
			c.logger.Debug("ignoring unhandled event", zap.String("event", ev.Name))
			continue
		}
		h(ev)
	}
}

func (c *Client) fail(err error) {
	c.mu.Lock()
	if !c.transitionLocked(StateFailed) {
		c.mu.Unlock()
		return
	}
	c.err = err
	notify := c.wasOpened
	c.mu.Unlock()

	if notify && c.cfg.OnFailure != nil {
		c.cfg.OnFailure(err)
	}
}

// terminalErr is what Connect reports once the loop has stopped. A failure
// after the first open belongs to OnFailure instead.
func (c *Client) terminalErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wasOpened {
		return nil
	}
	if c.err != nil {
		return c.err
	}
	return ErrClosed
}

func (c *Client) transition(to State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transitionLocked(to)
}

func (c *Client) transitionLocked(to State) bool {
	if c.state == to {
		return true
	}
	if !canTransition(c.state, to) {
		if !c.state.Terminal() {
			c.logger.Error("illegal state transition",
				zap.Stringer("from", c.state),
				zap.Stringer("to", to),
			)
		}
		return false
	}
	c.state = to
	setStateGauge(to)
	return true
}

func (c *Client) attemptURL() string {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return c.cfg.URL
	}
	q := u.Query()
	q.Set("_ts", strconv.FormatInt(c.now().UnixMilli(), 10))
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) header() http.Header {
	if c.cfg.Header == nil {
		return http.Header{}
	}
	return c.cfg.Header()
}
