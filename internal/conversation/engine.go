package conversation

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"messaging-client/internal/dto"
	"messaging-client/internal/entry"
	internaljwt "messaging-client/internal/jwt"
	"messaging-client/internal/logging"
	"messaging-client/internal/messaging"
	"messaging-client/internal/model"
	"messaging-client/internal/prechat"
	"messaging-client/internal/queue"
	"messaging-client/internal/reconcile"
	"messaging-client/internal/session"
	"messaging-client/internal/storage"
	"messaging-client/internal/timer"
)

// API is the set of messaging endpoints the engine drives.
type API interface {
	UnauthenticatedAccessToken(ctx context.Context) (*dto.AccessTokenResponse, error)
	ContinuationAccessToken(ctx context.Context, token string) (*dto.AccessTokenResponse, error)
	CreateConversation(ctx context.Context, conversationID string, routingAttributes map[string]string) error
	ListConversations(ctx context.Context, includeClosed bool, limit int) (*dto.ListConversationsResponse, error)
	ListConversationEntries(ctx context.Context, conversationID string, q messaging.EntriesQuery) ([]json.RawMessage, error)
	SendMessage(ctx context.Context, conversationID string, msg messaging.OutgoingMessage) error
	SendTypingIndicator(ctx context.Context, conversationID string, entryType model.EntryType) error
	CloseConversation(ctx context.Context, conversationID string) error
}

type Options struct {
	API     API
	Opener  Opener
	Storage *storage.WebStorage
	Store   *session.Store
	Logger  *zap.Logger

	TypingTimeout  time.Duration
	RequestTimeout time.Duration
	Validator      Validator
	QueueSize      int

	Now       func() time.Time
	NewID     func() string
	AfterFunc timer.AfterFunc

	OnChange func(Snapshot)
	// OnHide asks the presentation layer to hide the conversation after an
	// unrecoverable failure.
	OnHide  func()
	OnReady func()
}

// PendingMessage is a message composed locally and not yet confirmed.
type PendingMessage struct {
	ConversationID        string            `json:"conversationId"`
	MessageID             string            `json:"messageId"`
	Text                  string            `json:"text"`
	InReplyToMessageID    string            `json:"inReplyToMessageId,omitempty"`
	IsNewMessagingSession bool              `json:"isNewMessagingSession,omitempty"`
	RoutingAttributes     map[string]string `json:"routingAttributes,omitempty"`
	Language              string            `json:"language,omitempty"`
}

type Snapshot struct {
	Status                     model.ConversationStatus `json:"status"`
	AwaitingPrechat            bool                     `json:"awaitingPrechat"`
	Ready                      bool                     `json:"ready"`
	ConversationID             string                   `json:"conversationId,omitempty"`
	Entries                    []entry.Entry            `json:"entries"`
	Version                    uint64                   `json:"version"`
	TypingParticipants         []reconcile.Participant  `json:"typingParticipants"`
	IsAnotherParticipantTyping bool                     `json:"isAnotherParticipantTyping"`
	FailedMessage              *PendingMessage          `json:"failedMessage,omitempty"`
	Pending                    []PendingMessage         `json:"pending,omitempty"`
}

// Engine drives one conversation session from bootstrap to close.
type Engine struct {
	api        API
	opener     Opener
	storage    *storage.WebStorage
	store      *session.Store
	logger     *zap.Logger
	transcript *reconcile.Transcript
	dispatcher *queue.Dispatcher

	typingTimeout  time.Duration
	requestTimeout time.Duration
	validate       Validator
	now            func() time.Time
	newID          func() string
	afterFunc      timer.AfterFunc

	onChange func(Snapshot)
	onHide   func()
	onReady  func()

	// opMu serializes caller operations.
	opMu sync.Mutex

	mu              sync.Mutex
	status          model.ConversationStatus
	awaitingPrechat bool
	ready           bool
	failed          *PendingMessage
	pending         map[string]PendingMessage
	pendingOrder    []string
	sub             Subscription
	subCancel       context.CancelFunc
	userTyping      *timer.Countdown
	shutdown        bool
	shutdownOnce    sync.Once

	// life bounds requests issued off the event loop.
	life       context.Context
	lifeCancel context.CancelFunc
	inflight   sync.WaitGroup
}

func New(opts Options) *Engine {
	e := &Engine{
		api:            opts.API,
		opener:         opts.Opener,
		storage:        opts.Storage,
		store:          opts.Store,
		logger:         logging.OrNop(opts.Logger).Named("conversation"),
		typingTimeout:  opts.TypingTimeout,
		requestTimeout: opts.RequestTimeout,
		validate:       opts.Validator,
		now:            opts.Now,
		newID:          opts.NewID,
		afterFunc:      opts.AfterFunc,
		onChange:       opts.OnChange,
		onHide:         opts.OnHide,
		onReady:        opts.OnReady,
		status:         model.ConversationStatusNotStarted,
		pending:        make(map[string]PendingMessage),
	}
	if e.store == nil {
		e.store = session.NewStore()
	}
	if e.api == nil {
		e.api = messaging.New(e.store)
	}
	if e.storage == nil {
		e.storage = storage.NewWebStorage(storage.NewMemoryBackend())
	}
	if e.opener == nil {
		e.opener = EventSourceOpener{Logger: opts.Logger}
	}
	if e.typingTimeout <= 0 {
		e.typingTimeout = reconcile.DefaultTypingTimeout
	}
	if e.requestTimeout <= 0 {
		e.requestTimeout = 30 * time.Second
	}
	if e.validate == nil {
		e.validate = DefaultValidator
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}

	e.life, e.lifeCancel = context.WithCancel(context.Background())
	e.dispatcher = queue.NewDispatcher(opts.QueueSize, opts.Logger)
	e.transcript = reconcile.New(reconcile.Options{
		ConversationID: e.store.ConversationID,
		TypingTimeout:  e.typingTimeout,
		Dispatch: func(fn func()) {
			if err := e.dispatcher.Enqueue(context.Background(), fn); err != nil {
				e.logger.Debug("dropping typing expiry", zap.Error(err))
			}
		},
		OnTypingExpired: e.publish,
		Logger:          opts.Logger,
		Now:             e.now,
		AfterFunc:       opts.AfterFunc,
	})
	return e
}

// Initialize validates the deployment details, scopes web storage to the
// organization and records the details in the session.
func (e *Engine) Initialize(ctx context.Context, d Deployment) error {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if err := e.validate(d); err != nil {
		return newError(ErrorCodeValidation, "invalid deployment details", err)
	}
	if e.Status() != model.ConversationStatusNotStarted {
		return newError(ErrorCodeConflict, "a conversation is already in progress", nil)
	}
	if err := e.storage.Initialize(ctx, d.OrgID); err != nil {
		return newError(ErrorCodeInternal, "failed to initialize web storage", err)
	}

	e.store.SetOrganizationID(d.OrgID)
	e.store.SetDeploymentDeveloperName(d.DeploymentName)
	e.store.SetMessagingBaseURL(d.MessagingURL)

	for key, value := range map[string]string{
		model.StorageKeyOrganizationID:          d.OrgID,
		model.StorageKeyDeploymentDeveloperName: d.DeploymentName,
		model.StorageKeyMessagingURL:            d.MessagingURL,
	} {
		if err := e.storage.SetItem(ctx, key, value); err != nil {
			return newError(ErrorCodeInternal, "failed to persist deployment details", err)
		}
	}
	e.logger.Info("initialized deployment",
		zap.String("orgId", d.OrgID),
		zap.String("deploymentName", d.DeploymentName),
	)
	return nil
}

// Restore loads a persisted session. It reports whether an access token was
// found, which makes the next Start continue that session.
func (e *Engine) Restore(ctx context.Context) (bool, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	token, err := e.storage.GetString(ctx, model.StorageKeyJWT)
	if err != nil {
		return false, newError(ErrorCodeInternal, "failed to read web storage", err)
	}
	if token == "" {
		return false, nil
	}
	e.store.SetAccessToken(token)

	if cfg, ok, err := e.storage.GetItem(ctx, model.StorageKeyDeploymentConfiguration); err == nil && ok {
		e.store.SetDeploymentConfiguration(cfg)
	}
	for key, set := range map[string]func(string){
		model.StorageKeyOrganizationID:          e.store.SetOrganizationID,
		model.StorageKeyDeploymentDeveloperName: e.store.SetDeploymentDeveloperName,
		model.StorageKeyMessagingURL:            e.store.SetMessagingBaseURL,
	} {
		if v, err := e.storage.GetString(ctx, key); err == nil && v != "" {
			set(v)
		}
	}
	e.logger.Info("restored persisted session")
	return true, nil
}

// Start runs the continuation path when an access token is held and the new
// conversation path otherwise, then subscribes to the event stream. With a
// pre-chat form to fill, Start returns early and SubmitPrechat finishes it.
func (e *Engine) Start(ctx context.Context) error {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if e.isShutdown() {
		return newError(ErrorCodeConflict, "engine is shut down", nil)
	}
	if e.Status() != model.ConversationStatusNotStarted {
		return newError(ErrorCodeConflict, "conversation already started", nil)
	}
	if e.store.OrganizationID() == "" || e.store.MessagingBaseURL() == "" {
		return newError(ErrorCodeValidation, "deployment is not initialized", nil)
	}

	if token := e.store.AccessToken(); token != "" {
		if e.tokenExpired(token) {
			e.discardToken(ctx)
		} else {
			return e.continueSession(ctx, token)
		}
	}
	return e.startNew(ctx)
}

func (e *Engine) tokenExpired(token string) bool {
	claims, err := internaljwt.DecodeClaims(token)
	if err != nil {
		e.logger.Warn("persisted access token is unreadable", zap.Error(err))
		return false
	}
	if claims.Expired(e.now()) {
		e.logger.Info("persisted access token expired", zap.Time("expiresAt", claims.ExpiresAt))
		return true
	}
	return false
}

func (e *Engine) discardToken(ctx context.Context) {
	e.store.SetAccessToken("")
	e.store.SetDeploymentConfiguration(nil)
	for _, key := range []string{model.StorageKeyJWT, model.StorageKeyDeploymentConfiguration} {
		if err := e.storage.RemoveItem(ctx, key); err != nil {
			e.logger.Warn("failed to remove persisted item", zap.String("key", key), zap.Error(err))
		}
	}
}

func (e *Engine) startNew(ctx context.Context) error {
	resp, err := e.api.UnauthenticatedAccessToken(ctx)
	if err != nil {
		e.logger.Error("failed to fetch an unauthenticated access token", zap.Error(err))
		return e.abort(err)
	}
	e.adoptToken(ctx, resp)

	cfg := e.prechatConfig()
	if cfg.ShouldDisplay() {
		e.logger.Info("pre-chat is enabled, waiting for form submission")
		e.mu.Lock()
		e.awaitingPrechat = true
		e.mu.Unlock()
		e.publish()
		return nil
	}

	if err := e.createConversation(ctx, nil); err != nil {
		return err
	}
	return e.subscribe(ctx)
}

func (e *Engine) adoptToken(ctx context.Context, resp *dto.AccessTokenResponse) {
	e.store.SetAccessToken(resp.AccessToken)
	if err := e.storage.SetItem(ctx, model.StorageKeyJWT, resp.AccessToken); err != nil {
		e.logger.Warn("failed to persist access token", zap.Error(err))
	}
	if resp.LastEventID != "" {
		e.store.SetLastEventID(string(resp.LastEventID))
	}
	if cfg := resp.DeploymentConfiguration(); len(cfg) > 0 {
		e.store.SetDeploymentConfiguration(cfg)
		if err := e.storage.SetItem(ctx, model.StorageKeyDeploymentConfiguration, cfg); err != nil {
			e.logger.Warn("failed to persist deployment configuration", zap.Error(err))
		}
	}
}

func (e *Engine) prechatConfig() prechat.Configuration {
	cfg, err := prechat.Parse(e.store.DeploymentConfiguration())
	if err != nil {
		e.logger.Warn("ignoring unreadable deployment configuration", zap.Error(err))
	}
	return cfg
}

func (e *Engine) createConversation(ctx context.Context, routingAttributes map[string]string) error {
	if e.Status() == model.ConversationStatusOpen {
		return newError(ErrorCodeConflict, "cannot create a conversation while one is open", nil)
	}

	id := e.newID()
	e.store.SetConversationID(id)
	if err := e.api.CreateConversation(ctx, id, routingAttributes); err != nil {
		e.logger.Error("failed to create conversation", zap.String("conversationId", id), zap.Error(err))
		return e.abort(err)
	}

	e.logger.Info("created conversation", zap.String("conversationId", id))
	e.setStatus(model.ConversationStatusOpen)
	return nil
}

func (e *Engine) continueSession(ctx context.Context, token string) error {
	resp, err := e.api.ContinuationAccessToken(ctx, token)
	if err != nil {
		e.logger.Error("failed to fetch a continuation access token", zap.Error(err))
		return e.handleError(err)
	}
	e.store.SetAccessToken(resp.AccessToken)
	if err := e.storage.SetItem(ctx, model.StorageKeyJWT, resp.AccessToken); err != nil {
		e.logger.Warn("failed to persist access token", zap.Error(err))
	}

	list, err := e.api.ListConversations(ctx, false, model.ListConversationsLimit)
	if err != nil {
		e.logger.Error("failed to list conversations", zap.Error(err))
		return e.handleError(err)
	}
	latest, ok := latestOpen(list)
	if !ok {
		e.logger.Info("no open conversation to continue")
		e.teardown()
		return newError(ErrorCodeSessionEnded, "no open conversation found", nil)
	}
	if len(list.Conversations) > 1 {
		e.logger.Warn("expected one open conversation, loading the latest",
			zap.Int("found", len(list.Conversations)),
			zap.String("conversationId", latest.ConversationID),
		)
	}
	e.store.SetConversationID(latest.ConversationID)
	e.setStatus(model.ConversationStatusOpen)

	if err := e.loadHistory(ctx, latest.ConversationID); err != nil {
		herr := e.handleError(err)
		if e.Status() != model.ConversationStatusOpen {
			return herr
		}
		e.logger.Warn("continuing without history", zap.Error(err))
	}
	return e.subscribe(ctx)
}

func latestOpen(list *dto.ListConversationsResponse) (dto.ConversationSummary, bool) {
	if list == nil || list.OpenConversationsFound <= 0 || len(list.Conversations) == 0 {
		return dto.ConversationSummary{}, false
	}
	latest := list.Conversations[0]
	for _, c := range list.Conversations[1:] {
		if c.StartTimestamp > latest.StartTimestamp {
			latest = c
		}
	}
	return latest, true
}

func (e *Engine) loadHistory(ctx context.Context, conversationID string) error {
	raw, err := e.api.ListConversationEntries(ctx, conversationID, messaging.EntriesQuery{})
	if err != nil {
		return err
	}
	history := make([]entry.Entry, 0, len(raw))
	for _, item := range raw {
		ent, err := entry.NormalizeHistory(conversationID, item)
		if err != nil {
			e.logger.Warn("dropping history entry", zap.Error(err))
			continue
		}
		if ent != nil {
			history = append(history, *ent)
		}
	}
	n := e.transcript.Backfill(history)
	e.logger.Info("loaded conversation history", zap.String("conversationId", conversationID), zap.Int("entries", n))
	e.publish()
	return nil
}

// handleError applies the failure policy for err and returns the error to
// surface to the caller.
func (e *Engine) handleError(err error) *Error {
	code, fatal := classify(err)
	switch code {
	case ErrorCodeAuthentication:
		e.logger.Error("unauthenticated request", zap.Error(err))
	case ErrorCodeSessionRequired:
		cfg := e.prechatConfig()
		if cfg.ShouldDisplay() && cfg.EveryMessagingSession() {
			e.logger.Info("pre-chat configured for every messaging session, showing the form")
			e.mu.Lock()
			e.awaitingPrechat = true
			e.mu.Unlock()
			e.publish()
		}
		e.logger.Error("no active messaging session", zap.Error(err))
	case ErrorCodeBadRequest:
		e.logger.Error("invalid request parameters", zap.Error(err))
	case ErrorCodeNotFound:
		e.logger.Error("resource not found", zap.Error(err))
	case ErrorCodeRateLimited:
		e.logger.Warn("too many requests", zap.Error(err))
	case ErrorCodeServerError:
		e.logger.Error("server error", zap.Error(err))
	case ErrorCodeCanceled:
		e.logger.Debug("request canceled", zap.Error(err))
	case ErrorCodeTransport:
		e.logger.Error("request failed", zap.Error(err))
	default:
		e.logger.Error("unhandled http error", zap.Error(err))
	}
	if fatal {
		e.teardown()
	}
	return newError(code, err.Error(), err)
}

// abort handles err and tears the session down if the policy did not already.
func (e *Engine) abort(err error) *Error {
	herr := e.handleError(err)
	if e.Status() != model.ConversationStatusClosed {
		e.teardown()
	}
	return herr
}

// teardown is cleanup followed by asking the presentation layer to hide.
func (e *Engine) teardown() {
	e.cleanup()
	if e.onHide != nil {
		e.onHide()
	}
}

// cleanup closes the stream, cancels timers, clears persisted and in-memory
// session state and marks the conversation closed. Safe to repeat.
func (e *Engine) cleanup() {
	e.closeSubscription()

	e.mu.Lock()
	if e.userTyping != nil {
		e.userTyping.Cancel()
		e.userTyping = nil
	}
	e.pending = make(map[string]PendingMessage)
	e.pendingOrder = nil
	e.status = model.ConversationStatusClosed
	e.awaitingPrechat = false
	e.ready = false
	e.mu.Unlock()

	e.transcript.ClearTyping()

	ctx, cancel := context.WithTimeout(context.Background(), e.requestTimeout)
	defer cancel()
	if err := e.storage.Clear(ctx); err != nil {
		e.logger.Warn("failed to clear web storage", zap.Error(err))
	}
	e.store.Clear()

	e.publish()
}

func (e *Engine) closeSubscription() {
	e.mu.Lock()
	sub, cancel := e.sub, e.subCancel
	e.sub, e.subCancel = nil, nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sub != nil {
		if err := sub.Close(); err != nil {
			e.logger.Warn("failed to close event stream", zap.Error(err))
		}
		e.logger.Info("closed event stream")
	}
}

// Reset returns a closed engine to NOT_STARTED so bootstrap can run again.
func (e *Engine) Reset() error {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.status {
	case model.ConversationStatusOpen:
		return newError(ErrorCodeConflict, "end the open conversation first", nil)
	case model.ConversationStatusNotStarted:
		if !e.awaitingPrechat {
			return nil
		}
	}
	e.transcript.Reset()
	e.status = model.ConversationStatusNotStarted
	e.awaitingPrechat = false
	e.failed = nil
	e.ready = false
	return nil
}

// Shutdown releases the stream, timers and event loop. Persisted web storage
// is left alone so a later process can continue the session. Safe to repeat;
// it must not be called from an engine callback.
func (e *Engine) Shutdown() {
	e.shutdownOnce.Do(func() {
		e.mu.Lock()
		e.shutdown = true
		if e.userTyping != nil {
			e.userTyping.Cancel()
			e.userTyping = nil
		}
		e.ready = false
		e.mu.Unlock()

		e.closeSubscription()
		e.transcript.ClearTyping()
		e.lifeCancel()
		e.inflight.Wait()
		e.dispatcher.Shutdown()
		e.logger.Info("engine shut down")
	})
}

// goBackground runs fn on its own goroutine under the engine lifetime.
// Nothing runs once Shutdown has begun.
func (e *Engine) goBackground(fn func(ctx context.Context)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.shutdown {
		return
	}
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		fn(e.life)
	}()
}

func (e *Engine) isShutdown() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shutdown
}

func (e *Engine) Status() model.ConversationStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *Engine) setStatus(s model.ConversationStatus) {
	e.mu.Lock()
	e.status = s
	e.mu.Unlock()
	e.publish()
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	s := Snapshot{
		Status:          e.status,
		AwaitingPrechat: e.awaitingPrechat,
		Ready:           e.ready,
		ConversationID:  e.store.ConversationID(),
	}
	if e.failed != nil {
		failed := *e.failed
		s.FailedMessage = &failed
	}
	for _, id := range e.pendingOrder {
		if pm, ok := e.pending[id]; ok {
			s.Pending = append(s.Pending, pm)
		}
	}
	e.mu.Unlock()

	s.Entries = e.transcript.Entries()
	s.Version = e.transcript.Version()
	s.TypingParticipants = e.transcript.TypingParticipants()
	s.IsAnotherParticipantTyping = e.transcript.IsAnotherParticipantTyping()
	return s
}

func (e *Engine) publish() {
	if e.onChange != nil {
		e.onChange(e.Snapshot())
	}
}

func (e *Engine) isOpen() bool {
	return e.Status() == model.ConversationStatusOpen
}
