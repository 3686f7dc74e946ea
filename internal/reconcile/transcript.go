package reconcile

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"messaging-client/internal/entry"
	"messaging-client/internal/logging"
	"messaging-client/internal/model"
	"messaging-client/internal/timer"
)

const DefaultTypingTimeout = 5 * time.Second

type Options struct {
	// ConversationID returns the conversation entries must belong to.
	ConversationID func() string
	TypingTimeout  time.Duration
	// Dispatch runs typing expiries. The engine passes its event loop so
	// expiries are ordered with stream events. Nil runs them inline.
	Dispatch func(func())
	// OnTypingExpired is called after an expiry removed a participant.
	OnTypingExpired func()
	Logger          *zap.Logger
	Now             func() time.Time
	AfterFunc       timer.AfterFunc
}

type Participant struct {
	Name string                `json:"name"`
	Role model.ParticipantRole `json:"role"`
}

type typingParticipant struct {
	countdown *timer.Countdown
	role      model.ParticipantRole
}

// Transcript is the ordered entry list of the current conversation together
// with the set of participants currently typing.
type Transcript struct {
	conversationID  func() string
	typingTimeout   time.Duration
	dispatch        func(func())
	onTypingExpired func()
	logger          *zap.Logger
	now             func() time.Time
	afterFunc       timer.AfterFunc

	mu      sync.RWMutex
	entries []entry.Entry
	version uint64
	typing  map[string]*typingParticipant
}

func New(opts Options) *Transcript {
	t := &Transcript{
		conversationID:  opts.ConversationID,
		typingTimeout:   opts.TypingTimeout,
		dispatch:        opts.Dispatch,
		onTypingExpired: opts.OnTypingExpired,
		logger:          logging.OrNop(opts.Logger).Named("reconcile"),
		now:             opts.Now,
		afterFunc:       opts.AfterFunc,
		typing:          make(map[string]*typingParticipant),
	}
	if t.conversationID == nil {
		t.conversationID = func() string { return "" }
	}
	if t.typingTimeout <= 0 {
		t.typingTimeout = DefaultTypingTimeout
	}
	if t.dispatch == nil {
		t.dispatch = func(fn func()) { fn() }
	}
	if t.now == nil {
		t.now = time.Now
	}
	return t
}

// Apply ingests one live entry and reports whether observable state changed.
// Entries for any conversation other than the current one are discarded.
func (t *Transcript) Apply(e *entry.Entry) bool {
	if e == nil {
		return false
	}
	if current := t.conversationID(); e.ConversationID != current {
		t.logger.Debug("ignoring entry for another conversation",
			zap.String("entryConversationId", e.ConversationID),
			zap.String("conversationId", current),
		)
		observeDrop(dropForeignConversation)
		return false
	}

	switch e.EntryType {
	case model.EntryTypeMessage:
		msg := *e
		msg.IsEndUserMessage = msg.Sender.Role == model.ParticipantRoleEndUser
		// The server echoes end-user messages once they are accepted.
		msg.IsSent = msg.IsEndUserMessage
		t.append(msg)
		return true
	case model.EntryTypeParticipantChanged:
		t.append(*e)
		return true
	case model.EntryTypeRoutingResult:
		return t.applyRouting(e)
	case model.EntryTypeDeliveryAcknowledgement, model.EntryTypeReadAcknowledgement:
		return t.acknowledge(e)
	case model.EntryTypeTypingStartedIndicator:
		return t.typingStarted(e)
	case model.EntryTypeTypingStoppedIndicator:
		return t.typingStopped(e)
	default:
		t.logger.Warn("unsupported entry type", zap.String("entryType", string(e.EntryType)))
		observeDrop(dropUnsupported)
		return false
	}
}

// Backfill prepends history. The input is newest-first, as the list entries
// endpoint returns it; the transcript stores it oldest-first ahead of any
// entries already present.
func (t *Transcript) Backfill(history []entry.Entry) int {
	current := t.conversationID()
	accepted := make([]entry.Entry, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		e := history[i]
		if e.ConversationID != current {
			observeDrop(dropForeignConversation)
			continue
		}
		switch e.EntryType {
		case model.EntryTypeMessage:
			e.IsEndUserMessage = e.Sender.Role == model.ParticipantRoleEndUser
			accepted = append(accepted, e)
		case model.EntryTypeParticipantChanged, model.EntryTypeRoutingResult:
			accepted = append(accepted, e)
		default:
			t.logger.Debug("skipping history entry", zap.String("entryType", string(e.EntryType)))
			observeDrop(dropUnsupported)
		}
	}
	if len(accepted) == 0 {
		return 0
	}

	t.mu.Lock()
	t.entries = append(accepted, t.entries...)
	t.version++
	t.mu.Unlock()
	return len(accepted)
}

func (t *Transcript) append(e entry.Entry) {
	t.mu.Lock()
	// List identity changes on every append.
	next := make([]entry.Entry, len(t.entries), len(t.entries)+1)
	copy(next, t.entries)
	t.entries = append(next, e)
	t.version++
	t.mu.Unlock()
}

func (t *Transcript) applyRouting(e *entry.Entry) bool {
	rc, _ := e.Content.(entry.RoutingContent)
	switch rc.RoutingType {
	case model.RoutingTypeInitial:
		switch rc.FailureType {
		case model.RoutingFailureNone, model.RoutingFailureSubmissionError,
			model.RoutingFailureRoutingError, model.RoutingFailureUnknown:
			t.append(*e)
			return true
		default:
			t.logger.Error("unrecognized initial routing failure type", zap.String("failureType", string(rc.FailureType)))
		}
	case model.RoutingTypeTransfer:
		switch rc.FailureType {
		case model.RoutingFailureNone:
			t.append(*e)
			return true
		case model.RoutingFailureSubmissionError, model.RoutingFailureRoutingError, model.RoutingFailureUnknown:
			t.logger.Info("transfer routing failed", zap.String("failureType", string(rc.FailureType)), zap.String("failureReason", rc.FailureReason))
		default:
			t.logger.Error("unrecognized transfer routing failure type", zap.String("failureType", string(rc.FailureType)))
		}
	default:
		t.logger.Error("unrecognized routing type", zap.String("routingType", string(rc.RoutingType)))
	}
	observeDrop(dropRoutingFiltered)
	return false
}

func (t *Transcript) acknowledge(e *entry.Entry) bool {
	ack, ok := e.Content.(entry.AcknowledgementContent)
	if !ok {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	next := make([]entry.Entry, len(t.entries))
	copy(next, t.entries)
	matched := false
	for i := range next {
		if next[i].MessageID != ack.AcknowledgedMessageID {
			continue
		}
		matched = true
		if e.EntryType == model.EntryTypeDeliveryAcknowledgement {
			next[i].IsDelivered = true
			next[i].DeliveryAcknowledgementTimestamp = ack.Timestamp
		} else {
			next[i].IsRead = true
			next[i].ReadAcknowledgementTimestamp = ack.Timestamp
		}
	}
	if !matched {
		t.logger.Debug("acknowledgement for unknown message", zap.String("messageId", ack.AcknowledgedMessageID))
		return false
	}
	t.entries = next
	t.version++
	return true
}

func (t *Transcript) typingStarted(e *entry.Entry) bool {
	if e.Sender.Role == model.ParticipantRoleEndUser {
		return false
	}
	key := e.Sender.TypingKey()

	t.mu.Lock()
	defer t.mu.Unlock()

	if p, ok := t.typing[key]; ok {
		p.countdown.Reset(t.now())
		return false
	}

	p := &typingParticipant{role: e.Sender.Role}
	var opts []timer.Option
	if t.afterFunc != nil {
		opts = append(opts, timer.WithAfterFunc(t.afterFunc))
	}
	p.countdown = timer.NewCountdown(t.typingTimeout, func() {
		t.dispatch(func() { t.expire(key, p) })
	}, t.now(), opts...)
	t.typing[key] = p
	p.countdown.Start()
	return true
}

func (t *Transcript) typingStopped(e *entry.Entry) bool {
	key := e.Sender.TypingKey()

	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.typing[key]
	if !ok {
		return false
	}
	p.countdown.Cancel()
	delete(t.typing, key)
	return true
}

// expire removes p if it is still the registered participant for key and its
// countdown was not restarted while the expiry was queued.
func (t *Transcript) expire(key string, p *typingParticipant) {
	t.mu.Lock()
	current, ok := t.typing[key]
	if !ok || current != p || !p.countdown.Finished() {
		t.mu.Unlock()
		return
	}
	delete(t.typing, key)
	t.mu.Unlock()

	if t.onTypingExpired != nil {
		t.onTypingExpired()
	}
}

func (t *Transcript) Entries() []entry.Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]entry.Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Version changes whenever the entry list is replaced.
func (t *Transcript) Version() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}

func (t *Transcript) IsAnotherParticipantTyping() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.typing) > 0
}

func (t *Transcript) TypingParticipants() []Participant {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Participant, 0, len(t.typing))
	for name, p := range t.typing {
		out = append(out, Participant{Name: name, Role: p.role})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ClearTyping cancels every participant countdown. Safe to repeat.
func (t *Transcript) ClearTyping() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, p := range t.typing {
		p.countdown.Cancel()
		delete(t.typing, key)
	}
}

// Reset drops all entries and typing state.
func (t *Transcript) Reset() {
	t.ClearTyping()
	t.mu.Lock()
	t.entries = nil
	t.version++
	t.mu.Unlock()
}
