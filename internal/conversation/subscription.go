package conversation

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"messaging-client/internal/eventsource"
)

type Subscription interface {
	Close() error
}

type SubscribeParams struct {
	URL       string
	Header    func() http.Header
	Handlers  map[string]eventsource.Handler
	OnFailure func(error)
}

// Opener establishes the event stream. Open returns once the stream is open.
type Opener interface {
	Open(ctx context.Context, p SubscribeParams) (Subscription, error)
}

// EventSourceOpener opens streams with the eventsource client.
type EventSourceOpener struct {
	Policy eventsource.Policy
	Dialer eventsource.Dialer
	Logger *zap.Logger
}

func (o EventSourceOpener) Open(ctx context.Context, p SubscribeParams) (Subscription, error) {
	client := eventsource.New(eventsource.Config{
		URL:       p.URL,
		Header:    p.Header,
		Handlers:  p.Handlers,
		Policy:    o.Policy,
		Dialer:    o.Dialer,
		Logger:    o.Logger,
		OnFailure: p.OnFailure,
	})
	if err := client.Connect(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
