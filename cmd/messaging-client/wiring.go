package main

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"messaging-client/internal/config"
	"messaging-client/internal/conversation"
	"messaging-client/internal/eventsource"
	"messaging-client/internal/messaging"
	"messaging-client/internal/session"
	"messaging-client/internal/storage"
	"messaging-client/internal/transport"
)

type hooks struct {
	OnChange func(conversation.Snapshot)
	OnHide   func()
	OnReady  func()
}

// newEngine wires the engine to the configured storage backend and the live
// messaging API. The returned close func releases the backend.
func newEngine(ctx context.Context, cfg config.Config, logger *zap.Logger, h hooks) (*conversation.Engine, func(), error) {
	backend, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("open storage: %w", err)
	}
	closeBackend := func() {
		if c, ok := backend.(io.Closer); ok {
			if err := c.Close(); err != nil {
				logger.Warn("close storage backend", zap.Error(err))
			}
		}
	}

	validator := conversation.Validator(conversation.DefaultValidator)
	if cfg.Validation.Strict {
		validator = conversation.StrictValidator
	}

	store := session.NewStore()
	api := messaging.New(store,
		transport.WithHTTPClient(&http.Client{Timeout: cfg.HTTP.Timeout}),
		transport.WithLogger(logger),
	)

	engine := conversation.New(conversation.Options{
		API: api,
		Opener: conversation.EventSourceOpener{
			Policy: eventsource.Policy{
				MaxAttempts:  cfg.Reconnect.MaxAttempts,
				InitialDelay: cfg.Reconnect.InitialDelay,
				MaxDelay:     cfg.Reconnect.MaxDelay,
				Multiplier:   cfg.Reconnect.Multiplier,
				Heartbeat:    cfg.Reconnect.Heartbeat,
			},
			Logger: logger,
		},
		Storage:        storage.NewWebStorage(backend),
		Store:          store,
		Logger:         logger,
		TypingTimeout:  cfg.Typing.Timeout,
		RequestTimeout: cfg.HTTP.Timeout,
		Validator:      validator,
		OnChange:       h.OnChange,
		OnHide:         h.OnHide,
		OnReady:        h.OnReady,
	})
	return engine, closeBackend, nil
}

func configDeployment(cfg config.Config) conversation.Deployment {
	return conversation.Deployment{
		OrgID:          cfg.Deployment.OrgID,
		DeploymentName: cfg.Deployment.DeploymentName,
		MessagingURL:   cfg.Deployment.MessagingURL,
	}
}
