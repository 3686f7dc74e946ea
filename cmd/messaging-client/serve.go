package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"messaging-client/internal/api"
	"messaging-client/internal/api/router"
	"messaging-client/internal/conversation"
	"messaging-client/internal/relay"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket bridge for a presentation client",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := relay.NewHub(logger)
	engine, closeBackend, err := newEngine(ctx, cfg, logger, hooks{
		OnChange: func(s conversation.Snapshot) {
			if err := hub.Publish(relay.MessageTypeSnapshot, s); err != nil {
				logger.Warn("publish snapshot", zap.Error(err))
			}
		},
		OnHide: func() {
			if err := hub.Publish(relay.MessageTypeHidden, nil); err != nil {
				logger.Warn("publish hidden", zap.Error(err))
			}
		},
	})
	if err != nil {
		return err
	}
	defer closeBackend()
	defer engine.Shutdown()

	server := api.NewAPIServer(
		api.Options{
			ListenAddr:     cfg.Bridge.ListenAddr,
			Engine:         engine,
			Hub:            hub,
			Deployment:     configDeployment(cfg),
			AllowedOrigins: cfg.Bridge.AllowedOrigins,
			BridgeToken:    cfg.Bridge.Token,
			Logger:         logger,
		},
		router.UtilsRoutes(""),
		router.SessionRoutes("/api/v1"),
		router.RelayRoutes("/api/v1"),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		// The hub stops with the server.
		defer stop()
		return server.Run(gctx)
	})

	logger.Info("bridge started",
		zap.String("addr", cfg.Bridge.ListenAddr),
		zap.Bool("authorization", cfg.Bridge.Token != ""),
		zap.String("storage", cfg.Storage.Backend),
	)
	err = g.Wait()
	logger.Info("bridge stopped")
	return err
}
