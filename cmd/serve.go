package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/voclara/roomkit/internal/config"
	"github.com/voclara/roomkit/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the signaling server",
	Long: `Run the RoomKit signaling server: websocket room signaling on /ws plus a
minimal room REST API. Configuration comes from config/server.<env>.yaml
(ROOMKIT_ENV selects the env, default "dev").`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadServer()
	if err != nil {
		return fmt.Errorf("load server config: %w", err)
	}
	if cfg.Secret == "" {
		log.Warn().Msg("no secret configured, accepting unauthenticated clients")
	}

	hub := server.NewHub(cfg.RoomTTL)
	go hub.Run(ctx)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr: addr,
		Handler: server.Router(hub, server.Options{
			Secret:     cfg.Secret,
			ReadLimit:  cfg.ReadLimit,
			PingPeriod: cfg.PingPeriod,
		}),
	}

	go func() {
		log.Info().Str("addr", addr).Msg("signaling server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
