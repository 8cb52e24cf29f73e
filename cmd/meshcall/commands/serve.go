package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	router "github.com/dkeye/meshcall/internal/adapters/http"
	"github.com/dkeye/meshcall/internal/adapters/relay"
	"github.com/dkeye/meshcall/internal/adapters/rtc"
	"github.com/dkeye/meshcall/internal/app"
	"github.com/dkeye/meshcall/internal/app/media"
	"github.com/dkeye/meshcall/internal/app/orch"
	"github.com/dkeye/meshcall/internal/core"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the call node and its HTTP control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

type relayClient interface {
	core.Relay
	Close() error
}

func newRelay() relayClient {
	if cfg.Relay.URL == "" {
		log.Warn().Str("module", "main").Msg("no relay configured, using in-process relay")
		return relay.NewHub().Connect(cfg.Secret)
	}
	return relay.NewWSRelay(relay.WSConfig{
		URL:        cfg.Relay.URL,
		Token:      cfg.Relay.Token,
		PingPeriod: cfg.Relay.PingPeriod,
		ReadLimit:  cfg.Relay.ReadLimit,
	})
}

func runServe(parent context.Context) error {
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	engine, err := rtc.NewEngine(rtc.EngineConfig{ICEServers: cfg.ICE.Servers})
	if err != nil {
		return fmt.Errorf("media engine: %w", err)
	}
	rl := newRelay()
	defer func() {
		if err := rl.Close(); err != nil {
			log.Error().Err(err).Str("module", "main").Msg("close relay")
		}
	}()

	var capturer core.Capturer
	if cfg.Media.Audio {
		capturer = &media.AudioCapturer{Open: media.SilenceSourceFunc, StreamID: cfg.Identity}
	}

	events := router.NewEventStream()
	o := orch.New(orch.Options{
		Relay:          rl,
		Engine:         engine,
		Capturer:       capturer,
		Observer:       events,
		Policy:         app.SimplePolicy{MaxAttempts: cfg.Negotiation.PublishAttempts},
		CandidateLimit: cfg.Negotiation.CandidateLimit,
		RetryBackoff:   cfg.Negotiation.RetryBackoff,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router.SetupRouter(cfg, o, events),
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("identity", cfg.Identity).Msg("meshcall started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			log.Error().Err(err).Msg("server error")
			return err
		}
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := o.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("leave rooms")
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}
