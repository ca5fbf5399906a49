package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/tarawell/tara-companion/backend/internal/config"
	"github.com/tarawell/tara-companion/backend/internal/gateway"
	"github.com/tarawell/tara-companion/backend/internal/handler"
	capturehandler "github.com/tarawell/tara-companion/backend/internal/handler/capture"
	chathandler "github.com/tarawell/tara-companion/backend/internal/handler/chat"
	partnerhandler "github.com/tarawell/tara-companion/backend/internal/handler/partner"
	partnermodel "github.com/tarawell/tara-companion/backend/internal/model/partner"
	"github.com/tarawell/tara-companion/backend/internal/service/conversation"
	"github.com/tarawell/tara-companion/backend/internal/service/recording"
	"github.com/tarawell/tara-companion/backend/internal/service/send"
	"github.com/tarawell/tara-companion/backend/internal/service/speech"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		// Local development convenience only; the deployed service runs on
		// plain environment variables.
	}

	cfg, err := config.Load()
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := newLogger(cfg.Log)

	roster := partnermodel.NewRoster(partnermodel.SeedCelebrities()...)
	store := conversation.NewStore(roster)

	gw, err := buildGateway(ctx, cfg, roster, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize conversation gateway")
	}

	playbackHub := capturehandler.NewPlaybackHub(log)
	relay := buildRelay(cfg, playbackHub, log)
	pipeline := send.NewPipeline(store, roster, gw, relay, log)

	var captureHandler *capturehandler.Handler
	if cfg.Speech.Enabled {
		recognizer := speech.NewVolcengineRecognizer(&cfg.Speech, log)
		recPipeline := recording.NewPipeline(recognizer, pipeline, cfg.Speech.ASRLanguage, log)
		captureHandler = capturehandler.New(recPipeline, roster, playbackHub, log)
		log.Info().Msg("voice capture enabled")
	} else {
		log.Info().Msg("speech credentials not configured, voice capture disabled")
	}

	router := handler.NewRouter(handler.Deps{
		Partners: partnerhandler.New(roster, store, gw, pipeline, log),
		Chats:    chathandler.New(store, pipeline, log),
		Capture:  captureHandler,
		Log:      log,
	})

	startServer(ctx, cfg.Server, router, log)
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out = os.Stderr
	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	if cfg.Pretty {
		logger = logger.Output(zerolog.ConsoleWriter{Out: out})
	}
	return logger
}

// buildGateway prefers the remote conversation backend and falls back to the
// in-process Ark-backed gateway when no upstream is configured.
func buildGateway(ctx context.Context, cfg *config.Config, roster *partnermodel.Roster, log zerolog.Logger) (gateway.Conversations, error) {
	if cfg.Upstream.Enabled() {
		log.Info().Str("base_url", cfg.Upstream.BaseURL).Msg("using remote conversation backend")
		return gateway.NewHTTPGateway(cfg.Upstream, log), nil
	}

	if !cfg.AI.Enabled() {
		return nil, errors.New("neither UPSTREAM_BASE_URL nor Ark credentials are configured")
	}

	log.Info().Str("model", cfg.AI.Model).Msg("using in-process conversation gateway")
	return gateway.NewAIGateway(ctx, cfg.AI, roster, log)
}

// buildRelay wires reply synthesis to the capture connection's playback
// sink. Without speech credentials the relay degrades to a no-op.
func buildRelay(cfg *config.Config, hub *capturehandler.PlaybackHub, log zerolog.Logger) *speech.Relay {
	if !cfg.Speech.Enabled {
		return speech.NewRelay(nil, nil, log)
	}

	synth := speech.NewVolcengineSynthesizer(&cfg.Speech, log)
	return speech.NewRelay(synth, hub, log)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, log zerolog.Logger) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", serverCfg.Addr).Msg("companion backend listening")
	if err := runServer(ctx, srv); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
