package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"snapsell/internal/config"
	"snapsell/internal/generation"
	"snapsell/internal/httpapi"
	"snapsell/internal/observability"
	"snapsell/internal/pipeline"
	"snapsell/internal/transcription"
	"snapsell/internal/upstream/gemini"
	"snapsell/internal/upstream/identity"
)

func main() {
	envFile, err := config.LoadEnvFile()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	if envFile != "" {
		logger.Info().Str("path", envFile).Msg("loaded env file")
	}
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	// Per-call deadlines come from each service. resty may adjust the
	// http.Client it wraps, so each consumer gets its own over one pool.
	newHTTPClient := func() *http.Client { return &http.Client{Transport: transport} }

	modelClient, err := gemini.New(ctx, gemini.Settings{
		APIKey:     cfg.GeminiAPIKey,
		BaseURL:    cfg.GeminiBaseURL,
		HTTPClient: newHTTPClient(),
	}, gemini.WithObserver(metrics.ObserveUpstream))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize gemini client")
	}

	identityClient := identity.New(cfg.IdentityBaseURL, cfg.IdentityPublicKey, cfg.IdentityTimeout,
		identity.WithHTTPClient(newHTTPClient()),
		identity.WithObserver(metrics.ObserveUpstream),
	)

	fetcher := transcription.NewFetcher(newHTTPClient(), cfg.MaxAudioBytes, cfg.AudioFetchTimeout, metrics.ObserveUpstream,
		transcription.WithAllowedHosts(cfg.AudioAllowedHosts...))
	transcriptionService := transcription.New(fetcher, modelClient, cfg.TranscriptionModel, cfg.DefaultAudioMIMEType,
		cfg.TranscriptionTimeout, metrics.IncTranscriptionDegraded)
	generationService := generation.New(modelClient, cfg.GenerationModel, cfg.GenerationTemperature, cfg.GenerationTimeout)
	pipelineService := pipeline.New(transcriptionService, generationService, cfg.RequireCompleteResult)

	handler := httpapi.NewServer(cfg, logger, httpapi.Dependencies{
		Validator:      identityClient,
		Analysis:       pipelineService,
		Upstream:       modelClient,
		Metrics:        metrics,
		MetricsHandler: metrics.Handler(),
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.IdentityTimeout + cfg.AudioFetchTimeout + cfg.TranscriptionTimeout + cfg.GenerationTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return logger.WithContext(context.Background()) },
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().
			Str("addr", cfg.ListenAddr).
			Str("generation_model", cfg.GenerationModel).
			Str("transcription_model", cfg.TranscriptionModel).
			Strs("audio_allowed_hosts", cfg.AudioAllowedHosts).
			Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server exited")
		os.Exit(1)
	}
	logger.Info().Msg("server stopped")
}

func newLogger(level, format string) zerolog.Logger {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(parsed).With().Timestamp().Str("service", "snapsell-api").Logger()
}
