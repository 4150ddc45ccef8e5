package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"snapsell/internal/config"
	"snapsell/internal/extract"
	"snapsell/internal/generation"
	"snapsell/internal/model"
	"snapsell/internal/pipeline"
	"snapsell/internal/upstream/identity"
)

type TokenValidator interface {
	Validate(ctx context.Context, token string) (identity.User, error)
}

type AnalysisService interface {
	Process(ctx context.Context, in pipeline.ProcessInput) (pipeline.ProcessResult, error)
}

type UpstreamChecker interface {
	CheckModel(ctx context.Context, model string) error
}

type MetricsObserver interface {
	ObserveHTTP(route, method string, status int, duration time.Duration)
	IncAnalysisFailure(stage string)
}

type Dependencies struct {
	Validator      TokenValidator
	Analysis       AnalysisService
	Upstream       UpstreamChecker
	Metrics        MetricsObserver
	MetricsHandler http.Handler
}

type server struct {
	cfg          config.Config
	logger       zerolog.Logger
	validator    TokenValidator
	analysis     AnalysisService
	upstream     UpstreamChecker
	metrics      MetricsObserver
	metricsRoute http.Handler
}

type ctxKey string

const (
	requestIDHeader  = "X-Request-Id"
	requestIDContext = ctxKey("request_id")

	msgUnauthorized = "Unauthorized"

	routePreflight = "preflight"
	routeUnmatched = "unmatched"

	maxRequestIDLength = 128
)

var corsHeaders = map[string]string{
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Methods": "GET, POST, PUT, DELETE, OPTIONS",
	"Access-Control-Allow-Headers": "Content-Type, Authorization, X-Client-Info, Apikey",
}

func NewServer(cfg config.Config, logger zerolog.Logger, deps Dependencies) http.Handler {
	if deps.Validator == nil || deps.Analysis == nil {
		panic("httpapi: validator and analysis dependencies are required")
	}

	s := &server{
		cfg:          cfg,
		logger:       logger,
		validator:    deps.Validator,
		analysis:     deps.Analysis,
		upstream:     deps.Upstream,
		metrics:      deps.Metrics,
		metricsRoute: deps.MetricsHandler,
	}

	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(corsMiddleware)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if s.metricsRoute != nil {
		r.Handle("/metrics", s.metricsRoute)
	}

	// The web client posts to the function URL itself, so any path runs
	// the analysis.
	r.With(s.authMiddleware).Post("/*", s.handleAnalyze)

	return r
}

func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.HealthResponse{OK: true})
}

func (s *server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.upstream == nil {
		writeJSON(w, http.StatusOK, model.ReadyResponse{OK: true, ServiceName: "SnapSell"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.upstream.CheckModel(ctx, s.cfg.GenerationModel); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("readiness check failed")
		s.writeError(w, r, http.StatusServiceUnavailable, "upstream check failed")
		return
	}
	writeJSON(w, http.StatusOK, model.ReadyResponse{OK: true, ServiceName: "SnapSell"})
}

func (s *server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	defer func() { _ = r.Body.Close() }()

	var req model.AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.handleJSONDecodeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.ImageBase64) == "" {
		s.writeError(w, r, http.StatusBadRequest, "imageBase64 is required")
		return
	}
	image, err := decodeImage(req.ImageBase64)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	audioURL := ""
	if req.AudioURL != nil {
		audioURL = strings.TrimSpace(*req.AudioURL)
	}

	result, err := s.analysis.Process(r.Context(), pipeline.ProcessInput{
		Image:    image,
		UserText: req.Text,
		AudioURL: audioURL,
	})
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}

	event := zerolog.Ctx(r.Context()).Info().
		Str("image_mime_type", image.MIMEType).
		Int("image_bytes", len(image.Data)).
		Bool("has_audio", audioURL != "").
		Bool("transcribed", result.Transcription.Available()).
		Int64("transcription_ms", result.Timings.Transcription.Milliseconds()).
		Int64("generation_ms", result.Timings.Generation.Milliseconds()).
		Int64("total_ms", result.Timings.Total.Milliseconds())
	if audioURL != "" && !result.Transcription.Available() {
		event = event.Str("transcription_reason", string(result.Transcription.Reason()))
	}
	if result.Usage != nil {
		event = event.Int("total_tokens", result.Usage.TotalTokens)
	}
	event.Msg("analysis completed")

	writeJSON(w, http.StatusOK, result.Result)
}

func (s *server) handleJSONDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		s.writeError(w, r, http.StatusRequestEntityTooLarge, fmt.Sprintf("request exceeds %d bytes", s.cfg.MaxBodyBytes))
		return
	}
	if errors.Is(err, io.EOF) {
		s.writeError(w, r, http.StatusBadRequest, "request body is required")
		return
	}
	s.writeError(w, r, http.StatusBadRequest, "invalid JSON body")
}

// writeMappedError turns a pipeline failure into a 500. Upstream detail is
// logged, never returned.
func (s *server) writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	log := zerolog.Ctx(r.Context())
	stage := "internal"
	message := "internal server error"

	var genErr *generation.Error
	var exErr *extract.Error
	switch {
	case errors.As(err, &genErr):
		stage = "generation"
		message = "content generation failed"
		log.Error().Err(err).
			Int("upstream_status", genErr.UpstreamStatus).
			Str("upstream_body", genErr.UpstreamBody).
			Msg("gemini analysis failed")
	case errors.As(err, &exErr):
		stage = "extraction"
		message = "could not extract analysis from model response"
		log.Error().Err(err).Msg("model response extraction failed")
	default:
		log.Error().Err(err).Msg("analysis failed")
	}

	if s.metrics != nil {
		s.metrics.IncAnalysisFailure(stage)
	}
	s.writeError(w, r, http.StatusInternalServerError, message)
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	if rid := requestIDFromContext(r.Context()); rid != "" {
		w.Header().Set(requestIDHeader, rid)
	}
	writeJSON(w, status, model.ErrorResponse{Error: message})
}

func (s *server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		ctx := context.WithValue(r.Context(), requestIDContext, requestID)
		logger := s.logger.With().Str("request_id", requestID).Logger()
		ctx = logger.WithContext(ctx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		route := routeLabel(r)

		duration := time.Since(started)
		if s.metrics != nil {
			s.metrics.ObserveHTTP(route, r.Method, status, duration)
		}

		zerolog.Ctx(r.Context()).Info().
			Str("method", r.Method).
			Str("route", route).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Int64("duration_ms", duration.Milliseconds()).
			Msg("http_request")
	})
}

func (s *server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				zerolog.Ctx(r.Context()).Error().Interface("panic", rec).Msg("panic recovered")
				s.writeError(w, r, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware stamps the fixed header set on every response and answers
// preflight requests on any path without touching auth or the pipeline.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for key, value := range corsHeaders {
			w.Header().Set(key, value)
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := extractBearerToken(r.Header.Get("Authorization"))
		if !ok {
			s.writeError(w, r, http.StatusUnauthorized, msgUnauthorized)
			return
		}

		user, err := s.validator.Validate(r.Context(), token)
		if err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("token rejected")
			s.writeError(w, r, http.StatusUnauthorized, msgUnauthorized)
			return
		}

		logger := zerolog.Ctx(r.Context()).With().Str("user_id", user.ID).Logger()
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context())))
	})
}

// routeLabel keeps metric cardinality bounded: raw paths never become
// labels. Preflights are answered before routing and have no pattern.
func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	if r.Method == http.MethodOptions {
		return routePreflight
	}
	return routeUnmatched
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func requestIDFromContext(ctx context.Context) string {
	value, _ := ctx.Value(requestIDContext).(string)
	return value
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", false
	}
	return token, true
}
