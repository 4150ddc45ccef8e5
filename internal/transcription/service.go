package transcription

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"snapsell/internal/prompt"
	"snapsell/internal/upstream/gemini"
)

const EndpointName = "transcribe"

type AudioFetcher interface {
	Fetch(ctx context.Context, audioURL string) (Audio, error)
}

type ModelClient interface {
	GenerateContent(ctx context.Context, req gemini.Request) (gemini.Response, error)
}

type DegradeObserverFunc func(reason string)

type Service struct {
	fetcher         AudioFetcher
	client          ModelClient
	model           string
	defaultMIMEType string
	timeout         time.Duration
	onDegrade       DegradeObserverFunc
}

func New(fetcher AudioFetcher, client ModelClient, model, defaultMIMEType string, timeout time.Duration, onDegrade DegradeObserverFunc) *Service {
	if defaultMIMEType == "" {
		defaultMIMEType = "audio/webm"
	}
	return &Service{
		fetcher:         fetcher,
		client:          client,
		model:           strings.TrimSpace(model),
		defaultMIMEType: defaultMIMEType,
		timeout:         timeout,
		onDegrade:       onDegrade,
	}
}

// Transcribe is best effort: every failure is logged and reported as an
// Unavailable outcome, never as an error.
func (s *Service) Transcribe(ctx context.Context, audioURL string) Outcome {
	audioURL = strings.TrimSpace(audioURL)
	if audioURL == "" {
		return Unavailable(ReasonNoReference)
	}
	log := zerolog.Ctx(ctx)

	audio, err := s.fetcher.Fetch(ctx, audioURL)
	if err != nil {
		reason := ReasonFetchFailed
		if errors.Is(err, ErrReadFailed) {
			reason = ReasonReadFailed
		}
		log.Warn().Err(err).Str("reason", string(reason)).Msg("audio unavailable for transcription")
		return s.degrade(reason)
	}

	mimeType := audioMIMEType(audio.ContentType, s.defaultMIMEType)

	modelCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		modelCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resp, err := s.client.GenerateContent(modelCtx, gemini.Request{
		Endpoint: EndpointName,
		Model:    s.model,
		Parts: []gemini.Part{
			gemini.TextPart(prompt.TranscriptionInstruction),
			gemini.BlobPart(audio.Data, mimeType),
		},
	})
	if err != nil {
		log.Warn().Err(err).Str("mime_type", mimeType).Msg("gemini transcription failed")
		return s.degrade(ReasonModelFailed)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		log.Warn().Str("finish_reason", resp.FinishReason).Msg("gemini transcription returned no text")
		return s.degrade(ReasonEmptyTranscript)
	}

	log.Debug().Int("audio_bytes", len(audio.Data)).Int("transcript_chars", len(text)).Msg("audio transcribed")
	return Transcript(text)
}

func (s *Service) degrade(reason Reason) Outcome {
	if s.onDegrade != nil {
		s.onDegrade(string(reason))
	}
	return Unavailable(reason)
}
