package pipeline

import (
	"context"
	"time"

	"snapsell/internal/extract"
	"snapsell/internal/generation"
	"snapsell/internal/model"
	"snapsell/internal/prompt"
	"snapsell/internal/transcription"
	"snapsell/internal/upstream/gemini"
)

type Transcriber interface {
	Transcribe(ctx context.Context, audioURL string) transcription.Outcome
}

type Generator interface {
	Generate(ctx context.Context, image generation.Image, composedText string) (generation.Output, error)
}

type Service struct {
	transcriber     Transcriber
	generator       Generator
	requireComplete bool
}

type ProcessInput struct {
	Image    generation.Image
	UserText string
	AudioURL string
}

type Timings struct {
	Transcription time.Duration
	Generation    time.Duration
	Total         time.Duration
}

type ProcessResult struct {
	Result        model.AnalysisResult
	Transcription transcription.Outcome
	ComposedText  string
	Usage         *gemini.TokenUsage
	Timings       Timings
}

func New(transcriber Transcriber, generator Generator, requireComplete bool) *Service {
	return &Service{
		transcriber:     transcriber,
		generator:       generator,
		requireComplete: requireComplete,
	}
}

// Process runs transcription, composition, generation and extraction one
// after another. Only transcription may fail without failing the call.
func (s *Service) Process(ctx context.Context, in ProcessInput) (ProcessResult, error) {
	started := time.Now()

	transcriptionStarted := time.Now()
	outcome := s.transcriber.Transcribe(ctx, in.AudioURL)
	transcriptionDuration := time.Since(transcriptionStarted)

	transcript, _ := outcome.Text()
	composed := prompt.ComposeUserText(in.UserText, transcript)

	result := ProcessResult{
		Transcription: outcome,
		ComposedText:  composed,
		Timings:       Timings{Transcription: transcriptionDuration},
	}

	generationStarted := time.Now()
	out, err := s.generator.Generate(ctx, in.Image, composed)
	result.Timings.Generation = time.Since(generationStarted)
	if err != nil {
		result.Timings.Total = time.Since(started)
		return result, err
	}
	result.Usage = out.Usage

	analysis, err := extract.Extract(out.Text)
	if err == nil && s.requireComplete {
		err = extract.Validate(analysis)
	}
	result.Timings.Total = time.Since(started)
	if err != nil {
		return result, err
	}

	result.Result = analysis
	return result, nil
}
