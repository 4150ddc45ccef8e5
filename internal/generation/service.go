package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"snapsell/internal/model"
	"snapsell/internal/prompt"
	"snapsell/internal/upstream/gemini"
)

const EndpointName = "analyze"

var ErrEmptyResponse = errors.New("empty model response")

type ModelClient interface {
	GenerateContent(ctx context.Context, req gemini.Request) (gemini.Response, error)
}

// Error wraps any failure of the analysis call. UpstreamStatus and
// UpstreamBody are set when the model API answered with a non-2xx status.
type Error struct {
	UpstreamStatus int
	UpstreamBody   string
	Err            error
}

func (e *Error) Error() string {
	if e.UpstreamStatus != 0 {
		return fmt.Sprintf("generation failed: upstream status %d", e.UpstreamStatus)
	}
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Image struct {
	Data     []byte
	MIMEType string
}

type Output struct {
	Text  string
	Usage *gemini.TokenUsage
}

type Service struct {
	client      ModelClient
	model       string
	temperature float32
	timeout     time.Duration
}

func New(client ModelClient, model string, temperature float32, timeout time.Duration) *Service {
	return &Service{
		client:      client,
		model:       strings.TrimSpace(model),
		temperature: temperature,
		timeout:     timeout,
	}
}

// Generate makes exactly one analysis call with the instruction text first
// and the image second.
func (s *Service) Generate(ctx context.Context, image Image, composedText string) (Output, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	mimeType := image.MIMEType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	temperature := s.temperature

	resp, err := s.client.GenerateContent(ctx, gemini.Request{
		Endpoint: EndpointName,
		Model:    s.model,
		Parts: []gemini.Part{
			gemini.TextPart(prompt.Analysis(composedText)),
			gemini.BlobPart(image.Data, mimeType),
		},
		Temperature: &temperature,
		JSONFields:  model.ResultFields,
	})
	if err != nil {
		genErr := &Error{Err: err}
		var upstreamErr *gemini.Error
		if errors.As(err, &upstreamErr) {
			genErr.UpstreamStatus = upstreamErr.StatusCode
			genErr.UpstreamBody = upstreamErr.Body
		}
		return Output{}, genErr
	}

	if strings.TrimSpace(resp.Text) == "" {
		return Output{}, &Error{Err: ErrEmptyResponse}
	}
	return Output{Text: resp.Text, Usage: resp.Usage}, nil
}
