package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

type ObserverFunc func(endpoint string, status int, duration time.Duration)

type Option func(*Client)

type Client struct {
	client   *genai.Client
	observer ObserverFunc
}

// Error is a non-2xx answer from the Gemini API.
type Error struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("gemini request failed with status %d", e.StatusCode)
}

type Settings struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// Part is one element of a multimodal prompt. Exactly one of Text or Data
// is expected to be set; Data must carry its MIMEType.
type Part struct {
	Text     string
	Data     []byte
	MIMEType string
}

func TextPart(text string) Part {
	return Part{Text: text}
}

func BlobPart(data []byte, mimeType string) Part {
	return Part{Data: data, MIMEType: mimeType}
}

type Request struct {
	// Endpoint labels the call in metrics, e.g. "transcribe" or "analyze".
	Endpoint    string
	Model       string
	Parts       []Part
	Temperature *float32
	// JSONFields, when set, asks for an application/json response shaped as
	// an object whose listed properties are all strings.
	JSONFields []string
}

type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type Response struct {
	Text         string
	FinishReason string
	Usage        *TokenUsage
}

func WithObserver(observer ObserverFunc) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

func New(ctx context.Context, settings Settings, opts ...Option) (*Client, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:     strings.TrimSpace(settings.APIKey),
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: settings.HTTPClient,
	}
	if baseURL := strings.TrimSpace(settings.BaseURL); baseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	gc, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	c := &Client{client: gc}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// GenerateContent sends one generateContent call. A response without text
// is not an error here; callers decide what an empty answer means.
func (c *Client) GenerateContent(ctx context.Context, req Request) (Response, error) {
	started := time.Now()
	statusCode := 0
	defer func() {
		c.observe(req.Endpoint, statusCode, time.Since(started))
	}()

	parts := make([]*genai.Part, 0, len(req.Parts))
	for _, p := range req.Parts {
		if len(p.Data) > 0 {
			parts = append(parts, genai.NewPartFromBytes(p.Data, p.MIMEType))
			continue
		}
		parts = append(parts, genai.NewPartFromText(p.Text))
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	result, err := c.client.Models.GenerateContent(ctx, req.Model, contents, generateConfig(req))
	if err != nil {
		if upstreamErr := asUpstreamError(err); upstreamErr != nil {
			statusCode = upstreamErr.StatusCode
			return Response{}, upstreamErr
		}
		return Response{}, fmt.Errorf("gemini %s call: %w", req.Model, err)
	}
	statusCode = http.StatusOK

	return toResponse(result), nil
}

// CheckModel confirms the API key can see the given model.
func (c *Client) CheckModel(ctx context.Context, model string) error {
	started := time.Now()
	statusCode := 0
	defer func() {
		c.observe("models", statusCode, time.Since(started))
	}()

	if _, err := c.client.Models.Get(ctx, model, nil); err != nil {
		if upstreamErr := asUpstreamError(err); upstreamErr != nil {
			statusCode = upstreamErr.StatusCode
			return upstreamErr
		}
		return err
	}
	statusCode = http.StatusOK
	return nil
}

func (c *Client) observe(endpoint string, status int, duration time.Duration) {
	if c.observer != nil {
		c.observer(endpoint, status, duration)
	}
}

func generateConfig(req Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.Temperature != nil {
		temperature := *req.Temperature
		cfg.Temperature = &temperature
	}
	if len(req.JSONFields) > 0 {
		properties := make(map[string]*genai.Schema, len(req.JSONFields))
		for _, field := range req.JSONFields {
			properties[field] = &genai.Schema{Type: genai.TypeString}
		}
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = &genai.Schema{
			Type:       genai.TypeObject,
			Properties: properties,
			Required:   append([]string(nil), req.JSONFields...),
		}
	}
	return cfg
}

func toResponse(result *genai.GenerateContentResponse) Response {
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0] == nil {
		return Response{}
	}

	resp := Response{FinishReason: string(result.Candidates[0].FinishReason)}
	if content := result.Candidates[0].Content; content != nil && len(content.Parts) > 0 {
		resp.Text = result.Text()
	}
	if result.UsageMetadata != nil {
		resp.Usage = &TokenUsage{
			PromptTokens:     int(result.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(result.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(result.UsageMetadata.TotalTokenCount),
		}
	}
	return resp
}

func asUpstreamError(err error) *Error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &Error{StatusCode: apiErr.Code, Status: apiErr.Status, Body: truncateBody(apiErr.Message)}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &Error{StatusCode: apiErrPtr.Code, Status: apiErrPtr.Status, Body: truncateBody(apiErrPtr.Message)}
	}
	return nil
}

func truncateBody(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 4096 {
		return s
	}
	return s[:4096] + "..."
}
