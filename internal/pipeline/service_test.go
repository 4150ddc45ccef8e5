package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snapsell/internal/extract"
	"snapsell/internal/generation"
	"snapsell/internal/model"
	"snapsell/internal/prompt"
	"snapsell/internal/transcription"
)

const lampJSON = `{"caption_instagram":"Nice!","titulo_marketplace":"Lamp","precio_sugerido":"19.99","categoria":"Home","descripcion_detallada":"A lamp."}`

type fakeTranscriber struct {
	outcome  transcription.Outcome
	audioURL string
	events   *[]string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, audioURL string) transcription.Outcome {
	f.audioURL = audioURL
	if f.events != nil {
		*f.events = append(*f.events, "transcribe")
	}
	return f.outcome
}

type fakeGenerator struct {
	out      generation.Output
	err      error
	composed string
	image    generation.Image
	events   *[]string
}

func (f *fakeGenerator) Generate(_ context.Context, image generation.Image, composedText string) (generation.Output, error) {
	f.image = image
	f.composed = composedText
	if f.events != nil {
		*f.events = append(*f.events, "generate")
	}
	return f.out, f.err
}

func TestProcessRunsStagesInOrderAndExtracts(t *testing.T) {
	var events []string
	tr := &fakeTranscriber{outcome: transcription.Transcript("funciona bien"), events: &events}
	gen := &fakeGenerator{out: generation.Output{Text: "Claro: " + lampJSON}, events: &events}

	res, err := New(tr, gen, false).Process(context.Background(), ProcessInput{
		Image:    generation.Image{Data: []byte("jpg"), MIMEType: "image/jpeg"},
		UserText: "Lámpara",
		AudioURL: "https://storage/a.webm",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"transcribe", "generate"}, events)
	assert.Equal(t, "https://storage/a.webm", tr.audioURL)
	assert.Equal(t, "Lámpara\n\n"+prompt.VoiceSectionLabel+" funciona bien", gen.composed)
	assert.Equal(t, res.ComposedText, gen.composed)
	assert.Equal(t, []byte("jpg"), gen.image.Data)
	assert.Equal(t, "Lamp", res.Result.TituloMarketplace)
	assert.Equal(t, "19.99", res.Result.PrecioSugerido)
	assert.True(t, res.Transcription.Available())
}

func TestProcessWithoutAudioUsesUserTextVerbatim(t *testing.T) {
	tr := &fakeTranscriber{outcome: transcription.Unavailable(transcription.ReasonNoReference)}
	gen := &fakeGenerator{out: generation.Output{Text: lampJSON}}

	_, err := New(tr, gen, false).Process(context.Background(), ProcessInput{UserText: "Silla de oficina"})
	require.NoError(t, err)
	assert.Equal(t, "Silla de oficina", gen.composed)
}

func TestProcessSucceedsWhenAudioDegrades(t *testing.T) {
	tr := &fakeTranscriber{outcome: transcription.Unavailable(transcription.ReasonFetchFailed)}
	gen := &fakeGenerator{out: generation.Output{Text: lampJSON}}

	res, err := New(tr, gen, false).Process(context.Background(), ProcessInput{
		UserText: "Lámpara",
		AudioURL: "https://storage/expired.webm",
	})
	require.NoError(t, err)
	assert.Equal(t, "Lámpara", gen.composed)
	assert.Equal(t, transcription.ReasonFetchFailed, res.Transcription.Reason())
	assert.Equal(t, "Home", res.Result.Categoria)
}

func TestProcessPropagatesGenerationError(t *testing.T) {
	genErr := &generation.Error{UpstreamStatus: 500, Err: errors.New("boom")}
	tr := &fakeTranscriber{outcome: transcription.Unavailable(transcription.ReasonNoReference)}

	_, err := New(tr, &fakeGenerator{err: genErr}, false).Process(context.Background(), ProcessInput{})
	require.Error(t, err)
	assert.Same(t, genErr, err)
}

func TestProcessPropagatesExtractionError(t *testing.T) {
	tr := &fakeTranscriber{outcome: transcription.Unavailable(transcription.ReasonNoReference)}
	gen := &fakeGenerator{out: generation.Output{Text: "I could not identify the product."}}

	res, err := New(tr, gen, false).Process(context.Background(), ProcessInput{})
	require.Error(t, err)

	var exErr *extract.Error
	assert.True(t, errors.As(err, &exErr))
	assert.Equal(t, model.AnalysisResult{}, res.Result)
}

func TestProcessLenientAndStrictCompleteness(t *testing.T) {
	partial := `{"titulo_marketplace":"Lamp"}`
	tr := &fakeTranscriber{outcome: transcription.Unavailable(transcription.ReasonNoReference)}

	res, err := New(tr, &fakeGenerator{out: generation.Output{Text: partial}}, false).Process(context.Background(), ProcessInput{})
	require.NoError(t, err)
	assert.Equal(t, "Lamp", res.Result.TituloMarketplace)
	assert.Empty(t, res.Result.Categoria)

	_, err = New(tr, &fakeGenerator{out: generation.Output{Text: partial}}, true).Process(context.Background(), ProcessInput{})
	var exErr *extract.Error
	require.True(t, errors.As(err, &exErr))
	assert.Contains(t, exErr.Reason, "categoria")
}
