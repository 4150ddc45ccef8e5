package extract

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snapsell/internal/model"
)

func TestExtractDiscardsSurroundingProse(t *testing.T) {
	raw := "Here you go: {\"caption_instagram\":\"Nice!\",\"titulo_marketplace\":\"Lamp\",\"precio_sugerido\":\"19.99\",\"categoria\":\"Home\",\"descripcion_detallada\":\"A lamp.\"} thanks"

	got, err := Extract(raw)
	require.NoError(t, err)
	assert.Equal(t, model.AnalysisResult{
		CaptionInstagram:     "Nice!",
		TituloMarketplace:    "Lamp",
		PrecioSugerido:       "19.99",
		Categoria:            "Home",
		DescripcionDetallada: "A lamp.",
	}, got)
}

func TestExtractHandlesMarkdownFence(t *testing.T) {
	raw := "```json\n{\"categoria\":\"Ropa\",\"precio_sugerido\":\"12\"}\n```"

	got, err := Extract(raw)
	require.NoError(t, err)
	assert.Equal(t, "Ropa", got.Categoria)
	assert.Equal(t, "12", got.PrecioSugerido)
}

func TestFindObject(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{name: "plain", in: `{"a":1}`, want: `{"a":1}`, ok: true},
		{name: "greedy across objects", in: `x {"a":1} y {"b":2} z`, want: `{"a":1} y {"b":2}`, ok: true},
		{name: "no braces", in: "sorry, I cannot help", ok: false},
		{name: "only open", in: "{ never closed", ok: false},
		{name: "inverted", in: "} backwards {", ok: false},
		{name: "empty", in: "", ok: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := FindObject(tc.in)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestExtractWithoutObjectFails(t *testing.T) {
	_, err := Extract("no structured data here")
	require.Error(t, err)

	var exErr *Error
	require.True(t, errors.As(err, &exErr))
	assert.Contains(t, exErr.Reason, "no JSON object")
}

func TestDecodeMalformedObjectFails(t *testing.T) {
	_, err := Decode(`{"categoria": "Hogar",}`)
	require.Error(t, err)

	var exErr *Error
	require.True(t, errors.As(err, &exErr))
	var syntaxErr *json.SyntaxError
	assert.True(t, errors.As(err, &syntaxErr))
}

func TestDecodeLeavesMissingFieldsEmpty(t *testing.T) {
	got, err := Decode(`{"titulo_marketplace":"Bicicleta","extra":"ignored"}`)
	require.NoError(t, err)
	assert.Equal(t, "Bicicleta", got.TituloMarketplace)
	assert.Empty(t, got.CaptionInstagram)
	assert.Empty(t, got.DescripcionDetallada)
}

func TestValidateListsBlankFields(t *testing.T) {
	err := Validate(model.AnalysisResult{
		CaptionInstagram:  "Nice!",
		TituloMarketplace: "Lamp",
		PrecioSugerido:    " ",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "precio_sugerido, categoria, descripcion_detallada")

	assert.NoError(t, Validate(model.AnalysisResult{
		CaptionInstagram:     "a",
		TituloMarketplace:    "b",
		PrecioSugerido:       "1",
		Categoria:            "c",
		DescripcionDetallada: "d",
	}))
}
