package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComposeUserTextWithoutTranscriptIsVerbatim(t *testing.T) {
	in := "  Lámpara vintage, funciona perfecto  "

	first := ComposeUserText(in, "")
	second := ComposeUserText(in, "")

	assert.Equal(t, in, first)
	assert.Equal(t, first, second)
}

func TestComposeUserTextAppendsLabelledTranscript(t *testing.T) {
	got := ComposeUserText("Lámpara de mesa", "  tiene dos años de uso  ")
	assert.Equal(t, "Lámpara de mesa\n\nDescripción por voz del usuario: tiene dos años de uso", got)
}

func TestComposeUserTextSubstitutesDefaultForBlankText(t *testing.T) {
	assert.Equal(t, DefaultUserText, ComposeUserText("", ""))
	assert.Equal(t, DefaultUserText, ComposeUserText(" \n\t", "   "))
	assert.Equal(t, DefaultUserText+"\n\n"+VoiceSectionLabel+" hola", ComposeUserText("", "hola"))
}

func TestAnalysisQuotesComposedTextAndListsFields(t *testing.T) {
	got := Analysis("Silla 100% madera")

	assert.True(t, strings.HasPrefix(got, "Analiza esta imagen"))
	assert.Contains(t, got, `"Silla 100% madera"`)
	for _, field := range []string{"caption_instagram", "titulo_marketplace", "precio_sugerido", "categoria", "descripcion_detallada"} {
		assert.Contains(t, got, field)
	}
	assert.True(t, strings.HasSuffix(got, "Responde SOLO con el JSON, sin texto adicional."))
	assert.NotContains(t, got, "\n\t")
}
