// Package prompt holds the text sent to the generative model: the composed
// user text and the fixed instructions for analysis and transcription.
package prompt

import (
	"fmt"
	"strings"

	"github.com/lithammer/dedent"
)

// DefaultUserText stands in for an empty text field so the analysis prompt
// always has something to quote.
const DefaultUserText = "Analiza esta imagen y genera información para venta"

const VoiceSectionLabel = "Descripción por voz del usuario:"

const TranscriptionInstruction = "Transcribe este audio del usuario. Devuelve solo el texto transcrito en español, sin comentarios adicionales."

const analysisTemplate = `
	Analiza esta imagen y el siguiente texto del usuario (incluyendo, si está presente, una descripción por voz transcrita): "%s".

	Genera un JSON con los siguientes campos:
	- caption_instagram: Un caption atractivo para Instagram (máximo 150 caracteres, con emojis relevantes)
	- titulo_marketplace: Un título conciso para marketplace (máximo 60 caracteres)
	- precio_sugerido: Un precio sugerido en dólares (solo el número, ej: "29.99")
	- categoria: La categoría del producto (ej: "Electrónica", "Ropa", "Hogar", etc.)
	- descripcion_detallada: Una descripción detallada del producto para marketplace (150-200 palabras)

	Responde SOLO con el JSON, sin texto adicional.
`

// ComposeUserText merges what the user typed with what they said. A blank
// transcript means there was none and userText is returned as is.
func ComposeUserText(userText, transcript string) string {
	text := userText
	if strings.TrimSpace(text) == "" {
		text = DefaultUserText
	}

	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return text
	}
	return text + "\n\n" + VoiceSectionLabel + " " + transcript
}

// Analysis renders the instruction block for the image analysis call.
func Analysis(composedText string) string {
	return fmt.Sprintf(strings.TrimSpace(dedent.Dedent(analysisTemplate)), composedText)
}
