package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"snapsell/internal/model"
)

// Error means the model output could not be turned into an AnalysisResult.
type Error struct {
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract result: %s: %v", e.Reason, e.Err)
	}
	return "extract result: " + e.Reason
}

func (e *Error) Unwrap() error {
	return e.Err
}

// FindObject returns the span from the first '{' to the last '}' in text.
// Commentary before and after is dropped; nothing inside is checked.
func FindObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// Decode strictly parses object. Missing keys are left empty and unknown
// keys are ignored.
func Decode(object string) (model.AnalysisResult, error) {
	var result model.AnalysisResult
	if err := json.Unmarshal([]byte(object), &result); err != nil {
		return model.AnalysisResult{}, &Error{Reason: "malformed JSON object", Err: err}
	}
	return result, nil
}

// Extract runs FindObject then Decode.
func Extract(text string) (model.AnalysisResult, error) {
	object, ok := FindObject(text)
	if !ok {
		return model.AnalysisResult{}, &Error{Reason: "no JSON object in model response"}
	}
	return Decode(object)
}

// Validate rejects results with blank fields. It is only applied when the
// service runs with complete results required.
func Validate(result model.AnalysisResult) error {
	values := []string{
		result.CaptionInstagram,
		result.TituloMarketplace,
		result.PrecioSugerido,
		result.Categoria,
		result.DescripcionDetallada,
	}

	var missing []string
	for i, v := range values {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, model.ResultFields[i])
		}
	}
	if len(missing) > 0 {
		return &Error{Reason: "missing fields: " + strings.Join(missing, ", ")}
	}
	return nil
}
