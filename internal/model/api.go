package model

// AnalyzeRequest is the inbound body of the analysis endpoint.
type AnalyzeRequest struct {
	ImageBase64 string  `json:"imageBase64"`
	Text        string  `json:"text"`
	AudioURL    *string `json:"audioUrl,omitempty"`
}

// AnalysisResult is the only success shape returned to callers. The JSON
// keys are part of the public contract with the web client.
type AnalysisResult struct {
	CaptionInstagram     string `json:"caption_instagram"`
	TituloMarketplace    string `json:"titulo_marketplace"`
	PrecioSugerido       string `json:"precio_sugerido"`
	Categoria            string `json:"categoria"`
	DescripcionDetallada string `json:"descripcion_detallada"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	OK bool `json:"ok"`
}

type ReadyResponse struct {
	OK          bool   `json:"ok"`
	ServiceName string `json:"service_name,omitempty"`
}

// ResultFields lists the AnalysisResult JSON keys in prompt order.
var ResultFields = []string{
	"caption_instagram",
	"titulo_marketplace",
	"precio_sugerido",
	"categoria",
	"descripcion_detallada",
}
