package analysis

import "context"

// HealthMetric es una métrica extraída de un reporte (glucosa, presión...).
type HealthMetric struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	Unit      string `json:"unit"`
	Timestamp string `json:"timestamp"`
}

// HealthAnalysis es el resultado opaco del servicio de análisis. El core
// lo escribe como campos normales via append; no tiene lógica especial
// para contenido derivado de IA.
type HealthAnalysis struct {
	Summary         string         `json:"summary"`
	Metrics         []HealthMetric `json:"metrics"`
	Recommendations []string       `json:"recommendations"`
	CriticalLevel   string         `json:"criticalLevel"` // Low, Medium, High
}

// Analyzer analiza el documento de un reporte médico. Es una función
// externa opaca para este core.
type Analyzer interface {
	Analyze(ctx context.Context, documentBytes []byte, mimeType string) (HealthAnalysis, error)
}

// ChatMessage es un turno previo de la conversación con el asistente.
type ChatMessage struct {
	Role string `json:"role"` // user | model
	Text string `json:"text"`
}

// Chatter responde preguntas del usuario sobre su salud. Igual que el
// análisis, es opaco: el core solo hace el passthrough, nunca persiste
// la conversación.
type Chatter interface {
	Chat(ctx context.Context, message string, history []ChatMessage) (string, error)
}
