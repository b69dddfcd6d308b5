package gemini

import (
	"context"
	"fmt"
	"strings"

	"medical-record-store/internal/ports/analysis"
)

// Analyzer implementa analysis.Analyzer usando Gemini.
// No se integra automáticamente; queda listo para instanciar desde router.
type Analyzer struct {
	client *Client
}

func NewAnalyzer(client *Client) *Analyzer {
	return &Analyzer{client: client}
}

func (a *Analyzer) Analyze(ctx context.Context, documentBytes []byte, mimeType string) (analysis.HealthAnalysis, error) {
	if a == nil || a.client == nil {
		return analysis.HealthAnalysis{}, ErrNotConfigured
	}
	if len(documentBytes) == 0 || strings.TrimSpace(mimeType) == "" {
		return analysis.HealthAnalysis{}, fmt.Errorf("gemini: empty document or mime type")
	}

	raw, err := a.client.GenerateJSON(ctx, documentBytes, mimeType)
	if err != nil {
		return analysis.HealthAnalysis{}, err
	}

	var out analysis.HealthAnalysis
	if err := decodeJSON(raw, &out); err != nil {
		return analysis.HealthAnalysis{}, fmt.Errorf("gemini: parse analysis: %w", err)
	}

	// Normalizamos el nivel; el merge del core lo trata como cualquier
	// otro campo.
	switch strings.ToLower(strings.TrimSpace(out.CriticalLevel)) {
	case "high":
		out.CriticalLevel = "High"
	case "medium":
		out.CriticalLevel = "Medium"
	default:
		out.CriticalLevel = "Low"
	}
	return out, nil
}

// Chat implementa analysis.Chatter: puro passthrough, la conversación
// no toca el change log.
func (a *Analyzer) Chat(ctx context.Context, message string, history []analysis.ChatMessage) (string, error) {
	if a == nil || a.client == nil {
		return "", ErrNotConfigured
	}
	if strings.TrimSpace(message) == "" {
		return "", fmt.Errorf("gemini: empty message")
	}

	turns := make([]ChatTurn, 0, len(history))
	for _, m := range history {
		turns = append(turns, ChatTurn{Role: m.Role, Text: m.Text})
	}
	return a.client.GenerateChat(ctx, message, turns)
}
