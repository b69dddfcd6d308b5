package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"medical-record-store/internal/platform/httpclient"
)

var (
	ErrNotConfigured = errors.New("gemini: missing api key or base url")
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultModel   = "gemini-3-pro-preview"
	defaultTimeout = 30 * time.Second
)

const analysisPrompt = "Analyze this medical report. Extract key health metrics " +
	"(like glucose, blood pressure, etc.), summarize the findings, and note any " +
	"critical observations. Return the results strictly in JSON format. Do not " +
	"include markdown formatting in your response."

const chatInstruction = "You are a helpful AI medical companion. You provide " +
	"information based on common medical knowledge and the user's uploaded " +
	"reports. Always include a disclaimer that you are an AI and the user " +
	"should consult a real doctor for professional diagnosis."

// Client habla con la API generativa. Igual que el resto de adapters,
// envuelve el httpclient de la plataforma; no usa el SDK oficial para
// mantener la dependencia detrás de una interfaz propia.
type Client struct {
	http   *httpclient.Client
	apiKey string
	model  string
}

type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	hc, err := httpclient.NewWithBaseURL(base, timeout)
	if err != nil {
		return nil, err
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}

	return &Client{
		http:   hc,
		apiKey: cfg.APIKey,
		model:  model,
	}, nil
}

// Wire types del endpoint generateContent (solo lo que usamos).
type generateRequest struct {
	Contents          []content       `json:"contents"`
	SystemInstruction *content        `json:"systemInstruction,omitempty"`
	GenerationConfig  *generateConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

type generateConfig struct {
	ResponseMimeType string `json:"responseMimeType,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// GenerateJSON manda el documento + prompt y devuelve el texto de la
// primera candidate, que se espera sea JSON plano.
func (c *Client) GenerateJSON(ctx context.Context, documentBytes []byte, mimeType string) (string, error) {
	if c == nil || c.http == nil {
		return "", ErrNotConfigured
	}

	req := generateRequest{
		Contents: []content{{
			Parts: []part{
				{InlineData: &inlineData{
					MimeType: mimeType,
					Data:     base64.StdEncoding.EncodeToString(documentBytes),
				}},
				{Text: analysisPrompt},
			},
		}},
		GenerationConfig: &generateConfig{ResponseMimeType: "application/json"},
	}

	path := fmt.Sprintf("/v1beta/models/%s:generateContent", c.model)
	headers := map[string]string{"x-goog-api-key": c.apiKey}

	var resp generateResponse
	if err := c.http.DoJSON(ctx, http.MethodPost, path, headers, req, &resp); err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("gemini: empty response")
	}

	text := resp.Candidates[0].Content.Parts[0].Text
	// Algunos modelos siguen devolviendo fences aunque se pida JSON pelado.
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text), nil
}

// ChatTurn es un turno previo ya en formato wire (role user|model).
type ChatTurn struct {
	Role string
	Text string
}

// GenerateChat manda el historial más el mensaje nuevo y devuelve el
// texto de la respuesta. La conversación vive en el cliente; acá no se
// persiste nada.
func (c *Client) GenerateChat(ctx context.Context, message string, history []ChatTurn) (string, error) {
	if c == nil || c.http == nil {
		return "", ErrNotConfigured
	}

	contents := make([]content, 0, len(history)+1)
	for _, turn := range history {
		role := turn.Role
		if role != "user" {
			role = "model"
		}
		contents = append(contents, content{Role: role, Parts: []part{{Text: turn.Text}}})
	}
	contents = append(contents, content{Role: "user", Parts: []part{{Text: message}}})

	req := generateRequest{
		Contents:          contents,
		SystemInstruction: &content{Parts: []part{{Text: chatInstruction}}},
	}

	path := fmt.Sprintf("/v1beta/models/%s:generateContent", c.model)
	headers := map[string]string{"x-goog-api-key": c.apiKey}

	var resp generateResponse
	if err := c.http.DoJSON(ctx, http.MethodPost, path, headers, req, &resp); err != nil {
		return "", fmt.Errorf("gemini chat: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("gemini: empty response")
	}
	return strings.TrimSpace(resp.Candidates[0].Content.Parts[0].Text), nil
}

func decodeJSON(raw string, out any) error {
	return json.Unmarshal([]byte(raw), out)
}
