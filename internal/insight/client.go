// Package insight предоставляет клиент для внешнего сервиса анализа
// заметок клиента (Gemini API). Вся логика рассуждений живёт на стороне
// бэкенда, клиент только пересылает данные и разбирает ответ.
package insight

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mmeshcher/nexus-crm/internal/model"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	modelName      = "gemini-3-flash-preview"
)

// Client инкапсулирует HTTP-взаимодействие с сервисом анализа.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient создаёт клиент сервиса анализа. Пустой baseURL заменяется
// адресом Gemini API по умолчанию.
func NewClient(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Configured сообщает, задан ли учётный ключ бэкенда.
func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseMIMEType string          `json:"responseMimeType,omitempty"`
	ResponseSchema   json.RawMessage `json:"responseSchema,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

var analysisSchema = json.RawMessage(`{
  "type": "OBJECT",
  "properties": {
    "summary": {"type": "STRING"},
    "sentiment": {"type": "STRING"},
    "nextSteps": {"type": "ARRAY", "items": {"type": "STRING"}}
  },
  "required": ["summary", "sentiment", "nextSteps"]
}`)

// Analyze пересылает имя, статус и заметки клиента бэкенду и возвращает
// структурированный результат анализа.
func (c *Client) Analyze(ctx context.Context, client model.Client) (*model.AIAnalysis, error) {
	prompt := fmt.Sprintf("Analyze the notes and data of this Nexus CRM client.\nName: %s\nStatus: %s\nNotes: %q",
		client.Name, client.Status, client.Notes)

	req := generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		SystemInstruction: &content{Parts: []part{{
			Text: "You are a strategic CRM assistant. Provide a JSON analysis with: 'summary', 'sentiment' (Positive/Neutral/Negative) and 'nextSteps' (a list of 3 actions).",
		}}},
		GenerationConfig: &generationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   analysisSchema,
		},
	}

	text, err := c.generate(ctx, req)
	if err != nil {
		return nil, err
	}

	var analysis model.AIAnalysis
	if err := json.Unmarshal([]byte(text), &analysis); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}

	return &analysis, nil
}

// Message просит бэкенд составить короткое сообщение для клиента.
func (c *Client) Message(ctx context.Context, client model.Client) (string, error) {
	prompt := fmt.Sprintf("Write a professional follow-up message for client %s (status: %s). Notes: %s",
		client.Name, client.Status, client.Notes)

	req := generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		SystemInstruction: &content{Parts: []part{{
			Text: "Be cordial, executive and direct. At most 250 characters. No excessive emojis.",
		}}},
	}

	return c.generate(ctx, req)
}

func (c *Client) generate(ctx context.Context, payload generateRequest) (string, error) {
	if !c.Configured() {
		return "", fmt.Errorf("insight client not configured")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, modelName)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty response from backend")
	}

	return result.Candidates[0].Content.Parts[0].Text, nil
}
