package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"quizroom-service/internal/domain"
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("ai generation is not configured")

// Client generates quiz questions through an OpenAI compatible
// chat completions endpoint.
type Client struct {
	httpClient *http.Client
	apiKey     string
	apiURL     string
	model      string
}

func NewClient(apiKey, apiURL, model string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		apiKey:     apiKey,
		apiURL:     strings.TrimRight(apiURL, "/"),
		model:      model,
	}
}

func (c *Client) Available() bool {
	return c.apiKey != ""
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

const systemPrompt = `You write multiple choice quiz questions. Respond with ONLY a JSON array (no markdown, no code fences, no explanations) in this format:

[
  {
    "question": "Question text?",
    "options": ["Option A", "Option B", "Option C", "Option D"],
    "correctAnswer": 0
  }
]

Rules:
- Every question has exactly 4 options
- correctAnswer is the zero based index of the single correct option
- Questions are factually accurate and varied in difficulty`

func userPrompt(topic string, count int) string {
	return fmt.Sprintf("Generate %d quiz questions about %q.", count, topic)
}

// Questions asks the model for count questions about topic. The result is
// returned as parsed; shape checks happen in the caller.
func (c *Client) Questions(ctx context.Context, topic string, count int) ([]domain.GeneratedQuestion, error) {
	if !c.Available() {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt(topic, count)},
		},
		Temperature: 0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("api returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var chat chatResponse
	if err := json.Unmarshal(raw, &chat); err != nil {
		return nil, fmt.Errorf("parse api response: %w", err)
	}
	if chat.Error != nil {
		return nil, fmt.Errorf("api error: %s", chat.Error.Message)
	}
	if len(chat.Choices) == 0 {
		return nil, errors.New("empty response from model")
	}

	var questions []domain.GeneratedQuestion
	if err := json.Unmarshal([]byte(cleanJSONContent(chat.Choices[0].Message.Content)), &questions); err != nil {
		return nil, fmt.Errorf("model returned invalid json: %w", err)
	}
	return questions, nil
}

func cleanJSONContent(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
