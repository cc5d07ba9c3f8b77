package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type client struct {
	timeout time.Duration
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// post sends body as JSON to url and decodes a 200 response into out.
func (c client) post(ctx context.Context, provider, url string, headers map[string]string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", provider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s API error (status %d): %s", provider, resp.StatusCode, string(raw))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

type openAIRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type openAIResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c client) openAI(apiKey, model, baseURL string) Func {
	return func(ctx context.Context, prompt string) (string, error) {
		req := openAIRequest{
			Model:    model,
			Messages: []chatMessage{{Role: "user", Content: prompt}},
		}
		req.ResponseFormat.Type = "json_object"

		var resp openAIResponse
		err := c.post(ctx, ProviderOpenAI, baseURL+"/v1/chat/completions",
			map[string]string{"Authorization": "Bearer " + apiKey}, req, &resp)
		if err != nil {
			return "", err
		}
		if resp.Error != nil {
			return "", fmt.Errorf("openai error: %s", resp.Error.Message)
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
			return "", ErrEmptyCompletion
		}
		return resp.Choices[0].Message.Content, nil
	}
}

type anthropicRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	Messages  []chatMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c client) anthropic(apiKey, model, baseURL string) Func {
	return func(ctx context.Context, prompt string) (string, error) {
		req := anthropicRequest{
			Model:     model,
			MaxTokens: 1024,
			Messages: []chatMessage{
				{Role: "user", Content: prompt + "\n\nReturn ONLY valid JSON, no markdown or extra text."},
			},
		}

		var resp anthropicResponse
		err := c.post(ctx, ProviderAnthropic, baseURL+"/v1/messages", map[string]string{
			"x-api-key":         apiKey,
			"anthropic-version": "2023-06-01",
		}, req, &resp)
		if err != nil {
			return "", err
		}
		if resp.Error != nil {
			return "", fmt.Errorf("anthropic error: %s", resp.Error.Message)
		}
		for _, block := range resp.Content {
			if block.Type == "text" && block.Text != "" {
				return block.Text, nil
			}
		}
		return "", ErrEmptyCompletion
	}
}

type ollamaRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Format   string        `json:"format"`
}

type ollamaResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

func (c client) ollama(model, baseURL string) Func {
	return func(ctx context.Context, prompt string) (string, error) {
		req := ollamaRequest{
			Model:    model,
			Messages: []chatMessage{{Role: "user", Content: prompt}},
			Format:   "json",
		}

		var resp ollamaResponse
		if err := c.post(ctx, ProviderOllama, baseURL+"/api/chat", nil, req, &resp); err != nil {
			return "", err
		}
		if resp.Message.Content == "" {
			return "", ErrEmptyCompletion
		}
		return resp.Message.Content, nil
	}
}
