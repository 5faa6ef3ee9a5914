package openai_provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sakchai-t/doclens/config"
	"github.com/sakchai-t/doclens/models"
)

const defaultBaseURL = "https://api.openai.com/v1"

// client implements the generation backend over OpenAI's chat completions
// API. Usage comes from the backend, both for blocking calls and streams
// (via stream_options.include_usage).
type client struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
}

// Message represents a message in a conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// request represents a request to the chat completions endpoint
type request struct {
	Model         string         `json:"model"`
	Messages      []Message      `json:"messages"`
	Temperature   float64        `json:"temperature,omitempty"`
	MaxTokens     int            `json:"max_tokens,omitempty"`
	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
}

// response represents a blocking chat completions response
type response struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage usage `json:"usage"`
}

// streamChunk is one SSE data payload of a streaming response. The final
// chunk carries usage and an empty choices list.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *usage `json:"usage"`
}

// New creates an OpenAI-backed generation client
func New(cfg config.OpenAIConfig, timeout time.Duration) *client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &client{
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

func (c *client) Name() string  { return "openai" }
func (c *client) Model() string { return c.model }

// Generate performs a blocking chat completion
func (c *client) Generate(ctx context.Context, req models.GenRequest) (models.GenResult, error) {
	resp, err := c.post(ctx, request{
		Model:       c.model,
		Messages:    buildMessages(req),
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return models.GenResult{}, err
	}
	defer resp.Body.Close()

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.GenResult{}, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(out.Choices) == 0 {
		return models.GenResult{}, fmt.Errorf("no choices in response")
	}
	return models.GenResult{
		Text: strings.TrimSpace(out.Choices[0].Message.Content),
		Usage: models.GenUsage{
			InputTokens:  out.Usage.PromptTokens,
			OutputTokens: out.Usage.CompletionTokens,
		},
	}, nil
}

// GenerateStream performs a streaming chat completion. Deltas are sent as
// they arrive; the terminal event carries backend-reported usage, falling
// back to a length estimate when the backend omits it.
func (c *client) GenerateStream(ctx context.Context, req models.GenRequest) (<-chan models.StreamEvent, error) {
	resp, err := c.post(ctx, request{
		Model:         c.model,
		Messages:      buildMessages(req),
		Temperature:   c.temperature,
		MaxTokens:     c.maxTokens,
		Stream:        true,
		StreamOptions: &streamOptions{IncludeUsage: true},
	})
	if err != nil {
		return nil, err
	}

	events := make(chan models.StreamEvent)
	go func() {
		defer close(events)
		defer resp.Body.Close()

		var reported *usage
		var outputLen int

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "[DONE]" {
				break
			}
			var chunk streamChunk
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				continue
			}
			if chunk.Usage != nil {
				reported = chunk.Usage
			}
			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				delta := chunk.Choices[0].Delta.Content
				outputLen += len(delta)
				events <- models.StreamEvent{Delta: delta}
			}
		}
		if err := scanner.Err(); err != nil {
			events <- models.StreamEvent{Done: true, Err: fmt.Errorf("stream read: %w", err)}
			return
		}

		final := models.GenUsage{}
		if reported != nil {
			final.InputTokens = reported.PromptTokens
			final.OutputTokens = reported.CompletionTokens
		} else {
			final.InputTokens = models.EstimateTokens(req.System + "\n" + req.User)
			final.OutputTokens = int64(outputLen) / 4
			final.Estimated = true
		}
		events <- models.StreamEvent{Done: true, Usage: final}
	}()
	return events, nil
}

func (c *client) post(ctx context.Context, body request) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return resp, nil
}

func buildMessages(req models.GenRequest) []Message {
	msgs := make([]Message, 0, 2)
	if req.System != "" {
		msgs = append(msgs, Message{Role: "system", Content: req.System})
	}
	msgs = append(msgs, Message{Role: "user", Content: req.User})
	return msgs
}
