package ollama_provider

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

const (
	defaultHost    = "http://localhost:11434"
	defaultModel   = "llama3"
	defaultTimeout = 120 * time.Second
)

// client implements the generation backend over a local Ollama server.
// Ollama does not report token usage in a form we trust across models, so
// usage is always estimated from character length.
type client struct {
	host        string
	model       string
	temperature float64
	httpClient  *http.Client
}

// chatMessage is the Ollama chat message format
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the Ollama /api/chat request format
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  *options      `json:"options,omitempty"`
}

type options struct {
	Temperature float64 `json:"temperature,omitempty"`
}

// chatResponse is one NDJSON line of the /api/chat response; with
// stream=false it is the whole body.
type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

// New creates an Ollama-backed generation client
func New(cfg config.OllamaConfig, timeout time.Duration) *client {
	host := cfg.Host
	if host == "" {
		host = defaultHost
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &client{
		host:        strings.TrimRight(host, "/"),
		model:       model,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

func (c *client) Name() string  { return "ollama" }
func (c *client) Model() string { return c.model }

// Generate performs a blocking chat call
func (c *client) Generate(ctx context.Context, req models.GenRequest) (models.GenResult, error) {
	resp, err := c.post(ctx, chatRequest{
		Model:    c.model,
		Messages: buildMessages(req),
		Stream:   false,
		Options:  c.options(),
	})
	if err != nil {
		return models.GenResult{}, err
	}
	defer resp.Body.Close()

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.GenResult{}, fmt.Errorf("failed to parse response: %w", err)
	}
	text := strings.TrimSpace(out.Message.Content)
	return models.GenResult{
		Text:  text,
		Usage: estimateUsage(req, text),
	}, nil
}

// GenerateStream performs a streaming chat call over NDJSON lines
func (c *client) GenerateStream(ctx context.Context, req models.GenRequest) (<-chan models.StreamEvent, error) {
	resp, err := c.post(ctx, chatRequest{
		Model:    c.model,
		Messages: buildMessages(req),
		Stream:   true,
		Options:  c.options(),
	})
	if err != nil {
		return nil, err
	}

	events := make(chan models.StreamEvent)
	go func() {
		defer close(events)
		defer resp.Body.Close()

		var accumulated strings.Builder
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var chunk chatResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				continue
			}
			if chunk.Message.Content != "" {
				accumulated.WriteString(chunk.Message.Content)
				events <- models.StreamEvent{Delta: chunk.Message.Content}
			}
			if chunk.Done {
				break
			}
		}
		if err := scanner.Err(); err != nil {
			events <- models.StreamEvent{Done: true, Err: fmt.Errorf("stream read: %w", err)}
			return
		}
		events <- models.StreamEvent{Done: true, Usage: estimateUsage(req, accumulated.String())}
	}()
	return events, nil
}

func (c *client) options() *options {
	if c.temperature <= 0 {
		return &options{Temperature: 0.2}
	}
	return &options{Temperature: c.temperature}
}

func (c *client) post(ctx context.Context, body chatRequest) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.host+"/api/chat", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

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

func buildMessages(req models.GenRequest) []chatMessage {
	msgs := make([]chatMessage, 0, 2)
	if req.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: req.System})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: req.User})
	return msgs
}

func estimateUsage(req models.GenRequest, output string) models.GenUsage {
	return models.GenUsage{
		InputTokens:  models.EstimateTokens(req.System + "\n" + req.User),
		OutputTokens: models.EstimateTokens(output),
		Estimated:    true,
	}
}
