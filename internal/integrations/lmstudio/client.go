package lmstudio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"little-giant/internal/domain"
)

const (
	DefaultBaseURL     = "http://localhost:1234"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = -1
	DefaultTimeout     = 60 * time.Second
)

// chatRequest is the request shape of the OpenAI-compatible chat endpoint.
type chatRequest struct {
	Model       string               `json:"model"`
	Messages    []domain.ChatMessage `json:"messages"`
	Temperature float64              `json:"temperature"`
	MaxTokens   int                  `json:"max_tokens"`
	Stream      bool                 `json:"stream"`
}

// Completion is the assistant text of one chat call plus usage metadata.
type Completion struct {
	Content string       `json:"content"`
	Usage   domain.Usage `json:"usage"`
}

// Config is what the client needs from the settings store.
type Config struct {
	BaseURL     string
	Model       string
	// Temperature is nil for the default; an explicit zero is sent as is.
	Temperature *float64
	MaxTokens   int
	Timeout     time.Duration
}

// Client is a focused client for a local OpenAI-compatible inference server
// such as LM Studio. It never retries.
type Client struct {
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// New builds a Client. Zero config fields fall back to the package defaults.
func New(cfg Config, opts ...Option) (*Client, error) {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, errors.New("lmstudio: model must not be empty")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("lmstudio: base URL %q must be http(s)", baseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	temperature := DefaultTemperature
	if cfg.Temperature != nil {
		temperature = *cfg.Temperature
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}
	c := &Client{
		baseURL:     baseURL,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		httpClient:  &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Model returns the configured model id.
func (c *Client) Model() string { return c.model }

// BaseURL returns the configured server root.
func (c *Client) BaseURL() string { return c.baseURL }

func endpoint(baseURL, path string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if strings.HasSuffix(base, "/v1") {
		return base + path
	}
	return base + "/v1" + path
}

func chatURL(baseURL string) string { return endpoint(baseURL, "/chat/completions") }

func modelsURL(baseURL string) string { return endpoint(baseURL, "/models") }

// Chat sends the full ordered conversation as one request.
func (c *Client) Chat(ctx context.Context, messages []domain.ChatMessage) (Completion, error) {
	if messages == nil {
		messages = []domain.ChatMessage{}
	}
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Stream:      false,
	})
	if err != nil {
		return Completion{}, fmt.Errorf("lmstudio: marshal request: %w", err)
	}

	url := chatURL(c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Completion{}, fmt.Errorf("lmstudio: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	raw, err := c.do(req, url)
	if err != nil {
		return Completion{}, err
	}
	return parseCompletion(raw)
}

// parseCompletion extracts choices[0].message.content and usage.
func parseCompletion(raw []byte) (Completion, error) {
	if !gjson.ValidBytes(raw) {
		return Completion{}, &ProtocolError{Reason: "response is not JSON"}
	}
	parsed := gjson.ParseBytes(raw)
	msg := parsed.Get("choices.0.message")
	if !msg.Exists() || !msg.IsObject() {
		return Completion{}, &ProtocolError{Reason: "missing choices[0].message"}
	}
	content := msg.Get("content")
	if content.Exists() && content.Type != gjson.String && content.Type != gjson.Null {
		return Completion{}, &ProtocolError{Reason: "choices[0].message.content is not a string"}
	}

	out := Completion{Content: content.String()}
	if usage := parsed.Get("usage"); usage.IsObject() {
		if err := json.Unmarshal([]byte(usage.Raw), &out.Usage); err != nil {
			return Completion{}, &ProtocolError{Reason: "decode usage", Err: err}
		}
	}
	return out, nil
}

// TestConnection probes the models endpoint.
func (c *Client) TestConnection(ctx context.Context) (bool, error) {
	if _, err := c.Models(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Models lists the model ids served by the backend.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	url := modelsURL(c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("lmstudio: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	raw, err := c.do(req, url)
	if err != nil {
		return nil, err
	}
	var ids []string
	gjson.GetBytes(raw, "data.#.id").ForEach(func(_, id gjson.Result) bool {
		ids = append(ids, id.String())
		return true
	})
	return ids, nil
}

func (c *Client) do(req *http.Request, url string) ([]byte, error) {
	res, err := c.resolvedHTTPClient().Do(req)
	if err != nil {
		return nil, &ConnectionError{URL: url, Err: err}
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &ConnectionError{
			URL:        url,
			StatusCode: res.StatusCode,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return nil, &ConnectionError{URL: url, Err: fmt.Errorf("read response body: %w", err)}
	}
	return buf, nil
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: DefaultTimeout}
}
