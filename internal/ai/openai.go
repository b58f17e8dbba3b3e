package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/khanhnv2901/secora/internal/shared/constants"
)

const (
	defaultEndpoint = "https://api.openai.com/v1/chat/completions"
	defaultModel    = "gpt-4o-mini"
	noSummary       = "No summary available."
)

const systemPrompt = `You are a senior application security engineer.
Return SHORT, practical, production-ready guidance. Prefer secure defaults and defense-in-depth.
If something is already secure, say so quickly.`

// OpenAIClient calls an OpenAI-compatible chat completions endpoint in JSON mode.
type OpenAIClient struct {
	endpoint    string
	model       string
	apiKey      string
	temperature float64
	client      *http.Client
	logger      *zap.Logger
}

// NewOpenAIClient builds a client from cfg, filling in the public endpoint and model.
func NewOpenAIClient(cfg Config) *OpenAIClient {
	c := &OpenAIClient{
		endpoint:    cfg.Endpoint,
		model:       cfg.Model,
		apiKey:      cfg.APIKey,
		temperature: 0.2,
		client:      &http.Client{Timeout: cfg.Timeout},
		logger:      cfg.Logger,
	}
	if c.endpoint == "" {
		c.endpoint = defaultEndpoint
	}
	if c.model == "" {
		c.model = defaultModel
	}
	if c.client.Timeout <= 0 {
		c.client.Timeout = constants.AITimeout
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Temperature    float64           `json:"temperature"`
	Messages       []chatMessage     `json:"messages"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate asks the model for a summary and prioritized actions.
func (c *OpenAIClient) Generate(ctx context.Context, in Input) (Recommendations, error) {
	prompt, err := userPrompt(in)
	if err != nil {
		return Recommendations{}, err
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return Recommendations{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Recommendations{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return Recommendations{}, fmt.Errorf("call %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Recommendations{}, fmt.Errorf("read response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Recommendations{}, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 400 {
		msg := http.StatusText(resp.StatusCode)
		if parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		return Recommendations{}, fmt.Errorf("model endpoint returned %d: %s", resp.StatusCode, msg)
	}

	content := "{}"
	if len(parsed.Choices) > 0 {
		if s := strings.TrimSpace(parsed.Choices[0].Message.Content); s != "" {
			content = s
		}
	}
	c.logger.Debug("recommendations generated", zap.String("model", c.model), zap.Int("bytes", len(content)))
	return parseContent(content), nil
}

// parseContent accepts the model's JSON; text that is not JSON becomes the summary.
func parseContent(content string) Recommendations {
	var out Recommendations
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return Recommendations{Summary: content, Items: []Recommendation{}}
	}
	if out.Summary == "" {
		out.Summary = noSummary
	}
	if out.Items == nil {
		out.Items = []Recommendation{}
	}
	return out
}

func userPrompt(in Input) (string, error) {
	headers, err := json.MarshalIndent(in.Headers, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode headers: %w", err)
	}
	findings, err := json.MarshalIndent(in.Findings, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode findings: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Target: %s\n\n", in.Target)
	fmt.Fprintf(&b, "HTTP Headers:\n%s\n\n", headers)
	fmt.Fprintf(&b, "Findings (from static checks):\n%s\n\n", findings)
	b.WriteString(`TASKS:
1) Write a short summary (2-4 sentences) of the overall risk posture.
2) Produce a prioritized list of concrete actions. For each action, include:
   - title
   - explanation (what's wrong / impact)
   - remediation (exact header value or code/config snippet, be concise)
   - severity (Critical | High | Medium | Low)
   - eta (time to fix, e.g., "15m", "1h", "1d")

Output STRICT JSON:
{
  "summary": "string",
  "items": [
    {"title":"...", "explanation":"...", "remediation":"...", "severity":"High", "eta":"1h"}
  ]
}
`)
	return b.String(), nil
}
