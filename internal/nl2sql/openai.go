package nl2sql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

type OpenAITranslator struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	client      *http.Client
}

func NewOpenAITranslator(cfg OpenAIConfig) (*OpenAITranslator, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-4"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &OpenAITranslator{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       model,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: timeout},
	}, nil
}

func (t *OpenAITranslator) Translate(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.Question) == "" {
		return Result{}, generationError("question is empty", nil)
	}
	body, err := json.Marshal(buildOpenAIPayload(t.model, t.temperature, req))
	if err != nil {
		return Result{}, generationError("marshal chat payload", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Result{}, generationError("build chat request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return Result{}, generationError("request chat completion", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, generationError("read chat response body", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return Result{}, generationError("language model rate limit exceeded", fmt.Errorf("status=%d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return Result{}, generationError("chat completion failed", fmt.Errorf("status=%d body=%s", resp.StatusCode, string(rawRespBody)))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return Result{}, generationError("decode chat completion response", err)
	}
	if len(parsed.Choices) == 0 {
		return Result{}, generationError("empty chat completion choices", nil)
	}

	sql, err := ExtractSQL(parsed.Choices[0].Message.Content)
	if err != nil {
		return Result{}, err
	}
	return Result{
		SQL:      sql,
		Provider: "openai-compatible",
		Model:    t.model,
	}, nil
}

func buildOpenAIPayload(model string, temperature float64, req Request) map[string]any {
	return map[string]any{
		"model": model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": BuildPrompt(req)},
		},
		"temperature": temperature,
	}
}

var (
	fencedBlockPattern = regexp.MustCompile("(?s)```[a-zA-Z]*[ \t]*\r?\n(.*?)```")
	inlineFencePattern = regexp.MustCompile("(?s)```(.*?)```")
	sqlLabelPattern    = regexp.MustCompile(`(?i)^sql\s*:\s*`)
)

// ExtractSQL pulls a single SQL statement out of a model completion. A fenced
// code block wins over surrounding prose; an unterminated opening fence is
// stripped as well.
func ExtractSQL(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if match := fencedBlockPattern.FindStringSubmatch(trimmed); match != nil {
		trimmed = match[1]
	} else if match := inlineFencePattern.FindStringSubmatch(trimmed); match != nil {
		trimmed = match[1]
	} else if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```")
	}
	trimmed = strings.TrimSpace(trimmed)
	trimmed = strings.TrimSpace(sqlLabelPattern.ReplaceAllString(trimmed, ""))
	if trimmed == "" {
		return "", generationError("model returned empty SQL", nil)
	}
	return trimmed, nil
}
