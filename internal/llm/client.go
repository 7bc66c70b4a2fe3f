package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"
)

// Environment variable constants for model configuration
const (
	EnvAPIBase     = "DOCSMITH_LLM_API_URL" // e.g., "https://api.deepseek.com/v1"
	EnvModel       = "DOCSMITH_LLM_MODEL"   // e.g., "deepseek-chat"
	EnvAPIKey      = "DOCSMITH_LLM_API_KEY" // API key for the provider
	EnvMaxTokens   = "DOCSMITH_LLM_MAX_TOKENS"
	EnvTemperature = "DOCSMITH_LLM_TEMPERATURE"
	EnvTimeout     = "DOCSMITH_LLM_TIMEOUT"   // seconds
	EnvRateLimit   = "DOCSMITH_LLM_RATE_RPS"  // sustained requests per second
)

// Default model configuration values
const (
	DefaultMaxTokens   = 8192
	DefaultTemperature = 0.3
	DefaultTimeout     = 240
	DefaultRateRPS     = 2.0
)

// Client wraps an OpenAI-compatible chat completion endpoint. All generation
// and restructuring stages share one client so rate limiting applies globally.
type Client struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
	limiter     *rate.Limiter
}

// IsConfigured checks if the required environment variables are set
func IsConfigured() bool {
	return os.Getenv(EnvAPIBase) != "" && os.Getenv(EnvModel) != "" && os.Getenv(EnvAPIKey) != ""
}

// NewClient creates a model client from environment configuration
func NewClient() (*Client, error) {
	baseURL := os.Getenv(EnvAPIBase)
	model := os.Getenv(EnvModel)
	apiKey := os.Getenv(EnvAPIKey)

	if baseURL == "" || model == "" || apiKey == "" {
		return nil, fmt.Errorf("model environment variables not configured: required %s, %s, %s",
			EnvAPIBase, EnvModel, EnvAPIKey)
	}

	maxTokens := getEnvInt(EnvMaxTokens, DefaultMaxTokens)
	temperature := getEnvFloat(EnvTemperature, DefaultTemperature)
	timeout := time.Duration(getEnvInt(EnvTimeout, DefaultTimeout)) * time.Second
	rps := getEnvFloat(EnvRateLimit, DefaultRateRPS)

	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithBaseURL(baseURL)}
	client := openai.NewClient(opts...)

	return &Client{
		client:      &client,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		timeout:     timeout,
		limiter:     rate.NewLimiter(rate.Limit(rps), 1),
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// Chat sends a prompt (with optional system context) and returns the raw text
// of the first completion choice.
func (c *Client) Chat(ctx context.Context, prompt, systemContext string) (string, error) {
	return c.complete(ctx, prompt, systemContext, false)
}

// ChatJSON sends a prompt requiring a JSON object response and unmarshals the
// result into out. Providers that ignore response_format and wrap the object
// in prose are tolerated via embedded-object extraction.
func (c *Client) ChatJSON(ctx context.Context, prompt, systemContext string, out any) error {
	text, err := c.complete(ctx, prompt, systemContext, true)
	if err != nil {
		return err
	}

	jsonStr, ok := ExtractJSONObject(text)
	if !ok {
		return fmt.Errorf("model response contains no JSON object")
	}

	if err := json.Unmarshal([]byte(jsonStr), out); err != nil {
		return fmt.Errorf("failed to parse model JSON response: %w", err)
	}
	return nil
}

func (c *Client) complete(ctx context.Context, prompt, systemContext string, expectJSON bool) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter interrupted: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var messages []openai.ChatCompletionMessageParamUnion
	if systemContext != "" {
		messages = append(messages, openai.SystemMessage(systemContext))
	}
	messages = append(messages, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   openai.Int(int64(c.maxTokens)),
		Temperature: openai.Float(c.temperature),
	}
	if expectJSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		}
	}

	response, err := c.client.Chat.Completions.New(reqCtx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("model API returned status %d: %s", apiErr.StatusCode, apiErr.Message)
		}
		return "", fmt.Errorf("model request failed: %w", err)
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response choices returned from model")
	}

	return response.Choices[0].Message.Content, nil
}

// ExtractJSONObject returns the outermost JSON object embedded in text. Models
// occasionally wrap JSON-mode output in markdown fences or commentary.
func ExtractJSONObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(envVar string, defaultValue int) int {
	if value := os.Getenv(envVar); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float environment variable with a default value
func getEnvFloat(envVar string, defaultValue float64) float64 {
	if value := os.Getenv(envVar); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
