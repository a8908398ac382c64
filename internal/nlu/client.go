package nlu

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"tradeid-bot/internal/metrics"

	openai "github.com/sashabaranov/go-openai"
)

// Intent labels the resolver may return.
const (
	IntentNewID             = "new_id"
	IntentPlatformSelection = "platform_selection"
	IntentNameProvided      = "name_provided"
	IntentGreeting          = "greeting"
	IntentGeneral           = "general"
)

// Context summarises the client's conversational position for the resolver.
type Context struct {
	State            string
	ClientName       string
	SelectedPlatform string
	WhatsAppNumber   string
	RecentTurns      []Turn
}

// Turn is one prior exchange, newest first.
type Turn struct {
	Direction string
	Content   string
}

// Guess is the resolver's structured output. It is advisory: the
// conversation engine gates every state write through its own deterministic
// rules.
type Guess struct {
	Response          string `json:"response"`
	DetectedIntent    string `json:"detected_intent"`
	ExtractedPlatform string `json:"extracted_platform"`
	ExtractedName     string `json:"extracted_name"`
	NewState          string `json:"new_state"`
}

// Config holds resolver client configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client calls an OpenAI-compatible chat completions gateway to classify
// free-text messages.
type Client struct {
	api     *openai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates a resolver client.
func New(cfg Config, logger *slog.Logger, metricRegistry *metrics.Metrics) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	model := cfg.Model
	if model == "" {
		model = "google/gemini-2.5-flash"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		api:     openai.NewClientWithConfig(apiCfg),
		model:   model,
		timeout: timeout,
		logger:  logger.With("component", "nlu"),
		metrics: metricRegistry,
	}
}

const systemPrompt = `You are the official WhatsApp onboarding engine for a trading platform called TradeID.
Your job is to:
1. Detect when the user wants a new trading ID.
2. Guide them step-by-step through platform selection -> name -> UPI payment.
3. Keep messages short, clear, professional with emojis.
4. Never skip steps.
5. Never send trading IDs automatically - only admins create account credentials.

Available platforms:
1. XYZ Options
2. ABC Index
3. Binex
4. Quotex Pro
5. Platform 5
6. Platform 6

State machine:
- awaiting_platform_selection: User needs to select a platform
- awaiting_client_name: User needs to provide their name
- awaiting_payment: User needs to make payment
- payment_received: Payment confirmed, waiting for admin
- admin_processing: Admin is creating the account
- completed: Account created and credentials sent

You must respond in JSON format with:
{
  "response": "Your message to the user",
  "detected_intent": "new_id" | "platform_selection" | "name_provided" | "general" | "greeting",
  "extracted_platform": "platform name if detected" | null,
  "extracted_name": "user name if detected" | null,
  "new_state": "new state" | null
}`

var jsonBlock = regexp.MustCompile(`(?s)\{.*\}`)

// Resolve classifies the message against the conversational context. The
// returned guess may be wrong or incomplete; callers must not let it drive a
// state write directly.
func (c *Client) Resolve(ctx context.Context, message string, convoCtx Context) (*Guess, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildContextPrompt(message, convoCtx)},
		},
		Temperature: 0.7,
	})
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.metrics.IntentRequests.WithLabelValues(status).Inc()
	c.metrics.IntentLatency.WithLabelValues(status).Observe(time.Since(started).Seconds())

	if err != nil {
		return nil, fmt.Errorf("intent resolver request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("intent resolver returned no choices")
	}

	content := resp.Choices[0].Message.Content
	if match := jsonBlock.FindString(content); match != "" {
		var guess Guess
		if err := json.Unmarshal([]byte(match), &guess); err == nil {
			if guess.DetectedIntent == "" {
				guess.DetectedIntent = IntentGeneral
			}
			return &guess, nil
		}
		c.logger.Warn("intent resolver returned unparseable json", "content_len", len(content))
	}

	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("intent resolver returned empty content")
	}

	// Free-text answer without the JSON envelope: usable as a reply, but
	// carries no structured guess.
	return &Guess{
		Response:       content,
		DetectedIntent: IntentGeneral,
	}, nil
}

func buildContextPrompt(message string, convoCtx Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current conversation state: %s\n", convoCtx.State)
	fmt.Fprintf(&b, "Client name: %s\n", orDefault(convoCtx.ClientName, "Not provided"))
	fmt.Fprintf(&b, "Selected platform: %s\n", orDefault(convoCtx.SelectedPlatform, "Not selected"))

	if len(convoCtx.RecentTurns) > 0 {
		b.WriteString("\nRecent conversation, newest first:\n")
		for _, turn := range convoCtx.RecentTurns {
			fmt.Fprintf(&b, "- [%s] %s\n", turn.Direction, turn.Content)
		}
	}

	fmt.Fprintf(&b, "\nUser message: %q\n\n", message)
	b.WriteString("Based on the current state and user message, provide the appropriate response.")
	return b.String()
}

func orDefault(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}
