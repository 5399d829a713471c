// Package assistant is the conversational facade: keyword intent routing
// with canned replies, an optional LLM path and keyword sentiment.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/opensource-finance/quantra/internal/domain"
	"github.com/opensource-finance/quantra/internal/metrics"
	"github.com/opensource-finance/quantra/internal/model"
	"github.com/opensource-finance/quantra/internal/scoring"
)

// capLLM names the LLM capability in logs and metrics.
const capLLM = "llm"

// Intents.
const (
	IntentFraud    = "fraud"
	IntentForecast = "forecast"
	IntentHelp     = "help"
	IntentGeneral  = "general"
)

const systemPrompt = "You are a financial risk assistant. You help users understand fraud alerts, " +
	"transaction analysis, spending forecasts and risk assessments. Answer briefly."

var intents = []struct {
	name     string
	keywords []string
	reply    string
}{
	{
		name:     IntentFraud,
		keywords: []string{"fraud", "flagged", "suspicious"},
		reply:    "I can help you understand fraud detection. Please provide your user ID for specific information about your account.",
	},
	{
		name:     IntentForecast,
		keywords: []string{"forecast", "prediction", "spending"},
		reply:    "I can help you generate spending or income forecasts. Would you like me to create a 3-month forecast?",
	},
	{
		name:     IntentHelp,
		keywords: []string{"help", "what can you do"},
		reply: `I can help you with:
- Fraud detection and explanation
- Transaction analysis
- Spending forecasts
- Risk assessment
- Answer questions about flagged transactions

What would you like to know?`,
	},
}

const generalReply = "I can help you analyze your transactions, detect fraud, and generate forecasts. What would you like to know?"

// Completer produces a chat completion.
type Completer interface {
	Complete(ctx context.Context, system, message string) (string, error)
}

// ChatReply is the answer to one chat message.
type ChatReply struct {
	Message   string             `json:"message"`
	Intent    string             `json:"intent"`
	Timestamp time.Time          `json:"timestamp"`
	UserID    string             `json:"userId,omitempty"`
	Context   map[string]any     `json:"context,omitempty"`
	Source    domain.ScoreSource `json:"source"`
}

// Sentiment is the keyword sentiment of a message.
type Sentiment struct {
	Label string  `json:"sentiment"`
	Score float64 `json:"score"`
}

// Assistant answers chat messages. It is safe for concurrent use.
type Assistant struct {
	llm domain.Capability[Completer]
	now func() time.Time
}

// New creates an assistant around an optional completer.
func New(llm domain.Capability[Completer]) *Assistant {
	return &Assistant{llm: llm, now: time.Now}
}

// NewFromConfig wires the LLM path when both endpoint and key are set.
func NewFromConfig(cfg domain.AssistantConfig, breaker domain.BreakerConfig) *Assistant {
	if cfg.LLMURL == "" || cfg.LLMKey == "" {
		return New(domain.Absent[Completer]())
	}
	client := model.NewRemoteClient(capLLM, cfg.LLMURL, time.Duration(cfg.Timeout)*time.Second, breaker,
		model.WithBearerToken(cfg.LLMKey))
	return New(domain.Present[Completer](NewChatCompleter(client, cfg.LLMModel)))
}

// Available reports whether the LLM path is configured.
func (a *Assistant) Available() bool {
	return a.llm.Available()
}

// Reply answers a message. The LLM is used when configured; without it, or
// when it fails, the canned reply for the detected intent is returned.
func (a *Assistant) Reply(ctx context.Context, message, userID string, chatContext map[string]any) ChatReply {
	intent, canned := Route(message)
	reply := ChatReply{
		Message:   canned,
		Intent:    intent,
		Timestamp: a.now().UTC(),
		UserID:    userID,
		Context:   chatContext,
		Source:    domain.SourceRules,
	}

	llm, ok := a.llm.Get()
	if !ok {
		return reply
	}

	text, err := llm.Complete(ctx, systemPrompt, message)
	if err != nil || strings.TrimSpace(text) == "" {
		slog.WarnContext(ctx, "llm reply failed, using canned reply",
			"capability", capLLM,
			"intent", intent,
			"error", err,
		)
		metrics.Fallback(capLLM, scoring.ReasonInferenceError)
		return reply
	}

	reply.Message = strings.TrimSpace(text)
	reply.Source = domain.SourceModel
	return reply
}

// Complete sends the message straight to the LLM. Without an endpoint and
// key it fails with domain.ErrConfiguration.
func (a *Assistant) Complete(ctx context.Context, message string) (string, error) {
	llm, ok := a.llm.Get()
	if !ok {
		return "", fmt.Errorf("%w: llm endpoint or key not set", domain.ErrConfiguration)
	}
	text, err := llm.Complete(ctx, systemPrompt, message)
	if err != nil {
		return "", &domain.InferenceError{Capability: capLLM, Err: err}
	}
	return text, nil
}

// Route returns the intent of a message and its canned reply.
func Route(message string) (string, string) {
	lower := strings.ToLower(strings.TrimSpace(message))
	for _, in := range intents {
		for _, kw := range in.keywords {
			if strings.Contains(lower, kw) {
				return in.name, in.reply
			}
		}
	}
	return IntentGeneral, generalReply
}

var (
	positiveWords = []string{"good", "great", "excellent", "helpful", "thanks"}
	negativeWords = []string{"bad", "wrong", "error", "problem", "issue"}
)

// AnalyzeSentiment scores a message by counting positive and negative keywords.
func AnalyzeSentiment(message string) Sentiment {
	lower := strings.ToLower(message)
	pos, neg := count(lower, positiveWords), count(lower, negativeWords)
	switch {
	case pos > neg:
		return Sentiment{Label: "positive", Score: 0.7}
	case neg > pos:
		return Sentiment{Label: "negative", Score: 0.3}
	default:
		return Sentiment{Label: "neutral", Score: 0.5}
	}
}

func count(s string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(s, w) {
			n++
		}
	}
	return n
}
