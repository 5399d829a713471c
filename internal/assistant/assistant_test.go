package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/quantra/internal/domain"
)

func llmServer(t *testing.T, status int, reply string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		require.Len(t, req.Messages, 2)

		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": reply}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func configured(url string) domain.AssistantConfig {
	return domain.AssistantConfig{LLMURL: url, LLMKey: "secret", LLMModel: "test-model", Timeout: 2}
}

func TestRoute(t *testing.T) {
	tests := []struct {
		message string
		intent  string
	}{
		{"Why was my payment FLAGGED?", IntentFraud},
		{"show me a spending prediction", IntentForecast},
		{"What can you do", IntentHelp},
		{"hello", IntentGeneral},
		{"", IntentGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			intent, reply := Route(tt.message)
			assert.Equal(t, tt.intent, intent)
			assert.NotEmpty(t, reply)
		})
	}
}

func TestReply(t *testing.T) {
	ctx := context.Background()

	t.Run("Canned", func(t *testing.T) {
		a := NewFromConfig(domain.AssistantConfig{}, domain.BreakerConfig{})
		assert.False(t, a.Available())

		reply := a.Reply(ctx, "is this fraud?", "u1", map[string]any{"page": "alerts"})
		assert.Equal(t, IntentFraud, reply.Intent)
		assert.Equal(t, domain.SourceRules, reply.Source)
		assert.Equal(t, "u1", reply.UserID)
		assert.Contains(t, reply.Message, "fraud detection")
		assert.False(t, reply.Timestamp.IsZero())
	})

	t.Run("LLM", func(t *testing.T) {
		srv := llmServer(t, http.StatusOK, "  It looks fine.  ")
		a := NewFromConfig(configured(srv.URL), domain.BreakerConfig{})
		reply := a.Reply(ctx, "hello", "", nil)
		assert.Equal(t, "It looks fine.", reply.Message)
		assert.Equal(t, domain.SourceModel, reply.Source)
	})

	t.Run("LLMFailureFallsBack", func(t *testing.T) {
		srv := llmServer(t, http.StatusInternalServerError, "")
		a := NewFromConfig(configured(srv.URL), domain.BreakerConfig{})
		reply := a.Reply(ctx, "hello", "", nil)
		assert.Equal(t, generalReply, reply.Message)
		assert.Equal(t, domain.SourceRules, reply.Source)
	})
}

func TestComplete(t *testing.T) {
	ctx := context.Background()

	t.Run("NotConfigured", func(t *testing.T) {
		a := NewFromConfig(domain.AssistantConfig{LLMURL: "http://localhost"}, domain.BreakerConfig{})
		_, err := a.Complete(ctx, "hi")
		assert.ErrorIs(t, err, domain.ErrConfiguration)
	})

	t.Run("Configured", func(t *testing.T) {
		srv := llmServer(t, http.StatusOK, "hi there")
		a := NewFromConfig(configured(srv.URL), domain.BreakerConfig{})
		text, err := a.Complete(ctx, "hi")
		require.NoError(t, err)
		assert.Equal(t, "hi there", text)
	})

	t.Run("Failure", func(t *testing.T) {
		srv := llmServer(t, http.StatusBadGateway, "")
		a := NewFromConfig(configured(srv.URL), domain.BreakerConfig{})
		_, err := a.Complete(ctx, "hi")
		assert.ErrorIs(t, err, domain.ErrInference)
	})
}

func TestAnalyzeSentiment(t *testing.T) {
	assert.Equal(t, Sentiment{Label: "positive", Score: 0.7}, AnalyzeSentiment("Thanks, that was helpful"))
	assert.Equal(t, Sentiment{Label: "negative", Score: 0.3}, AnalyzeSentiment("there is a problem with this error"))
	assert.Equal(t, Sentiment{Label: "neutral", Score: 0.5}, AnalyzeSentiment("good but wrong"))
	assert.Equal(t, Sentiment{Label: "neutral", Score: 0.5}, AnalyzeSentiment("ok"))
}
