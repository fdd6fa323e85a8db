package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/nfe-auditor/internal/llm"
	"github.com/rezonia/nfe-auditor/internal/model"
	"github.com/rezonia/nfe-auditor/internal/report"
)

type fakeChatter struct {
	reply  string
	err    error
	model  string
	system string
	user   string
	calls  int
}

func (f *fakeChatter) ChatText(_ context.Context, model, system, user string) (string, error) {
	f.calls++
	f.model, f.system, f.user = model, system, user
	return f.reply, f.err
}

func summaryWithFindings() *report.Summary {
	inv := &model.Invoice{
		AccessKey:   "35240112345678000190550010000001231234567890",
		Number:      "123",
		IssuedAt:    time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Issuer:      model.Company{TaxID: "12345678000190", State: "SP"},
		Recipient:   model.Company{TaxID: "98765432000110", State: "PE"},
		CFOP:        "5101",
		OriginState: "SP",
		DestState:   "PE",
		Items: []model.InvoiceItem{
			{Number: 1, NCM: "17011400", CFOP: "5101", Total: decimal.RequireFromString("1000.00")},
		},
		ValidationErrors: []model.ValidationError{
			model.NewValidationError(model.CFOPInternalOnInter, "cfop",
				"CFOP 5101 é de operação interna", "5101", "6101",
				model.WithItem(1), model.WithCorrection("6101")),
			model.NewValidationError(model.PISRateMismatch, "pis_aliquota",
				"Alíquota de PIS 5.00% difere da esperada 1.65%", "5.00", "1.65",
				model.WithItem(1), model.WithImpact(decimal.RequireFromString("33.50")),
				model.WithLegal("Lei nº 10.637/2002", "Art. 2º")),
		},
	}
	return report.NewGenerator().Build(inv)
}

func TestNewClient(t *testing.T) {
	client := llm.NewClient("test-api-key")
	require.NotNil(t, client)
}

func TestNewClient_WithOptions(t *testing.T) {
	client := llm.NewClient("test-api-key",
		llm.WithBaseURL("https://custom.api.com/v1"),
		llm.WithDefaultModel(llm.ModelGPT4o),
		llm.WithTimeout(5*time.Second),
		llm.WithMaxRetries(0),
	)
	require.NotNil(t, client)
}

func TestClient_ChatText(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "openai/gpt-4o-mini",
			"choices": [{
				"index": 0,
				"finish_reason": "stop",
				"message": {"role": "assistant", "content": "[\"Corrigir CFOP\"]"}
			}]
		}`))
	}))
	defer srv.Close()

	client := llm.NewClient("test-api-key", llm.WithBaseURL(srv.URL), llm.WithMaxRetries(0))
	out, err := client.ChatText(context.Background(), "", "system", "user")
	require.NoError(t, err)
	assert.Equal(t, `["Corrigir CFOP"]`, out)

	assert.Equal(t, llm.DefaultModel, got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "user", got.Messages[1].Content)
}

func TestClient_ChatText_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`))
	}))
	defer srv.Close()

	client := llm.NewClient("k", llm.WithBaseURL(srv.URL), llm.WithMaxRetries(0))
	_, err := client.ChatText(context.Background(), "m", "", "user")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestClient_ChatText_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := llm.NewClient("k", llm.WithBaseURL(srv.URL), llm.WithMaxRetries(0))
	_, err := client.ChatText(context.Background(), "m", "", "user")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat completion failed")
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "json code block",
			input:    "Segue a lista:\n```json\n[\"a\", \"b\"]\n```",
			expected: `["a", "b"]`,
		},
		{
			name:     "generic code block",
			input:    "```\n{\"actions\": [\"a\"]}\n```",
			expected: `{"actions": ["a"]}`,
		},
		{
			name:     "raw json object",
			input:    `{"actions": ["a"]}`,
			expected: `{"actions": ["a"]}`,
		},
		{
			name:     "raw json array",
			input:    `["a"]`,
			expected: `["a"]`,
		},
		{
			name:     "array surrounded by text",
			input:    "Ações: [\"a\"] fim.",
			expected: `["a"]`,
		},
		{
			name:     "plain text",
			input:    "  sem json  ",
			expected: "sem json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, llm.ExtractJSON(tt.input))
		})
	}
}

func TestModelConstants(t *testing.T) {
	models := []string{
		llm.ModelClaude35Sonnet,
		llm.ModelClaude3Haiku,
		llm.ModelGPT4oMini,
		llm.ModelGPT4o,
	}
	for _, m := range models {
		assert.Contains(t, m, "/")
	}
	assert.Equal(t, llm.ModelGPT4oMini, llm.DefaultModel)
}

func TestDefaultBaseURL(t *testing.T) {
	assert.True(t, strings.HasPrefix(llm.DefaultBaseURL, "https://"))
}

func TestPromptTemplates(t *testing.T) {
	assert.Contains(t, llm.SystemPromptAuditAdvisor, "PIS/COFINS")
	assert.Contains(t, llm.SystemPromptAuditAdvisor, "array JSON")
	assert.Contains(t, llm.UserPromptAuditAdvice, "%s")
	assert.Contains(t, llm.UserPromptAuditAdvice, "%d")
}

func TestBuildPrompt(t *testing.T) {
	prompt := llm.BuildPrompt(summaryWithFindings(), 3)

	assert.Contains(t, prompt, "35240112345678000190550010000001231234567890")
	assert.Contains(t, prompt, "SP → PE")
	assert.Contains(t, prompt, "REPROVADA")
	assert.Contains(t, prompt, "CFOP_003 item 1")
	assert.Contains(t, prompt, "PIS_002 item 1")
	assert.Contains(t, prompt, "R$ 33,50")
	assert.Contains(t, prompt, "Lei nº 10.637/2002")
	assert.Contains(t, prompt, "no máximo 3 ações")
}

func TestAdvisor_Advise(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		expected []string
	}{
		{
			name:     "array",
			reply:    `["Corrigir CFOP do item 1 para 6101", "Ajustar alíquota de PIS para 1,65%"]`,
			expected: []string{"Corrigir CFOP do item 1 para 6101", "Ajustar alíquota de PIS para 1,65%"},
		},
		{
			name:     "code block",
			reply:    "```json\n[\"Corrigir CFOP\"]\n```",
			expected: []string{"Corrigir CFOP"},
		},
		{
			name:     "wrapped in object",
			reply:    `{"recommendations": ["Corrigir CFOP", "  "]}`,
			expected: []string{"Corrigir CFOP"},
		},
		{
			name:     "portuguese key",
			reply:    `{"acoes": ["Corrigir CFOP"]}`,
			expected: []string{"Corrigir CFOP"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chat := &fakeChatter{reply: tt.reply}
			advisor := llm.NewAdvisor(chat, llm.WithModel(llm.ModelClaude3Haiku))

			actions, err := advisor.Advise(context.Background(), summaryWithFindings())
			require.NoError(t, err)
			assert.Equal(t, tt.expected, actions)
			assert.Equal(t, llm.ModelClaude3Haiku, chat.model)
			assert.Equal(t, llm.SystemPromptAuditAdvisor, chat.system)
		})
	}
}

func TestAdvisor_MaxActions(t *testing.T) {
	chat := &fakeChatter{reply: `["a", "b", "c"]`}
	advisor := llm.NewAdvisor(chat, llm.WithMaxActions(2))

	actions, err := advisor.Advise(context.Background(), summaryWithFindings())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, actions)
	assert.Contains(t, chat.user, "no máximo 2 ações")
}

func TestAdvisor_NoFindings(t *testing.T) {
	chat := &fakeChatter{}
	s := report.NewGenerator().Build(&model.Invoice{AccessKey: "1"})

	actions, err := llm.NewAdvisor(chat).Advise(context.Background(), s)
	require.NoError(t, err)
	assert.Empty(t, actions)
	assert.Zero(t, chat.calls)
}

func TestAdvisor_Errors(t *testing.T) {
	t.Run("chat failure", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := llm.NewAdvisor(&fakeChatter{err: boom}).Advise(context.Background(), summaryWithFindings())
		assert.ErrorIs(t, err, boom)
	})

	t.Run("unparseable reply", func(t *testing.T) {
		_, err := llm.NewAdvisor(&fakeChatter{reply: "não sei"}).Advise(context.Background(), summaryWithFindings())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse LLM response")
	})

	t.Run("object without actions", func(t *testing.T) {
		_, err := llm.NewAdvisor(&fakeChatter{reply: `{"other": 1}`}).Advise(context.Background(), summaryWithFindings())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no actions found")
	})
}

func BenchmarkExtractJSON(b *testing.B) {
	input := "Resposta:\n```json\n[\"Corrigir CFOP do item 1\", \"Ajustar PIS\"]\n```"
	for i := 0; i < b.N; i++ {
		llm.ExtractJSON(input)
	}
}
