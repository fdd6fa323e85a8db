package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rezonia/nfe-auditor/internal/decimal"
	"github.com/rezonia/nfe-auditor/internal/report"
)

// Chatter sends one text chat exchange. *Client implements it.
type Chatter interface {
	ChatText(ctx context.Context, model, systemPrompt, userPrompt string) (string, error)
}

// Advisor asks a language model for corrective actions on a report
type Advisor struct {
	chat       Chatter
	model      string
	maxActions int
}

// AdvisorOption configures the advisor
type AdvisorOption func(*Advisor)

// WithModel selects the model, overriding the client default
func WithModel(model string) AdvisorOption {
	return func(a *Advisor) {
		a.model = model
	}
}

// WithMaxActions bounds the number of actions requested
func WithMaxActions(n int) AdvisorOption {
	return func(a *Advisor) {
		if n > 0 {
			a.maxActions = n
		}
	}
}

// NewAdvisor creates an advisor over chat
func NewAdvisor(chat Chatter, opts ...AdvisorOption) *Advisor {
	a := &Advisor{chat: chat, maxActions: 5}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Advise returns prioritized corrective actions for s. Reports without
// findings are answered locally with no actions.
func (a *Advisor) Advise(ctx context.Context, s *report.Summary) ([]string, error) {
	if s.ValidationSummary.TotalErrors == 0 {
		return []string{}, nil
	}

	resp, err := a.chat.ChatText(ctx, a.model, SystemPromptAuditAdvisor, BuildPrompt(s, a.maxActions))
	if err != nil {
		return nil, err
	}

	actions, err := parseActions(resp)
	if err != nil {
		return nil, err
	}
	if len(actions) > a.maxActions {
		actions = actions[:a.maxActions]
	}
	return actions, nil
}

// BuildPrompt renders the findings of s into the user prompt
func BuildPrompt(s *report.Summary, maxActions int) string {
	var findings strings.Builder
	for i, e := range s.Errors {
		fmt.Fprintf(&findings, "%d. [%s] %s", i+1, e.Severity, e.Code)
		if e.HasItem() {
			fmt.Fprintf(&findings, " item %d", e.Item())
		}
		fmt.Fprintf(&findings, " campo %s: %s (encontrado %q, esperado %q)",
			e.Field, e.Message, e.ActualValue, e.ExpectedValue)
		if e.FinancialImpact.Valid {
			fmt.Fprintf(&findings, " impacto %s", decimal.FormatBRL(e.Impact()))
		}
		if e.LegalReference != "" {
			fmt.Fprintf(&findings, " base legal %s", e.LegalReference)
		}
		findings.WriteByte('\n')
	}

	n := s.NFeInfo
	vs := s.ValidationSummary
	return fmt.Sprintf(UserPromptAuditAdvice,
		n.AccessKey, n.Operation.Origin, n.Operation.Dest, n.Operation.Type,
		vs.Status, vs.TotalErrors, vs.BySeverity.Critical, vs.BySeverity.Error, vs.BySeverity.Warning,
		decimal.FormatBRL(vs.FinancialImpact.Total),
		findings.String(), maxActions)
}

func parseActions(resp string) ([]string, error) {
	raw := ExtractJSON(resp)

	var actions []string
	if err := json.Unmarshal([]byte(raw), &actions); err == nil {
		return clean(actions), nil
	}

	// some models wrap the list in an object
	var wrapped struct {
		Actions         []string `json:"actions"`
		Recommendations []string `json:"recommendations"`
		Acoes           []string `json:"acoes"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapped); err != nil {
		return nil, fmt.Errorf("failed to parse LLM response: %w", err)
	}
	for _, list := range [][]string{wrapped.Actions, wrapped.Recommendations, wrapped.Acoes} {
		if len(list) > 0 {
			return clean(list), nil
		}
	}
	return nil, fmt.Errorf("failed to parse LLM response: no actions found")
}

func clean(actions []string) []string {
	out := make([]string, 0, len(actions))
	for _, a := range actions {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}
