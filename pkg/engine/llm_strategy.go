package engine

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"tradeloop/pkg/llm"
	"tradeloop/pkg/market"
	"tradeloop/pkg/prompt"
)

//go:embed llm_signal.tmpl
var defaultSignalPrompt string

const llmPromptPeriods = 30

const llmSystemPrompt = "You return trading signals as strict JSON. Never add prose outside the object."

type llmDecision struct {
	Signal string `json:"signal"`
	Reason string `json:"reason"`
}

// llmStrategy asks a chat model for a signal on every closed period.
type llmStrategy struct {
	client llm.Chatter
	tmpl   *prompt.Template
}

func newLLMStrategy(deps StrategyDeps) (Strategy, error) {
	if deps.LLM == nil {
		return nil, errors.New("engine: llm strategy requires an llm client")
	}
	var (
		tmpl *prompt.Template
		err  error
	)
	if path := strings.TrimSpace(deps.PromptTemplate); path != "" {
		tmpl, err = prompt.Load(path, nil)
	} else {
		tmpl, err = prompt.Parse("llm_signal.tmpl", defaultSignalPrompt, nil)
	}
	if err != nil {
		return nil, err
	}
	logx.Infof("engine: llm strategy prompt digest=%s", tmpl.Digest())
	return &llmStrategy{client: deps.LLM, tmpl: tmpl}, nil
}

func (s *llmStrategy) Name() string { return "llm" }

func (s *llmStrategy) Calculate(View) map[string]float64 { return nil }

func (s *llmStrategy) OnPeriod(ctx context.Context, view View) (market.Side, error) {
	if view.Backfill || len(view.Lookback) == 0 {
		return "", nil
	}
	periods := view.Lookback
	if len(periods) > llmPromptPeriods {
		periods = periods[:llmPromptPeriods]
	}
	var indicators map[string]float64
	if view.Current != nil {
		indicators = view.Current.Indicators
	}
	text, err := s.tmpl.Render(map[string]any{
		"Selector":   view.Selector.Normalized,
		"Price":      view.Price,
		"Indicators": indicators,
		"Periods":    periods,
	})
	if err != nil {
		return "", err
	}

	var decision llmDecision
	msgs := []llm.Message{
		{Role: "system", Content: llmSystemPrompt},
		{Role: "user", Content: text},
	}
	if err := s.client.ChatJSON(ctx, msgs, &decision); err != nil {
		return "", fmt.Errorf("engine: llm signal: %w", err)
	}
	logx.WithContext(ctx).Debugf("engine: llm signal=%s reason=%s", decision.Signal, decision.Reason)
	switch strings.ToLower(strings.TrimSpace(decision.Signal)) {
	case "buy":
		return market.SideBuy, nil
	case "sell":
		return market.SideSell, nil
	default:
		return "", nil
	}
}

func init() {
	RegisterStrategy("llm", newLLMStrategy)
}
