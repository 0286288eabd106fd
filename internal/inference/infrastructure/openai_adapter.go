// Package infrastructure provides inference adapter implementations.
package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sony/gobreaker/v2"

	"github.com/qzwhatnext/qzwhatnext/internal/inference/domain"
	shareddomain "github.com/qzwhatnext/qzwhatnext/internal/shared/domain"
)

const systemPrompt = `You classify personal tasks. For each task, propose values for:
category (one of: work, child, family, health, personal, ideas, home, admin, unknown),
estimated_duration (minutes), duration_confidence (0-1), energy_intensity (low, medium, high),
risk_score (0-1, consequence of not doing it), impact_score (0-1, how much it unlocks).
Respond with a JSON object mapping task id to an object mapping attribute name to
{"value": ..., "confidence": 0-1}. Confidence reflects how sure you are. No prose.`

// OpenAIAdapter requests attribute proposals from a chat completion model.
// Calls run behind a circuit breaker and a per-call timeout; any failure
// surfaces as InferenceFailed and the caller falls back to defaults.
type OpenAIAdapter struct {
	client  openai.Client
	model   string
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker[map[uuid.UUID]domain.ProposalSet]
	logger  *slog.Logger
}

// NewOpenAIAdapter creates the production adapter.
func NewOpenAIAdapter(apiKey, model string, timeout time.Duration, logger *slog.Logger) *OpenAIAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker[map[uuid.UUID]domain.ProposalSet](gobreaker.Settings{
		Name:        "inference",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("inference breaker state change", "from", from.String(), "to", to.String())
		},
	})

	return &OpenAIAdapter{
		client:  openai.NewClient(option.WithAPIKey(apiKey)),
		model:   model,
		timeout: timeout,
		breaker: breaker,
		logger:  logger,
	}
}

// Propose implements domain.Adapter.
func (a *OpenAIAdapter) Propose(ctx context.Context, tasks []domain.TaskSnapshot) (map[uuid.UUID]domain.ProposalSet, error) {
	if len(tasks) == 0 {
		return map[uuid.UUID]domain.ProposalSet{}, nil
	}

	result, err := a.breaker.Execute(func() (map[uuid.UUID]domain.ProposalSet, error) {
		callCtx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		return a.call(callCtx, tasks)
	})
	if err != nil {
		return nil, shareddomain.NewKindError(shareddomain.KindInferenceFailed, "inference call failed", err)
	}
	return result, nil
}

func (a *OpenAIAdapter) call(ctx context.Context, tasks []domain.TaskSnapshot) (map[uuid.UUID]domain.ProposalSet, error) {
	var input strings.Builder
	for _, t := range tasks {
		fmt.Fprintf(&input, "id: %s\ntitle: %s\n", t.ID, t.Title)
		if t.Notes != "" {
			fmt.Fprintf(&input, "notes: %s\n", t.Notes)
		}
		if t.Category != "" && t.Category != "unknown" {
			fmt.Fprintf(&input, "category: %s\n", t.Category)
		}
		if t.Duration > 0 {
			fmt.Fprintf(&input, "estimated_duration: %d\n", t.Duration)
		}
		input.WriteString("\n")
	}

	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(input.String()),
		},
		Model: a.model,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty completion response")
	}
	return parseProposals(resp.Choices[0].Message.Content)
}

type wireProposal struct {
	Value      json.RawMessage `json:"value"`
	Confidence float64         `json:"confidence"`
}

func parseProposals(content string) (map[uuid.UUID]domain.ProposalSet, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var wire map[string]map[string]wireProposal
	if err := json.Unmarshal([]byte(content), &wire); err != nil {
		return nil, fmt.Errorf("malformed proposal payload: %w", err)
	}

	out := make(map[uuid.UUID]domain.ProposalSet, len(wire))
	for idStr, attrs := range wire {
		taskID, err := uuid.Parse(idStr)
		if err != nil {
			continue
		}
		set := make(domain.ProposalSet, len(attrs))
		for name, wp := range attrs {
			var value any
			if err := json.Unmarshal(wp.Value, &value); err != nil {
				continue
			}
			set[name] = domain.Proposal{Value: value, Confidence: wp.Confidence}
		}
		out[taskID] = set
	}
	return out, nil
}
