package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	sdk "github.com/openai/openai-go/v3"
	"learntrail.dev/internal/config"
	"learntrail.dev/internal/database"
)

// DefaultLLMTimeout bounds the single blocking completion round trip.
const DefaultLLMTimeout = 30 * time.Second

const llmSystemPrompt = "You are a learning-path designer. " +
	"Given a list of learning resources, group them into ordered phases " +
	"that take a student from fundamentals to mastery. " +
	"Respond with JSON only, no prose."

// LLM asks a chat-completion model to arrange the resources into phases.
// Every failure mode, including timeout and malformed output, degrades
// silently to the heuristic strategy.
type LLM struct {
	c        *sdk.Client
	model    string
	timeout  time.Duration
	fallback Strategy
}

// NewLLMForConfig constructs the LLM strategy using the configured model and
// timeout.
func NewLLMForConfig(cfg *config.Config, c *sdk.Client) *LLM {
	timeout := cfg.GetPlannerTimeout()
	if timeout <= 0 {
		timeout = DefaultLLMTimeout
	}
	return &LLM{
		c:        c,
		model:    cfg.GetPlannerModel(),
		timeout:  timeout,
		fallback: Heuristic{},
	}
}

func (l *LLM) BuildPhases(ctx context.Context, topic *database.Topic, resources []*database.Resource, prefs database.Preferences) ([]database.Phase, error) {
	phases, err := l.complete(ctx, topic, resources, prefs)
	if err != nil {
		slog.WarnContext(ctx, "llm plan degraded to heuristic",
			"topic_id", topic.ID, "error", err)
		return l.fallback.BuildPhases(ctx, topic, resources, prefs)
	}
	return phases, nil
}

func (l *LLM) complete(ctx context.Context, topic *database.Topic, resources []*database.Resource, prefs database.Preferences) ([]database.Phase, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	res, err := l.c.Chat.Completions.New(ctx, sdk.ChatCompletionNewParams{
		Model: sdk.ChatModel(l.model),
		Messages: []sdk.ChatCompletionMessageParamUnion{
			sdk.SystemMessage(llmSystemPrompt),
			sdk.UserMessage(buildPrompt(topic, resources, prefs)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("completion: %w", err)
	}
	if len(res.Choices) == 0 {
		return nil, fmt.Errorf("completion returned no choices")
	}
	return parsePhases(res.Choices[0].Message.Content, resources)
}

func buildPrompt(topic *database.Topic, resources []*database.Resource, prefs database.Preferences) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Design a learning plan for the topic %q.\n\n", topic.Name)
	sb.WriteString("Available resources:\n")
	for _, r := range resources {
		fmt.Fprintf(&sb, "- id=%d type=%s title=%q url=%s difficulty=%s duration_minutes=%.0f quality=%d description=%q\n",
			r.ID, r.Type, r.Title, r.URL, r.Difficulty, r.DurationMinutes, r.QualityScore, r.Description)
	}
	if raw, err := json.Marshal(prefs); err == nil {
		fmt.Fprintf(&sb, "\nLearner preferences: %s\n", raw)
	}
	sb.WriteString("\nRespond with a JSON object of the shape " +
		`{"phases": [{"name": "...", "description": "...", "estimatedHours": 0, ` +
		`"resources": [{"resourceId": 0, "reason": "..."}]}]}. ` +
		"Reference resources only by their id.")
	return sb.String()
}

type llmPhase struct {
	Name           string        `json:"name"`
	Description    string        `json:"description"`
	EstimatedHours int           `json:"estimatedHours"`
	Resources      []llmResource `json:"resources"`
}

type llmResource struct {
	ResourceID int64  `json:"resourceId"`
	Reason     string `json:"reason"`

	// Literal fields used only when the id does not resolve.
	Title           string  `json:"title"`
	URL             string  `json:"url"`
	Type            string  `json:"type"`
	Difficulty      string  `json:"difficulty"`
	DurationMinutes float64 `json:"durationMinutes"`
}

// parsePhases decodes and validates the model output, resolving each
// referenced resource against the canonical records.
func parsePhases(content string, resources []*database.Resource) ([]database.Phase, error) {
	var parsed struct {
		Phases []llmPhase `json:"phases"`
	}
	if err := json.Unmarshal([]byte(stripFence(content)), &parsed); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(parsed.Phases) == 0 {
		return nil, fmt.Errorf("response has no phases")
	}

	byID := make(map[int64]*database.Resource, len(resources))
	for _, r := range resources {
		byID[r.ID] = r
	}

	phases := make([]database.Phase, 0, len(parsed.Phases))
	for i, lp := range parsed.Phases {
		phase := database.Phase{
			Name:           lp.Name,
			Description:    lp.Description,
			Order:          i + 1,
			EstimatedHours: lp.EstimatedHours,
		}
		if phase.Name == "" {
			phase.Name = fmt.Sprintf("Phase %d", i+1)
		}
		if phase.Description == "" {
			phase.Description = "Work through the resources in this phase."
		}
		if phase.EstimatedHours <= 0 {
			phase.EstimatedHours = 10
		}
		for _, lr := range lp.Resources {
			if r, ok := byID[lr.ResourceID]; ok {
				phase.Resources = append(phase.Resources, phaseResource(r, lr.Reason))
				continue
			}
			phase.Resources = append(phase.Resources, database.PhaseResource{
				ResourceID:      lr.ResourceID,
				Title:           lr.Title,
				URL:             lr.URL,
				Type:            lr.Type,
				Difficulty:      lr.Difficulty,
				DurationMinutes: lr.DurationMinutes,
				Reason:          lr.Reason,
			})
		}
		phases = append(phases, phase)
	}
	return phases, nil
}

// stripFence removes an optional surrounding markdown code fence, with or
// without a language tag.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 && !strings.HasPrefix(s, "{") {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
