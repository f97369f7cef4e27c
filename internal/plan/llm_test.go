package plan

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"learntrail.dev/internal/database"
)

func TestStripFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare json untouched", `{"phases": []}`, `{"phases": []}`},
		{"plain fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"json-tagged fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"fence without newline", "```{\"a\": 1}```", `{"a": 1}`},
		{"surrounding whitespace", "  ```json\n{\"a\": 1}\n```  ", `{"a": 1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripFence(tt.in))
		})
	}
}

func TestParsePhases(t *testing.T) {
	resources := []*database.Resource{
		{ID: 1, Title: "Intro video", URL: "https://youtube.com/watch?v=a", Type: "video", Difficulty: "beginner", DurationMinutes: 30},
		{ID: 2, Title: "Deep dive", URL: "https://example.com/deep", Type: "article", Difficulty: "advanced"},
	}

	content := "```json\n" + `{
		"phases": [
			{
				"name": "Start Here",
				"description": "Warm up.",
				"estimatedHours": 4,
				"resources": [{"resourceId": 1, "reason": "gentle intro"}]
			},
			{
				"resources": [{"resourceId": 2}]
			}
		]
	}` + "\n```"

	phases, err := parsePhases(content, resources)
	require.NoError(t, err)
	require.Len(t, phases, 2)

	assert.Equal(t, "Start Here", phases[0].Name)
	assert.Equal(t, 1, phases[0].Order)
	assert.Equal(t, 4, phases[0].EstimatedHours)
	require.Len(t, phases[0].Resources, 1)
	assert.Equal(t, "Intro video", phases[0].Resources[0].Title)
	assert.Equal(t, "gentle intro", phases[0].Resources[0].Reason)

	// Missing fields get defaults; order stays 1-based and contiguous.
	assert.Equal(t, "Phase 2", phases[1].Name)
	assert.NotEmpty(t, phases[1].Description)
	assert.Equal(t, 2, phases[1].Order)
	assert.Equal(t, 10, phases[1].EstimatedHours)
}

func TestParsePhasesUnknownIDUsesLiteralFields(t *testing.T) {
	content := `{"phases": [{"name": "P", "resources": [
		{"resourceId": 99, "title": "Ghost", "url": "https://example.com/ghost", "type": "article", "reason": "llm made it up"}
	]}]}`

	phases, err := parsePhases(content, nil)
	require.NoError(t, err)
	require.Len(t, phases, 1)
	require.Len(t, phases[0].Resources, 1)

	r := phases[0].Resources[0]
	assert.Equal(t, int64(99), r.ResourceID)
	assert.Equal(t, "Ghost", r.Title)
	assert.Equal(t, "https://example.com/ghost", r.URL)
}

func TestParsePhasesMalformed(t *testing.T) {
	cases := []string{
		"not json at all",
		`{"phases": "nope"}`,
		`{"phases": []}`,
		`{"something": "else"}`,
		`[]`,
	}
	for _, content := range cases {
		_, err := parsePhases(content, nil)
		assert.Error(t, err, "content=%s", content)
	}
}

func newStubLLM(t *testing.T, handler http.HandlerFunc) *LLM {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := sdk.NewClient(option.WithAPIKey("test"), option.WithBaseURL(srv.URL))
	return &LLM{
		c:        &c,
		model:    "gpt-4o-mini",
		timeout:  5 * time.Second,
		fallback: Heuristic{},
	}
}

func completionBody(content string) string {
	raw, _ := json.Marshal(map[string]any{
		"id":     "chatcmpl-test",
		"object": "chat.completion",
		"choices": []map[string]any{
			{"index": 0, "message": map[string]any{"role": "assistant", "content": content}},
		},
	})
	return string(raw)
}

func TestLLMBuildPhasesParsed(t *testing.T) {
	l := newStubLLM(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, completionBody(
			`{"phases": [{"name": "Start", "estimatedHours": 2, "resources": [{"resourceId": 1}]}]}`,
		))
	})

	topic := &database.Topic{ID: 1, Name: "Go"}
	resources := []*database.Resource{
		{ID: 1, Title: "Intro", Type: "video", Difficulty: "advanced"},
	}
	phases, err := l.BuildPhases(context.Background(), topic, resources, database.Preferences{})
	require.NoError(t, err)
	require.Len(t, phases, 1)
	assert.Equal(t, "Start", phases[0].Name)
	assert.Equal(t, 2, phases[0].EstimatedHours)
}

func TestLLMDegradesToHeuristicOnGarbage(t *testing.T) {
	l := newStubLLM(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, completionBody("I cannot produce JSON today."))
	})

	topic := &database.Topic{ID: 1, Name: "Go"}
	resources := []*database.Resource{
		{ID: 1, Title: "Intro", Type: "video", Difficulty: "beginner"},
	}
	phases, err := l.BuildPhases(context.Background(), topic, resources, database.Preferences{})
	require.NoError(t, err)
	require.Len(t, phases, 1)
	assert.Equal(t, "Foundation & Basics", phases[0].Name)
}

func TestLLMDegradesToHeuristicOnServerError(t *testing.T) {
	l := newStubLLM(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})

	topic := &database.Topic{ID: 1, Name: "Go"}
	resources := []*database.Resource{
		{ID: 1, Title: "Intro", Type: "video", Difficulty: "advanced"},
	}
	phases, err := l.BuildPhases(context.Background(), topic, resources, database.Preferences{})
	require.NoError(t, err)
	require.Len(t, phases, 1)
	assert.Equal(t, "Advanced Topics", phases[0].Name)
}
