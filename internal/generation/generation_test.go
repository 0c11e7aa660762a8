package generation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"resume-rag/internal/config"
	"resume-rag/internal/prompt"
	"resume-rag/internal/types"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validOutput = `{"score": 78, "missing_skills": ["Kubernetes", "Terraform"], "suggestions": ["Quantify impact"], "rewritten_bullets": ["Cut p99 latency by 40%"]}`

func TestClientPassesWellFormedResultThrough(t *testing.T) {
	mock := NewMockChatModel(validOutput, nil)
	c := NewClient(mock)

	got := c.Generate(context.Background(), "PROMPT")
	assert.Equal(t, types.AnalysisResult{
		Score:            78,
		MissingSkills:    []string{"Kubernetes", "Terraform"},
		Suggestions:      []string{"Quantify impact"},
		RewrittenBullets: []string{"Cut p99 latency by 40%"},
	}, got)

	msgs := mock.LastMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Equal(t, prompt.SystemMessage, msgs[0].Content)
	assert.Equal(t, "PROMPT", msgs[1].Content)

	opts := mock.Options[0]
	require.NotNil(t, opts.Temperature)
	require.NotNil(t, opts.MaxTokens)
	assert.InDelta(t, 0.3, *opts.Temperature, 1e-6)
	assert.Equal(t, 800, *opts.MaxTokens)
}

func TestClientNonJSONOutput(t *testing.T) {
	c := NewClient(NewMockChatModel("I think the candidate is great!", nil))
	got := c.Generate(context.Background(), "p")
	assert.Equal(t, types.AnalysisResult{
		Score:            0,
		MissingSkills:    []string{},
		Suggestions:      []string{"AI generated invalid JSON response"},
		RewrittenBullets: []string{},
	}, got)
}

func TestClientPartialOutputUsesDefaults(t *testing.T) {
	c := NewClient(NewMockChatModel(`{"score": 55}`, nil))
	got := c.Generate(context.Background(), "p")
	assert.Equal(t, 55, got.Score)
	assert.Equal(t, []string{}, got.MissingSkills)
	assert.Equal(t, []string{"Incomplete response from AI"}, got.Suggestions)
	assert.Equal(t, []string{}, got.RewrittenBullets)
}

func TestClientBackendError(t *testing.T) {
	long := errors.New("503 Service Unavailable: " + strings.Repeat("x", 200))
	c := NewClient(NewMockChatModel("", long))
	got := c.Generate(context.Background(), "p")

	require.Len(t, got.Suggestions, 1)
	assert.True(t, strings.HasPrefix(got.Suggestions[0], "API Error: 503 Service Unavailable"))
	assert.Equal(t, len("API Error: ")+100, len(got.Suggestions[0]))
	assert.Equal(t, 0, got.Score)
	assert.Empty(t, got.MissingSkills)
}

func TestDisabledGenerator(t *testing.T) {
	g, err := New(config.GenerationConfig{Backend: "openai"})
	require.NoError(t, err)
	_, ok := g.(Disabled)
	require.True(t, ok, "没有密钥时应回退为 Disabled")

	got := g.Generate(context.Background(), "p")
	assert.Equal(t, types.AnalysisResult{
		Score:         0,
		MissingSkills: []string{"Groq API key not configured"},
		Suggestions: []string{
			"Add GROQ_API_KEY to your .env file",
			"Get free API key from https://console.groq.com/keys",
		},
		RewrittenBullets: []string{},
	}, got)
}

func TestParseAnalysisCoercion(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want types.AnalysisResult
	}{
		{
			name: "markdown fence and string score",
			raw:  "```json\n{\"score\": \"87.6\", \"missing_skills\": \"Go\", \"suggestions\": [\"a\", 3, null, true], \"rewritten_bullets\": []}\n```",
			want: types.AnalysisResult{Score: 88, MissingSkills: []string{"Go"}, Suggestions: []string{"a", "3", "true"}, RewrittenBullets: []string{}},
		},
		{
			name: "score out of range",
			raw:  `{"score": 250, "missing_skills": [], "suggestions": [], "rewritten_bullets": {"x": 1}}`,
			want: types.AnalysisResult{Score: 100, MissingSkills: []string{}, Suggestions: []string{}, RewrittenBullets: []string{}},
		},
		{
			name: "negative score",
			raw:  `{"score": -4, "missing_skills": [], "suggestions": [], "rewritten_bullets": []}`,
			want: types.AnalysisResult{Score: 0, MissingSkills: []string{}, Suggestions: []string{}, RewrittenBullets: []string{}},
		},
		{
			name: "BOM and unescaped quote",
			raw:  "\uFEFF{\"score\": 60, \"missing_skills\": [\"the \"cloud\" stuff\"], \"suggestions\": [\"ok\"], \"rewritten_bullets\": []}",
			want: types.AnalysisResult{Score: 60, MissingSkills: []string{`the "cloud" stuff`}, Suggestions: []string{"ok"}, RewrittenBullets: []string{}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseAnalysis(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseAnalysisErrors(t *testing.T) {
	_, err := ParseAnalysis(`{"score": 10`)
	assert.ErrorIs(t, err, types.ErrGenerationParse)

	got, err := ParseAnalysis(`{"score": 10, "suggestions": ["x"]}`)
	assert.ErrorIs(t, err, types.ErrGenerationParse)
	assert.Contains(t, err.Error(), "missing_skills")
	assert.Equal(t, []string{"x"}, got.Suggestions)
}

func TestExtractJSONIgnoresBracesInStrings(t *testing.T) {
	assert.Equal(t, `{"a": "}{", "b": {"c": 1}}`, extractJSON(`noise {"a": "}{", "b": {"c": 1}} trailing }`))
	assert.Equal(t, "", extractJSON("no object here"))
}

func TestCompatChatModelRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/openai/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer gsk_test", r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama-3.3-70b-versatile", req["model"])
		assert.InDelta(t, 0.3, req["temperature"], 1e-6)
		assert.Equal(t, float64(800), req["max_tokens"])
		assert.Equal(t, map[string]any{"type": "json_object"}, req["response_format"])

		content, _ := json.Marshal(validOutput)
		_, _ = w.Write([]byte(`{"id":"1","choices":[{"index":0,"message":{"role":"assistant","content":` + string(content) + `}}]}`))
	}))
	defer server.Close()

	m, err := NewCompatChatModel(config.GenerationConfig{
		APIKey:      "gsk_test",
		BaseURL:     server.URL + "/openai/v1",
		Temperature: 0.3,
		MaxTokens:   800,
	})
	require.NoError(t, err)

	got := NewClient(m).Generate(context.Background(), "p")
	assert.Equal(t, 78, got.Score)
}

func TestCompatChatModelHTTPErrorBecomesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limit reached"}}`))
	}))
	defer server.Close()

	m, err := NewCompatChatModel(config.GenerationConfig{APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)

	got := NewClient(m).Generate(context.Background(), "p")
	require.Len(t, got.Suggestions, 1)
	assert.True(t, strings.HasPrefix(got.Suggestions[0], "API Error: "))
	assert.Contains(t, got.Suggestions[0], "429")
}

func TestOpenAIChatModelAgainstCompatibleServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, map[string]any{"type": "json_object"}, req["response_format"])

		content, _ := json.Marshal(validOutput)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"m","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":` + string(content) + `}}],"usage":{"prompt_tokens":10,"completion_tokens":20,"total_tokens":30}}`))
	}))
	defer server.Close()

	m, err := NewOpenAIChatModel(config.GenerationConfig{
		APIKey:      "sk",
		BaseURL:     server.URL + "/v1/",
		Model:       "m",
		Temperature: 0.3,
		MaxTokens:   800,
	})
	require.NoError(t, err)

	got := NewClient(m).Generate(context.Background(), "p")
	assert.Equal(t, 78, got.Score)
	assert.Equal(t, []string{"Kubernetes", "Terraform"}, got.MissingSkills)
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	_, err := New(config.GenerationConfig{Backend: "sagemaker", APIKey: "k"})
	assert.True(t, types.IsConfigurationError(err))
}
