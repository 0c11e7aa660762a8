package types

// Vector 单精度嵌入向量，索引只接受 float32
type Vector = []float32

// Chunk 文档中的一个连续片段
type Chunk struct {
	Index  int    `json:"index"`  // 在分块序列中的位置
	Offset int    `json:"offset"` // 起始字符偏移（按 rune 计）
	Text   string `json:"text"`
}

// AnalysisResult 简历与JD匹配分析结果，对外只暴露这四个字段
type AnalysisResult struct {
	Score            int      `json:"score"`
	MissingSkills    []string `json:"missing_skills"`
	Suggestions      []string `json:"suggestions"`
	RewrittenBullets []string `json:"rewritten_bullets"`
}

// 降级结果使用的提示文案
const (
	SuggestionInvalidJSON     = "AI generated invalid JSON response"
	SuggestionIncomplete      = "Incomplete response from AI"
	SuggestionAPIErrorPrefix  = "API Error: "
	SuggestionEmbeddingPrefix = "Embedding service unavailable: "
	SuggestionIndexFailure    = "Resume index unavailable, please retry the analysis"
	MissingSkillNotConfigured = "Groq API key not configured"
	SuggestionAddAPIKey       = "Add GROQ_API_KEY to your .env file"
	SuggestionGetAPIKey       = "Get free API key from https://console.groq.com/keys"
)

// NewFallbackResult 构造一个只包含提示信息的降级结果
func NewFallbackResult(suggestions ...string) AnalysisResult {
	if suggestions == nil {
		suggestions = []string{}
	}
	return AnalysisResult{
		Score:            0,
		MissingSkills:    []string{},
		Suggestions:      suggestions,
		RewrittenBullets: []string{},
	}
}

// Normalize 确保切片字段非 nil，序列化时输出 [] 而不是 null
func (r AnalysisResult) Normalize() AnalysisResult {
	if r.MissingSkills == nil {
		r.MissingSkills = []string{}
	}
	if r.Suggestions == nil {
		r.Suggestions = []string{}
	}
	if r.RewrittenBullets == nil {
		r.RewrittenBullets = []string{}
	}
	if r.Score < 0 {
		r.Score = 0
	}
	if r.Score > 100 {
		r.Score = 100
	}
	return r
}
