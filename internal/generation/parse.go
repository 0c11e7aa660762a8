package generation

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"resume-rag/internal/types"
)

var requiredFields = []string{"score", "missing_skills", "suggestions", "rewritten_bullets"}

// ParseAnalysis 把模型输出解析为分析结果。返回的结果总是可用的；
// error 非空时为 GenerationParseError，只用于记录日志。
func ParseAnalysis(raw string) (types.AnalysisResult, error) {
	result, missing, err := parse(raw)
	if err != nil {
		return result, err
	}
	if len(missing) > 0 {
		return result, types.NewGenerationParseError("missing fields: "+strings.Join(missing, ","), nil)
	}
	return result, nil
}

// parse err 非空表示输出不是合法 JSON；missing 为缺失的字段
func parse(raw string) (types.AnalysisResult, []string, error) {
	raw = strings.TrimPrefix(raw, "\uFEFF")
	raw = strings.ToValidUTF8(raw, "\uFFFD")

	candidate := extractJSON(raw)
	if candidate == "" {
		return types.NewFallbackResult(types.SuggestionInvalidJSON), nil,
			types.NewGenerationParseError("no JSON object in output", nil)
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(candidate), &fields); err != nil {
		if err2 := json.Unmarshal([]byte(sanitizeJSON(candidate)), &fields); err2 != nil {
			return types.NewFallbackResult(types.SuggestionInvalidJSON), nil,
				types.NewGenerationParseError("invalid JSON", err)
		}
	}

	result := types.AnalysisResult{
		Score:            coerceScore(fields["score"]),
		MissingSkills:    []string{},
		Suggestions:      []string{types.SuggestionIncomplete},
		RewrittenBullets: []string{},
	}
	if v, ok := fields["missing_skills"]; ok {
		result.MissingSkills = coerceList(v)
	}
	if v, ok := fields["suggestions"]; ok {
		result.Suggestions = coerceList(v)
	}
	if v, ok := fields["rewritten_bullets"]; ok {
		result.RewrittenBullets = coerceList(v)
	}

	var missing []string
	for _, f := range requiredFields {
		if _, ok := fields[f]; !ok {
			missing = append(missing, f)
		}
	}
	return result, missing, nil
}

// APIErrorResult 后端调用失败时的降级结果
func APIErrorResult(err error) types.AnalysisResult {
	return types.NewFallbackResult(types.SuggestionAPIErrorPrefix + firstRunes(err.Error(), 100))
}

// NotConfiguredResult 没有配置生成后端时的固定结果
func NotConfiguredResult() types.AnalysisResult {
	r := types.NewFallbackResult(types.SuggestionAddAPIKey, types.SuggestionGetAPIKey)
	r.MissingSkills = []string{types.MissingSkillNotConfigured}
	return r
}

// coerceScore 数字四舍五入后截断到 0..100，数字字符串同样处理，其他类型为 0
func coerceScore(v any) int {
	var f float64
	switch s := v.(type) {
	case float64:
		f = s
	case string:
		trimmed := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) {
		return 0
	}
	f = math.Round(f)
	if f < 0 {
		return 0
	}
	if f > 100 {
		return 100
	}
	return int(f)
}

// coerceList 字符串数组原样保留，数组中的标量转为字符串，单个字符串变成单元素列表
func coerceList(v any) []string {
	switch s := v.(type) {
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := stringify(item); ok {
				out = append(out, str)
			}
		}
		return out
	case string:
		if strings.TrimSpace(s) == "" {
			return []string{}
		}
		return []string{s}
	default:
		return []string{}
	}
}

func stringify(v any) (string, bool) {
	switch s := v.(type) {
	case nil:
		return "", false
	case string:
		return s, true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(s), true
	default:
		b, err := json.Marshal(s)
		if err != nil {
			return fmt.Sprint(s), true
		}
		return string(b), true
	}
}

// extractJSON 取出第一个完整的 JSON 对象，忽略字符串内的花括号；
// 对象未闭合时返回从第一个 { 开始的全部内容，由调用方解析失败处理
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}
	level := 0
	inStr := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inStr:
			escaped = true
		case c == '"':
			inStr = !inStr
		case c == '{' && !inStr:
			level++
		case c == '}' && !inStr:
			level--
			if level == 0 {
				return text[start : i+1]
			}
		}
	}
	return text[start:]
}

// sanitizeJSON 转义字符串内部未转义的双引号：
// 只有后面紧跟 : , ] } 的引号才被视为字符串结束
func sanitizeJSON(src string) string {
	var b strings.Builder
	b.Grow(len(src))
	inStr := false
	escaped := false

	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '"' && !escaped:
			if !inStr {
				inStr = true
				b.WriteByte(c)
				break
			}
			j := i + 1
			for j < len(src) && (src[j] == ' ' || src[j] == '\t' || src[j] == '\n' || src[j] == '\r') {
				j++
			}
			if j >= len(src) || strings.IndexByte(":,]}", src[j]) >= 0 {
				inStr = false
				b.WriteByte(c)
			} else {
				b.WriteString(`\"`)
			}
		case c == '\\' && !escaped:
			escaped = true
			b.WriteByte(c)
			continue
		default:
			b.WriteByte(c)
		}
		escaped = false
	}
	return b.String()
}

func firstRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
