package prompt

import (
	"strings"
)

// Builder 携带截断上限和模板的提示词构建器
type Builder struct {
	template        string
	maxContextChars int
	maxJDChars      int
}

// BuilderOption 构建器配置选项
type BuilderOption func(*Builder)

// WithTemplate 使用自定义模板，模板中需包含 {resume} 和 {jd} 占位符
func WithTemplate(template string) BuilderOption {
	return func(b *Builder) {
		if template != "" {
			b.template = template
		}
	}
}

// NewBuilder 创建构建器
func NewBuilder(maxContextChars, maxJDChars int, opts ...BuilderOption) *Builder {
	b := &Builder{
		template:        DefaultTemplate,
		maxContextChars: maxContextChars,
		maxJDChars:      maxJDChars,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build 将检索到的分块以换行拼接并截断，连同截断后的 JD 填入模板
func (b *Builder) Build(contextChunks []string, jd string) string {
	context := Truncate(strings.Join(contextChunks, "\n"), b.maxContextChars)
	jd = Truncate(jd, b.maxJDChars)

	// 单次替换，填入内容中的占位符不会被再次展开
	r := strings.NewReplacer(resumePlaceholder, context, jdPlaceholder, jd)
	return r.Replace(b.template)
}

// Build 使用默认模板构建提示词
func Build(contextChunks []string, jd string, maxContextChars, maxJDChars int) string {
	return NewBuilder(maxContextChars, maxJDChars).Build(contextChunks, jd)
}

// Truncate 按字符（rune）数截断，不会切断多字节字符
func Truncate(s string, maxChars int) string {
	if maxChars < 0 {
		maxChars = 0
	}
	if len(s) <= maxChars {
		return s
	}
	count := 0
	for i := range s {
		if count == maxChars {
			return s[:i]
		}
		count++
	}
	return s
}
