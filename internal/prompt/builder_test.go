package prompt

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestBuildSubstitutesContextAndJD(t *testing.T) {
	p := Build([]string{"Led Go services", "Built Kafka pipelines"}, "Senior Go engineer", 1500, 1000)

	assert.Contains(t, p, "RESUME:\nLed Go services\nBuilt Kafka pipelines\n\nJOB DESCRIPTION:\nSenior Go engineer\n")
	assert.Contains(t, p, `"missing_skills"`)
	assert.Contains(t, p, `"rewritten_bullets"`)
	assert.True(t, strings.HasSuffix(p, "Return ONLY the JSON object, no other text."))
	assert.NotContains(t, p, "{resume}")
	assert.NotContains(t, p, "{jd}")
}

func TestBuildTruncatesBothParts(t *testing.T) {
	chunks := []string{strings.Repeat("a", 1000), strings.Repeat("b", 1000)}
	jd := strings.Repeat("j", 3000)

	p := Build(chunks, jd, 1500, 1000)
	base := len(Build(nil, "", 1500, 1000))

	// 1500 字符上下文 + 1000 字符 JD
	assert.Equal(t, base+1500+1000, len(p))
	assert.Contains(t, p, strings.Repeat("a", 1000)+"\n"+strings.Repeat("b", 499)+"\n\nJOB DESCRIPTION:")
	assert.NotContains(t, p, strings.Repeat("j", 1001))
}

func TestTruncateIsRuneSafe(t *testing.T) {
	s := strings.Repeat("简历", 10)
	got := Truncate(s, 5)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 5, utf8.RuneCountInString(got))
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "", Truncate("abc", 0))
}

func TestBuilderWithTemplate(t *testing.T) {
	b := NewBuilder(3, 2, WithTemplate("R={resume};J={jd}"))
	assert.Equal(t, "R=abc;J=xy", b.Build([]string{"abcdef"}, "xyz"))

	// 内容中的占位符不再展开
	assert.Equal(t, "R={jd};J=ok", NewBuilder(10, 10, WithTemplate("R={resume};J={jd}")).Build([]string{"{jd}"}, "ok"))
}
