// Package prompt 组装发送给生成模型的提示词。
package prompt

// DefaultTemplate 简历-JD 匹配分析提示词，{resume} 和 {jd} 为占位符
const DefaultTemplate = `Analyze this resume against the job description and provide a detailed evaluation.

RESUME:
{resume}

JOB DESCRIPTION:
{jd}

Provide your analysis in the following JSON format:
{
    "score": <number 0-100>,
    "missing_skills": [<list of 3-5 key skills the candidate is missing>],
    "suggestions": [<list of 3-5 specific improvements for the resume>],
    "rewritten_bullets": [<3 rewritten resume bullet points that better match the job description>]
}

Requirements:
- Score should reflect how well the resume matches the job (0-100)
- Missing skills should be specific technical or soft skills mentioned in the JD
- Suggestions should be actionable improvements
- Rewritten bullets should use strong action verbs and quantify achievements when possible

Return ONLY the JSON object, no other text.`

// SystemMessage 要求模型只输出 JSON 的系统消息
const SystemMessage = "You are an expert resume analyzer and ATS evaluator. You MUST respond with ONLY valid JSON in the exact format specified. No additional text, explanations, or markdown - just pure JSON."

const (
	resumePlaceholder = "{resume}"
	jdPlaceholder     = "{jd}"
)
