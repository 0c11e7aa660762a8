package storage

import (
	"time"

	"resume-rag/internal/types"
)

// AnalyzeRequestMessage 异步分析请求
type AnalyzeRequestMessage struct {
	RequestID      string    `json:"request_id"`
	DocumentText   string    `json:"document_text"`
	JobDescription string    `json:"job_description"`
	SubmittedAt    time.Time `json:"submitted_at,omitempty"`
}

// AnalyzeResultMessage 异步分析结果；Error 非空时 Result 可能为空
type AnalyzeResultMessage struct {
	RequestID   string                `json:"request_id"`
	Result      *types.AnalysisResult `json:"result,omitempty"`
	Error       string                `json:"error,omitempty"`
	CompletedAt time.Time             `json:"completed_at"`
}
