package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"resume-rag/internal/constants"
	"resume-rag/internal/logger"
	"resume-rag/internal/parser"
	"resume-rag/internal/tracing"
	"resume-rag/internal/types"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Analyzer 执行一次简历分析
type Analyzer interface {
	Analyze(ctx context.Context, documentText, jd string) (types.AnalysisResult, error)
}

// DocumentExtractor 从上传文件中提取文本
type DocumentExtractor interface {
	Extract(ctx context.Context, data []byte, filename, contentType string) (string, error)
}

// AnalyzeHandler 处理简历分析请求
type AnalyzeHandler struct {
	analyzer       Analyzer
	extractor      DocumentExtractor
	maxUploadBytes int64
}

// NewAnalyzeHandler 创建分析处理器
func NewAnalyzeHandler(analyzer Analyzer, extractor DocumentExtractor, maxUploadBytes int) *AnalyzeHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 << 20
	}
	return &AnalyzeHandler{
		analyzer:       analyzer,
		extractor:      extractor,
		maxUploadBytes: int64(maxUploadBytes),
	}
}

// errorResponse 统一的错误响应
type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// Analyze POST /api/v1/analyze
// multipart 表单：resume 文件（或 resume_text 文本）+ job_description
func (h *AnalyzeHandler) Analyze(c context.Context, ctx *app.RequestContext) {
	requestID := RequestID(ctx)
	c = logger.WithRequestID(c, requestID)
	log := logger.Ctx(c)
	span := trace.SpanFromContext(c)
	span.SetAttributes(attribute.String("request.id", requestID))

	jd := ctx.PostForm("job_description")
	if strings.TrimSpace(jd) == "" {
		h.fail(c, ctx, consts.StatusBadRequest, requestID, "job_description is required")
		return
	}

	documentText, status, err := h.readDocument(c, ctx)
	if err != nil {
		log.Warn().Err(err).Int("status", status).Msg("读取简历失败")
		h.fail(c, ctx, status, requestID, err.Error())
		return
	}

	result, err := h.analyzer.Analyze(c, documentText, jd)
	if err != nil {
		status := consts.StatusInternalServerError
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			status = consts.StatusGatewayTimeout
		case errors.Is(err, context.Canceled):
			status = consts.StatusServiceUnavailable
		}
		log.Error().Err(err).Msg("简历分析失败")
		h.fail(c, ctx, status, requestID, err.Error())
		return
	}

	log.Info().Int("score", result.Score).Int("suggestions", len(result.Suggestions)).Msg("简历分析完成")
	ctx.JSON(consts.StatusOK, result.Normalize())
}

// readDocument 优先读取上传文件，没有文件时使用 resume_text
func (h *AnalyzeHandler) readDocument(c context.Context, ctx *app.RequestContext) (string, int, error) {
	fileHeader, err := ctx.FormFile("resume")
	if err != nil {
		text := ctx.PostForm("resume_text")
		if strings.TrimSpace(text) == "" {
			return "", consts.StatusBadRequest, fmt.Errorf("resume file or resume_text is required")
		}
		return text, consts.StatusOK, nil
	}

	trace.SpanFromContext(c).SetAttributes(
		attribute.String("resume.filename", tracing.SafeAttributeValue("filename", fileHeader.Filename, tracing.DefaultMaxLength)),
		attribute.Int64("resume.size", fileHeader.Size),
	)
	if fileHeader.Size > h.maxUploadBytes {
		return "", consts.StatusRequestEntityTooLarge, fmt.Errorf("resume exceeds %d bytes", h.maxUploadBytes)
	}
	file, err := fileHeader.Open()
	if err != nil {
		return "", consts.StatusInternalServerError, fmt.Errorf("打开文件失败: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		return "", consts.StatusInternalServerError, fmt.Errorf("读取上传文件内容失败: %w", err)
	}
	if int64(len(data)) > h.maxUploadBytes {
		return "", consts.StatusRequestEntityTooLarge, fmt.Errorf("resume exceeds %d bytes", h.maxUploadBytes)
	}

	text, err := h.extractor.Extract(c, data, fileHeader.Filename, fileHeader.Header.Get("Content-Type"))
	if err != nil {
		switch {
		case errors.Is(err, parser.ErrUnsupportedFormat):
			return "", consts.StatusUnsupportedMediaType, err
		default:
			return "", consts.StatusUnprocessableEntity, err
		}
	}
	return text, consts.StatusOK, nil
}

func (h *AnalyzeHandler) fail(c context.Context, ctx *app.RequestContext, status int, requestID, msg string) {
	tracing.RecordHTTPError(trace.SpanFromContext(c), errors.New(msg), status)
	ctx.JSON(status, errorResponse{Error: msg, RequestID: requestID})
}

// Root GET /
func Root(c context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, utils.H{"message": "Welcome to the Resume LLM Assistant API"})
}

// Health GET /health
func Health(c context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, utils.H{"status": "ok"})
}

// RequestID 读取请求头中的 X-Request-ID，没有时生成一个并写回响应头
func RequestID(ctx *app.RequestContext) string {
	id := string(ctx.GetHeader(constants.RequestIDHeader))
	if id == "" {
		if v, ok := ctx.Get(constants.RequestIDHeader); ok {
			id, _ = v.(string)
		}
	}
	if id == "" {
		id = uuid.NewString()
	}
	ctx.Set(constants.RequestIDHeader, id)
	ctx.Response.Header.Set(constants.RequestIDHeader, id)
	return id
}
