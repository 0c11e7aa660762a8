// Package parser 从上传的简历文件（PDF、DOCX、纯文本）中提取文本。
package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"resume-rag/internal/logger"

	"github.com/rs/zerolog"
)

// Format 文档格式
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDocx Format = "docx"
	FormatText Format = "text"
)

const (
	mimePDF  = "application/pdf"
	mimeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

var (
	// ErrUnsupportedFormat 无法识别的文件类型
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrEmptyDocument 文件中没有可提取的文本
	ErrEmptyDocument = errors.New("no text could be extracted from document")
)

// TextExtractor 单一格式的文本提取器
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte, uri string) (string, error)
}

// Extractor 按格式分派到具体的提取器。PDF 依次尝试多个提取器，直到有一个返回非空文本
type Extractor struct {
	pdf    []TextExtractor
	docx   TextExtractor
	logger zerolog.Logger
}

// Option 提取器配置选项
type Option func(*Extractor)

// WithPDFExtractors 替换 PDF 提取链
func WithPDFExtractors(extractors ...TextExtractor) Option {
	return func(e *Extractor) {
		e.pdf = extractors
	}
}

// WithLogger 设置日志
func WithLogger(l zerolog.Logger) Option {
	return func(e *Extractor) {
		e.logger = l
	}
}

// NewExtractor 创建默认提取器：Eino PDF 解析优先，ledongthuc/pdf 兜底
func NewExtractor(ctx context.Context, opts ...Option) (*Extractor, error) {
	e := &Extractor{
		docx:   DocxExtractor{},
		logger: logger.Component("parser"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.pdf == nil {
		eino, err := NewEinoPDFExtractor(ctx)
		if err != nil {
			return nil, err
		}
		e.pdf = []TextExtractor{eino, PlainPDFExtractor{}}
	}
	return e, nil
}

// Extract 根据文件名、Content-Type 和内容特征识别格式并提取文本
func (e *Extractor) Extract(ctx context.Context, data []byte, filename, contentType string) (string, error) {
	format, err := DetectFormat(filename, contentType, data)
	if err != nil {
		return "", err
	}

	var text string
	switch format {
	case FormatPDF:
		text, err = e.extractPDF(ctx, data, filename)
	case FormatDocx:
		text, err = e.docx.ExtractText(ctx, data, filename)
	case FormatText:
		text = string(data)
	}
	if err != nil {
		return "", err
	}

	text = normalizeText(text)
	if text == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptyDocument, filename)
	}
	e.logger.Debug().Str("file", filename).Str("format", string(format)).Int("chars", utf8.RuneCountInString(text)).Msg("文本提取完成")
	return text, nil
}

// ExtractFile 从本地文件提取文本
func (e *Extractor) ExtractFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("读取文件失败: %w", err)
	}
	return e.Extract(ctx, data, filepath.Base(path), "")
}

func (e *Extractor) extractPDF(ctx context.Context, data []byte, uri string) (string, error) {
	var errs []error
	for i, ex := range e.pdf {
		text, err := ex.ExtractText(ctx, data, uri)
		if err == nil && strings.TrimSpace(text) != "" {
			return text, nil
		}
		if err == nil {
			err = ErrEmptyDocument
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		e.logger.Warn().Err(err).Int("extractor", i).Str("file", uri).Msg("PDF提取失败，尝试下一个提取器")
		errs = append(errs, err)
	}
	return "", fmt.Errorf("all PDF extractors failed: %w", errors.Join(errs...))
}

// DetectFormat 依次根据扩展名、Content-Type、文件头识别格式
func DetectFormat(filename, contentType string, data []byte) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return FormatPDF, nil
	case ".docx":
		return FormatDocx, nil
	case ".txt", ".md", ".text":
		return FormatText, nil
	}

	if contentType != "" {
		if mt, _, err := mime.ParseMediaType(contentType); err == nil {
			switch {
			case mt == mimePDF:
				return FormatPDF, nil
			case mt == mimeDocx:
				return FormatDocx, nil
			case strings.HasPrefix(mt, "text/"):
				return FormatText, nil
			}
		}
	}

	switch {
	case bytes.HasPrefix(data, []byte("%PDF-")):
		return FormatPDF, nil
	case bytes.HasPrefix(data, []byte("PK\x03\x04")):
		return FormatDocx, nil
	case len(data) > 0 && utf8.Valid(data):
		return FormatText, nil
	}
	return "", fmt.Errorf("%w: %s (%s)", ErrUnsupportedFormat, filename, contentType)
}

func normalizeText(s string) string {
	s = strings.ToValidUTF8(s, "")
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSpace(s)
}
