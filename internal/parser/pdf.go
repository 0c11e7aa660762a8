package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"resume-rag/internal/logger"

	einopdf "github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoparser "github.com/cloudwego/eino/components/document/parser"
	lpdf "github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"
)

const pdfParseTimeout = 30 * time.Second

// EinoPDFExtractor 使用 Eino PDF Parser 提取文本，不按页面分割
type EinoPDFExtractor struct {
	parser *einopdf.PDFParser
	logger zerolog.Logger
}

// NewEinoPDFExtractor 初始化 Eino PDF 文本提取器
func NewEinoPDFExtractor(ctx context.Context) (*EinoPDFExtractor, error) {
	p, err := einopdf.NewPDFParser(ctx, &einopdf.Config{
		ToPages: false, // 整个 PDF 作为一个文档返回
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Eino PDF parser: %w", err)
	}
	return &EinoPDFExtractor{parser: p, logger: logger.Component("pdf_eino")}, nil
}

// ExtractText 从 PDF 字节中提取纯文本
func (e *EinoPDFExtractor) ExtractText(ctx context.Context, data []byte, uri string) (string, error) {
	startTime := time.Now()
	ctx, cancel := context.WithTimeout(ctx, pdfParseTimeout)
	defer cancel()

	docs, err := e.parser.Parse(ctx, bytes.NewReader(data),
		einoparser.WithURI(uri),
		einoparser.WithExtraMeta(map[string]any{"size_bytes": len(data)}),
	)
	if err != nil {
		return "", fmt.Errorf("eino PDF parser failed for URI %s: %w", uri, err)
	}
	if len(docs) == 0 {
		return "", fmt.Errorf("eino PDF parser returned no documents for URI %s", uri)
	}

	var sb strings.Builder
	for i, doc := range docs {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(doc.Content)
	}
	e.logger.Debug().
		Str("uri", uri).
		Int("chars", sb.Len()).
		Dur("elapsed", time.Since(startTime)).
		Msg("PDF提取完成")
	return sb.String(), nil
}

// PlainPDFExtractor 基于 ledongthuc/pdf 的逐页提取，作为 Eino 解析失败时的备选
type PlainPDFExtractor struct{}

// ExtractText 逐页提取纯文本，跳过空页
func (PlainPDFExtractor) ExtractText(ctx context.Context, data []byte, uri string) (string, error) {
	reader, err := lpdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to read pdf %s: %w", uri, err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("failed to read page %d of %s: %w", i, uri, err)
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}
