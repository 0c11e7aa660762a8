package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"resume-rag/internal/parser"
)

// 处理提取文本命令
func handleExtractCommand() {
	path := requireInputFile()
	absPath, err := filepath.Abs(path)
	if err != nil {
		fmt.Printf("无法获取文件的绝对路径: %v\n", err)
		os.Exit(1)
	}

	// 创建上下文，添加超时以防止无限等待
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	text := extractText(ctx, absPath)

	if *format == "json" {
		out, _ := json.MarshalIndent(map[string]any{
			"file":  absPath,
			"chars": len([]rune(text)),
			"text":  text,
		}, "", "  ")
		fmt.Println(string(out))
		return
	}

	fmt.Printf("\n===== 提取的文本 (总计 %d 字符) =====\n", len([]rune(text)))
	fmt.Println(preview(text))
}

func extractText(ctx context.Context, path string) string {
	extractor, err := parser.NewExtractor(ctx)
	if err != nil {
		fmt.Printf("创建文档提取器失败: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("准备处理文件: %s\n", path)
	startTime := time.Now()
	text, err := extractor.ExtractFile(ctx, path)
	if err != nil {
		fmt.Printf("提取文本失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("提取完成! 耗时: %v\n", time.Since(startTime))
	return text
}
