package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"resume-rag/internal/chunker"
)

// 处理分块子命令
func handleChunkCommand() {
	path := requireInputFile()
	cfg := loadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	text := extractText(ctx, path)

	chunks, err := chunker.Chunk(text, cfg.Pipeline.ChunkSize, cfg.Pipeline.ChunkOverlap)
	if err != nil {
		fmt.Printf("分块失败: %v\n", err)
		os.Exit(1)
	}

	if *format == "json" {
		out, _ := json.MarshalIndent(chunks, "", "  ")
		fmt.Println(string(out))
		return
	}

	fmt.Printf("\n===== 分块结果: 共 %d 块 (size=%d, overlap=%d) =====\n",
		len(chunks), cfg.Pipeline.ChunkSize, cfg.Pipeline.ChunkOverlap)
	for _, c := range chunks {
		fmt.Printf("\n--- 块 #%d (%d 字符) ---\n", c.Index, len([]rune(c.Text)))
		fmt.Println(preview(c.Text))
	}
}
