package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"resume-rag/internal/pipeline"
	"resume-rag/internal/storage"

	"github.com/spf13/pflag"
)

var jobDescription = pflag.String("jd", "", "职位描述文本，以 @ 开头时从文件读取 (analyze 必填)")

// 处理完整分析命令
func handleAnalyzeCommand() {
	path := requireInputFile()
	jd := readJobDescription()
	cfg := loadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	st, err := storage.NewStorage(ctx, cfg, storage.Options{})
	if err != nil {
		fmt.Printf("初始化存储失败: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	p, err := pipeline.NewFromConfig(cfg, st)
	if err != nil {
		fmt.Printf("初始化分析流水线失败: %v\n", err)
		os.Exit(1)
	}
	defer p.Close()

	text := extractText(ctx, path)

	fmt.Println("开始分析...")
	startTime := time.Now()
	result, err := p.Analyze(ctx, text, jd)
	if err != nil {
		fmt.Printf("分析失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("分析完成! 耗时: %v\n", time.Since(startTime))

	if *format == "json" {
		out, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(out))
		return
	}

	fmt.Printf("\n===== 匹配分数: %d =====\n", result.Score)
	printList("缺失技能", result.MissingSkills)
	printList("改进建议", result.Suggestions)
	printList("改写要点", result.RewrittenBullets)
}

func readJobDescription() string {
	jd := strings.TrimSpace(*jobDescription)
	if jd == "" {
		fmt.Println("错误: analyze 命令必须提供 --jd 参数。")
		pflag.Usage()
		os.Exit(1)
	}
	if file, ok := strings.CutPrefix(jd, "@"); ok {
		data, err := os.ReadFile(file)
		if err != nil {
			fmt.Printf("读取职位描述文件失败: %v\n", err)
			os.Exit(1)
		}
		jd = strings.TrimSpace(string(data))
	}
	return jd
}

func printList(title string, items []string) {
	fmt.Printf("\n%s (%d):\n", title, len(items))
	for i, item := range items {
		fmt.Printf("  %d. %s\n", i+1, item)
	}
}
