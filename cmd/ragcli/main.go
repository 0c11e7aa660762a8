package main

import (
	"fmt"
	"os"

	"resume-rag/internal/config"
	"resume-rag/internal/logger"

	"github.com/spf13/pflag"
)

// 命令行参数定义
var (
	inputFile  = pflag.StringP("file", "f", "", "简历文件路径，支持 pdf / docx / txt (必填)")
	maxLen     = pflag.Int("maxlen", 1000, "显示的文本最大长度，设为-1显示全部")
	command    = pflag.String("cmd", "extract", "执行的命令: extract=仅提取文本, chunk=分块文本, analyze=完整分析")
	configPath = pflag.StringP("config", "c", "", "配置文件路径")
	format     = pflag.String("format", "text", "输出格式，可选项：text, json")
)

func main() {
	pflag.Parse()

	// 命令行工具默认只输出警告以上的日志
	logger.Init(logger.Config{Level: "warn", Format: "pretty"})

	switch *command {
	case "extract":
		handleExtractCommand()
	case "chunk":
		handleChunkCommand()
	case "analyze":
		handleAnalyzeCommand()
	default:
		fmt.Printf("错误: 未知命令 '%s'。支持的命令: extract, chunk, analyze\n", *command)
		pflag.Usage()
		os.Exit(1)
	}
}

func requireInputFile() string {
	if *inputFile == "" {
		fmt.Println("错误: 必须提供简历文件路径。使用 -f 或 --file 参数。")
		pflag.Usage()
		os.Exit(1)
	}
	if _, err := os.Stat(*inputFile); err != nil {
		fmt.Printf("无法访问文件 %s: %v\n", *inputFile, err)
		os.Exit(1)
	}
	return *inputFile
}

func loadConfig() *config.Config {
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// preview 按 maxlen 截断显示
func preview(text string) string {
	runes := []rune(text)
	if *maxLen >= 0 && len(runes) > *maxLen {
		return string(runes[:*maxLen]) + fmt.Sprintf("\n... (省略剩余 %d 字符)", len(runes)-*maxLen)
	}
	return text
}
