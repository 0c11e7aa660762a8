package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"resume-rag/internal/api/handler"
	"resume-rag/internal/api/router"
	"resume-rag/internal/config"
	"resume-rag/internal/logger"
	"resume-rag/internal/parser"
	"resume-rag/internal/pipeline"
	"resume-rag/internal/storage"
	"resume-rag/internal/tracing"
	"resume-rag/internal/worker"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
	"github.com/spf13/pflag"
)

var version = "1.0.0"

func main() {
	var (
		configPath string
		workerMode bool
		initConfig string
	)
	pflag.StringVarP(&configPath, "config", "c", "", "Path to config file")
	pflag.BoolVar(&workerMode, "worker", false, "Consume analysis requests from RabbitMQ instead of serving HTTP")
	pflag.StringVar(&initConfig, "init-config", "", "Write a sample config file to the given path and exit")
	pflag.Parse()

	if initConfig != "" {
		if err := config.CreateSampleConfig(initConfig); err != nil {
			logger.Fatal().Err(err).Msg("创建示例配置失败")
		}
		logger.Info().Str("path", initConfig).Msg("示例配置已生成")
		return
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("加载配置失败")
	}
	initLogger(cfg.Logger)
	hlog.Infof("配置加载成功，版本 %s", version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := tracing.InitProvider(ctx, cfg.Tracing)
	if err != nil {
		hlog.Fatalf("初始化链路追踪失败: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			hlog.Warnf("关闭链路追踪失败: %v", err)
		}
	}()

	storageManager, err := storage.NewStorage(ctx, cfg, storage.Options{
		WithRedis:    cfg.Pipeline.QueryVectorRedis,
		WithRabbitMQ: workerMode,
	})
	if err != nil {
		hlog.Fatalf("初始化存储失败: %v", err)
	}
	defer storageManager.Close()
	hlog.Info("存储服务初始化成功")

	p, err := pipeline.NewFromConfig(cfg, storageManager)
	if err != nil {
		hlog.Fatalf("初始化分析流水线失败: %v", err)
	}
	defer p.Close()

	if workerMode {
		runWorker(ctx, cfg, storageManager, p)
		return
	}
	runServer(ctx, cfg, provider.Enabled(), p)
}

func runServer(ctx context.Context, cfg *config.Config, tracingEnabled bool, p *pipeline.Pipeline) {
	extractor, err := parser.NewExtractor(ctx)
	if err != nil {
		hlog.Fatalf("创建文档提取器失败: %v", err)
	}

	analyzeHandler := handler.NewAnalyzeHandler(p, extractor, cfg.Server.MaxUploadBytes)
	h := router.NewServer(cfg.Server, tracingEnabled, analyzeHandler)
	hlog.Info("HTTP路由注册成功")

	go func() {
		hlog.Infof("HTTP 服务器启动中，监听地址: %s", cfg.Server.Address)
		if err := h.Run(); err != nil {
			hlog.Errorf("HTTP服务器退出: %v", err)
		}
	}()

	<-ctx.Done()
	hlog.Info("接收到终止信号，正在优雅退出...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		hlog.Errorf("服务器关闭失败: %v", err)
	}
	hlog.Info("优雅退出完成")
}

func runWorker(ctx context.Context, cfg *config.Config, st *storage.Storage, p *pipeline.Pipeline) {
	w := worker.New(st.RabbitMQ, p, cfg.RabbitMQ)
	if err := w.Run(ctx); err != nil {
		hlog.Errorf("异步分析消费者退出: %v", err)
		return
	}
	hlog.Info("异步分析消费者已停止")
}

func initLogger(cfg config.LoggerConfig) {
	logger.Init(logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		TimeFormat:   cfg.TimeFormat,
		ReportCaller: cfg.ReportCaller,
	})

	// Hertz 的日志也输出到同一个 zerolog 实例
	hlog.SetLogger(hertzadapter.From(logger.Logger))
	switch cfg.Level {
	case "debug":
		hlog.SetLevel(hlog.LevelDebug)
	case "warn":
		hlog.SetLevel(hlog.LevelWarn)
	case "error":
		hlog.SetLevel(hlog.LevelError)
	default:
		hlog.SetLevel(hlog.LevelInfo)
	}
}
