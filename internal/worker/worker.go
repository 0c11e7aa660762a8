// Package worker 从 RabbitMQ 消费异步分析请求并发布分析结果。
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"resume-rag/internal/config"
	"resume-rag/internal/logger"
	"resume-rag/internal/storage"
	"resume-rag/internal/types"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("resume-rag/worker")

// Analyzer 执行一次简历分析
type Analyzer interface {
	Analyze(ctx context.Context, documentText, jd string) (types.AnalysisResult, error)
}

// Worker 异步分析消费者
type Worker struct {
	mq       storage.MessageQueue
	analyzer Analyzer
	cfg      config.RabbitMQConfig
	logger   zerolog.Logger
}

// New 创建消费者
func New(mq storage.MessageQueue, analyzer Analyzer, cfg config.RabbitMQConfig) *Worker {
	return &Worker{
		mq:       mq,
		analyzer: analyzer,
		cfg:      cfg,
		logger:   logger.Component("worker"),
	}
}

// Setup 声明请求队列和结果 exchange；配置了 result_queue 时一并绑定
func (w *Worker) Setup() error {
	if err := w.mq.EnsureQueue(w.cfg.AnalyzeQueue, true); err != nil {
		return err
	}
	if err := w.mq.EnsureExchange(w.cfg.ResultExchange, "topic", true); err != nil {
		return err
	}
	if w.cfg.ResultQueue == "" {
		return nil
	}
	if err := w.mq.EnsureQueue(w.cfg.ResultQueue, true); err != nil {
		return err
	}
	return w.mq.BindQueue(w.cfg.ResultQueue, w.cfg.ResultExchange, w.cfg.ResultKey)
}

// Run 启动 cfg.Workers 个消费者，阻塞到 ctx 结束且所有消费者退出
func (w *Worker) Run(ctx context.Context) error {
	if err := w.Setup(); err != nil {
		return fmt.Errorf("初始化消息队列失败: %w", err)
	}

	workers := w.cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		done, err := w.mq.StartConsumer(ctx, w.cfg.AnalyzeQueue, w.cfg.PrefetchCount, w.HandleMessage)
		if err != nil {
			return fmt.Errorf("启动第%d个消费者失败: %w", i+1, err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-done
		}()
	}
	w.logger.Info().Int("workers", workers).Str("queue", w.cfg.AnalyzeQueue).Msg("异步分析消费者已启动")
	wg.Wait()
	return nil
}

// HandleMessage 处理一条请求，返回 false 时消息被拒绝且不重新入队
func (w *Worker) HandleMessage(ctx context.Context, body []byte) bool {
	var req storage.AnalyzeRequestMessage
	if err := json.Unmarshal(body, &req); err != nil {
		w.logger.Error().Err(err).Int("bytes", len(body)).Msg("无法解析分析请求，丢弃")
		return false
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	ctx = logger.WithRequestID(ctx, req.RequestID)
	ctx, span := tracer.Start(ctx, "worker.analyze")
	defer span.End()
	span.SetAttributes(attribute.String("request.id", req.RequestID))
	log := logger.Ctx(ctx)

	msg := storage.AnalyzeResultMessage{RequestID: req.RequestID}
	result, err := w.analyzer.Analyze(ctx, req.DocumentText, req.JobDescription)
	if err != nil {
		log.Error().Err(err).Msg("异步分析失败")
		msg.Error = err.Error()
	} else {
		result = result.Normalize()
		msg.Result = &result
	}
	msg.CompletedAt = time.Now()

	if err := w.mq.PublishJSON(ctx, w.cfg.ResultExchange, w.cfg.ResultKey, msg, true); err != nil {
		log.Error().Err(err).Msg("发布分析结果失败")
		return false
	}
	log.Info().Bool("failed", msg.Error != "").Msg("分析结果已发布")
	return true
}
