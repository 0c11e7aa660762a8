// Package pipeline 编排一次简历分析：分块、向量化、建索引、检索、构建提示词、生成。
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"resume-rag/internal/chunker"
	"resume-rag/internal/config"
	"resume-rag/internal/embedding"
	"resume-rag/internal/generation"
	"resume-rag/internal/index"
	"resume-rag/internal/logger"
	"resume-rag/internal/prompt"
	"resume-rag/internal/ratelimit"
	"resume-rag/internal/tracing"
	"resume-rag/internal/types"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
)

var tracer = otel.Tracer("resume-rag/pipeline")

const snapshotSaveTimeout = 10 * time.Second

// Pipeline 分析编排器。索引缓存与 JD 向量缓存在请求之间共享，可并发调用 Analyze
type Pipeline struct {
	embedder  embedding.Embedder
	generator generation.Generator
	cache     *index.Cache
	memo      *QueryMemo
	builder   *prompt.Builder
	snapshots index.SnapshotStore
	// modelVersion 标识当前嵌入模型，写入快照并在恢复时校验
	modelVersion string

	chunkSize    int
	chunkOverlap int
	topK         int
	timeout      time.Duration

	indexing singleflight.Group
	pending  sync.WaitGroup
	logger   zerolog.Logger
}

// Option 编排器配置选项
type Option func(*options)

type options struct {
	cache        *index.Cache
	snapshots    index.SnapshotStore
	vectorStore  QueryVectorStore
	modelVersion string
	vectorTTL    time.Duration
	builderOpts  []prompt.BuilderOption
	logger       *zerolog.Logger
}

// WithIndexCache 注入索引缓存，便于多个编排器共享
func WithIndexCache(c *index.Cache) Option {
	return func(o *options) {
		o.cache = c
	}
}

// WithSnapshotStore 首次构建后保存索引快照，缓存未命中时先尝试恢复
func WithSnapshotStore(s index.SnapshotStore) Option {
	return func(o *options) {
		o.snapshots = s
	}
}

// WithModelVersion 设置嵌入模型标识，快照只在模型一致时恢复
func WithModelVersion(v string) Option {
	return func(o *options) {
		o.modelVersion = v
	}
}

// WithQueryVectorStore 为 JD 向量缓存增加二级存储
func WithQueryVectorStore(store QueryVectorStore, modelVersion string, ttl time.Duration) Option {
	return func(o *options) {
		o.vectorStore = store
		o.modelVersion = modelVersion
		o.vectorTTL = ttl
	}
}

// WithPromptOptions 透传给提示词构建器
func WithPromptOptions(opts ...prompt.BuilderOption) Option {
	return func(o *options) {
		o.builderOpts = append(o.builderOpts, opts...)
	}
}

// WithLogger 设置日志
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.logger = &l
	}
}

// New 创建编排器。分块参数不在这里校验，非法时由 Analyze 返回 ConfigurationError
func New(cfg config.PipelineConfig, embedder embedding.Embedder, generator generation.Generator, opts ...Option) (*Pipeline, error) {
	if embedder == nil || generator == nil {
		return nil, types.NewConfigurationError("pipeline", "embedder and generator are required")
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	log := logger.Component("pipeline")
	if o.logger != nil {
		log = *o.logger
	}

	cache := o.cache
	if cache == nil {
		var err error
		cache, err = index.NewCache(index.WithMaxEntries(config.DefaultIndexEntries), index.WithLogger(log))
		if err != nil {
			return nil, err
		}
	}

	// 嵌入失败按固定次数退避重试，所有错误都视为可重试
	retrier := ratelimit.NewTokenBucket(0, 1).
		WithRetryPolicy(config.GetDuration(cfg.EmbedRetryWait, 500*time.Millisecond), cfg.EmbedMaxRetries).
		WithRetryable(ratelimit.RetryAll)
	embedder = &retryingEmbedder{inner: embedder, retrier: retrier}

	memoSize := cfg.QueryMemoSize
	if memoSize <= 0 {
		memoSize = config.DefaultQueryMemoSize
	}
	memo, err := NewQueryMemo(embedder, memoSize, log)
	if err != nil {
		return nil, err
	}
	if o.vectorStore != nil {
		memo.WithStore(o.vectorStore, o.modelVersion, o.vectorTTL)
	}
	timeout := config.GetDuration(cfg.RequestTimeout, 3*time.Minute)
	memo.timeout = timeout

	return &Pipeline{
		embedder:     embedder,
		generator:    generator,
		cache:        cache,
		memo:         memo,
		builder:      prompt.NewBuilder(cfg.MaxContextChars, cfg.MaxJDChars, o.builderOpts...),
		snapshots:    o.snapshots,
		modelVersion: o.modelVersion,
		chunkSize:    cfg.ChunkSize,
		chunkOverlap: cfg.ChunkOverlap,
		topK:         cfg.TopK,
		timeout:      timeout,
		logger:       log,
	}, nil
}

// Analyze 分析简历文本与 JD 的匹配度。
// 只有分块参数非法（ConfigurationError）或在得到结果之前 ctx 结束时返回错误，
// 其余失败都降级为结构完整的分析结果。
func (p *Pipeline) Analyze(ctx context.Context, documentText, jd string) (types.AnalysisResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "pipeline.analyze")
	defer span.End()
	span.SetAttributes(
		attribute.Int("document.chars", utf8.RuneCountInString(documentText)),
		attribute.Int("jd.chars", utf8.RuneCountInString(jd)),
		attribute.String("jd.preview", tracing.SafeDocument(jd)),
	)
	log := logger.Ctx(ctx)

	if err := ctx.Err(); err != nil {
		return types.AnalysisResult{}, err
	}

	chunks, err := p.chunk(ctx, documentText)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return types.AnalysisResult{}, err
	}

	key := TextKey(documentText)
	if err := p.ensureIndex(ctx, key, chunks); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			tracing.RecordError(span, ctxErr, tracing.ErrorTypeTimeout)
			return types.AnalysisResult{}, ctxErr
		}
		tracing.RecordError(span, err, tracing.ErrorTypeEmbedding)
		log.Error().Err(err).Str("key", shortKey(key)).Msg("文档向量化失败")
		return embeddingFailure(err), nil
	}

	retrieved, result, err := p.retrieve(ctx, key, jd)
	if err != nil {
		return types.AnalysisResult{}, err
	}
	if result != nil {
		tracing.RecordDegraded(span, result.Suggestions[0])
		return *result, nil
	}

	promptText := p.builder.Build(chunker.Texts(retrieved), jd)
	log.Debug().Msgf("Prompt length: %d chars", utf8.RuneCountInString(promptText))
	if err := ctx.Err(); err != nil {
		return types.AnalysisResult{}, err
	}

	genCtx, genSpan := tracer.Start(ctx, "pipeline.generate")
	out := p.generator.Generate(genCtx, promptText).Normalize()
	genSpan.SetAttributes(attribute.Int("analysis.score", out.Score))
	genSpan.End()
	return out, nil
}

// Close 等待未完成的快照写入
func (p *Pipeline) Close() {
	p.pending.Wait()
}

// IndexCache 返回共享的索引缓存
func (p *Pipeline) IndexCache() *index.Cache {
	return p.cache
}

func (p *Pipeline) chunk(ctx context.Context, text string) ([]types.Chunk, error) {
	_, span := tracer.Start(ctx, "pipeline.chunk")
	defer span.End()

	chunks, err := chunker.Chunk(text, p.chunkSize, p.chunkOverlap)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("chunks", len(chunks)))
	return chunks, nil
}

// ensureIndex 保证 key 对应的索引已存在：先查缓存，再尝试快照，最后向量化并构建。
// 同一文档的并发首次请求只向量化一次；共享的构建不随发起者取消，只受请求超时约束。
func (p *Pipeline) ensureIndex(ctx context.Context, key string, chunks []types.Chunk) error {
	if p.cache.Contains(key) {
		return nil
	}
	ch := p.indexing.DoChan(key, func() (any, error) {
		ctx, cancel := detach(ctx, p.timeout)
		defer cancel()
		if p.cache.Contains(key) {
			return nil, nil
		}
		if p.restore(ctx, key) {
			return nil, nil
		}

		embedCtx, span := tracer.Start(ctx, "pipeline.embed_document")
		span.SetAttributes(attribute.Int("chunks", len(chunks)))
		vectors, err := p.embedder.Embed(embedCtx, chunker.Texts(chunks))
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeEmbedding)
			span.End()
			return nil, err
		}
		span.End()

		if err := p.cache.Build(ctx, key, vectors, chunks); err != nil {
			return nil, err
		}
		p.saveSnapshot(key)
		return nil, nil
	})
	_, err := waitShared(ctx, ch)
	return err
}

// retrieve 嵌入 JD 并检索 top-k 分块。第二个返回值非 nil 时表示已降级，直接作为结果返回
func (p *Pipeline) retrieve(ctx context.Context, key, jd string) ([]types.Chunk, *types.AnalysisResult, error) {
	ctx, span := tracer.Start(ctx, "pipeline.retrieve")
	defer span.End()
	log := logger.Ctx(ctx)

	qvec, err := p.memo.Vector(ctx, jd)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		tracing.RecordError(span, err, tracing.ErrorTypeEmbedding)
		log.Error().Err(err).Msg("JD向量化失败")
		res := embeddingFailure(err)
		return nil, &res, nil
	}

	retrieved, err := p.cache.Query(ctx, key, qvec, p.topK)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		tracing.RecordError(span, err, tracing.ErrorTypeIndex)
		if errors.Is(err, types.ErrUnknownIndex) {
			// 刚构建完就查不到，只可能是被淘汰或者 key 计算不一致
			log.Error().Err(err).Str("key", shortKey(key)).Msg("索引在构建后缺失")
		} else {
			log.Error().Err(err).Str("key", shortKey(key)).Msg("检索失败")
		}
		res := types.NewFallbackResult(types.SuggestionIndexFailure)
		return nil, &res, nil
	}
	span.SetAttributes(attribute.Int("retrieved", len(retrieved)))
	return retrieved, nil, nil
}

func (p *Pipeline) restore(ctx context.Context, key string) bool {
	if p.snapshots == nil {
		return false
	}
	snap, err := p.snapshots.LoadSnapshot(ctx, key)
	if err != nil {
		if !errors.Is(err, index.ErrSnapshotNotFound) {
			p.logger.Warn().Err(err).Str("key", shortKey(key)).Msg("读取索引快照失败，重新构建")
		}
		return false
	}
	if reason := p.incompatible(snap); reason != "" {
		p.logger.Info().Str("key", shortKey(key)).
			Str("snapshot_model", snap.ModelVersion).Int("snapshot_dim", snap.Dimension).
			Str("model", p.modelVersion).Int("dim", p.embedder.Dimension()).
			Msgf("索引快照与当前嵌入模型不一致（%s），重新构建", reason)
		return false
	}
	if err := p.cache.Restore(ctx, snap); err != nil {
		p.logger.Warn().Err(err).Str("key", shortKey(key)).Msg("索引快照无效，重新构建")
		return false
	}
	p.logger.Info().Str("key", shortKey(key)).Int("chunks", len(snap.Chunks)).Msg("从快照恢复索引")
	return true
}

// incompatible 快照由其他嵌入模型生成时返回原因，可用时返回空串
func (p *Pipeline) incompatible(snap *index.Snapshot) string {
	if snap.ModelVersion != p.modelVersion {
		return "model"
	}
	if dim := p.embedder.Dimension(); dim > 0 && len(snap.Vectors) > 0 && snap.Dimension != dim {
		return "dimension"
	}
	return ""
}

// saveSnapshot 在后台保存快照，失败只记录日志
func (p *Pipeline) saveSnapshot(key string) {
	if p.snapshots == nil {
		return
	}
	snap, ok := p.cache.Export(key)
	if !ok {
		return
	}
	snap.ModelVersion = p.modelVersion
	p.pending.Add(1)
	go func() {
		defer p.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), snapshotSaveTimeout)
		defer cancel()
		if err := p.snapshots.SaveSnapshot(ctx, snap); err != nil {
			p.logger.Warn().Err(err).Str("key", shortKey(key)).Msg("保存索引快照失败")
		}
	}()
}

// detach 去掉调用方的取消信号，保留 ctx 中的 trace 和日志字段
func detach(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

// waitShared 等待 singleflight 的结果，调用方 ctx 先结束时提前返回
func waitShared(ctx context.Context, ch <-chan singleflight.Result) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.Val, r.Err
	}
}

func embeddingFailure(err error) types.AnalysisResult {
	return types.NewFallbackResult(types.SuggestionEmbeddingPrefix + prompt.Truncate(rootCause(err).Error(), 100))
}

// rootCause 取最内层的原因，去掉各层包装前缀
func rootCause(err error) error {
	var pe *types.PipelineError
	if errors.As(err, &pe) && pe.Err != nil {
		return pe.Err
	}
	return err
}

// retryingEmbedder 为嵌入调用加上有限次数的退避重试
type retryingEmbedder struct {
	inner   embedding.Embedder
	retrier *ratelimit.TokenBucket
}

func (r *retryingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	var out [][]float32
	err := r.retrier.RetryWithBackoff(ctx, func() error {
		var err error
		out, err = r.inner.Embed(ctx, texts)
		return err
	})
	return out, err
}

func (r *retryingEmbedder) Dimension() int {
	return r.inner.Dimension()
}
