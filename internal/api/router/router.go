package router

import (
	"context"
	"time"

	"resume-rag/internal/api/handler"
	"resume-rag/internal/config"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	hertzconfig "github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/keyauth"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
)

// NewServer 创建 Hertz 服务并注册路由。tracingEnabled 时接入 OpenTelemetry
func NewServer(cfg config.ServerConfig, tracingEnabled bool, analyzeHandler *handler.AnalyzeHandler) *server.Hertz {
	opts := []hertzconfig.Option{
		server.WithHostPorts(cfg.Address),
		server.WithHandleMethodNotAllowed(true),
		// multipart 表单本身还有额外开销
		server.WithMaxRequestBodySize(cfg.MaxUploadBytes + 1<<20),
		server.WithExitWaitTime(5 * time.Second),
	}

	var tracingCfg *hertztracing.Config
	if tracingEnabled {
		tracer, tc := hertztracing.NewServerTracer()
		opts = append(opts, tracer)
		tracingCfg = tc
	}

	h := server.New(opts...)
	if tracingCfg != nil {
		h.Use(hertztracing.ServerMiddleware(tracingCfg))
	}
	h.Use(AccessLog())

	RegisterRoutes(h, analyzeHandler, cfg)
	return h
}

// RegisterRoutes 注册 API 路由；配置了 api_key 时分析接口需要鉴权
func RegisterRoutes(h *server.Hertz, analyzeHandler *handler.AnalyzeHandler, cfg config.ServerConfig) {
	h.GET("/", handler.Root)
	h.GET("/health", handler.Health)

	api := h.Group("/api/v1")
	api.GET("/health", handler.Health)

	analyze := []app.HandlerFunc{analyzeHandler.Analyze}
	if cfg.APIKey != "" {
		analyze = []app.HandlerFunc{APIKeyAuth(cfg.APIKey, cfg.APIKeyHeader), analyzeHandler.Analyze}
	}
	api.POST("/analyze", analyze...)
	// 兼容旧客户端的无前缀路径
	h.POST("/analyze", analyze...)
}

// APIKeyAuth 校验请求头中的 API Key
func APIKeyAuth(apiKey, header string) app.HandlerFunc {
	return keyauth.New(
		keyauth.WithKeyLookUp("header:"+header, ""),
		keyauth.WithValidator(func(c context.Context, ctx *app.RequestContext, key string) (bool, error) {
			return key == apiKey, nil
		}),
		keyauth.WithErrorHandler(func(c context.Context, ctx *app.RequestContext, err error) {
			ctx.AbortWithStatusJSON(consts.StatusUnauthorized, utils.H{"error": "invalid or missing API key"})
		}),
	)
}

// AccessLog 记录请求和响应状态
func AccessLog() app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		start := time.Now()
		handler.RequestID(ctx)
		ctx.Next(c)
		hlog.CtxInfof(c, "%s %s status=%d cost=%s", ctx.Method(), ctx.Path(), ctx.Response.StatusCode(), time.Since(start))
	}
}
