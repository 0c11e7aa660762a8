package types

import (
	"errors"
	"fmt"
)

// 定义基础错误类型
var (
	ErrConfiguration    = errors.New("配置错误")
	ErrEmbeddingBackend = errors.New("嵌入服务错误")
	ErrUnknownIndex     = errors.New("索引不存在")
	ErrGenerationParse  = errors.New("生成结果解析失败")
)

// PipelineError 包含详细错误信息的自定义错误
type PipelineError struct {
	Op      string
	BaseErr error
	Detail  string
	Err     error // 底层原因，可为 nil
}

func (e *PipelineError) Error() string {
	msg := fmt.Sprintf("%s (操作:%s)", e.BaseErr, e.Op)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap 返回底层原因，使 errors.As 能穿透到原始错误
func (e *PipelineError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.BaseErr}
	}
	return []error{e.BaseErr, e.Err}
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *PipelineError) Is(target error) bool {
	return e.BaseErr == target
}

// NewConfigurationError 参数非法或缺少后端配置
func NewConfigurationError(op, detail string) error {
	return &PipelineError{Op: op, BaseErr: ErrConfiguration, Detail: detail}
}

// NewEmbeddingBackendError 嵌入服务不可用或返回错误
func NewEmbeddingBackendError(op string, err error) error {
	return &PipelineError{Op: op, BaseErr: ErrEmbeddingBackend, Err: err}
}

// NewUnknownIndexError 在未构建的 key 上检索
func NewUnknownIndexError(key string) error {
	return &PipelineError{Op: "query", BaseErr: ErrUnknownIndex, Detail: "key=" + key}
}

// NewGenerationParseError 模型输出不是合法JSON或缺少字段
func NewGenerationParseError(detail string, err error) error {
	return &PipelineError{Op: "parse", BaseErr: ErrGenerationParse, Detail: detail, Err: err}
}

// IsConfigurationError 判断是否为配置错误
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
