package constants

const (
	// ServiceName 默认服务名，用于 tracer 和日志
	ServiceName = "resume-rag"

	// SnapshotBucket bbolt 中保存索引快照的 bucket
	SnapshotBucket = "index_snapshots"
	// SnapshotObjectSuffix MinIO 中快照对象的后缀，对象名为 {prefix}{key}.json
	SnapshotObjectSuffix = ".json"

	// RequestIDHeader 请求ID的 HTTP 头
	RequestIDHeader = "X-Request-ID"
)
