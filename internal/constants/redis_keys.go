package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "rag"

	// QueryModulePrefix 查询（JD）模块
	QueryModulePrefix = "jd"

	// EntityVector 向量实体
	EntityVector = "vector"

	// KeyQueryVector JD向量二级缓存 (HASH: vector, model_version)
	// 格式: rag:jd:vector:{sha256(jd)}
	KeyQueryVector = AppPrefix + ":" + QueryModulePrefix + ":" + EntityVector + ":%s"

	// FieldVector HASH 中的向量字段
	FieldVector = "vector"
	// FieldModelVersion HASH 中的模型版本字段，模型变化后旧缓存失效
	FieldModelVersion = "model_version"
)
