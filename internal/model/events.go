package model

// 记录变更事件的操作类型。
const (
	OperationCreate = "create"
	OperationUpdate = "update"
	OperationDelete = "delete"
)

// 视图变更事件的类型。
const (
	ViewEventConfigUpdated = "config_updated"
	ViewEventDeleted       = "view_deleted"
)

// ModelDataEvent 描述一条记录的变更。事件是瞬态的，不做持久化，
// 批处理窗口内按 Timestamp 排序投递。
type ModelDataEvent struct {
	ModelID   string `json:"model_id"`
	Operation string `json:"operation"`
	RecordID  string `json:"record_id"`
	Timestamp int64  `json:"timestamp"` // Unix 毫秒
}

// ViewUpdateEvent 描述一个视图配置的变更。
type ViewUpdateEvent struct {
	Type        string  `json:"type"`
	ViewID      string  `json:"view_id"`
	ModelID     string  `json:"model_id"`
	ConfigDelta JSONMap `json:"config_delta,omitempty"`
	Timestamp   int64   `json:"timestamp"`
}
