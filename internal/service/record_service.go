package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"infinity-go/internal/errs"
	"infinity-go/internal/model"
	"infinity-go/internal/notifier"
	"infinity-go/internal/repository"
	"infinity-go/pkg/log"
	"infinity-go/pkg/storage"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RecordService 接口定义了数据记录的全部业务操作。
// 所有方法都以已解析且归属已校验的模型定义为入参。
type RecordService interface {
	CreateRecord(ctx context.Context, m *model.ModelDefinition, payload model.JSONMap) (*model.DataRecord, error)
	GetRecord(ctx context.Context, m *model.ModelDefinition, id string) (*model.DataRecord, error)
	ListRecords(ctx context.Context, m *model.ModelDefinition, query *model.ListRecordsQuery) ([]*model.DataRecord, int64, error)
	ReplaceRecord(ctx context.Context, m *model.ModelDefinition, id string, payload model.JSONMap) (*model.DataRecord, error)
	PatchRecord(ctx context.Context, m *model.ModelDefinition, id string, payload model.JSONMap) (*model.DataRecord, error)
	DeleteRecord(ctx context.Context, m *model.ModelDefinition, id string) error
	ClearData(ctx context.Context, m *model.ModelDefinition) (int64, error)
	SearchSimilar(ctx context.Context, m *model.ModelDefinition, query string, limit int, minSimilarity float64) ([]*model.SearchResult, error)
	ExportRecords(ctx context.Context, m *model.ModelDefinition) (string, error)
}

// recordService 是 RecordService 接口的实现。
type recordService struct {
	recordRepo   repository.RecordRepository
	vectorRepo   repository.VectorRepository
	embeddingSvc EmbeddingService
	notifier     *notifier.Notifier

	exportBucket string
	exportExpiry time.Duration
}

// NewRecordService 创建一个新的 RecordService 实例。
func NewRecordService(
	recordRepo repository.RecordRepository,
	vectorRepo repository.VectorRepository,
	embeddingSvc EmbeddingService,
	n *notifier.Notifier,
	exportBucket string,
	exportExpiry time.Duration,
) RecordService {
	return &recordService{
		recordRepo:   recordRepo,
		vectorRepo:   vectorRepo,
		embeddingSvc: embeddingSvc,
		notifier:     n,
		exportBucket: exportBucket,
		exportExpiry: exportExpiry,
	}
}

// CreateRecord 校验载荷并创建一条记录。
// 开启语义检索的模型会先生成向量，服务商失败时整个写入中止。
func (s *recordService) CreateRecord(ctx context.Context, m *model.ModelDefinition, payload model.JSONMap) (*model.DataRecord, error) {
	// 1. 归档模型拒绝写入
	if err := ensureWritable(m); err != nil {
		return nil, err
	}

	// 2. 剥离系统键并按模型定义校验
	data := stripSystemKeys(payload)
	if err := validateFields(m.Fields, data); err != nil {
		return nil, err
	}

	// 3. 需要时生成向量。失败即中止，不落任何数据
	vec, err := s.vectorFor(ctx, m, data)
	if err != nil {
		return nil, err
	}

	// 4. 载荷与向量在同一条 INSERT 中落库
	rec := &model.DataRecord{
		ID:      uuid.NewString(),
		ModelID: m.ID,
		OwnerID: m.OwnerID,
		Data:    data,
		Vector:  vec,
		Status:  model.StatusActive,
	}
	if err := s.recordRepo.Create(ctx, rec); err != nil {
		return nil, err
	}

	// 5. 同步检索镜像。镜像写入失败时删掉刚插入的行，保持两边一致
	if err := s.syncVector(ctx, m.ID, rec.ID, vec); err != nil {
		if _, delErr := s.recordRepo.Delete(ctx, rec.ID, m.ID); delErr != nil {
			log.Errorf("[RecordService] 回滚记录失败, record: %s, error: %v", rec.ID, delErr)
		}
		return nil, err
	}

	s.publishDataEvent(ctx, m.ID, model.OperationCreate, rec.ID)
	log.Infof("[RecordService] 记录创建成功, model: %s, record: %s", m.ID, rec.ID)
	return rec, nil
}

// GetRecord 返回模型名下的一条记录。
func (s *recordService) GetRecord(ctx context.Context, m *model.ModelDefinition, id string) (*model.DataRecord, error) {
	rec, err := s.recordRepo.FindByID(ctx, id, m.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("record")
		}
		return nil, err
	}
	return rec, nil
}

// ListRecords 按等值过滤分页列出记录。过滤键必须是模型已定义的字段。
func (s *recordService) ListRecords(ctx context.Context, m *model.ModelDefinition, query *model.ListRecordsQuery) ([]*model.DataRecord, int64, error) {
	for key := range query.Filter {
		if _, ok := m.Fields[key]; !ok {
			return nil, 0, errs.FieldValidationf(key, "filter field '%s' is not defined in the model", key)
		}
	}
	query.Normalize()

	offset := (query.Page - 1) * query.Limit
	return s.recordRepo.FindWithFilter(ctx, m.ID, query.Filter, offset, query.Limit)
}

// ReplaceRecord 整体替换记录载荷（PUT 语义），未提交的字段被清空。
func (s *recordService) ReplaceRecord(ctx context.Context, m *model.ModelDefinition, id string, payload model.JSONMap) (*model.DataRecord, error) {
	if err := ensureWritable(m); err != nil {
		return nil, err
	}
	rec, err := s.GetRecord(ctx, m, id)
	if err != nil {
		return nil, err
	}

	data := stripSystemKeys(payload)
	if err := validateFields(m.Fields, data); err != nil {
		return nil, err
	}

	// 整体替换后源文本完全来自新载荷，向量直接重算
	vec, err := s.vectorFor(ctx, m, data)
	if err != nil {
		return nil, err
	}

	return s.persistUpdate(ctx, m, rec, data, vec)
}

// PatchRecord 合并更新记录载荷（PATCH 语义），未提交的字段保持不变。
// 只有更新触碰到向量源字段时才重新生成向量。
func (s *recordService) PatchRecord(ctx context.Context, m *model.ModelDefinition, id string, payload model.JSONMap) (*model.DataRecord, error) {
	if err := ensureWritable(m); err != nil {
		return nil, err
	}
	rec, err := s.GetRecord(ctx, m, id)
	if err != nil {
		return nil, err
	}

	patch := stripSystemKeys(payload)
	merged := make(model.JSONMap, len(rec.Data)+len(patch))
	for k, v := range rec.Data {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	if err := validateFields(m.Fields, merged); err != nil {
		return nil, err
	}

	vec := rec.Vector
	if s.touchesSourceFields(m, patch) {
		vec, err = s.vectorFor(ctx, m, merged)
		if err != nil {
			return nil, err
		}
	}

	return s.persistUpdate(ctx, m, rec, merged, vec)
}

// DeleteRecord 删除一条记录及其检索镜像。
func (s *recordService) DeleteRecord(ctx context.Context, m *model.ModelDefinition, id string) error {
	if err := ensureWritable(m); err != nil {
		return err
	}

	rows, err := s.recordRepo.Delete(ctx, id, m.ID)
	if err != nil {
		return err
	}
	if rows == 0 {
		return errs.NotFound("record")
	}

	if s.vectorRepo != nil {
		if err := s.vectorRepo.Delete(ctx, id); err != nil {
			log.Errorf("[RecordService] 删除向量镜像失败, record: %s, error: %v", id, err)
		}
	}

	s.publishDataEvent(ctx, m.ID, model.OperationDelete, id)
	log.Infof("[RecordService] 记录删除成功, model: %s, record: %s", m.ID, id)
	return nil
}

// ClearData 清空模型的全部记录和向量，返回删除的行数。模型定义与视图保留。
func (s *recordService) ClearData(ctx context.Context, m *model.ModelDefinition) (int64, error) {
	if err := ensureWritable(m); err != nil {
		return 0, err
	}

	deleted, err := s.recordRepo.DeleteByModel(ctx, m.ID)
	if err != nil {
		return 0, err
	}
	if s.vectorRepo != nil {
		if err := s.vectorRepo.DeleteByModel(ctx, m.ID); err != nil {
			log.Errorf("[RecordService] 清空向量镜像失败, model: %s, error: %v", m.ID, err)
		}
	}

	s.publishDataEvent(ctx, m.ID, model.OperationDelete, "")
	log.Infof("[RecordService] 模型数据已清空, model: %s, 删除行数: %d", m.ID, deleted)
	return deleted, nil
}

// SearchSimilar 对查询文本做语义相似度检索。
func (s *recordService) SearchSimilar(ctx context.Context, m *model.ModelDefinition, query string, limit int, minSimilarity float64) ([]*model.SearchResult, error) {
	// 1. 模型必须开启语义检索
	if !m.EmbeddingEnabled() {
		return nil, errs.Validationf("vector search is not enabled for this model")
	}
	if minSimilarity < -1 || minSimilarity > 1 {
		return nil, errs.FieldValidationf("minSimilarity", "minSimilarity must be between -1 and 1")
	}
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	// 2. 向量化查询文本
	vec, err := s.embeddingSvc.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	// 3. 检索并回表取出完整记录
	hits, err := s.vectorRepo.Search(ctx, m.ID, vec, limit, minSimilarity)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return []*model.SearchResult{}, nil
	}

	ids := make([]string, 0, len(hits))
	for _, hit := range hits {
		ids = append(ids, hit.RecordID)
	}
	recs, err := s.recordRepo.FindByIDs(ctx, m.ID, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*model.DataRecord, len(recs))
	for _, rec := range recs {
		byID[rec.ID] = rec
	}

	// 镜像里可能残留已删除记录的文档，回表不到的命中直接跳过
	results := make([]*model.SearchResult, 0, len(hits))
	for _, hit := range hits {
		rec, ok := byID[hit.RecordID]
		if !ok {
			continue
		}
		results = append(results, &model.SearchResult{Record: rec, Similarity: hit.Similarity})
	}
	return results, nil
}

// ExportRecords 把模型的全部记录快照为 JSON 写入对象存储，返回预签名下载链接。
func (s *recordService) ExportRecords(ctx context.Context, m *model.ModelDefinition) (string, error) {
	if storage.MinioClient == nil {
		return "", errors.New("export storage is not configured")
	}

	recs, err := s.recordRepo.FindAllByModel(ctx, m.ID)
	if err != nil {
		return "", err
	}

	items := make([]map[string]interface{}, 0, len(recs))
	for _, rec := range recs {
		items = append(items, rec.ToAPI())
	}
	snapshot := map[string]interface{}{
		"model_id":    m.ID,
		"model_name":  m.Name,
		"exported_at": time.Now().Format(time.RFC3339),
		"count":       len(items),
		"records":     items,
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return "", err
	}

	objectName := fmt.Sprintf("exports/%s/%s.json", m.ID, time.Now().Format("20060102T150405"))
	if err := storage.PutJSON(ctx, s.exportBucket, objectName, raw); err != nil {
		return "", err
	}

	url, err := storage.GetPresignedURL(s.exportBucket, objectName, s.exportExpiry)
	if err != nil {
		return "", err
	}

	log.Infof("[RecordService] 数据导出成功, model: %s, object: %s, 记录数: %d", m.ID, objectName, len(items))
	return url, nil
}

// vectorFor 在模型开启语义检索时为载荷生成向量。
func (s *recordService) vectorFor(ctx context.Context, m *model.ModelDefinition, data model.JSONMap) (model.Vector, error) {
	if !m.EmbeddingEnabled() {
		return nil, nil
	}
	return s.embeddingSvc.GenerateForRecord(ctx, m.Embedding, data)
}

// syncVector 同步记录在检索镜像中的状态：有向量则覆盖，无向量则移除。
func (s *recordService) syncVector(ctx context.Context, modelID, recordID string, vec model.Vector) error {
	if s.vectorRepo == nil {
		return nil
	}
	if len(vec) > 0 {
		return s.vectorRepo.Index(ctx, modelID, recordID, vec)
	}
	return s.vectorRepo.Delete(ctx, recordID)
}

func (s *recordService) persistUpdate(ctx context.Context, m *model.ModelDefinition, rec *model.DataRecord, data model.JSONMap, vec model.Vector) (*model.DataRecord, error) {
	rec.Data = data
	rec.Vector = vec
	if err := s.recordRepo.Update(ctx, rec); err != nil {
		return nil, err
	}
	// 更新路径的镜像写入是尽力而为：行已是权威数据，
	// 镜像里残留的旧向量由下一次成功写入覆盖
	if err := s.syncVector(ctx, m.ID, rec.ID, vec); err != nil {
		log.Errorf("[RecordService] 更新向量镜像失败, record: %s, error: %v", rec.ID, err)
	}

	s.publishDataEvent(ctx, m.ID, model.OperationUpdate, rec.ID)
	log.Infof("[RecordService] 记录更新成功, model: %s, record: %s", m.ID, rec.ID)
	return rec, nil
}

func (s *recordService) touchesSourceFields(m *model.ModelDefinition, patch model.JSONMap) bool {
	if !m.EmbeddingEnabled() {
		return false
	}
	for _, field := range m.Embedding.SourceFields {
		if _, ok := patch[field]; ok {
			return true
		}
	}
	return false
}

func (s *recordService) publishDataEvent(ctx context.Context, modelID, operation, recordID string) {
	if s.notifier == nil {
		return
	}
	now := time.Now().UnixMilli()
	s.notifier.Publish(ctx, notifier.Message{
		Channel: notifier.ModelChannel(modelID),
		Kind:    notifier.KindModelData,
		Payload: model.ModelDataEvent{
			ModelID:   modelID,
			Operation: operation,
			RecordID:  recordID,
			Timestamp: now,
		},
		Timestamp: now,
	})
}

// ensureWritable 拒绝对归档模型的写入。
func ensureWritable(m *model.ModelDefinition) error {
	if m.Status == model.StatusArchived {
		return errs.Validationf("model '%s' is archived", m.Name)
	}
	return nil
}
