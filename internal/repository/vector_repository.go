package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"infinity-go/internal/model"
	"infinity-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// VectorHit 是向量检索的一条命中。
type VectorHit struct {
	RecordID   string
	Similarity float64
}

// VectorRepository 定义了对向量检索索引的操作接口。
// MySQL 行内的向量是权威副本，这里维护的是 Elasticsearch 中的检索镜像。
type VectorRepository interface {
	Index(ctx context.Context, modelID, recordID string, vec model.Vector) error
	Delete(ctx context.Context, recordID string) error
	DeleteByModel(ctx context.Context, modelID string) error
	Search(ctx context.Context, modelID string, vec model.Vector, limit int, minSimilarity float64) ([]VectorHit, error)
}

// vectorDocument 是存储在 Elasticsearch 中的向量文档。
type vectorDocument struct {
	RecordID string       `json:"record_id"`
	ModelID  string       `json:"model_id"`
	Vector   model.Vector `json:"vector"`
}

type esVectorRepository struct {
	client    *elasticsearch.Client
	indexName string
}

// NewVectorRepository 创建一个基于 Elasticsearch 的 VectorRepository 实例。
func NewVectorRepository(client *elasticsearch.Client, indexName string) VectorRepository {
	return &esVectorRepository{client: client, indexName: indexName}
}

// Index 将一条记录的向量写入（或覆盖）检索索引，文档 ID 即记录 ID。
func (r *esVectorRepository) Index(ctx context.Context, modelID, recordID string, vec model.Vector) error {
	doc := vectorDocument{RecordID: recordID, ModelID: modelID, Vector: vec}
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      r.indexName,
		DocumentID: recordID,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, r.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("[VectorRepository] 索引向量失败, record: %s, resp: %s", recordID, res.String())
		return errors.New("failed to index vector")
	}
	return nil
}

// Delete 从检索索引中移除一条记录的向量。记录本就没有向量时视为成功。
func (r *esVectorRepository) Delete(ctx context.Context, recordID string) error {
	req := esapi.DeleteRequest{
		Index:      r.indexName,
		DocumentID: recordID,
		Refresh:    "true",
	}
	res, err := req.Do(ctx, r.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != 404 {
		log.Errorf("[VectorRepository] 删除向量失败, record: %s, resp: %s", recordID, res.String())
		return errors.New("failed to delete vector")
	}
	return nil
}

// DeleteByModel 移除模型名下的全部向量（清空数据、删除模型时的级联清理）。
func (r *esVectorRepository) DeleteByModel(ctx context.Context, modelID string) error {
	query := fmt.Sprintf(`{"query":{"term":{"model_id":%q}}}`, modelID)
	res, err := r.client.DeleteByQuery(
		[]string{r.indexName},
		strings.NewReader(query),
		r.client.DeleteByQuery.WithContext(ctx),
		r.client.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("[VectorRepository] 按模型删除向量失败, model: %s, resp: %s", modelID, res.String())
		return errors.New("failed to delete vectors by model")
	}
	return nil
}

// Search 在模型范围内做精确余弦相似度检索。
// script_score 的得分为 cosineSimilarity + 1.0（保证非负），换算回 [−1, 1] 后
// 即 1 − cosineDistance；低于阈值的文档由 min_score 直接过滤。
func (r *esVectorRepository) Search(ctx context.Context, modelID string, vec model.Vector, limit int, minSimilarity float64) ([]VectorHit, error) {
	esQuery := map[string]interface{}{
		"size":      limit,
		"min_score": minSimilarity + 1.0,
		"query": map[string]interface{}{
			"script_score": map[string]interface{}{
				"query": map[string]interface{}{
					"bool": map[string]interface{}{
						"filter": map[string]interface{}{
							"term": map[string]interface{}{"model_id": modelID},
						},
					},
				},
				"script": map[string]interface{}{
					"source": "cosineSimilarity(params.query_vector, 'vector') + 1.0",
					"params": map[string]interface{}{"query_vector": vec},
				},
			},
		},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := r.client.Search(
		r.client.Search.WithContext(ctx),
		r.client.Search.WithIndex(r.indexName),
		r.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		log.Errorf("[VectorRepository] Elasticsearch 返回错误, status: %s, body: %s", res.Status(), string(bodyBytes))
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.Status())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source vectorDocument `json:"_source"`
				Score  float64        `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	hits := make([]VectorHit, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		similarity := hit.Score - 1.0
		if similarity < minSimilarity {
			continue
		}
		hits = append(hits, VectorHit{RecordID: hit.Source.RecordID, Similarity: similarity})
	}

	// 相似度相同则按记录 ID 升序，保证结果稳定
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].RecordID < hits[j].RecordID
	})
	return hits, nil
}
