package service

import (
	"context"
	"strings"

	"infinity-go/internal/errs"
	"infinity-go/internal/model"
	"infinity-go/pkg/embedding"
	"infinity-go/pkg/log"
)

// EmbeddingService 接口封装了记录向量化的业务规则。
type EmbeddingService interface {
	// GenerateForRecord 为记录载荷生成向量。源文本为空时返回 (nil, nil)，
	// 表示该记录不参与语义检索。
	GenerateForRecord(ctx context.Context, spec *model.EmbeddingSpec, data model.JSONMap) (model.Vector, error)
	// EmbedQuery 为查询文本生成向量，空文本是校验错误。
	EmbedQuery(ctx context.Context, text string) (model.Vector, error)
	// BuildSourceText 从载荷中提取向量化源文本。
	BuildSourceText(spec *model.EmbeddingSpec, data model.JSONMap) string
}

// embeddingService 是 EmbeddingService 接口的实现。
type embeddingService struct {
	client embedding.Client
}

// NewEmbeddingService 创建一个新的 EmbeddingService 实例。
func NewEmbeddingService(client embedding.Client) EmbeddingService {
	return &embeddingService{client: client}
}

// BuildSourceText 按 source_fields 的声明顺序取出字符串值，
// 去掉首尾空白、跳过空值，再用单个空格拼接。
func (s *embeddingService) BuildSourceText(spec *model.EmbeddingSpec, data model.JSONMap) string {
	if spec == nil {
		return ""
	}
	parts := make([]string, 0, len(spec.SourceFields))
	for _, field := range spec.SourceFields {
		raw, ok := data[field].(string)
		if !ok {
			continue
		}
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		parts = append(parts, trimmed)
	}
	return strings.Join(parts, " ")
}

// GenerateForRecord 为记录载荷生成向量。
// 服务商失败会被包装为 EmbeddingError，调用方必须中止整个写入。
func (s *embeddingService) GenerateForRecord(ctx context.Context, spec *model.EmbeddingSpec, data model.JSONMap) (model.Vector, error) {
	text := s.BuildSourceText(spec, data)
	if text == "" {
		log.Debugf("[EmbeddingService] 源文本为空，跳过向量生成")
		return nil, nil
	}

	vec, err := s.client.CreateEmbedding(ctx, text)
	if err != nil {
		return nil, errs.Embedding(err)
	}
	return vec, nil
}

// EmbedQuery 为查询文本生成向量。
func (s *embeddingService) EmbedQuery(ctx context.Context, text string) (model.Vector, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, errs.Validationf("query text must not be empty")
	}

	vec, err := s.client.CreateEmbedding(ctx, trimmed)
	if err != nil {
		return nil, errs.Embedding(err)
	}
	return vec, nil
}
