package service

import (
	"context"
	"testing"
	"time"

	"infinity-go/internal/errs"
	"infinity-go/internal/model"
	"infinity-go/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordFixture struct {
	svc     RecordService
	records *fakeRecordRepo
	vectors *fakeVectorRepo
	client  *fakeEmbeddingClient
}

func newRecordFixture() *recordFixture {
	records := newFakeRecordRepo()
	vectors := newFakeVectorRepo()
	client := &fakeEmbeddingClient{}
	svc := NewRecordService(records, vectors, NewEmbeddingService(client), nil, "exports", time.Hour)
	return &recordFixture{svc: svc, records: records, vectors: vectors, client: client}
}

func articleModel(embeddingEnabled bool) *model.ModelDefinition {
	m := &model.ModelDefinition{
		ID:      "m-1",
		OwnerID: "u-1",
		Name:    "articles",
		Status:  model.StatusActive,
		Fields: model.FieldMap{
			"title": {Type: model.FieldTypeString, Required: true},
			"body":  {Type: model.FieldTypeString},
			"views": {Type: model.FieldTypeNumber},
		},
	}
	if embeddingEnabled {
		m.Embedding = &model.EmbeddingSpec{Enabled: true, SourceFields: []string{"title", "body"}}
	}
	return m
}

func TestCreateRecordStripsSystemKeysAndPersists(t *testing.T) {
	f := newRecordFixture()
	m := articleModel(false)

	rec, err := f.svc.CreateRecord(context.Background(), m, model.JSONMap{
		"title": "hello",
		"_id":   "client-supplied",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.NotEqual(t, "client-supplied", rec.ID)
	assert.Equal(t, model.JSONMap{"title": "hello"}, rec.Data)
	assert.Nil(t, rec.Vector)
	assert.Zero(t, f.client.calls)
}

func TestCreateRecordGeneratesAndIndexesVector(t *testing.T) {
	f := newRecordFixture()
	m := articleModel(true)

	rec, err := f.svc.CreateRecord(context.Background(), m, model.JSONMap{"title": "hello", "body": "world"})
	require.NoError(t, err)
	assert.Equal(t, "hello world", f.client.lastText)
	assert.Equal(t, model.Vector{0.1, 0.2, 0.3}, rec.Vector)
	assert.Contains(t, f.vectors.docs, rec.ID)
}

func TestCreateRecordAbortsOnProviderFailure(t *testing.T) {
	f := newRecordFixture()
	f.client.err = errProviderDown
	m := articleModel(true)

	_, err := f.svc.CreateRecord(context.Background(), m, model.JSONMap{"title": "hello"})
	require.Error(t, err)
	assert.True(t, errs.IsEmbedding(err))
	assert.Empty(t, f.records.records, "向量化失败时不应落任何数据")
}

func TestCreateRecordCompensatesOnIndexFailure(t *testing.T) {
	f := newRecordFixture()
	f.vectors.indexErr = errProviderDown
	m := articleModel(true)

	_, err := f.svc.CreateRecord(context.Background(), m, model.JSONMap{"title": "hello"})
	require.Error(t, err)
	assert.Empty(t, f.records.records, "镜像写入失败时应回滚已插入的行")
}

func TestCreateRecordRejectsArchivedModel(t *testing.T) {
	f := newRecordFixture()
	m := articleModel(false)
	m.Status = model.StatusArchived

	_, err := f.svc.CreateRecord(context.Background(), m, model.JSONMap{"title": "hello"})
	assert.True(t, errs.IsValidation(err))
}

func TestPatchRecordMergesAndRegeneratesOnlyOnSourceFields(t *testing.T) {
	f := newRecordFixture()
	m := articleModel(true)

	rec, err := f.svc.CreateRecord(context.Background(), m, model.JSONMap{"title": "hello", "views": float64(1)})
	require.NoError(t, err)
	require.Equal(t, 1, f.client.calls)

	// 只改非源字段：不重新向量化
	patched, err := f.svc.PatchRecord(context.Background(), m, rec.ID, model.JSONMap{"views": float64(2)})
	require.NoError(t, err)
	assert.Equal(t, 1, f.client.calls)
	assert.Equal(t, "hello", patched.Data["title"], "未触碰的字段保持不变")
	assert.Equal(t, float64(2), patched.Data["views"])

	// 改源字段：重新向量化，文本来自合并后的载荷
	_, err = f.svc.PatchRecord(context.Background(), m, rec.ID, model.JSONMap{"body": "updated"})
	require.NoError(t, err)
	assert.Equal(t, 2, f.client.calls)
	assert.Equal(t, "hello updated", f.client.lastText)
}

func TestReplaceRecordDropsOmittedFields(t *testing.T) {
	f := newRecordFixture()
	m := articleModel(false)

	rec, err := f.svc.CreateRecord(context.Background(), m, model.JSONMap{"title": "hello", "views": float64(5)})
	require.NoError(t, err)

	replaced, err := f.svc.ReplaceRecord(context.Background(), m, rec.ID, model.JSONMap{"title": "new"})
	require.NoError(t, err)
	assert.Equal(t, model.JSONMap{"title": "new"}, replaced.Data)

	// 替换后的载荷仍要满足 required 约束
	_, err = f.svc.ReplaceRecord(context.Background(), m, rec.ID, model.JSONMap{"views": float64(1)})
	assert.True(t, errs.IsValidation(err))
}

func TestPatchRecordKeepsRowWhenMirrorFails(t *testing.T) {
	f := newRecordFixture()
	m := articleModel(true)

	rec, err := f.svc.CreateRecord(context.Background(), m, model.JSONMap{"title": "hello"})
	require.NoError(t, err)

	// 更新路径的镜像写入失败不回滚已更新的行
	f.vectors.indexErr = errProviderDown
	patched, err := f.svc.PatchRecord(context.Background(), m, rec.ID, model.JSONMap{"title": "updated"})
	require.NoError(t, err)
	assert.Equal(t, "updated", patched.Data["title"])

	stored, err := f.records.FindByID(context.Background(), rec.ID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "updated", stored.Data["title"])
}

func TestUpdateRefreshesTimestampOnResponse(t *testing.T) {
	f := newRecordFixture()
	m := articleModel(false)

	rec, err := f.svc.CreateRecord(context.Background(), m, model.JSONMap{"title": "hello"})
	require.NoError(t, err)

	patched, err := f.svc.PatchRecord(context.Background(), m, rec.ID, model.JSONMap{"title": "updated"})
	require.NoError(t, err)
	assert.True(t, patched.UpdatedAt.After(rec.UpdatedAt), "返回给调用方的 _updated_at 必须是本次写入的时间")

	replaced, err := f.svc.ReplaceRecord(context.Background(), m, rec.ID, model.JSONMap{"title": "again"})
	require.NoError(t, err)
	assert.True(t, replaced.UpdatedAt.After(patched.UpdatedAt))
}

func TestDeleteRecordNotFound(t *testing.T) {
	f := newRecordFixture()
	err := f.svc.DeleteRecord(context.Background(), articleModel(false), "missing")
	assert.True(t, errs.IsNotFound(err))
}

func TestListRecordsRejectsUnknownFilterField(t *testing.T) {
	f := newRecordFixture()
	_, _, err := f.svc.ListRecords(context.Background(), articleModel(false), &model.ListRecordsQuery{
		Filter: map[string]interface{}{"isbn": "x"},
	})
	assert.True(t, errs.IsValidation(err))
}

func TestListRecordsPaginates(t *testing.T) {
	f := newRecordFixture()
	m := articleModel(false)
	for i := 0; i < 5; i++ {
		_, err := f.svc.CreateRecord(context.Background(), m, model.JSONMap{"title": "t", "views": float64(i)})
		require.NoError(t, err)
	}

	recs, total, err := f.svc.ListRecords(context.Background(), m, &model.ListRecordsQuery{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Len(t, recs, 2)
}

func TestSearchSimilarRequiresEmbedding(t *testing.T) {
	f := newRecordFixture()
	_, err := f.svc.SearchSimilar(context.Background(), articleModel(false), "query", 10, 0)
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))
	assert.Contains(t, err.Error(), "vector search is not enabled")
}

func TestSearchSimilarReturnsHitsInOrder(t *testing.T) {
	f := newRecordFixture()
	m := articleModel(true)

	first, err := f.svc.CreateRecord(context.Background(), m, model.JSONMap{"title": "alpha"})
	require.NoError(t, err)
	second, err := f.svc.CreateRecord(context.Background(), m, model.JSONMap{"title": "beta"})
	require.NoError(t, err)

	f.vectors.searchHits = []repository.VectorHit{
		{RecordID: second.ID, Similarity: 0.9},
		{RecordID: first.ID, Similarity: 0.4},
		{RecordID: "stale-doc", Similarity: 0.2},
	}

	results, err := f.svc.SearchSimilar(context.Background(), m, "query", 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 2, "回表不到的命中应被跳过")
	assert.Equal(t, second.ID, results[0].Record.ID)
	assert.InDelta(t, 0.9, results[0].Similarity, 1e-9)
	assert.Equal(t, first.ID, results[1].Record.ID)
}

func TestClearData(t *testing.T) {
	f := newRecordFixture()
	m := articleModel(true)
	for i := 0; i < 3; i++ {
		_, err := f.svc.CreateRecord(context.Background(), m, model.JSONMap{"title": "t"})
		require.NoError(t, err)
	}

	deleted, err := f.svc.ClearData(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)
	assert.Empty(t, f.records.records)
	assert.Empty(t, f.vectors.docs)
}
