package service

import (
	"context"
	"testing"

	"infinity-go/internal/errs"
	"infinity-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type schemaFixture struct {
	svc     SchemaService
	models  *fakeModelRepo
	records *fakeRecordRepo
	views   *fakeViewRepo
	vectors *fakeVectorRepo
}

func newSchemaFixture() *schemaFixture {
	models := newFakeModelRepo()
	records := newFakeRecordRepo()
	views := newFakeViewRepo()
	vectors := newFakeVectorRepo()
	viewSvc := NewViewService(views, models, nil)
	svc := NewSchemaService(models, records, views, vectors, viewSvc)
	return &schemaFixture{svc: svc, models: models, records: records, views: views, vectors: vectors}
}

func validCreateInput() *model.CreateModelInput {
	return &model.CreateModelInput{
		Name: "articles",
		Fields: model.FieldMap{
			"title": {Type: model.FieldTypeString, Required: true},
			"body":  {Type: model.FieldTypeString},
		},
	}
}

func TestCreateModelBootstrapsDefaultView(t *testing.T) {
	f := newSchemaFixture()

	m, err := f.svc.CreateModel(context.Background(), "u-1", validCreateInput())
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, m.Status)

	v, err := f.views.FindDefault(context.Background(), m.ID, "u-1")
	require.NoError(t, err)
	assert.True(t, v.IsDefault)
	assert.Len(t, v.Config.Columns, 2, "默认视图应包含全部字段")
}

func TestCreateModelValidation(t *testing.T) {
	f := newSchemaFixture()
	cases := []struct {
		name  string
		input *model.CreateModelInput
	}{
		{"非法模型名", &model.CreateModelInput{Name: "my model!", Fields: validCreateInput().Fields}},
		{"没有字段", &model.CreateModelInput{Name: "empty"}},
		{"vector 类型不可声明", &model.CreateModelInput{Name: "m", Fields: model.FieldMap{"v": {Type: model.FieldTypeVector}}}},
		{"下划线开头的字段名", &model.CreateModelInput{Name: "m", Fields: model.FieldMap{"_hidden": {Type: model.FieldTypeString}}}},
		{"枚举值类型不匹配", &model.CreateModelInput{Name: "m", Fields: model.FieldMap{
			"tag": {Type: model.FieldTypeString, Enum: []interface{}{"a", float64(1)}},
		}}},
		{"默认值不在枚举内", &model.CreateModelInput{Name: "m", Fields: model.FieldMap{
			"tag": {Type: model.FieldTypeString, Enum: []interface{}{"a"}, Default: "b"},
		}}},
		{"关联指向不存在的字段", &model.CreateModelInput{
			Name:          "m",
			Fields:        model.FieldMap{"title": {Type: model.FieldTypeString}},
			Relationships: model.RelationshipMap{"author": {TargetModelID: "m-2", ForeignKey: "author_id"}},
		}},
		{"向量源字段必须是 string", &model.CreateModelInput{
			Name:      "m",
			Fields:    model.FieldMap{"count": {Type: model.FieldTypeNumber}},
			Embedding: &model.EmbeddingSpec{Enabled: true, SourceFields: []string{"count"}},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateModel(context.Background(), "u-1", tc.input)
			assert.True(t, errs.IsValidation(err), "expected validation error, got %v", err)
		})
	}
}

func TestCreateModelNameConflict(t *testing.T) {
	f := newSchemaFixture()
	_, err := f.svc.CreateModel(context.Background(), "u-1", validCreateInput())
	require.NoError(t, err)

	_, err = f.svc.CreateModel(context.Background(), "u-1", validCreateInput())
	assert.True(t, errs.IsConflict(err))

	// 不同 owner 可以使用同名模型
	_, err = f.svc.CreateModel(context.Background(), "u-2", validCreateInput())
	assert.NoError(t, err)
}

func TestGetModelCrossOwnerIsNotFound(t *testing.T) {
	f := newSchemaFixture()
	m, err := f.svc.CreateModel(context.Background(), "u-1", validCreateInput())
	require.NoError(t, err)

	_, err = f.svc.GetModel(context.Background(), m.ID, "u-2")
	assert.True(t, errs.IsNotFound(err), "跨 owner 读取不应泄露资源是否存在")
}

func TestUpdateModelCrossOwnerIsForbidden(t *testing.T) {
	f := newSchemaFixture()
	m, err := f.svc.CreateModel(context.Background(), "u-1", validCreateInput())
	require.NoError(t, err)

	newName := "renamed"
	_, err = f.svc.UpdateModel(context.Background(), m.ID, "u-2", &model.UpdateModelInput{Name: &newName})
	assert.True(t, errs.IsAuthorization(err))
}

func TestUpdateModelRevalidatesEmbeddingAgainstNewFields(t *testing.T) {
	f := newSchemaFixture()
	input := validCreateInput()
	input.Embedding = &model.EmbeddingSpec{Enabled: true, SourceFields: []string{"body"}}
	m, err := f.svc.CreateModel(context.Background(), "u-1", input)
	require.NoError(t, err)

	// 把 body 字段换掉，向量配置随之失效
	_, err = f.svc.UpdateModel(context.Background(), m.ID, "u-1", &model.UpdateModelInput{
		Fields: model.FieldMap{"title": {Type: model.FieldTypeString, Required: true}},
	})
	assert.True(t, errs.IsValidation(err))
}

func TestDeleteModelCascades(t *testing.T) {
	f := newSchemaFixture()
	m, err := f.svc.CreateModel(context.Background(), "u-1", validCreateInput())
	require.NoError(t, err)

	require.NoError(t, f.records.Create(context.Background(), &model.DataRecord{ID: "r-1", ModelID: m.ID, OwnerID: "u-1", Data: model.JSONMap{"title": "x"}}))

	require.NoError(t, f.svc.DeleteModel(context.Background(), m.ID, "u-1"))

	_, err = f.svc.GetModel(context.Background(), m.ID, "u-1")
	assert.True(t, errs.IsNotFound(err))
	assert.Empty(t, f.records.records, "模型删除应级联删除记录")
	count, _ := f.views.CountByModel(context.Background(), m.ID)
	assert.Zero(t, count, "模型删除应级联删除视图")
}

func TestArchiveAndRestore(t *testing.T) {
	f := newSchemaFixture()
	m, err := f.svc.CreateModel(context.Background(), "u-1", validCreateInput())
	require.NoError(t, err)

	archived, err := f.svc.ArchiveModel(context.Background(), m.ID, "u-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusArchived, archived.Status)

	restored, err := f.svc.RestoreModel(context.Background(), m.ID, "u-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, restored.Status)
}
