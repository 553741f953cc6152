package service

import (
	"context"
	"testing"

	"infinity-go/internal/errs"
	"infinity-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type viewFixture struct {
	svc    ViewService
	views  *fakeViewRepo
	models *fakeModelRepo
	model  *model.ModelDefinition
}

func newViewFixture(t *testing.T) *viewFixture {
	views := newFakeViewRepo()
	models := newFakeModelRepo()
	m := articleModel(false)
	require.NoError(t, models.Create(context.Background(), m))
	return &viewFixture{
		svc:    NewViewService(views, models, nil),
		views:  views,
		models: models,
		model:  m,
	}
}

func (f *viewFixture) mustCreate(t *testing.T, input *model.CreateViewInput) *model.ModelView {
	v, err := f.svc.CreateView(context.Background(), f.model, "u-1", input)
	require.NoError(t, err)
	return v
}

func simpleViewInput(name string, isDefault bool) *model.CreateViewInput {
	return &model.CreateViewInput{
		Name:      name,
		Config:    model.ViewConfig{Columns: []model.ViewColumnConfig{{Field: "title", Visible: true}}},
		IsDefault: isDefault,
	}
}

func TestCreateViewValidatesConfig(t *testing.T) {
	f := newViewFixture(t)
	cases := []struct {
		name  string
		input *model.CreateViewInput
	}{
		{"空名称", &model.CreateViewInput{Config: model.ViewConfig{}}},
		{"未知列字段", &model.CreateViewInput{Name: "v", Config: model.ViewConfig{
			Columns: []model.ViewColumnConfig{{Field: "isbn"}},
		}}},
		{"非法排序方向", &model.CreateViewInput{Name: "v", Config: model.ViewConfig{
			Sorting: []model.ViewSortConfig{{Field: "title", Direction: "up"}},
		}}},
		{"未知过滤操作符", &model.CreateViewInput{Name: "v", Config: model.ViewConfig{
			Filters: []model.ViewFilterConfig{{Field: "title", Operator: "like"}},
		}}},
		{"未知布局密度", &model.CreateViewInput{Name: "v", Config: model.ViewConfig{
			Layout: model.ViewLayoutConfig{Density: "tight"},
		}}},
		{"未知聚合函数", &model.CreateViewInput{Name: "v", Config: model.ViewConfig{
			Grouping: &model.ViewGroupConfig{
				Fields:       []string{"title"},
				Aggregations: []model.ViewAggregation{{Field: "views", Function: "median"}},
			},
		}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateView(context.Background(), f.model, "u-1", tc.input)
			assert.True(t, errs.IsValidation(err), "expected validation error, got %v", err)
		})
	}
}

func TestCreateViewAllowsSystemKeyColumns(t *testing.T) {
	f := newViewFixture(t)
	_, err := f.svc.CreateView(context.Background(), f.model, "u-1", &model.CreateViewInput{
		Name: "recent",
		Config: model.ViewConfig{
			Columns: []model.ViewColumnConfig{{Field: "_created_at", Visible: true}},
			Sorting: []model.ViewSortConfig{{Field: "_created_at", Direction: "desc"}},
		},
	})
	assert.NoError(t, err)
}

func TestDefaultViewIsSingle(t *testing.T) {
	f := newViewFixture(t)
	first := f.mustCreate(t, simpleViewInput("first", true))
	second := f.mustCreate(t, simpleViewInput("second", true))

	// 新默认出现时旧默认被取代
	v, err := f.views.FindByID(context.Background(), first.ID)
	require.NoError(t, err)
	assert.False(t, v.IsDefault)

	def, err := f.svc.GetDefaultView(context.Background(), f.model, "u-1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, def.ID)
}

func TestPromoteViaUpdateUnsetsOldDefault(t *testing.T) {
	f := newViewFixture(t)
	first := f.mustCreate(t, simpleViewInput("first", true))
	second := f.mustCreate(t, simpleViewInput("second", false))

	promote := true
	_, err := f.svc.UpdateView(context.Background(), second.ID, "u-1", &model.UpdateViewInput{IsDefault: &promote})
	require.NoError(t, err)

	v, err := f.views.FindByID(context.Background(), first.ID)
	require.NoError(t, err)
	assert.False(t, v.IsDefault)
}

func TestGetViewVisibility(t *testing.T) {
	f := newViewFixture(t)
	private := f.mustCreate(t, simpleViewInput("private", false))
	public := f.mustCreate(t, &model.CreateViewInput{
		Name:     "shared",
		Config:   model.ViewConfig{},
		IsPublic: true,
	})

	// 他人的私有视图不可见，公开视图可见
	_, err := f.svc.GetView(context.Background(), private.ID, "u-2")
	assert.True(t, errs.IsNotFound(err))
	_, err = f.svc.GetView(context.Background(), public.ID, "u-2")
	assert.NoError(t, err)
}

func TestUpdateViewCrossOwnerIsForbidden(t *testing.T) {
	f := newViewFixture(t)
	v := f.mustCreate(t, simpleViewInput("v", false))

	name := "renamed"
	_, err := f.svc.UpdateView(context.Background(), v.ID, "u-2", &model.UpdateViewInput{Name: &name})
	assert.True(t, errs.IsAuthorization(err))
}

func TestDeleteLastViewIsConflict(t *testing.T) {
	f := newViewFixture(t)
	only := f.mustCreate(t, simpleViewInput("only", true))

	err := f.svc.DeleteView(context.Background(), only.ID, "u-1", "")
	assert.True(t, errs.IsConflict(err))
}

func TestDeleteDefaultViewRequiresReplacement(t *testing.T) {
	f := newViewFixture(t)
	def := f.mustCreate(t, simpleViewInput("default", true))
	other := f.mustCreate(t, simpleViewInput("other", false))

	// 不指定接替者：冲突
	err := f.svc.DeleteView(context.Background(), def.ID, "u-1", "")
	assert.True(t, errs.IsConflict(err))

	// 指定接替者：删除并提升
	require.NoError(t, f.svc.DeleteView(context.Background(), def.ID, "u-1", other.ID))
	v, err := f.views.FindByID(context.Background(), other.ID)
	require.NoError(t, err)
	assert.True(t, v.IsDefault)
}

func TestDeleteDefaultViewRejectsCrossOwnerReplacement(t *testing.T) {
	f := newViewFixture(t)
	ctx := context.Background()

	// u-2 在同一模型下有自己的默认视图和一个公开视图
	otherDefault, err := f.svc.CreateView(ctx, f.model, "u-2", simpleViewInput("other-default", true))
	require.NoError(t, err)
	otherPublic, err := f.svc.CreateView(ctx, f.model, "u-2", &model.CreateViewInput{
		Name:     "shared",
		Config:   model.ViewConfig{},
		IsPublic: true,
	})
	require.NoError(t, err)

	mine := f.mustCreate(t, simpleViewInput("mine", true))

	// 把别人的公开视图指定为接替者：按不存在处理，不能提升
	err = f.svc.DeleteView(ctx, mine.ID, "u-1", otherPublic.ID)
	assert.True(t, errs.IsNotFound(err))

	// 自己的默认视图未被删除，u-2 的单默认约束也未被破坏
	_, err = f.views.FindByID(ctx, mine.ID)
	require.NoError(t, err)
	def, err := f.views.FindDefault(ctx, f.model.ID, "u-2")
	require.NoError(t, err)
	assert.Equal(t, otherDefault.ID, def.ID)
	v, err := f.views.FindByID(ctx, otherPublic.ID)
	require.NoError(t, err)
	assert.False(t, v.IsDefault)
}

func TestDeleteNonDefaultViewNeedsNoReplacement(t *testing.T) {
	f := newViewFixture(t)
	f.mustCreate(t, simpleViewInput("default", true))
	extra := f.mustCreate(t, simpleViewInput("extra", false))

	assert.NoError(t, f.svc.DeleteView(context.Background(), extra.ID, "u-1", ""))
}
