package service

import (
	"testing"

	"infinity-go/internal/errs"
	"infinity-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bookFields() model.FieldMap {
	return model.FieldMap{
		"title":     {Type: model.FieldTypeString, Required: true},
		"pages":     {Type: model.FieldTypeNumber},
		"published": {Type: model.FieldTypeBoolean},
		"released":  {Type: model.FieldTypeDate},
		"genre":     {Type: model.FieldTypeString, Enum: []interface{}{"fiction", "poetry"}},
	}
}

func TestValidateFieldsAcceptsValidPayload(t *testing.T) {
	data := model.JSONMap{
		"title":     "Go in Practice",
		"pages":     float64(320),
		"published": true,
		"released":  "2024-03-01",
		"genre":     "fiction",
	}
	assert.NoError(t, validateFields(bookFields(), data))
}

func TestValidateFieldsRejectsUnknownField(t *testing.T) {
	err := validateFields(bookFields(), model.JSONMap{"title": "x", "isbn": "123"})
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))
	assert.Contains(t, err.Error(), "isbn")
}

func TestValidateFieldsRequired(t *testing.T) {
	// 缺失
	err := validateFields(bookFields(), model.JSONMap{"pages": float64(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "title")

	// 显式 null 等同缺失
	err = validateFields(bookFields(), model.JSONMap{"title": nil})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required")
}

func TestValidateFieldsTypeMismatch(t *testing.T) {
	cases := []model.JSONMap{
		{"title": 42},
		{"title": "x", "pages": "many"},
		{"title": "x", "published": "yes"},
		{"title": "x", "released": "not-a-date"},
	}
	for _, data := range cases {
		err := validateFields(bookFields(), data)
		assert.True(t, errs.IsValidation(err), "payload %v should fail validation", data)
	}
}

func TestValidateFieldsEnum(t *testing.T) {
	err := validateFields(bookFields(), model.JSONMap{"title": "x", "genre": "biography"})
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))

	assert.NoError(t, validateFields(bookFields(), model.JSONMap{"title": "x", "genre": "poetry"}))
}

func TestValidateFieldsAcceptsRFC3339Date(t *testing.T) {
	data := model.JSONMap{"title": "x", "released": "2024-03-01T12:30:00Z"}
	assert.NoError(t, validateFields(bookFields(), data))
}

func TestStripSystemKeys(t *testing.T) {
	data := model.JSONMap{
		"title":       "x",
		"_id":         "abc",
		"_created_at": "2024-01-01",
		"_vector":     []float64{0.1},
	}
	out := stripSystemKeys(data)
	assert.Equal(t, model.JSONMap{"title": "x"}, out)
	// 原载荷不被修改
	assert.Len(t, data, 4)
}
