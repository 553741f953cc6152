package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError(t *testing.T) {
	err := FieldValidationf("title", "field '%s' is required", "title")
	assert.True(t, IsValidation(err))
	assert.False(t, IsNotFound(err))
	assert.Equal(t, "field 'title' is required", err.Error())
	assert.Equal(t, "title", err.Field)
}

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("creating record: %w", NotFound("record"))
	assert.True(t, IsNotFound(wrapped))

	var target *NotFoundError
	assert.True(t, errors.As(wrapped, &target))
	assert.Equal(t, "record not found", target.Error())
}

func TestEmbeddingErrorUnwrap(t *testing.T) {
	cause := errors.New("provider timeout")
	err := Embedding(cause)

	assert.True(t, IsEmbedding(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "provider timeout")
}

func TestPredicatesDistinguishCategories(t *testing.T) {
	conflict := Conflictf("model with name '%s' already exists", "books")
	authz := Unauthorized("you do not own this model")

	assert.True(t, IsConflict(conflict))
	assert.True(t, IsAuthorization(authz))
	assert.False(t, IsConflict(authz))
	assert.False(t, IsAuthorization(conflict))
	assert.False(t, IsValidation(errors.New("plain")))
}
