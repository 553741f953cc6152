package repository

import (
	"context"
	"testing"

	"infinity-go/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cacheTestRepo(t *testing.T) *modelRepository {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return &modelRepository{rdb: client}
}

func TestModelCacheRoundTrip(t *testing.T) {
	r := cacheTestRepo(t)
	ctx := context.Background()

	m := &model.ModelDefinition{
		ID:      "m-1",
		OwnerID: "u-1",
		Name:    "orders",
		Fields:  model.FieldMap{"title": {Type: model.FieldTypeString}},
	}
	r.toCache(ctx, modelCacheKey(m.ID), m)

	cached := r.fromCache(ctx, modelCacheKey(m.ID))
	require.NotNil(t, cached)
	assert.Equal(t, "orders", cached.Name)
	assert.Contains(t, cached.Fields, "title")

	assert.Nil(t, r.fromCache(ctx, modelCacheKey("missing")))
}

func TestRenameDropsStaleNameKey(t *testing.T) {
	r := cacheTestRepo(t)
	ctx := context.Background()

	m := &model.ModelDefinition{ID: "m-1", OwnerID: "u-1", Name: "orders"}
	r.toCache(ctx, modelCacheKey(m.ID), m)
	r.toCache(ctx, modelNameCacheKey(m.OwnerID, m.Name), m)

	// 改名后 Update 会清掉新名字的键并顺带清掉旧名字的键
	renamed := *m
	renamed.Name = "invoices"
	r.invalidate(ctx, &renamed)
	r.dropNameKey(ctx, m.OwnerID, "orders")

	assert.Nil(t, r.fromCache(ctx, modelNameCacheKey("u-1", "orders")), "旧名字必须立刻失效")
	assert.Nil(t, r.fromCache(ctx, modelCacheKey("m-1")))
}

func TestCorruptCacheEntryFallsThrough(t *testing.T) {
	r := cacheTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.rdb.Set(ctx, modelCacheKey("m-1"), "not-json", 0).Err())
	assert.Nil(t, r.fromCache(ctx, modelCacheKey("m-1")))
	// 损坏的键被顺带删除
	assert.Equal(t, int64(0), r.rdb.Exists(ctx, modelCacheKey("m-1")).Val())
}
