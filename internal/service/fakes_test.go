package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"infinity-go/internal/model"
	"infinity-go/internal/repository"

	"gorm.io/gorm"
)

// 内存版的仓储实现，行为对齐 GORM 实现的约定（未命中返回 gorm.ErrRecordNotFound）。

type fakeModelRepo struct {
	models map[string]*model.ModelDefinition
}

func newFakeModelRepo() *fakeModelRepo {
	return &fakeModelRepo{models: make(map[string]*model.ModelDefinition)}
}

func (r *fakeModelRepo) Create(_ context.Context, m *model.ModelDefinition) error {
	for _, existing := range r.models {
		if existing.Name == m.Name && existing.OwnerID == m.OwnerID {
			return gorm.ErrDuplicatedKey
		}
	}
	cp := *m
	r.models[m.ID] = &cp
	return nil
}

func (r *fakeModelRepo) FindByID(_ context.Context, id string) (*model.ModelDefinition, error) {
	m, ok := r.models[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *fakeModelRepo) FindByName(_ context.Context, name, ownerID string) (*model.ModelDefinition, error) {
	for _, m := range r.models {
		if m.Name == name && m.OwnerID == ownerID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeModelRepo) FindByOwner(_ context.Context, ownerID string) ([]*model.ModelDefinition, error) {
	var out []*model.ModelDefinition
	for _, m := range r.models {
		if m.OwnerID == ownerID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeModelRepo) Update(_ context.Context, m *model.ModelDefinition) error {
	if _, ok := r.models[m.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *m
	r.models[m.ID] = &cp
	return nil
}

func (r *fakeModelRepo) Delete(_ context.Context, id string) error {
	delete(r.models, id)
	return nil
}

func (r *fakeModelRepo) NameTaken(_ context.Context, name, ownerID, excludeID string) (bool, error) {
	for _, m := range r.models {
		if m.Name == name && m.OwnerID == ownerID && m.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

type fakeRecordRepo struct {
	records map[string]*model.DataRecord
	order   []string
}

func newFakeRecordRepo() *fakeRecordRepo {
	return &fakeRecordRepo{records: make(map[string]*model.DataRecord)}
}

func (r *fakeRecordRepo) Create(_ context.Context, rec *model.DataRecord) error {
	now := time.Now()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	cp := *rec
	r.records[rec.ID] = &cp
	r.order = append(r.order, rec.ID)
	return nil
}

func (r *fakeRecordRepo) FindByID(_ context.Context, id, modelID string) (*model.DataRecord, error) {
	rec, ok := r.records[id]
	if !ok || rec.ModelID != modelID {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *fakeRecordRepo) FindByIDs(_ context.Context, modelID string, ids []string) ([]*model.DataRecord, error) {
	var out []*model.DataRecord
	for _, id := range ids {
		if rec, ok := r.records[id]; ok && rec.ModelID == modelID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeRecordRepo) FindWithFilter(_ context.Context, modelID string, filter map[string]interface{}, offset, limit int) ([]*model.DataRecord, int64, error) {
	var matched []*model.DataRecord
	for _, id := range r.order {
		rec, ok := r.records[id]
		if !ok || rec.ModelID != modelID {
			continue
		}
		match := true
		for k, v := range filter {
			if rec.Data[k] != v {
				match = false
				break
			}
		}
		if match {
			cp := *rec
			matched = append(matched, &cp)
		}
	}
	total := int64(len(matched))
	if offset >= len(matched) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func (r *fakeRecordRepo) FindAllByModel(_ context.Context, modelID string) ([]*model.DataRecord, error) {
	return r.findByModel(modelID), nil
}

func (r *fakeRecordRepo) Update(_ context.Context, rec *model.DataRecord) error {
	if _, ok := r.records[rec.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	rec.UpdatedAt = time.Now()
	cp := *rec
	r.records[rec.ID] = &cp
	return nil
}

func (r *fakeRecordRepo) Delete(_ context.Context, id, modelID string) (int64, error) {
	rec, ok := r.records[id]
	if !ok || rec.ModelID != modelID {
		return 0, nil
	}
	delete(r.records, id)
	return 1, nil
}

func (r *fakeRecordRepo) DeleteByModel(_ context.Context, modelID string) (int64, error) {
	var deleted int64
	for id, rec := range r.records {
		if rec.ModelID == modelID {
			delete(r.records, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *fakeRecordRepo) SetStatusByModel(_ context.Context, modelID, status string) error {
	for _, rec := range r.records {
		if rec.ModelID == modelID {
			rec.Status = status
		}
	}
	return nil
}

func (r *fakeRecordRepo) findByModel(modelID string) []*model.DataRecord {
	var out []*model.DataRecord
	for _, id := range r.order {
		if rec, ok := r.records[id]; ok && rec.ModelID == modelID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out
}

type fakeViewRepo struct {
	views map[string]*model.ModelView
}

func newFakeViewRepo() *fakeViewRepo {
	return &fakeViewRepo{views: make(map[string]*model.ModelView)}
}

func (r *fakeViewRepo) unsetDefault(modelID, ownerID string) {
	for _, v := range r.views {
		if v.ModelID == modelID && v.OwnerID == ownerID {
			v.IsDefault = false
		}
	}
}

func (r *fakeViewRepo) Create(_ context.Context, v *model.ModelView) error {
	if v.IsDefault {
		r.unsetDefault(v.ModelID, v.OwnerID)
	}
	cp := *v
	r.views[v.ID] = &cp
	return nil
}

func (r *fakeViewRepo) FindByID(_ context.Context, id string) (*model.ModelView, error) {
	v, ok := r.views[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *v
	return &cp, nil
}

func (r *fakeViewRepo) FindVisible(_ context.Context, modelID, ownerID string) ([]*model.ModelView, error) {
	var out []*model.ModelView
	for _, v := range r.views {
		if v.ModelID == modelID && (v.OwnerID == ownerID || v.IsPublic) {
			cp := *v
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeViewRepo) FindDefault(_ context.Context, modelID, ownerID string) (*model.ModelView, error) {
	for _, v := range r.views {
		if v.ModelID == modelID && v.OwnerID == ownerID && v.IsDefault {
			cp := *v
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeViewRepo) CountByModel(_ context.Context, modelID string) (int64, error) {
	var count int64
	for _, v := range r.views {
		if v.ModelID == modelID {
			count++
		}
	}
	return count, nil
}

func (r *fakeViewRepo) Update(_ context.Context, v *model.ModelView) error {
	if _, ok := r.views[v.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	if v.IsDefault {
		r.unsetDefault(v.ModelID, v.OwnerID)
	}
	cp := *v
	r.views[v.ID] = &cp
	return nil
}

func (r *fakeViewRepo) DeleteWithReplacement(_ context.Context, v *model.ModelView, replacementID string) error {
	delete(r.views, v.ID)
	if replacementID == "" {
		return nil
	}
	repl, ok := r.views[replacementID]
	if !ok || repl.ModelID != v.ModelID || repl.OwnerID != v.OwnerID {
		return gorm.ErrRecordNotFound
	}
	repl.IsDefault = true
	return nil
}

func (r *fakeViewRepo) DeleteByModel(_ context.Context, modelID string) error {
	for id, v := range r.views {
		if v.ModelID == modelID {
			delete(r.views, id)
		}
	}
	return nil
}

type fakeVectorRepo struct {
	docs       map[string]model.Vector
	searchHits []repository.VectorHit
	indexErr   error
}

func newFakeVectorRepo() *fakeVectorRepo {
	return &fakeVectorRepo{docs: make(map[string]model.Vector)}
}

func (r *fakeVectorRepo) Index(_ context.Context, _, recordID string, vec model.Vector) error {
	if r.indexErr != nil {
		return r.indexErr
	}
	r.docs[recordID] = vec
	return nil
}

func (r *fakeVectorRepo) Delete(_ context.Context, recordID string) error {
	delete(r.docs, recordID)
	return nil
}

func (r *fakeVectorRepo) DeleteByModel(_ context.Context, _ string) error {
	r.docs = make(map[string]model.Vector)
	return nil
}

func (r *fakeVectorRepo) Search(_ context.Context, _ string, _ model.Vector, limit int, _ float64) ([]repository.VectorHit, error) {
	if len(r.searchHits) > limit {
		return r.searchHits[:limit], nil
	}
	return r.searchHits, nil
}

// fakeEmbeddingClient 返回固定向量并记录最后一次请求的文本。
type fakeEmbeddingClient struct {
	lastText string
	calls    int
	err      error
}

func (c *fakeEmbeddingClient) CreateEmbedding(_ context.Context, text string) ([]float32, error) {
	c.calls++
	c.lastText = text
	if c.err != nil {
		return nil, c.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

var errProviderDown = errors.New("provider unavailable")
