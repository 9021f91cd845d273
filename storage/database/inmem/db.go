package inmemdb

import (
	"context"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/trezcool/wazazi/core"
)

type (
	// DB is an in-memory core.DocStore.
	DB struct {
		sync.RWMutex
		collections map[string]collection // {collection path: documents}
		nowFunc     func() time.Time
	}

	collection map[string]map[string]interface{} // {id: data}
)

var _ core.DocStore = (*DB)(nil) // interface compliance check

func Open() *DB {
	return &DB{
		collections: make(map[string]collection),
		nowFunc:     time.Now,
	}
}

// SetNowFunc overrides the clock used to resolve core.ServerTimestamp.
func (db *DB) SetNowFunc(fn func() time.Time) {
	db.Lock()
	defer db.Unlock()
	db.nowFunc = fn
}

func (db *DB) Query(ctx context.Context, q core.Query) ([]core.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := core.CheckFilters(q.Filters); err != nil {
		return nil, err
	}
	filters, err := normalizeFilters(q.Filters)
	if err != nil {
		return nil, err
	}

	db.RLock()
	defer db.RUnlock()

	coll := db.collections[strings.Trim(q.Collection, "/")]
	docs := make([]core.Document, 0, len(coll))
	for id, data := range coll {
		if matchesAll(data, filters) {
			docs = append(docs, newDocument(q.Collection, id, data))
		}
	}

	sort.SliceStable(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	if q.OrderBy != "" {
		sort.SliceStable(docs, func(i, j int) bool {
			c := compareValues(docs[i].Data[q.OrderBy], docs[j].Data[q.OrderBy])
			if q.Descending {
				return c > 0
			}
			return c < 0
		})
	}
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return docs, nil
}

func (db *DB) Get(ctx context.Context, path string) (core.Document, error) {
	if err := ctx.Err(); err != nil {
		return core.Document{}, err
	}
	collPath, id, err := core.SplitPath(path)
	if err != nil {
		return core.Document{}, err
	}

	db.RLock()
	defer db.RUnlock()

	data, ok := db.collections[collPath][id]
	if !ok {
		return core.Document{}, core.ErrDocNotFound
	}
	return newDocument(collPath, id, data), nil
}

func (db *DB) Set(ctx context.Context, path string, data map[string]interface{}, opts ...core.SetOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	collPath, id, err := core.SplitPath(path)
	if err != nil {
		return err
	}
	o := core.ApplySetOptions(opts)

	db.Lock()
	defer db.Unlock()

	values, err := core.Normalize(core.ResolveSentinels(data, db.nowFunc()))
	if err != nil {
		return err
	}
	coll, ok := db.collections[collPath]
	if !ok {
		coll = make(collection)
		db.collections[collPath] = coll
	}
	if existing, ok := coll[id]; ok && o.Merge {
		for k, v := range values {
			existing[k] = v
		}
		return nil
	}
	coll[id] = values
	return nil
}

func (db *DB) Update(ctx context.Context, path string, data map[string]interface{}) error {
	if _, err := db.Get(ctx, path); err != nil {
		return err
	}
	return db.Set(ctx, path, data, core.MergeAll)
}

func (db *DB) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	collPath, id, err := core.SplitPath(path)
	if err != nil {
		return err
	}

	db.Lock()
	defer db.Unlock()

	delete(db.collections[collPath], id)
	// drop sub-collections of the document
	prefix := path + "/"
	for p := range db.collections {
		if strings.HasPrefix(p, prefix) {
			delete(db.collections, p)
		}
	}
	return nil
}

// newDocument copies data so callers never share the stored map.
func newDocument(collPath, id string, data map[string]interface{}) core.Document {
	cp := make(map[string]interface{}, len(data))
	for k, v := range data {
		cp[k] = v
	}
	return core.Document{ID: id, Path: core.DocPath(strings.Trim(collPath, "/"), id), Data: cp}
}

func normalizeFilters(filters []core.Filter) ([]core.Filter, error) {
	out := make([]core.Filter, len(filters))
	for i, f := range filters {
		values, err := core.Normalize(map[string]interface{}{"v": f.Value})
		if err != nil {
			return nil, err
		}
		out[i] = core.Filter{Field: f.Field, Op: f.Op, Value: values["v"]}
	}
	return out, nil
}

func matchesAll(data map[string]interface{}, filters []core.Filter) bool {
	for _, f := range filters {
		if !matches(data[f.Field], f) {
			return false
		}
	}
	return true
}

func matches(field interface{}, f core.Filter) bool {
	switch f.Op {
	case core.OpEqual:
		return reflect.DeepEqual(field, f.Value)
	case core.OpIn:
		vals, _ := core.FilterValues(f.Value)
		return containsValue(vals, field)
	case core.OpArrayContains:
		arr, _ := field.([]interface{})
		return containsValue(arr, f.Value)
	case core.OpArrayContainsAny:
		arr, _ := field.([]interface{})
		vals, _ := core.FilterValues(f.Value)
		for _, v := range vals {
			if containsValue(arr, v) {
				return true
			}
		}
	}
	return false
}

func containsValue(vals []interface{}, v interface{}) bool {
	for _, val := range vals {
		if reflect.DeepEqual(val, v) {
			return true
		}
	}
	return false
}

// compareValues orders numbers, timestamps and strings; anything else compares equal.
func compareValues(a, b interface{}) int {
	switch av := a.(type) {
	case float64:
		if bv, ok := b.(float64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
		}
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0
		}
		at, aErr := time.Parse(time.RFC3339Nano, av)
		bt, bErr := time.Parse(time.RFC3339Nano, bv)
		if aErr == nil && bErr == nil {
			switch {
			case at.Before(bt):
				return -1
			case at.After(bt):
				return 1
			}
			return 0
		}
		return strings.Compare(av, bv)
	}
	return 0
}
