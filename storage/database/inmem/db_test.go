package inmemdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/wazazi/core"
)

func seed(t *testing.T, db *DB) {
	t.Helper()
	ctx := context.Background()
	docs := map[string]map[string]interface{}{
		"comments/c1": {"student_id": "s1", "created_at": "2025-09-01T08:00:00Z", "tags": []string{"maths"}},
		"comments/c2": {"student_id": "s2", "created_at": "2025-09-03T08:00:00Z", "tags": []string{"french", "maths"}},
		"comments/c3": {"student_id": "s3", "created_at": "2025-09-02T08:00:00Z", "tags": []string{}},
	}
	for path, data := range docs {
		require.NoError(t, db.Set(ctx, path, data))
	}
}

func ids(docs []core.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID)
	}
	return out
}

func TestDB_Query(t *testing.T) {
	db := Open()
	seed(t, db)

	tests := []struct {
		name    string
		q       core.Query
		want    []string
		wantErr error
	}{
		{
			name: "all",
			q:    core.Query{Collection: "comments"},
			want: []string{"c1", "c2", "c3"},
		},
		{
			name: "equal",
			q:    core.Query{Collection: "comments", Filters: []core.Filter{core.Where("student_id", core.OpEqual, "s2")}},
			want: []string{"c2"},
		},
		{
			name: "in",
			q:    core.Query{Collection: "comments", Filters: []core.Filter{core.Where("student_id", core.OpIn, []string{"s1", "s3", "s9"})}},
			want: []string{"c1", "c3"},
		},
		{
			name: "array-contains",
			q:    core.Query{Collection: "comments", Filters: []core.Filter{core.Where("tags", core.OpArrayContains, "maths")}},
			want: []string{"c1", "c2"},
		},
		{
			name: "array-contains-any",
			q:    core.Query{Collection: "comments", Filters: []core.Filter{core.Where("tags", core.OpArrayContainsAny, []string{"french", "art"})}},
			want: []string{"c2"},
		},
		{
			name: "ordered desc with limit",
			q:    core.Query{Collection: "comments", OrderBy: "created_at", Descending: true, Limit: 2},
			want: []string{"c2", "c3"},
		},
		{
			name: "unknown collection",
			q:    core.Query{Collection: "nope"},
			want: []string{},
		},
		{
			name:    "too many values",
			q:       core.Query{Collection: "comments", Filters: []core.Filter{core.Where("student_id", core.OpIn, make([]string, 11))}},
			wantErr: core.ErrTooManyValues,
		},
		{
			name:    "unsupported operator",
			q:       core.Query{Collection: "comments", Filters: []core.Filter{core.Where("student_id", ">", "s1")}},
			wantErr: core.ErrUnsupportedFilter,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := db.Query(context.Background(), tt.q)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(docs))
		})
	}
}

func TestDB_SetMergeAndServerTimestamp(t *testing.T) {
	ctx := context.Background()
	db := Open()
	now := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)
	db.SetNowFunc(func() time.Time { return now })

	path := "comments/c1/reads/u1"
	require.NoError(t, db.Set(ctx, path, map[string]interface{}{"is_read": true, "read_at": core.ServerTimestamp, "parent_name": "p@test.test"}, core.MergeAll))
	require.NoError(t, db.Set(ctx, path, map[string]interface{}{"is_read": true, "read_at": core.ServerTimestamp}, core.MergeAll))

	doc, err := db.Get(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "u1", doc.ID)
	assert.Equal(t, path, doc.Path)
	assert.Equal(t, map[string]interface{}{
		"is_read":     true,
		"read_at":     now.Format(core.TimestampLayout),
		"parent_name": "p@test.test",
	}, doc.Data)

	// without merge the document is replaced
	require.NoError(t, db.Set(ctx, path, map[string]interface{}{"is_read": false}))
	doc, err = db.Get(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"is_read": false}, doc.Data)

	// returned data is a copy
	doc.Data["is_read"] = true
	doc, _ = db.Get(ctx, path)
	assert.Equal(t, false, doc.Data["is_read"])
}

func TestDB_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	db := Open()
	seed(t, db)
	require.NoError(t, db.Set(ctx, "comments/c1/reads/u1", map[string]interface{}{"is_read": true}))

	assert.Equal(t, core.ErrDocNotFound, db.Update(ctx, "comments/c9", map[string]interface{}{"x": 1}))
	require.NoError(t, db.Update(ctx, "comments/c1", map[string]interface{}{"student_id": "s4"}))
	doc, err := db.Get(ctx, "comments/c1")
	require.NoError(t, err)
	assert.Equal(t, "s4", doc.Data["student_id"])
	assert.Equal(t, "2025-09-01T08:00:00Z", doc.Data["created_at"])

	require.NoError(t, db.Delete(ctx, "comments/c1"))
	_, err = db.Get(ctx, "comments/c1")
	assert.True(t, core.IsNotFound(err))
	_, err = db.Get(ctx, "comments/c1/reads/u1")
	assert.True(t, core.IsNotFound(err), "sub-collections are dropped")
}

func TestDB_InvalidPath(t *testing.T) {
	ctx := context.Background()
	db := Open()

	for _, path := range []string{"", "comments", "comments/c1/reads", "comments//c1"} {
		_, err := db.Get(ctx, path)
		assert.Equal(t, core.ErrInvalidPath, err, path)
		assert.Equal(t, core.ErrInvalidPath, db.Set(ctx, path, map[string]interface{}{}), path)
	}
}

func TestDB_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Open().Query(ctx, core.Query{Collection: "comments"})
	assert.Equal(t, context.Canceled, err)
}
