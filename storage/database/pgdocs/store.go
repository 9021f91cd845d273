package pgdocs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/wazazi/core"
)

// insufficient_privilege
const codePermissionDenied = "42501"

// Store is a core.DocStore keeping every document as a JSONB row of the documents table.
type Store struct {
	db      *sqlx.DB
	nowFunc func() time.Time
}

var _ core.DocStore = (*Store)(nil) // interface compliance check

func New(db *sqlx.DB) *Store {
	return &Store{db: db, nowFunc: time.Now}
}

type row struct {
	ID   string `db:"id"`
	Data []byte `db:"data"`
}

func (s *Store) Query(ctx context.Context, q core.Query) ([]core.Document, error) {
	if err := core.CheckFilters(q.Filters); err != nil {
		return nil, err
	}
	collPath := strings.Trim(q.Collection, "/")
	query, args, err := buildQuery(collPath, q)
	if err != nil {
		return nil, err
	}

	var rows []row
	if err = s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, mapError(errors.Wrap(err, "querying documents"))
	}
	docs := make([]core.Document, 0, len(rows))
	for _, r := range rows {
		doc, err := toDocument(collPath, r)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// buildQuery renders q as a SELECT on the documents table.
func buildQuery(collPath string, q core.Query) (string, []interface{}, error) {
	var (
		b    strings.Builder
		args = []interface{}{collPath}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	b.WriteString("SELECT id, data FROM documents WHERE collection = $1")
	for _, f := range q.Filters {
		val, err := json.Marshal(f.Value)
		if err != nil {
			return "", nil, errors.Wrapf(err, "encoding %s filter value", f.Field)
		}
		field := arg(f.Field) + "::text"
		switch f.Op {
		case core.OpEqual:
			fmt.Fprintf(&b, " AND data -> %s = %s::jsonb", field, arg(string(val)))
		case core.OpIn:
			fmt.Fprintf(&b, " AND %s::jsonb @> jsonb_build_array(data -> %s)", arg(string(val)), field)
		case core.OpArrayContains:
			fmt.Fprintf(&b, " AND data -> %s @> jsonb_build_array(%s::jsonb)", field, arg(string(val)))
		case core.OpArrayContainsAny:
			fmt.Fprintf(&b, " AND EXISTS (SELECT 1 FROM jsonb_array_elements(%s::jsonb) v WHERE data -> %s @> jsonb_build_array(v))",
				arg(string(val)), field)
		default:
			return "", nil, core.ErrUnsupportedFilter
		}
	}

	if q.OrderBy != "" {
		dir := "ASC"
		if q.Descending {
			dir = "DESC"
		}
		fmt.Fprintf(&b, " ORDER BY data -> %s::text %s, id", arg(q.OrderBy), dir)
	} else {
		b.WriteString(" ORDER BY id")
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %s", arg(q.Limit))
	}
	return b.String(), args, nil
}

func (s *Store) Get(ctx context.Context, path string) (core.Document, error) {
	collPath, id, err := core.SplitPath(path)
	if err != nil {
		return core.Document{}, err
	}

	var r row
	err = s.db.GetContext(ctx, &r, "SELECT id, data FROM documents WHERE collection = $1 AND id = $2", collPath, id)
	if err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return core.Document{}, core.ErrDocNotFound
		}
		return core.Document{}, mapError(errors.Wrap(err, "getting document"))
	}
	return toDocument(collPath, r)
}

const (
	insertDoc = `INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)
ON CONFLICT (collection, id) DO UPDATE SET `
	replaceData = "data = EXCLUDED.data, updated_at = now()"
	mergeData   = "data = documents.data || EXCLUDED.data, updated_at = now()"
)

func (s *Store) Set(ctx context.Context, path string, data map[string]interface{}, opts ...core.SetOption) error {
	collPath, id, err := core.SplitPath(path)
	if err != nil {
		return err
	}
	b, err := s.encode(data)
	if err != nil {
		return err
	}

	q := insertDoc + replaceData
	if core.ApplySetOptions(opts).Merge {
		q = insertDoc + mergeData
	}
	if _, err = s.db.ExecContext(ctx, q, collPath, id, string(b)); err != nil {
		return mapError(errors.Wrap(err, "setting document"))
	}
	return nil
}

func (s *Store) Update(ctx context.Context, path string, data map[string]interface{}) error {
	collPath, id, err := core.SplitPath(path)
	if err != nil {
		return err
	}
	b, err := s.encode(data)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE documents SET data = data || $3::jsonb, updated_at = now() WHERE collection = $1 AND id = $2",
		collPath, id, string(b))
	if err != nil {
		return mapError(errors.Wrap(err, "updating document"))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "updating document")
	}
	if n == 0 {
		return core.ErrDocNotFound
	}
	return nil
}

// Delete removes a document along with its sub-collections.
func (s *Store) Delete(ctx context.Context, path string) error {
	collPath, id, err := core.SplitPath(path)
	if err != nil {
		return err
	}
	prefix := core.DocPath(collPath, id) + "/"
	_, err = s.db.ExecContext(ctx,
		"DELETE FROM documents WHERE (collection = $1 AND id = $2) OR left(collection, length($3)) = $3",
		collPath, id, prefix)
	return mapError(errors.Wrap(err, "deleting document"))
}

func (s *Store) encode(data map[string]interface{}) ([]byte, error) {
	b, err := json.Marshal(core.ResolveSentinels(data, s.nowFunc()))
	return b, errors.Wrap(err, "encoding document")
}

func toDocument(collPath string, r row) (core.Document, error) {
	data := make(map[string]interface{})
	if err := json.Unmarshal(r.Data, &data); err != nil {
		return core.Document{}, errors.Wrap(err, "decoding document")
	}
	return core.Document{ID: r.ID, Path: core.DocPath(collPath, r.ID), Data: data}, nil
}

// mapError turns postgres privilege errors into core.ErrPermissionDenied.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok && pqErr.Code == codePermissionDenied {
		return errors.Wrap(core.ErrPermissionDenied, pqErr.Message)
	}
	return err
}
