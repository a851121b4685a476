// Package pgvector stores index entries in a Postgres table with a pgvector column.
package pgvector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/lib/pq"
	pgv "github.com/pgvector/pgvector-go"

	"github.com/mohammad-safakhou/pagemind/internal/vectorstore"
)

var collectionName = regexp.MustCompile(`^[A-Za-z0-9_]{1,48}$`)

// Store keeps one table per collection named vec_<collection>.
type Store struct {
	DB *sql.DB
}

func New(db *sql.DB) *Store { return &Store{DB: db} }

func tableName(collection string) (string, error) {
	if !collectionName.MatchString(collection) {
		return "", fmt.Errorf("invalid collection name %q", collection)
	}
	return pq.QuoteIdentifier("vec_" + collection), nil
}

func (s *Store) EnsureCollection(ctx context.Context, name string, dims int, metric vectorstore.Distance) error {
	if dims <= 0 {
		return fmt.Errorf("invalid dimension %d", dims)
	}
	if metric != vectorstore.Cosine {
		return fmt.Errorf("unsupported metric %q", metric)
	}
	table, err := tableName(name)
	if err != nil {
		return err
	}
	if _, err := s.DB.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("create extension: %w", err)
	}
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id UUID PRIMARY KEY,
  embedding vector(%d) NOT NULL,
  payload JSONB NOT NULL DEFAULT '{}'::jsonb,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, table, dims)
	if _, err := s.DB.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, collection string, points ...vectorstore.Point) error {
	if len(points) == 0 {
		return nil
	}
	table, err := tableName(collection)
	if err != nil {
		return err
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
INSERT INTO %s (id, embedding, payload, updated_at)
VALUES ($1,$2,$3,NOW())
ON CONFLICT (id) DO UPDATE SET
  embedding = EXCLUDED.embedding,
  payload = EXCLUDED.payload,
  updated_at = NOW()`, table))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range points {
		if len(p.Vector) == 0 {
			return fmt.Errorf("embedding vector required for point %s", p.ID)
		}
		payload := p.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		payloadBytes, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, p.ID, pgv.NewVector(p.Vector), payloadBytes); err != nil {
			return fmt.Errorf("upsert point %s: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

func (s *Store) Search(ctx context.Context, collection string, req vectorstore.SearchRequest) ([]vectorstore.Hit, error) {
	if len(req.Vector) == 0 {
		return nil, fmt.Errorf("vector must not be empty")
	}
	table, err := tableName(collection)
	if err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 5
	}

	args := []any{pgv.NewVector(req.Vector)}
	var where []string
	keys := make([]string, 0, len(req.Filter))
	for k := range req.Filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, k, req.Filter[k])
		where = append(where, fmt.Sprintf("payload->>$%d = $%d", len(args)-1, len(args)))
	}
	args = append(args, limit)

	query := fmt.Sprintf(`SELECT id, 1 - (embedding <=> $1) AS score, payload FROM %s`, table)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY embedding <=> $1 LIMIT $%d", len(args))

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []vectorstore.Hit
	for rows.Next() {
		var (
			h          vectorstore.Hit
			payloadRaw []byte
		)
		if err := rows.Scan(&h.ID, &h.Score, &payloadRaw); err != nil {
			return nil, err
		}
		if len(payloadRaw) > 0 {
			if err := json.Unmarshal(payloadRaw, &h.Payload); err != nil {
				return nil, fmt.Errorf("decode payload: %w", err)
			}
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *Store) Delete(ctx context.Context, collection string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	table, err := tableName(collection)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1::uuid[])`, table)
	if _, err := s.DB.ExecContext(ctx, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("delete points: %w", err)
	}
	return nil
}
