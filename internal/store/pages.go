package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const pageColumns = `id, workspace_id, title, content, tags, created_by, updated_by, created_at, updated_at`

// CreatePage inserts a page; an empty ID is replaced by a random UUID.
func (s *Store) CreatePage(ctx context.Context, rec PageRecord) (PageRecord, error) {
	if strings.TrimSpace(rec.WorkspaceID) == "" {
		return PageRecord{}, fmt.Errorf("workspace_id required")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Tags == nil {
		rec.Tags = []string{}
	}
	row := s.DB.QueryRowContext(ctx, `
INSERT INTO pages (id, workspace_id, title, content, tags, created_by, updated_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$6,NOW(),NOW())
RETURNING `+pageColumns,
		rec.ID, rec.WorkspaceID, rec.Title, normalizeContent(rec.Content), pq.Array(rec.Tags), rec.CreatedBy)
	out, _, err := scanPage(row)
	return out, err
}

// GetPage returns the page with the given id.
func (s *Store) GetPage(ctx context.Context, id string) (PageRecord, bool, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+pageColumns+` FROM pages WHERE id=$1`, id)
	return scanPage(row)
}

// ListWorkspacePages returns a workspace's pages, most recently updated first.
func (s *Store) ListWorkspacePages(ctx context.Context, workspaceID string) ([]PageRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT `+pageColumns+`
FROM pages
WHERE workspace_id=$1
ORDER BY updated_at DESC, id DESC
`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPages(rows)
}

// UpdatePage overwrites title, content and tags and stamps the editor.
func (s *Store) UpdatePage(ctx context.Context, rec PageRecord) (PageRecord, bool, error) {
	if rec.Tags == nil {
		rec.Tags = []string{}
	}
	row := s.DB.QueryRowContext(ctx, `
UPDATE pages
SET title=$2, content=$3, tags=$4, updated_by=$5, updated_at=NOW()
WHERE id=$1
RETURNING `+pageColumns,
		rec.ID, rec.Title, normalizeContent(rec.Content), pq.Array(rec.Tags), rec.UpdatedBy)
	return scanPage(row)
}

// DeletePage removes a page; versions cascade.
func (s *Store) DeletePage(ctx context.Context, id string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM pages WHERE id=$1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListPagesNeedingIndex returns pages without an index mapping or whose mapping was built
// from an older state of the page.
func (s *Store) ListPagesNeedingIndex(ctx context.Context, collection string, limit int) ([]PageRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT p.id, p.workspace_id, p.title, p.content, p.tags, p.created_by, p.updated_by, p.created_at, p.updated_at
FROM pages p
LEFT JOIN page_index_map m ON m.document_id = p.id AND m.collection = $1
WHERE m.document_id IS NULL OR COALESCE(m.source_updated_at, m.indexed_at) < p.updated_at
ORDER BY p.updated_at ASC
LIMIT $2
`, collection, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPages(rows)
}

func collectPages(rows *sql.Rows) ([]PageRecord, error) {
	var out []PageRecord
	for rows.Next() {
		rec, _, err := scanPage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanPage(row scanner) (PageRecord, bool, error) {
	var (
		rec  PageRecord
		raw  []byte
		tags pq.StringArray
	)
	if err := row.Scan(&rec.ID, &rec.WorkspaceID, &rec.Title, &raw, &tags, &rec.CreatedBy, &rec.UpdatedBy, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return PageRecord{}, false, nil
		}
		return PageRecord{}, false, err
	}
	rec.Content = append(json.RawMessage{}, raw...)
	rec.Tags = []string(tags)
	if rec.Tags == nil {
		rec.Tags = []string{}
	}
	return rec, true, nil
}
