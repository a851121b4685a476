package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// InsertVersion appends a snapshot of a page's content.
func (s *Store) InsertVersion(ctx context.Context, pageID string, content json.RawMessage, authorID string) (VersionRecord, error) {
	if pageID == "" {
		return VersionRecord{}, fmt.Errorf("page_id required")
	}
	row := s.DB.QueryRowContext(ctx, `
INSERT INTO page_versions (id, page_id, content, created_by, created_at)
VALUES ($1,$2,$3,$4,clock_timestamp())
RETURNING id, page_id, content, created_by, created_at
`, uuid.NewString(), pageID, normalizeContent(content), authorID)
	rec, _, err := scanVersion(row)
	return rec, err
}

// GetVersion fetches a single version by id.
func (s *Store) GetVersion(ctx context.Context, id string) (VersionRecord, bool, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT id, page_id, content, created_by, created_at
FROM page_versions
WHERE id=$1
`, id)
	return scanVersion(row)
}

// ListVersions returns every version of a page, newest first.
func (s *Store) ListVersions(ctx context.Context, pageID string) ([]VersionRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, page_id, content, created_by, created_at
FROM page_versions
WHERE page_id=$1
ORDER BY created_at DESC, id DESC
`, pageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []VersionRecord
	for rows.Next() {
		rec, _, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteVersions removes all versions of a page and reports how many were removed.
func (s *Store) DeleteVersions(ctx context.Context, pageID string) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM page_versions WHERE page_id=$1`, pageID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanVersion(row scanner) (VersionRecord, bool, error) {
	var (
		rec VersionRecord
		raw []byte
	)
	if err := row.Scan(&rec.ID, &rec.PageID, &raw, &rec.CreatedBy, &rec.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return VersionRecord{}, false, nil
		}
		return VersionRecord{}, false, err
	}
	rec.Content = append(json.RawMessage{}, raw...)
	return rec, true, nil
}
