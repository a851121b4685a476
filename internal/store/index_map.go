package store

import (
	"context"
	"database/sql"
	"time"
)

const mappingColumns = `document_id, point_id, workspace_id, collection, content_hash, source_updated_at, indexed_at`

// GetIndexMapping returns the recorded point id for a document.
func (s *Store) GetIndexMapping(ctx context.Context, documentID string) (IndexMapping, bool, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT `+mappingColumns+`
FROM page_index_map
WHERE document_id=$1
`, documentID)
	m, err := scanMapping(row)
	if err == sql.ErrNoRows {
		return IndexMapping{}, false, nil
	}
	if err != nil {
		return IndexMapping{}, false, err
	}
	return m, true, nil
}

// UpsertIndexMapping records the point currently representing a document.
func (s *Store) UpsertIndexMapping(ctx context.Context, m IndexMapping) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO page_index_map (document_id, point_id, workspace_id, collection, content_hash, source_updated_at, indexed_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW())
ON CONFLICT (document_id) DO UPDATE SET
  point_id = EXCLUDED.point_id,
  workspace_id = EXCLUDED.workspace_id,
  collection = EXCLUDED.collection,
  content_hash = EXCLUDED.content_hash,
  source_updated_at = EXCLUDED.source_updated_at,
  indexed_at = NOW();
`, m.DocumentID, m.PointID, m.WorkspaceID, m.Collection, m.ContentHash, nullTime(m.SourceUpdatedAt))
	return err
}

// DeleteIndexMapping forgets a document's point; a missing row is not an error.
func (s *Store) DeleteIndexMapping(ctx context.Context, documentID string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM page_index_map WHERE document_id=$1`, documentID)
	return err
}

// ClearIndexMappings forgets every mapping of a collection and reports how many were dropped.
func (s *Store) ClearIndexMappings(ctx context.Context, collection string) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM page_index_map WHERE collection=$1`, collection)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListOrphanMappings returns mappings whose page no longer exists.
func (s *Store) ListOrphanMappings(ctx context.Context, limit int) ([]IndexMapping, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT m.document_id, m.point_id, m.workspace_id, m.collection, m.content_hash, m.source_updated_at, m.indexed_at
FROM page_index_map m
LEFT JOIN pages p ON p.id = m.document_id
WHERE p.id IS NULL
ORDER BY m.indexed_at ASC
LIMIT $1
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []IndexMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMapping(row scanner) (IndexMapping, error) {
	var (
		m      IndexMapping
		source sql.NullTime
	)
	if err := row.Scan(&m.DocumentID, &m.PointID, &m.WorkspaceID, &m.Collection, &m.ContentHash, &source, &m.IndexedAt); err != nil {
		return IndexMapping{}, err
	}
	m.SourceUpdatedAt = source.Time
	return m, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
