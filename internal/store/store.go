// Package store is the Postgres primary store: pages, their version history and the mapping
// between page ids and vector index point ids.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

type Store struct {
	DB *sql.DB
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error { return s.DB.Close() }

// PageRecord is the authoritative page row.
type PageRecord struct {
	ID          string
	WorkspaceID string
	Title       string
	Content     json.RawMessage
	Tags        []string
	CreatedBy   string
	UpdatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// VersionRecord is an immutable content snapshot of a page.
type VersionRecord struct {
	ID        string
	PageID    string
	Content   json.RawMessage
	CreatedBy string
	CreatedAt time.Time
}

// IndexMapping links a page id to the point id that represents it in the vector index.
type IndexMapping struct {
	DocumentID      string
	PointID         string
	WorkspaceID     string
	Collection      string
	ContentHash     string
	SourceUpdatedAt time.Time // page updated_at the entry was built from; zero when unknown
	IndexedAt       time.Time
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func normalizeContent(content json.RawMessage) []byte {
	if len(content) == 0 {
		return []byte("null")
	}
	return content
}
