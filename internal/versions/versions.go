// Package versions keeps the append-only content history of pages.
package versions

import (
	"bytes"
	"context"
	"encoding/json"
	"reflect"

	"github.com/mohammad-safakhou/pagemind/internal/faults"
	"github.com/mohammad-safakhou/pagemind/internal/store"
)

// Repository is the slice of the primary store the manager needs.
type Repository interface {
	InsertVersion(ctx context.Context, pageID string, content json.RawMessage, authorID string) (store.VersionRecord, error)
	GetVersion(ctx context.Context, id string) (store.VersionRecord, bool, error)
	ListVersions(ctx context.Context, pageID string) ([]store.VersionRecord, error)
	DeleteVersions(ctx context.Context, pageID string) (int64, error)
}

type Manager struct {
	repo Repository
}

func NewManager(repo Repository) *Manager {
	return &Manager{repo: repo}
}

// Snapshot appends a new version; existing versions are never touched.
func (m *Manager) Snapshot(ctx context.Context, pageID string, content json.RawMessage, authorID string) (store.VersionRecord, error) {
	if pageID == "" {
		return store.VersionRecord{}, faults.Validation("versions.snapshot", "page id required")
	}
	rec, err := m.repo.InsertVersion(ctx, pageID, content, authorID)
	if err != nil {
		return store.VersionRecord{}, err
	}
	return rec, nil
}

// ListHistory returns a page's versions, newest first.
func (m *Manager) ListHistory(ctx context.Context, pageID string) ([]store.VersionRecord, error) {
	out, err := m.repo.ListVersions(ctx, pageID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []store.VersionRecord{}
	}
	return out, nil
}

// Restore records the content of versionID as a new version of pageID and returns it. The
// caller applies the returned content to the live page.
func (m *Manager) Restore(ctx context.Context, pageID, versionID, authorID string) (store.VersionRecord, error) {
	target, ok, err := m.repo.GetVersion(ctx, versionID)
	if err != nil {
		return store.VersionRecord{}, err
	}
	if !ok || target.PageID != pageID {
		return store.VersionRecord{}, faults.NotFound("versions.restore", "version %s of page %s", versionID, pageID)
	}
	return m.Snapshot(ctx, pageID, target.Content, authorID)
}

// Purge deletes every version of a page.
func (m *Manager) Purge(ctx context.Context, pageID string) (int64, error) {
	return m.repo.DeleteVersions(ctx, pageID)
}

// ContentChanged compares decoded JSON structurally; input that does not decode falls back
// to a byte comparison.
func ContentChanged(old, next json.RawMessage) bool {
	var a, b interface{}
	errA := json.Unmarshal(old, &a)
	errB := json.Unmarshal(next, &b)
	if errA != nil || errB != nil {
		return !bytes.Equal(bytes.TrimSpace(old), bytes.TrimSpace(next))
	}
	return !reflect.DeepEqual(a, b)
}
