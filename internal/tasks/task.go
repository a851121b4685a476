// Package tasks executes best-effort index maintenance outside the request path.
package tasks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mohammad-safakhou/pagemind/internal/indexing"
	"github.com/mohammad-safakhou/pagemind/internal/store"
)

type Kind string

const (
	KindIndex  Kind = "index"
	KindRemove Kind = "remove"
)

// Stream envelope identity of a task.
const (
	EventType      = "index.task"
	PayloadVersion = "v1"
)

// Task asks for one document to be (re)indexed or removed from the vector index.
type Task struct {
	Kind        Kind            `json:"kind"`
	DocumentID  string          `json:"document_id"`
	WorkspaceID string          `json:"workspace_id,omitempty"`
	Content     json.RawMessage `json:"content,omitempty"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"` // of the page state captured in Content
	Attempt     int             `json:"attempt"`
}

// Queue accepts tasks. Implementations never block on the task itself.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
}

// Executor runs a task to completion.
type Executor interface {
	Execute(ctx context.Context, task Task) error
}

// IndexPage builds the index task for the current state of a page.
func IndexPage(page store.PageRecord) Task {
	return Task{
		Kind:        KindIndex,
		DocumentID:  page.ID,
		WorkspaceID: page.WorkspaceID,
		Content:     page.Content,
		Metadata:    map[string]any{indexing.KeyTitle: page.Title},
		UpdatedAt:   page.UpdatedAt,
	}
}

// RemovePage builds the task dropping a page from the index.
func RemovePage(documentID string) Task {
	return Task{Kind: KindRemove, DocumentID: documentID}
}
