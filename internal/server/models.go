package server

import (
	"encoding/json"
	"time"

	"github.com/mohammad-safakhou/pagemind/internal/retrieval"
	"github.com/mohammad-safakhou/pagemind/internal/store"
	"github.com/mohammad-safakhou/pagemind/internal/suggest"
)

// HTTPError is a generic error envelope returned by the server.
type HTTPError struct {
	Error string `json:"error"`
}

type CreatePageRequest struct {
	Title   string          `json:"title"`
	Content json.RawMessage `json:"content"`
	Tags    []string        `json:"tags"`
}

// UpdatePageRequest is a partial update; omitted fields are kept.
type UpdatePageRequest struct {
	Title   *string         `json:"title"`
	Content json.RawMessage `json:"content"`
	Tags    []string        `json:"tags"`
}

type AddTagRequest struct {
	Tag string `json:"tag"`
}

type PageResponse struct {
	ID          string          `json:"id"`
	WorkspaceID string          `json:"workspace_id"`
	Title       string          `json:"title"`
	Content     json.RawMessage `json:"content"`
	Tags        []string        `json:"tags"`
	CreatedBy   string          `json:"created_by"`
	UpdatedBy   string          `json:"updated_by"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type UpdatePageResponse struct {
	Page          PageResponse `json:"page"`
	VersionID     string       `json:"version_id,omitempty"`
	SuggestedTags []string     `json:"suggested_tags"`
}

type VersionResponse struct {
	ID        string          `json:"id"`
	PageID    string          `json:"page_id"`
	Content   json.RawMessage `json:"content"`
	CreatedBy string          `json:"created_by"`
	CreatedAt time.Time       `json:"created_at"`
}

type RestoreResponse struct {
	Page    PageResponse    `json:"page"`
	Version VersionResponse `json:"version"`
}

// SuggestRequest carries the text to link from, either plain or as a rich-text document.
type SuggestRequest struct {
	Text    string          `json:"text"`
	Content json.RawMessage `json:"content"`
	Limit   int             `json:"limit"`
}

// SuggestResponse is returned even when the pipeline is down; Degraded is set then.
type SuggestResponse struct {
	Suggestions []suggest.LinkSuggestion `json:"suggestions"`
	Degraded    bool                     `json:"degraded"`
}

type SimilarResponse struct {
	Matches  []retrieval.Match `json:"matches"`
	Degraded bool              `json:"degraded"`
}

func toPageResponse(p store.PageRecord) PageResponse {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return PageResponse{
		ID:          p.ID,
		WorkspaceID: p.WorkspaceID,
		Title:       p.Title,
		Content:     p.Content,
		Tags:        tags,
		CreatedBy:   p.CreatedBy,
		UpdatedBy:   p.UpdatedBy,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toVersionResponse(v store.VersionRecord) VersionResponse {
	return VersionResponse{ID: v.ID, PageID: v.PageID, Content: v.Content, CreatedBy: v.CreatedBy, CreatedAt: v.CreatedAt}
}
