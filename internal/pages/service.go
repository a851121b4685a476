// Package pages couples the authoritative page store with version history and the
// best-effort indexing pipeline.
package pages

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"slices"
	"strings"

	"github.com/mohammad-safakhou/pagemind/internal/faults"
	"github.com/mohammad-safakhou/pagemind/internal/metrics"
	"github.com/mohammad-safakhou/pagemind/internal/retrieval"
	"github.com/mohammad-safakhou/pagemind/internal/richtext"
	"github.com/mohammad-safakhou/pagemind/internal/store"
	"github.com/mohammad-safakhou/pagemind/internal/suggest"
	"github.com/mohammad-safakhou/pagemind/internal/tasks"
	"github.com/mohammad-safakhou/pagemind/internal/versions"
)

var errNotConfigured = errors.New("suggestion pipeline not configured")

// Store is the page table.
type Store interface {
	CreatePage(ctx context.Context, rec store.PageRecord) (store.PageRecord, error)
	GetPage(ctx context.Context, id string) (store.PageRecord, bool, error)
	ListWorkspacePages(ctx context.Context, workspaceID string) ([]store.PageRecord, error)
	UpdatePage(ctx context.Context, rec store.PageRecord) (store.PageRecord, bool, error)
	DeletePage(ctx context.Context, id string) (bool, error)
}

type TagExtractor interface {
	ExtractTags(ctx context.Context, text string) []string
}

type LinkSuggester interface {
	SuggestLinks(ctx context.Context, text, workspaceID string) ([]suggest.LinkSuggestion, error)
}

type SimilarFinder interface {
	FindSimilar(ctx context.Context, text, workspaceID string, limit int) ([]retrieval.Match, error)
}

type Options struct {
	// Tagger is optional; without it updates return no suggested tags.
	Tagger    TagExtractor
	Suggester LinkSuggester
	Finder    SimilarFinder
	Logger    *log.Logger
}

type Service struct {
	pages     Store
	history   *versions.Manager
	queue     tasks.Queue
	tagger    TagExtractor
	suggester LinkSuggester
	finder    SimilarFinder
	logger    *log.Logger
}

func NewService(pages Store, history *versions.Manager, queue tasks.Queue, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[PAGES] ", log.LstdFlags)
	}
	return &Service{
		pages:     pages,
		history:   history,
		queue:     queue,
		tagger:    opts.Tagger,
		suggester: opts.Suggester,
		finder:    opts.Finder,
		logger:    logger,
	}
}

type CreateInput struct {
	WorkspaceID string
	Title       string
	Content     json.RawMessage
	Tags        []string
	UserID      string
}

// UpdateInput carries a partial update; nil fields are left unchanged.
type UpdateInput struct {
	PageID  string
	Title   *string
	Content json.RawMessage
	Tags    []string
	UserID  string
}

type UpdateResult struct {
	Page          store.PageRecord
	SuggestedTags []string
	// VersionID is set when the update recorded a new version.
	VersionID string
}

type RestoreResult struct {
	Page    store.PageRecord
	Version store.VersionRecord
}

// Create stores a page, records its first version and schedules indexing.
func (s *Service) Create(ctx context.Context, in CreateInput) (store.PageRecord, error) {
	if strings.TrimSpace(in.WorkspaceID) == "" {
		return store.PageRecord{}, faults.Validation("pages.create", "workspace id required")
	}
	page, err := s.pages.CreatePage(ctx, store.PageRecord{
		WorkspaceID: in.WorkspaceID,
		Title:       in.Title,
		Content:     in.Content,
		Tags:        normalizeTags(in.Tags),
		CreatedBy:   in.UserID,
	})
	if err != nil {
		return store.PageRecord{}, err
	}
	if _, err := s.history.Snapshot(ctx, page.ID, page.Content, in.UserID); err != nil {
		s.logger.Printf("warn: initial version of page %s not recorded: %v", page.ID, err)
	} else {
		metrics.VersionsCreated.Inc()
	}
	s.enqueue(ctx, tasks.IndexPage(page))
	return page, nil
}

func (s *Service) Get(ctx context.Context, pageID string) (store.PageRecord, error) {
	page, ok, err := s.pages.GetPage(ctx, pageID)
	if err != nil {
		return store.PageRecord{}, err
	}
	if !ok {
		return store.PageRecord{}, faults.NotFound("pages.get", "page %s", pageID)
	}
	return page, nil
}

func (s *Service) ListWorkspace(ctx context.Context, workspaceID string) ([]store.PageRecord, error) {
	if strings.TrimSpace(workspaceID) == "" {
		return nil, faults.Validation("pages.list", "workspace id required")
	}
	out, err := s.pages.ListWorkspacePages(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []store.PageRecord{}
	}
	return out, nil
}

// Update applies a partial update. A content change is snapshotted before the page is
// written; a failed snapshot aborts the update. An update that changes nothing writes nothing.
func (s *Service) Update(ctx context.Context, in UpdateInput) (UpdateResult, error) {
	cur, err := s.Get(ctx, in.PageID)
	if err != nil {
		return UpdateResult{}, err
	}
	next := cur
	if in.Title != nil {
		next.Title = *in.Title
	}
	if in.Tags != nil {
		next.Tags = normalizeTags(in.Tags)
	}
	contentChanged := in.Content != nil && versions.ContentChanged(cur.Content, in.Content)
	if contentChanged {
		next.Content = in.Content
	}
	titleChanged := next.Title != cur.Title
	if !contentChanged && !titleChanged && slices.Equal(next.Tags, cur.Tags) {
		return UpdateResult{Page: cur}, nil
	}

	var res UpdateResult
	if contentChanged {
		v, err := s.history.Snapshot(ctx, cur.ID, next.Content, in.UserID)
		if err != nil {
			return UpdateResult{}, err
		}
		metrics.VersionsCreated.Inc()
		res.VersionID = v.ID
	}

	next.UpdatedBy = in.UserID
	updated, ok, err := s.pages.UpdatePage(ctx, next)
	if err != nil {
		return UpdateResult{}, err
	}
	if !ok {
		return UpdateResult{}, faults.NotFound("pages.update", "page %s", in.PageID)
	}
	res.Page = updated

	if contentChanged || titleChanged {
		s.enqueue(ctx, tasks.IndexPage(updated))
	}
	if contentChanged {
		res.SuggestedTags = s.suggestTags(ctx, updated.Content)
	}
	return res, nil
}

// Delete removes a page with its history and schedules removal from the index. A failed
// delete leaves the page and its history intact.
func (s *Service) Delete(ctx context.Context, pageID string) error {
	ok, err := s.pages.DeletePage(ctx, pageID)
	if err != nil {
		return err
	}
	if !ok {
		return faults.NotFound("pages.delete", "page %s", pageID)
	}
	// postgres cascades versions with the page; the purge covers stores that do not
	if _, err := s.history.Purge(ctx, pageID); err != nil {
		s.logger.Printf("warn: versions of deleted page %s not purged: %v", pageID, err)
	}
	s.enqueue(ctx, tasks.RemovePage(pageID))
	return nil
}

func (s *Service) History(ctx context.Context, pageID string) ([]store.VersionRecord, error) {
	if _, err := s.Get(ctx, pageID); err != nil {
		return nil, err
	}
	return s.history.ListHistory(ctx, pageID)
}

// Restore makes an earlier version the live content. The restore itself is recorded as a
// new version.
func (s *Service) Restore(ctx context.Context, pageID, versionID, userID string) (RestoreResult, error) {
	page, err := s.Get(ctx, pageID)
	if err != nil {
		return RestoreResult{}, err
	}
	v, err := s.history.Restore(ctx, pageID, versionID, userID)
	if err != nil {
		return RestoreResult{}, err
	}
	metrics.VersionsCreated.Inc()

	page.Content = v.Content
	page.UpdatedBy = userID
	updated, ok, err := s.pages.UpdatePage(ctx, page)
	if err != nil {
		return RestoreResult{}, err
	}
	if !ok {
		return RestoreResult{}, faults.NotFound("pages.restore", "page %s", pageID)
	}
	s.enqueue(ctx, tasks.IndexPage(updated))
	return RestoreResult{Page: updated, Version: v}, nil
}

// AddTag appends a tag unless the page already carries it.
func (s *Service) AddTag(ctx context.Context, pageID, tag, userID string) (store.PageRecord, error) {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" {
		return store.PageRecord{}, faults.Validation("pages.add_tag", "tag required")
	}
	page, err := s.Get(ctx, pageID)
	if err != nil {
		return store.PageRecord{}, err
	}
	if slices.Contains(page.Tags, tag) {
		return page, nil
	}
	page.Tags = append(page.Tags, tag)
	page.UpdatedBy = userID
	updated, ok, err := s.pages.UpdatePage(ctx, page)
	if err != nil {
		return store.PageRecord{}, err
	}
	if !ok {
		return store.PageRecord{}, faults.NotFound("pages.add_tag", "page %s", pageID)
	}
	return updated, nil
}

func (s *Service) SuggestLinks(ctx context.Context, text, workspaceID string) ([]suggest.LinkSuggestion, error) {
	if s.suggester == nil {
		return nil, faults.Backend("pages.suggest_links", errNotConfigured)
	}
	return s.suggester.SuggestLinks(ctx, text, workspaceID)
}

func (s *Service) FindSimilar(ctx context.Context, text, workspaceID string, limit int) ([]retrieval.Match, error) {
	if s.finder == nil {
		return nil, faults.Backend("pages.find_similar", errNotConfigured)
	}
	return s.finder.FindSimilar(ctx, text, workspaceID, limit)
}

func (s *Service) enqueue(ctx context.Context, task tasks.Task) {
	if s.queue == nil {
		return
	}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		s.logger.Printf("warn: %s task for page %s not scheduled: %v", task.Kind, task.DocumentID, err)
	}
}

func (s *Service) suggestTags(ctx context.Context, content json.RawMessage) []string {
	if s.tagger == nil {
		return nil
	}
	tags := s.tagger.ExtractTags(ctx, richtext.ExtractJSON(content))
	outcome := "ok"
	if len(tags) == 0 {
		outcome = "empty"
	}
	metrics.TagExtractions.WithLabelValues(outcome).Inc()
	return tags
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}
