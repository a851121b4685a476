package pages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/mohammad-safakhou/pagemind/internal/faults"
	"github.com/mohammad-safakhou/pagemind/internal/store"
	"github.com/mohammad-safakhou/pagemind/internal/tasks"
	"github.com/mohammad-safakhou/pagemind/internal/versions"
)

var quiet = log.New(io.Discard, "", 0)

// memStore keeps pages and versions in maps.
type memStore struct {
	mu        sync.Mutex
	pages     map[string]store.PageRecord
	versions  []store.VersionRecord
	seq       int
	updates   int
	insertErr error
	deleteErr error
}

func newMemStore() *memStore {
	return &memStore{pages: map[string]store.PageRecord{}}
}

func (m *memStore) CreatePage(ctx context.Context, rec store.PageRecord) (store.PageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	rec.ID = fmt.Sprintf("page-%d", m.seq)
	rec.UpdatedBy = rec.CreatedBy
	rec.CreatedAt = time.Now()
	rec.UpdatedAt = rec.CreatedAt
	m.pages[rec.ID] = rec
	return rec, nil
}

func (m *memStore) GetPage(ctx context.Context, id string) (store.PageRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.pages[id]
	return rec, ok, nil
}

func (m *memStore) ListWorkspacePages(ctx context.Context, workspaceID string) ([]store.PageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.PageRecord
	for _, p := range m.pages {
		if p.WorkspaceID == workspaceID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) UpdatePage(ctx context.Context, rec store.PageRecord) (store.PageRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pages[rec.ID]; !ok {
		return store.PageRecord{}, false, nil
	}
	m.updates++
	rec.UpdatedAt = time.Now()
	m.pages[rec.ID] = rec
	return rec, true, nil
}

func (m *memStore) DeletePage(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return false, m.deleteErr
	}
	_, ok := m.pages[id]
	delete(m.pages, id)
	return ok, nil
}

func (m *memStore) InsertVersion(ctx context.Context, pageID string, content json.RawMessage, authorID string) (store.VersionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return store.VersionRecord{}, m.insertErr
	}
	m.seq++
	v := store.VersionRecord{ID: fmt.Sprintf("v-%d", m.seq), PageID: pageID, Content: content, CreatedBy: authorID, CreatedAt: time.Now()}
	m.versions = append(m.versions, v)
	return v, nil
}

func (m *memStore) GetVersion(ctx context.Context, id string) (store.VersionRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.versions {
		if v.ID == id {
			return v, true, nil
		}
	}
	return store.VersionRecord{}, false, nil
}

func (m *memStore) ListVersions(ctx context.Context, pageID string) ([]store.VersionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.VersionRecord
	for i := len(m.versions) - 1; i >= 0; i-- {
		if m.versions[i].PageID == pageID {
			out = append(out, m.versions[i])
		}
	}
	return out, nil
}

func (m *memStore) DeleteVersions(ctx context.Context, pageID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.versions[:0]
	var n int64
	for _, v := range m.versions {
		if v.PageID == pageID {
			n++
			continue
		}
		kept = append(kept, v)
	}
	m.versions = kept
	return n, nil
}

func (m *memStore) versionCount(pageID string) int {
	vs, _ := m.ListVersions(context.Background(), pageID)
	return len(vs)
}

type recordingQueue struct {
	mu    sync.Mutex
	tasks []tasks.Task
	err   error
}

func (q *recordingQueue) Enqueue(ctx context.Context, task tasks.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return q.err
}

type stubTagger struct {
	tags  []string
	calls int
}

func (s *stubTagger) ExtractTags(ctx context.Context, text string) []string {
	s.calls++
	return s.tags
}

func doc(text string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":%q}]}]}`, text))
}

func newTestService(st *memStore, q tasks.Queue, tagger TagExtractor) *Service {
	return NewService(st, versions.NewManager(st), q, Options{Tagger: tagger, Logger: quiet})
}

func TestCreateSnapshotsAndSchedulesIndexing(t *testing.T) {
	st, q := newMemStore(), &recordingQueue{}
	svc := newTestService(st, q, nil)

	page, err := svc.Create(context.Background(), CreateInput{WorkspaceID: "w1", Title: "Rocket Design", Content: doc("fuel"), Tags: []string{" Space ", "space"}, UserID: "u1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(page.Tags) != 1 || page.Tags[0] != "space" {
		t.Fatalf("tags should be normalized, got %v", page.Tags)
	}
	if st.versionCount(page.ID) != 1 {
		t.Fatalf("expected the initial version")
	}
	if len(q.tasks) != 1 || q.tasks[0].Kind != tasks.KindIndex || q.tasks[0].Metadata["title"] != "Rocket Design" {
		t.Fatalf("unexpected tasks %+v", q.tasks)
	}
	if _, err := svc.Create(context.Background(), CreateInput{}); !errors.Is(err, faults.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpdateIdenticalContentCreatesNoVersion(t *testing.T) {
	st, q := newMemStore(), &recordingQueue{}
	svc := newTestService(st, q, nil)
	ctx := context.Background()

	page, _ := svc.Create(ctx, CreateInput{WorkspaceID: "w1", Title: "Notes", Content: doc("draft"), UserID: "u1"})
	before := st.versionCount(page.ID)

	first, err := svc.Update(ctx, UpdateInput{PageID: page.ID, Content: doc("final"), UserID: "u2"})
	if err != nil {
		t.Fatalf("first update: %v", err)
	}
	if first.VersionID == "" {
		t.Fatalf("content change must record a version")
	}
	// same document, different key order and whitespace
	same := json.RawMessage(`{"content":[{"content":[{"text":"final","type":"text"}],"type":"paragraph"}], "type":"doc"}`)
	second, err := svc.Update(ctx, UpdateInput{PageID: page.ID, Content: same, UserID: "u2"})
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	if second.VersionID != "" {
		t.Fatalf("identical content must not record a version")
	}
	if got := st.versionCount(page.ID) - before; got != 1 {
		t.Fatalf("expected exactly one new version, got %d", got)
	}
	if st.updates != 1 {
		t.Fatalf("a no-op update must not write the page, got %d writes", st.updates)
	}
	if len(q.tasks) != 2 {
		t.Fatalf("expected create and first update to schedule indexing, got %d tasks", len(q.tasks))
	}
}

func TestUpdateTitleOnlyReindexesWithoutVersion(t *testing.T) {
	st, q := newMemStore(), &recordingQueue{}
	tagger := &stubTagger{tags: []string{"x"}}
	svc := newTestService(st, q, tagger)
	ctx := context.Background()

	page, _ := svc.Create(ctx, CreateInput{WorkspaceID: "w1", Title: "Old", Content: doc("body"), UserID: "u1"})
	title := "New"
	res, err := svc.Update(ctx, UpdateInput{PageID: page.ID, Title: &title, UserID: "u1"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if res.Page.Title != "New" || res.VersionID != "" || res.SuggestedTags != nil {
		t.Fatalf("unexpected result %+v", res)
	}
	if st.versionCount(page.ID) != 1 {
		t.Fatalf("title-only change must not record a version")
	}
	if tagger.calls != 0 {
		t.Fatalf("tags are only suggested on content change")
	}
	last := q.tasks[len(q.tasks)-1]
	if last.Kind != tasks.KindIndex || last.Metadata["title"] != "New" {
		t.Fatalf("expected re-index with the new title, got %+v", last)
	}
}

func TestUpdateReturnsSuggestedTags(t *testing.T) {
	st := newMemStore()
	tagger := &stubTagger{tags: []string{"rockets", "propulsion"}}
	svc := newTestService(st, &recordingQueue{}, tagger)
	ctx := context.Background()

	page, _ := svc.Create(ctx, CreateInput{WorkspaceID: "w1", Content: doc("a"), UserID: "u1"})
	res, err := svc.Update(ctx, UpdateInput{PageID: page.ID, Content: doc("liquid fuel"), UserID: "u1"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(res.SuggestedTags) != 2 || res.SuggestedTags[0] != "rockets" {
		t.Fatalf("unexpected tags %v", res.SuggestedTags)
	}
}

func TestUpdateAbortsWhenSnapshotFails(t *testing.T) {
	st, q := newMemStore(), &recordingQueue{}
	svc := newTestService(st, q, nil)
	ctx := context.Background()

	page, _ := svc.Create(ctx, CreateInput{WorkspaceID: "w1", Content: doc("original"), UserID: "u1"})
	st.insertErr = errors.New("disk full")
	if _, err := svc.Update(ctx, UpdateInput{PageID: page.ID, Content: doc("changed"), UserID: "u1"}); err == nil {
		t.Fatalf("expected snapshot failure to abort the update")
	}
	got, _ := svc.Get(ctx, page.ID)
	if string(got.Content) != string(doc("original")) {
		t.Fatalf("page must keep its content, got %s", got.Content)
	}
	if len(q.tasks) != 1 {
		t.Fatalf("aborted update must not schedule indexing")
	}
}

func TestUpdateMissingPage(t *testing.T) {
	svc := newTestService(newMemStore(), &recordingQueue{}, nil)
	if _, err := svc.Update(context.Background(), UpdateInput{PageID: "nope", Content: doc("x")}); !errors.Is(err, faults.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestEnqueueFailureDoesNotFailWrite(t *testing.T) {
	q := &recordingQueue{err: errors.New("redis down")}
	svc := newTestService(newMemStore(), q, nil)
	if _, err := svc.Create(context.Background(), CreateInput{WorkspaceID: "w1", Content: doc("x")}); err != nil {
		t.Fatalf("enqueue failures must not reach the caller: %v", err)
	}
}

func TestDeletePurgesHistoryAndSchedulesRemoval(t *testing.T) {
	st, q := newMemStore(), &recordingQueue{}
	svc := newTestService(st, q, nil)
	ctx := context.Background()

	page, _ := svc.Create(ctx, CreateInput{WorkspaceID: "w1", Content: doc("x"), UserID: "u1"})
	_, _ = svc.Update(ctx, UpdateInput{PageID: page.ID, Content: doc("y"), UserID: "u1"})
	if err := svc.Delete(ctx, page.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if st.versionCount(page.ID) != 0 {
		t.Fatalf("versions must be purged")
	}
	last := q.tasks[len(q.tasks)-1]
	if last.Kind != tasks.KindRemove || last.DocumentID != page.ID {
		t.Fatalf("expected remove task, got %+v", last)
	}
	if err := svc.Delete(ctx, page.ID); !errors.Is(err, faults.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestDeleteFailureKeepsHistory(t *testing.T) {
	st, q := newMemStore(), &recordingQueue{}
	svc := newTestService(st, q, nil)
	ctx := context.Background()

	page, _ := svc.Create(ctx, CreateInput{WorkspaceID: "w1", Content: doc("x"), UserID: "u1"})
	_, _ = svc.Update(ctx, UpdateInput{PageID: page.ID, Content: doc("y"), UserID: "u1"})
	queued := len(q.tasks)

	st.deleteErr = errors.New("connection reset")
	if err := svc.Delete(ctx, page.ID); err == nil {
		t.Fatalf("expected the store failure to surface")
	}
	if _, err := svc.Get(ctx, page.ID); err != nil {
		t.Fatalf("page must still exist: %v", err)
	}
	if n := st.versionCount(page.ID); n != 2 {
		t.Fatalf("history must survive a failed delete, got %d versions", n)
	}
	if len(q.tasks) != queued {
		t.Fatalf("a failed delete must not schedule index removal")
	}
}

func TestRestoreAppliesVersionAsNewVersion(t *testing.T) {
	st, q := newMemStore(), &recordingQueue{}
	svc := newTestService(st, q, nil)
	ctx := context.Background()

	page, _ := svc.Create(ctx, CreateInput{WorkspaceID: "w1", Content: doc("v1"), UserID: "u1"})
	_, _ = svc.Update(ctx, UpdateInput{PageID: page.ID, Content: doc("v2"), UserID: "u1"})

	history, err := svc.History(ctx, page.ID)
	if err != nil || len(history) != 2 {
		t.Fatalf("History: %d %v", len(history), err)
	}
	oldest := history[len(history)-1]

	res, err := svc.Restore(ctx, page.ID, oldest.ID, "u2")
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if string(res.Page.Content) != string(doc("v1")) || res.Page.UpdatedBy != "u2" {
		t.Fatalf("unexpected restored page %+v", res.Page)
	}
	if res.Version.ID == oldest.ID || st.versionCount(page.ID) != 3 {
		t.Fatalf("restore must append a new version")
	}
	if last := q.tasks[len(q.tasks)-1]; last.Kind != tasks.KindIndex || string(last.Content) != string(doc("v1")) {
		t.Fatalf("expected re-index of restored content, got %+v", last)
	}

	other, _ := svc.Create(ctx, CreateInput{WorkspaceID: "w1", Content: doc("other")})
	if _, err := svc.Restore(ctx, other.ID, oldest.ID, "u2"); !errors.Is(err, faults.ErrNotFound) {
		t.Fatalf("restoring a foreign version must be not found, got %v", err)
	}
}

func TestAddTag(t *testing.T) {
	st := newMemStore()
	svc := newTestService(st, &recordingQueue{}, nil)
	ctx := context.Background()

	page, _ := svc.Create(ctx, CreateInput{WorkspaceID: "w1", Tags: []string{"space"}})
	got, err := svc.AddTag(ctx, page.ID, " Rockets ", "u1")
	if err != nil {
		t.Fatalf("AddTag: %v", err)
	}
	if len(got.Tags) != 2 || got.Tags[1] != "rockets" {
		t.Fatalf("unexpected tags %v", got.Tags)
	}
	writes := st.updates
	if _, err := svc.AddTag(ctx, page.ID, "space", "u1"); err != nil {
		t.Fatalf("AddTag: %v", err)
	}
	if st.updates != writes {
		t.Fatalf("an existing tag must not rewrite the page")
	}
	if _, err := svc.AddTag(ctx, page.ID, "  ", "u1"); !errors.Is(err, faults.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSuggestionsWithoutPipeline(t *testing.T) {
	svc := newTestService(newMemStore(), nil, nil)
	if _, err := svc.SuggestLinks(context.Background(), "x", "w1"); !errors.Is(err, faults.ErrBackend) {
		t.Fatalf("expected backend error, got %v", err)
	}
}
