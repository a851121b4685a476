// Package indexing owns the write path of the vector index: it turns page content into
// index entries and keeps the page id to point id mapping.
package indexing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/pagemind/internal/embedding"
	"github.com/mohammad-safakhou/pagemind/internal/faults"
	"github.com/mohammad-safakhou/pagemind/internal/richtext"
	"github.com/mohammad-safakhou/pagemind/internal/store"
	"github.com/mohammad-safakhou/pagemind/internal/vectorstore"
)

// Payload keys shared with anything reading the index.
const (
	KeyDocumentID  = "documentId"
	KeyWorkspaceID = "workspaceId"
	KeyTitle       = "title"
	KeySnippet     = "snippet"
	KeyLastUpdated = "lastUpdated"
)

const snippetLength = 200

var pointNamespace = uuid.MustParse("5b0c6f0e-7a43-4d5e-9a9e-3f1f3d0b8c21")

// PointID derives the index-native id of a document.
func PointID(documentID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(documentID)).String()
}

// MappingStore persists document to point mappings.
type MappingStore interface {
	GetIndexMapping(ctx context.Context, documentID string) (store.IndexMapping, bool, error)
	UpsertIndexMapping(ctx context.Context, m store.IndexMapping) error
	DeleteIndexMapping(ctx context.Context, documentID string) error
}

// Request describes one document to index. Metadata is merged into the payload below the
// reserved keys. UpdatedAt is the source document's modification time; zero skips the
// staleness check.
type Request struct {
	DocumentID  string
	WorkspaceID string
	Content     json.RawMessage
	Metadata    map[string]any
	UpdatedAt   time.Time
}

type Options struct {
	Collection    string
	Dimensions    int
	VectorTimeout time.Duration
	Logger        *log.Logger
	Now           func() time.Time
}

type Synchronizer struct {
	vectors    vectorstore.Store
	embedder   embedding.Embedder
	mappings   MappingStore
	collection string
	dims       int
	timeout    time.Duration
	logger     *log.Logger
	now        func() time.Time
}

func NewSynchronizer(vectors vectorstore.Store, embedder embedding.Embedder, mappings MappingStore, opts Options) *Synchronizer {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[INDEX] ", log.LstdFlags)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Synchronizer{
		vectors:    vectors,
		embedder:   embedder,
		mappings:   mappings,
		collection: opts.Collection,
		dims:       opts.Dimensions,
		timeout:    opts.VectorTimeout,
		logger:     logger,
		now:        now,
	}
}

// Collection is the name of the vector collection written by this synchronizer.
func (s *Synchronizer) Collection() string { return s.collection }

// Bootstrap makes sure the collection exists with the configured dimensionality.
func (s *Synchronizer) Bootstrap(ctx context.Context) error {
	ctx, cancel := s.vectorCtx(ctx)
	defer cancel()
	if err := s.vectors.EnsureCollection(ctx, s.collection, s.dims, vectorstore.Cosine); err != nil {
		return faults.Backend("index.bootstrap", err)
	}
	return nil
}

// Upsert writes the single live entry of a document. A point recorded under a different id
// (older deployments generated random ids) is deleted first. A request older than the state
// already indexed is ignored. When the mapping shows the same text, title and workspace
// already indexed at the derived id, only the mapping is refreshed.
func (s *Synchronizer) Upsert(ctx context.Context, req Request) error {
	if strings.TrimSpace(req.DocumentID) == "" {
		return faults.Validation("index.upsert", "document id required")
	}
	if strings.TrimSpace(req.WorkspaceID) == "" {
		return faults.Validation("index.upsert", "workspace id required")
	}

	text := richtext.ExtractJSON(req.Content)
	pointID := PointID(req.DocumentID)
	mapping := store.IndexMapping{
		DocumentID:      req.DocumentID,
		PointID:         pointID,
		WorkspaceID:     req.WorkspaceID,
		Collection:      s.collection,
		ContentHash:     fingerprint(req, text),
		SourceUpdatedAt: req.UpdatedAt,
	}

	var existing store.IndexMapping
	if s.mappings != nil {
		var (
			ok  bool
			err error
		)
		existing, ok, err = s.mappings.GetIndexMapping(ctx, req.DocumentID)
		if err != nil {
			return faults.Backend("index.lookup", err)
		}
		if ok && !req.UpdatedAt.IsZero() && existing.SourceUpdatedAt.After(req.UpdatedAt) {
			s.logger.Printf("skip stale index of %s: have %s, got %s", req.DocumentID,
				existing.SourceUpdatedAt.Format(time.RFC3339Nano), req.UpdatedAt.Format(time.RFC3339Nano))
			return nil
		}
		if ok && existing.PointID == pointID && existing.Collection == s.collection && existing.ContentHash == mapping.ContentHash {
			return s.saveMapping(ctx, mapping)
		}
	}

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return err
	}
	if existing.PointID != "" && existing.PointID != pointID {
		if err := s.deletePoints(ctx, existing.PointID); err != nil {
			return err
		}
		s.logger.Printf("replaced legacy point %s of document %s", existing.PointID, req.DocumentID)
	}

	point := vectorstore.Point{
		ID:      pointID,
		Vector:  vec,
		Payload: s.payload(req, text),
	}
	vctx, cancel := s.vectorCtx(ctx)
	defer cancel()
	if err := s.vectors.Upsert(vctx, s.collection, point); err != nil {
		return faults.Backend("index.upsert", err)
	}
	return s.saveMapping(ctx, mapping)
}

func (s *Synchronizer) saveMapping(ctx context.Context, m store.IndexMapping) error {
	if s.mappings == nil {
		return nil
	}
	if err := s.mappings.UpsertIndexMapping(ctx, m); err != nil {
		return faults.Backend("index.mapping", err)
	}
	return nil
}

// Remove deletes the entry of a document. Removing an unindexed document is a no-op.
func (s *Synchronizer) Remove(ctx context.Context, documentID string) error {
	if strings.TrimSpace(documentID) == "" {
		return faults.Validation("index.remove", "document id required")
	}
	ids := []string{PointID(documentID)}
	if s.mappings != nil {
		existing, ok, err := s.mappings.GetIndexMapping(ctx, documentID)
		if err != nil {
			return faults.Backend("index.lookup", err)
		}
		if ok && existing.PointID != "" && existing.PointID != ids[0] {
			ids = append(ids, existing.PointID)
		}
	}
	if err := s.deletePoints(ctx, ids...); err != nil {
		return err
	}
	if s.mappings != nil {
		if err := s.mappings.DeleteIndexMapping(ctx, documentID); err != nil {
			return faults.Backend("index.mapping", err)
		}
	}
	return nil
}

func (s *Synchronizer) payload(req Request, text string) map[string]any {
	payload := make(map[string]any, len(req.Metadata)+5)
	for k, v := range req.Metadata {
		payload[k] = v
	}
	if _, ok := payload[KeyTitle]; !ok {
		payload[KeyTitle] = ""
	}
	payload[KeyDocumentID] = req.DocumentID
	payload[KeyWorkspaceID] = req.WorkspaceID
	payload[KeySnippet] = richtext.Snippet(text, snippetLength)
	payload[KeyLastUpdated] = s.now().UTC().Format(time.RFC3339)
	return payload
}

func (s *Synchronizer) deletePoints(ctx context.Context, ids ...string) error {
	vctx, cancel := s.vectorCtx(ctx)
	defer cancel()
	if err := s.vectors.Delete(vctx, s.collection, ids...); err != nil {
		return faults.Backend("index.delete", err)
	}
	return nil
}

func (s *Synchronizer) vectorCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}

// fingerprint covers everything the entry is built from except the timestamp.
func fingerprint(req Request, text string) string {
	title, _ := req.Metadata[KeyTitle].(string)
	h := sha256.New()
	for _, part := range []string{req.WorkspaceID, title, text} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
