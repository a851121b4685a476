// Package qdrant is a minimal REST client for a Qdrant collection.
package qdrant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/mohammad-safakhou/pagemind/internal/httpclient"
	"github.com/mohammad-safakhou/pagemind/internal/vectorstore"
)

type Config struct {
	URL        string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
}

type Store struct {
	baseURL string
	apiKey  string
	http    *httpclient.Client
}

func New(cfg Config) *Store {
	return &Store{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		http:    httpclient.New(cfg.Timeout, cfg.MaxRetries, 200*time.Millisecond),
	}
}

func (s *Store) headers() map[string]string {
	if s.apiKey == "" {
		return nil
	}
	return map[string]string{"api-key": s.apiKey}
}

func (s *Store) collectionURL(name string) string {
	return s.baseURL + "/collections/" + url.PathEscape(name)
}

// EnsureCollection creates the collection when absent. An existing collection is left
// untouched unless its vector size disagrees with dims.
func (s *Store) EnsureCollection(ctx context.Context, name string, dims int, metric vectorstore.Distance) error {
	if dims <= 0 {
		return fmt.Errorf("invalid dimension %d", dims)
	}
	var info struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size     int    `json:"size"`
						Distance string `json:"distance"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	err := s.http.DoJSON(ctx, http.MethodGet, s.collectionURL(name), s.headers(), nil, &info)
	if err == nil {
		if size := info.Result.Config.Params.Vectors.Size; size != 0 && size != dims {
			return fmt.Errorf("qdrant collection %s has vector size %d, want %d", name, size, dims)
		}
		return nil
	}
	var serr *httpclient.StatusError
	if !errors.As(err, &serr) || serr.StatusCode != http.StatusNotFound {
		return fmt.Errorf("qdrant get collection %s: %w", name, err)
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dims,
			"distance": string(metric),
		},
	}
	if err := s.http.DoJSON(ctx, http.MethodPut, s.collectionURL(name), s.headers(), body, nil); err != nil {
		return fmt.Errorf("qdrant create collection %s: %w", name, err)
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, collection string, points ...vectorstore.Point) error {
	if len(points) == 0 {
		return nil
	}
	out := make([]map[string]any, len(points))
	for i, p := range points {
		payload := p.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		out[i] = map[string]any{"id": p.ID, "vector": p.Vector, "payload": payload}
	}
	body := map[string]any{"points": out}
	if err := s.http.DoJSON(ctx, http.MethodPut, s.collectionURL(collection)+"/points?wait=true", s.headers(), body, nil); err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, collection string, req vectorstore.SearchRequest) ([]vectorstore.Hit, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 5
	}
	body := map[string]any{
		"vector":       req.Vector,
		"limit":        limit,
		"with_payload": true,
	}
	if f := buildFilter(req.Filter); f != nil {
		body["filter"] = f
	}
	var resp struct {
		Result []struct {
			ID      json.RawMessage `json:"id"`
			Score   float64         `json:"score"`
			Payload map[string]any  `json:"payload"`
		} `json:"result"`
	}
	if err := s.http.DoJSON(ctx, http.MethodPost, s.collectionURL(collection)+"/points/search", s.headers(), body, &resp); err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}
	hits := make([]vectorstore.Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		hits = append(hits, vectorstore.Hit{ID: pointID(r.ID), Score: r.Score, Payload: r.Payload})
	}
	return hits, nil
}

func (s *Store) Delete(ctx context.Context, collection string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	body := map[string]any{"points": ids}
	err := s.http.DoJSON(ctx, http.MethodPost, s.collectionURL(collection)+"/points/delete?wait=true", s.headers(), body, nil)
	if err != nil {
		var serr *httpclient.StatusError
		if errors.As(err, &serr) && serr.StatusCode == http.StatusNotFound {
			return nil
		}
		return fmt.Errorf("qdrant delete: %w", err)
	}
	return nil
}

func buildFilter(filter map[string]string) map[string]any {
	if len(filter) == 0 {
		return nil
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	must := make([]map[string]any, 0, len(keys))
	for _, k := range keys {
		must = append(must, map[string]any{
			"key":   k,
			"match": map[string]any{"value": filter[k]},
		})
	}
	return map[string]any{"must": must}
}

// pointID accepts both UUID strings and unsigned integer ids.
func pointID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
