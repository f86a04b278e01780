package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ragqa/internal/domain"
	"ragqa/internal/vectorstore"
)

// Index keeps the corpus vectors in a Qdrant collection with Euclid
// distance. Point ids are corpus positions. The collection is rebuilt by
// Build and only searched afterwards.
type Index struct {
	url        string
	apiKey     string
	collection string
	batchSize  int
	dimension  int
	count      int
	client     *http.Client
}

// Config contains connection details for a Qdrant server.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
	BatchSize  int
}

// New returns an index bound to cfg. Call Build before searching.
func New(cfg Config) *Index {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 256
	}
	return &Index{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		batchSize:  batch,
		client:     &http.Client{Timeout: timeout},
	}
}

// Build drops and recreates the collection, then uploads vectors in batches.
func (s *Index) Build(ctx context.Context, vectors [][]float32) error {
	dim, err := vectorstore.CheckVectors(vectors)
	if err != nil {
		return err
	}
	collURL := fmt.Sprintf("%s/collections/%s", s.url, s.collection)
	if err := s.do(ctx, http.MethodDelete, collURL, nil, nil, http.StatusNotFound); err != nil {
		return fmt.Errorf("qdrant drop collection: %w", err)
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dim,
			"distance": "Euclid",
		},
	}
	if err := s.do(ctx, http.MethodPut, collURL, body, nil); err != nil {
		return fmt.Errorf("qdrant create collection: %w", err)
	}
	for start := 0; start < len(vectors); start += s.batchSize {
		end := start + s.batchSize
		if end > len(vectors) {
			end = len(vectors)
		}
		points := make([]map[string]any, 0, end-start)
		for i := start; i < end; i++ {
			points = append(points, map[string]any{
				"id":     i,
				"vector": vectors[i],
			})
		}
		url := fmt.Sprintf("%s/points?wait=true", collURL)
		if err := s.do(ctx, http.MethodPut, url, map[string]any{"points": points}, nil); err != nil {
			return fmt.Errorf("qdrant upsert points %d-%d: %w", start, end-1, err)
		}
	}
	s.dimension = dim
	s.count = len(vectors)
	return nil
}

// Dimension returns the vector length the collection was built with.
func (s *Index) Dimension() int { return s.dimension }

// Len returns the number of uploaded vectors.
func (s *Index) Len() int { return s.count }

// Search asks Qdrant for the k nearest points. Qdrant reports the plain
// Euclidean distance; it is squared here so both backends share one scale,
// and results are re-sorted with the index tie-break.
func (s *Index) Search(ctx context.Context, query []float32, k int) ([]domain.Neighbor, error) {
	if err := vectorstore.CheckQuery(query, s.dimension, k); err != nil {
		return nil, err
	}
	req := map[string]any{
		"vector":       query,
		"limit":        k,
		"with_payload": false,
	}
	var resp struct {
		Result []struct {
			ID    int     `json:"id"`
			Score float32 `json:"score"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", s.url, s.collection)
	if err := s.do(ctx, http.MethodPost, url, req, &resp); err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}
	out := make([]domain.Neighbor, 0, len(resp.Result))
	for _, r := range resp.Result {
		out = append(out, domain.Neighbor{Index: r.ID, Distance: r.Score * r.Score})
	}
	vectorstore.SortNeighbors(out)
	return out, nil
}

// do sends body as JSON and decodes the reply into out when non-nil.
// Statuses listed in tolerate are treated as success.
func (s *Index) do(ctx context.Context, method, url string, body, out any, tolerate ...int) error {
	var payload *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(data)
	} else {
		payload = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	for _, code := range tolerate {
		if resp.StatusCode == code {
			return nil
		}
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
