package similarity

import (
	"context"
	"sync"
	"time"

	"agentdb-backend/internal/errors"
)

// EmbeddingRecord caches one computed vector. A record is valid only for the
// exact text content it was computed from; a node edit that changes the
// descriptive text must invalidate the record so the scorer recomputes
// lazily instead of silently serving a stale vector.
type EmbeddingRecord struct {
	NodeID        string     `json:"node_id"`
	TextContent   string     `json:"text_content"`
	Vector        []float32  `json:"vector"`
	Model         string     `json:"model"`
	CreatedAt     time.Time  `json:"created_at"`
	InvalidatedAt *time.Time `json:"invalidated_at,omitempty"`
}

// inflight coalesces concurrent embedding requests for the same text.
// Overlapping batch computations wait on the first request instead of
// issuing duplicate provider calls.
type inflight struct {
	done   chan struct{}
	vector []float32
	err    error
}

// EmbeddingStore caches vectors per node identity and text content.
type EmbeddingStore struct {
	mu       sync.Mutex
	records  map[string]*EmbeddingRecord // keyed by node uuid
	pending  map[string]*inflight        // keyed by text content
	provider EmbeddingProvider
}

// NewEmbeddingStore creates an empty cache backed by the given provider.
func NewEmbeddingStore(provider EmbeddingProvider) *EmbeddingStore {
	return &EmbeddingStore{
		records:  make(map[string]*EmbeddingRecord),
		pending:  make(map[string]*inflight),
		provider: provider,
	}
}

// Vector returns the cached vector for the node if it is valid for the given
// text, computing and caching it otherwise.
func (s *EmbeddingStore) Vector(ctx context.Context, nodeID, text string) ([]float32, error) {
	s.mu.Lock()
	if rec, ok := s.records[nodeID]; ok && rec.InvalidatedAt == nil && rec.TextContent == text {
		v := rec.Vector
		s.mu.Unlock()
		return v, nil
	}

	// Coalesce with any in-flight request for the same text.
	if call, ok := s.pending[text]; ok {
		s.mu.Unlock()
		select {
		case <-call.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if call.err != nil {
			return nil, call.err
		}
		s.store(nodeID, text, call.vector)
		return call.vector, nil
	}

	call := &inflight{done: make(chan struct{})}
	s.pending[text] = call
	s.mu.Unlock()

	vectors, err := s.provider.Embed(ctx, []string{text})
	if err == nil && len(vectors) != 1 {
		err = errors.Newf(errors.TypeExternal, "embedding_result_mismatch",
			"embedding provider returned %d vectors for 1 text", len(vectors))
	}

	s.mu.Lock()
	delete(s.pending, text)
	if err != nil {
		call.err = err
	} else {
		call.vector = vectors[0]
	}
	close(call.done)
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	s.store(nodeID, text, call.vector)
	return call.vector, nil
}

// EnsureBatch computes embeddings for every (nodeID, text) pair lacking a
// valid cached vector, issuing a single provider request covering the
// distinct missing texts. Pairs whose text is already in flight reuse that
// computation.
func (s *EmbeddingStore) EnsureBatch(ctx context.Context, pairs map[string]string) error {
	s.mu.Lock()
	missing := make(map[string][]string) // text -> node uuids waiting for it
	for nodeID, text := range pairs {
		if rec, ok := s.records[nodeID]; ok && rec.InvalidatedAt == nil && rec.TextContent == text {
			continue
		}
		if _, ok := s.pending[text]; ok {
			continue // someone else is already computing this text
		}
		missing[text] = append(missing[text], nodeID)
	}

	texts := make([]string, 0, len(missing))
	calls := make(map[string]*inflight, len(missing))
	for text := range missing {
		call := &inflight{done: make(chan struct{})}
		s.pending[text] = call
		calls[text] = call
		texts = append(texts, text)
	}
	s.mu.Unlock()

	if len(texts) == 0 {
		return nil
	}

	vectors, err := s.provider.Embed(ctx, texts)
	if err == nil && len(vectors) != len(texts) {
		err = errors.Newf(errors.TypeExternal, "embedding_result_mismatch",
			"embedding provider returned %d vectors for %d texts", len(vectors), len(texts))
	}

	s.mu.Lock()
	for i, text := range texts {
		call := calls[text]
		delete(s.pending, text)
		if err != nil {
			call.err = err
		} else {
			call.vector = vectors[i]
			for _, nodeID := range missing[text] {
				s.storeLocked(nodeID, text, vectors[i])
			}
		}
		close(call.done)
	}
	s.mu.Unlock()
	return err
}

// Invalidate drops the cached vector for a node, e.g. when its descriptive
// text changed. The next comparison recomputes lazily.
func (s *EmbeddingStore) Invalidate(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[nodeID]; ok {
		now := time.Now()
		rec.InvalidatedAt = &now
	}
}

// Record returns a copy of the cached record for introspection, or nil.
func (s *EmbeddingStore) Record(nodeID string) *EmbeddingRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[nodeID]
	if !ok {
		return nil
	}
	c := *rec
	return &c
}

// Clear drops every cached vector, e.g. on full system load.
func (s *EmbeddingStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*EmbeddingRecord)
}

// Len returns the number of cached records.
func (s *EmbeddingStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *EmbeddingStore) store(nodeID, text string, vector []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storeLocked(nodeID, text, vector)
}

func (s *EmbeddingStore) storeLocked(nodeID, text string, vector []float32) {
	s.records[nodeID] = &EmbeddingRecord{
		NodeID:      nodeID,
		TextContent: text,
		Vector:      vector,
		Model:       s.provider.Model(),
		CreatedAt:   time.Now(),
	}
}
