package similarity

import (
	"context"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"agentdb-backend/internal/domain/node"
)

// Recommendation is the scorer's advice for a matched pair.
type Recommendation string

const (
	// RecommendMerge flags a near-duplicate pair that should collapse into
	// one node.
	RecommendMerge Recommendation = "merge"
	// RecommendReview flags a merge candidate for human review.
	RecommendReview Recommendation = "review"
	// RecommendKeep means the pair is similar but acceptable.
	RecommendKeep Recommendation = "keep"
)

// Thresholds is the per-category threshold triple mapping a score to a
// recommendation: score >= NearDuplicate means merge, score >= MergeCandidate
// means review, anything else keeps.
type Thresholds struct {
	NearDuplicate  float64 `yaml:"near_duplicate" validate:"gt=0,lte=1"`
	MergeCandidate float64 `yaml:"merge_candidate" validate:"gt=0,lte=1"`
	Review         float64 `yaml:"review" validate:"gte=0,lte=1"`
}

// Config configures the scorer. Functional elements and data schemas
// tolerate different name overlap, so each category carries its own triple.
type Config struct {
	Functional Thresholds `yaml:"functional"`
	Schema     Thresholds `yaml:"schema"`
}

// DefaultConfig mirrors the shipped rule configuration defaults.
func DefaultConfig() Config {
	return Config{
		Functional: Thresholds{NearDuplicate: 0.92, MergeCandidate: 0.80, Review: 0.70},
		Schema:     Thresholds{NearDuplicate: 0.95, MergeCandidate: 0.85, Review: 0.75},
	}
}

// Match is one same-type pair at or above the requested threshold.
type Match struct {
	NodeA          string         `json:"node_a"`
	NodeB          string         `json:"node_b"`
	Score          float64        `json:"score"`
	Recommendation Recommendation `json:"recommendation"`
}

// Minimum shared-prefix length before the prefix tier applies.
const minPrefixLen = 4

// ConfigSource yields the current threshold configuration. Classification
// reads through it on every call, so a hot-reloaded rule document takes
// effect without rebuilding the scorer.
type ConfigSource func() Config

// Scorer computes tiered similarity between nodes.
type Scorer struct {
	embeddings *EmbeddingStore
	config     ConfigSource
	logger     *zap.Logger
}

// NewScorer creates a scorer over the given embedding cache. A nil config
// source falls back to the built-in default thresholds.
func NewScorer(embeddings *EmbeddingStore, config ConfigSource, logger *zap.Logger) *Scorer {
	if config == nil {
		config = DefaultConfig
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{embeddings: embeddings, config: config, logger: logger}
}

// Score computes the similarity of two nodes, short-circuiting at the
// cheapest tier that yields a confident answer:
//
//  1. different type: 0
//  2. case-insensitive exact name match: 1.0
//  3. shared name prefix of at least four characters: 0.7 + 0.2*(prefixLen/maxLen)
//  4. cosine similarity of cached (or freshly computed) embeddings
//
// Only the last tier can return an error, since only it touches the
// embedding provider.
func (s *Scorer) Score(ctx context.Context, a, b *node.Node) (float64, error) {
	if a.Type != b.Type {
		return 0, nil
	}

	nameA := strings.ToLower(strings.TrimSpace(a.Name))
	nameB := strings.ToLower(strings.TrimSpace(b.Name))
	if nameA != "" && nameA == nameB {
		return 1.0, nil
	}

	if prefixLen := commonPrefixLen(nameA, nameB); prefixLen >= minPrefixLen {
		maxLen := utf8.RuneCountInString(nameA)
		if l := utf8.RuneCountInString(nameB); l > maxLen {
			maxLen = l
		}
		return 0.7 + 0.2*float64(prefixLen)/float64(maxLen), nil
	}

	va, err := s.embeddings.Vector(ctx, a.UUID, a.EmbeddingText())
	if err != nil {
		return 0, err
	}
	vb, err := s.embeddings.Vector(ctx, b.UUID, b.EmbeddingText())
	if err != nil {
		return 0, err
	}
	return cosine(va, vb), nil
}

// FindAllSimilarityMatches batch-computes embeddings for every node lacking
// a valid cached vector, then evaluates every same-type unordered pair and
// returns the matches at or above threshold, sorted descending by score.
//
// Complexity is quadratic per type bucket, which is acceptable on bounded
// per-session graphs. Callers must tolerate results computed against a
// momentarily inconsistent mixture of old and new text if store mutations
// race with the in-flight batch; the next validation pass re-evaluates with
// fresh data.
func (s *Scorer) FindAllSimilarityMatches(ctx context.Context, nodes []*node.Node, threshold float64) ([]Match, error) {
	pairs := make(map[string]string, len(nodes))
	for _, n := range nodes {
		pairs[n.UUID] = n.EmbeddingText()
	}
	if err := s.embeddings.EnsureBatch(ctx, pairs); err != nil {
		s.logger.Warn("batch embedding computation failed, falling back to lexical tiers",
			zap.Error(err),
		)
	}

	byType := make(map[node.Type][]*node.Node)
	for _, n := range nodes {
		byType[n.Type] = append(byType[n.Type], n)
	}

	var matches []Match
	for _, bucket := range byType {
		for i := 0; i < len(bucket); i++ {
			for j := i + 1; j < len(bucket); j++ {
				score, err := s.Score(ctx, bucket[i], bucket[j])
				if err != nil {
					// Lexical tiers already returned; only the embedding
					// tier fails. Skip the pair rather than abort the scan.
					continue
				}
				if score < threshold {
					continue
				}
				matches = append(matches, Match{
					NodeA:          bucket[i].SemanticID,
					NodeB:          bucket[j].SemanticID,
					Score:          score,
					Recommendation: s.Classify(bucket[i].Type, score),
				})
			}
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].NodeA != matches[j].NodeA {
			return matches[i].NodeA < matches[j].NodeA
		}
		return matches[i].NodeB < matches[j].NodeB
	})
	return matches, nil
}

// Classify maps a score to a recommendation using the threshold triple of
// the node type's category.
func (s *Scorer) Classify(t node.Type, score float64) Recommendation {
	cfg := s.config()
	th := cfg.Functional
	if t.Category() == node.CategorySchema {
		th = cfg.Schema
	}
	switch {
	case score >= th.NearDuplicate:
		return RecommendMerge
	case score >= th.MergeCandidate:
		return RecommendReview
	default:
		return RecommendKeep
	}
}

// InvalidateEmbedding drops the cached vector for a node whose text changed.
func (s *Scorer) InvalidateEmbedding(nodeID string) {
	s.embeddings.Invalidate(nodeID)
}

// commonPrefixLen counts shared leading characters, not bytes, so multi-byte
// names never split a rune.
func commonPrefixLen(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)
	n := len(ra)
	if len(rb) < n {
		n = len(rb)
	}
	for i := 0; i < n; i++ {
		if ra[i] != rb[i] {
			return i
		}
	}
	return n
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
