// Package agentdb composes the graph core behind one unified service. The
// facade is the only surface external collaborators interact with: the chat
// and graph canvases, the WebSocket broadcaster, the cold-storage sync and
// the diff-protocol validator all go through it. It re-exposes the store's
// change-event stream, owns the current modeling phase, and runs background
// validation debounced behind a quiet period.
package agentdb

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"agentdb-backend/internal/cache"
	"agentdb-backend/internal/domain/edge"
	"agentdb-backend/internal/domain/graph"
	"agentdb-backend/internal/domain/node"
	"agentdb-backend/internal/domain/shared"
	"agentdb-backend/internal/events"
	"agentdb-backend/internal/rules"
	"agentdb-backend/internal/similarity"
	"agentdb-backend/internal/store"
	"agentdb-backend/internal/tracker"
	"agentdb-backend/internal/variant"
)

// Params collects the facade's collaborators. All are constructed once at
// session start; the facade owns their composition, not their lifecycle
// internals.
type Params struct {
	Store      *store.GraphStore
	Bus        *events.Bus
	Tracker    *tracker.ChangeTracker
	Variants   *variant.Pool
	Embeddings *similarity.EmbeddingStore
	Scorer     *similarity.Scorer
	Cache      *cache.ResponseCache
	Evaluator  *rules.Evaluator
	RuleLoader *rules.Loader

	// ValidationDebounce is the quiet period for background validation.
	// Zero disables the background validator.
	ValidationDebounce time.Duration

	Logger *zap.Logger
}

// ValidationHandler receives the result of each background validation run.
type ValidationHandler func(*rules.Result)

// Service is the unified graph engine facade.
type Service struct {
	store      *store.GraphStore
	bus        *events.Bus
	tracker    *tracker.ChangeTracker
	variants   *variant.Pool
	embeddings *similarity.EmbeddingStore
	scorer     *similarity.Scorer
	cache      *cache.ResponseCache
	evaluator  *rules.Evaluator
	ruleLoader *rules.Loader
	logger     *zap.Logger

	phaseMu sync.RWMutex
	phase   shared.Phase

	validationMu sync.RWMutex
	onValidation ValidationHandler

	debouncer *debouncer
	unsub     events.UnsubscribeFunc
}

// New assembles the facade and hooks the background validator onto the
// change stream.
func New(p Params) *Service {
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	s := &Service{
		store:      p.Store,
		bus:        p.Bus,
		tracker:    p.Tracker,
		variants:   p.Variants,
		embeddings: p.Embeddings,
		scorer:     p.Scorer,
		cache:      p.Cache,
		evaluator:  p.Evaluator,
		ruleLoader: p.RuleLoader,
		logger:     p.Logger,
		phase:      shared.PhaseRequirements,
	}

	if p.ValidationDebounce > 0 {
		s.debouncer = newDebouncer(p.ValidationDebounce, s.runBackgroundValidation)
		s.unsub = s.bus.Subscribe(func(shared.ChangeEvent) {
			s.debouncer.Trigger()
		})
	}
	return s
}

// Shutdown stops the background validator and detaches from the change
// stream. The store and its data remain usable.
func (s *Service) Shutdown() {
	if s.debouncer != nil {
		s.debouncer.Stop()
	}
	if s.unsub != nil {
		s.unsub()
	}
	s.logger.Info("agentdb service shut down")
}

// ----------------------------------------------------------------------------
// Change stream
// ----------------------------------------------------------------------------

// Subscribe registers a change-event handler and returns its unsubscribe
// func. Events arrive in mutation order, after each mutation commits.
func (s *Service) Subscribe(h events.Handler) events.UnsubscribeFunc {
	return s.bus.Subscribe(h)
}

// ----------------------------------------------------------------------------
// Graph writes
// ----------------------------------------------------------------------------

// AddNode inserts a node, failing on a semantic ID collision.
func (s *Service) AddNode(n *node.Node) error {
	s.invalidateIfTextChanged(n)
	return s.store.SetNode(n)
}

// UpsertNode inserts a node, replacing any existing owner of its semantic ID.
func (s *Service) UpsertNode(n *node.Node) error {
	s.invalidateIfTextChanged(n)
	return s.store.UpsertNode(n)
}

// DeleteNode removes a node and cascades to its incident edges.
func (s *Service) DeleteNode(semanticID string) bool {
	if n := s.store.Node(semanticID); n != nil {
		s.embeddings.Invalidate(n.UUID)
	}
	return s.store.DeleteNode(semanticID)
}

// AddEdge inserts an edge, failing on a composite key collision. Both
// endpoints must exist.
func (s *Service) AddEdge(e *edge.Edge) error {
	return s.store.SetEdge(e)
}

// UpsertEdge inserts an edge, replacing any existing owner of its composite
// key. Both endpoints must exist.
func (s *Service) UpsertEdge(e *edge.Edge) error {
	return s.store.UpsertEdge(e)
}

// DeleteEdge removes an edge by uuid.
func (s *Service) DeleteEdge(edgeUUID string) bool {
	return s.store.DeleteEdge(edgeUUID)
}

func (s *Service) invalidateIfTextChanged(n *node.Node) {
	existing := s.store.NodeByUUID(n.UUID)
	if existing != nil && existing.EmbeddingText() != n.EmbeddingText() {
		s.embeddings.Invalidate(n.UUID)
	}
}

// ----------------------------------------------------------------------------
// Graph reads
// ----------------------------------------------------------------------------

// Node returns a copy of the node with the given semantic ID, or nil.
func (s *Service) Node(semanticID string) *node.Node {
	return s.store.Node(semanticID)
}

// Nodes returns copies of the nodes matching the filter.
func (s *Service) Nodes(filter store.NodeFilter) []*node.Node {
	return s.store.Nodes(filter)
}

// Edges returns copies of the edges matching the filter.
func (s *Service) Edges(filter store.EdgeFilter) []*edge.Edge {
	return s.store.Edges(filter)
}

// NodeEdges returns the edges incident to a node in the given direction.
func (s *Service) NodeEdges(semanticID string, direction shared.Direction) []*edge.Edge {
	return s.store.NodeEdges(semanticID, direction)
}

// Version returns the store's current version counter.
func (s *Service) Version() int64 {
	return s.store.Version()
}

// ToGraphState exports a deep copy of the full graph.
func (s *Service) ToGraphState() *graph.State {
	return s.store.ToGraphState()
}

// ----------------------------------------------------------------------------
// Session load
// ----------------------------------------------------------------------------

// ClearForSystemLoad empties the store and evicts the response cache and the
// embedding cache wholesale. The version counter stays monotonic.
func (s *Service) ClearForSystemLoad() {
	s.store.Clear()
	s.cache.Clear()
	s.embeddings.Clear()
	s.tracker.ClearBaseline()
}

// LoadSystem replaces the session content with the given state, clearing the
// derived caches first. Called by the cold-storage sync at session start.
func (s *Service) LoadSystem(state *graph.State) {
	s.ClearForSystemLoad()
	s.store.LoadFromState(state)
}

// ----------------------------------------------------------------------------
// Baseline change tracking
// ----------------------------------------------------------------------------

// CaptureBaseline snapshots the current graph as the comparison point.
func (s *Service) CaptureBaseline() {
	s.tracker.CaptureBaseline(s.store.ToGraphState())
}

// ChangeSummary returns aggregate change counts against the baseline.
func (s *Service) ChangeSummary() tracker.Summary {
	return s.tracker.Summary(s.store.ToGraphState())
}

// Changes returns the per-entity change records against the baseline.
func (s *Service) Changes() []tracker.ChangeRecord {
	return s.tracker.Changes(s.store.ToGraphState())
}

// HasChanges reports whether the graph diverged from the baseline.
func (s *Service) HasChanges() bool {
	return s.tracker.HasChanges(s.store.ToGraphState())
}

// RestoreBaseline loads the baseline state back into the store, discarding
// every change since capture. The restored state keeps the current version
// counter so version numbers never regress. Returns false with no baseline.
func (s *Service) RestoreBaseline() bool {
	baseline := s.tracker.BaselineState()
	if baseline == nil {
		return false
	}
	baseline.Version = s.store.Version()
	s.store.LoadFromState(baseline)
	s.cache.Clear()
	return true
}

// ----------------------------------------------------------------------------
// Variants
// ----------------------------------------------------------------------------

// CreateVariant snapshots the current graph into a new isolated variant.
func (s *Service) CreateVariant(baseID string) string {
	return s.variants.CreateVariant(baseID, s.store.ToGraphState())
}

// Variant returns a deep copy of a variant's state, or nil.
func (s *Service) Variant(id string) *graph.State {
	return s.variants.Variant(id)
}

// ApplyToVariant applies an isolated diff to one variant.
func (s *Service) ApplyToVariant(id string, diff *graph.Diff) error {
	return s.variants.ApplyToVariant(id, diff)
}

// PromoteVariant removes the variant from the pool and returns its final
// state. Writing it back through LoadSystem is the caller's decision.
func (s *Service) PromoteVariant(id string) (*graph.State, error) {
	return s.variants.PromoteVariant(id)
}

// DiscardVariant drops a variant. Idempotent.
func (s *Service) DiscardVariant(id string) {
	s.variants.DiscardVariant(id)
}

// CompareVariants diffs two variants by ID.
func (s *Service) CompareVariants(idA, idB string) (*variant.Comparison, error) {
	return s.variants.CompareVariants(idA, idB)
}

// ListVariants returns introspection info for all variants.
func (s *Service) ListVariants() []variant.Info {
	return s.variants.ListVariants()
}

// VariantsForSystem returns the variants derived from the given base ID.
func (s *Service) VariantsForSystem(baseID string) []variant.Info {
	return s.variants.VariantsForSystem(baseID)
}

// VariantMemoryUsage returns approximate pool residency.
func (s *Service) VariantMemoryUsage() variant.MemoryUsage {
	return s.variants.GetMemoryUsage()
}

// SweepVariantTiers demotes idle variants and evicts expired ones.
func (s *Service) SweepVariantTiers() int {
	return s.variants.SweepTiers()
}

// ----------------------------------------------------------------------------
// Response cache
// ----------------------------------------------------------------------------

// CacheResponse memoizes a response under the current graph version. Any
// later mutation makes the entry unreachable.
func (s *Service) CacheResponse(queryKey string, payload any) {
	s.cache.CacheResponse(queryKey, s.store.Version(), payload)
}

// CheckCache returns the payload cached for the query at the current graph
// version, or (nil, false).
func (s *Service) CheckCache(queryKey string) (any, bool) {
	return s.cache.CheckCache(queryKey, s.store.Version())
}

// ----------------------------------------------------------------------------
// Similarity
// ----------------------------------------------------------------------------

// SimilarityScore computes the tiered similarity of two nodes.
func (s *Service) SimilarityScore(ctx context.Context, a, b *node.Node) (float64, error) {
	return s.scorer.Score(ctx, a, b)
}

// FindSimilarityMatches scans the whole graph for same-type pairs at or
// above threshold, sorted descending by score.
func (s *Service) FindSimilarityMatches(ctx context.Context, threshold float64) ([]similarity.Match, error) {
	return s.scorer.FindAllSimilarityMatches(ctx, s.store.Nodes(store.NodeFilter{}), threshold)
}

// InvalidateEmbedding drops the cached vector for a node.
func (s *Service) InvalidateEmbedding(nodeUUID string) {
	s.embeddings.Invalidate(nodeUUID)
}

// ----------------------------------------------------------------------------
// Validation and phase gates
// ----------------------------------------------------------------------------

// Phase returns the current modeling phase.
func (s *Service) Phase() shared.Phase {
	s.phaseMu.RLock()
	defer s.phaseMu.RUnlock()
	return s.phase
}

// SetPhase moves the session to the given phase without a gate check, e.g.
// when resuming a persisted session.
func (s *Service) SetPhase(phase shared.Phase) {
	s.phaseMu.Lock()
	defer s.phaseMu.Unlock()
	s.phase = phase
}

// Validate evaluates the configured rules against the current graph in the
// current phase, including the similarity scan. It never fails; a provider
// outage only degrades the similarity-based rules.
func (s *Service) Validate(ctx context.Context) *rules.Result {
	return s.evaluator.Evaluate(s.validationInput(ctx))
}

// CheckPhaseGate evaluates and reports gate readiness with human-readable
// blockers.
func (s *Service) CheckPhaseGate(ctx context.Context) *rules.GateDecision {
	return s.evaluator.CheckPhaseGate(s.validationInput(ctx))
}

// AdvancePhase checks the gate and, when ready, moves to the next phase.
// The decision is returned either way.
func (s *Service) AdvancePhase(ctx context.Context) *rules.GateDecision {
	decision := s.CheckPhaseGate(ctx)
	if decision.Ready {
		s.phaseMu.Lock()
		s.phase = s.phase.Next()
		s.phaseMu.Unlock()
		s.logger.Info("phase gate passed",
			zap.String("phase", string(s.Phase())),
		)
	}
	return decision
}

// OnValidation registers the handler receiving background validation
// results. Only one handler is held; passing nil detaches it.
func (s *Service) OnValidation(h ValidationHandler) {
	s.validationMu.Lock()
	defer s.validationMu.Unlock()
	s.onValidation = h
}

// ReloadRules re-reads the rule document explicitly.
func (s *Service) ReloadRules() error {
	return s.ruleLoader.Reload()
}

func (s *Service) validationInput(ctx context.Context) *rules.Input {
	state := s.store.ToGraphState()
	cfg := s.ruleLoader.Config()

	// The similarity scan feeds the similarity-based rules; its failure
	// degrades them rather than blocking validation.
	threshold := cfg.Similarity.Functional.Review
	if cfg.Similarity.Schema.Review < threshold {
		threshold = cfg.Similarity.Schema.Review
	}
	matches, err := s.scorer.FindAllSimilarityMatches(ctx, state.NodeList(), threshold)
	if err != nil {
		s.logger.Warn("similarity scan failed during validation", zap.Error(err))
	}

	return &rules.Input{Phase: s.Phase(), State: state, Matches: matches}
}

func (s *Service) runBackgroundValidation() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result := s.Validate(ctx)

	s.validationMu.RLock()
	h := s.onValidation
	s.validationMu.RUnlock()
	if h != nil {
		h(result)
	}
}
