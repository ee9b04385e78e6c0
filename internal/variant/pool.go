// Package variant implements the pool of isolated, speculative graph states.
// A variant is a deep copy of a base graph state that the orchestrator can
// mutate freely — e.g. to stage competing edit proposals — without risking
// the authoritative store. Losing candidates are discarded for free; the
// winner is promoted and written back through the store by the caller.
//
// Variants are tiered by recency of access. The demotion sweep moves idle
// variants HOT → WARM → COLD and evicts COLD variants past the retention
// window, bounding pool memory over long sessions.
package variant

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"agentdb-backend/internal/domain/graph"
	"agentdb-backend/internal/errors"
	"agentdb-backend/internal/observability"
)

// Tier classifies a variant by recency of access.
type Tier string

const (
	TierHot  Tier = "hot"
	TierWarm Tier = "warm"
	TierCold Tier = "cold"
)

// Retention configures the demotion sweep.
type Retention struct {
	// WarmAfter is the idle time before a HOT variant demotes to WARM.
	WarmAfter time.Duration
	// ColdAfter is the idle time before a WARM variant demotes to COLD.
	ColdAfter time.Duration
	// EvictAfter is the idle time before a COLD variant is evicted.
	EvictAfter time.Duration
	// MaxVariants caps the pool size; creation evicts the least recently
	// accessed variant when the cap is reached. Zero means unbounded.
	MaxVariants int
}

// DefaultRetention mirrors the session-scale defaults: minutes of idle time
// demote, an hour evicts.
func DefaultRetention() Retention {
	return Retention{
		WarmAfter:   5 * time.Minute,
		ColdAfter:   20 * time.Minute,
		EvictAfter:  time.Hour,
		MaxVariants: 32,
	}
}

// Info is the introspection view of one variant.
type Info struct {
	ID           string    `json:"id"`
	BaseSystemID string    `json:"base_system_id"`
	Tier         Tier      `json:"tier"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
	Version      int64     `json:"version"`
	NodeCount    int       `json:"node_count"`
	EdgeCount    int       `json:"edge_count"`
}

// Comparison lists node/edge set differences of variant B relative to
// variant A. Nodes are identified by semantic ID, edges by uuid.
type Comparison struct {
	NodesAdded    []string `json:"nodes_added"`
	NodesRemoved  []string `json:"nodes_removed"`
	NodesModified []string `json:"nodes_modified"`
	EdgesAdded    []string `json:"edges_added"`
	EdgesRemoved  []string `json:"edges_removed"`
	EdgesModified []string `json:"edges_modified"`
}

// MemoryUsage is an approximation of pool residency.
type MemoryUsage struct {
	Variants    int   `json:"variants"`
	Nodes       int   `json:"nodes"`
	Edges       int   `json:"edges"`
	ApproxBytes int64 `json:"approx_bytes"`
}

// Rough per-element residency estimates for MemoryUsage.
const (
	approxNodeBytes = 512
	approxEdgeBytes = 192
)

type entry struct {
	id           string
	baseSystemID string
	tier         Tier
	createdAt    time.Time
	lastAccessed time.Time
	state        *graph.State
}

// Pool owns all variants of a session.
type Pool struct {
	mu        sync.Mutex
	variants  map[string]*entry
	retention Retention
	metrics   *observability.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewPool creates an empty pool with the given retention policy.
func NewPool(retention Retention, metrics *observability.Metrics, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		variants:  make(map[string]*entry),
		retention: retention,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateVariant deep-copies the given state into a new HOT variant derived
// from baseID and returns the generated variant ID. The copy shares no node
// or edge object with the source state or any sibling variant.
func (p *Pool) CreateVariant(baseID string, state *graph.State) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.retention.MaxVariants > 0 && len(p.variants) >= p.retention.MaxVariants {
		p.evictOldestLocked()
	}

	now := p.now()
	id := fmt.Sprintf("variant-%s-%d", baseID, now.UnixNano())
	for _, exists := p.variants[id]; exists; _, exists = p.variants[id] {
		now = now.Add(time.Nanosecond)
		id = fmt.Sprintf("variant-%s-%d", baseID, now.UnixNano())
	}

	p.variants[id] = &entry{
		id:           id,
		baseSystemID: baseID,
		tier:         TierHot,
		createdAt:    now,
		lastAccessed: now,
		state:        state.Clone(),
	}
	p.updateGaugeLocked()
	p.logger.Debug("variant created",
		zap.String("variant_id", id),
		zap.String("base_id", baseID),
	)
	return id
}

// Variant returns a deep copy of the variant's current state, or nil if the
// ID is unknown. Access refreshes the lastAccessed timestamp and promotes
// the variant back to HOT.
func (p *Pool) Variant(id string) *graph.State {
	p.mu.Lock()
	defer p.mu.Unlock()

	v, ok := p.variants[id]
	if !ok {
		return nil
	}
	v.lastAccessed = p.now()
	v.tier = TierHot
	return v.state.Clone()
}

// ApplyToVariant applies the diff to exactly one variant, incrementing only
// that variant's version. The base state and sibling variants are never
// touched. Returns a not-found error for an unknown ID.
func (p *Pool) ApplyToVariant(id string, diff *graph.Diff) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	v, ok := p.variants[id]
	if !ok {
		return errors.VariantNotFound(id)
	}
	v.lastAccessed = p.now()
	v.tier = TierHot

	if diff.IsEmpty() {
		return nil
	}

	for _, n := range diff.AddNodes {
		v.state.Nodes[n.SemanticID] = n.Clone()
	}
	for _, n := range diff.UpdateNodes {
		v.state.Nodes[n.SemanticID] = n.Clone()
	}
	for _, sid := range diff.DeleteNodes {
		delete(v.state.Nodes, sid)
		// Cascade to incident edges, matching base store semantics.
		for euuid, e := range v.state.Edges {
			if e.HasNode(sid) {
				delete(v.state.Edges, euuid)
			}
		}
	}
	for _, e := range diff.AddEdges {
		v.state.Edges[e.UUID] = e.Clone()
	}
	for _, euuid := range diff.DeleteEdges {
		delete(v.state.Edges, euuid)
	}

	v.state.Version++
	return nil
}

// PromoteVariant returns the variant's final state and removes it from the
// pool. Writing the state back into a store is the caller's responsibility.
func (p *Pool) PromoteVariant(id string) (*graph.State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	v, ok := p.variants[id]
	if !ok {
		return nil, errors.VariantNotFound(id)
	}
	delete(p.variants, id)
	p.updateGaugeLocked()
	p.logger.Info("variant promoted",
		zap.String("variant_id", id),
		zap.Int64("version", v.state.Version),
	)
	return v.state, nil
}

// DiscardVariant removes the variant from the pool. Discarding an unknown ID
// is a no-op, not an error.
func (p *Pool) DiscardVariant(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.variants[id]; !ok {
		return
	}
	delete(p.variants, id)
	p.updateGaugeLocked()
	p.logger.Debug("variant discarded", zap.String("variant_id", id))
}

// CompareVariants computes the node/edge set differences of variant b
// relative to variant a. Returns a not-found error if either ID is unknown.
func (p *Pool) CompareVariants(idA, idB string) (*Comparison, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	a, ok := p.variants[idA]
	if !ok {
		return nil, errors.VariantNotFound(idA)
	}
	b, ok := p.variants[idB]
	if !ok {
		return nil, errors.VariantNotFound(idB)
	}

	cmp := &Comparison{}
	for id, nb := range b.state.Nodes {
		if na, ok := a.state.Nodes[id]; !ok {
			cmp.NodesAdded = append(cmp.NodesAdded, id)
		} else if !nb.ContentEquals(na) {
			cmp.NodesModified = append(cmp.NodesModified, id)
		}
	}
	for id := range a.state.Nodes {
		if _, ok := b.state.Nodes[id]; !ok {
			cmp.NodesRemoved = append(cmp.NodesRemoved, id)
		}
	}
	for id, eb := range b.state.Edges {
		if ea, ok := a.state.Edges[id]; !ok {
			cmp.EdgesAdded = append(cmp.EdgesAdded, id)
		} else if !eb.ContentEquals(ea) {
			cmp.EdgesModified = append(cmp.EdgesModified, id)
		}
	}
	for id := range a.state.Edges {
		if _, ok := b.state.Edges[id]; !ok {
			cmp.EdgesRemoved = append(cmp.EdgesRemoved, id)
		}
	}

	sort.Strings(cmp.NodesAdded)
	sort.Strings(cmp.NodesRemoved)
	sort.Strings(cmp.NodesModified)
	sort.Strings(cmp.EdgesAdded)
	sort.Strings(cmp.EdgesRemoved)
	sort.Strings(cmp.EdgesModified)
	return cmp, nil
}

// ListVariants returns introspection info for every variant, sorted by
// creation time.
func (p *Pool) ListVariants() []Info {
	p.mu.Lock()
	defer p.mu.Unlock()

	infos := make([]Info, 0, len(p.variants))
	for _, v := range p.variants {
		infos = append(infos, p.infoLocked(v))
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// VariantsForSystem returns info for the variants derived from the given
// base ID.
func (p *Pool) VariantsForSystem(baseID string) []Info {
	p.mu.Lock()
	defer p.mu.Unlock()

	var infos []Info
	for _, v := range p.variants {
		if v.baseSystemID == baseID {
			infos = append(infos, p.infoLocked(v))
		}
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// GetMemoryUsage returns approximate pool residency.
func (p *Pool) GetMemoryUsage() MemoryUsage {
	p.mu.Lock()
	defer p.mu.Unlock()

	var usage MemoryUsage
	usage.Variants = len(p.variants)
	for _, v := range p.variants {
		usage.Nodes += len(v.state.Nodes)
		usage.Edges += len(v.state.Edges)
	}
	usage.ApproxBytes = int64(usage.Nodes)*approxNodeBytes + int64(usage.Edges)*approxEdgeBytes
	return usage
}

// SweepTiers demotes idle variants and evicts COLD variants past the
// retention window. Returns the number of evicted variants. The facade calls
// this on a timer; it is also safe to call explicitly.
func (p *Pool) SweepTiers() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	evicted := 0
	for id, v := range p.variants {
		idle := now.Sub(v.lastAccessed)
		switch {
		case p.retention.EvictAfter > 0 && v.tier == TierCold && idle >= p.retention.EvictAfter:
			delete(p.variants, id)
			evicted++
			p.logger.Info("variant evicted",
				zap.String("variant_id", id),
				zap.Duration("idle", idle),
			)
		case p.retention.ColdAfter > 0 && idle >= p.retention.ColdAfter:
			v.tier = TierCold
		case p.retention.WarmAfter > 0 && idle >= p.retention.WarmAfter:
			if v.tier == TierHot {
				v.tier = TierWarm
			}
		}
	}
	p.updateGaugeLocked()
	return evicted
}

// Clear drops every variant, e.g. on full system load.
func (p *Pool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.variants = make(map[string]*entry)
	p.updateGaugeLocked()
}

func (p *Pool) infoLocked(v *entry) Info {
	return Info{
		ID:           v.id,
		BaseSystemID: v.baseSystemID,
		Tier:         v.tier,
		CreatedAt:    v.createdAt,
		LastAccessed: v.lastAccessed,
		Version:      v.state.Version,
		NodeCount:    len(v.state.Nodes),
		EdgeCount:    len(v.state.Edges),
	}
}

func (p *Pool) evictOldestLocked() {
	var oldest *entry
	for _, v := range p.variants {
		if oldest == nil || v.lastAccessed.Before(oldest.lastAccessed) {
			oldest = v
		}
	}
	if oldest != nil {
		delete(p.variants, oldest.id)
		p.logger.Warn("variant pool full, evicted least recently accessed",
			zap.String("variant_id", oldest.id),
		)
	}
}

func (p *Pool) updateGaugeLocked() {
	if p.metrics != nil {
		p.metrics.VariantsActive.Set(float64(len(p.variants)))
	}
}
