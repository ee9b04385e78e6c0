package rules

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"agentdb-backend/internal/domain/edge"
	"agentdb-backend/internal/domain/graph"
	"agentdb-backend/internal/domain/node"
	"agentdb-backend/internal/domain/shared"
	"agentdb-backend/internal/observability"
	"agentdb-backend/internal/similarity"
)

// Input is the read-only snapshot one evaluation run consumes. Matches is
// the scorer's output for similarity-based rules; it may be nil when no
// batch scan has run yet.
type Input struct {
	Phase   shared.Phase
	State   *graph.State
	Matches []similarity.Match
}

// checkFunc evaluates one rule against the snapshot. It fills EntityID and
// Reason; the evaluator stamps RuleID, Severity, Weight and IsHard from the
// rule definition.
type checkFunc func(in *Input) []Violation

// Evaluator runs the configured rules over a graph snapshot. Rule IDs in the
// configuration with no registered check are silently skipped, which keeps
// the engine forward-compatible with rule-file additions.
type Evaluator struct {
	loader  *Loader
	checks  map[string]checkFunc
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewEvaluator creates an evaluator over the given rule loader.
func NewEvaluator(loader *Loader, metrics *observability.Metrics, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		loader:  loader,
		checks:  builtinChecks(),
		metrics: metrics,
		logger:  logger,
	}
}

// Evaluate runs every applicable rule and returns the aggregated result. It
// never fails: a malformed graph yields a complete result describing the
// damage.
func (e *Evaluator) Evaluate(in *Input) *Result {
	start := time.Now()
	cfg := e.loader.Config()

	var violations []Violation
	for _, rule := range cfg.IntegrityRules {
		if !AppliesTo(rule.Phase, in.Phase) {
			continue
		}
		check, ok := e.checks[rule.ID]
		if !ok {
			continue
		}
		for _, v := range check(in) {
			violations = append(violations, stamp(v, rule.ID, rule.Severity, rule.Weight, rule.Hard))
		}
	}
	for _, rule := range cfg.ValidationRules {
		if !AppliesTo(rule.Phase, in.Phase) {
			continue
		}
		check, ok := e.checks[rule.ID]
		if !ok {
			continue
		}
		for _, v := range check(in) {
			violations = append(violations, stamp(v, rule.ID, rule.Severity, rule.Weight, false))
		}
	}

	sort.SliceStable(violations, func(i, j int) bool {
		if violations[i].IsHard != violations[j].IsHard {
			return violations[i].IsHard
		}
		if violations[i].RuleID != violations[j].RuleID {
			return violations[i].RuleID < violations[j].RuleID
		}
		return violations[i].EntityID < violations[j].EntityID
	})

	result := &Result{
		Phase:      in.Phase,
		Violations: violations,
		Threshold:  cfg.PhaseThreshold(in.Phase),
	}
	var weightSum float64
	for _, v := range violations {
		if v.IsHard {
			result.HardViolations++
		} else {
			result.SoftViolations++
			weightSum += v.Weight
		}
	}

	result.HardRulesPassed = result.HardViolations == 0
	if !result.HardRulesPassed {
		// All-or-nothing gate: one hard violation zeroes the reward no
		// matter how clean the rest of the graph is.
		result.RewardScore = 0
	} else {
		if weightSum > 1 {
			weightSum = 1
		}
		result.RewardScore = 1 - weightSum
		if result.RewardScore < 0 {
			result.RewardScore = 0
		}
	}
	result.PhaseGateReady = result.HardRulesPassed && result.RewardScore >= result.Threshold

	if e.metrics != nil {
		e.metrics.ValidationRuns.Inc()
		e.metrics.ValidationDuration.Observe(time.Since(start).Seconds())
		e.metrics.RewardScore.Set(result.RewardScore)
	}
	e.logger.Debug("rule evaluation complete",
		zap.String("phase", string(in.Phase)),
		zap.Int("violations", len(violations)),
		zap.Float64("reward_score", result.RewardScore),
		zap.Bool("gate_ready", result.PhaseGateReady),
	)
	return result
}

// CheckPhaseGate evaluates and additionally renders one blocker string per
// hard failure, plus one if the reward score misses the phase threshold.
func (e *Evaluator) CheckPhaseGate(in *Input) *GateDecision {
	result := e.Evaluate(in)

	var blockers []string
	for _, v := range result.Violations {
		if v.IsHard {
			blockers = append(blockers, fmt.Sprintf("hard rule %s failed: %s", v.RuleID, v.Reason))
		}
	}
	if result.HardRulesPassed && result.RewardScore < result.Threshold {
		blockers = append(blockers, fmt.Sprintf(
			"reward score %.2f below phase threshold %.2f", result.RewardScore, result.Threshold))
	}

	return &GateDecision{
		Phase:    in.Phase,
		Ready:    result.PhaseGateReady,
		Blockers: blockers,
		Result:   result,
	}
}

func stamp(v Violation, ruleID string, severity Severity, defaultWeight float64, hard bool) Violation {
	v.RuleID = ruleID
	if v.Severity == "" {
		v.Severity = severity
	}
	if v.Weight == 0 {
		v.Weight = defaultWeight
	}
	v.IsHard = hard
	return v
}

// ----------------------------------------------------------------------------
// Built-in rule checks
// ----------------------------------------------------------------------------

func builtinChecks() map[string]checkFunc {
	return map[string]checkFunc{
		"no_self_loops":              checkNoSelfLoops,
		"no_duplicate_nodes":         checkNoDuplicateNodes,
		"no_duplicate_edges":         checkNoDuplicateEdges,
		"required_properties":        checkRequiredProperties,
		"edge_endpoints_exist":       checkEdgeEndpointsExist,
		"func_io_flow":               checkFuncIOFlow,
		"flow_io_both":               checkFlowIOBoth,
		"fchain_boundary_actors":     checkChainBoundaryActors,
		"no_bidirectional_io":        checkNoBidirectionalIO,
		"func_satisfies_requirement": checkFuncSatisfiesRequirement,
		"requirement_verified":       checkRequirementVerified,
		"func_allocated":             checkFuncAllocated,
		"no_near_duplicates":         checkNoNearDuplicates,
	}
}

func checkNoSelfLoops(in *Input) []Violation {
	var out []Violation
	for _, e := range in.State.Edges {
		if e.IsSelfLoop() {
			out = append(out, Violation{
				EntityID: e.UUID,
				Reason:   fmt.Sprintf("edge %s connects node %q to itself", e.Type, e.SourceID),
			})
		}
	}
	return out
}

func checkNoDuplicateNodes(in *Input) []Violation {
	groups := make(map[string][]*node.Node)
	for _, n := range in.State.Nodes {
		key := n.SystemID + "|" + string(n.Type) + "|" + strings.ToLower(strings.TrimSpace(n.Name))
		groups[key] = append(groups[key], n)
	}
	var out []Violation
	for _, group := range groups {
		if len(group) < 2 || group[0].Name == "" {
			continue
		}
		sort.Slice(group, func(i, j int) bool { return group[i].SemanticID < group[j].SemanticID })
		for _, n := range group[1:] {
			out = append(out, Violation{
				EntityID: n.SemanticID,
				Reason: fmt.Sprintf("node %q duplicates the name %q of %s",
					n.SemanticID, n.Name, group[0].SemanticID),
			})
		}
	}
	return out
}

func checkNoDuplicateEdges(in *Input) []Violation {
	seen := make(map[string]string)
	var out []Violation
	for _, e := range sortedEdges(in.State) {
		key := e.Key()
		if first, ok := seen[key]; ok {
			out = append(out, Violation{
				EntityID: e.UUID,
				Reason:   fmt.Sprintf("edge duplicates (%s) already held by %s", key, first),
			})
			continue
		}
		seen[key] = e.UUID
	}
	return out
}

func checkRequiredProperties(in *Input) []Violation {
	var out []Violation
	for _, n := range in.State.Nodes {
		if strings.TrimSpace(n.Name) == "" || strings.TrimSpace(n.Descr) == "" {
			out = append(out, Violation{
				EntityID: n.SemanticID,
				Reason:   fmt.Sprintf("node %q is missing a name or description", n.SemanticID),
			})
		}
	}
	return out
}

func checkEdgeEndpointsExist(in *Input) []Violation {
	var out []Violation
	for _, e := range in.State.Edges {
		if _, ok := in.State.Nodes[e.SourceID]; !ok {
			out = append(out, Violation{
				EntityID: e.UUID,
				Reason:   fmt.Sprintf("edge source %q does not exist", e.SourceID),
			})
		}
		if _, ok := in.State.Nodes[e.TargetID]; !ok {
			out = append(out, Violation{
				EntityID: e.UUID,
				Reason:   fmt.Sprintf("edge target %q does not exist", e.TargetID),
			})
		}
	}
	return out
}

// checkFuncIOFlow requires every function to receive io from at least one
// flow and emit io to at least one flow.
func checkFuncIOFlow(in *Input) []Violation {
	var out []Violation
	for _, n := range in.State.Nodes {
		if n.Type != node.TypeFunction {
			continue
		}
		var hasIn, hasOut bool
		for _, e := range in.State.Edges {
			if e.Type != edge.TypeIO {
				continue
			}
			if e.TargetID == n.SemanticID && nodeType(in.State, e.SourceID) == node.TypeFlow {
				hasIn = true
			}
			if e.SourceID == n.SemanticID && nodeType(in.State, e.TargetID) == node.TypeFlow {
				hasOut = true
			}
		}
		if !hasIn || !hasOut {
			out = append(out, Violation{
				EntityID: n.SemanticID,
				Reason:   fmt.Sprintf("function %q needs both an inbound and an outbound io edge via a flow", n.SemanticID),
			})
		}
	}
	return out
}

func checkFlowIOBoth(in *Input) []Violation {
	var out []Violation
	for _, n := range in.State.Nodes {
		if n.Type != node.TypeFlow {
			continue
		}
		var hasIn, hasOut bool
		for _, e := range in.State.Edges {
			if e.Type != edge.TypeIO {
				continue
			}
			if e.TargetID == n.SemanticID {
				hasIn = true
			}
			if e.SourceID == n.SemanticID {
				hasOut = true
			}
		}
		if !hasIn || !hasOut {
			out = append(out, Violation{
				EntityID: n.SemanticID,
				Reason:   fmt.Sprintf("flow %q needs io edges in both directions", n.SemanticID),
			})
		}
	}
	return out
}

// checkChainBoundaryActors requires every functional chain to compose at
// least one actor feeding io into the chain (boundary input) and one actor
// receiving io from it (boundary output).
func checkChainBoundaryActors(in *Input) []Violation {
	var out []Violation
	for _, n := range in.State.Nodes {
		if n.Type != node.TypeChain {
			continue
		}
		members := make(map[string]bool)
		for _, e := range in.State.Edges {
			if e.Type == edge.TypeCompose && e.SourceID == n.SemanticID {
				members[e.TargetID] = true
			}
		}

		var hasInputActor, hasOutputActor bool
		for member := range members {
			if nodeType(in.State, member) != node.TypeActor {
				continue
			}
			for _, e := range in.State.Edges {
				if e.Type != edge.TypeIO {
					continue
				}
				if e.SourceID == member && members[e.TargetID] {
					hasInputActor = true
				}
				if e.TargetID == member && members[e.SourceID] {
					hasOutputActor = true
				}
			}
		}
		if !hasInputActor || !hasOutputActor {
			out = append(out, Violation{
				EntityID: n.SemanticID,
				Reason:   fmt.Sprintf("functional chain %q needs a boundary input actor and a boundary output actor", n.SemanticID),
			})
		}
	}
	return out
}

// checkNoBidirectionalIO detects a function or actor exchanging io with one
// flow in both directions, which usually indicates a circular chain that
// should be modeled as two flows.
func checkNoBidirectionalIO(in *Input) []Violation {
	type pair struct{ element, flow string }
	forward := make(map[pair]bool)
	for _, e := range in.State.Edges {
		if e.Type != edge.TypeIO {
			continue
		}
		st := nodeType(in.State, e.SourceID)
		tt := nodeType(in.State, e.TargetID)
		if (st == node.TypeFunction || st == node.TypeActor) && tt == node.TypeFlow {
			forward[pair{e.SourceID, e.TargetID}] = true
		}
	}

	var out []Violation
	for _, e := range sortedEdges(in.State) {
		if e.Type != edge.TypeIO {
			continue
		}
		st := nodeType(in.State, e.SourceID)
		tt := nodeType(in.State, e.TargetID)
		if st == node.TypeFlow && (tt == node.TypeFunction || tt == node.TypeActor) &&
			forward[pair{e.TargetID, e.SourceID}] {
			out = append(out, Violation{
				EntityID: e.TargetID,
				Reason: fmt.Sprintf("%q exchanges io with flow %q in both directions",
					e.TargetID, e.SourceID),
			})
		}
	}
	return out
}

func checkFuncSatisfiesRequirement(in *Input) []Violation {
	return checkOutboundLink(in, node.TypeFunction, edge.TypeSatisfy, node.TypeRequirement,
		"function %q does not satisfy any requirement")
}

func checkRequirementVerified(in *Input) []Violation {
	var out []Violation
	for _, n := range in.State.Nodes {
		if n.Type != node.TypeRequirement {
			continue
		}
		verified := false
		for _, e := range in.State.Edges {
			if e.Type == edge.TypeVerify && e.TargetID == n.SemanticID &&
				nodeType(in.State, e.SourceID) == node.TypeTest {
				verified = true
				break
			}
		}
		if !verified {
			out = append(out, Violation{
				EntityID: n.SemanticID,
				Reason:   fmt.Sprintf("requirement %q is not verified by any test", n.SemanticID),
			})
		}
	}
	return out
}

func checkFuncAllocated(in *Input) []Violation {
	return checkOutboundLink(in, node.TypeFunction, edge.TypeAllocate, node.TypeModule,
		"function %q is not allocated to any module")
}

func checkNoNearDuplicates(in *Input) []Violation {
	var out []Violation
	for _, m := range in.Matches {
		if m.Recommendation == similarity.RecommendKeep {
			continue
		}
		out = append(out, Violation{
			EntityID: m.NodeA,
			Reason: fmt.Sprintf("nodes %q and %q look like duplicates (similarity %.2f, %s)",
				m.NodeA, m.NodeB, m.Score, m.Recommendation),
		})
	}
	return out
}

func checkOutboundLink(in *Input, from node.Type, via edge.Type, to node.Type, reasonFormat string) []Violation {
	var out []Violation
	for _, n := range in.State.Nodes {
		if n.Type != from {
			continue
		}
		linked := false
		for _, e := range in.State.Edges {
			if e.Type == via && e.SourceID == n.SemanticID && nodeType(in.State, e.TargetID) == to {
				linked = true
				break
			}
		}
		if !linked {
			out = append(out, Violation{
				EntityID: n.SemanticID,
				Reason:   fmt.Sprintf(reasonFormat, n.SemanticID),
			})
		}
	}
	return out
}

func nodeType(state *graph.State, semanticID string) node.Type {
	if n, ok := state.Nodes[semanticID]; ok {
		return n.Type
	}
	return ""
}

func sortedEdges(state *graph.State) []*edge.Edge {
	edges := state.EdgeList()
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Key() != edges[j].Key() {
			return edges[i].Key() < edges[j].Key()
		}
		return edges[i].UUID < edges[j].UUID
	})
	return edges
}
