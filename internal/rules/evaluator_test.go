package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentdb-backend/internal/domain/edge"
	"agentdb-backend/internal/domain/graph"
	"agentdb-backend/internal/domain/node"
	"agentdb-backend/internal/domain/shared"
	"agentdb-backend/internal/similarity"
)

func defaultEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	loader, err := NewLoader("", nil)
	require.NoError(t, err)
	return NewEvaluator(loader, nil, nil)
}

func addNode(t *testing.T, state *graph.State, semanticID string, typ node.Type, name, descr string) *node.Node {
	t.Helper()
	n, err := node.New(semanticID, typ, name, descr, "ws1", "sys1", "tester")
	require.NoError(t, err)
	state.Nodes[n.SemanticID] = n
	return n
}

func addEdge(t *testing.T, state *graph.State, typ edge.Type, source, target string) *edge.Edge {
	t.Helper()
	e, err := edge.New(typ, source, target, "ws1", "sys1", "tester")
	require.NoError(t, err)
	state.Edges[e.UUID] = e
	return e
}

// A minimal graph that passes every phase-1 rule: one function satisfying one
// requirement, all properties present.
func cleanPhase1State(t *testing.T) *graph.State {
	t.Helper()
	state := graph.NewState()
	addNode(t, state, "A.FN.001", node.TypeFunction, "Validate Order", "checks the incoming order")
	addNode(t, state, "R.RQ.001", node.TypeRequirement, "Order Validation", "orders must be validated")
	addEdge(t, state, edge.TypeSatisfy, "A.FN.001", "R.RQ.001")
	return state
}

func TestEvaluator_CleanGraphPassesGate(t *testing.T) {
	e := defaultEvaluator(t)
	result := e.Evaluate(&Input{Phase: shared.PhaseRequirements, State: cleanPhase1State(t)})

	assert.Empty(t, result.Violations)
	assert.True(t, result.HardRulesPassed)
	assert.Equal(t, 1.0, result.RewardScore)
	assert.True(t, result.PhaseGateReady)
	assert.Equal(t, 0.8, result.Threshold)
}

func TestEvaluator_HardViolationZeroesReward(t *testing.T) {
	e := defaultEvaluator(t)
	state := cleanPhase1State(t)
	// Empty description violates required_properties, a hard rule.
	state.Nodes["A.FN.001"].Descr = ""

	result := e.Evaluate(&Input{Phase: shared.PhaseRequirements, State: state})

	assert.Equal(t, 1, result.HardViolations)
	assert.False(t, result.HardRulesPassed)
	assert.Zero(t, result.RewardScore)
	assert.False(t, result.PhaseGateReady)
	require.NotEmpty(t, result.Violations)
	assert.Equal(t, "required_properties", result.Violations[0].RuleID)
	assert.True(t, result.Violations[0].IsHard)
}

func TestEvaluator_SoftViolationsReduceReward(t *testing.T) {
	e := defaultEvaluator(t)
	state := cleanPhase1State(t)
	// A second function with no satisfy edge: one soft violation, weight 0.25.
	addNode(t, state, "B.FN.002", node.TypeFunction, "Ship Order", "ships it")

	result := e.Evaluate(&Input{Phase: shared.PhaseRequirements, State: state})

	assert.True(t, result.HardRulesPassed)
	assert.Equal(t, 1, result.SoftViolations)
	assert.InDelta(t, 0.75, result.RewardScore, 1e-9)
	// 0.75 < 0.8 threshold.
	assert.False(t, result.PhaseGateReady)
}

func TestEvaluator_WeightSumClamped(t *testing.T) {
	e := defaultEvaluator(t)
	state := graph.NewState()
	// Six unsatisfied functions: 6 * 0.25 = 1.5, clamped to 1, score 0.
	for i := 0; i < 6; i++ {
		addNode(t, state, string(rune('A'+i))+".FN.00"+string(rune('1'+i)), node.TypeFunction, "Fn "+string(rune('A'+i)), "d")
	}

	result := e.Evaluate(&Input{Phase: shared.PhaseRequirements, State: state})
	assert.True(t, result.HardRulesPassed)
	assert.Zero(t, result.RewardScore)
	assert.False(t, result.PhaseGateReady)
}

func TestEvaluator_PhaseScoping(t *testing.T) {
	e := defaultEvaluator(t)
	state := cleanPhase1State(t)

	// In phase 1 the logical-architecture rules do not fire, so the function
	// lacking io flows passes. In phase 2 they do.
	p1 := e.Evaluate(&Input{Phase: shared.PhaseRequirements, State: state})
	assert.True(t, p1.PhaseGateReady)

	p2 := e.Evaluate(&Input{Phase: shared.PhaseLogical, State: state})
	assert.False(t, p2.PhaseGateReady)
	var ruleIDs []string
	for _, v := range p2.Violations {
		ruleIDs = append(ruleIDs, v.RuleID)
	}
	assert.Contains(t, ruleIDs, "func_io_flow")
	assert.NotContains(t, ruleIDs, "func_satisfies_requirement")
}

func TestEvaluator_SelfLoopAndDuplicates(t *testing.T) {
	e := defaultEvaluator(t)
	state := cleanPhase1State(t)
	addNode(t, state, "B.FN.002", node.TypeFunction, "validate order", "same name, different case")
	self := addEdge(t, state, edge.TypeSatisfy, "A.FN.001", "A.FN.001")

	result := e.Evaluate(&Input{Phase: shared.PhaseRequirements, State: state})

	var byRule = map[string][]Violation{}
	for _, v := range result.Violations {
		byRule[v.RuleID] = append(byRule[v.RuleID], v)
	}
	require.Len(t, byRule["no_self_loops"], 1)
	assert.Equal(t, self.UUID, byRule["no_self_loops"][0].EntityID)
	require.Len(t, byRule["no_duplicate_nodes"], 1)
	assert.Equal(t, "B.FN.002", byRule["no_duplicate_nodes"][0].EntityID)
	assert.Zero(t, result.RewardScore)
}

func TestEvaluator_DanglingEndpointAndDuplicateEdge(t *testing.T) {
	e := defaultEvaluator(t)
	state := cleanPhase1State(t)
	dangling := addEdge(t, state, edge.TypeSatisfy, "A.FN.001", "Ghost.RQ.999")
	dup := addEdge(t, state, edge.TypeSatisfy, "A.FN.001", "R.RQ.001")

	result := e.Evaluate(&Input{Phase: shared.PhaseRequirements, State: state})

	entityIDs := make(map[string][]string)
	for _, v := range result.Violations {
		entityIDs[v.RuleID] = append(entityIDs[v.RuleID], v.EntityID)
	}
	assert.Contains(t, entityIDs["edge_endpoints_exist"], dangling.UUID)
	require.Len(t, entityIDs["no_duplicate_edges"], 1)
	// The later sibling of the duplicated key is flagged, never both.
	assert.Contains(t, []string{dup.UUID}, entityIDs["no_duplicate_edges"][0])
}

func TestEvaluator_LogicalArchitectureRules(t *testing.T) {
	e := defaultEvaluator(t)

	// FUNC -> FLOW -> FUNC with a chain composed of actor and functions,
	// actor feeding io in and receiving io out.
	state := graph.NewState()
	addNode(t, state, "AC.ACT.001", node.TypeActor, "Customer", "places orders")
	addNode(t, state, "A.FN.001", node.TypeFunction, "Validate Order", "checks it")
	addNode(t, state, "F.FL.001", node.TypeFlow, "Order Data", "the order payload")
	addNode(t, state, "F.FL.002", node.TypeFlow, "Validated Order", "checked payload")
	addNode(t, state, "CH.FC.001", node.TypeChain, "Order Handling", "end to end")
	addEdge(t, state, edge.TypeIO, "AC.ACT.001", "F.FL.001")
	addEdge(t, state, edge.TypeIO, "F.FL.001", "A.FN.001")
	addEdge(t, state, edge.TypeIO, "A.FN.001", "F.FL.002")
	addEdge(t, state, edge.TypeIO, "F.FL.002", "AC.ACT.001")
	for _, member := range []string{"AC.ACT.001", "A.FN.001", "F.FL.001", "F.FL.002"} {
		addEdge(t, state, edge.TypeCompose, "CH.FC.001", member)
	}

	result := e.Evaluate(&Input{Phase: shared.PhaseLogical, State: state})
	for _, v := range result.Violations {
		t.Logf("unexpected violation: %s %s: %s", v.RuleID, v.EntityID, v.Reason)
	}
	assert.Empty(t, result.Violations)
	assert.True(t, result.PhaseGateReady)
}

func TestEvaluator_BidirectionalIO(t *testing.T) {
	e := defaultEvaluator(t)
	state := graph.NewState()
	addNode(t, state, "A.FN.001", node.TypeFunction, "Validate Order", "checks it")
	addNode(t, state, "F.FL.001", node.TypeFlow, "Order Data", "payload")
	addEdge(t, state, edge.TypeIO, "A.FN.001", "F.FL.001")
	addEdge(t, state, edge.TypeIO, "F.FL.001", "A.FN.001")

	result := e.Evaluate(&Input{Phase: shared.PhaseLogical, State: state})

	var found bool
	for _, v := range result.Violations {
		if v.RuleID == "no_bidirectional_io" {
			found = true
			assert.Equal(t, "A.FN.001", v.EntityID)
		}
	}
	assert.True(t, found)
}

func TestEvaluator_VerificationAndAllocation(t *testing.T) {
	e := defaultEvaluator(t)
	state := graph.NewState()
	addNode(t, state, "R.RQ.001", node.TypeRequirement, "Order Validation", "must validate")
	addNode(t, state, "T.TS.001", node.TypeTest, "Validation Test", "covers it")
	addNode(t, state, "R.RQ.002", node.TypeRequirement, "Order Shipping", "must ship")
	addEdge(t, state, edge.TypeVerify, "T.TS.001", "R.RQ.001")

	result := e.Evaluate(&Input{Phase: shared.PhaseVerification, State: state})

	var unverified []string
	for _, v := range result.Violations {
		if v.RuleID == "requirement_verified" {
			unverified = append(unverified, v.EntityID)
		}
	}
	assert.Equal(t, []string{"R.RQ.002"}, unverified)

	state2 := graph.NewState()
	addNode(t, state2, "A.FN.001", node.TypeFunction, "Validate Order", "checks it")
	addNode(t, state2, "M.MD.001", node.TypeModule, "Validation Service", "runs it")
	result2 := e.Evaluate(&Input{Phase: shared.PhasePhysical, State: state2})
	var unallocated []string
	for _, v := range result2.Violations {
		if v.RuleID == "func_allocated" {
			unallocated = append(unallocated, v.EntityID)
		}
	}
	assert.Equal(t, []string{"A.FN.001"}, unallocated)
}

func TestEvaluator_NearDuplicateMatches(t *testing.T) {
	e := defaultEvaluator(t)
	state := cleanPhase1State(t)

	result := e.Evaluate(&Input{
		Phase: shared.PhaseRequirements,
		State: state,
		Matches: []similarity.Match{
			{NodeA: "A.FN.001", NodeB: "B.FN.002", Score: 0.95, Recommendation: similarity.RecommendMerge},
			{NodeA: "C.FN.003", NodeB: "D.FN.004", Score: 0.72, Recommendation: similarity.RecommendKeep},
		},
	})

	var flagged []string
	for _, v := range result.Violations {
		if v.RuleID == "no_near_duplicates" {
			flagged = append(flagged, v.EntityID)
		}
	}
	// Keep recommendations never surface as violations.
	assert.Equal(t, []string{"A.FN.001"}, flagged)
}

func TestEvaluator_UnknownRuleIDSkipped(t *testing.T) {
	loader, err := NewLoader("", nil)
	require.NoError(t, err)
	loader.config.ValidationRules = append(loader.config.ValidationRules, ValidationRule{
		ID: "rule_from_the_future", Phase: "all", Weight: 0.5, Severity: SeverityWarning,
	})
	e := NewEvaluator(loader, nil, nil)

	result := e.Evaluate(&Input{Phase: shared.PhaseRequirements, State: cleanPhase1State(t)})
	assert.Empty(t, result.Violations)
	assert.True(t, result.PhaseGateReady)
}

func TestEvaluator_CheckPhaseGateBlockers(t *testing.T) {
	e := defaultEvaluator(t)
	state := cleanPhase1State(t)
	state.Nodes["A.FN.001"].Descr = ""

	decision := e.CheckPhaseGate(&Input{Phase: shared.PhaseRequirements, State: state})
	assert.False(t, decision.Ready)
	require.Len(t, decision.Blockers, 1)
	assert.Contains(t, decision.Blockers[0], "required_properties")

	// Soft-only failure renders the threshold blocker instead.
	state2 := cleanPhase1State(t)
	addNode(t, state2, "B.FN.002", node.TypeFunction, "Ship Order", "ships it")
	decision2 := e.CheckPhaseGate(&Input{Phase: shared.PhaseRequirements, State: state2})
	assert.False(t, decision2.Ready)
	require.Len(t, decision2.Blockers, 1)
	assert.Contains(t, decision2.Blockers[0], "below phase threshold")

	decision3 := e.CheckPhaseGate(&Input{Phase: shared.PhaseRequirements, State: cleanPhase1State(t)})
	assert.True(t, decision3.Ready)
	assert.Empty(t, decision3.Blockers)
}

func TestEvaluator_ViolationOrdering(t *testing.T) {
	e := defaultEvaluator(t)
	state := cleanPhase1State(t)
	state.Nodes["A.FN.001"].Descr = ""
	addNode(t, state, "B.FN.002", node.TypeFunction, "Ship Order", "ships it")

	result := e.Evaluate(&Input{Phase: shared.PhaseRequirements, State: state})
	require.GreaterOrEqual(t, len(result.Violations), 2)
	assert.True(t, result.Violations[0].IsHard, "hard violations sort first")
}
