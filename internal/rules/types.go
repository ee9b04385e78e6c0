// Package rules implements the rule configuration schema, its YAML loader
// with hot reload, and the evaluator that turns a graph snapshot into a
// validation result and phase-gate decision.
//
// Rule evaluation never fails: a severely malformed graph produces a
// complete result describing how malformed it is. Violations are data, not
// errors.
package rules

import (
	"agentdb-backend/internal/domain/shared"
	"agentdb-backend/internal/similarity"
)

// Severity classifies a violation for display purposes.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// IntegrityRule is a structural rule. Hard integrity rules gate the phase
// unconditionally: one hard violation forces the reward score to zero.
type IntegrityRule struct {
	ID          string   `yaml:"id" validate:"required"`
	Phase       string   `yaml:"phase" validate:"required"` // "all" or a phase name
	Hard        bool     `yaml:"hard"`
	Weight      float64  `yaml:"weight" validate:"gte=0"`
	Severity    Severity `yaml:"severity"`
	Description string   `yaml:"description"`
}

// ValidationRule is a weighted quality rule. Some validation rules are
// similarity-based and consume the scorer's match list.
type ValidationRule struct {
	ID          string   `yaml:"id" validate:"required"`
	Phase       string   `yaml:"phase" validate:"required"`
	Weight      float64  `yaml:"weight" validate:"gte=0"`
	Severity    Severity `yaml:"severity"`
	Description string   `yaml:"description"`
}

// PhaseConfig carries the per-phase success threshold.
type PhaseConfig struct {
	Phase            shared.Phase `yaml:"phase" validate:"required"`
	SuccessThreshold float64      `yaml:"success_threshold" validate:"gte=0,lte=1"`
}

// Config is the externally loaded rule document. The core treats it as
// read-only input, replaced wholesale on reload.
type Config struct {
	IntegrityRules  []IntegrityRule   `yaml:"integrity_rules" validate:"dive"`
	ValidationRules []ValidationRule  `yaml:"validation_rules" validate:"dive"`
	Phases          []PhaseConfig     `yaml:"phases" validate:"required,dive"`
	Similarity      similarity.Config `yaml:"similarity"`
}

// PhaseThreshold returns the success threshold of the given phase, falling
// back to 0.8 for an unconfigured phase.
func (c *Config) PhaseThreshold(phase shared.Phase) float64 {
	for _, p := range c.Phases {
		if p.Phase == phase {
			return p.SuccessThreshold
		}
	}
	return 0.8
}

// AppliesTo reports whether a rule scoped to rulePhase applies in the given
// phase ("all" applies everywhere).
func AppliesTo(rulePhase string, phase shared.Phase) bool {
	return rulePhase == "all" || rulePhase == string(phase)
}

// Violation is one rule infraction. IsHard mirrors the rule's hard flag so a
// result can be interpreted without the config at hand.
type Violation struct {
	RuleID   string   `json:"rule_id"`
	Severity Severity `json:"severity"`
	Weight   float64  `json:"weight"`
	EntityID string   `json:"entity_id,omitempty"`
	Reason   string   `json:"reason"`
	IsHard   bool     `json:"is_hard"`
}

// Result aggregates one evaluation run.
type Result struct {
	Phase           shared.Phase `json:"phase"`
	Violations      []Violation  `json:"violations"`
	HardViolations  int          `json:"hard_violations"`
	SoftViolations  int          `json:"soft_violations"`
	RewardScore     float64      `json:"reward_score"`
	HardRulesPassed bool         `json:"hard_rules_passed"`
	Threshold       float64      `json:"threshold"`
	PhaseGateReady  bool         `json:"phase_gate_ready"`
}

// GateDecision is the phase-gate check: readiness plus one human-readable
// blocker per hard failure, plus one if the score misses the threshold.
type GateDecision struct {
	Phase    shared.Phase `json:"phase"`
	Ready    bool         `json:"ready"`
	Blockers []string     `json:"blockers,omitempty"`
	Result   *Result      `json:"result"`
}

// DefaultConfig returns the built-in rule set used when no rule document is
// supplied. It mirrors config/rules.yaml.
func DefaultConfig() *Config {
	return &Config{
		IntegrityRules: []IntegrityRule{
			{ID: "no_self_loops", Phase: "all", Hard: true, Weight: 1.0, Severity: SeverityError,
				Description: "an edge must not connect a node to itself"},
			{ID: "no_duplicate_nodes", Phase: "all", Hard: true, Weight: 1.0, Severity: SeverityError,
				Description: "no two nodes of the same type may share a name within one system"},
			{ID: "no_duplicate_edges", Phase: "all", Hard: true, Weight: 1.0, Severity: SeverityError,
				Description: "no two edges may share (source, type, target)"},
			{ID: "required_properties", Phase: "all", Hard: true, Weight: 1.0, Severity: SeverityError,
				Description: "every node needs a non-empty name and description"},
			{ID: "edge_endpoints_exist", Phase: "all", Hard: true, Weight: 1.0, Severity: SeverityError,
				Description: "every edge endpoint must reference an existing node"},
		},
		ValidationRules: []ValidationRule{
			{ID: "func_io_flow", Phase: "phase2_logical", Weight: 0.2, Severity: SeverityWarning,
				Description: "every function needs at least one inbound and one outbound io edge via a flow"},
			{ID: "flow_io_both", Phase: "phase2_logical", Weight: 0.15, Severity: SeverityWarning,
				Description: "every flow needs io edges in both directions"},
			{ID: "fchain_boundary_actors", Phase: "phase2_logical", Weight: 0.15, Severity: SeverityWarning,
				Description: "every functional chain needs a boundary input actor and a boundary output actor"},
			{ID: "no_bidirectional_io", Phase: "phase2_logical", Weight: 0.2, Severity: SeverityWarning,
				Description: "a function or actor must not exchange io with one flow in both directions"},
			{ID: "func_satisfies_requirement", Phase: "phase1_requirements", Weight: 0.25, Severity: SeverityWarning,
				Description: "every function must satisfy at least one requirement"},
			{ID: "requirement_verified", Phase: "phase4_verification", Weight: 0.25, Severity: SeverityWarning,
				Description: "every requirement must be verified by at least one test"},
			{ID: "func_allocated", Phase: "phase3_physical", Weight: 0.25, Severity: SeverityWarning,
				Description: "every function must be allocated to at least one module"},
			{ID: "no_near_duplicates", Phase: "all", Weight: 0.1, Severity: SeverityInfo,
				Description: "no two nodes should be near-duplicates of each other"},
		},
		Phases: []PhaseConfig{
			{Phase: shared.PhaseRequirements, SuccessThreshold: 0.8},
			{Phase: shared.PhaseLogical, SuccessThreshold: 0.8},
			{Phase: shared.PhasePhysical, SuccessThreshold: 0.75},
			{Phase: shared.PhaseVerification, SuccessThreshold: 0.9},
		},
		Similarity: similarity.DefaultConfig(),
	}
}
