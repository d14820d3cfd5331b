// Package policy implements the policy/rule registry: ignore-list
// evaluation, ordered rule matching, default-rule fallback,
// and the layered action-parameter computation a runner needs before it
// can submit an entry to a scheduler.
package policy

import (
	"github.com/cea-hpc/robinhood-sub006/internal/domain/action"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/attr"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/expr"
)

// Rule is one ordered entry in a policy. A rule with no TargetFileclasses
// is only valid when named "default"; it matches any entry no other
// rule matched, wherever it sits in the list.
type Rule struct {
	ID                string
	TargetFileclasses []string // empty only for the "default" rule
	Condition         *expr.Node

	// Action, when non-nil, overrides the policy's DefaultAction.
	Action *action.Action
	// Params holds this rule's own parameter overrides (layered above
	// the policy defaults, below fileclass-for-policy and trigger).
	Params *action.Params
}

// IsDefault reports whether this is the catch-all "default" rule.
func (r *Rule) IsDefault() bool { return r.ID == "default" }

// AttrMask returns the attribute indices this rule's condition
// references; used to pre-fetch attributes before evaluation.
func (r *Rule) AttrMask() attr.Mask { return r.Condition.AttrMask() }

// Policy is a named, ordered collection of rules plus scope and
// ignore-list expressions, a default action, and assorted scheduling
// metadata consulted by the runner.
type Policy struct {
	Name string

	Scope         *expr.Node // entries outside scope are never considered
	DefaultAction action.Action
	DefaultParams *action.Params
	SortAttr      attr.Index // ascending order, oldest first

	Rules []Rule

	IgnoreExprs        []*expr.Node
	IgnoredFileclasses []string

	StatusManager  string
	ActionName     string
	ManagesDeleted bool
}

// Validate checks the structural invariants a loaded policy must satisfy.
func (p *Policy) Validate() error {
	ignored := make(map[string]bool, len(p.IgnoredFileclasses))
	for _, id := range p.IgnoredFileclasses {
		ignored[id] = true
	}

	for i := range p.Rules {
		r := &p.Rules[i]
		if len(r.TargetFileclasses) == 0 && !r.IsDefault() {
			return &InvalidRuleError{RuleID: r.ID, Reason: "rule has no target fileclasses and is not named \"default\""}
		}
		for _, fc := range r.TargetFileclasses {
			if ignored[fc] {
				return &InvalidRuleError{RuleID: r.ID, Reason: "fileclass " + fc + " is both ignored and a rule target in the same policy"}
			}
		}
	}
	return nil
}

// InvalidRuleError reports a rule that violates a structural invariant.
type InvalidRuleError struct {
	RuleID string
	Reason string
}

func (e *InvalidRuleError) Error() string {
	return "policy: rule " + e.RuleID + ": " + e.Reason
}
