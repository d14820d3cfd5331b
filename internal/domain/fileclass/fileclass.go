// Package fileclass implements the fileclass registry: named boolean
// expressions over attributes, with per-policy action-parameter
// overrides, loaded once at startup and immutable thereafter.
package fileclass

import (
	"fmt"
	"strings"
	"time"

	"github.com/cea-hpc/robinhood-sub006/internal/domain/attr"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/expr"
)

// SetOp is the set-theoretic combinator used when a fileclass is
// declared as an expression over previously-declared fileclasses
// instead of a direct boolean definition.
type SetOp int

const (
	// Union: member1 OR member2 OR ...
	Union SetOp = iota
	// Intersect: member1 AND member2 AND ...
	Intersect
	// Difference: member1 AND NOT member2 AND NOT member3 ...
	Difference
)

// Def is the declaration of one fileclass as read from configuration,
// before expansion. Either Bool is set, or SetOp/SetMember describe a
// set expression.
type Def struct {
	ID   string
	Bool *expr.Node // direct boolean definition

	SetOp     SetOp
	SetMember []string // names of previously-declared fileclasses

	Report       bool
	PolicyParams map[string]map[string]string // policy name (any case) -> param key -> value
}

// Fileclass is a loaded, expanded fileclass: a named boolean expression
// plus bookkeeping the policy/rule registry consults during resolution.
type Fileclass struct {
	ID           string
	Definition   *expr.Node
	Reportable   bool
	usedInPolicy bool
	policyParams map[string]map[string]string // lower-cased policy name -> params
}

// UsedInPolicy reports whether some rule in some policy targets this
// fileclass.
func (f *Fileclass) UsedInPolicy() bool { return f.usedInPolicy }

// MarkUsedInPolicy records that a rule references this fileclass. Called
// by the policy/rule registry while loading rules.
func (f *Fileclass) MarkUsedInPolicy() { f.usedInPolicy = true }

// ActionParams returns the action-parameter overrides attached to this
// fileclass for the named policy. Lookup is case-insensitive; ok is
// false if no params block is attached for that policy.
func (f *Fileclass) ActionParams(policyName string) (map[string]string, bool) {
	p, ok := f.policyParams[strings.ToLower(policyName)]
	return p, ok
}

// Registry holds every loaded fileclass, keyed by id.
type Registry struct {
	classes  map[string]*Fileclass
	order    []string
	Warnings []string // TimeInDefinition-style non-fatal warnings
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{classes: make(map[string]*Fileclass)}
}

// Get looks up a fileclass by id.
func (r *Registry) Get(id string) (*Fileclass, bool) {
	fc, ok := r.classes[id]
	return fc, ok
}

// All returns every fileclass in declaration order.
func (r *Registry) All() []*Fileclass {
	out := make([]*Fileclass, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.classes[id])
	}
	return out
}

// Classify evaluates attrs against every registered fileclass in
// declaration order and returns the id of the first whose definition
// matches. ok is false if no fileclass matches; the caller (the policy
// runner, before calling policy.Resolve) is responsible for deciding
// what class_id an unclassified entry gets.
func (r *Registry) Classify(attrs *attr.Set, now time.Time) (id string, ok bool, err error) {
	for _, classID := range r.order {
		fc := r.classes[classID]
		matched, evalErr := expr.Eval(fc.Definition, attrs, now)
		if evalErr != nil {
			return "", false, evalErr
		}
		if matched {
			return fc.ID, true, nil
		}
	}
	return "", false, nil
}

// Load expands and registers a set of fileclass declarations, in
// order. Set-theoretic definitions may only reference fileclasses
// declared earlier in defs (or already in the registry); forward
// references fail with an UnknownFileclass-shaped error, exactly like a
// rule referencing an undeclared fileclass.
func (r *Registry) Load(defs []Def) error {
	for _, d := range defs {
		if _, exists := r.classes[d.ID]; exists {
			return fmt.Errorf("fileclass: duplicate fileclass id %q (DuplicateFileclass)", d.ID)
		}

		def, err := r.expand(d)
		if err != nil {
			return err
		}

		fc := &Fileclass{
			ID:           d.ID,
			Definition:   def,
			Reportable:   d.Report,
			policyParams: lowerKeys(d.PolicyParams),
		}
		r.classes[d.ID] = fc
		r.order = append(r.order, d.ID)

		if times := def.TimeAttrs(); len(times) > 0 {
			r.Warnings = append(r.Warnings, fmt.Sprintf(
				"fileclass %q: definition uses time-based attributes; such conditions belong in policy rules (TimeInDefinition)", d.ID))
		}
	}
	return nil
}

func (r *Registry) expand(d Def) (*expr.Node, error) {
	if d.Bool != nil {
		return d.Bool, nil
	}
	if len(d.SetMember) == 0 {
		return nil, fmt.Errorf("fileclass %q: set expression has no members", d.ID)
	}

	var acc *expr.Node
	for i, memberID := range d.SetMember {
		member, ok := r.classes[memberID]
		if !ok {
			return nil, fmt.Errorf("fileclass %q: references undeclared fileclass %q (UnknownFileclass)", d.ID, memberID)
		}
		if i == 0 {
			acc = member.Definition
			continue
		}
		switch d.SetOp {
		case Union:
			acc = expr.Or(acc, member.Definition)
		case Intersect:
			acc = expr.And(acc, member.Definition)
		case Difference:
			acc = expr.And(acc, expr.Not(member.Definition))
		default:
			return nil, fmt.Errorf("fileclass %q: unknown set operator", d.ID)
		}
	}
	return acc, nil
}

func lowerKeys(in map[string]map[string]string) map[string]map[string]string {
	out := make(map[string]map[string]string, len(in))
	for k, v := range in {
		out[strings.ToLower(k)] = v
	}
	return out
}
