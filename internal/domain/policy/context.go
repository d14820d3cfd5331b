package policy

import (
	"time"

	"github.com/cea-hpc/robinhood-sub006/internal/domain/action"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/attr"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/expr"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/rberr"
)

// Outcome classifies the result of resolving one entry against a policy.
type Outcome int

const (
	// Matched means a rule (possibly "default") was selected.
	Matched Outcome = iota
	// Ignored means an ignore expression or ignored-fileclass matched.
	Ignored
	// NoMatch means no rule matched and there is no "default" rule.
	NoMatch
)

func (o Outcome) String() string {
	switch o {
	case Matched:
		return "matched"
	case Ignored:
		return "ignored"
	case NoMatch:
		return "no_match"
	default:
		return "unknown"
	}
}

// Resolution is the result of resolving one entry against a policy.
type Resolution struct {
	Outcome Outcome
	Rule    *Rule // non-nil iff Outcome == Matched

	// Action is the effective action: the matched rule's override if
	// set, otherwise the policy's default action.
	Action action.Action

	// Params carries the layered parameters: policy defaults, then rule
	// overrides, then fileclass-for-policy overrides. Trigger-layer
	// overrides, if any, are applied by the caller on top of this.
	Params *action.Params
}

// Resolve implements the §4.D algorithm against a single entry's
// attributes. fileclassParams, when non-nil, looks up per-(fileclass,
// policy) action-parameter overrides for the entry's class_id; it is
// typically fileclass.Registry.Get(classID).ActionParams(policy.Name).
func Resolve(p *Policy, attrs *attr.Set, now time.Time, fileclassParams func(classID string) (map[string]string, bool)) (*Resolution, error) {
	for _, ig := range p.IgnoreExprs {
		matched, err := expr.Eval(ig, attrs, now)
		if err != nil {
			return nil, err
		}
		if matched {
			return &Resolution{Outcome: Ignored}, nil
		}
	}

	classID, ok, err := attrs.GetStd(attr.ClassID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &rberr.MissingAttrs{Mask: attr.Mask{}.Set(attr.ClassID)}
	}
	class, _ := classID.(string)

	for _, ignoredClass := range p.IgnoredFileclasses {
		if ignoredClass == class {
			return &Resolution{Outcome: Ignored}, nil
		}
	}

	var matchedRule *Rule
	for i := range p.Rules {
		r := &p.Rules[i]
		if r.IsDefault() {
			continue // default only applies if nothing else matched
		}
		if !containsFileclass(r.TargetFileclasses, class) {
			continue
		}
		matched, err := expr.Eval(r.Condition, attrs, now)
		if err != nil {
			return nil, err
		}
		if matched {
			matchedRule = r
			break
		}
	}

	if matchedRule == nil {
		for i := range p.Rules {
			if p.Rules[i].IsDefault() {
				matchedRule = &p.Rules[i]
				break
			}
		}
	}

	if matchedRule == nil {
		return &Resolution{Outcome: NoMatch}, nil
	}

	eff := p.DefaultAction
	if matchedRule.Action != nil {
		eff = *matchedRule.Action
	}

	params := action.NewParams()
	if p.DefaultParams != nil {
		params.Layer(p.DefaultParams)
	}
	if matchedRule.Params != nil {
		params.Layer(matchedRule.Params)
	}
	if fileclassParams != nil {
		if fcp, ok := fileclassParams(class); ok {
			layer := action.NewParams()
			for k, v := range fcp {
				layer.Set(k, v)
			}
			params.Layer(layer)
		}
	}

	return &Resolution{Outcome: Matched, Rule: matchedRule, Action: eff, Params: params}, nil
}

func containsFileclass(targets []string, class string) bool {
	for _, t := range targets {
		if t == class {
			return true
		}
	}
	return false
}
