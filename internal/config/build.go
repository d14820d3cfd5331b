package config

import (
	"fmt"

	"github.com/cea-hpc/robinhood-sub006/internal/adapter/outbound/memsched"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/action"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/attr"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/expr"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/fileclass"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/policy"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/scheduler"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/trigger"
)

// Built bundles the domain values a loaded Config produces: a fileclass
// registry shared by every policy, the ordered policies themselves, and
// the triggers that drive them.
type Built struct {
	Fileclasses *fileclass.Registry
	Policies    []*policy.Policy
	Triggers    []trigger.Trigger
}

// Build turns a validated Config into the domain values the runner,
// trigger loop and scheduler chains consume directly. Validate should be
// called first; Build does not re-check cross-field invariants already
// enforced there, but it does surface errors from the expression builder
// and from the domain packages' own Load/Validate methods.
func Build(c *Config) (*Built, error) {
	registry := fileclass.NewRegistry()
	defs := make([]fileclass.Def, 0, len(c.Fileclasses))
	for _, fc := range c.Fileclasses {
		def, err := buildFileclassDef(fc)
		if err != nil {
			return nil, fmt.Errorf("fileclass %q: %w", fc.Name, err)
		}
		defs = append(defs, def)
	}
	if err := registry.Load(defs); err != nil {
		return nil, fmt.Errorf("loading fileclasses: %w", err)
	}

	policies := make([]*policy.Policy, 0, len(c.Policies))
	for _, pc := range c.Policies {
		p, err := buildPolicy(pc, registry)
		if err != nil {
			return nil, fmt.Errorf("policy %q: %w", pc.Name, err)
		}
		policies = append(policies, p)
	}

	triggers := make([]trigger.Trigger, 0, len(c.Triggers))
	for _, tc := range c.Triggers {
		t, err := buildTrigger(tc)
		if err != nil {
			return nil, fmt.Errorf("trigger %q: %w", tc.Name, err)
		}
		triggers = append(triggers, t)
	}

	return &Built{Fileclasses: registry, Policies: policies, Triggers: triggers}, nil
}

func buildFileclassDef(fc FileclassConfig) (fileclass.Def, error) {
	def := fileclass.Def{
		ID:           fc.Name,
		Report:       fc.Report,
		PolicyParams: fc.PolicyParams,
	}
	if fc.Definition != nil {
		n, err := buildExpr(fc.Definition)
		if err != nil {
			return def, err
		}
		def.Bool = n
		return def, nil
	}
	switch fc.SetOp {
	case "union":
		def.SetOp = fileclass.Union
	case "intersect":
		def.SetOp = fileclass.Intersect
	case "difference":
		def.SetOp = fileclass.Difference
	default:
		return def, fmt.Errorf("unknown set_op %q", fc.SetOp)
	}
	def.SetMember = fc.Members
	return def, nil
}

func buildAction(ac *ActionConfig) (action.Action, error) {
	if ac == nil {
		return action.Action{Kind: action.None}, nil
	}
	if ac.Function != "" {
		return action.Action{Kind: action.Function, FuncName: ac.Function}, nil
	}
	return action.Action{Kind: action.Command, Argv: ac.Command}, nil
}

func buildParams(m map[string]string) *action.Params {
	p := action.NewParams()
	for k, v := range m {
		p.Set(k, v)
	}
	return p
}

func buildPolicy(pc PolicyConfig, registry *fileclass.Registry) (*policy.Policy, error) {
	scope, err := buildExpr(pc.Scope)
	if err != nil {
		return nil, fmt.Errorf("scope: %w", err)
	}
	defaultAction, err := buildAction(pc.DefaultAction)
	if err != nil {
		return nil, fmt.Errorf("default_action: %w", err)
	}
	sortAttr := attr.LastMod
	if pc.SortAttr != "" {
		idx, ok := attr.StdIndexByName(pc.SortAttr)
		if !ok {
			return nil, fmt.Errorf("sort_attr: unknown attribute %q", pc.SortAttr)
		}
		sortAttr = idx
	}

	ignoreExprs := make([]*expr.Node, 0, len(pc.IgnoreExprs))
	for i := range pc.IgnoreExprs {
		n, err := buildExpr(&pc.IgnoreExprs[i])
		if err != nil {
			return nil, fmt.Errorf("ignore[%d]: %w", i, err)
		}
		ignoreExprs = append(ignoreExprs, n)
	}

	rules := make([]policy.Rule, 0, len(pc.Rules))
	for _, rc := range pc.Rules {
		r, err := buildRule(rc)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", rc.ID, err)
		}
		rules = append(rules, r)
		for _, fc := range rc.TargetFileclasses {
			if cls, ok := registry.Get(fc); ok {
				cls.MarkUsedInPolicy()
			}
		}
	}

	p := &policy.Policy{
		Name:               pc.Name,
		Scope:              scope,
		DefaultAction:      defaultAction,
		DefaultParams:      buildParams(pc.DefaultParams),
		SortAttr:           sortAttr,
		Rules:              rules,
		IgnoreExprs:        ignoreExprs,
		IgnoredFileclasses: pc.IgnoredFileclasses,
		StatusManager:      pc.StatusManager,
		ActionName:         pc.ActionName,
		ManagesDeleted:     pc.ManagesDeleted,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func buildRule(rc RuleConfig) (policy.Rule, error) {
	cond, err := buildExpr(rc.Condition)
	if err != nil {
		return policy.Rule{}, fmt.Errorf("condition: %w", err)
	}
	r := policy.Rule{
		ID:                rc.ID,
		TargetFileclasses: rc.TargetFileclasses,
		Condition:         cond,
		Params:            buildParams(rc.Params),
	}
	if rc.Action != nil {
		a, err := buildAction(rc.Action)
		if err != nil {
			return policy.Rule{}, fmt.Errorf("action: %w", err)
		}
		r.Action = &a
	}
	return r, nil
}

// BuildSchedulerChain constructs the gate chain a policy's scheduler
// block describes: a per-run cap followed by a rate limiter. Either
// stage is omitted when its limits are left at zero.
func BuildSchedulerChain(sc SchedulerConfig) []scheduler.Scheduler {
	var gates []scheduler.Scheduler
	if sc.MaxActionCount > 0 || sc.MaxActionVolume > 0 {
		gates = append(gates, memsched.NewMaxPerRun(memsched.MaxPerRunConfig{
			MaxCount:  sc.MaxActionCount,
			MaxVolume: sc.MaxActionVolume,
		}))
	}
	if sc.RateLimitCount > 0 || sc.RateLimitVolume > 0 {
		gates = append(gates, memsched.NewRateLimit(memsched.RateLimitConfig{
			MaxCount: sc.RateLimitCount,
			MaxSize:  sc.RateLimitVolume,
			Period:   sc.RateLimitPeriod,
			MaxWaits: sc.RateLimitMaxWaits,
		}))
	}
	return gates
}

func buildTrigger(tc TriggerConfig) (trigger.Trigger, error) {
	var kind trigger.Kind
	switch tc.Kind {
	case "periodic":
		kind = trigger.Periodic
	case "global_usage":
		kind = trigger.GlobalUsage
	case "per_ost":
		kind = trigger.PerOST
	case "per_pool":
		kind = trigger.PerPool
	case "per_user":
		kind = trigger.PerUser
	case "per_group":
		kind = trigger.PerGroup
	case "custom":
		kind = trigger.Custom
	default:
		return trigger.Trigger{}, fmt.Errorf("unknown kind %q", tc.Kind)
	}

	var dim trigger.Dimension
	switch tc.Watermark.Dimension {
	case "blocks":
		dim = trigger.DimensionBlocks
	case "bytes":
		dim = trigger.DimensionBytes
	case "count":
		dim = trigger.DimensionCount
	case "percent", "":
		dim = trigger.DimensionPercent
	default:
		return trigger.Trigger{}, fmt.Errorf("watermark: unknown dimension %q", tc.Watermark.Dimension)
	}
	wm := trigger.Watermark{Dimension: dim, High: tc.Watermark.High, Low: tc.Watermark.Low}
	if err := wm.Validate(); err != nil {
		return trigger.Trigger{}, err
	}

	return trigger.Trigger{
		Name:             tc.Name,
		Kind:             kind,
		Policy:           tc.Policy,
		TargetClass:      tc.TargetClass,
		Subjects:         tc.Subjects,
		CheckInterval:    tc.CheckInterval,
		Watermark:        wm,
		MaxActionCount:   tc.MaxActionCount,
		MaxActionVolume:  tc.MaxActionVolume,
		PostTriggerWait:  tc.PostTriggerWait,
		Params:           buildParams(tc.Params),
		AlertOnNotEnough: tc.AlertOnNotEnough,
	}, nil
}
