package triggerloop

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/cea-hpc/robinhood-sub006/internal/adapter/outbound/catalog"
	"github.com/cea-hpc/robinhood-sub006/internal/adapter/outbound/memsched"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/attr"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/expr"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/scheduler"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/trigger"
	"github.com/cea-hpc/robinhood-sub006/internal/service/runner"
)

// Loop is the single background trigger-checker: one ticker at the GCD
// of every trigger's check interval, checking whichever triggers are
// due on each tick, sequentially (mirroring the one-trigger-checker-
// thread model the runner's own worker pool does not need to share
// with).
type Loop struct {
	triggers []trigger.Trigger
	states   map[string]*trigger.State
	mu       sync.Mutex

	cfg  Config
	deps Deps
}

// New builds a Loop over triggers. deps.FSUsage defaults to the
// platform statfs probe if nil.
func New(triggers []trigger.Trigger, cfg Config, deps Deps) *Loop {
	cfg.SetDefaults()
	if deps.FSUsage == nil {
		deps.FSUsage = NewStatfsProbe()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	states := make(map[string]*trigger.State, len(triggers))
	for _, t := range triggers {
		states[t.Name] = &trigger.State{}
	}
	return &Loop{triggers: triggers, states: states, cfg: cfg, deps: deps}
}

// Snapshot returns a copy of every trigger's current state, keyed by
// trigger name, for the admin status surface.
func (l *Loop) Snapshot() map[string]trigger.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]trigger.State, len(l.states))
	for name, st := range l.states {
		out[name] = *st
	}
	return out
}

// Run ticks at the GCD of every trigger's check interval until ctx is
// cancelled, checking due triggers on each tick. An initial pass runs
// immediately so a freshly-started daemon doesn't wait a full interval
// before a NotChecked trigger gets its first check.
func (l *Loop) Run(ctx context.Context) error {
	interval := trigger.MainInterval(l.triggers)
	l.checkDue(ctx, time.Now())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			l.checkDue(ctx, now)
		}
	}
}

func (l *Loop) checkDue(ctx context.Context, now time.Time) {
	l.mu.Lock()
	due := trigger.DueTriggers(l.triggers, l.states, now)
	l.mu.Unlock()

	for _, t := range due {
		select {
		case <-ctx.Done():
			return
		default:
		}
		l.check(ctx, t)
	}
}

func (l *Loop) setStatus(name string, st *trigger.State, s trigger.Status) {
	st.Status = s
	if l.deps.Metrics != nil {
		l.deps.Metrics.Status.WithLabelValues(name).Set(float64(s))
	}
}

func (l *Loop) check(ctx context.Context, t trigger.Trigger) {
	st := l.states[t.Name]
	now := time.Now()
	st.LastCheck = now
	l.setStatus(t.Name, st, trigger.BeingChecked)
	if l.deps.Metrics != nil {
		l.deps.Metrics.ChecksTotal.WithLabelValues(t.Name).Inc()
	}

	r, ok := l.deps.Runners[t.Policy]
	if !ok {
		l.setStatus(t.Name, st, trigger.CheckError)
		l.deps.Logger.Error("trigger references a policy with no runner", "trigger", t.Name, "policy", t.Policy)
		return
	}

	switch t.Kind {
	case trigger.Periodic:
		if l.fire(ctx, t, st, r, l.scopeFilter(t, r), runner.TimeModifier{}) {
			l.setStatus(t.Name, st, trigger.Ok)
		}

	case trigger.GlobalUsage, trigger.PerOST, trigger.PerPool:
		l.checkUsageBased(ctx, t, st, r)

	case trigger.PerUser:
		l.checkAggregated(ctx, t, st, r, attr.UID)

	case trigger.PerGroup:
		l.checkAggregated(ctx, t, st, r, attr.GID)

	case trigger.Custom:
		l.setStatus(t.Name, st, trigger.Unsupported)
		l.deps.Logger.Warn("custom trigger probes have no external-probe protocol wired; skipping", "trigger", t.Name)

	default:
		l.setStatus(t.Name, st, trigger.CheckError)
	}
}

// scopeFilter narrows a trigger-driven run to the trigger's target
// fileclass, if any, on top of the policy's own scope (already applied
// inside Runner.Run, so nil here just means "no extra narrowing").
func (l *Loop) scopeFilter(t trigger.Trigger, r *runner.Runner) *expr.Node {
	if t.TargetClass == "" {
		return nil
	}
	return expr.Cond(attr.ClassID, expr.EQ, expr.Value{Str: t.TargetClass})
}

// fire invokes the policy run behind t and folds its summary into st
// and the fires-total metric. It returns false if the run errored or
// did not complete normally, in which case the caller should not
// advance st to a success status.
func (l *Loop) fire(ctx context.Context, t trigger.Trigger, st *trigger.State, r *runner.Runner, targetFilter *expr.Node, timeMod runner.TimeModifier, extra ...scheduler.Scheduler) bool {
	l.setStatus(t.Name, st, trigger.Running)
	summary, err := r.Run(ctx, targetFilter, timeMod, extra...)
	if err != nil {
		l.setStatus(t.Name, st, trigger.CheckError)
		l.deps.Logger.Error("trigger-driven run failed", "trigger", t.Name, "policy", t.Policy, "error", err)
		if l.deps.Metrics != nil {
			l.deps.Metrics.FiresTotal.WithLabelValues(t.Name, "error").Inc()
		}
		return false
	}

	st.LastCount = summary.Matched
	st.LastCounters = trigger.Counters{Count: summary.Succeeded, Volume: summary.Volume, Errors: summary.Failed}
	st.TotalCounters.Add(st.LastCounters)

	outcome := "completed"
	if summary.Outcome == runner.Aborted {
		outcome = "aborted"
	} else if summary.Outcome == runner.Suspended {
		outcome = "suspended"
	}
	if l.deps.Metrics != nil {
		l.deps.Metrics.FiresTotal.WithLabelValues(t.Name, outcome).Inc()
	}
	l.recordTrigger(ctx, t)

	if summary.Outcome != runner.Completed {
		l.setStatus(t.Name, st, trigger.Aborted)
		return false
	}
	return true
}

// recordTrigger persists <policy>_trigger, the name of the trigger
// that launched this run, alongside the summary variables Runner.Run
// already wrote for the run itself.
func (l *Loop) recordTrigger(ctx context.Context, t trigger.Trigger) {
	sess, err := l.deps.Catalog.OpenSession(ctx)
	if err != nil {
		return
	}
	defer func() { _ = sess.CloseSession(ctx) }()
	_ = sess.SetVar(ctx, t.Policy+"_trigger", t.Name)
}

// dimensionValue extracts the value of u relevant to d; ok is false for
// a dimension a filesystem-capacity probe cannot report (count has no
// meaning without a per-entry catalog aggregation).
func dimensionValue(u Usage, d trigger.Dimension) (float64, bool) {
	switch d {
	case trigger.DimensionPercent:
		return u.UsedPct, true
	case trigger.DimensionBytes, trigger.DimensionBlocks:
		return float64(u.UsedBytes), true
	default:
		return 0, false
	}
}

// excessCap builds a one-run scheduler cap for the watermark excess,
// converting a percent-denominated excess into a byte cap via the
// probe's total capacity since MaxPerRun only understands count/volume.
func excessCap(d trigger.Dimension, excess float64, total uint64) []scheduler.Scheduler {
	if excess <= 0 {
		return nil
	}
	cfg := memsched.MaxPerRunConfig{}
	switch d {
	case trigger.DimensionBytes, trigger.DimensionBlocks:
		cfg.MaxVolume = uint64(excess)
	case trigger.DimensionPercent:
		if total == 0 {
			return nil
		}
		cfg.MaxVolume = uint64(excess / 100 * float64(total))
	case trigger.DimensionCount:
		cfg.MaxCount = uint64(excess)
	default:
		return nil
	}
	return []scheduler.Scheduler{memsched.NewMaxPerRun(cfg)}
}

func (l *Loop) checkUsageBased(ctx context.Context, t trigger.Trigger, st *trigger.State, r *runner.Runner) {
	subjects := t.Subjects
	if len(subjects) == 0 {
		subjects = []string{l.cfg.FSRootPath}
	}

	anyRan := false
	for _, subject := range subjects {
		u, err := l.deps.FSUsage.MeasureUsage(subject)
		if err != nil {
			l.setStatus(t.Name, st, trigger.Unsupported)
			l.deps.Logger.Warn("filesystem usage probe failed", "trigger", t.Name, "subject", subject, "error", err)
			continue
		}
		value, ok := dimensionValue(u, t.Watermark.Dimension)
		if !ok {
			l.setStatus(t.Name, st, trigger.Unsupported)
			l.deps.Logger.Warn("trigger's watermark dimension has no statfs-based measurement", "trigger", t.Name, "dimension", t.Watermark.Dimension.String())
			continue
		}
		st.LastUsage = u.UsedPct
		if l.deps.Metrics != nil {
			l.deps.Metrics.UsagePct.WithLabelValues(t.Name).Set(u.UsedPct)
		}
		if value < t.Watermark.High {
			l.setStatus(t.Name, st, trigger.Ok)
			continue
		}

		anyRan = true
		excess := value - t.Watermark.Low
		if !l.fire(ctx, t, st, r, l.scopeFilter(t, r), runner.TimeModifier{}, excessCap(t.Watermark.Dimension, excess, u.TotalBytes)...) {
			continue
		}

		after, err := l.deps.FSUsage.MeasureUsage(subject)
		if err != nil {
			continue
		}
		st.LastUsage = after.UsedPct
		afterValue, _ := dimensionValue(after, t.Watermark.Dimension)
		if afterValue > t.Watermark.Low {
			l.setStatus(t.Name, st, trigger.NotEnough)
			if t.AlertOnNotEnough {
				l.deps.Logger.Warn("usage is still above the low watermark after the triggered run",
					"trigger", t.Name, "subject", subject, "value", afterValue, "low_watermark", t.Watermark.Low)
			}
		} else {
			l.setStatus(t.Name, st, trigger.Ok)
		}
	}

	if anyRan {
		l.applyCooldown(t, st)
	}
}

// checkAggregated implements PerUser/PerGroup: a catalog aggregation
// groups entries in the policy's scope by groupAttr (UID or GID),
// summing (or counting, for a count-dimensioned watermark) their size,
// and fires the policy once per subject whose total reaches the high
// watermark, capped to that subject's excess over the low watermark.
func (l *Loop) checkAggregated(ctx context.Context, t trigger.Trigger, st *trigger.State, r *runner.Runner, groupAttr attr.Index) {
	sess, err := l.deps.Catalog.OpenSession(ctx)
	if err != nil {
		l.setStatus(t.Name, st, trigger.CheckError)
		l.deps.Logger.Error("trigger aggregation: open session", "trigger", t.Name, "error", err)
		return
	}
	defer func() { _ = sess.CloseSession(ctx) }()

	scopeFilter := r.Policy().Scope
	if t.TargetClass != "" {
		scopeFilter = expr.And(scopeFilter, expr.Cond(attr.ClassID, expr.EQ, expr.Value{Str: t.TargetClass}))
	}

	aggFunc := "SUM"
	if t.Watermark.Dimension == trigger.DimensionCount {
		aggFunc = "COUNT"
	}
	valueAlias := aggFunc + "_" + attr.StdName(attr.Size)
	groupAlias := attr.StdName(groupAttr)

	report, err := sess.Report(ctx, []catalog.ReportField{
		{Attr: groupAttr},
		{Attr: attr.Size, Agg: aggFunc},
	}, scopeFilter, catalog.IteratorOpts{})
	if err != nil {
		l.setStatus(t.Name, st, trigger.CheckError)
		l.deps.Logger.Error("trigger aggregation query failed", "trigger", t.Name, "error", err)
		return
	}
	defer func() { _ = report.Close() }()

	anyRan, anyFailed := false, false
	for {
		row, err := report.NextReport()
		if err == catalog.EndOfList {
			break
		}
		if err != nil {
			l.setStatus(t.Name, st, trigger.CheckError)
			l.deps.Logger.Error("trigger aggregation row scan failed", "trigger", t.Name, "error", err)
			return
		}

		value := toFloat64(row[valueAlias])
		if value < t.Watermark.High {
			continue
		}
		anyRan = true

		subjectFilter := subjectCondition(groupAttr, row[groupAlias])
		excess := value - t.Watermark.Low
		dim := trigger.DimensionBytes
		if aggFunc == "COUNT" {
			dim = trigger.DimensionCount
		}

		if !l.fire(ctx, t, st, r, subjectFilter, runner.TimeModifier{}, excessCap(dim, excess, 0)...) {
			anyFailed = true
			continue
		}
	}

	if !anyFailed {
		l.setStatus(t.Name, st, trigger.Ok)
	}
	if anyRan {
		l.applyCooldown(t, st)
	}
}

// subjectCondition builds an equality filter on groupAttr for one
// aggregated row's group-by value, whatever numeric type the sqlite
// driver handed back.
func subjectCondition(groupAttr attr.Index, v any) *expr.Node {
	return expr.Cond(groupAttr, expr.EQ, expr.Value{Int: int64(toFloat64(v))})
}

func toFloat64(v any) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case float64:
		return n
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	default:
		return 0
	}
}

// applyCooldown delays a usage-based trigger's next due time so the
// loop waits PostTriggerWait (rather than the shorter CheckInterval)
// before re-measuring usage it just reduced.
func (l *Loop) applyCooldown(t trigger.Trigger, st *trigger.State) {
	if t.PostTriggerWait <= t.CheckInterval {
		return
	}
	st.LastCheck = time.Now().Add(t.PostTriggerWait - t.CheckInterval)
}
