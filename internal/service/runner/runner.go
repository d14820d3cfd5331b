package runner

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cea-hpc/robinhood-sub006/internal/adapter/outbound/catalog"
	"github.com/cea-hpc/robinhood-sub006/internal/adapter/outbound/execaction"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/action"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/attr"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/expr"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/policy"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/scheduler"
)

var runnerTracer = otel.Tracer("rbhcored/runner")

// endSpan records an error, if any, and ends the span.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Runner drives one policy through a single scan-match-schedule-execute
// pass of its scope. A Runner is built once per policy and reused across
// runs; Run itself is not safe to call concurrently on the same Runner.
type Runner struct {
	policy     *policy.Policy
	cfg        Config
	deps       Deps
	schedulers []scheduler.Scheduler
}

// New builds a Runner for p. schedulers is the gate chain to consult,
// in order, before a matched entry's action is submitted to a worker;
// it is typically the output of config.BuildSchedulerChain.
func New(p *policy.Policy, cfg Config, deps Deps, schedulers []scheduler.Scheduler) *Runner {
	cfg.SetDefaults()
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Runner{policy: p, cfg: cfg, deps: deps, schedulers: schedulers}
}

// Policy returns the policy this Runner drives, so a caller building a
// target filter (e.g. the trigger loop, scoping a catalog aggregation)
// can read its scope without duplicating configuration.
func (r *Runner) Policy() *policy.Policy { return r.policy }

// job is one matched, scheduled entry on its way to a worker.
type job struct {
	id         attr.ID
	attrs      *attr.Set
	resolution *policy.Resolution
}

// Run walks every entry in the policy's scope (optionally narrowed
// further by targetFilter, e.g. a trigger's per-OST or per-user
// subject), resolves each against the policy's rules, and executes the
// resulting actions through a bounded worker pool. timeMod lets a
// maintenance-window run evaluate conditions against an artificially
// aged clock instead of the wall-clock time.
func (r *Runner) Run(ctx context.Context, targetFilter *expr.Node, timeMod TimeModifier, extraSchedulers ...scheduler.Scheduler) (*Summary, error) {
	runID := uuid.New().String()
	started := time.Now()

	ctx, span := runnerTracer.Start(ctx, "runner.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("policy.name", r.policy.Name),
			attribute.String("run.id", runID),
		),
	)
	defer func() { endSpan(span, nil) }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// extraSchedulers, when present, gate ahead of the policy's own
	// configured chain — used by a trigger-driven run to cap this one
	// invocation to the watermark excess without touching the policy's
	// standing per-run limits.
	schedulers := append(append([]scheduler.Scheduler{}, extraSchedulers...), r.schedulers...)
	scheduler.ResetAll(schedulers)

	summary := &Summary{RunID: runID, PolicyName: r.policy.Name, Started: started}

	session, err := r.deps.Catalog.OpenSession(ctx)
	if err != nil {
		endSpan(span, err)
		return nil, fmt.Errorf("runner: open session: %w", err)
	}
	defer func() { _ = session.CloseSession(ctx) }()

	workerSessions := make([]*catalog.Session, r.cfg.Workers)
	for i := range workerSessions {
		ws, err := r.deps.Catalog.OpenSession(ctx)
		if err != nil {
			for j := 0; j < i; j++ {
				_ = workerSessions[j].CloseSession(ctx)
			}
			endSpan(span, err)
			return nil, fmt.Errorf("runner: open worker session: %w", err)
		}
		workerSessions[i] = ws
	}
	defer func() {
		for _, ws := range workerSessions {
			_ = ws.CloseSession(ctx)
		}
	}()

	baseFilter := r.policy.Scope
	if targetFilter != nil {
		baseFilter = expr.And(baseFilter, targetFilter)
	}

	requiredMask := r.requiredAttrMask()

	var scanned, matched, skipped, succeeded, failed, volume uint64
	var suspended int32

	jobs := make(chan job, r.cfg.QueueDepth)
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Workers; i++ {
		wg.Add(1)
		go r.work(ctx, workerSessions[i], jobs, &wg, &succeeded, &failed, &volume, &suspended, cancel)
	}

	stopProgress := r.startProgressReporter(ctx, runID, &scanned, &matched, &succeeded, &failed)
	defer stopProgress()

	iter, err := session.OpenIterator(ctx, baseFilter, catalog.IteratorOpts{
		Sort:  r.policy.SortAttr,
		Limit: r.cfg.DBRequestLimit,
	})
	if err != nil {
		close(jobs)
		wg.Wait()
		endSpan(span, err)
		return nil, fmt.Errorf("runner: open iterator: %w", err)
	}

	outcome := Completed
scan:
	for {
		select {
		case <-ctx.Done():
			if atomic.LoadInt32(&suspended) != 0 {
				outcome = Suspended
			} else {
				outcome = Aborted
			}
			break scan
		default:
		}

		id, attrs, err := iter.Next(ctx)
		if err == catalog.EndOfList {
			break
		}
		if err != nil {
			_ = iter.Close()
			close(jobs)
			wg.Wait()
			endSpan(span, err)
			return nil, fmt.Errorf("runner: iterate: %w", err)
		}
		atomic.AddUint64(&scanned, 1)

		now := timeMod.Apply(time.Now(), time.Since(started))

		if !requiredMask.AndNot(attrs.Present).IsNull() {
			if !r.cfg.AllowNoAttr {
				r.deps.Logger.Warn("entry has insufficient attributes for this policy's conditions",
					"policy", r.policy.Name, "entry", id.String())
			}
			atomic.AddUint64(&skipped, 1)
			continue
		}

		classID, ok, err := r.deps.Fileclasses.Classify(attrs, now)
		if err != nil {
			atomic.AddUint64(&skipped, 1)
			r.deps.Logger.Error("fileclass classification failed", "policy", r.policy.Name, "entry", id.String(), "error", err)
			continue
		}
		if ok {
			attrs.Std.ClassID = classID
		}
		attrs.Present = attrs.Present.Set(attr.ClassID)

		if baseFilter != nil {
			inScope, err := expr.Eval(baseFilter, attrs, now)
			if err != nil {
				atomic.AddUint64(&skipped, 1)
				r.deps.Logger.Error("scope evaluation failed", "policy", r.policy.Name, "entry", id.String(), "error", err)
				continue
			}
			if !inScope {
				// The catalog query only guarantees a superset of the
				// scope and target filter: an atom over a non-translatable
				// attribute widens to TRUE there, so both must still be
				// checked in-process against the retrieved attrs.
				atomic.AddUint64(&skipped, 1)
				continue
			}
		}

		resolution, err := policy.Resolve(r.policy, attrs, now, r.fileclassParams)
		if err != nil {
			atomic.AddUint64(&skipped, 1)
			r.deps.Logger.Error("policy resolution failed", "policy", r.policy.Name, "entry", id.String(), "error", err)
			continue
		}
		if resolution.Outcome != policy.Matched {
			atomic.AddUint64(&skipped, 1)
			continue
		}
		atomic.AddUint64(&matched, 1)

		if r.cfg.CheckOnly {
			continue
		}

		decision, ok := r.gate(ctx, schedulers, id, attrs.Std.Size)
		if !ok {
			atomic.AddUint64(&skipped, 1)
			continue
		}
		if decision == scheduler.Stop {
			break
		}

		if r.cfg.DryRun {
			atomic.AddUint64(&succeeded, 1)
			atomic.AddUint64(&volume, attrs.Std.Size)
			r.deps.Logger.Info("dry-run: action would execute",
				"policy", r.policy.Name, "entry", id.String(), "action", resolution.Action.Kind.String())
			continue
		}

		select {
		case jobs <- job{id: id, attrs: attrs, resolution: resolution}:
		case <-ctx.Done():
			if atomic.LoadInt32(&suspended) != 0 {
				outcome = Suspended
			} else {
				outcome = Aborted
			}
			break scan
		}
	}
	_ = iter.Close()
	close(jobs)
	wg.Wait()

	if outcome == Completed && atomic.LoadInt32(&suspended) != 0 {
		outcome = Suspended
	}

	summary.Ended = time.Now()
	summary.Scanned = atomic.LoadUint64(&scanned)
	summary.Matched = atomic.LoadUint64(&matched)
	summary.Skipped = atomic.LoadUint64(&skipped)
	summary.Succeeded = atomic.LoadUint64(&succeeded)
	summary.Failed = atomic.LoadUint64(&failed)
	summary.Volume = atomic.LoadUint64(&volume)
	summary.Outcome = outcome

	var retries uint64
	retries += session.RetryCount()
	for _, ws := range workerSessions {
		retries += ws.RetryCount()
	}
	summary.Retries = retries

	if r.deps.Metrics != nil {
		r.deps.Metrics.RunsTotal.WithLabelValues(r.policy.Name, outcome.String()).Inc()
		r.deps.Metrics.RunDuration.WithLabelValues(r.policy.Name).Observe(summary.Ended.Sub(summary.Started).Seconds())
		r.deps.Metrics.EntriesScanned.WithLabelValues(r.policy.Name).Add(float64(summary.Scanned))
	}

	r.deps.Logger.Info("policy run finished",
		"policy", r.policy.Name, "run_id", runID, "outcome", outcome.String(),
		"scanned", summary.Scanned, "matched", summary.Matched, "skipped", summary.Skipped,
		"succeeded", summary.Succeeded, "failed", summary.Failed, "volume", summary.Volume,
		"retries", summary.Retries, "duration", summary.Ended.Sub(summary.Started))

	if err := persistSummary(ctx, session, summary); err != nil {
		r.deps.Logger.Warn("failed to persist run summary variables", "policy", r.policy.Name, "error", err)
	}

	return summary, nil
}

// persistSummary writes the per-policy summary variables an admin
// surface or the next run's decisions can read back: <policy>_start,
// <policy>_end, <policy>_status, the scan counters and the retry
// count, keyed in the catalog's small-variables table.
func persistSummary(ctx context.Context, session *catalog.Session, s *Summary) error {
	vars := map[string]string{
		s.PolicyName + "_start":     s.Started.UTC().Format(time.RFC3339),
		s.PolicyName + "_end":       s.Ended.UTC().Format(time.RFC3339),
		s.PolicyName + "_status":    s.Outcome.String(),
		s.PolicyName + "_run_id":    s.RunID,
		s.PolicyName + "_scanned":   strconv.FormatUint(s.Scanned, 10),
		s.PolicyName + "_matched":   strconv.FormatUint(s.Matched, 10),
		s.PolicyName + "_succeeded": strconv.FormatUint(s.Succeeded, 10),
		s.PolicyName + "_failed":    strconv.FormatUint(s.Failed, 10),
		s.PolicyName + "_volume":    strconv.FormatUint(s.Volume, 10),
		s.PolicyName + "_retries":   strconv.FormatUint(s.Retries, 10),
	}
	for name, value := range vars {
		if err := session.SetVar(ctx, name, value); err != nil {
			return err
		}
	}
	return nil
}

// gate runs the scheduler chain for one candidate, retrying a Delay
// verdict up to SchedulerMaxDelayRetries times with SchedulerBackoff
// pauses in between. ok is false if the entry should be skipped
// (repeated Delay with no retries left, or context cancellation).
func (r *Runner) gate(ctx context.Context, schedulers []scheduler.Scheduler, id attr.ID, sizeBytes uint64) (scheduler.Decision, bool) {
	for attempt := 0; ; attempt++ {
		decision := scheduler.Chain(schedulers, id, sizeBytes)
		if decision != scheduler.Delay {
			return decision, true
		}
		if attempt >= r.cfg.SchedulerMaxDelayRetries {
			return decision, false
		}
		select {
		case <-time.After(r.cfg.SchedulerBackoff):
		case <-ctx.Done():
			return decision, false
		}
	}
}

// work is one worker goroutine's loop: execute the action, reconcile
// the catalog according to the post-action verdict, and update the
// run's counters and metrics.
func (r *Runner) work(
	ctx context.Context,
	session *catalog.Session,
	jobs <-chan job,
	wg *sync.WaitGroup,
	succeeded, failed, volume *uint64,
	suspended *int32,
	cancel context.CancelFunc,
) {
	defer wg.Done()
	if r.deps.Metrics != nil {
		r.deps.Metrics.ActiveWorkers.WithLabelValues(r.policy.Name).Inc()
		defer r.deps.Metrics.ActiveWorkers.WithLabelValues(r.policy.Name).Dec()
	}

	for j := range jobs {
		verdict, updated, err := execaction.Execute(ctx, &j.resolution.Action, j.id, j.attrs, j.resolution.Params)
		result := "ok"
		if err != nil {
			result = "error"
			atomic.AddUint64(failed, 1)
			r.deps.Logger.Error("action execution failed",
				"policy", r.policy.Name, "entry", j.id.String(), "error", err)
		} else {
			atomic.AddUint64(succeeded, 1)
			atomic.AddUint64(volume, j.attrs.Std.Size)
			r.reconcile(ctx, session, j.id, j.attrs, verdict, updated)
		}
		if r.deps.Metrics != nil {
			r.deps.Metrics.ActionsTotal.WithLabelValues(r.policy.Name, result).Inc()
			if err == nil {
				r.deps.Metrics.VolumeTotal.WithLabelValues(r.policy.Name).Add(float64(j.attrs.Std.Size))
			}
		}

		if r.shouldSuspend(atomic.LoadUint64(succeeded), atomic.LoadUint64(failed)) {
			if atomic.CompareAndSwapInt32(suspended, 0, 1) {
				r.deps.Logger.Warn("policy run suspended: failure rate exceeded threshold", "policy", r.policy.Name)
				cancel()
			}
		}
	}
}

// reconcile updates the catalog to match what the action actually did,
// per its post-action verdict.
func (r *Runner) reconcile(ctx context.Context, session *catalog.Session, id attr.ID, attrs *attr.Set, verdict action.PostAction, updated *attr.Set) {
	var err error
	switch verdict {
	case action.VerdictRmAll:
		err = session.Remove(ctx, id, attrs, true)
	case action.VerdictRmOne:
		err = session.Remove(ctx, id, attrs, false)
	case action.VerdictUpdate:
		if updated != nil {
			err = session.Update(ctx, id, updated)
		}
	case action.VerdictNone:
		// nothing to reconcile
	}
	if err != nil {
		r.deps.Logger.Error("catalog reconciliation failed",
			"policy", r.policy.Name, "entry", id.String(), "verdict", verdict.String(), "error", err)
	}
}

// shouldSuspend implements the failure-policy check: once at least
// SuspendErrorMin actions have failed, abort the run if the failure
// percentage has reached SuspendErrorPct.
func (r *Runner) shouldSuspend(succeeded, failed uint64) bool {
	if r.cfg.SuspendErrorPct <= 0 || failed < r.cfg.SuspendErrorMin {
		return false
	}
	total := succeeded + failed
	if total == 0 {
		return false
	}
	return float64(failed)/float64(total)*100 >= r.cfg.SuspendErrorPct
}

// fileclassParams adapts the fileclass registry to the signature
// policy.Resolve expects for per-(fileclass, policy) parameter overrides.
func (r *Runner) fileclassParams(classID string) (map[string]string, bool) {
	fc, ok := r.deps.Fileclasses.Get(classID)
	if !ok {
		return nil, false
	}
	return fc.ActionParams(r.policy.Name)
}

// requiredAttrMask is the union of every attribute index this policy's
// scope, rules, and ignore expressions reference, plus every registered
// fileclass's definition — the set of attributes an entry must already
// carry for classification and resolution to proceed without needing to
// stat the filesystem directly.
func (r *Runner) requiredAttrMask() attr.Mask {
	var m attr.Mask
	if r.policy.Scope != nil {
		m = m.Or(r.policy.Scope.AttrMask())
	}
	for i := range r.policy.Rules {
		m = m.Or(r.policy.Rules[i].AttrMask())
	}
	for _, ig := range r.policy.IgnoreExprs {
		m = m.Or(ig.AttrMask())
	}
	for _, fc := range r.deps.Fileclasses.All() {
		m = m.Or(fc.Definition.AttrMask())
	}
	return m
}

// startProgressReporter launches a goroutine that logs a progress
// summary every ReportInterval until ctx is done or the returned stop
// function is called. Counters are read atomically so the logger never
// races with the scan/worker goroutines.
func (r *Runner) startProgressReporter(ctx context.Context, runID string, scanned, matched, succeeded, failed *uint64) (stop func()) {
	if r.cfg.ReportInterval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(r.cfg.ReportInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.deps.Logger.Info("policy run progress",
					"policy", r.policy.Name, "run_id", runID,
					"scanned", atomic.LoadUint64(scanned), "matched", atomic.LoadUint64(matched),
					"succeeded", atomic.LoadUint64(succeeded), "failed", atomic.LoadUint64(failed))
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return func() { close(done) }
}
