// Package orchestrator runs or submits tasks of a namespace unless they are
// done or already active on the scheduler.
//
// The orchestrator keeps no state across passes. Everything it knows comes from
// the completion store and the scheduler at the time of the pass, so running
// the same pass from many processes at once is safe (except for duplicated
// work in a narrow window, which pair locks reduce).
package orchestrator

import (
	"context"
	"errors"
	"io"
	"log"
	"slices"
	"time"

	"github.com/roundup-project/roundup/pkg/dones"
	xe "github.com/roundup-project/roundup/pkg/errors"
	"github.com/roundup-project/roundup/pkg/kvstore"
	"github.com/roundup-project/roundup/pkg/metrics"
	"github.com/roundup-project/roundup/pkg/pairlock"
	"github.com/roundup-project/roundup/pkg/scheduler"
	"github.com/roundup-project/roundup/pkg/tasks"
	"github.com/roundup-project/roundup/pkg/utils/retry"
)

// Decision is what a pass did for a task.
type Decision string

const (
	Done      Decision = "done"
	Active    Decision = "active"
	Executed  Decision = "executed"
	Submitted Decision = "submitted"
	Failed    Decision = "failed"
	Rejected  Decision = "rejected"
	Locked    Decision = "locked"
)

var (
	ErrDuplicateTask = errors.New("duplicated task name")
	ErrNoScheduler   = errors.New("no scheduler to submit tasks to")
)

const (
	DefaultRetryAttempts = 3
	DefaultRetryInterval = 500 * time.Millisecond
)

type Orchestrator struct {
	dones dones.Dones

	scheduler  scheduler.Scheduler
	mailbox    *tasks.Mailbox
	entrypoint []string
	optionsFor func(tasks.Task) scheduler.Options

	runtime *tasks.Runtime
	logger  *log.Logger
	metrics *metrics.Metrics

	locks       *pairlock.Manager
	lockTimeout time.Duration

	retryAttempts int
	retryInterval time.Duration
}

type Option func(*Orchestrator) *Orchestrator

// WithScheduler sets the scheduler.
//
// With a scheduler, tasks active on it are skipped. Tasks are submitted to it
// only when WithSubmission is also given.
func WithScheduler(s scheduler.Scheduler) Option {
	return func(o *Orchestrator) *Orchestrator {
		o.scheduler = s
		return o
	}
}

// WithSubmission makes eligible tasks be submitted instead of run in process.
//
// Each task is dumped into the mailbox, and `entrypoint + [payload path]` is submitted.
// The entrypoint should call RunTaskFile with the path.
func WithSubmission(mailbox *tasks.Mailbox, entrypoint []string) Option {
	return func(o *Orchestrator) *Orchestrator {
		o.mailbox = mailbox
		o.entrypoint = slices.Clone(entrypoint)
		return o
	}
}

// WithOptions sets per-task scheduler options. JobName is always overwritten.
func WithOptions(f func(tasks.Task) scheduler.Options) Option {
	return func(o *Orchestrator) *Orchestrator {
		o.optionsFor = f
		return o
	}
}

func WithRuntime(rt *tasks.Runtime) Option {
	return func(o *Orchestrator) *Orchestrator {
		o.runtime = rt
		return o
	}
}

func WithLogger(l *log.Logger) Option {
	return func(o *Orchestrator) *Orchestrator {
		o.logger = l
		return o
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) *Orchestrator {
		o.metrics = m
		return o
	}
}

// WithPairLock makes tasks run in process hold a lock named after its job name.
//
// A task whose lock is held is not run.
func WithPairLock(m *pairlock.Manager, timeout time.Duration) Option {
	return func(o *Orchestrator) *Orchestrator {
		o.locks = m
		o.lockTimeout = timeout
		return o
	}
}

// WithRetry sets how many times an operation on an unavailable store is retried.
//
// Intervals grow twice for each retry.
func WithRetry(attempts int, interval time.Duration) Option {
	return func(o *Orchestrator) *Orchestrator {
		o.retryAttempts = attempts
		o.retryInterval = interval
		return o
	}
}

func New(d dones.Dones, options ...Option) *Orchestrator {
	o := &Orchestrator{
		dones:         d,
		runtime:       &tasks.Runtime{},
		logger:        log.New(io.Discard, "", 0),
		retryAttempts: DefaultRetryAttempts,
		retryInterval: DefaultRetryInterval,
	}
	for _, opt := range options {
		o = opt(o)
	}
	if o.logger == nil {
		o.logger = log.New(io.Discard, "", 0)
	}
	if o.runtime == nil {
		o.runtime = &tasks.Runtime{}
	}
	return o
}

// LockName is the name of the pair lock for a task.
func LockName(ns, name string) string {
	return scheduler.JobName(ns, name)
}

// RunAll decides and dispatches every task once, and tells whether all of them
// are done after that.
//
// Failures of a task, in execution or in submission, are logged and leave it
// eligible for the next pass. The pass is aborted only when the store stays
// unavailable or active jobs cannot be listed.
func (o *Orchestrator) RunAll(ctx context.Context, ns string, ts []tasks.Task) (bool, error) {
	result, err := o.RunPass(ctx, ns, ts)
	if err != nil {
		return false, err
	}
	return result.AllDone, nil
}

// PassResult is what a pass did.
type PassResult struct {
	AllDone bool

	// Decisions counts tasks per decision made in the pass.
	Decisions map[Decision]int
}

// Submitted tells whether any task is submitted in the pass.
func (p PassResult) Submitted() bool {
	return 0 < p.Decisions[Submitted]
}

// RunPass is RunAll, reporting decisions made for tasks.
func (o *Orchestrator) RunPass(ctx context.Context, ns string, ts []tasks.Task) (PassResult, error) {
	started := time.Now()
	if err := checkNames(ts); err != nil {
		return PassResult{}, err
	}
	if o.mailbox != nil && o.scheduler == nil {
		return PassResult{}, xe.Wrap(ErrNoScheduler)
	}

	active, err := o.activeJobs(ctx)
	if err != nil {
		return PassResult{}, err
	}

	decisions := map[Decision]int{}
	for _, t := range ts {
		d, err := o.step(ctx, ns, t, active)
		if err != nil {
			return PassResult{}, err
		}
		decisions[d] += 1
		o.metrics.Decision(ns, string(d))
	}

	allDone, err := o.AllDone(ctx, ns, ts)
	if err != nil {
		return PassResult{}, err
	}
	o.metrics.Pass(ns, time.Since(started), allDone)
	o.logger.Printf("%s: pass finished in %s, all done = %t", ns, time.Since(started), allDone)
	return PassResult{AllDone: allDone, Decisions: decisions}, nil
}

func (o *Orchestrator) step(ctx context.Context, ns string, t tasks.Task, active map[string]struct{}) (Decision, error) {
	jobName := scheduler.JobName(ns, t.Name())

	done, err := o.isDone(ctx, ns, t.Name())
	if err != nil {
		return "", err
	}
	if done {
		return Done, nil
	}
	if _, ok := active[jobName]; ok {
		o.logger.Printf("%s: active on the scheduler", jobName)
		return Active, nil
	}

	if o.mailbox != nil {
		return o.submit(ctx, ns, t)
	}
	return o.execute(ctx, ns, t)
}

func (o *Orchestrator) execute(ctx context.Context, ns string, t tasks.Task) (Decision, error) {
	jobName := scheduler.JobName(ns, t.Name())
	o.logger.Printf("%s: executing: %s", jobName, t.Describe())

	ran, err := o.run(ctx, ns, t)
	if errors.Is(err, tasks.ErrExecution) {
		o.logger.Printf("%s: failed: %v", jobName, err)
		return Failed, nil
	}
	if err != nil {
		return "", err
	}
	if !ran {
		o.logger.Printf("%s: locked by someone, skipped", jobName)
		return Locked, nil
	}
	return Executed, nil
}

func (o *Orchestrator) submit(ctx context.Context, ns string, t tasks.Task) (Decision, error) {
	jobName := scheduler.JobName(ns, t.Name())

	if err := tasks.Validate(t); err != nil {
		o.logger.Printf("%s: cannot be submitted: %v", jobName, err)
		return Rejected, nil
	}

	path, err := o.mailbox.Dump(tasks.Payload{Namespace: ns, Task: t})
	if err != nil {
		o.logger.Printf("%s: %v", jobName, &scheduler.SubmissionError{JobName: jobName, Err: err})
		return Failed, nil
	}

	opts := scheduler.Options{}
	if o.optionsFor != nil {
		opts = o.optionsFor(t)
	}
	opts.JobName = jobName
	command := append(slices.Clone(o.entrypoint), path)

	id, err := o.scheduler.Submit(ctx, command, opts)
	if err != nil {
		if derr := o.mailbox.Discard(path); derr != nil {
			o.logger.Printf("%s: payload %s is left: %v", jobName, path, derr)
		}
		if cerr := ctx.Err(); cerr != nil {
			return "", cerr
		}
		o.logger.Printf("%s: submission failed: %v", jobName, err)
		return Failed, nil
	}
	o.logger.Printf("%s: submitted as job %s", jobName, id)
	return Submitted, nil
}

// run executes the task and marks it done, holding its lock if locks are set.
//
// ran is false when the lock is held by someone.
func (o *Orchestrator) run(ctx context.Context, ns string, t tasks.Task) (ran bool, err error) {
	body := func(ctx context.Context) error {
		if err := t.Execute(ctx, o.runtime); err != nil {
			if !errors.Is(err, tasks.ErrExecution) {
				err = &tasks.ExecutionError{Task: t.Name(), Err: err}
			}
			return err
		}
		return o.mark(ctx, ns, t.Name())
	}

	if o.locks == nil {
		return true, body(ctx)
	}
	return o.locks.Guard(ctx, LockName(ns, t.Name()), o.lockTimeout, body)
}

// AllDone tells whether every task is done. It has no side effects.
func (o *Orchestrator) AllDone(ctx context.Context, ns string, ts []tasks.Task) (bool, error) {
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = t.Name()
	}
	return withRetry(ctx, o, func() (bool, error) {
		return o.dones.AllDone(ctx, ns, names)
	})
}

// Reset forgets every done mark of the namespace.
//
// Jobs already submitted are not canceled.
func (o *Orchestrator) Reset(ctx context.Context, ns string) error {
	_, err := withRetry(ctx, o, func() (struct{}, error) {
		return struct{}{}, o.dones.Reset(ctx, ns)
	})
	return err
}

// Unmark forgets done marks of the named tasks.
func (o *Orchestrator) Unmark(ctx context.Context, ns string, names ...string) error {
	for _, n := range names {
		if _, err := withRetry(ctx, o, func() (struct{}, error) {
			return struct{}{}, o.dones.Unmark(ctx, ns, n)
		}); err != nil {
			return err
		}
	}
	return nil
}

// Do runs the task in process unless it is done, and marks it done.
//
// Unlike RunAll, a failure of the task is returned.
// A task whose lock is held is skipped without error.
func (o *Orchestrator) Do(ctx context.Context, ns string, t tasks.Task) error {
	jobName := scheduler.JobName(ns, t.Name())

	done, err := o.isDone(ctx, ns, t.Name())
	if err != nil {
		return err
	}
	if done {
		o.logger.Printf("%s: already done", jobName)
		return nil
	}

	o.logger.Printf("%s: executing: %s", jobName, t.Describe())
	ran, err := o.run(ctx, ns, t)
	if err != nil {
		return err
	}
	if !ran {
		o.logger.Printf("%s: locked by someone, skipped", jobName)
		return nil
	}
	o.logger.Printf("%s: done", jobName)
	return nil
}

// RunTaskFile loads a payload written by a submitting orchestrator and does its task.
func (o *Orchestrator) RunTaskFile(ctx context.Context, path string) error {
	p, err := tasks.LoadPayload(path)
	if err != nil {
		return err
	}
	return o.Do(ctx, p.Namespace, p.Task)
}

func (o *Orchestrator) isDone(ctx context.Context, ns, name string) (bool, error) {
	return withRetry(ctx, o, func() (bool, error) {
		return o.dones.Done(ctx, ns, name)
	})
}

func (o *Orchestrator) mark(ctx context.Context, ns, name string) error {
	_, err := withRetry(ctx, o, func() (struct{}, error) {
		return struct{}{}, o.dones.Mark(ctx, ns, name)
	})
	return err
}

// activeJobs lists active job names. Without a scheduler, nothing is active.
func (o *Orchestrator) activeJobs(ctx context.Context) (map[string]struct{}, error) {
	if o.scheduler == nil {
		return map[string]struct{}{}, nil
	}
	active, err := o.scheduler.ActiveJobNames(ctx)
	if err != nil {
		return nil, xe.WrapWithNote("listing active jobs", err)
	}
	return active, nil
}

// withRetry calls f again while the store is unavailable.
func withRetry[T any](ctx context.Context, o *Orchestrator, f func() (T, error)) (T, error) {
	b := retry.Limit(retry.ExponentialBackoff(o.retryInterval, 2), o.retryAttempts)
	return retry.Blocking(ctx, b, func() (T, error) {
		v, err := f()
		if err != nil && kvstore.IsUnavailable(err) {
			o.logger.Printf("store is unavailable: %v", err)
			return v, errors.Join(retry.ErrRetry, err)
		}
		return v, err
	})
}

func checkNames(ts []tasks.Task) error {
	seen := map[string]struct{}{}
	for _, t := range ts {
		if _, ok := seen[t.Name()]; ok {
			return xe.Errorf("%w: %s", ErrDuplicateTask, t.Name())
		}
		seen[t.Name()] = struct{}{}
	}
	return nil
}
