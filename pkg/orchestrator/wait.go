package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	xe "github.com/roundup-project/roundup/pkg/errors"
	"github.com/roundup-project/roundup/pkg/loop"
	"github.com/roundup-project/roundup/pkg/scheduler"
	"github.com/roundup-project/roundup/pkg/tasks"
)

var ErrNotDone = errors.New("not all tasks are done")

const DefaultPause = 10 * time.Second

type WaitOptions struct {
	// Pause between polls. Zero or negative means DefaultPause.
	// It is shortened to Timeout, if Timeout is shorter.
	Pause time.Duration

	// Timeout of waiting for active tasks.
	// Zero means not waiting at all, and negative means waiting as long as tasks are active.
	Timeout time.Duration

	// Settle makes Wait pause once before the first poll,
	// so that jobs just submitted are registered by the scheduler.
	Settle bool
}

// Wait polls the scheduler until no task is active or it times out,
// then returns ErrNotDone unless every task is done.
//
// Timing out is not an error by itself.
func (o *Orchestrator) Wait(ctx context.Context, ns string, ts []tasks.Task, opts WaitOptions) error {
	if opts.Timeout != 0 {
		if err := o.waitInactive(ctx, ns, ts, opts); err != nil {
			return err
		}
	}

	done, err := o.AllDone(ctx, ns, ts)
	if err != nil {
		return err
	}
	if !done {
		return xe.Errorf("%w: namespace %s", ErrNotDone, ns)
	}
	return nil
}

func (o *Orchestrator) waitInactive(ctx context.Context, ns string, ts []tasks.Task, opts WaitOptions) error {
	pause := opts.Pause
	if pause <= 0 {
		pause = DefaultPause
	}

	wctx, cancel := ctx, context.CancelFunc(func() {})
	if 0 < opts.Timeout {
		if opts.Timeout < pause {
			pause = opts.Timeout
		}
		wctx, cancel = context.WithTimeout(ctx, opts.Timeout)
	}
	defer cancel()

	var options []loop.Option
	if opts.Settle {
		options = append(options, loop.WithDelay(pause))
	}

	_, err := loop.Start(wctx, 0, func(ctx context.Context, polls int) (int, loop.Next) {
		n, err := o.countActive(ctx, ns, ts)
		if err != nil {
			return polls, loop.Break(err)
		}
		if n == 0 {
			return polls, loop.Break(nil)
		}
		o.logger.Printf("%s: %d task(s) still active (poll #%d)", ns, n, polls+1)
		return polls + 1, loop.Continue(pause)
	}, options...)
	if err != nil {
		if wctx.Err() != nil && ctx.Err() == nil {
			o.logger.Printf("%s: timed out waiting after %s", ns, opts.Timeout)
			return nil
		}
		return err
	}
	return nil
}

func (o *Orchestrator) countActive(ctx context.Context, ns string, ts []tasks.Task) (int, error) {
	active, err := o.activeJobs(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, t := range ts {
		if _, ok := active[scheduler.JobName(ns, t.Name())]; ok {
			n += 1
		}
	}
	return n, nil
}

// State of a task, as a pass would see it.
type State int

const (
	StateEligible State = iota
	StateActive
	StateDone
)

func (s State) String() string {
	switch s {
	case StateEligible:
		return "ELIGIBLE"
	case StateActive:
		return "ACTIVE"
	case StateDone:
		return "DONE"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type TaskState struct {
	Name    string
	JobName string
	State   State
}

// Plan tells the state of each task without dispatching anything.
func (o *Orchestrator) Plan(ctx context.Context, ns string, ts []tasks.Task) ([]TaskState, error) {
	if err := checkNames(ts); err != nil {
		return nil, err
	}
	active, err := o.activeJobs(ctx)
	if err != nil {
		return nil, err
	}

	states := make([]TaskState, 0, len(ts))
	for _, t := range ts {
		st := TaskState{Name: t.Name(), JobName: scheduler.JobName(ns, t.Name())}
		done, err := o.isDone(ctx, ns, t.Name())
		if err != nil {
			return nil, err
		}
		if done {
			st.State = StateDone
		} else if _, ok := active[st.JobName]; ok {
			st.State = StateActive
		}
		states = append(states, st)
	}
	return states, nil
}
