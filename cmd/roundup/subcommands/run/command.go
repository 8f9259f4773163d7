package run

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/youta-t/flarc"

	"github.com/roundup-project/roundup/cmd/roundup/subcommands/common"
	roundup "github.com/roundup-project/roundup/pkg"
	kflag "github.com/roundup-project/roundup/pkg/commandline/flag"
	"github.com/roundup-project/roundup/pkg/orchestrator"
	"github.com/roundup-project/roundup/pkg/scheduler"
	"github.com/roundup-project/roundup/pkg/tasks"
	"github.com/roundup-project/roundup/pkg/tasks/manifest"
	"github.com/roundup-project/roundup/pkg/utils/filewatch"
)

type Flags struct {
	Submit  bool                     `flag:"submit" help:"submit tasks to the scheduler, instead of running them in this process"`
	Wait    bool                     `flag:"wait" help:"wait until no tasks are active on the scheduler, then fail unless all are done"`
	Pause   *kflag.OptionalDuration `flag:"pause" metavar:"DURATION" help:"interval between polls while waiting. default: 10s"`
	Timeout *kflag.OptionalDuration `flag:"timeout" metavar:"DURATION" help:"give up waiting for active tasks after this. default: wait as long as they are active"`
	Metrics string                   `flag:"metrics" metavar:"FILE" help:"write metrics of this run into FILE, in Prometheus text format"`
}

// UntilModify makes a context which is canceled when any of files are modified.
type UntilModify func(ctx context.Context, paths ...string) (context.Context, func(), error)

type Option struct {
	untilModify UntilModify
	attach      []roundup.AttachOption
}

func WithUntilModify(f UntilModify) func(*Option) *Option {
	return func(o *Option) *Option {
		o.untilModify = f
		return o
	}
}

// WithAttachOptions passes options to roundup.Attach, like WithRegistry for call tasks.
func WithAttachOptions(options ...roundup.AttachOption) func(*Option) *Option {
	return func(o *Option) *Option {
		o.attach = append(o.attach, options...)
		return o
	}
}

const ARG_MANIFEST = "MANIFEST"

func New(options ...func(*Option) *Option) (flarc.Command, error) {
	option := &Option{
		untilModify: filewatch.UntilModifyContext,
	}
	for _, opt := range options {
		option = opt(option)
	}

	return flarc.NewCommand(
		"Run or submit tasks in a manifest, unless they are done or active.",
		Flags{
			Pause:   &kflag.OptionalDuration{},
			Timeout: &kflag.OptionalDuration{},
		},
		flarc.Args{
			{
				Name: ARG_MANIFEST, Required: true,
				Help: "path to a manifest file listing tasks",
			},
		},
		common.NewTask(Task(option.untilModify), option.attach...),
		flarc.WithDescription(`
Run tasks in a manifest once.

Tasks already done or active on the scheduler are skipped.
The rest are executed in this process and marked done on success.

With --submit, they are submitted to the scheduler in the config instead.
Jobs run "roundup run-task" with a payload, which marks the task done.

With --wait, this command waits until no tasks are active, and exits with error
unless all tasks are done. Waiting stops when the manifest is modified.
`),
	)
}

func Task(untilModify UntilModify) common.Task[Flags] {
	return func(
		ctx context.Context,
		logger *log.Logger,
		r roundup.Roundup,
		cl flarc.Commandline[Flags],
		params []any,
	) error {
		path := cl.Args()[ARG_MANIFEST][0]
		flags := cl.Flags()

		m, err := manifest.Load(path)
		if err != nil {
			return err
		}
		ts := m.Tasks()

		orch, err := r.Orchestrator(
			logger, flags.Submit,
			orchestrator.WithOptions(OptionsFor(m, r.DefaultOptions())),
		)
		if err != nil {
			return err
		}

		defer func() {
			if err := r.WriteMetrics(); err != nil {
				logger.Printf("failed to write metrics: %v", err)
			}
			if flags.Metrics == "" {
				return
			}
			if err := r.Metrics().WriteTextfile(flags.Metrics); err != nil {
				logger.Printf("failed to write metrics: %v", err)
			}
		}()

		pass, err := orch.RunPass(ctx, m.Namespace, ts)
		if err != nil {
			return err
		}

		if pass.AllDone {
			fmt.Fprintf(cl.Stdout(), "%s: all done\n", m.Namespace)
			return nil
		}
		if !flags.Wait {
			fmt.Fprintf(cl.Stdout(), "%s: not all done\n", m.Namespace)
			return nil
		}

		wctx, cancel, err := untilModify(ctx, path)
		if err != nil {
			return err
		}
		defer cancel()

		err = orch.Wait(wctx, m.Namespace, ts, orchestrator.WaitOptions{
			Pause:   flags.Pause.Or(orchestrator.DefaultPause),
			Timeout: flags.Timeout.Or(-1),
			Settle:  pass.Submitted(),
		})
		if err != nil && wctx.Err() != nil && ctx.Err() == nil {
			return fmt.Errorf("%w: stopped waiting: %w", orchestrator.ErrNotDone, context.Cause(wctx))
		}
		if errors.Is(err, orchestrator.ErrNotDone) {
			fmt.Fprintf(cl.Stdout(), "%s: not all done\n", m.Namespace)
			return err
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cl.Stdout(), "%s: all done\n", m.Namespace)
		return nil
	}
}

// OptionsFor makes per-task scheduler options.
//
// Options in the manifest take precedence over defaults.
func OptionsFor(m *manifest.Manifest, defaults scheduler.Options) func(tasks.Task) scheduler.Options {
	return func(t tasks.Task) scheduler.Options {
		opts := defaults
		mo := m.OptionsFor(t.Name())
		if mo.Queue != "" {
			opts.Queue = mo.Queue
		}
		if mo.Output != "" {
			opts.Output = mo.Output
		}
		opts.Extra = append(append([]string{}, defaults.Extra...), mo.Extra...)
		return opts
	}
}
