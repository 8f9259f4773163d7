package run_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/youta-t/flarc"

	"github.com/roundup-project/roundup/cmd/roundup/subcommands/common"
	"github.com/roundup-project/roundup/cmd/roundup/subcommands/internal/commandline"
	"github.com/roundup-project/roundup/cmd/roundup/subcommands/logger"
	"github.com/roundup-project/roundup/cmd/roundup/subcommands/run"
	roundup "github.com/roundup-project/roundup/pkg"
	"github.com/roundup-project/roundup/pkg/cmp"
	kflag "github.com/roundup-project/roundup/pkg/commandline/flag"
	rconf "github.com/roundup-project/roundup/pkg/configs/roundup"
	"github.com/roundup-project/roundup/pkg/metrics"
	"github.com/roundup-project/roundup/pkg/orchestrator"
	"github.com/roundup-project/roundup/pkg/scheduler"
	"github.com/roundup-project/roundup/pkg/scheduler/lsf"
	"github.com/roundup-project/roundup/pkg/tasks"
	"github.com/roundup-project/roundup/pkg/tasks/manifest"
	"github.com/roundup-project/roundup/pkg/utils/try"
)

func attach(t *testing.T, yml string, options ...roundup.AttachOption) roundup.Roundup {
	t.Helper()
	conf := try.To(rconf.Unmarshal([]byte(yml))).OrFatal(t)
	r := try.To(roundup.Attach(context.Background(), conf, options...)).OrFatal(t)
	t.Cleanup(func() { r.Close() })
	return r
}

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "manifest.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func neverModified(ctx context.Context, paths ...string) (context.Context, func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	return ctx, cancel, nil
}

func newFlags() run.Flags {
	return run.Flags{
		Pause:   &kflag.OptionalDuration{},
		Timeout: &kflag.OptionalDuration{},
	}
}

func TestRunCommand(t *testing.T) {
	t.Run("it runs tasks in the manifest, and does not run done tasks again", func(t *testing.T) {
		ctx := context.Background()
		out := filepath.Join(t.TempDir(), "out.txt")
		path := writeManifest(t, `
namespace: n1
tasks:
  - name: t0
    shell: "echo t0 >> `+out+`"
  - name: t1
    shell: "echo t1 >> `+out+`"
`)
		r := attach(t, "store:\n  backend: memory\n")
		testee := run.Task(neverModified)

		for range 2 {
			stdout := new(strings.Builder)
			err := testee(ctx, logger.Null(), r, &commandline.MockCommandline[run.Flags]{
				Fullname_: "roundup run",
				Stdout_:   stdout,
				Stderr_:   new(strings.Builder),
				Flags_:    newFlags(),
				Args_:     map[string][]string{run.ARG_MANIFEST: {path}},
			}, nil)
			if err != nil {
				t.Fatal(err)
			}
			if stdout.String() != "n1: all done\n" {
				t.Errorf("stdout = %q", stdout.String())
			}
		}

		content := try.To(os.ReadFile(out)).OrFatal(t)
		if string(content) != "t0\nt1\n" {
			t.Errorf("tasks ran unexpectedly: %q", content)
		}
	})

	type when struct {
		wait        bool
		untilModify run.UntilModify
	}
	type then struct {
		err    error
		stdout string
	}

	theory := func(when when, then then) func(*testing.T) {
		return func(t *testing.T) {
			path := writeManifest(t, `
namespace: n1
tasks:
  - name: ok
    command: ["true"]
  - name: ng
    command: ["false"]
`)
			r := attach(t, "store:\n  backend: memory\n")
			flags := newFlags()
			flags.Wait = when.wait

			stdout := new(strings.Builder)
			err := run.Task(when.untilModify)(
				context.Background(), logger.Null(), r,
				&commandline.MockCommandline[run.Flags]{
					Fullname_: "roundup run",
					Stdout_:   stdout,
					Stderr_:   new(strings.Builder),
					Flags_:    flags,
					Args_:     map[string][]string{run.ARG_MANIFEST: {path}},
				},
				nil,
			)
			if then.err == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			} else if !errors.Is(err, then.err) {
				t.Errorf("err = %v, want %v", err, then.err)
			}
			if then.stdout != "" && stdout.String() != then.stdout {
				t.Errorf("stdout = %q", stdout.String())
			}

			if done := try.To(r.Dones().Done(context.Background(), "n1", "ok")).OrFatal(t); !done {
				t.Error("successful task is not marked")
			}
			if done := try.To(r.Dones().Done(context.Background(), "n1", "ng")).OrFatal(t); done {
				t.Error("failed task is marked")
			}
		}
	}

	t.Run("a failed task is reported without error when not waiting", theory(
		when{wait: false, untilModify: neverModified},
		then{err: nil, stdout: "n1: not all done\n"},
	))

	t.Run("a failed task is an error when waiting", theory(
		when{wait: true, untilModify: neverModified},
		then{err: orchestrator.ErrNotDone, stdout: "n1: not all done\n"},
	))

	t.Run("waiting stops when the manifest is modified", theory(
		when{
			wait: true,
			untilModify: func(ctx context.Context, paths ...string) (context.Context, func(), error) {
				ctx, cancel := context.WithCancel(ctx)
				cancel()
				return ctx, cancel, nil
			},
		},
		then{err: orchestrator.ErrNotDone},
	))

	{
		watchErr := errors.New("fake error")
		t.Run("it returns the error when the manifest cannot be watched", theory(
			when{
				wait: true,
				untilModify: func(ctx context.Context, paths ...string) (context.Context, func(), error) {
					return nil, nil, watchErr
				},
			},
			then{err: watchErr},
		))
	}

	t.Run("it submits tasks with options in the manifest over defaults", func(t *testing.T) {
		payloads := t.TempDir()
		var bsubs [][]string
		runner := lsf.RunnerFunc(func(ctx context.Context, env []string, argv ...string) ([]byte, error) {
			if argv[0] != "bsub" {
				return []byte("No unfinished job found\n"), nil
			}
			bsubs = append(bsubs, argv)
			return []byte("Job <100> is submitted to queue <q>.\n"), nil
		})
		r := attach(t, `
store:
  backend: memory
scheduler:
  kind: lsf
  registrationLag: 0s
  queue: long
payloadDir: `+payloads+`
`, roundup.WithLSFRunner(runner))

		path := writeManifest(t, `
namespace: n1
tasks:
  - name: t0
    command: ["true"]
    options: { queue: short, extra: ["-n", "4"] }
  - name: t1
    command: ["true"]
`)
		flags := newFlags()
		flags.Submit = true
		stdout := new(strings.Builder)
		err := run.Task(neverModified)(
			context.Background(), logger.Null(), r,
			&commandline.MockCommandline[run.Flags]{
				Fullname_: "roundup run",
				Stdout_:   stdout,
				Stderr_:   new(strings.Builder),
				Flags_:    flags,
				Args_:     map[string][]string{run.ARG_MANIFEST: {path}},
			},
			nil,
		)
		if err != nil {
			t.Fatal(err)
		}
		if stdout.String() != "n1: not all done\n" {
			t.Errorf("stdout = %q", stdout.String())
		}

		if len(bsubs) != 2 {
			t.Fatalf("bsub calls = %v", bsubs)
		}
		t0 := strings.Join(bsubs[0], " ")
		if !strings.HasPrefix(t0, "bsub -o /dev/null -n 4 -q short -J n1_t0 roundup run-task "+payloads+"/") {
			t.Errorf("bsub for t0 = %s", t0)
		}
		t1 := strings.Join(bsubs[1], " ")
		if !strings.HasPrefix(t1, "bsub -o /dev/null -q long -J n1_t1 roundup run-task "+payloads+"/") {
			t.Errorf("bsub for t1 = %s", t1)
		}
	})

	t.Run("it writes metrics into the file given by --metrics", func(t *testing.T) {
		path := writeManifest(t, "namespace: n1\ntasks:\n  - name: t0\n    command: [\"true\"]\n")
		prom := filepath.Join(t.TempDir(), "run.prom")
		r := attach(t, "store:\n  backend: memory\n")

		flags := newFlags()
		flags.Metrics = prom
		err := run.Task(neverModified)(
			context.Background(), logger.Null(), r,
			&commandline.MockCommandline[run.Flags]{
				Fullname_: "roundup run",
				Stdout_:   new(strings.Builder),
				Stderr_:   new(strings.Builder),
				Flags_:    flags,
				Args_:     map[string][]string{run.ARG_MANIFEST: {path}},
			},
			nil,
		)
		if err != nil {
			t.Fatal(err)
		}

		mfs := try.To(metrics.ReadTextfile(prom)).OrFatal(t)
		executed := metrics.Sum(mfs, metrics.ForKey(
			metrics.TaskDecisions,
			metrics.WithLabelAndValue("namespace", "n1"),
			metrics.WithLabelAndValue("decision", string(orchestrator.Executed)),
		))
		if executed != 1 {
			t.Errorf("executed = %v", executed)
		}
	})

	t.Run("a broken manifest is an error", func(t *testing.T) {
		path := writeManifest(t, "namespace: n1\ntasks:\n  - name: t0\n")
		r := attach(t, "store:\n  backend: memory\n")
		err := run.Task(neverModified)(
			context.Background(), logger.Null(), r,
			&commandline.MockCommandline[run.Flags]{
				Fullname_: "roundup run",
				Stdout_:   new(strings.Builder),
				Stderr_:   new(strings.Builder),
				Flags_:    newFlags(),
				Args_:     map[string][]string{run.ARG_MANIFEST: {path}},
			},
			nil,
		)
		if err == nil {
			t.Error("no error")
		}
	})
}

func TestRunCommand_Wait(t *testing.T) {
	t.Run("when nothing is submitted, it polls without pausing first", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		bjobs := 0
		bsubs := 0
		runner := lsf.RunnerFunc(func(ctx context.Context, env []string, argv ...string) ([]byte, error) {
			if argv[0] == "bsub" {
				bsubs += 1
				return []byte("Job <100> is submitted to queue <q>.\n"), nil
			}
			bjobs += 1
			if bjobs == 1 {
				return []byte(`JOBID   USER    STAT  QUEUE      FROM_HOST   EXEC_HOST   JOB_NAME   SUBMIT_TIME
1001    alice   RUN   normal     login01     node03      n1_t0      Oct 14 10:01
1002    alice   PEND  normal     login01     -           n1_t1      Oct 14 10:02
`), nil
			}
			return []byte("No unfinished job found\n"), nil
		})
		r := attach(t, `
store:
  backend: memory
scheduler:
  kind: lsf
  registrationLag: 0s
payloadDir: `+t.TempDir()+`
`, roundup.WithLSFRunner(runner))
		path := writeManifest(t, "namespace: n1\ntasks:\n  - name: t0\n    command: [\"true\"]\n  - name: t1\n    command: [\"true\"]\n")

		flags := newFlags()
		flags.Submit = true
		flags.Wait = true
		if err := flags.Pause.Set("1h"); err != nil {
			t.Fatal(err)
		}
		stdout := new(strings.Builder)
		err := run.Task(neverModified)(
			ctx, logger.Null(), r,
			&commandline.MockCommandline[run.Flags]{
				Fullname_: "roundup run",
				Stdout_:   stdout,
				Stderr_:   new(strings.Builder),
				Flags_:    flags,
				Args_:     map[string][]string{run.ARG_MANIFEST: {path}},
			},
			nil,
		)
		if !errors.Is(err, orchestrator.ErrNotDone) {
			t.Errorf("err = %v, want ErrNotDone", err)
		}
		if bsubs != 0 {
			t.Errorf("active tasks are submitted: %d", bsubs)
		}
		if bjobs < 2 {
			t.Errorf("jobs are not polled: bjobs calls = %d", bjobs)
		}
	})
}

func TestNew(t *testing.T) {
	t.Run("call tasks resolve functions in the registry given to New", func(t *testing.T) {
		conf := filepath.Join(t.TempDir(), "roundup.yaml")
		if err := os.WriteFile(conf, []byte("store:\n  backend: memory\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		path := writeManifest(t, `
namespace: n1
tasks:
  - name: t0
    call: record
    args: ["genome-a"]
    kwargs: { k: 21 }
`)

		called := [][]any{}
		registry := tasks.NewRegistry().MustRegister(
			"record",
			func(ctx context.Context, args []any, kwargs map[string]any) error {
				called = append(called, []any{args, kwargs})
				return nil
			},
		)
		testee := try.To(run.New(
			run.WithUntilModify(neverModified),
			run.WithAttachOptions(roundup.WithRegistry(registry)),
		)).OrFatal(t)

		stdout := new(strings.Builder)
		stderr := new(strings.Builder)
		status := flarc.Run(
			context.Background(), testee,
			flarc.WithName("roundup run"),
			flarc.WithArgs([]string{path}),
			flarc.WithOutput(stdout, stderr),
			flarc.WithParams([]any{common.CommonFlags{Config: conf}}),
		)
		if status != 0 {
			t.Fatalf("status = %d, stderr = %s", status, stderr.String())
		}
		if stdout.String() != "n1: all done\n" {
			t.Errorf("stdout = %q", stdout.String())
		}
		if len(called) != 1 {
			t.Fatalf("called %d times, want 1", len(called))
		}
		args := called[0][0].([]any)
		kwargs := called[0][1].(map[string]any)
		if len(args) != 1 || args[0] != "genome-a" || kwargs["k"] != 21.0 {
			t.Errorf("called with (%v, %v)", args, kwargs)
		}
	})
}

func TestOptionsFor(t *testing.T) {
	m := try.To(manifest.Parse([]byte(`
namespace: n1
tasks:
  - name: t0
    command: ["true"]
    options: { output: /logs/t0.log, extra: ["-R", "rusage[mem=8G]"] }
  - name: t1
    command: ["true"]
`))).OrFatal(t)
	defaults := scheduler.Options{Queue: "long", Output: "/dev/null", Extra: []string{"-P", "genomes"}}
	f := run.OptionsFor(m, defaults)

	t0 := f(m.Entries[0].Task)
	if t0.Queue != "long" || t0.Output != "/logs/t0.log" {
		t.Errorf("t0 = %+v", t0)
	}
	if !cmp.SliceEq(t0.Extra, []string{"-P", "genomes", "-R", "rusage[mem=8G]"}) {
		t.Errorf("t0.Extra = %v", t0.Extra)
	}

	t1 := f(m.Entries[1].Task)
	if t1.Queue != "long" || t1.Output != "/dev/null" || !cmp.SliceEq(t1.Extra, []string{"-P", "genomes"}) {
		t.Errorf("t1 = %+v", t1)
	}
	if !cmp.SliceEq(defaults.Extra, []string{"-P", "genomes"}) {
		t.Errorf("defaults are modified: %v", defaults.Extra)
	}
}
