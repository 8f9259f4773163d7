package runtask_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/roundup-project/roundup/cmd/roundup/subcommands/internal/commandline"
	"github.com/roundup-project/roundup/cmd/roundup/subcommands/logger"
	"github.com/roundup-project/roundup/cmd/roundup/subcommands/runtask"
	roundup "github.com/roundup-project/roundup/pkg"
	rconf "github.com/roundup-project/roundup/pkg/configs/roundup"
	"github.com/roundup-project/roundup/pkg/tasks"
	"github.com/roundup-project/roundup/pkg/utils/try"
)

func TestRunTaskCommand(t *testing.T) {
	type when struct {
		task tasks.Task
	}
	type then struct {
		err    error
		marked bool
		output string
	}

	theory := func(when when, then then) func(*testing.T) {
		return func(t *testing.T) {
			ctx := context.Background()
			out := filepath.Join(t.TempDir(), "out.txt")

			registry := tasks.NewRegistry().MustRegister(
				"write", func(ctx context.Context, args []any, kwargs map[string]any) error {
					return os.WriteFile(out, []byte(args[0].(string)), 0o644)
				},
			)
			conf := try.To(rconf.Unmarshal([]byte("store:\n  backend: memory\n"))).OrFatal(t)
			r := try.To(roundup.Attach(ctx, conf, roundup.WithRegistry(registry))).OrFatal(t)
			defer r.Close()

			mailbox := try.To(tasks.NewMailbox(t.TempDir())).OrFatal(t)
			path := try.To(mailbox.Dump(tasks.Payload{Namespace: "n1", Task: when.task})).OrFatal(t)

			err := runtask.Task(ctx, logger.Null(), r, &commandline.MockCommandline[struct{}]{
				Fullname_: "roundup run-task",
				Stdout_:   new(strings.Builder),
				Stderr_:   new(strings.Builder),
				Args_:     map[string][]string{runtask.ARG_PAYLOAD: {path}},
			}, nil)
			if then.err == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
			} else if !errors.Is(err, then.err) {
				t.Errorf("err = %v, want %v", err, then.err)
			}

			done := try.To(r.Dones().Done(ctx, "n1", when.task.Name())).OrFatal(t)
			if done != then.marked {
				t.Errorf("marked = %t, want %t", done, then.marked)
			}
			if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
				t.Errorf("payload is left: %v", err)
			}
			if then.output != "" {
				if content := try.To(os.ReadFile(out)).OrFatal(t); string(content) != then.output {
					t.Errorf("output = %q", content)
				}
			}
		}
	}

	t.Run("it runs the task in the payload and marks it done", theory(
		when{task: tasks.Call("t0", "write", []any{"hello"}, nil)},
		then{err: nil, marked: true, output: "hello"},
	))

	t.Run("a failed task is an error, and it is not marked", theory(
		when{task: tasks.Command("t0", "false")},
		then{err: tasks.ErrExecution, marked: false},
	))

	t.Run("a task calling unknown function fails", theory(
		when{task: tasks.Call("t0", "no-such-function", nil, nil)},
		then{err: tasks.ErrExecution, marked: false},
	))

	t.Run("a missing payload is an error", func(t *testing.T) {
		ctx := context.Background()
		conf := try.To(rconf.Unmarshal([]byte("store:\n  backend: memory\n"))).OrFatal(t)
		r := try.To(roundup.Attach(ctx, conf)).OrFatal(t)
		defer r.Close()

		err := runtask.Task(ctx, logger.Null(), r, &commandline.MockCommandline[struct{}]{
			Fullname_: "roundup run-task",
			Stdout_:   new(strings.Builder),
			Stderr_:   new(strings.Builder),
			Args_:     map[string][]string{runtask.ARG_PAYLOAD: {filepath.Join(t.TempDir(), "missing.json")}},
		}, nil)
		if !errors.Is(err, os.ErrNotExist) {
			t.Errorf("err = %v", err)
		}
	})
}
