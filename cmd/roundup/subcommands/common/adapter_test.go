package common_test

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/youta-t/flarc"

	"github.com/roundup-project/roundup/cmd/roundup/subcommands/common"
	"github.com/roundup-project/roundup/cmd/roundup/subcommands/internal/commandline"
	roundup "github.com/roundup-project/roundup/pkg"
	rconf "github.com/roundup-project/roundup/pkg/configs/roundup"
	"github.com/roundup-project/roundup/pkg/tasks"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roundup.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewTask(t *testing.T) {
	t.Run("the task gets components in the config, and positional params without common flags", func(t *testing.T) {
		path := writeConfig(t, "store:\n  backend: sqlite\n  sqlite:\n    path: "+filepath.Join(t.TempDir(), "roundup.db")+"\n")
		registry := tasks.NewRegistry()

		called := false
		testee := common.NewTask(func(
			ctx context.Context,
			logger *log.Logger,
			r roundup.Roundup,
			cl flarc.Commandline[struct{}],
			params []any,
		) error {
			called = true
			if r.Config().Store().Backend() != rconf.Sqlite {
				t.Errorf("backend = %s", r.Config().Store().Backend())
			}
			if logger.Prefix() != "[roundup test] " {
				t.Errorf("logger prefix = %q", logger.Prefix())
			}
			if len(params) != 1 || params[0] != "extra" {
				t.Errorf("params = %v", params)
			}
			return r.Dones().Mark(ctx, "n1", "t0")
		}, roundup.WithRegistry(registry))

		err := testee(context.Background(), &commandline.MockCommandline[struct{}]{
			Fullname_: "roundup test",
			Stdout_:   new(strings.Builder),
			Stderr_:   new(strings.Builder),
		}, []any{common.CommonFlags{Config: path}, "extra"})
		if err != nil {
			t.Fatal(err)
		}
		if !called {
			t.Error("task is not called")
		}
	})

	t.Run("the error of the task is returned", func(t *testing.T) {
		path := writeConfig(t, "store:\n  backend: memory\n")
		expectedErr := errors.New("fake error")
		testee := common.NewTask(func(
			ctx context.Context, logger *log.Logger, r roundup.Roundup, cl flarc.Commandline[struct{}], params []any,
		) error {
			return expectedErr
		})
		err := testee(context.Background(), &commandline.MockCommandline[struct{}]{
			Fullname_: "roundup test",
			Stderr_:   new(strings.Builder),
		}, []any{common.CommonFlags{Config: path}})
		if !errors.Is(err, expectedErr) {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("misconfiguration is an error, and the task is not called", func(t *testing.T) {
		path := writeConfig(t, "store:\n  backend: mongodb\n")
		testee := common.NewTask(func(
			ctx context.Context, logger *log.Logger, r roundup.Roundup, cl flarc.Commandline[struct{}], params []any,
		) error {
			t.Error("task is called")
			return nil
		})
		err := testee(context.Background(), &commandline.MockCommandline[struct{}]{
			Fullname_: "roundup test",
			Stderr_:   new(strings.Builder),
		}, []any{common.CommonFlags{Config: path}})
		if !errors.Is(err, rconf.ErrMisconfigured) {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("without common flags, it is a programming error", func(t *testing.T) {
		testee := common.NewTaskWithCommonFlag(func(
			ctx context.Context, logger *log.Logger, cf common.CommonFlags, cl flarc.Commandline[struct{}], params []any,
		) error {
			t.Error("task is called")
			return nil
		})
		err := testee(context.Background(), &commandline.MockCommandline[struct{}]{
			Fullname_: "roundup test",
			Stderr_:   new(strings.Builder),
		}, []any{})
		if err == nil {
			t.Error("no error")
		}
	})
}

func TestFlags(t *testing.T) {
	t.Setenv(rconf.EnvConfig, "/etc/roundup/roundup.yaml")
	if actual := common.Flags(); actual.Config != "/etc/roundup/roundup.yaml" {
		t.Errorf("config = %s", actual.Config)
	}
}
