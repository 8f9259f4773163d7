// Package tasks defines units of work the orchestrator dispatches.
//
// A Task is identified by its name within a namespace.
// Two tasks are equal when they are of the same kind and have equal fields.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/roundup-project/roundup/pkg/cmp"
	xe "github.com/roundup-project/roundup/pkg/errors"
)

type Task interface {
	cmp.Eq

	// Name is the identity of the task within a namespace.
	Name() string

	// Describe returns a human readable summary of what the task does.
	Describe() string

	// Execute runs the task synchronously.
	//
	// A failure of the task itself is returned as *ExecutionError.
	Execute(ctx context.Context, rt *Runtime) error
}

// Runtime is what tasks need to run.
type Runtime struct {
	// Registry resolves function keys of CallTasks.
	Registry *Registry

	// Stdout and Stderr receive outputs of CommandTasks. nil means discarding.
	Stdout io.Writer
	Stderr io.Writer

	// Dir is the working directory of CommandTasks. Empty means the current directory.
	Dir string

	// Env is added to the environment of CommandTasks, as "KEY=VALUE".
	Env []string
}

var ErrExecution = errors.New("task execution failed")

// ExecutionError is a failure of a task itself.
type ExecutionError struct {
	Task string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("task %q: %v", e.Task, e.Err)
}

func (e *ExecutionError) Unwrap() []error {
	return []error{ErrExecution, e.Err}
}

func executionFailed(task string, err error) error {
	return xe.WrapAsOuter(&ExecutionError{Task: task, Err: err}, 1)
}

// CommandTask runs an external command.
type CommandTask struct {
	TaskName string

	// Command is the argv. When Shell is true, it is joined with spaces and passed to `sh -c`.
	Command []string

	Shell bool
}

var _ Task = &CommandTask{}

// Command returns a task running argv directly.
func Command(name string, argv ...string) *CommandTask {
	return &CommandTask{TaskName: name, Command: argv}
}

// ShellCommand returns a task running the script with `sh -c`.
func ShellCommand(name string, script string) *CommandTask {
	return &CommandTask{TaskName: name, Command: []string{script}, Shell: true}
}

func (c *CommandTask) Name() string {
	return c.TaskName
}

func (c *CommandTask) Describe() string {
	if c.Shell {
		return fmt.Sprintf("command(shell): %s", strings.Join(c.Command, " "))
	}
	return fmt.Sprintf("command: %q", c.Command)
}

func (c *CommandTask) argv() []string {
	if c.Shell {
		return []string{"/bin/sh", "-c", strings.Join(c.Command, " ")}
	}
	return c.Command
}

func (c *CommandTask) Execute(ctx context.Context, rt *Runtime) error {
	argv := c.argv()
	if len(argv) == 0 {
		return executionFailed(c.TaskName, errors.New("empty command"))
	}
	if rt == nil {
		rt = &Runtime{}
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = rt.Dir
	cmd.Stdout = rt.Stdout
	cmd.Stderr = rt.Stderr
	if len(rt.Env) != 0 {
		cmd.Env = append(os.Environ(), rt.Env...)
	}
	if err := cmd.Run(); err != nil {
		return executionFailed(c.TaskName, err)
	}
	return nil
}

func (c *CommandTask) Equal(other cmp.Eq) bool {
	o, ok := other.(*CommandTask)
	if !ok {
		return false
	}
	return c.TaskName == o.TaskName &&
		c.Shell == o.Shell &&
		cmp.SliceEq(c.Command, o.Command)
}

// CallTask calls a function registered in the Registry.
//
// Args and Kwargs must be serializable as JSON,
// since the task may be executed in another process.
type CallTask struct {
	TaskName string
	Func     string
	Args     []any
	Kwargs   map[string]any
}

var _ Task = &CallTask{}

// Call returns a task calling the registered function.
func Call(name string, fn string, args []any, kwargs map[string]any) *CallTask {
	return &CallTask{TaskName: name, Func: fn, Args: args, Kwargs: kwargs}
}

func (c *CallTask) Name() string {
	return c.TaskName
}

func (c *CallTask) Describe() string {
	return fmt.Sprintf("call: %s(args=%v, kwargs=%v)", c.Func, c.Args, c.Kwargs)
}

func (c *CallTask) Execute(ctx context.Context, rt *Runtime) error {
	if rt == nil || rt.Registry == nil {
		return executionFailed(c.TaskName, fmt.Errorf("%w: %s", ErrUnknownFunc, c.Func))
	}
	fn, err := rt.Registry.Lookup(c.Func)
	if err != nil {
		return executionFailed(c.TaskName, err)
	}
	if err := call(ctx, fn, c.Args, c.Kwargs); err != nil {
		return executionFailed(c.TaskName, err)
	}
	return nil
}

// call invokes fn, turning a panic into an error.
func call(ctx context.Context, fn Func, args []any, kwargs map[string]any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, args, kwargs)
}

// Equal compares CallTasks by their canonical JSON forms.
func (c *CallTask) Equal(other cmp.Eq) bool {
	o, ok := other.(*CallTask)
	if !ok {
		return false
	}
	if c.TaskName != o.TaskName || c.Func != o.Func {
		return false
	}
	a, err := canonicalJSON(c.Args, c.Kwargs)
	if err != nil {
		return false
	}
	b, err := canonicalJSON(o.Args, o.Kwargs)
	if err != nil {
		return false
	}
	return a == b
}
