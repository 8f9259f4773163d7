package tasks

import (
	"bytes"
	"encoding/json"
	"fmt"

	xe "github.com/roundup-project/roundup/pkg/errors"
)

const (
	KindCommand = "command"
	KindCall    = "call"
)

// envelope is the JSON form of a Task.
type envelope struct {
	Kind    string         `json:"kind"`
	Name    string         `json:"name"`
	Command []string       `json:"command,omitempty"`
	Shell   bool           `json:"shell,omitempty"`
	Func    string         `json:"func,omitempty"`
	Args    []any          `json:"args,omitempty"`
	Kwargs  map[string]any `json:"kwargs,omitempty"`
}

// Marshal encodes the task as JSON.
func Marshal(t Task) ([]byte, error) {
	var env envelope
	switch tt := t.(type) {
	case *CommandTask:
		env = envelope{Kind: KindCommand, Name: tt.TaskName, Command: tt.Command, Shell: tt.Shell}
	case *CallTask:
		env = envelope{Kind: KindCall, Name: tt.TaskName, Func: tt.Func, Args: tt.Args, Kwargs: tt.Kwargs}
	default:
		return nil, xe.Errorf("unsupported task type: %T", t)
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, xe.WrapWithNote("task "+t.Name(), err)
	}
	return b, nil
}

// Unmarshal decodes a task encoded by Marshal.
func Unmarshal(b []byte) (Task, error) {
	var env envelope
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil {
		return nil, xe.Wrap(err)
	}
	return env.task()
}

func (env envelope) task() (Task, error) {
	if env.Name == "" {
		return nil, xe.New("task name is empty")
	}
	switch env.Kind {
	case KindCommand:
		if len(env.Command) == 0 {
			return nil, xe.Errorf("task %q: command is empty", env.Name)
		}
		return &CommandTask{TaskName: env.Name, Command: env.Command, Shell: env.Shell}, nil
	case KindCall:
		if env.Func == "" {
			return nil, xe.Errorf("task %q: func is empty", env.Name)
		}
		return &CallTask{TaskName: env.Name, Func: env.Func, Args: env.Args, Kwargs: env.Kwargs}, nil
	default:
		return nil, xe.Errorf("task %q: unknown kind %q", env.Name, env.Kind)
	}
}

// canonicalJSON renders args and kwargs so that equal values give equal strings.
//
// encoding/json sorts map keys, and a round trip normalizes numbers to float64.
func canonicalJSON(args []any, kwargs map[string]any) (string, error) {
	if args == nil {
		args = []any{}
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	b, err := json.Marshal([]any{args, kwargs})
	if err != nil {
		return "", err
	}
	var normalized any
	if err := json.Unmarshal(b, &normalized); err != nil {
		return "", err
	}
	b, err = json.Marshal(normalized)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Validate checks that the task can be serialized, as tasks sent to a scheduler must be.
func Validate(t Task) error {
	switch tt := t.(type) {
	case *CallTask:
		if _, err := canonicalJSON(tt.Args, tt.Kwargs); err != nil {
			return xe.WrapWithNote(fmt.Sprintf("task %q: arguments are not serializable", tt.TaskName), err)
		}
	}
	_, err := Marshal(t)
	return err
}
