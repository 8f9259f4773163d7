// Package manifest reads task lists written in YAML.
//
//	namespace: genomes-2024-10
//	tasks:
//	  - name: t0
//	    command: ["compare", "a.fa", "b.fa"]
//	    options: { queue: short }
//	  - name: t1
//	    shell: "compare c.fa d.fa > c_d.txt"
//	  - name: t2
//	    call: distance
//	    args: ["c", "d"]
//	    kwargs: { k: 21 }
package manifest

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	xe "github.com/roundup-project/roundup/pkg/errors"
	"github.com/roundup-project/roundup/pkg/scheduler"
	"github.com/roundup-project/roundup/pkg/tasks"
)

//go:embed manifest.schema.json
var schemaText string

var schema = jsonschema.MustCompileString("manifest.schema.json", schemaText)

// Entry is a task with its scheduler options.
type Entry struct {
	Task tasks.Task

	// Options for submission. JobName is left empty; it is derived from the namespace.
	Options scheduler.Options
}

type Manifest struct {
	Namespace string
	Entries   []Entry
}

// Tasks returns tasks in the manifest, in order.
func (m *Manifest) Tasks() []tasks.Task {
	ts := make([]tasks.Task, 0, len(m.Entries))
	for _, e := range m.Entries {
		ts = append(ts, e.Task)
	}
	return ts
}

// OptionsFor returns options for the named task.
func (m *Manifest) OptionsFor(name string) scheduler.Options {
	for _, e := range m.Entries {
		if e.Task.Name() == name {
			return e.Options
		}
	}
	return scheduler.Options{}
}

type optionsJSON struct {
	Queue  string   `json:"queue"`
	Output string   `json:"output"`
	Extra  []string `json:"extra"`
}

type taskJSON struct {
	Name    string         `json:"name"`
	Command []string       `json:"command"`
	Shell   string         `json:"shell"`
	Call    string         `json:"call"`
	Args    []any          `json:"args"`
	Kwargs  map[string]any `json:"kwargs"`
	Options *optionsJSON   `json:"options"`
}

type manifestJSON struct {
	Namespace string     `json:"namespace"`
	Tasks     []taskJSON `json:"tasks"`
}

// Parse reads a manifest in YAML (or JSON, as a subset of YAML).
func Parse(b []byte) (*Manifest, error) {
	var doc any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, xe.Wrap(err)
	}

	// yaml gives map[string]any and ints; the schema and tasks want JSON values.
	j, err := json.Marshal(doc)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	var value any
	if err := json.Unmarshal(j, &value); err != nil {
		return nil, xe.Wrap(err)
	}
	if err := schema.Validate(value); err != nil {
		return nil, xe.WrapWithNote("manifest is invalid", err)
	}

	var mj manifestJSON
	if err := json.Unmarshal(j, &mj); err != nil {
		return nil, xe.Wrap(err)
	}

	m := &Manifest{Namespace: mj.Namespace, Entries: make([]Entry, 0, len(mj.Tasks))}
	seen := map[string]struct{}{}
	for _, tj := range mj.Tasks {
		if _, ok := seen[tj.Name]; ok {
			return nil, xe.Errorf("manifest is invalid: task name %q is duplicated", tj.Name)
		}
		seen[tj.Name] = struct{}{}

		var t tasks.Task
		switch {
		case len(tj.Command) != 0:
			t = tasks.Command(tj.Name, tj.Command...)
		case tj.Shell != "":
			t = tasks.ShellCommand(tj.Name, tj.Shell)
		default:
			t = tasks.Call(tj.Name, tj.Call, tj.Args, tj.Kwargs)
		}

		e := Entry{Task: t}
		if o := tj.Options; o != nil {
			e.Options = scheduler.Options{Queue: o.Queue, Output: o.Output, Extra: o.Extra}
		}
		m.Entries = append(m.Entries, e)
	}
	return m, nil
}

// Load reads the manifest file.
func Load(path string) (*Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	m, err := Parse(b)
	if err != nil {
		return nil, xe.WrapWithNote(fmt.Sprintf("manifest %s", path), err)
	}
	return m, nil
}
