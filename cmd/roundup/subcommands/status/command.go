package status

import (
	"context"
	"log"

	"github.com/youta-t/flarc"
	"gopkg.in/yaml.v3"

	"github.com/roundup-project/roundup/cmd/roundup/subcommands/common"
	roundup "github.com/roundup-project/roundup/pkg"
	"github.com/roundup-project/roundup/pkg/tasks/manifest"
)

const ARG_MANIFEST = "MANIFEST"

type TaskStatus struct {
	Name  string `yaml:"name"`
	Job   string `yaml:"job"`
	State string `yaml:"state"`
}

type Status struct {
	Namespace string       `yaml:"namespace"`
	AllDone   bool         `yaml:"allDone"`
	Tasks     []TaskStatus `yaml:"tasks"`
}

func New(options ...roundup.AttachOption) (flarc.Command, error) {
	return flarc.NewCommand(
		"Show states of tasks in a manifest.",
		struct{}{},
		flarc.Args{
			{
				Name: ARG_MANIFEST, Required: true,
				Help: "path to a manifest file listing tasks",
			},
		},
		common.NewTask(Task, options...),
		flarc.WithDescription(`
Show states of tasks in a manifest, without running anything.

Each task is DONE (marked done), ACTIVE (not done, and a job is active on the scheduler)
or ELIGIBLE (to be run or submitted by the next "roundup run").
`),
	)
}

func Task(
	ctx context.Context,
	logger *log.Logger,
	r roundup.Roundup,
	cl flarc.Commandline[struct{}],
	params []any,
) error {
	m, err := manifest.Load(cl.Args()[ARG_MANIFEST][0])
	if err != nil {
		return err
	}
	orch, err := r.Orchestrator(logger, false)
	if err != nil {
		return err
	}

	states, err := orch.Plan(ctx, m.Namespace, m.Tasks())
	if err != nil {
		return err
	}
	allDone, err := orch.AllDone(ctx, m.Namespace, m.Tasks())
	if err != nil {
		return err
	}

	st := Status{Namespace: m.Namespace, AllDone: allDone, Tasks: make([]TaskStatus, 0, len(states))}
	for _, s := range states {
		st.Tasks = append(st.Tasks, TaskStatus{Name: s.Name, Job: s.JobName, State: s.State.String()})
	}

	enc := yaml.NewEncoder(cl.Stdout())
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(st)
}
