package unmark

import (
	"context"
	"log"

	"github.com/youta-t/flarc"

	"github.com/roundup-project/roundup/cmd/roundup/subcommands/common"
	roundup "github.com/roundup-project/roundup/pkg"
)

const (
	ARG_NAMESPACE = "NAMESPACE"
	ARG_NAME      = "NAME"
)

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Forget done marks of tasks.",
		struct{}{},
		flarc.Args{
			{
				Name: ARG_NAMESPACE, Required: true,
				Help: "namespace of tasks",
			},
			{
				Name: ARG_NAME, Required: true, Repeatable: true,
				Help: "name of tasks to be unmarked",
			},
		},
		common.NewTask(Task),
	)
}

func Task(
	ctx context.Context,
	logger *log.Logger,
	r roundup.Roundup,
	cl flarc.Commandline[struct{}],
	params []any,
) error {
	ns := cl.Args()[ARG_NAMESPACE][0]
	names := cl.Args()[ARG_NAME]
	orch, err := r.Orchestrator(logger, false)
	if err != nil {
		return err
	}
	if err := orch.Unmark(ctx, ns, names...); err != nil {
		return err
	}
	for _, n := range names {
		logger.Printf("%s/%s is unmarked", ns, n)
	}
	return nil
}
