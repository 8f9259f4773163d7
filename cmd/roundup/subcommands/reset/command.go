package reset

import (
	"context"
	"log"

	"github.com/youta-t/flarc"

	"github.com/roundup-project/roundup/cmd/roundup/subcommands/common"
	roundup "github.com/roundup-project/roundup/pkg"
)

const ARG_NAMESPACE = "NAMESPACE"

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Forget all done marks in a namespace.",
		struct{}{},
		flarc.Args{
			{
				Name: ARG_NAMESPACE, Required: true,
				Help: "namespace to be reset",
			},
		},
		common.NewTask(Task),
		flarc.WithDescription(`
Forget all done marks in a namespace, so that tasks run again in the next "roundup run".

Jobs already submitted are not canceled. They mark their tasks done when they succeed.
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
	ns := cl.Args()[ARG_NAMESPACE][0]
	orch, err := r.Orchestrator(logger, false)
	if err != nil {
		return err
	}
	if err := orch.Reset(ctx, ns); err != nil {
		return err
	}
	logger.Printf("namespace %s is reset", ns)
	return nil
}
