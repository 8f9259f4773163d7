package runtask

import (
	"context"
	"log"

	"github.com/youta-t/flarc"

	"github.com/roundup-project/roundup/cmd/roundup/subcommands/common"
	roundup "github.com/roundup-project/roundup/pkg"
	xe "github.com/roundup-project/roundup/pkg/errors"
)

const ARG_PAYLOAD = "PAYLOAD"

func New(options ...roundup.AttachOption) (flarc.Command, error) {
	return flarc.NewCommand(
		"Run a task submitted by \"roundup run --submit\".",
		struct{}{},
		flarc.Args{
			{
				Name: ARG_PAYLOAD, Required: true,
				Help: "path to a payload file written by the submitter",
			},
		},
		common.NewTask(Task, options...),
		flarc.WithDescription(`
Run a task submitted by "roundup run --submit", and mark it done on success.

This is the entrypoint of scheduled jobs; users rarely call this directly.
The payload file is deleted once it is read.

This exits with non-zero status when the task fails. Then the task is not marked done.
A task already done, or locked by someone, is skipped successfully.
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
	orch, err := r.Orchestrator(logger, false)
	if err != nil {
		return err
	}
	if err := orch.RunTaskFile(ctx, cl.Args()[ARG_PAYLOAD][0]); err != nil {
		for _, at := range xe.Trace(err) {
			logger.Printf("  at %s", at)
		}
		return err
	}
	return nil
}
