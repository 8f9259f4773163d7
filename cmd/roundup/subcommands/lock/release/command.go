package release

import (
	"context"
	"log"

	"github.com/youta-t/flarc"

	"github.com/roundup-project/roundup/cmd/roundup/subcommands/common"
	"github.com/roundup-project/roundup/cmd/roundup/subcommands/lock/internal/locks"
	roundup "github.com/roundup-project/roundup/pkg"
)

const ARG_LOCK = "LOCK"

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Release a pair lock.",
		struct{}{},
		flarc.Args{
			{
				Name: ARG_LOCK, Required: true, Repeatable: true,
				Help: "name of the lock",
			},
		},
		common.NewTask(Task),
		flarc.WithDescription(`
Release pair locks, whoever holds them.

Locks expire by themselves. Use this when a process holding a lock died and
you do not want to wait for the expiry.
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
	m, err := locks.Of(r)
	if err != nil {
		return err
	}
	for _, name := range cl.Args()[ARG_LOCK] {
		if err := m.Release(ctx, name); err != nil {
			return err
		}
		logger.Printf("lock %s is released", name)
	}
	return nil
}
