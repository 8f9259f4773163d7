package drop

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/youta-t/flarc"

	"github.com/roundup-project/roundup/cmd/roundup/subcommands/common"
	roundup "github.com/roundup-project/roundup/pkg"
	"github.com/roundup-project/roundup/pkg/kvstore"
)

var ErrNoTable = errors.New("the backend has no table")

type Flags struct {
	Yes bool `flag:"yes" help:"confirm to drop all done marks and locks in every namespace"`
}

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Drop the table of the key-value store.",
		Flags{},
		flarc.Args{},
		common.NewTask(Task),
		flarc.WithDescription(`
Drop the table of the key-value store (postgres), with all done marks and locks in it.

This cannot be undone. Pass --yes to confirm.
`),
	)
}

func Task(
	ctx context.Context,
	logger *log.Logger,
	r roundup.Roundup,
	cl flarc.Commandline[Flags],
	params []any,
) error {
	if !cl.Flags().Yes {
		return fmt.Errorf("%w: --yes is required to drop", flarc.ErrUsage)
	}
	backend := r.Config().Store().Backend()
	schema, ok := r.Store().(kvstore.Schema)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoTable, backend)
	}
	if err := schema.Drop(ctx); err != nil {
		return err
	}
	logger.Printf("table for backend %s is dropped", backend)
	return nil
}
