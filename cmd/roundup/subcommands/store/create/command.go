package create

import (
	"context"
	"log"

	"github.com/youta-t/flarc"

	"github.com/roundup-project/roundup/cmd/roundup/subcommands/common"
	roundup "github.com/roundup-project/roundup/pkg"
	"github.com/roundup-project/roundup/pkg/kvstore"
)

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Create the table of the key-value store.",
		struct{}{},
		flarc.Args{},
		common.NewTask(Task),
		flarc.WithDescription(`
Create the table of the key-value store, if the backend keeps values in a table
(postgres) and the table does not exist.

For other backends, this does nothing.
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
	backend := r.Config().Store().Backend()
	schema, ok := r.Store().(kvstore.Schema)
	if !ok {
		logger.Printf("backend %s has no table to create", backend)
		return nil
	}
	if err := schema.Create(ctx); err != nil {
		return err
	}
	logger.Printf("table for backend %s is ready", backend)
	return nil
}
