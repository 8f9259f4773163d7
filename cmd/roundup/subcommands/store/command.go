package store

import (
	"github.com/youta-t/flarc"

	store_create "github.com/roundup-project/roundup/cmd/roundup/subcommands/store/create"
	store_drop "github.com/roundup-project/roundup/cmd/roundup/subcommands/store/drop"
)

func New() (flarc.Command, error) {
	create, err := store_create.New()
	if err != nil {
		return nil, err
	}
	drop, err := store_drop.New()
	if err != nil {
		return nil, err
	}

	return flarc.NewCommandGroup(
		"Manage the key-value store.",
		struct{}{},
		flarc.WithSubcommand("create", create),
		flarc.WithSubcommand("drop", drop),
	)
}
