package version

import (
	"context"

	"github.com/youta-t/flarc"

	"github.com/roundup-project/roundup/pkg/buildtime"
)

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Show version of this command.",
		struct{}{},
		flarc.Args{},
		Task,
	)
}

func Task(ctx context.Context, c flarc.Commandline[struct{}], a []any) error {
	_, err := c.Stdout().Write([]byte(buildtime.VersionString() + "\n"))
	return err
}
