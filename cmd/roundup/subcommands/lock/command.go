package lock

import (
	"github.com/youta-t/flarc"

	lock_release "github.com/roundup-project/roundup/cmd/roundup/subcommands/lock/release"
	lock_show "github.com/roundup-project/roundup/cmd/roundup/subcommands/lock/show"
)

func New() (flarc.Command, error) {
	show, err := lock_show.New()
	if err != nil {
		return nil, err
	}
	release, err := lock_release.New()
	if err != nil {
		return nil, err
	}

	return flarc.NewCommandGroup(
		"Manipulate pair locks.",
		struct{}{},
		flarc.WithSubcommand("show", show),
		flarc.WithSubcommand("release", release),
	)
}
