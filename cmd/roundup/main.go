package main

import (
	"context"
	"os"
	"os/signal"
	"path"

	"github.com/youta-t/flarc"

	"github.com/roundup-project/roundup/cmd/roundup/subcommands/common"
	sublock "github.com/roundup-project/roundup/cmd/roundup/subcommands/lock"
	"github.com/roundup-project/roundup/cmd/roundup/subcommands/logger"
	suboverlay "github.com/roundup-project/roundup/cmd/roundup/subcommands/overlay"
	subreset "github.com/roundup-project/roundup/cmd/roundup/subcommands/reset"
	subrun "github.com/roundup-project/roundup/cmd/roundup/subcommands/run"
	subruntask "github.com/roundup-project/roundup/cmd/roundup/subcommands/runtask"
	substatus "github.com/roundup-project/roundup/cmd/roundup/subcommands/status"
	substore "github.com/roundup-project/roundup/cmd/roundup/subcommands/store"
	subunmark "github.com/roundup-project/roundup/cmd/roundup/subcommands/unmark"
	subver "github.com/roundup-project/roundup/cmd/roundup/subcommands/version"
	roundup "github.com/roundup-project/roundup/pkg"
	"github.com/roundup-project/roundup/pkg/tasks"
	"github.com/roundup-project/roundup/pkg/utils/try"
)

func main() {
	logger := logger.Default(path.Base(os.Args[0]))

	ctx, cancel := signal.NotifyContext(
		context.Background(), os.Interrupt, os.Kill,
	)
	defer cancel()

	// call tasks resolve functions in this registry, both when run here and on the scheduler.
	registry := tasks.Builtins()
	attach := roundup.WithRegistry(registry)

	run := try.To(subrun.New(subrun.WithAttachOptions(attach))).OrFatal(logger)
	status := try.To(substatus.New(attach)).OrFatal(logger)
	reset := try.To(subreset.New()).OrFatal(logger)
	unmark := try.To(subunmark.New()).OrFatal(logger)
	runtask := try.To(subruntask.New(attach)).OrFatal(logger)
	lock := try.To(sublock.New()).OrFatal(logger)
	overlay := try.To(suboverlay.New()).OrFatal(logger)
	store := try.To(substore.New()).OrFatal(logger)
	version := try.To(subver.New()).OrFatal(logger)

	root := try.To(
		flarc.NewCommandGroup(
			"roundup: run batches of tasks exactly until they are done",
			common.Flags(),
			flarc.WithSubcommand("run", run),
			flarc.WithSubcommand("status", status),
			flarc.WithSubcommand("reset", reset),
			flarc.WithSubcommand("unmark", unmark),
			flarc.WithSubcommand("run-task", runtask),
			flarc.WithSubcommand("lock", lock),
			flarc.WithSubcommand("overlay", overlay),
			flarc.WithSubcommand("store", store),
			flarc.WithSubcommand("version", version),
		),
	).OrFatal(logger)

	os.Exit(flarc.Run(ctx, root, flarc.WithHelp(true)))
}
