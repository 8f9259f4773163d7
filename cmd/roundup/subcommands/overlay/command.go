package overlay

import (
	"context"
	"fmt"
	"log"

	"github.com/youta-t/flarc"
	"gopkg.in/yaml.v3"

	"github.com/roundup-project/roundup/cmd/roundup/subcommands/common"
	roundup "github.com/roundup-project/roundup/pkg"
	kflag "github.com/roundup-project/roundup/pkg/commandline/flag"
	"github.com/roundup-project/roundup/pkg/overlay"
)

type Flags struct {
	Current          string          `flag:"current" metavar:"DIR" help:"directory of items fully processed and committed"`
	Updated          string          `flag:"updated" metavar:"DIR" help:"directory of candidate new items"`
	Depends          string          `flag:"depends" metavar:"DIR" help:"directory of items of a prior batch, which may still be running"`
	DependsNamespace string          `flag:"depends-namespace" metavar:"NAMESPACE" help:"namespace of the prior batch. When it is all done, --depends is ignored"`
	DependsTask      *kflag.Argslice `flag:"depends-task" metavar:"NAME" help:"task of the prior batch. Repeatable. default: pair tasks of items in --depends"`
}

type Pairs struct {
	Compute []overlay.Pair `yaml:"compute"`
	Reuse   []overlay.Pair `yaml:"reuse"`
}

type Result struct {
	Compute []string `yaml:"compute"`
	Skip    []string `yaml:"skip"`

	// DependsIgnored is true when the prior batch is already done.
	DependsIgnored bool  `yaml:"dependsIgnored"`
	Pairs          Pairs `yaml:"pairs"`
}

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Decide items of a new batch to be computed.",
		Flags{
			DependsTask: &kflag.Argslice{},
		},
		flarc.Args{},
		common.NewTask(Task),
		flarc.WithDescription(`
Decide which items of a new batch need computation, when a prior batch may still be running.

Each entry of directories is an item, fingerprinted by its content.
An item in --updated is new unless its fingerprint matches the one in --depends or in --current.

Pairs of all items are split into ones involving any new item (to compute) and others (to reuse).
Pair tasks are named as QUERY_SUBJECT.
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
	flags := cl.Flags()
	if flags.Current == "" || flags.Updated == "" {
		return fmt.Errorf("%w: --current and --updated are required", flarc.ErrUsage)
	}
	if flags.DependsNamespace != "" && flags.Depends == "" {
		return fmt.Errorf("%w: --depends-namespace needs --depends", flarc.ErrUsage)
	}

	current, err := overlay.Scan(flags.Current)
	if err != nil {
		return err
	}
	updated, err := overlay.Scan(flags.Updated)
	if err != nil {
		return err
	}
	depends := overlay.Snapshot{}
	if flags.Depends != "" {
		if depends, err = overlay.Scan(flags.Depends); err != nil {
			return err
		}
	}

	ignored := false
	if flags.DependsNamespace != "" {
		names := []string{}
		if flags.DependsTask != nil {
			names = append(names, *flags.DependsTask...)
		}
		if len(names) == 0 {
			for _, p := range overlay.Pairs(depends.Ids()) {
				names = append(names, p.Name())
			}
		}
		d, err := overlay.DependsIfIncomplete(ctx, r.Dones(), flags.DependsNamespace, names, depends)
		if err != nil {
			return err
		}
		ignored = len(d) == 0 && len(depends) != 0
		if ignored {
			logger.Printf("prior batch %s is done. --depends is ignored", flags.DependsNamespace)
		}
		depends = d
	}

	compute, skip := overlay.Partition(updated, depends, current)
	all := overlay.Merge(current, depends, updated)
	pc, pr := overlay.SplitPairs(overlay.Pairs(all.Ids()), compute)

	enc := yaml.NewEncoder(cl.Stdout())
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(Result{
		Compute:        compute,
		Skip:           skip,
		DependsIgnored: ignored,
		Pairs:          Pairs{Compute: pc, Reuse: pr},
	})
}
