package show

import (
	"context"
	"log"
	"time"

	"github.com/youta-t/flarc"
	"gopkg.in/yaml.v3"

	"github.com/roundup-project/roundup/cmd/roundup/subcommands/common"
	"github.com/roundup-project/roundup/cmd/roundup/subcommands/lock/internal/locks"
	roundup "github.com/roundup-project/roundup/pkg"
	"github.com/roundup-project/roundup/pkg/pairlock"
)

const ARG_LOCK = "LOCK"

type LockStatus struct {
	Lock          string     `yaml:"lock"`
	Key           string     `yaml:"key"`
	Locked        bool       `yaml:"locked"`
	AcquiredUntil *time.Time `yaml:"acquiredUntil,omitempty"`
}

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Show a pair lock.",
		struct{}{},
		flarc.Args{
			{
				Name: ARG_LOCK, Required: true,
				Help: "name of the lock. Locks of tasks are named as their job names, like NAMESPACE_TASK",
			},
		},
		common.NewTask(Task(time.Now)),
	)
}

func Task(now func() time.Time) common.Task[struct{}] {
	return func(
		ctx context.Context,
		logger *log.Logger,
		r roundup.Roundup,
		cl flarc.Commandline[struct{}],
		params []any,
	) error {
		name := cl.Args()[ARG_LOCK][0]
		m, err := locks.Of(r)
		if err != nil {
			return err
		}
		rec, found, err := m.Get(ctx, name)
		if err != nil {
			return err
		}

		st := LockStatus{Lock: name, Key: pairlock.Key(name)}
		if found {
			until := rec.AcquiredUntil
			st.AcquiredUntil = &until
			st.Locked = now().Before(until)
		}

		enc := yaml.NewEncoder(cl.Stdout())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(st)
	}
}
