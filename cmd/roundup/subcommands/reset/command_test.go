package reset_test

import (
	"context"
	"testing"

	"github.com/roundup-project/roundup/cmd/roundup/subcommands/internal/commandline"
	"github.com/roundup-project/roundup/cmd/roundup/subcommands/logger"
	"github.com/roundup-project/roundup/cmd/roundup/subcommands/reset"
	roundup "github.com/roundup-project/roundup/pkg"
	rconf "github.com/roundup-project/roundup/pkg/configs/roundup"
	"github.com/roundup-project/roundup/pkg/utils/try"
)

func TestResetCommand(t *testing.T) {
	ctx := context.Background()
	conf := try.To(rconf.Unmarshal([]byte("store:\n  backend: memory\n"))).OrFatal(t)
	r := try.To(roundup.Attach(ctx, conf)).OrFatal(t)
	defer r.Close()

	for _, m := range [][2]string{{"n1", "t0"}, {"n1", "t1"}, {"n2", "t0"}} {
		if err := r.Dones().Mark(ctx, m[0], m[1]); err != nil {
			t.Fatal(err)
		}
	}

	cl, _, _ := commandline.New("roundup reset", struct{}{}, map[string][]string{reset.ARG_NAMESPACE: {"n1"}})
	err := reset.Task(ctx, logger.Null(), r, cl, nil)
	if err != nil {
		t.Fatal(err)
	}

	if anyDone := try.To(r.Dones().AnyDone(ctx, "n1", []string{"t0", "t1"})).OrFatal(t); anyDone {
		t.Error("n1 is not reset")
	}
	if done := try.To(r.Dones().Done(ctx, "n2", "t0")).OrFatal(t); !done {
		t.Error("other namespace is reset")
	}
}
