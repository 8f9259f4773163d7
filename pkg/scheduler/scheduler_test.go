package scheduler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/roundup-project/roundup/pkg/cmp"
	"github.com/roundup-project/roundup/pkg/scheduler"
	"github.com/roundup-project/roundup/pkg/scheduler/mock"
	"github.com/roundup-project/roundup/pkg/utils/try"
)

func keys(m map[string]struct{}) []string {
	ks := []string{}
	for k := range m {
		ks = append(ks, k)
	}
	return ks
}

func TestJobName(t *testing.T) {
	if actual := scheduler.JobName("n1", "t0"); actual != "n1_t0" {
		t.Errorf("JobName = %s", actual)
	}
}

func TestSubmit(t *testing.T) {
	t.Run("it passes the command and options to the cluster", func(t *testing.T) {
		cluster := mock.NewCluster(t)
		cluster.Impl.Submit = func(ctx context.Context, command []string, opts scheduler.Options) (string, error) {
			return "1234", nil
		}
		testee := scheduler.New(cluster)

		opts := scheduler.Options{JobName: "n1_t0", Queue: "short"}
		id := try.To(testee.Submit(context.Background(), []string{"run-task", "p.json"}, opts)).OrFatal(t)
		if id != "1234" {
			t.Errorf("id = %s", id)
		}
		if len(cluster.Calls.Submit) != 1 {
			t.Fatalf("submitted %d times", len(cluster.Calls.Submit))
		}
		got := cluster.Calls.Submit[0]
		if !cmp.SliceEq(got.Command, []string{"run-task", "p.json"}) || got.Options.Queue != "short" || got.Options.JobName != "n1_t0" {
			t.Errorf("submitted %+v", got)
		}
	})

	t.Run("cluster failure is a submission error", func(t *testing.T) {
		cluster := mock.NewCluster(t)
		cluster.Impl.Submit = func(ctx context.Context, command []string, opts scheduler.Options) (string, error) {
			return "", errors.New("fake error")
		}
		testee := scheduler.New(cluster)

		_, err := testee.Submit(context.Background(), []string{"x"}, scheduler.Options{JobName: "n1_t0"})
		var serr *scheduler.SubmissionError
		if !errors.As(err, &serr) || serr.JobName != "n1_t0" {
			t.Fatalf("err = %v, want *SubmissionError", err)
		}
		if !errors.Is(err, scheduler.ErrSubmission) {
			t.Error("err does not match ErrSubmission")
		}
	})

	for name, testcase := range map[string]struct {
		command []string
		opts    scheduler.Options
	}{
		"without job name":   {command: []string{"x"}, opts: scheduler.Options{}},
		"with empty command": {command: nil, opts: scheduler.Options{JobName: "n1_t0"}},
	} {
		t.Run("submission "+name+" is rejected before reaching the cluster", func(t *testing.T) {
			cluster := mock.NewCluster(t)
			testee := scheduler.New(cluster)
			if _, err := testee.Submit(context.Background(), testcase.command, testcase.opts); !errors.Is(err, scheduler.ErrSubmission) {
				t.Errorf("err = %v, want ErrSubmission", err)
			}
			if len(cluster.Calls.Submit) != 0 {
				t.Error("cluster is called")
			}
		})
	}
}

func TestActiveJobNames(t *testing.T) {
	t.Run("it returns names of jobs which have not ended", func(t *testing.T) {
		cluster := mock.NewCluster(t)
		cluster.Impl.Jobs = func(ctx context.Context, name string) ([]scheduler.JobInfo, error) {
			return []scheduler.JobInfo{
				{Id: "1", Name: "n1_t0", Phase: scheduler.NotEnded},
				{Id: "2", Name: "n1_t1", Phase: scheduler.Ended},
				{Id: "3", Name: "n1_t2", Phase: scheduler.Aborted},
				{Id: "4", Name: "n1_t3", Phase: scheduler.NotEnded},
				{Id: "5", Name: "n1_t3", Phase: scheduler.Ended},
			}, nil
		}
		testee := scheduler.New(cluster)

		actual := try.To(testee.ActiveJobNames(context.Background())).OrFatal(t)
		if !cmp.SliceContentEq(keys(actual), []string{"n1_t0", "n1_t3"}) {
			t.Errorf("actual = %v", keys(actual))
		}
		if !cmp.SliceEq(cluster.Calls.Jobs, []string{""}) {
			t.Errorf("listing all jobs is retried: %v", cluster.Calls.Jobs)
		}
	})

	t.Run("with a name, an empty listing is retried once after the registration lag", func(t *testing.T) {
		cluster := mock.NewCluster(t)
		cluster.Impl.Jobs = func(ctx context.Context, name string) ([]scheduler.JobInfo, error) {
			if len(cluster.Calls.Jobs) < 2 {
				return nil, nil
			}
			return []scheduler.JobInfo{{Id: "1", Name: name, Phase: scheduler.NotEnded}}, nil
		}
		testee := scheduler.New(cluster, scheduler.WithRegistrationLag(10*time.Millisecond))

		actual := try.To(testee.ActiveJobNames(context.Background(), scheduler.WithName("n1_t0"))).OrFatal(t)
		if !cmp.SliceContentEq(keys(actual), []string{"n1_t0"}) {
			t.Errorf("actual = %v", keys(actual))
		}
		if !cmp.SliceEq(cluster.Calls.Jobs, []string{"n1_t0", "n1_t0"}) {
			t.Errorf("calls = %v", cluster.Calls.Jobs)
		}
	})

	t.Run("with a name, a listing with only ended jobs of the name is retried", func(t *testing.T) {
		cluster := mock.NewCluster(t)
		cluster.Impl.Jobs = func(ctx context.Context, name string) ([]scheduler.JobInfo, error) {
			jobs := []scheduler.JobInfo{{Id: "1", Name: name, Phase: scheduler.Aborted}}
			if 2 <= len(cluster.Calls.Jobs) {
				jobs = append(jobs, scheduler.JobInfo{Id: "2", Name: name, Phase: scheduler.NotEnded})
			}
			return jobs, nil
		}
		testee := scheduler.New(cluster, scheduler.WithRegistrationLag(time.Millisecond))

		actual := try.To(testee.ActiveJobNames(context.Background(), scheduler.WithName("n1_t0"))).OrFatal(t)
		if !cmp.SliceContentEq(keys(actual), []string{"n1_t0"}) {
			t.Errorf("actual = %v", keys(actual))
		}
		if len(cluster.Calls.Jobs) != 2 {
			t.Errorf("calls = %v", cluster.Calls.Jobs)
		}
	})

	t.Run("with a name, it gives up after one retry", func(t *testing.T) {
		cluster := mock.NewCluster(t)
		cluster.Impl.Jobs = func(ctx context.Context, name string) ([]scheduler.JobInfo, error) {
			return nil, nil
		}
		testee := scheduler.New(cluster, scheduler.WithRegistrationLag(time.Millisecond))

		actual := try.To(testee.ActiveJobNames(context.Background(), scheduler.WithName("n1_t0"))).OrFatal(t)
		if len(actual) != 0 {
			t.Errorf("actual = %v", keys(actual))
		}
		if len(cluster.Calls.Jobs) != 2 {
			t.Errorf("calls = %v", cluster.Calls.Jobs)
		}
	})

	t.Run("zero registration lag disables the retry", func(t *testing.T) {
		cluster := mock.NewCluster(t)
		cluster.Impl.Jobs = func(ctx context.Context, name string) ([]scheduler.JobInfo, error) {
			return nil, nil
		}
		testee := scheduler.New(cluster, scheduler.WithRegistrationLag(0))

		try.To(testee.ActiveJobNames(context.Background(), scheduler.WithName("n1_t0"))).OrFatal(t)
		if len(cluster.Calls.Jobs) != 1 {
			t.Errorf("calls = %v", cluster.Calls.Jobs)
		}
	})

	t.Run("listing failure is returned", func(t *testing.T) {
		expectedErr := errors.New("fake error")
		cluster := mock.NewCluster(t)
		cluster.Impl.Jobs = func(ctx context.Context, name string) ([]scheduler.JobInfo, error) {
			return nil, expectedErr
		}
		testee := scheduler.New(cluster)

		if _, err := testee.ActiveJobNames(context.Background()); !errors.Is(err, expectedErr) {
			t.Errorf("err = %v", err)
		}
		if len(cluster.Calls.Jobs) != 1 {
			t.Errorf("failure is retried: %v", cluster.Calls.Jobs)
		}
	})
}

func TestIsActive(t *testing.T) {
	for name, testcase := range map[string]struct {
		jobs    []scheduler.JobInfo
		then    bool
		wantErr error
	}{
		"no jobs": {
			jobs: nil, then: false,
		},
		"only ended jobs": {
			jobs: []scheduler.JobInfo{
				{Id: "1", Name: "n1_t0", Phase: scheduler.Ended},
				{Id: "2", Name: "n1_t0", Phase: scheduler.Aborted},
			},
			then: false,
		},
		"one not-ended job": {
			jobs: []scheduler.JobInfo{
				{Id: "1", Name: "n1_t0", Phase: scheduler.Aborted},
				{Id: "2", Name: "n1_t0", Phase: scheduler.NotEnded},
			},
			then: true,
		},
		"two not-ended jobs": {
			jobs: []scheduler.JobInfo{
				{Id: "1", Name: "n1_t0", Phase: scheduler.NotEnded},
				{Id: "2", Name: "n1_t0", Phase: scheduler.NotEnded},
			},
			wantErr: scheduler.ErrDuplicateActive,
		},
	} {
		t.Run("when there are "+name, func(t *testing.T) {
			cluster := mock.NewCluster(t)
			cluster.Impl.Jobs = func(ctx context.Context, name string) ([]scheduler.JobInfo, error) {
				return testcase.jobs, nil
			}
			testee := scheduler.New(cluster, scheduler.WithRegistrationLag(0))

			actual, err := testee.IsActive(context.Background(), "n1_t0")
			if testcase.wantErr != nil {
				if !errors.Is(err, testcase.wantErr) {
					t.Errorf("err = %v, want %v", err, testcase.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if actual != testcase.then {
				t.Errorf("IsActive = %v, want %v", actual, testcase.then)
			}
		})
	}
}

func TestPhase(t *testing.T) {
	for phase, expected := range map[scheduler.Phase]string{
		scheduler.NotEnded: "NotEnded",
		scheduler.Ended:    "Ended",
		scheduler.Aborted:  "Aborted",
		scheduler.Phase(9): "Phase(9)",
	} {
		if phase.String() != expected {
			t.Errorf("%d: %s != %s", int(phase), phase.String(), expected)
		}
	}
}
