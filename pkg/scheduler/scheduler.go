// Package scheduler adapts batch schedulers (LSF, Kubernetes Jobs, ...)
// to the two questions the orchestrator asks: "submit this" and "what is running".
//
// Jobs are identified by their names. The name of the job for a task is
// derived by JobName, so every process derives the same name for the same task.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	xe "github.com/roundup-project/roundup/pkg/errors"
	"github.com/roundup-project/roundup/pkg/utils/retry"
)

// JobName is the scheduler job name for the task `name` in the namespace `ns`.
func JobName(ns, name string) string {
	return ns + "_" + name
}

// Options for a submission.
type Options struct {
	// JobName is the name of the job. Required.
	JobName string

	// Queue to submit to. Empty means the scheduler's default.
	Queue string

	// Output is where the scheduler writes job outputs. Empty means the cluster's default.
	Output string

	// Extra is raw scheduler-specific options.
	Extra []string
}

// Phase of a job, as far as the orchestrator is concerned.
type Phase int

const (
	// NotEnded covers pending, running, suspended and any other state before the end.
	NotEnded Phase = iota

	// Ended is a job finished successfully.
	Ended

	// Aborted is a job finished with failure, or killed.
	Aborted
)

func (p Phase) String() string {
	switch p {
	case NotEnded:
		return "NotEnded"
	case Ended:
		return "Ended"
	case Aborted:
		return "Aborted"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

type JobInfo struct {
	Id    string
	Name  string
	Phase Phase
}

// Cluster is a batch scheduler backend.
type Cluster interface {
	// Submit submits the command as a job and returns its id.
	Submit(ctx context.Context, command []string, opts Options) (string, error)

	// Jobs lists jobs the scheduler knows. If name is not empty, only jobs with the name.
	//
	// A name the scheduler does not know is not an error; it is an empty list.
	Jobs(ctx context.Context, name string) ([]JobInfo, error)
}

var (
	ErrSubmission      = errors.New("submission failed")
	ErrDuplicateActive = errors.New("more than one active job has the name")
)

// SubmissionError is returned when the scheduler refuses or fails a submission.
type SubmissionError struct {
	JobName string
	Err     error
}

func (s *SubmissionError) Error() string {
	return fmt.Sprintf("submitting job %q: %v", s.JobName, s.Err)
}

func (s *SubmissionError) Unwrap() []error {
	return []error{ErrSubmission, s.Err}
}

// Scheduler is what the orchestrator uses.
type Scheduler interface {
	// Submit submits the command. Failures are *SubmissionError.
	Submit(ctx context.Context, command []string, opts Options) (string, error)

	// ActiveJobNames returns names of jobs which have not ended.
	ActiveJobNames(ctx context.Context, options ...ListOption) (map[string]struct{}, error)

	// IsActive tells whether a job with the name has not ended.
	//
	// It is an error (ErrDuplicateActive) that two or more such jobs exist.
	IsActive(ctx context.Context, name string) (bool, error)
}

type listConfig struct {
	name string
}

type ListOption func(*listConfig) *listConfig

// WithName limits the listing to jobs with the name.
func WithName(name string) ListOption {
	return func(lc *listConfig) *listConfig {
		lc.name = name
		return lc
	}
}

// DefaultRegistrationLag is the default wait before asking a scheduler about a name again.
const DefaultRegistrationLag = time.Second

type Config struct {
	// RegistrationLag is how long a just-submitted job may be invisible to listings.
	//
	// When a listing by name finds no active job of the name, it is retried once after this.
	// Ended jobs of the name are not enough to stop the retry.
	// Zero disables the retry.
	RegistrationLag time.Duration

	Logger *log.Logger
}

type Option func(*Config) *Config

func WithRegistrationLag(d time.Duration) Option {
	return func(c *Config) *Config {
		c.RegistrationLag = d
		return c
	}
}

func WithLogger(l *log.Logger) Option {
	return func(c *Config) *Config {
		c.Logger = l
		return c
	}
}

type adapter struct {
	cluster Cluster
	lag     time.Duration
	logger  *log.Logger
}

// New returns a Scheduler on the cluster.
func New(cluster Cluster, options ...Option) Scheduler {
	c := &Config{
		RegistrationLag: DefaultRegistrationLag,
		Logger:          log.New(io.Discard, "", 0),
	}
	for _, o := range options {
		c = o(c)
	}
	return &adapter{cluster: cluster, lag: c.RegistrationLag, logger: c.Logger}
}

func (a *adapter) Submit(ctx context.Context, command []string, opts Options) (string, error) {
	if opts.JobName == "" {
		return "", xe.Wrap(&SubmissionError{Err: errors.New("job name is empty")})
	}
	if len(command) == 0 {
		return "", xe.Wrap(&SubmissionError{JobName: opts.JobName, Err: errors.New("command is empty")})
	}
	id, err := a.cluster.Submit(ctx, command, opts)
	if err != nil {
		var serr *SubmissionError
		if errors.As(err, &serr) {
			return "", xe.Wrap(err)
		}
		return "", xe.Wrap(&SubmissionError{JobName: opts.JobName, Err: err})
	}
	a.logger.Printf("submitted %s as job %s", opts.JobName, id)
	return id, nil
}

// jobs lists jobs, retrying once after the registration lag when a name is given
// and no job of the name is active.
//
// Ended jobs of the name do not stop the retry, since a job just resubmitted
// under the same name may not be listed yet.
func (a *adapter) jobs(ctx context.Context, name string) ([]JobInfo, error) {
	backoff := retry.Limit(retry.StaticBackoff(a.lag), 1)
	if name == "" || a.lag <= 0 {
		backoff = retry.Limit(retry.Immediately(), 0)
	}

	found, err := retry.Blocking(ctx, backoff, func() ([]JobInfo, error) {
		jobs, err := a.cluster.Jobs(ctx, name)
		if err != nil {
			return nil, err
		}
		if !hasActive(jobs, name) {
			return nil, errNotYet
		}
		return jobs, nil
	})
	if errors.Is(err, errNotYet) {
		return nil, nil
	}
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return found, nil
}

var errNotYet = fmt.Errorf("%w: no active jobs found", retry.ErrRetry)

func hasActive(jobs []JobInfo, name string) bool {
	for _, j := range jobs {
		if j.Phase == NotEnded && (name == "" || j.Name == name) {
			return true
		}
	}
	return false
}

func (a *adapter) ActiveJobNames(ctx context.Context, options ...ListOption) (map[string]struct{}, error) {
	lc := &listConfig{}
	for _, o := range options {
		lc = o(lc)
	}

	jobs, err := a.jobs(ctx, lc.name)
	if err != nil {
		return nil, err
	}
	names := map[string]struct{}{}
	for _, j := range jobs {
		if j.Phase != NotEnded {
			continue
		}
		if lc.name != "" && j.Name != lc.name {
			continue
		}
		names[j.Name] = struct{}{}
	}
	return names, nil
}

func (a *adapter) IsActive(ctx context.Context, name string) (bool, error) {
	jobs, err := a.jobs(ctx, name)
	if err != nil {
		return false, err
	}
	active := []string{}
	for _, j := range jobs {
		if j.Name == name && j.Phase == NotEnded {
			active = append(active, j.Id)
		}
	}
	if 1 < len(active) {
		return false, xe.Wrap(fmt.Errorf("%w: %s (job ids: %v)", ErrDuplicateActive, name, active))
	}
	return len(active) == 1, nil
}
