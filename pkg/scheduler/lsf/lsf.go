// Package lsf is scheduler.Cluster on IBM Spectrum LSF, through bsub and bjobs.
package lsf

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	xe "github.com/roundup-project/roundup/pkg/errors"
	"github.com/roundup-project/roundup/pkg/scheduler"
)

// DefaultOutput discards job outputs, unless overridden by Options.Output.
const DefaultOutput = "/dev/null"

// Runner runs a command and returns its stdout.
//
// If the command exits with non-zero status, err should be *exec.ExitError
// (with stderr in it) or wrap it.
type Runner interface {
	Run(ctx context.Context, env []string, argv ...string) (stdout []byte, err error)
}

// RunnerFunc is a function as Runner.
type RunnerFunc func(ctx context.Context, env []string, argv ...string) ([]byte, error)

func (f RunnerFunc) Run(ctx context.Context, env []string, argv ...string) ([]byte, error) {
	return f(ctx, env, argv...)
}

// Exec runs commands as subprocesses.
var Exec Runner = RunnerFunc(func(ctx context.Context, env []string, argv ...string) ([]byte, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = env
	// Output collects stderr into *exec.ExitError.
	return cmd.Output()
})

// Install is where LSF is installed.
//
// When any of them are set, commands run with the LSF environment variables derived from them.
type Install struct {
	// LsfDir is the LSF top directory for the platform (contains bin, lib, etc).
	LsfDir string

	// ConfDir is the directory of lsf.conf (LSF_ENVDIR).
	ConfDir string

	// BinDir is the directory of bsub and bjobs. Defaults to LsfDir/bin.
	BinDir string
}

func (i Install) configured() bool {
	return i.LsfDir != "" || i.ConfDir != "" || i.BinDir != ""
}

// Env returns base with LSF variables set for the installation.
//
// PATH gets BinDir appended when it is not there already.
func (i Install) Env(base []string) []string {
	if !i.configured() {
		return base
	}

	binDir := i.BinDir
	if binDir == "" && i.LsfDir != "" {
		binDir = filepath.Join(i.LsfDir, "bin")
	}

	vars := map[string]string{}
	order := []string{}
	set := func(k, v string) {
		if v == "" {
			return
		}
		if _, ok := vars[k]; !ok {
			order = append(order, k)
		}
		vars[k] = v
	}
	for _, kv := range base {
		k, v, _ := strings.Cut(kv, "=")
		set(k, v)
	}

	if i.LsfDir != "" {
		set("LSF_BINDIR", binDir)
		set("LSF_LIBDIR", filepath.Join(i.LsfDir, "lib"))
		set("LSF_SERVERDIR", filepath.Join(i.LsfDir, "etc"))
		set("XLSF_UIDDIR", filepath.Join(i.LsfDir, "lib", "uid"))
	}
	set("LSF_ENVDIR", i.ConfDir)

	if binDir != "" {
		path := vars["PATH"]
		if !containsPath(path, binDir) {
			if path == "" {
				path = binDir
			} else {
				path = path + string(os.PathListSeparator) + binDir
			}
			set("PATH", path)
		}
	}

	env := make([]string, 0, len(order))
	for _, k := range order {
		env = append(env, k+"="+vars[k])
	}
	return env
}

func containsPath(pathEnv string, dir string) bool {
	for _, p := range filepath.SplitList(pathEnv) {
		if filepath.Clean(p) == filepath.Clean(dir) {
			return true
		}
	}
	return false
}

type Cluster struct {
	runner  Runner
	install Install
}

var _ scheduler.Cluster = &Cluster{}

type Option func(*Cluster) *Cluster

func WithRunner(r Runner) Option {
	return func(c *Cluster) *Cluster {
		c.runner = r
		return c
	}
}

func WithInstall(i Install) Option {
	return func(c *Cluster) *Cluster {
		c.install = i
		return c
	}
}

func New(options ...Option) *Cluster {
	c := &Cluster{runner: Exec}
	for _, o := range options {
		c = o(c)
	}
	return c
}

func (c *Cluster) run(ctx context.Context, argv ...string) ([]byte, error) {
	return c.runner.Run(ctx, c.install.Env(os.Environ()), argv...)
}

var reJobId = regexp.MustCompile(`<(\d+)>`)

// BsubArgs builds the bsub command line.
func BsubArgs(command []string, opts scheduler.Options) []string {
	output := opts.Output
	if output == "" {
		output = DefaultOutput
	}
	args := []string{"bsub", "-o", output}
	args = append(args, opts.Extra...)
	if opts.Queue != "" {
		args = append(args, "-q", opts.Queue)
	}
	args = append(args, "-J", opts.JobName)
	return append(args, command...)
}

func (c *Cluster) Submit(ctx context.Context, command []string, opts scheduler.Options) (string, error) {
	out, err := c.run(ctx, BsubArgs(command, opts)...)
	if err != nil {
		return "", &scheduler.SubmissionError{JobName: opts.JobName, Err: withStderr(err)}
	}
	m := reJobId.FindSubmatch(out)
	if m == nil {
		return "", &scheduler.SubmissionError{
			JobName: opts.JobName,
			Err:     fmt.Errorf("job id is not found in bsub output: %q", strings.TrimSpace(string(out))),
		}
	}
	return string(m[1]), nil
}

// bjobs -w line: JOBID USER STAT QUEUE FROM_HOST EXEC_HOST JOB_NAME SUBMIT_TIME
//
// EXEC_HOST is there even for pending jobs in wide format (as "-"), and
// SUBMIT_TIME is three words ("Jan  2 15:04").
var reBjobsLine = regexp.MustCompile(`^(\S+)\s+(\S+)\s+(\S+)\s+(\S+)\s+(\S+)\s+(\S+)\s+(.*?)\s+(\S+\s+\S+\s+\S+)\s*$`)

// Phase classifies a bjobs STAT.
func Phase(stat string) scheduler.Phase {
	switch stat {
	case "DONE":
		return scheduler.Ended
	case "EXIT", "ZOMBI":
		return scheduler.Aborted
	default:
		// PEND, RUN, PSUSP, USUSP, SSUSP, WAIT, UNKWN, ...
		return scheduler.NotEnded
	}
}

// ParseBjobs reads the output of `bjobs -w`.
func ParseBjobs(out []byte) []scheduler.JobInfo {
	jobs := []scheduler.JobInfo{}
	for i, line := range strings.Split(string(out), "\n") {
		if i == 0 && strings.HasPrefix(line, "JOBID") {
			continue
		}
		m := reBjobsLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		jobs = append(jobs, scheduler.JobInfo{Id: m[1], Name: m[7], Phase: Phase(m[3])})
	}
	return jobs
}

func isNotFound(b []byte) bool {
	s := string(b)
	return strings.Contains(s, "is not found") || strings.Contains(s, "No job found") || strings.Contains(s, "No unfinished job found")
}

func (c *Cluster) Jobs(ctx context.Context, name string) ([]scheduler.JobInfo, error) {
	argv := []string{"bjobs", "-a", "-u", "all", "-w"}
	if name != "" {
		argv = append(argv, "-J", name)
	}
	out, err := c.run(ctx, argv...)
	if err != nil {
		var eerr *exec.ExitError
		if errors.As(err, &eerr) && (isNotFound(eerr.Stderr) || isNotFound(out)) {
			return []scheduler.JobInfo{}, nil
		}
		return nil, xe.Wrap(withStderr(err))
	}
	if isNotFound(out) {
		return []scheduler.JobInfo{}, nil
	}
	return ParseBjobs(out), nil
}

func withStderr(err error) error {
	var eerr *exec.ExitError
	if errors.As(err, &eerr) && len(eerr.Stderr) != 0 {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(eerr.Stderr)))
	}
	return err
}
