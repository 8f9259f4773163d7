package roundup

import (
	"context"
	"errors"
	"io"
	"log"
	"os"

	rconf "github.com/roundup-project/roundup/pkg/configs/roundup"
	"github.com/roundup-project/roundup/pkg/dones"
	xe "github.com/roundup-project/roundup/pkg/errors"
	"github.com/roundup-project/roundup/pkg/kvstore"
	kvbadger "github.com/roundup-project/roundup/pkg/kvstore/badger"
	"github.com/roundup-project/roundup/pkg/kvstore/memory"
	kvpg "github.com/roundup-project/roundup/pkg/kvstore/postgres"
	kvredis "github.com/roundup-project/roundup/pkg/kvstore/redis"
	kvsqlite "github.com/roundup-project/roundup/pkg/kvstore/sqlite"
	"github.com/roundup-project/roundup/pkg/metrics"
	"github.com/roundup-project/roundup/pkg/orchestrator"
	"github.com/roundup-project/roundup/pkg/pairlock"
	"github.com/roundup-project/roundup/pkg/scheduler"
	k8ssched "github.com/roundup-project/roundup/pkg/scheduler/k8s"
	"github.com/roundup-project/roundup/pkg/scheduler/lsf"
	"github.com/roundup-project/roundup/pkg/tasks"
	"github.com/roundup-project/roundup/pkg/utils/kubeutil"
	wl "github.com/roundup-project/roundup/pkg/workloads/k8s"
)

var ErrNoStore = errors.New("the store backend does not hold anything but done marks")

// Roundup is the set of components a config describes.
type Roundup interface {
	Config() *rconf.Config

	// Store is the key-value store. It is nil for the "file" backend.
	Store() kvstore.Store

	Dones() dones.Dones

	// Scheduler is nil for the "local" scheduler.
	Scheduler() scheduler.Scheduler

	// Locks is nil when locks are disabled.
	Locks() *pairlock.Manager

	Metrics() *metrics.Metrics

	// Orchestrator builds an orchestrator on the components.
	//
	// When submit is true, tasks are submitted to the scheduler, instead of running in process.
	Orchestrator(logger *log.Logger, submit bool, options ...orchestrator.Option) (*orchestrator.Orchestrator, error)

	// DefaultOptions is scheduler options from the config.
	DefaultOptions() scheduler.Options

	// WriteMetrics writes metrics into the textfile in the config, if any.
	WriteMetrics() error

	Close() error
}

type attachOption struct {
	k8sClient wl.JobClient
	lsfRunner lsf.Runner
	registry  *tasks.Registry
	runtime   *tasks.Runtime
	logger    *log.Logger
}

type AttachOption func(*attachOption) *attachOption

// WithK8sClient sets the k8s client, instead of connecting with kubeconfig.
func WithK8sClient(c wl.JobClient) AttachOption {
	return func(ao *attachOption) *attachOption {
		ao.k8sClient = c
		return ao
	}
}

// WithLSFRunner sets how LSF commands are run.
func WithLSFRunner(r lsf.Runner) AttachOption {
	return func(ao *attachOption) *attachOption {
		ao.lsfRunner = r
		return ao
	}
}

// WithRegistry sets functions callable by tasks.
func WithRegistry(r *tasks.Registry) AttachOption {
	return func(ao *attachOption) *attachOption {
		ao.registry = r
		return ao
	}
}

// WithRuntime sets the runtime of tasks. Registry is overwritten when WithRegistry is also given.
func WithRuntime(rt *tasks.Runtime) AttachOption {
	return func(ao *attachOption) *attachOption {
		ao.runtime = rt
		return ao
	}
}

func WithLogger(l *log.Logger) AttachOption {
	return func(ao *attachOption) *attachOption {
		ao.logger = l
		return ao
	}
}

type roundup struct {
	config    *rconf.Config
	store     kvstore.Store
	closer    io.Closer
	dones     dones.Dones
	scheduler scheduler.Scheduler
	locks     *pairlock.Manager
	metrics   *metrics.Metrics
	runtime   *tasks.Runtime
}

var _ Roundup = &roundup{}

// Attach opens components described by the config.
func Attach(ctx context.Context, config *rconf.Config, options ...AttachOption) (Roundup, error) {
	ao := &attachOption{
		logger: log.New(io.Discard, "", 0),
	}
	for _, o := range options {
		ao = o(ao)
	}

	rt := &tasks.Runtime{Stdout: os.Stdout, Stderr: os.Stderr}
	if ao.runtime != nil {
		copied := *ao.runtime
		rt = &copied
	}
	if ao.registry != nil {
		rt.Registry = ao.registry
	}
	if rt.Registry == nil {
		rt.Registry = tasks.NewRegistry()
	}

	r := &roundup{config: config, metrics: metrics.New(), runtime: rt}

	if err := r.openStore(ctx, config.Store()); err != nil {
		return nil, err
	}

	if config.Lock().Enabled() {
		if r.store == nil {
			r.Close()
			return nil, xe.WrapWithNote("locks need a key-value store", ErrNoStore)
		}
		r.locks = pairlock.New(r.store)
	}

	sched, err := newScheduler(config.Scheduler(), ao)
	if err != nil {
		r.Close()
		return nil, err
	}
	r.scheduler = sched
	return r, nil
}

func (r *roundup) openStore(ctx context.Context, sc *rconf.StoreConfig) error {
	switch sc.Backend() {
	case rconf.Postgres:
		pg := sc.Postgres()
		s, err := kvpg.Open(ctx, pg.URL(), kvpg.WithTable(pg.Table()))
		if err != nil {
			return err
		}
		if pg.Create() {
			if err := s.Create(ctx); err != nil {
				s.Close()
				return err
			}
		}
		r.store, r.closer = s, s
	case rconf.Sqlite:
		s, err := kvsqlite.Open(ctx, sc.Sqlite().Path())
		if err != nil {
			return err
		}
		r.store, r.closer = s, s
	case rconf.Redis:
		rc := sc.Redis()
		s, err := kvredis.Open(ctx, rc.Addr(), rc.Password(), rc.DB(), kvredis.WithKeyPrefix(rc.KeyPrefix()))
		if err != nil {
			return err
		}
		r.store, r.closer = s, s
	case rconf.Badger:
		s, err := kvbadger.Open(sc.Badger().Dir())
		if err != nil {
			return err
		}
		r.store, r.closer = s, s
	case rconf.Memory:
		r.store = memory.New()
	case rconf.File:
		d, err := dones.NewFile(sc.File().Dir())
		if err != nil {
			return err
		}
		r.dones = d
		return nil
	default:
		return xe.Errorf("%w: unknown backend: %s", rconf.ErrMisconfigured, sc.Backend())
	}
	r.dones = dones.New(r.store)
	return nil
}

func newScheduler(sc *rconf.SchedulerConfig, ao *attachOption) (scheduler.Scheduler, error) {
	var cluster scheduler.Cluster
	switch sc.Kind() {
	case rconf.Local:
		return nil, nil
	case rconf.LSF:
		opts := []lsf.Option{lsf.WithInstall(lsf.Install{
			LsfDir:  sc.LSF().LsfDir(),
			ConfDir: sc.LSF().ConfDir(),
			BinDir:  sc.LSF().BinDir(),
		})}
		if ao.lsfRunner != nil {
			opts = append(opts, lsf.WithRunner(ao.lsfRunner))
		}
		cluster = lsf.New(opts...)
	case rconf.K8s:
		kc := sc.K8s()
		client := ao.k8sClient
		if client == nil {
			clientset, err := kubeutil.ConnectToK8s(kc.Kubeconfig())
			if err != nil {
				return nil, err
			}
			client = wl.Clientset(clientset)
		}
		cluster = k8ssched.New(client, k8ssched.Config{
			Namespace:        kc.Namespace(),
			Image:            kc.Image(),
			ServiceAccount:   kc.ServiceAccount(),
			PayloadPVC:       kc.PayloadPVC(),
			PayloadMountPath: kc.PayloadMountPath(),
		})
	default:
		return nil, xe.Errorf("%w: unknown scheduler: %s", rconf.ErrMisconfigured, sc.Kind())
	}

	return scheduler.New(
		cluster,
		scheduler.WithRegistrationLag(sc.RegistrationLag()),
		scheduler.WithLogger(ao.logger),
	), nil
}

func (r *roundup) Config() *rconf.Config {
	return r.config
}

func (r *roundup) Store() kvstore.Store {
	return r.store
}

func (r *roundup) Dones() dones.Dones {
	return r.dones
}

func (r *roundup) Scheduler() scheduler.Scheduler {
	return r.scheduler
}

func (r *roundup) Locks() *pairlock.Manager {
	return r.locks
}

func (r *roundup) Metrics() *metrics.Metrics {
	return r.metrics
}

func (r *roundup) DefaultOptions() scheduler.Options {
	return scheduler.Options{
		Queue:  r.config.Scheduler().Queue(),
		Output: r.config.Scheduler().Output(),
	}
}

func (r *roundup) Orchestrator(logger *log.Logger, submit bool, options ...orchestrator.Option) (*orchestrator.Orchestrator, error) {
	conf := r.config
	opts := []orchestrator.Option{
		orchestrator.WithLogger(logger),
		orchestrator.WithRuntime(r.runtime),
		orchestrator.WithMetrics(r.metrics),
		orchestrator.WithRetry(conf.Retry().Attempts(), conf.Retry().Interval()),
	}
	if r.scheduler != nil {
		opts = append(opts, orchestrator.WithScheduler(r.scheduler))
	}
	if r.locks != nil {
		opts = append(opts, orchestrator.WithPairLock(r.locks, conf.Lock().Timeout()))
	}
	if submit {
		if r.scheduler == nil {
			return nil, xe.WrapWithNote("scheduler kind is "+string(conf.Scheduler().Kind()), orchestrator.ErrNoScheduler)
		}
		mailbox, err := tasks.NewMailbox(conf.PayloadDir())
		if err != nil {
			return nil, err
		}
		defaults := r.DefaultOptions()
		opts = append(
			opts,
			orchestrator.WithSubmission(mailbox, conf.Entrypoint()),
			orchestrator.WithOptions(func(tasks.Task) scheduler.Options { return defaults }),
		)
	}
	opts = append(opts, options...)
	return orchestrator.New(r.dones, opts...), nil
}

func (r *roundup) WriteMetrics() error {
	path := r.config.Metrics().Textfile()
	if path == "" {
		return nil
	}
	return r.metrics.WriteTextfile(path)
}

func (r *roundup) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
