package roundup

import (
	"fmt"
	"time"

	"github.com/roundup-project/roundup/pkg/orchestrator"
	"github.com/roundup-project/roundup/pkg/pairlock"
	"github.com/roundup-project/roundup/pkg/scheduler"
	"github.com/roundup-project/roundup/pkg/scheduler/lsf"
	"github.com/roundup-project/roundup/pkg/utils/pointer"
)

type Marshalled[S any] interface {
	trySeal(string) S
}

// seal marshalled object.
//
// this function CAN CAUSE PANIC if misconfiguration is found.
//
// All types named `pkg/configs/roundup.XxxMarshall` are `Marshalled[*Xxx]` .
func TrySeal[S any](conf Marshalled[S]) S {
	return conf.trySeal("(root)")
}

// Configuration of roundup.
//
// This type is marshalling value and mutable.
// Consider to use immutable version, `Config`.
type ConfigMarshall struct {
	Store      *StoreConfigMarshall     `yaml:"store"`
	Scheduler  *SchedulerConfigMarshall `yaml:"scheduler,omitempty"`
	PayloadDir string                   `yaml:"payloadDir,omitempty"`
	Entrypoint []string                 `yaml:"entrypoint,omitempty"`
	Retry      *RetryConfigMarshall     `yaml:"retry,omitempty"`
	Lock       *LockConfigMarshall      `yaml:"lock,omitempty"`
	Metrics    *MetricsConfigMarshall   `yaml:"metrics,omitempty"`
}

var _ Marshalled[*Config] = &ConfigMarshall{}

func (c *ConfigMarshall) trySeal(path string) *Config {
	sched := orDefault(c.Scheduler, &SchedulerConfigMarshall{Kind: string(Local)}).
		trySeal(path + ".scheduler")

	payloadDir := c.PayloadDir
	entrypoint := c.Entrypoint
	if sched.kind != Local {
		payloadDir = required(payloadDir, path+".payloadDir")
		if len(entrypoint) == 0 {
			entrypoint = []string{"roundup", "run-task"}
		}
		if sched.k8s != nil && sched.k8s.payloadMountPath == "" {
			sched.k8s.payloadMountPath = payloadDir
		}
	}

	return &Config{
		store:      nonnil(c.Store, path+".store").trySeal(path + ".store"),
		scheduler:  sched,
		payloadDir: payloadDir,
		entrypoint: entrypoint,
		retry:      orDefault(c.Retry, &RetryConfigMarshall{}).trySeal(path + ".retry"),
		lock:       orDefault(c.Lock, &LockConfigMarshall{}).trySeal(path + ".lock"),
		metrics:    orDefault(c.Metrics, &MetricsConfigMarshall{}).trySeal(path + ".metrics"),
	}
}

type StoreConfigMarshall struct {
	Backend  string                  `yaml:"backend"`
	Postgres *PostgresConfigMarshall `yaml:"postgres,omitempty"`
	Sqlite   *SqliteConfigMarshall   `yaml:"sqlite,omitempty"`
	Redis    *RedisConfigMarshall    `yaml:"redis,omitempty"`
	Badger   *BadgerConfigMarshall   `yaml:"badger,omitempty"`
	File     *FileConfigMarshall     `yaml:"file,omitempty"`
}

func (s *StoreConfigMarshall) trySeal(path string) *StoreConfig {
	sc := &StoreConfig{backend: Backend(required(s.Backend, path+".backend"))}
	switch sc.backend {
	case Postgres:
		sc.postgres = nonnil(s.Postgres, path+".postgres").trySeal(path + ".postgres")
	case Sqlite:
		sc.sqlite = nonnil(s.Sqlite, path+".sqlite").trySeal(path + ".sqlite")
	case Redis:
		sc.redis = nonnil(s.Redis, path+".redis").trySeal(path + ".redis")
	case Badger:
		sc.badger = nonnil(s.Badger, path+".badger").trySeal(path + ".badger")
	case File:
		sc.file = nonnil(s.File, path+".file").trySeal(path + ".file")
	case Memory:
	default:
		panic(fmt.Sprintf(
			"%s.backend should be one of %s, %s, %s, %s, %s or %s: %s",
			path, Postgres, Sqlite, Redis, Badger, Memory, File, s.Backend,
		))
	}
	return sc
}

type PostgresConfigMarshall struct {
	URL    string `yaml:"url"`
	Table  string `yaml:"table,omitempty"`
	Create bool   `yaml:"create,omitempty"`
}

func (p *PostgresConfigMarshall) trySeal(path string) *PostgresConfig {
	table := p.Table
	if table == "" {
		table = "roundup_kv"
	}
	return &PostgresConfig{
		url:    required(p.URL, path+".url"),
		table:  table,
		create: p.Create,
	}
}

type SqliteConfigMarshall struct {
	Path string `yaml:"path"`
}

func (s *SqliteConfigMarshall) trySeal(path string) *SqliteConfig {
	return &SqliteConfig{path: required(s.Path, path+".path")}
}

type RedisConfigMarshall struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password,omitempty"`
	DB        int    `yaml:"db,omitempty"`
	KeyPrefix string `yaml:"keyPrefix,omitempty"`
}

func (r *RedisConfigMarshall) trySeal(path string) *RedisConfig {
	if r.DB < 0 {
		panic(path + ".db should not be negative")
	}
	return &RedisConfig{
		addr:      required(r.Addr, path+".addr"),
		password:  r.Password,
		db:        r.DB,
		keyPrefix: r.KeyPrefix,
	}
}

type BadgerConfigMarshall struct {
	Dir string `yaml:"dir"`
}

func (b *BadgerConfigMarshall) trySeal(path string) *BadgerConfig {
	return &BadgerConfig{dir: required(b.Dir, path+".dir")}
}

type FileConfigMarshall struct {
	Dir string `yaml:"dir"`
}

func (f *FileConfigMarshall) trySeal(path string) *FileConfig {
	return &FileConfig{dir: required(f.Dir, path+".dir")}
}

type SchedulerConfigMarshall struct {
	Kind            string             `yaml:"kind"`
	RegistrationLag string             `yaml:"registrationLag,omitempty"`
	Queue           string             `yaml:"queue,omitempty"`
	Output          string             `yaml:"output,omitempty"`
	LSF             *LSFConfigMarshall `yaml:"lsf,omitempty"`
	K8s             *K8sConfigMarshall `yaml:"k8s,omitempty"`
}

func (s *SchedulerConfigMarshall) trySeal(path string) *SchedulerConfig {
	sc := &SchedulerConfig{
		kind:            SchedulerKind(required(s.Kind, path+".kind")),
		registrationLag: duration(s.RegistrationLag, scheduler.DefaultRegistrationLag, path+".registrationLag"),
		queue:           s.Queue,
		output:          s.Output,
	}
	switch sc.kind {
	case Local:
	case LSF:
		sc.lsf = orDefault(s.LSF, &LSFConfigMarshall{}).trySeal(path + ".lsf")
		if sc.output == "" {
			sc.output = lsf.DefaultOutput
		}
	case K8s:
		sc.k8s = nonnil(s.K8s, path+".k8s").trySeal(path + ".k8s")
	default:
		panic(fmt.Sprintf(
			"%s.kind should be one of %s, %s or %s: %s", path, Local, LSF, K8s, s.Kind,
		))
	}
	return sc
}

type LSFConfigMarshall struct {
	LsfDir  string `yaml:"lsfDir,omitempty"`
	ConfDir string `yaml:"confDir,omitempty"`
	BinDir  string `yaml:"binDir,omitempty"`
}

func (l *LSFConfigMarshall) trySeal(path string) *LSFConfig {
	return &LSFConfig{lsfDir: l.LsfDir, confDir: l.ConfDir, binDir: l.BinDir}
}

type K8sConfigMarshall struct {
	Kubeconfig       string `yaml:"kubeconfig,omitempty"`
	Namespace        string `yaml:"namespace"`
	Image            string `yaml:"image"`
	ServiceAccount   string `yaml:"serviceAccount,omitempty"`
	PayloadPVC       string `yaml:"payloadPVC"`
	PayloadMountPath string `yaml:"payloadMountPath,omitempty"`
}

func (k *K8sConfigMarshall) trySeal(path string) *K8sConfig {
	return &K8sConfig{
		kubeconfig:       k.Kubeconfig,
		namespace:        required(k.Namespace, path+".namespace"),
		image:            required(k.Image, path+".image"),
		serviceAccount:   k.ServiceAccount,
		payloadPVC:       required(k.PayloadPVC, path+".payloadPVC"),
		payloadMountPath: k.PayloadMountPath,
	}
}

type RetryConfigMarshall struct {
	Attempts *int   `yaml:"attempts,omitempty"`
	Interval string `yaml:"interval,omitempty"`
}

func (r *RetryConfigMarshall) trySeal(path string) *RetryConfig {
	attempts := pointer.ValueOr(r.Attempts, orchestrator.DefaultRetryAttempts)
	if attempts < 0 {
		panic(path + ".attempts should not be negative")
	}
	return &RetryConfig{
		attempts: attempts,
		interval: duration(r.Interval, orchestrator.DefaultRetryInterval, path+".interval"),
	}
}

type LockConfigMarshall struct {
	Enabled bool   `yaml:"enabled"`
	Timeout string `yaml:"timeout,omitempty"`
}

func (l *LockConfigMarshall) trySeal(path string) *LockConfig {
	return &LockConfig{
		enabled: l.Enabled,
		timeout: duration(l.Timeout, pairlock.DefaultTimeout, path+".timeout"),
	}
}

type MetricsConfigMarshall struct {
	Textfile string `yaml:"textfile,omitempty"`
}

func (m *MetricsConfigMarshall) trySeal(path string) *MetricsConfig {
	return &MetricsConfig{textfile: m.Textfile}
}

func nonnil[T any](v *T, path string) *T {
	if v == nil {
		panic(path + " is required")
	}
	return v
}

func orDefault[T any](v *T, fallback *T) *T {
	if v == nil {
		return fallback
	}
	return v
}

func required[T comparable](v T, path string) T {
	if v == *new(T) {
		panic(path + " is required")
	}
	return v
}

func duration(s string, fallback time.Duration, path string) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(fmt.Errorf("%s can not be parsed: %w", path, err))
	}
	if d < 0 {
		panic(path + " should not be negative")
	}
	return d
}
