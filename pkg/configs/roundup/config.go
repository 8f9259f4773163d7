package roundup

import "time"

// Configuration of roundup.
//
// to get `Config` instance, use `TrySeal(*ConfigMarshall)` or `Unmarshal`.
type Config struct {
	store      *StoreConfig
	scheduler  *SchedulerConfig
	payloadDir string
	entrypoint []string
	retry      *RetryConfig
	lock       *LockConfig
	metrics    *MetricsConfig
}

func (c *Config) Store() *StoreConfig {
	return c.store
}

func (c *Config) Scheduler() *SchedulerConfig {
	return c.scheduler
}

// Directory where payloads for scheduled jobs are written.
//
// It should be shared with hosts running jobs.
func (c *Config) PayloadDir() string {
	return c.payloadDir
}

// Command prefix of scheduled jobs. The payload path is appended to this.
func (c *Config) Entrypoint() []string {
	return append([]string{}, c.entrypoint...)
}

func (c *Config) Retry() *RetryConfig {
	return c.retry
}

func (c *Config) Lock() *LockConfig {
	return c.lock
}

func (c *Config) Metrics() *MetricsConfig {
	return c.metrics
}

type Backend string

const (
	Postgres Backend = "postgres"
	Sqlite   Backend = "sqlite"
	Redis    Backend = "redis"
	Badger   Backend = "badger"
	Memory   Backend = "memory"
	File     Backend = "file"
)

// Configuration for the key-value store.
//
// Only the section for the backend is set.
type StoreConfig struct {
	backend  Backend
	postgres *PostgresConfig
	sqlite   *SqliteConfig
	redis    *RedisConfig
	badger   *BadgerConfig
	file     *FileConfig
}

func (s *StoreConfig) Backend() Backend {
	return s.backend
}

func (s *StoreConfig) Postgres() *PostgresConfig {
	return s.postgres
}

func (s *StoreConfig) Sqlite() *SqliteConfig {
	return s.sqlite
}

func (s *StoreConfig) Redis() *RedisConfig {
	return s.redis
}

func (s *StoreConfig) Badger() *BadgerConfig {
	return s.badger
}

func (s *StoreConfig) File() *FileConfig {
	return s.file
}

type PostgresConfig struct {
	url    string
	table  string
	create bool
}

// Connection string for database.
func (p *PostgresConfig) URL() string {
	return p.url
}

// Table name. default = "roundup_kv"
func (p *PostgresConfig) Table() string {
	return p.table
}

// Whether the table should be created if missing.
func (p *PostgresConfig) Create() bool {
	return p.create
}

type SqliteConfig struct {
	path string
}

func (s *SqliteConfig) Path() string {
	return s.path
}

type RedisConfig struct {
	addr      string
	password  string
	db        int
	keyPrefix string
}

// "host:port" of the server.
func (r *RedisConfig) Addr() string {
	return r.addr
}

func (r *RedisConfig) Password() string {
	return r.password
}

func (r *RedisConfig) DB() int {
	return r.db
}

func (r *RedisConfig) KeyPrefix() string {
	return r.keyPrefix
}

type BadgerConfig struct {
	dir string
}

func (b *BadgerConfig) Dir() string {
	return b.dir
}

type FileConfig struct {
	dir string
}

func (f *FileConfig) Dir() string {
	return f.dir
}

type SchedulerKind string

const (
	Local SchedulerKind = "local"
	LSF   SchedulerKind = "lsf"
	K8s   SchedulerKind = "k8s"
)

type SchedulerConfig struct {
	kind            SchedulerKind
	registrationLag time.Duration
	queue           string
	output          string
	lsf             *LSFConfig
	k8s             *K8sConfig
}

// Kind of the scheduler. "local" means tasks run in process.
func (s *SchedulerConfig) Kind() SchedulerKind {
	return s.kind
}

// How long to wait before listing again, when a job just submitted is not listed.
func (s *SchedulerConfig) RegistrationLag() time.Duration {
	return s.registrationLag
}

// Default queue of submissions.
func (s *SchedulerConfig) Queue() string {
	return s.queue
}

// Default output of submissions.
func (s *SchedulerConfig) Output() string {
	return s.output
}

func (s *SchedulerConfig) LSF() *LSFConfig {
	return s.lsf
}

func (s *SchedulerConfig) K8s() *K8sConfig {
	return s.k8s
}

type LSFConfig struct {
	lsfDir  string
	confDir string
	binDir  string
}

// LSF installation root, like "/usr/share/lsf/10.1".
func (l *LSFConfig) LsfDir() string {
	return l.lsfDir
}

func (l *LSFConfig) ConfDir() string {
	return l.confDir
}

func (l *LSFConfig) BinDir() string {
	return l.binDir
}

type K8sConfig struct {
	kubeconfig       string
	namespace        string
	image            string
	serviceAccount   string
	payloadPVC       string
	payloadMountPath string
}

// Path to kubeconfig. Empty means searching default locations.
func (k *K8sConfig) Kubeconfig() string {
	return k.kubeconfig
}

// k8s namespace where jobs are created.
func (k *K8sConfig) Namespace() string {
	return k.namespace
}

// Image of job containers. It should have roundup as the entrypoint command.
func (k *K8sConfig) Image() string {
	return k.image
}

func (k *K8sConfig) ServiceAccount() string {
	return k.serviceAccount
}

// PVC holding the payload directory.
func (k *K8sConfig) PayloadPVC() string {
	return k.payloadPVC
}

// Where the PVC is mounted in job containers. default = payloadDir
func (k *K8sConfig) PayloadMountPath() string {
	return k.payloadMountPath
}

type RetryConfig struct {
	attempts int
	interval time.Duration
}

func (r *RetryConfig) Attempts() int {
	return r.attempts
}

func (r *RetryConfig) Interval() time.Duration {
	return r.interval
}

type LockConfig struct {
	enabled bool
	timeout time.Duration
}

func (l *LockConfig) Enabled() bool {
	return l.enabled
}

func (l *LockConfig) Timeout() time.Duration {
	return l.timeout
}

type MetricsConfig struct {
	textfile string
}

// Where metrics are written after each run. Empty means not writing.
func (m *MetricsConfig) Textfile() string {
	return m.textfile
}
