package mock

import (
	"context"
	"testing"

	"github.com/roundup-project/roundup/pkg/scheduler"
)

type SubmitArgs struct {
	Command []string
	Options scheduler.Options
}

type MockScheduler struct {
	t    *testing.T
	Impl struct {
		Submit         func(ctx context.Context, command []string, opts scheduler.Options) (string, error)
		ActiveJobNames func(ctx context.Context, options ...scheduler.ListOption) (map[string]struct{}, error)
		IsActive       func(ctx context.Context, name string) (bool, error)
	}
	Calls struct {
		Submit         []SubmitArgs
		ActiveJobNames int
		IsActive       []string
	}
}

var _ scheduler.Scheduler = &MockScheduler{}

func New(t *testing.T) *MockScheduler {
	return &MockScheduler{t: t}
}

func (m *MockScheduler) Submit(ctx context.Context, command []string, opts scheduler.Options) (string, error) {
	m.t.Helper()
	m.Calls.Submit = append(m.Calls.Submit, SubmitArgs{Command: command, Options: opts})
	if m.Impl.Submit == nil {
		m.t.Fatal("[MOCK] Submit is not implemented")
	}
	return m.Impl.Submit(ctx, command, opts)
}

func (m *MockScheduler) ActiveJobNames(ctx context.Context, options ...scheduler.ListOption) (map[string]struct{}, error) {
	m.t.Helper()
	m.Calls.ActiveJobNames += 1
	if m.Impl.ActiveJobNames == nil {
		m.t.Fatal("[MOCK] ActiveJobNames is not implemented")
	}
	return m.Impl.ActiveJobNames(ctx, options...)
}

func (m *MockScheduler) IsActive(ctx context.Context, name string) (bool, error) {
	m.t.Helper()
	m.Calls.IsActive = append(m.Calls.IsActive, name)
	if m.Impl.IsActive == nil {
		m.t.Fatal("[MOCK] IsActive is not implemented")
	}
	return m.Impl.IsActive(ctx, name)
}

// MockCluster is a fake scheduler.Cluster.
type MockCluster struct {
	t    *testing.T
	Impl struct {
		Submit func(ctx context.Context, command []string, opts scheduler.Options) (string, error)
		Jobs   func(ctx context.Context, name string) ([]scheduler.JobInfo, error)
	}
	Calls struct {
		Submit []SubmitArgs
		Jobs   []string
	}
}

var _ scheduler.Cluster = &MockCluster{}

func NewCluster(t *testing.T) *MockCluster {
	return &MockCluster{t: t}
}

func (m *MockCluster) Submit(ctx context.Context, command []string, opts scheduler.Options) (string, error) {
	m.t.Helper()
	m.Calls.Submit = append(m.Calls.Submit, SubmitArgs{Command: command, Options: opts})
	if m.Impl.Submit == nil {
		m.t.Fatal("[MOCK] Submit is not implemented")
	}
	return m.Impl.Submit(ctx, command, opts)
}

func (m *MockCluster) Jobs(ctx context.Context, name string) ([]scheduler.JobInfo, error) {
	m.t.Helper()
	m.Calls.Jobs = append(m.Calls.Jobs, name)
	if m.Impl.Jobs == nil {
		m.t.Fatal("[MOCK] Jobs is not implemented")
	}
	return m.Impl.Jobs(ctx, name)
}
