package mock

import (
	"context"
	"errors"

	k8s "github.com/roundup-project/roundup/pkg/workloads/k8s"
	kubebatch "k8s.io/api/batch/v1"
	"k8s.io/apimachinery/pkg/labels"
)

type ListJobsArgs struct {
	Namespace string
	Selector  labels.Set
}

type JobClient struct {
	Impl struct {
		CreateJob func(ctx context.Context, namespace string, job *kubebatch.Job) (*kubebatch.Job, error)
		ListJobs  func(ctx context.Context, namespace string, selector labels.Set) ([]kubebatch.Job, error)
	}
	Calls struct {
		CreateJob []*kubebatch.Job
		ListJobs  []ListJobsArgs
	}
}

var _ k8s.JobClient = &JobClient{}

func New() *JobClient {
	return &JobClient{}
}

func (m *JobClient) CreateJob(ctx context.Context, namespace string, job *kubebatch.Job) (*kubebatch.Job, error) {
	m.Calls.CreateJob = append(m.Calls.CreateJob, job)
	if m.Impl.CreateJob == nil {
		return nil, errors.New("[MOCK] CreateJob is not implemented")
	}
	return m.Impl.CreateJob(ctx, namespace, job)
}

func (m *JobClient) ListJobs(ctx context.Context, namespace string, selector labels.Set) ([]kubebatch.Job, error) {
	m.Calls.ListJobs = append(m.Calls.ListJobs, ListJobsArgs{Namespace: namespace, Selector: selector})
	if m.Impl.ListJobs == nil {
		return nil, errors.New("[MOCK] ListJobs is not implemented")
	}
	return m.Impl.ListJobs(ctx, namespace, selector)
}
