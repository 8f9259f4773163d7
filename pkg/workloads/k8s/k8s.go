// Package k8s is the part of the Kubernetes API used to run tasks as batch/v1 Jobs.
package k8s

import (
	"context"

	kubebatch "k8s.io/api/batch/v1"
	kubecore "k8s.io/api/core/v1"
	kubeapimeta "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/kubernetes"
)

type JobClient interface {
	// CreateJob creates a Job and returns the created one, with its generated name.
	CreateJob(ctx context.Context, namespace string, job *kubebatch.Job) (*kubebatch.Job, error)

	// ListJobs returns Jobs having all of the labels.
	ListJobs(ctx context.Context, namespace string, selector labels.Set) ([]kubebatch.Job, error)
}

type clientset struct {
	kubernetes.Interface
}

// Clientset adapts kubernetes.Interface (a *kubernetes.Clientset or its fake) into JobClient.
func Clientset(c kubernetes.Interface) JobClient {
	return clientset{Interface: c}
}

func (c clientset) CreateJob(ctx context.Context, namespace string, job *kubebatch.Job) (*kubebatch.Job, error) {
	return c.BatchV1().Jobs(namespace).Create(ctx, job, kubeapimeta.CreateOptions{})
}

func (c clientset) ListJobs(ctx context.Context, namespace string, selector labels.Set) ([]kubebatch.Job, error) {
	list, err := c.BatchV1().Jobs(namespace).List(ctx, kubeapimeta.ListOptions{
		LabelSelector: labels.SelectorFromSet(selector).String(),
	})
	if err != nil {
		return nil, err
	}
	return list.Items, nil
}

// Outcome is the terminal condition of the Job: JobComplete or JobFailed.
//
// Empty string means the Job is pending or running.
func Outcome(j *kubebatch.Job) kubebatch.JobConditionType {
	for _, c := range j.Status.Conditions {
		if c.Status != kubecore.ConditionTrue {
			continue
		}
		if c.Type == kubebatch.JobComplete || c.Type == kubebatch.JobFailed {
			return c.Type
		}
	}
	return ""
}
