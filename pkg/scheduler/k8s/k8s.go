// Package k8s is scheduler.Cluster on Kubernetes batch/v1 Jobs.
//
// Job object names are generated by Kubernetes. The scheduler job name is
// kept in an annotation, and its hash in a label to find jobs by name.
package k8s

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"

	xe "github.com/roundup-project/roundup/pkg/errors"
	"github.com/roundup-project/roundup/pkg/scheduler"
	wl "github.com/roundup-project/roundup/pkg/workloads/k8s"
	kubebatch "k8s.io/api/batch/v1"
	kubecore "k8s.io/api/core/v1"
	kubeapimeta "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
)

const (
	LabelManaged     = "roundup.dev/managed"
	LabelJobNameHash = "roundup.dev/job-name-hash"
	LabelQueue       = "roundup.dev/queue"

	AnnotationJobName = "roundup.dev/job-name"

	ContainerName = "task"
	volumeName    = "payload"
)

type Config struct {
	// Namespace where jobs are created.
	Namespace string

	// Image of the task container. It should have the roundup binary.
	Image string

	// ServiceAccount for job pods. Optional.
	ServiceAccount string

	// PayloadPVC is the PVC name holding payload files. Optional.
	PayloadPVC string

	// PayloadMountPath is where PayloadPVC is mounted in the task container.
	//
	// It should be the same path as the payload directory of the submitting side.
	PayloadMountPath string
}

type Cluster struct {
	client wl.JobClient
	conf   Config
}

var _ scheduler.Cluster = &Cluster{}

func New(client wl.JobClient, conf Config) *Cluster {
	return &Cluster{client: client, conf: conf}
}

// NameHash is the label value for the scheduler job name.
func NameHash(jobName string) string {
	h := md5.Sum([]byte(jobName))
	return hex.EncodeToString(h[:])
}

var reNotInDNSLabel = regexp.MustCompile(`[^-a-z0-9]+`)

// generateName makes a prefix for Job names, following RFC 1123 label syntax.
func generateName(jobName string) string {
	n := strings.ToLower(jobName)
	n = reNotInDNSLabel.ReplaceAllString(n, "-")
	n = strings.Trim(n, "-")
	if 40 < len(n) {
		n = strings.TrimRight(n[:40], "-")
	}
	if n == "" {
		n = "roundup"
	}
	return n + "-"
}

func (c *Cluster) jobSpec(command []string, opts scheduler.Options) *kubebatch.Job {
	labels := map[string]string{
		LabelManaged:     "true",
		LabelJobNameHash: NameHash(opts.JobName),
	}
	if opts.Queue != "" {
		labels[LabelQueue] = opts.Queue
	}

	env := []kubecore.EnvVar{}
	for _, kv := range opts.Extra {
		k, v, _ := strings.Cut(kv, "=")
		env = append(env, kubecore.EnvVar{Name: k, Value: v})
	}

	container := kubecore.Container{
		Name:    ContainerName,
		Image:   c.conf.Image,
		Command: command,
		Env:     env,
	}
	pod := kubecore.PodSpec{
		RestartPolicy:      kubecore.RestartPolicyNever,
		ServiceAccountName: c.conf.ServiceAccount,
	}
	if c.conf.PayloadPVC != "" {
		container.VolumeMounts = []kubecore.VolumeMount{
			{Name: volumeName, MountPath: c.conf.PayloadMountPath},
		}
		pod.Volumes = []kubecore.Volume{
			{
				Name: volumeName,
				VolumeSource: kubecore.VolumeSource{
					PersistentVolumeClaim: &kubecore.PersistentVolumeClaimVolumeSource{
						ClaimName: c.conf.PayloadPVC,
					},
				},
			},
		}
	}
	pod.Containers = []kubecore.Container{container}

	backoffLimit := int32(0)
	return &kubebatch.Job{
		ObjectMeta: kubeapimeta.ObjectMeta{
			GenerateName: generateName(opts.JobName),
			Namespace:    c.conf.Namespace,
			Labels:       labels,
			Annotations:  map[string]string{AnnotationJobName: opts.JobName},
		},
		Spec: kubebatch.JobSpec{
			// tasks are retried by the next pass, not by Kubernetes.
			BackoffLimit: &backoffLimit,
			Template: kubecore.PodTemplateSpec{
				ObjectMeta: kubeapimeta.ObjectMeta{Labels: labels},
				Spec:       pod,
			},
		},
	}
}

// Submit creates a Job running the command.
//
// Options.Output is ignored; outputs are in pod logs.
// Options.Extra are "NAME=VALUE" environment variables for the task container.
func (c *Cluster) Submit(ctx context.Context, command []string, opts scheduler.Options) (string, error) {
	created, err := c.client.CreateJob(ctx, c.conf.Namespace, c.jobSpec(command, opts))
	if err != nil {
		return "", &scheduler.SubmissionError{JobName: opts.JobName, Err: err}
	}
	return created.Name, nil
}

// Phase classifies a Job.
func Phase(j *kubebatch.Job) scheduler.Phase {
	switch wl.Outcome(j) {
	case kubebatch.JobComplete:
		return scheduler.Ended
	case kubebatch.JobFailed:
		return scheduler.Aborted
	default:
		return scheduler.NotEnded
	}
}

func (c *Cluster) Jobs(ctx context.Context, name string) ([]scheduler.JobInfo, error) {
	selector := labels.Set{LabelManaged: "true"}
	if name != "" {
		selector[LabelJobNameHash] = NameHash(name)
	}

	jobs, err := c.client.ListJobs(ctx, c.conf.Namespace, selector)
	if err != nil {
		return nil, xe.Wrap(err)
	}

	infos := make([]scheduler.JobInfo, 0, len(jobs))
	for i := range jobs {
		j := &jobs[i]
		jobName, ok := j.Annotations[AnnotationJobName]
		if !ok {
			continue
		}
		if name != "" && jobName != name {
			continue
		}
		infos = append(infos, scheduler.JobInfo{Id: j.Name, Name: jobName, Phase: Phase(j)})
	}
	return infos, nil
}
