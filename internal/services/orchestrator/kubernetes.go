// Package orchestrator talks to Kubernetes: it observes, launches and deletes
// worker jobs and serves the cluster inspection views.
package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/ternarybob/armada/internal/common"
	"github.com/ternarybob/armada/internal/models"
)

const (
	// workerLabel marks every job this controller owns. Jobs without it are
	// invisible to the scaling loop.
	workerLabel = "app=worker-role"

	// jobTTLSeconds lets the orchestrator garbage-collect finished jobs
	// shortly after completion; the controller keeps its own history.
	jobTTLSeconds int32 = 60

	// maxHistory bounds the observed job history returned per tick.
	maxHistory = 50

	// maxEvents bounds the event list in the cluster view.
	maxEvents = 20
)

// KubernetesClient implements the orchestrator interface on a real or fake
// clientset.
type KubernetesClient struct {
	clientset    kubernetes.Interface
	namespace    string
	logsHostPath string
	brokerHost   string
	reportURL    string
	logger       arbor.ILogger
}

// NewKubernetesClient builds a client from config: in-cluster credentials by
// default, a kubeconfig file when one is configured.
func NewKubernetesClient(cfg *common.Config, logger arbor.ILogger) (*KubernetesClient, error) {
	var (
		restCfg *rest.Config
		err     error
	)
	if cfg.Orchestrator.Kubeconfig != "" {
		restCfg, err = clientcmd.BuildConfigFromFlags("", cfg.Orchestrator.Kubeconfig)
	} else {
		restCfg, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load orchestrator config: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator client: %w", err)
	}

	return NewWithClientset(clientset, cfg, logger), nil
}

// NewWithClientset wires an existing clientset; tests pass a fake.
func NewWithClientset(clientset kubernetes.Interface, cfg *common.Config, logger arbor.ILogger) *KubernetesClient {
	return &KubernetesClient{
		clientset:    clientset,
		namespace:    cfg.Orchestrator.Namespace,
		logsHostPath: cfg.Orchestrator.LogsHostPath,
		brokerHost:   cfg.Broker.Host,
		reportURL:    cfg.Orchestrator.ReportURL,
		logger:       logger,
	}
}

// ListWorkerJobs observes every labelled job in the namespace and classifies
// it. Records are sorted newest start first; jobs without a start time sort
// last. At most maxHistory records are returned.
func (k *KubernetesClient) ListWorkerJobs(ctx context.Context) ([]models.WorkerJobRecord, error) {
	jobs, err := k.clientset.BatchV1().Jobs(k.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: workerLabel,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list worker jobs: %w", err)
	}

	records := make([]models.WorkerJobRecord, 0, len(jobs.Items))
	for i := range jobs.Items {
		records = append(records, observeJob(&jobs.Items[i]))
	}

	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i].StartTime, records[j].StartTime
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})

	if len(records) > maxHistory {
		records = records[:maxHistory]
	}
	return records, nil
}

// observeJob classifies one job from its status counts.
func observeJob(job *batchv1.Job) models.WorkerJobRecord {
	rec := models.WorkerJobRecord{
		Name:        job.Name,
		TypeID:      job.Labels["type"],
		CreatedAt:   job.CreationTimestamp.Time,
		Active:      int(job.Status.Active),
		Succeeded:   int(job.Status.Succeeded),
		Failed:      int(job.Status.Failed),
		Terminating: job.DeletionTimestamp != nil,
	}
	if job.Status.StartTime != nil {
		t := job.Status.StartTime.Time
		rec.StartTime = &t
	}

	switch {
	case job.Status.Succeeded >= 1:
		rec.Phase = models.JobPhaseSucceeded
	case job.Status.Failed >= 1:
		rec.Phase = models.JobPhaseFailed
	case job.Status.Active >= 1:
		rec.Phase = models.JobPhaseRunning
	default:
		rec.Phase = models.JobPhasePending
	}
	return rec
}

// CreateWorkerJob launches one job for the type spec. The name is the type ID
// plus a short random suffix; the pod gets the worker contract env vars and
// the shared host log directory.
func (k *KubernetesClient) CreateWorkerJob(ctx context.Context, spec models.JobTypeSpec) (string, error) {
	name := fmt.Sprintf("%s-%s", spec.TypeID, uuid.New().String()[:6])

	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: k.namespace,
			Labels: map[string]string{
				"app":  "worker-role",
				"type": spec.TypeID,
			},
		},
		Spec: batchv1.JobSpec{
			TTLSecondsAfterFinished: ptr(jobTTLSeconds),
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: map[string]string{
						"app":  "worker-role",
						"type": spec.TypeID,
					},
				},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyOnFailure,
					Containers: []corev1.Container{{
						Name:  "worker",
						Image: spec.Image,
						Env: []corev1.EnvVar{
							{Name: "BROKER_HOST", Value: k.brokerHost},
							{Name: "CONTROLLER_REPORT_URL", Value: k.reportURL},
							{Name: "JOB_NAME", Value: name},
							{Name: "JOB_TYPE", Value: spec.TypeID},
							{Name: "QUEUE_NAME", Value: spec.Queue},
						},
						VolumeMounts: []corev1.VolumeMount{{
							Name:      "logs",
							MountPath: "/logs",
						}},
					}},
					Volumes: []corev1.Volume{{
						Name: "logs",
						VolumeSource: corev1.VolumeSource{
							HostPath: &corev1.HostPathVolumeSource{Path: k.logsHostPath},
						},
					}},
				},
			},
		},
	}

	if spec.PullSecret != "" {
		job.Spec.Template.Spec.ImagePullSecrets = []corev1.LocalObjectReference{
			{Name: spec.PullSecret},
		}
	}

	if _, err := k.clientset.BatchV1().Jobs(k.namespace).Create(ctx, job, metav1.CreateOptions{}); err != nil {
		return "", fmt.Errorf("failed to create worker job %s: %w", name, err)
	}

	k.logger.Info().Str("job", name).Str("type", spec.TypeID).Str("queue", spec.Queue).Msg("Worker job launched")
	return name, nil
}

// DeleteWorkerJob removes the named job with background propagation so its
// pods are reaped without blocking the control loop.
func (k *KubernetesClient) DeleteWorkerJob(ctx context.Context, name string) error {
	propagation := metav1.DeletePropagationBackground
	err := k.clientset.BatchV1().Jobs(k.namespace).Delete(ctx, name, metav1.DeleteOptions{
		PropagationPolicy: &propagation,
	})
	if err != nil {
		return fmt.Errorf("failed to delete worker job %s: %w", name, err)
	}
	k.logger.Info().Str("job", name).Msg("Worker job deleted")
	return nil
}

// PodLogs returns the log tail of the first pod belonging to the named job.
// found is false when the job has no pods yet.
func (k *KubernetesClient) PodLogs(ctx context.Context, jobName string, sinceMinutes int) (string, bool, error) {
	pods, err := k.clientset.CoreV1().Pods(k.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: "job-name=" + jobName,
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to list pods for job %s: %w", jobName, err)
	}
	if len(pods.Items) == 0 {
		return "", false, nil
	}

	opts := &corev1.PodLogOptions{}
	if sinceMinutes > 0 {
		opts.SinceSeconds = ptr(int64(sinceMinutes) * 60)
	}

	req := k.clientset.CoreV1().Pods(k.namespace).GetLogs(pods.Items[0].Name, opts)
	stream, err := req.Stream(ctx)
	if err != nil {
		return "", false, fmt.Errorf("failed to stream logs for job %s: %w", jobName, err)
	}
	defer stream.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, stream); err != nil {
		return "", false, fmt.Errorf("failed to read logs for job %s: %w", jobName, err)
	}
	return buf.String(), true, nil
}

// ClusterInfo summarizes nodes, recent events and pods for the cluster view.
func (k *KubernetesClient) ClusterInfo(ctx context.Context) (*models.ClusterInfo, error) {
	info := &models.ClusterInfo{
		Nodes:  []models.NodeInfo{},
		Events: []models.EventInfo{},
		Pods:   []models.PodInfo{},
	}

	nodes, err := k.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	for i := range nodes.Items {
		info.Nodes = append(info.Nodes, observeNode(&nodes.Items[i]))
	}

	events, err := k.clientset.CoreV1().Events(k.namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	sort.SliceStable(events.Items, func(i, j int) bool {
		return events.Items[i].LastTimestamp.After(events.Items[j].LastTimestamp.Time)
	})
	for i := range events.Items {
		if i >= maxEvents {
			break
		}
		e := &events.Items[i]
		info.Events = append(info.Events, models.EventInfo{
			Type:    e.Type,
			Reason:  e.Reason,
			Message: e.Message,
			Object:  fmt.Sprintf("%s/%s", strings.ToLower(e.InvolvedObject.Kind), e.InvolvedObject.Name),
			Time:    e.LastTimestamp.Format("15:04:05"),
		})
	}

	pods, err := k.clientset.CoreV1().Pods(k.namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods: %w", err)
	}
	for i := range pods.Items {
		p := &pods.Items[i]
		restarts := 0
		for _, cs := range p.Status.ContainerStatuses {
			restarts += int(cs.RestartCount)
		}
		info.Pods = append(info.Pods, models.PodInfo{
			Name:     p.Name,
			Status:   string(p.Status.Phase),
			IP:       p.Status.PodIP,
			Node:     p.Spec.NodeName,
			Restarts: restarts,
		})
	}

	return info, nil
}

func observeNode(node *corev1.Node) models.NodeInfo {
	status := "NotReady"
	for _, cond := range node.Status.Conditions {
		if cond.Type == corev1.NodeReady && cond.Status == corev1.ConditionTrue {
			status = "Ready"
			break
		}
	}
	return models.NodeInfo{
		Name:   node.Name,
		Status: status,
		CPU:    node.Status.Capacity.Cpu().String(),
		Memory: node.Status.Capacity.Memory().String(),
		OS:     node.Status.NodeInfo.OSImage,
		Kernel: node.Status.NodeInfo.KernelVersion,
	}
}

func ptr[T any](v T) *T { return &v }
