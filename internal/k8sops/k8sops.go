// Package k8sops backs the restart_service and kill_duplicate_process heal
// actions. It mirrors
// agents/manager/internal/beam/kube.go's in-cluster-config-then-kubeconfig
// resolution, adding one more degraded rung the teacher's dyad-exec code
// didn't need: when neither is available (KLoROS running as a bare
// process, not a pod), operations fall back to local OS process signaling
// so the action can still be best-effort idempotent per spec §3.
package k8sops

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// ErrNoCluster marks the degraded, non-Kubernetes path.
var ErrNoCluster = errors.New("k8sops: no cluster config available")

// Client wraps a Kubernetes clientset, or nil when no cluster is reachable.
type Client struct {
	clientset *kubernetes.Clientset
	namespace string
}

// New resolves a cluster client and its namespace, returning
// (nil, ErrNoCluster) rather than a wrapped error when no cluster config
// resolves at all, so callers fall back to local process ops (spec §3's
// best-effort-idempotent contract) instead of failing the heal action
// outright. Namespace is read up front so a client is only ever
// constructed once its namespace is known.
func New() (*Client, error) {
	ns := strings.TrimSpace(os.Getenv("KLR_NAMESPACE"))
	if ns == "" {
		ns = "kloros"
	}
	cfg, err := resolveRestConfig()
	if err != nil {
		return nil, ErrNoCluster
	}
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("k8sops: build clientset: %w", err)
	}
	return &Client{clientset: clientset, namespace: ns}, nil
}

// resolveRestConfig tries the in-cluster service-account config first,
// since that's the common case for a pod-deployed KLoROS, then falls back
// to a kubeconfig file: KUBECONFIG if set, else ~/.kube/config.
func resolveRestConfig() (*rest.Config, error) {
	if cfg, err := rest.InClusterConfig(); err == nil {
		return cfg, nil
	}
	return clientcmd.BuildConfigFromFlags("", kubeconfigPath())
}

func kubeconfigPath() string {
	if path := strings.TrimSpace(os.Getenv("KUBECONFIG")); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, ".kube", "config")
}

// RestartDeploymentRollout bumps a rollout-restart annotation on the
// Deployment's pod template, the same "patch and let the controller
// reconcile" approach client-go users take instead of deleting pods
// directly.
func (c *Client) RestartDeploymentRollout(ctx context.Context, name string) error {
	deployments := c.clientset.AppsV1().Deployments(c.namespace)
	dep, err := deployments.Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("k8sops: get deployment %s: %w", name, err)
	}
	if dep.Spec.Template.Annotations == nil {
		dep.Spec.Template.Annotations = map[string]string{}
	}
	dep.Spec.Template.Annotations["kloros.ai/restartedAt"] = metav1.Now().Format(metav1FormatLayout)
	_, err = deployments.Update(ctx, dep, metav1.UpdateOptions{})
	return err
}

const metav1FormatLayout = "2006-01-02T15:04:05Z07:00"

// DeletePodsByLabel deletes every pod matching labelSelector in the
// configured namespace, returning how many were deleted; used by
// kill_duplicate_process to evict misbehaving pods.
func (c *Client) DeletePodsByLabel(ctx context.Context, labelSelector string) (int, error) {
	pods := c.clientset.CoreV1().Pods(c.namespace)
	list, err := pods.List(ctx, metav1.ListOptions{LabelSelector: labelSelector})
	if err != nil {
		return 0, fmt.Errorf("k8sops: list pods: %w", err)
	}
	deleted := 0
	for _, pod := range list.Items {
		if err := pods.Delete(ctx, pod.Name, metav1.DeleteOptions{}); err != nil {
			return deleted, fmt.Errorf("k8sops: delete pod %s: %w", pod.Name, err)
		}
		deleted++
	}
	return deleted, nil
}

// PodNamesByLabel lists the names of running pods matching labelSelector
// without deleting them; kill_duplicate_process uses it to check whether
// more than one such pod is running before deleting any.
func (c *Client) PodNamesByLabel(ctx context.Context, labelSelector string) ([]string, error) {
	pods := c.clientset.CoreV1().Pods(c.namespace)
	list, err := pods.List(ctx, metav1.ListOptions{LabelSelector: labelSelector})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(list.Items))
	for _, pod := range list.Items {
		if pod.Status.Phase == corev1.PodRunning {
			names = append(names, pod.Name)
		}
	}
	return names, nil
}
