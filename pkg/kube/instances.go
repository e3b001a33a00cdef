package kube

import (
	"context"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// regionLabels are consulted in order when reading the cluster's region
// from node metadata.
var regionLabels = []string{
	"topology.kubernetes.io/region",
	"failure-domain.beta.kubernetes.io/region",
}

// StatefulSetExists reports whether an instance's StatefulSet is present.
func (c *Client) StatefulSetExists(ctx context.Context, namespace, instance string) (bool, error) {
	_, err := c.clientset.AppsV1().StatefulSets(namespace).Get(ctx, instance, metav1.GetOptions{})
	if err == nil {
		return true, nil
	}
	if apierrors.IsNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("check statefulset %s: %w", instance, err)
}

// Deploy creates the PVC, StatefulSet and Service for an instance. Each
// create tolerates an already-existing resource so a replayed deploy that
// half-succeeded converges instead of failing.
func (c *Client) Deploy(ctx context.Context, spec DeploySpec) error {
	var pvc corev1.PersistentVolumeClaim
	if err := renderManifest(pvcTemplate, spec, &pvc); err != nil {
		return err
	}
	var sts appsv1.StatefulSet
	if err := renderManifest(statefulSetTemplate, spec, &sts); err != nil {
		return err
	}
	var svc corev1.Service
	if err := renderManifest(serviceTemplate, spec, &svc); err != nil {
		return err
	}

	logger := c.logger.With().Str("instance", spec.Name).Str("namespace", spec.Namespace).Logger()

	if _, err := c.clientset.CoreV1().PersistentVolumeClaims(spec.Namespace).Create(ctx, &pvc, metav1.CreateOptions{}); err != nil {
		if !apierrors.IsAlreadyExists(err) {
			return fmt.Errorf("create pvc %s: %w", pvc.Name, err)
		}
	}
	logger.Info().Str("pvc", pvc.Name).Msg("PersistentVolumeClaim created")

	if _, err := c.clientset.AppsV1().StatefulSets(spec.Namespace).Create(ctx, &sts, metav1.CreateOptions{}); err != nil {
		if !apierrors.IsAlreadyExists(err) {
			return fmt.Errorf("create statefulset %s: %w", sts.Name, err)
		}
	}
	logger.Info().Str("image", "postgres:"+spec.PostgresVersion).Msg("StatefulSet created")

	if _, err := c.clientset.CoreV1().Services(spec.Namespace).Create(ctx, &svc, metav1.CreateOptions{}); err != nil {
		if !apierrors.IsAlreadyExists(err) {
			return fmt.Errorf("create service %s: %w", svc.Name, err)
		}
	}
	logger.Info().Str("service", svc.Name).Str("type", spec.ServiceType()).Msg("Service created")

	return nil
}

// DeleteService removes an instance's Service, reporting whether it
// existed. A missing Service is not an error.
func (c *Client) DeleteService(ctx context.Context, namespace, instance string) (bool, error) {
	err := c.clientset.CoreV1().Services(namespace).Delete(ctx, ServiceName(instance), metav1.DeleteOptions{})
	return deleteOutcome("service", ServiceName(instance), err)
}

// DeleteStatefulSet removes an instance's StatefulSet, reporting whether
// it existed.
func (c *Client) DeleteStatefulSet(ctx context.Context, namespace, instance string) (bool, error) {
	err := c.clientset.AppsV1().StatefulSets(namespace).Delete(ctx, instance, metav1.DeleteOptions{})
	return deleteOutcome("statefulset", instance, err)
}

// DeletePVC removes an instance's PersistentVolumeClaim, reporting whether
// it existed.
func (c *Client) DeletePVC(ctx context.Context, namespace, instance string) (bool, error) {
	err := c.clientset.CoreV1().PersistentVolumeClaims(namespace).Delete(ctx, PVCName(instance), metav1.DeleteOptions{})
	return deleteOutcome("pvc", PVCName(instance), err)
}

func deleteOutcome(kind, name string, err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if apierrors.IsNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("delete %s %s: %w", kind, name, err)
}

// PodStatus looks up the instance's pod by label and reports its phase and
// whether the Ready condition is true. A missing pod reports phase
// "NotFound". It checks once; callers own any polling.
func (c *Client) PodStatus(ctx context.Context, namespace, instance string) (phase string, ready bool, err error) {
	pods, err := c.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: InstanceLabel + "=" + instance,
	})
	if err != nil {
		return "", false, fmt.Errorf("list pods for %s: %w", instance, err)
	}
	if len(pods.Items) == 0 {
		return "NotFound", false, nil
	}

	pod := pods.Items[0]
	phase = string(pod.Status.Phase)
	if phase == "" {
		phase = "Unknown"
	}
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodReady && cond.Status == corev1.ConditionTrue {
			return phase, true, nil
		}
	}
	return phase, false, nil
}

// ServiceExternalIP returns the LoadBalancer ingress IP of an instance's
// Service, or "" while the cloud provider has not assigned one yet. It
// checks once; callers own any polling.
func (c *Client) ServiceExternalIP(ctx context.Context, namespace, instance string) (string, error) {
	svc, err := c.clientset.CoreV1().Services(namespace).Get(ctx, ServiceName(instance), metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("get service %s: %w", ServiceName(instance), err)
	}
	for _, ingress := range svc.Status.LoadBalancer.Ingress {
		if ingress.IP != "" {
			return ingress.IP, nil
		}
	}
	return "", nil
}

// Region reads the cluster's cloud region from node labels, preferring the
// topology.kubernetes.io form over the deprecated failure-domain one.
func (c *Client) Region(ctx context.Context) (string, error) {
	nodes, err := c.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{Limit: 1})
	if err != nil {
		return "", fmt.Errorf("list nodes: %w", err)
	}
	for _, node := range nodes.Items {
		for _, label := range regionLabels {
			if region := node.Labels[label]; region != "" {
				return region, nil
			}
		}
	}
	return "", fmt.Errorf("region label not found on cluster nodes")
}
