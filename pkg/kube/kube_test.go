package kube

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func testSpec() DeploySpec {
	return DeploySpec{
		Name:            "mydb-a1b2c3d4",
		Namespace:       "paddock",
		Password:        `p@ss"word`,
		PostgresVersion: "18",
		StorageSizeGB:   10,
		UseLoadBalancer: true,
		DNSLabel:        "mydb",
	}
}

func TestDeployCreatesResources(t *testing.T) {
	ctx := context.Background()
	clientset := fake.NewSimpleClientset()
	c := NewWithClientset(clientset)
	spec := testSpec()

	require.NoError(t, c.Deploy(ctx, spec))

	pvc, err := clientset.CoreV1().PersistentVolumeClaims("paddock").Get(ctx, "mydb-a1b2c3d4-pvc", metav1.GetOptions{})
	require.NoError(t, err)
	storage := pvc.Spec.Resources.Requests[corev1.ResourceStorage]
	assert.Equal(t, "10Gi", storage.String())
	assert.Equal(t, "mydb-a1b2c3d4", pvc.Labels[InstanceLabel])

	sts, err := clientset.AppsV1().StatefulSets("paddock").Get(ctx, "mydb-a1b2c3d4", metav1.GetOptions{})
	require.NoError(t, err)
	require.Len(t, sts.Spec.Template.Spec.Containers, 1)
	container := sts.Spec.Template.Spec.Containers[0]
	assert.Equal(t, "postgres:18", container.Image)
	assert.Equal(t, "mydb-a1b2c3d4", sts.Spec.Selector.MatchLabels[InstanceLabel])
	assert.Equal(t, int32(1), *sts.Spec.Replicas)

	// the quoted password survives template rendering intact
	var password string
	for _, env := range container.Env {
		if env.Name == "POSTGRES_PASSWORD" {
			password = env.Value
		}
	}
	assert.Equal(t, `p@ss"word`, password)

	svc, err := clientset.CoreV1().Services("paddock").Get(ctx, "mydb-a1b2c3d4-svc", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, corev1.ServiceTypeLoadBalancer, svc.Spec.Type)
	assert.Equal(t, "mydb", svc.Annotations["service.beta.kubernetes.io/azure-dns-label-name"])
	require.Len(t, svc.Spec.Ports, 1)
	assert.Equal(t, int32(5432), svc.Spec.Ports[0].Port)
}

func TestDeployClusterIP(t *testing.T) {
	ctx := context.Background()
	clientset := fake.NewSimpleClientset()
	c := NewWithClientset(clientset)

	spec := testSpec()
	spec.UseLoadBalancer = false
	spec.DNSLabel = ""
	require.NoError(t, c.Deploy(ctx, spec))

	svc, err := clientset.CoreV1().Services("paddock").Get(ctx, "mydb-a1b2c3d4-svc", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, corev1.ServiceTypeClusterIP, svc.Spec.Type)
	_, hasAnnotation := svc.Annotations["service.beta.kubernetes.io/azure-dns-label-name"]
	assert.False(t, hasAnnotation)
}

func TestDeployToleratesExisting(t *testing.T) {
	ctx := context.Background()
	clientset := fake.NewSimpleClientset()
	c := NewWithClientset(clientset)
	spec := testSpec()

	// first deploy half-succeeded, a replay must still converge
	require.NoError(t, c.Deploy(ctx, spec))
	require.NoError(t, c.Deploy(ctx, spec))
}

func TestStatefulSetExists(t *testing.T) {
	ctx := context.Background()
	clientset := fake.NewSimpleClientset()
	c := NewWithClientset(clientset)

	exists, err := c.StatefulSetExists(ctx, "paddock", "mydb-a1b2c3d4")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, c.Deploy(ctx, testSpec()))

	exists, err = c.StatefulSetExists(ctx, "paddock", "mydb-a1b2c3d4")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestDeleteReportsExistence(t *testing.T) {
	ctx := context.Background()
	clientset := fake.NewSimpleClientset()
	c := NewWithClientset(clientset)
	require.NoError(t, c.Deploy(ctx, testSpec()))

	tests := []struct {
		name string
		del  func() (bool, error)
	}{
		{"service", func() (bool, error) { return c.DeleteService(ctx, "paddock", "mydb-a1b2c3d4") }},
		{"statefulset", func() (bool, error) { return c.DeleteStatefulSet(ctx, "paddock", "mydb-a1b2c3d4") }},
		{"pvc", func() (bool, error) { return c.DeletePVC(ctx, "paddock", "mydb-a1b2c3d4") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			existed, err := tt.del()
			require.NoError(t, err)
			assert.True(t, existed)

			// second delete finds nothing and is not an error
			existed, err = tt.del()
			require.NoError(t, err)
			assert.False(t, existed)
		})
	}
}

func TestPodStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("no pod", func(t *testing.T) {
		c := NewWithClientset(fake.NewSimpleClientset())
		phase, ready, err := c.PodStatus(ctx, "paddock", "mydb-a1b2c3d4")
		require.NoError(t, err)
		assert.Equal(t, "NotFound", phase)
		assert.False(t, ready)
	})

	t.Run("pending pod", func(t *testing.T) {
		pod := instancePod("mydb-a1b2c3d4", corev1.PodPending, false)
		c := NewWithClientset(fake.NewSimpleClientset(pod))
		phase, ready, err := c.PodStatus(ctx, "paddock", "mydb-a1b2c3d4")
		require.NoError(t, err)
		assert.Equal(t, "Pending", phase)
		assert.False(t, ready)
	})

	t.Run("ready pod", func(t *testing.T) {
		pod := instancePod("mydb-a1b2c3d4", corev1.PodRunning, true)
		c := NewWithClientset(fake.NewSimpleClientset(pod))
		phase, ready, err := c.PodStatus(ctx, "paddock", "mydb-a1b2c3d4")
		require.NoError(t, err)
		assert.Equal(t, "Running", phase)
		assert.True(t, ready)
	})
}

func TestServiceExternalIP(t *testing.T) {
	ctx := context.Background()
	clientset := fake.NewSimpleClientset()
	c := NewWithClientset(clientset)
	require.NoError(t, c.Deploy(ctx, testSpec()))

	ip, err := c.ServiceExternalIP(ctx, "paddock", "mydb-a1b2c3d4")
	require.NoError(t, err)
	assert.Empty(t, ip, "no ingress assigned yet")

	svc, err := clientset.CoreV1().Services("paddock").Get(ctx, "mydb-a1b2c3d4-svc", metav1.GetOptions{})
	require.NoError(t, err)
	svc.Status.LoadBalancer.Ingress = []corev1.LoadBalancerIngress{{IP: "20.1.2.3"}}
	_, err = clientset.CoreV1().Services("paddock").UpdateStatus(ctx, svc, metav1.UpdateOptions{})
	require.NoError(t, err)

	ip, err = c.ServiceExternalIP(ctx, "paddock", "mydb-a1b2c3d4")
	require.NoError(t, err)
	assert.Equal(t, "20.1.2.3", ip)
}

func TestRegion(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		labels     map[string]string
		want       string
		wantErr    bool
	}{
		{
			name:   "topology label",
			labels: map[string]string{"topology.kubernetes.io/region": "westus3"},
			want:   "westus3",
		},
		{
			name:   "legacy label fallback",
			labels: map[string]string{"failure-domain.beta.kubernetes.io/region": "eastus"},
			want:   "eastus",
		},
		{
			name: "topology preferred over legacy",
			labels: map[string]string{
				"topology.kubernetes.io/region":            "westus3",
				"failure-domain.beta.kubernetes.io/region": "eastus",
			},
			want: "westus3",
		},
		{
			name:    "no region labels",
			labels:  map[string]string{"kubernetes.io/hostname": "node-1"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := &corev1.Node{
				ObjectMeta: metav1.ObjectMeta{Name: "node-1", Labels: tt.labels},
			}
			c := NewWithClientset(fake.NewSimpleClientset(node))

			region, err := c.Region(ctx)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, region)
		})
	}
}

func TestManifestRendering(t *testing.T) {
	var sts appsv1.StatefulSet
	require.NoError(t, renderManifest(statefulSetTemplate, testSpec(), &sts))
	assert.Equal(t, "mydb-a1b2c3d4-svc", sts.Spec.ServiceName)
	require.NotNil(t, sts.Spec.Template.Spec.Containers[0].ReadinessProbe)
}

func instancePod(instance string, phase corev1.PodPhase, ready bool) *corev1.Pod {
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      instance + "-0",
			Namespace: "paddock",
			Labels:    map[string]string{InstanceLabel: instance},
		},
		Status: corev1.PodStatus{Phase: phase},
	}
	if ready {
		pod.Status.Conditions = []corev1.PodCondition{
			{Type: corev1.PodReady, Status: corev1.ConditionTrue},
		}
	}
	return pod
}
