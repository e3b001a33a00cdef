package kube

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/paddockdb/paddock/pkg/log"
)

// Client wraps a Kubernetes clientset with the PostgreSQL instance
// conventions: a StatefulSet named after the instance, a Service named
// <instance>-svc, a PersistentVolumeClaim named <instance>-pvc, and pods
// labeled instance=<name>.
type Client struct {
	clientset kubernetes.Interface
	logger    zerolog.Logger
}

// New connects to the cluster. Inside a pod the mounted service account is
// used; outside, the kubeconfig file (empty path means ~/.kube/config).
func New(kubeconfig string) (*Client, error) {
	cfg, err := loadConfig(kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("load kubernetes config: %w", err)
	}
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("create kubernetes client: %w", err)
	}
	return NewWithClientset(clientset), nil
}

// NewWithClientset wraps an existing clientset. Tests pass the fake.
func NewWithClientset(clientset kubernetes.Interface) *Client {
	return &Client{
		clientset: clientset,
		logger:    log.WithComponent("kube"),
	}
}

func loadConfig(kubeconfig string) (*rest.Config, error) {
	if cfg, err := rest.InClusterConfig(); err == nil {
		return cfg, nil
	}
	if kubeconfig == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		kubeconfig = filepath.Join(home, ".kube", "config")
	}
	return clientcmd.BuildConfigFromFlags("", kubeconfig)
}
