package kube

import (
	"context"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	meta "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/retry"
)

// Dispatcher creates Jobs in one namespace.
type Dispatcher struct {
	client    kubernetes.Interface
	namespace string
}

// NewDispatcher loads kubeconfig (empty means the default home file).
func NewDispatcher(kubeconfig, namespace string) (*Dispatcher, error) {
	if kubeconfig == "" {
		kubeconfig = clientcmd.RecommendedHomeFile
	}
	cfg, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("loading kubeconfig: %w", err)
	}
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("building clientset: %w", err)
	}
	return NewDispatcherForClient(clientset, namespace), nil
}

// NewDispatcherForClient uses an existing client.
func NewDispatcherForClient(client kubernetes.Interface, namespace string) *Dispatcher {
	return &Dispatcher{client: client, namespace: namespace}
}

// Dispatch creates the Job for opts. A Job that already exists is left in
// place and reported as created == false.
func (d *Dispatcher) Dispatch(ctx context.Context, opts JobOptions) (created bool, err error) {
	opts.Namespace = d.namespace
	job := BuildJob(opts)
	err = retry.RetryOnConflict(retry.DefaultRetry, func() error {
		_, err := d.client.BatchV1().Jobs(d.namespace).Create(ctx, job, meta.CreateOptions{})
		return err
	})
	switch {
	case err == nil:
		return true, nil
	case apierrors.IsAlreadyExists(err):
		return false, nil
	}
	return false, fmt.Errorf("create job %s: %w", opts.Name, err)
}
