package seldon

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	machinelearningv1 "github.com/zenml-io/zenml-plugins/api/v1"
)

// Client wraps the Kubernetes API access the deployer needs: label-based
// SeldonDeployment queries, the deployment lifecycle primitives, and the
// credential secrets consumed by the Seldon Core storage initializer.
type Client struct {
	kube      client.Client
	namespace string
	baseURL   string
}

// NewClient builds a Client scoped to the namespace Seldon Core watches.
// baseURL is the ingress URL prediction endpoints are exposed under.
func NewClient(kube client.Client, namespace, baseURL string) *Client {
	return &Client{kube: kube, namespace: namespace, baseURL: baseURL}
}

// FindDeployments lists the SeldonDeployments carrying a superset of the
// given labels, in the API server's order.
func (c *Client) FindDeployments(ctx context.Context, selector map[string]string) ([]machinelearningv1.SeldonDeployment, error) {
	list := &machinelearningv1.SeldonDeploymentList{}
	err := c.kube.List(ctx, list, client.InNamespace(c.namespace), client.MatchingLabels(selector))
	if err != nil {
		return nil, fmt.Errorf("listing SeldonDeployments: %w", err)
	}
	return list.Items, nil
}

func (c *Client) GetDeployment(ctx context.Context, name string) (*machinelearningv1.SeldonDeployment, error) {
	dep := &machinelearningv1.SeldonDeployment{}
	if err := c.kube.Get(ctx, types.NamespacedName{Namespace: c.namespace, Name: name}, dep); err != nil {
		return nil, err
	}
	return dep, nil
}

func (c *Client) CreateDeployment(ctx context.Context, dep *machinelearningv1.SeldonDeployment) error {
	dep.Namespace = c.namespace
	if err := c.kube.Create(ctx, dep); err != nil {
		return fmt.Errorf("creating SeldonDeployment %s: %w", dep.Name, err)
	}
	return nil
}

// UpdateDeployment applies the desired spec, labels and annotations onto the
// stored object, preserving its identity and creation time.
func (c *Client) UpdateDeployment(ctx context.Context, dep *machinelearningv1.SeldonDeployment) error {
	existing, err := c.GetDeployment(ctx, dep.Name)
	if err != nil {
		return fmt.Errorf("fetching SeldonDeployment %s for update: %w", dep.Name, err)
	}
	existing.Spec = dep.Spec
	existing.Labels = dep.Labels
	existing.Annotations = dep.Annotations
	if err := c.kube.Update(ctx, existing); err != nil {
		return fmt.Errorf("updating SeldonDeployment %s: %w", dep.Name, err)
	}
	return nil
}

// DeleteDeployment removes a SeldonDeployment; a missing one is a no-op.
func (c *Client) DeleteDeployment(ctx context.Context, name string) error {
	dep := &machinelearningv1.SeldonDeployment{}
	dep.Namespace = c.namespace
	dep.Name = name
	if err := c.kube.Delete(ctx, dep); err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("deleting SeldonDeployment %s: %w", name, err)
	}
	return nil
}

// CreateOrUpdateSecret writes an Opaque secret holding artifact store
// credentials under the given name, overwriting existing data.
func (c *Client) CreateOrUpdateSecret(ctx context.Context, name string, data map[string]string) error {
	encoded := make(map[string][]byte, len(data))
	for key, value := range data {
		encoded[key] = []byte(value)
	}
	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Namespace: c.namespace,
			Name:      name,
			Labels:    map[string]string{labelManagedBy: managedByValue},
		},
		Type: corev1.SecretTypeOpaque,
		Data: encoded,
	}
	err := c.kube.Create(ctx, secret)
	if apierrors.IsAlreadyExists(err) {
		existing := &corev1.Secret{}
		if err := c.kube.Get(ctx, types.NamespacedName{Namespace: c.namespace, Name: name}, existing); err != nil {
			return fmt.Errorf("fetching secret %s for update: %w", name, err)
		}
		existing.Data = encoded
		if err := c.kube.Update(ctx, existing); err != nil {
			return fmt.Errorf("updating secret %s: %w", name, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("creating secret %s: %w", name, err)
	}
	return nil
}

// GetSecret fetches a secret by name.
func (c *Client) GetSecret(ctx context.Context, name string) (*corev1.Secret, error) {
	secret := &corev1.Secret{}
	if err := c.kube.Get(ctx, types.NamespacedName{Namespace: c.namespace, Name: name}, secret); err != nil {
		return nil, err
	}
	return secret, nil
}

// DeleteSecret removes a credential secret; a missing one is a no-op.
func (c *Client) DeleteSecret(ctx context.Context, name string) error {
	secret := &corev1.Secret{}
	secret.Namespace = c.namespace
	secret.Name = name
	if err := c.kube.Delete(ctx, secret); err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("deleting secret %s: %w", name, err)
	}
	return nil
}
