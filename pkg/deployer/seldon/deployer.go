// Package seldon implements the model deployer contract on top of Seldon
// Core: every deployed model is a SeldonDeployment custom resource, and the
// Kubernetes API server is the single source of truth for which model
// servers exist. Nothing is cached between calls.
package seldon

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/klog/v2"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/zenml-io/zenml-plugins/pkg/deployer"
	"github.com/zenml-io/zenml-plugins/pkg/storage"
)

// Flavor is the name this deployer registers under.
const Flavor = "seldon"

// Config is the operator-level configuration of the Seldon deployer, as
// opposed to the per-deployment ServiceConfig.
type Config struct {
	// Namespace is the Kubernetes namespace Seldon Core watches.
	Namespace string
	// BaseURL is the ingress URL prediction endpoints are exposed under.
	BaseURL string
	// SecretName optionally pins a pre-existing Kubernetes secret holding
	// artifact store credentials. When set, the deployer neither generates
	// nor garbage-collects credential secrets.
	SecretName string
}

func (c Config) validate() error {
	if c.Namespace == "" {
		return fmt.Errorf("seldon deployer requires a namespace")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("seldon deployer requires a base URL")
	}
	return nil
}

// Deployer reconciles desired model deployments against the SeldonDeployment
// resources that exist on the cluster.
type Deployer struct {
	config Config
	client *Client
	store  storage.ArtifactStore
}

var _ deployer.ModelDeployer = (*Deployer)(nil)

// New builds a Seldon deployer. store is the stack's active artifact store;
// its credentials are converted into the secret the Seldon storage
// initializer uses to download model artifacts.
func New(config Config, kube client.Client, store storage.ArtifactStore) (*Deployer, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("seldon deployer requires an artifact store")
	}
	return &Deployer{
		config: config,
		client: NewClient(kube, config.Namespace, config.BaseURL),
		store:  store,
	}, nil
}

// DeployModel creates a new model server for config, or, with replace set,
// reuses the most recent equivalent one. Two servers are equivalent when
// they share pipeline name, pipeline step name and model name; updating the
// newest equivalent in place keeps its prediction URL stable across model
// versions while older equivalents are stopped best-effort.
func (d *Deployer) DeployModel(ctx context.Context, config deployer.ServiceConfig, replace bool, timeout time.Duration) (*deployer.Service, error) {
	var svc *Service
	if replace {
		candidates, err := d.findServices(ctx, deployer.FindCriteria{
			PipelineName:     config.PipelineName,
			PipelineStepName: config.PipelineStepName,
			ModelName:        config.ModelName,
		})
		if err != nil {
			return nil, err
		}
		for _, candidate := range candidates {
			if svc == nil {
				// candidates are sorted newest first; keep the most
				// recently created one as the update target
				svc = candidate
				continue
			}
			// stop superseded servers without waiting; a failed stop must
			// not abort the deploy
			if err := candidate.Stop(ctx, 0, false); err != nil {
				klog.Warningf("Failed to stop superseded model server %s: %v", candidate.UID, err)
			}
		}
	}

	if config.SecretName == "" {
		name, err := d.ensureCredentialSecret(ctx)
		if err != nil {
			return nil, err
		}
		config.SecretName = name
	}

	if svc != nil {
		svc.Update(config)
		klog.V(1).Infof("Updating existing Seldon model server %s in place", svc.UID)
	} else {
		svc = NewService(d.client, config)
		klog.V(1).Infof("Creating new Seldon model server %s", svc.UID)
	}

	if err := svc.Start(ctx, timeout); err != nil {
		return nil, err
	}
	return svc.Describe(), nil
}

// FindModelServer returns the model servers matching criteria, most recently
// created first; servers with an unknown creation time sort last. With
// criteria.Running set, servers not currently observed as serving are
// filtered out, preserving order.
func (d *Deployer) FindModelServer(ctx context.Context, criteria deployer.FindCriteria) ([]*deployer.Service, error) {
	services, err := d.findServices(ctx, criteria)
	if err != nil {
		return nil, err
	}
	result := make([]*deployer.Service, 0, len(services))
	for _, svc := range services {
		snapshot := svc.Describe()
		if criteria.Running && !snapshot.IsRunning() {
			continue
		}
		result = append(result, snapshot)
	}
	return result, nil
}

// StopModelServer always fails: stopping a server out-of-band would bypass
// the equivalence bookkeeping of DeployModel. Delete it instead.
func (d *Deployer) StopModelServer(ctx context.Context, uid uuid.UUID, timeout time.Duration, force bool) error {
	return fmt.Errorf("stopping Seldon model servers is not supported, delete the model server instead: %w", deployer.ErrNotSupported)
}

// StartModelServer always fails: a stopped server must be redeployed via
// DeployModel.
func (d *Deployer) StartModelServer(ctx context.Context, uid uuid.UUID, timeout time.Duration) error {
	return fmt.Errorf("starting Seldon model servers is not supported, redeploy the model instead: %w", deployer.ErrNotSupported)
}

// DeleteModelServer tears down the server with the given UID and then drops
// its generated credential secret if no other server still references it.
// An unknown UID is a silent no-op.
func (d *Deployer) DeleteModelServer(ctx context.Context, uid uuid.UUID, timeout time.Duration, force bool) error {
	services, err := d.findServices(ctx, deployer.FindCriteria{UID: &uid})
	if err != nil {
		return err
	}
	if len(services) == 0 {
		return nil
	}
	svc := services[0]
	if err := svc.Stop(ctx, timeout, force); err != nil {
		return err
	}
	if name := svc.Config.SecretName; name != "" {
		d.cleanupCredentialSecret(ctx, name)
	}
	return nil
}

// findServices is the label-based query behind find, deploy and delete. The
// returned services are ordered by descending creation time; a zero creation
// time sorts after every known one.
func (d *Deployer) findServices(ctx context.Context, criteria deployer.FindCriteria) ([]*Service, error) {
	deployments, err := d.client.FindDeployments(ctx, criteriaLabels(criteria))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(deployments, func(i, j int) bool {
		return deployments[j].CreationTimestamp.Time.Before(deployments[i].CreationTimestamp.Time)
	})
	services := make([]*Service, 0, len(deployments))
	for i := range deployments {
		svc, err := ServiceFromDeployment(d.client, &deployments[i])
		if err != nil {
			// not one of ours, or a hand-edited resource; skip it rather
			// than failing the whole query
			klog.Warningf("Skipping SeldonDeployment %s: %v", deployments[i].Name, err)
			continue
		}
		services = append(services, svc)
	}
	return services, nil
}

// ensureCredentialSecret resolves the secret deployments reference when
// their config does not pin one: either the operator-configured secret, or
// one generated from the artifact store credentials.
func (d *Deployer) ensureCredentialSecret(ctx context.Context) (string, error) {
	if d.config.SecretName != "" {
		return d.config.SecretName, nil
	}
	data, err := credentialData(ctx, d.store)
	if err != nil {
		return "", err
	}
	name := credentialSecretName(d.store)
	if err := d.client.CreateOrUpdateSecret(ctx, name, data); err != nil {
		return "", err
	}
	return name, nil
}

// cleanupCredentialSecret deletes a generated credential secret once no
// remaining model server references it. Only secrets this deployer generated
// are candidates: user-pinned and operator-configured secrets carry someone
// else's credentials and are never touched. Failures are logged, not
// returned: secret cleanup must not mask the outcome of the delete that
// triggered it.
func (d *Deployer) cleanupCredentialSecret(ctx context.Context, name string) {
	if name == d.config.SecretName || !strings.HasPrefix(name, credentialSecretPrefix) {
		return
	}
	secret, err := d.client.GetSecret(ctx, name)
	if err != nil {
		if !apierrors.IsNotFound(err) {
			klog.Warningf("Failed to inspect credential secret %s before cleanup: %v", name, err)
		}
		return
	}
	if secret.Labels[labelManagedBy] != managedByValue {
		return
	}
	services, err := d.findServices(ctx, deployer.FindCriteria{})
	if err != nil {
		klog.Warningf("Failed to check remaining model servers before deleting secret %s: %v", name, err)
		return
	}
	for _, svc := range services {
		if svc.Config.SecretName == name {
			return
		}
	}
	if err := d.client.DeleteSecret(ctx, name); err != nil {
		klog.Warningf("Failed to delete orphaned credential secret %s: %v", name, err)
	}
}
