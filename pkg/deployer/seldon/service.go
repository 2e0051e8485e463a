package seldon

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"

	machinelearningv1 "github.com/zenml-io/zenml-plugins/api/v1"
	"github.com/zenml-io/zenml-plugins/pkg/deployer"
)

const (
	deploymentNamePrefix = "zenml-"
	defaultPredictorName = "default"

	statusPollInterval = 2 * time.Second
)

// Service tracks one SeldonDeployment owned by the deployer. The UID is
// minted once at creation and survives in-place updates; the Kubernetes
// resource name is derived from it.
type Service struct {
	UID     uuid.UUID
	Config  deployer.ServiceConfig
	Created time.Time

	State         deployer.ServiceState
	StateMessage  string
	PredictionURL string

	client *Client
}

// NewService binds a fresh service identity to config. Nothing is created
// on the platform until Start is called.
func NewService(client *Client, config deployer.ServiceConfig) *Service {
	return &Service{
		UID:    uuid.New(),
		Config: config,
		State:  deployer.ServiceStatePending,
		client: client,
	}
}

// ServiceFromDeployment reconstructs the service a SeldonDeployment was
// created from, using the identity label and the config annotation.
func ServiceFromDeployment(client *Client, dep *machinelearningv1.SeldonDeployment) (*Service, error) {
	uid, err := uuid.Parse(dep.Labels[labelServiceUID])
	if err != nil {
		return nil, fmt.Errorf("SeldonDeployment %s carries no parsable service UID: %w", dep.Name, err)
	}
	svc := &Service{
		UID:     uid,
		Created: dep.CreationTimestamp.Time,
		client:  client,
	}
	if raw := dep.Annotations[annotationServiceConfig]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &svc.Config); err != nil {
			return nil, fmt.Errorf("SeldonDeployment %s carries a malformed service config: %w", dep.Name, err)
		}
	}
	svc.observe(dep)
	return svc, nil
}

func (s *Service) name() string {
	return deploymentNamePrefix + s.UID.String()
}

func (s *Service) predictionURL() string {
	return fmt.Sprintf("%s/seldon/%s/%s/api/v1.0/predictions", s.client.baseURL, s.client.namespace, s.name())
}

// Update swaps in a new desired config. The service identity and creation
// time are untouched; the platform sees the change on the next Start.
func (s *Service) Update(config deployer.ServiceConfig) {
	s.Config = config
}

// Start submits the desired deployment, creating or updating as needed, and
// waits for readiness. timeout 0 returns right after submission.
func (s *Service) Start(ctx context.Context, timeout time.Duration) error {
	desired := s.buildDeployment()
	_, err := s.client.GetDeployment(ctx, s.name())
	switch {
	case apierrors.IsNotFound(err):
		if err := s.client.CreateDeployment(ctx, desired); err != nil {
			return fmt.Errorf("provisioning model server %s: %w", s.UID, err)
		}
		// not every client echoes the server-stamped creation time back on
		// the created object
		s.Created = desired.CreationTimestamp.Time
		if s.Created.IsZero() {
			s.Created = time.Now()
		}
	case err != nil:
		return fmt.Errorf("checking model server %s: %w", s.UID, err)
	default:
		if err := s.client.UpdateDeployment(ctx, desired); err != nil {
			return fmt.Errorf("provisioning model server %s: %w", s.UID, err)
		}
	}
	s.State = deployer.ServiceStatePending
	s.StateMessage = ""
	if timeout == 0 {
		return nil
	}
	return s.awaitReady(ctx, timeout)
}

func (s *Service) awaitReady(ctx context.Context, timeout time.Duration) error {
	err := wait.PollUntilContextTimeout(ctx, statusPollInterval, timeout, true,
		func(ctx context.Context) (bool, error) {
			dep, err := s.client.GetDeployment(ctx, s.name())
			if apierrors.IsNotFound(err) {
				return false, nil
			}
			if err != nil {
				return false, err
			}
			if dep.IsFailed() {
				return false, fmt.Errorf("model server %s failed to provision: %s", s.UID, dep.Status.Description)
			}
			s.observe(dep)
			return dep.IsAvailable(), nil
		})
	if wait.Interrupted(err) {
		if ctx.Err() != nil {
			return fmt.Errorf("waiting for model server %s: %w", s.UID, ctx.Err())
		}
		return fmt.Errorf("model server %s not ready after %s: %w", s.UID, timeout, deployer.ErrTimedOut)
	}
	return err
}

// Stop tears down the remote deployment. force (or timeout 0) skips waiting
// for the resource to be gone.
func (s *Service) Stop(ctx context.Context, timeout time.Duration, force bool) error {
	if err := s.client.DeleteDeployment(ctx, s.name()); err != nil {
		return fmt.Errorf("deprovisioning model server %s: %w", s.UID, err)
	}
	s.State = deployer.ServiceStateInactive
	s.StateMessage = ""
	s.PredictionURL = ""
	if timeout == 0 || force {
		return nil
	}
	err := wait.PollUntilContextTimeout(ctx, statusPollInterval, timeout, true,
		func(ctx context.Context) (bool, error) {
			_, err := s.client.GetDeployment(ctx, s.name())
			if apierrors.IsNotFound(err) {
				return true, nil
			}
			return false, err
		})
	if wait.Interrupted(err) {
		if ctx.Err() != nil {
			return fmt.Errorf("waiting for model server %s to terminate: %w", s.UID, ctx.Err())
		}
		return fmt.Errorf("model server %s still terminating after %s: %w", s.UID, timeout, deployer.ErrTimedOut)
	}
	return err
}

// Refresh re-reads the remote deployment and updates the observed state. A
// missing deployment maps to the inactive state.
func (s *Service) Refresh(ctx context.Context) error {
	dep, err := s.client.GetDeployment(ctx, s.name())
	if apierrors.IsNotFound(err) {
		s.State = deployer.ServiceStateInactive
		s.StateMessage = ""
		s.PredictionURL = ""
		return nil
	}
	if err != nil {
		return fmt.Errorf("checking model server %s: %w", s.UID, err)
	}
	s.observe(dep)
	return nil
}

// Describe packages the service into the framework's snapshot type.
func (s *Service) Describe() *deployer.Service {
	return &deployer.Service{
		UID:           s.UID,
		Config:        s.Config,
		Created:       s.Created,
		State:         s.State,
		StateMessage:  s.StateMessage,
		PredictionURL: s.PredictionURL,
	}
}

func (s *Service) observe(dep *machinelearningv1.SeldonDeployment) {
	// the platform's creation timestamp is authoritative over any locally
	// assumed one
	if !dep.CreationTimestamp.IsZero() {
		s.Created = dep.CreationTimestamp.Time
	}
	switch dep.Status.State {
	case machinelearningv1.StatusStateAvailable:
		s.State = deployer.ServiceStateActive
		s.StateMessage = ""
		s.PredictionURL = s.predictionURL()
	case machinelearningv1.StatusStateFailed:
		s.State = deployer.ServiceStateError
		s.StateMessage = dep.Status.Description
		s.PredictionURL = ""
	default:
		s.State = deployer.ServiceStatePending
		s.StateMessage = dep.Status.Description
		s.PredictionURL = ""
	}
}

func (s *Service) buildDeployment() *machinelearningv1.SeldonDeployment {
	name := s.name()
	replicas := s.Config.Replicas
	if replicas <= 0 {
		replicas = 1
	}
	graph := machinelearningv1.PredictiveUnit{
		Name:             sanitizeLabelValue(s.Config.ModelName),
		Type:             machinelearningv1.ModelUnit,
		Implementation:   s.Config.Implementation,
		ModelURI:         s.Config.ModelURI,
		EnvSecretRefName: s.Config.SecretName,
	}
	for key, value := range s.Config.Parameters {
		graph.Parameters = append(graph.Parameters, machinelearningv1.Parameter{
			Name:  key,
			Type:  "STRING",
			Value: value,
		})
	}
	labels := serviceLabels(s.Config)
	labels[labelServiceUID] = s.UID.String()
	config, _ := json.Marshal(s.Config)
	return &machinelearningv1.SeldonDeployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:        name,
			Labels:      labels,
			Annotations: map[string]string{annotationServiceConfig: string(config)},
		},
		Spec: machinelearningv1.SeldonDeploymentSpec{
			Name:     name,
			Protocol: "seldon",
			Predictors: []machinelearningv1.PredictorSpec{
				{
					Name:     defaultPredictorName,
					Graph:    graph,
					Replicas: &replicas,
					Traffic:  100,
				},
			},
		},
	}
}
