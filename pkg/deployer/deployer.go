// Package deployer defines the model deployer contract that the pipeline
// framework dispatches to. A deployer flavor provisions a remote model server
// for a pipeline step and translates the platform's status back into the
// framework's service abstraction.
package deployer

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DefaultTimeout bounds the readiness wait of deploy and delete operations
// when the caller does not pick one.
const DefaultTimeout = 300 * time.Second

// ServiceState is the framework-level view of a remote model server.
type ServiceState string

const (
	ServiceStatePending  ServiceState = "pending"
	ServiceStateActive   ServiceState = "active"
	ServiceStateInactive ServiceState = "inactive"
	ServiceStateError    ServiceState = "error"
)

// ServiceConfig identifies one deployment request. It is immutable once
// submitted to a deployer; identity fields left empty act as empty-string
// defaults, not wildcards.
type ServiceConfig struct {
	PipelineName     string `json:"pipelineName,omitempty"`
	PipelineStepName string `json:"pipelineStepName,omitempty"`
	RunName          string `json:"runName,omitempty"`
	ModelName        string `json:"modelName,omitempty"`
	ModelURI         string `json:"modelUri,omitempty"`
	// Implementation is the serving implementation kind used to serve the
	// model, e.g. SKLEARN_SERVER.
	Implementation string `json:"implementation,omitempty"`
	// SecretName optionally pins a pre-existing platform secret holding the
	// credentials needed to fetch the model artifact. When empty, the
	// deployer resolves or creates one before starting the service.
	SecretName string            `json:"secretName,omitempty"`
	Replicas   int32             `json:"replicas,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// Service is a snapshot of a running or stopped remote deployment. Two
// services are equivalent when pipeline name, pipeline step name and model
// name match; the UID is the exact identity used by delete.
type Service struct {
	UID           uuid.UUID
	Config        ServiceConfig
	Created       time.Time
	State         ServiceState
	StateMessage  string
	PredictionURL string
}

// IsRunning reports whether the remote deployment was last observed serving.
func (s *Service) IsRunning() bool {
	return s.State == ServiceStateActive
}

// FindCriteria narrows FindModelServer results. Empty string fields act as
// wildcards; UID, when set, is an exact-match filter applied in addition to
// the other fields.
type FindCriteria struct {
	Running          bool
	UID              *uuid.UUID
	PipelineName     string
	PipelineStepName string
	RunName          string
	ModelName        string
	ModelURI         string
	Implementation   string
}

// ModelDeployer is the capability interface one deployer flavor implements.
// The framework holds only this type and dispatches polymorphically.
//
// Flavors that funnel all lifecycle transitions through DeployModel and
// DeleteModelServer reject StartModelServer and StopModelServer with
// ErrNotSupported.
type ModelDeployer interface {
	// DeployModel provisions a model server for config and blocks until it
	// is ready or timeout elapses; timeout 0 returns right after submission.
	// With replace set, an equivalent existing server is updated in place
	// (keeping its UID and creation time) and superseded equivalents are
	// stopped best-effort.
	DeployModel(ctx context.Context, config ServiceConfig, replace bool, timeout time.Duration) (*Service, error)

	// FindModelServer returns the servers matching criteria, most recently
	// created first. No matches is an empty list, not an error.
	FindModelServer(ctx context.Context, criteria FindCriteria) ([]*Service, error)

	// StopModelServer stops the server with the given UID.
	StopModelServer(ctx context.Context, uid uuid.UUID, timeout time.Duration, force bool) error

	// StartModelServer starts a previously stopped server.
	StartModelServer(ctx context.Context, uid uuid.UUID, timeout time.Duration) error

	// DeleteModelServer tears down the server with the given UID along with
	// auxiliary resources owned exclusively by it. Unknown UIDs are a no-op.
	DeleteModelServer(ctx context.Context, uid uuid.UUID, timeout time.Duration, force bool) error
}
