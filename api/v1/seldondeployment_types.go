/*
Copyright 2024.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package v1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// NOTE: json tags are required.  Any new fields you add must have json tags for the fields to be serialized.

// PredictiveUnitType describes the role of a node in the inference graph.
type PredictiveUnitType string

const (
	ModelUnit       PredictiveUnitType = "MODEL"
	RouterUnit      PredictiveUnitType = "ROUTER"
	TransformerUnit PredictiveUnitType = "TRANSFORMER"
)

// Parameter is a free-form key/typed-value pair passed to a predictive unit.
type Parameter struct {
	Name  string `json:"name,omitempty"`
	Type  string `json:"type,omitempty"`
	Value string `json:"value,omitempty"`
}

// PredictiveUnit is a node in the predictor inference graph. For the model
// deployer the graph is always a single MODEL node pointing at the model
// artifact produced by a pipeline step.
type PredictiveUnit struct {
	Name string             `json:"name,omitempty"`
	Type PredictiveUnitType `json:"type,omitempty"`
	// Implementation selects the prepackaged model server used to serve the
	// artifact, e.g. SKLEARN_SERVER or TENSORFLOW_SERVER.
	Implementation string `json:"implementation,omitempty"`
	ModelURI       string `json:"modelUri,omitempty"`
	// EnvSecretRefName names the Kubernetes secret holding the credentials
	// the storage initializer uses to download the model artifact.
	EnvSecretRefName   string           `json:"envSecretRefName,omitempty"`
	ServiceAccountName string           `json:"serviceAccountName,omitempty"`
	Parameters         []Parameter      `json:"parameters,omitempty"`
	Children           []PredictiveUnit `json:"children,omitempty"`
}

// PredictorSpec defines one predictor of a SeldonDeployment.
type PredictorSpec struct {
	Name        string            `json:"name,omitempty"`
	Graph       PredictiveUnit    `json:"graph,omitempty"`
	Replicas    *int32            `json:"replicas,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
	Traffic     int32             `json:"traffic,omitempty"`
}

// SeldonDeploymentSpec defines the desired state of SeldonDeployment
type SeldonDeploymentSpec struct {
	Name string `json:"name,omitempty"`
	// Protocol used by the deployed model server, e.g. seldon or v2.
	Protocol    string            `json:"protocol,omitempty"`
	Predictors  []PredictorSpec   `json:"predictors,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty"`
	Replicas    *int32            `json:"replicas,omitempty"`
}

// StatusState is the coarse state reported by the Seldon Core operator.
type StatusState string

const (
	StatusStateUnknown   StatusState = ""
	StatusStateAvailable StatusState = "Available"
	StatusStateCreating  StatusState = "Creating"
	StatusStateFailed    StatusState = "Failed"
)

// SeldonDeploymentStatus defines the observed state of SeldonDeployment
type SeldonDeploymentStatus struct {
	State       StatusState `json:"state,omitempty"`
	Description string      `json:"description,omitempty"`
	Replicas    int32       `json:"replicas,omitempty"`
	// Address is the in-cluster URL under which the deployment is reachable.
	Address string `json:"address,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +genclient

// SeldonDeployment is the Schema for the seldondeployments API
type SeldonDeployment struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   SeldonDeploymentSpec   `json:"spec,omitempty"`
	Status SeldonDeploymentStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// SeldonDeploymentList contains a list of SeldonDeployment
type SeldonDeploymentList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []SeldonDeployment `json:"items"`
}

// IsAvailable reports whether the Seldon Core operator considers the
// deployment ready to serve predictions.
func (d *SeldonDeployment) IsAvailable() bool {
	return d.Status.State == StatusStateAvailable
}

// IsFailed reports whether the deployment reached a terminal failed state.
func (d *SeldonDeployment) IsFailed() bool {
	return d.Status.State == StatusStateFailed
}

func init() {
	SchemeBuilder.Register(&SeldonDeployment{}, &SeldonDeploymentList{})
}
