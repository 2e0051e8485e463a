package seldon

import (
	"regexp"
	"strings"

	"github.com/zenml-io/zenml-plugins/pkg/deployer"
)

const (
	labelManagedBy = "app.kubernetes.io/managed-by"
	managedByValue = "zenml"

	labelPipelineName   = "zenml.io/pipeline-name"
	labelStepName       = "zenml.io/pipeline-step-name"
	labelRunName        = "zenml.io/run-name"
	labelModelName      = "zenml.io/model-name"
	labelModelURI       = "zenml.io/model-uri"
	labelImplementation = "zenml.io/model-implementation"
	labelServiceUID     = "zenml.io/service-uid"

	// annotationServiceConfig stores the originating ServiceConfig as JSON
	// so a Service can be reconstructed from the deployment alone.
	annotationServiceConfig = "zenml.io/service-config"
)

var labelValueInvalid = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// sanitizeLabelValue coerces v into a valid Kubernetes label value: allowed
// charset, at most 63 characters, alphanumeric at both ends. Sanitization is
// applied identically when stamping deployments and when building find
// selectors, so sanitized values still match.
func sanitizeLabelValue(v string) string {
	v = labelValueInvalid.ReplaceAllString(v, "_")
	if len(v) > 63 {
		v = v[:63]
	}
	return strings.Trim(v, "._-")
}

// serviceLabels computes the label set identifying a deployment. Empty
// fields are omitted, so the same function serves both stamping new
// deployments and building wildcard find selectors.
func serviceLabels(c deployer.ServiceConfig) map[string]string {
	l := map[string]string{labelManagedBy: managedByValue}
	set := func(key, value string) {
		if value != "" {
			l[key] = sanitizeLabelValue(value)
		}
	}
	set(labelPipelineName, c.PipelineName)
	set(labelStepName, c.PipelineStepName)
	set(labelRunName, c.RunName)
	set(labelModelName, c.ModelName)
	set(labelModelURI, c.ModelURI)
	set(labelImplementation, c.Implementation)
	return l
}

// criteriaLabels translates find criteria into a label selector. The service
// UID is not part of the config-derived labels and is added separately.
func criteriaLabels(c deployer.FindCriteria) map[string]string {
	l := serviceLabels(deployer.ServiceConfig{
		PipelineName:     c.PipelineName,
		PipelineStepName: c.PipelineStepName,
		RunName:          c.RunName,
		ModelName:        c.ModelName,
		ModelURI:         c.ModelURI,
		Implementation:   c.Implementation,
	})
	if c.UID != nil {
		l[labelServiceUID] = c.UID.String()
	}
	return l
}
