// Package batch runs pipeline steps as synchronous AWS Batch jobs. Each
// launch registers a container job definition for the step image, submits it
// to the configured job queue and blocks until the job finishes.
package batch

import (
	"context"
	"math/rand"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsbatch "github.com/aws/aws-sdk-go-v2/service/batch"
	"github.com/aws/aws-sdk-go-v2/service/batch/types"
	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/klog/v2"
)

const (
	// AWS caps job names at 63 characters. The base name is truncated to 55
	// so that the random suffix always fits with margin.
	maxBaseNameLen = 55
	suffixLen      = 4

	defaultPollInterval = 10 * time.Second

	jobNameCharset = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// API is the subset of the AWS Batch client the operator calls.
type API interface {
	RegisterJobDefinition(ctx context.Context, params *awsbatch.RegisterJobDefinitionInput, optFns ...func(*awsbatch.Options)) (*awsbatch.RegisterJobDefinitionOutput, error)
	SubmitJob(ctx context.Context, params *awsbatch.SubmitJobInput, optFns ...func(*awsbatch.Options)) (*awsbatch.SubmitJobOutput, error)
	DescribeJobs(ctx context.Context, params *awsbatch.DescribeJobsInput, optFns ...func(*awsbatch.Options)) (*awsbatch.DescribeJobsOutput, error)
}

// Config holds the step operator settings.
type Config struct {
	// JobQueue is the name or ARN of the queue jobs are submitted to.
	JobQueue string
	// PollInterval between job status checks. Defaults to 10 seconds.
	PollInterval time.Duration
}

// StepRun describes one pipeline step to execute as a Batch job.
type StepRun struct {
	PipelineName string
	StepName     string
	// Image is the container image holding the step code.
	Image string
	// Command is the entrypoint command that executes the step.
	Command []string
}

// Operator submits pipeline steps to AWS Batch and waits for them.
type Operator struct {
	config Config
	client API
}

// New builds an Operator on top of an existing Batch client.
func New(config Config, client API) (*Operator, error) {
	if config.JobQueue == "" {
		return nil, errors.New("a job queue name or ARN is required")
	}
	if client == nil {
		return nil, errors.New("a Batch client is required")
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaultPollInterval
	}
	return &Operator{config: config, client: client}, nil
}

// NewFromConfig builds an Operator backed by the real AWS Batch client.
func NewFromConfig(config Config, awsConfig aws.Config) (*Operator, error) {
	return New(config, awsbatch.NewFromConfig(awsConfig))
}

// Launch registers a job definition for the step image, submits the job and
// waits for it to finish. It returns an error when the job fails or the
// context is cancelled first.
func (o *Operator) Launch(ctx context.Context, step StepRun) error {
	name := jobName(step.PipelineName, step.StepName)

	def, err := o.client.RegisterJobDefinition(ctx, &awsbatch.RegisterJobDefinitionInput{
		JobDefinitionName: aws.String(name),
		Type:              types.JobDefinitionTypeContainer,
		ContainerProperties: &types.ContainerProperties{
			Image:   aws.String(step.Image),
			Command: step.Command,
		},
	})
	if err != nil {
		return errors.Wrapf(err, "registering job definition %s", name)
	}

	sub, err := o.client.SubmitJob(ctx, &awsbatch.SubmitJobInput{
		JobName:       aws.String(name),
		JobQueue:      aws.String(o.config.JobQueue),
		JobDefinition: def.JobDefinitionName,
	})
	if err != nil {
		return errors.Wrapf(err, "submitting job %s", name)
	}
	jobID := aws.ToString(sub.JobId)
	klog.V(1).Infof("Submitted job %s (id %s) to queue %s", name, jobID, o.config.JobQueue)

	return o.awaitCompletion(ctx, jobID)
}

func (o *Operator) awaitCompletion(ctx context.Context, jobID string) error {
	return wait.PollUntilContextCancel(ctx, o.config.PollInterval, true, func(ctx context.Context) (bool, error) {
		out, err := o.client.DescribeJobs(ctx, &awsbatch.DescribeJobsInput{Jobs: []string{jobID}})
		if err != nil {
			return false, errors.Wrapf(err, "describing job %s", jobID)
		}
		if len(out.Jobs) == 0 {
			return false, errors.Errorf("job %s not found", jobID)
		}
		job := out.Jobs[0]
		klog.V(3).Infof("Job %s status: %s", jobID, job.Status)
		switch job.Status {
		case types.JobStatusSucceeded:
			return true, nil
		case types.JobStatusFailed:
			return false, errors.Errorf("job %s failed: %s", jobID, aws.ToString(job.StatusReason))
		}
		return false, nil
	})
}

// jobName derives a unique Batch job name from the pipeline and step names,
// truncated to leave room for the random suffix under the AWS limit.
func jobName(pipeline, step string) string {
	base := pipeline + "-" + step
	if len(base) > maxBaseNameLen {
		base = base[:maxBaseNameLen]
	}
	suffix := make([]byte, suffixLen)
	for i := range suffix {
		suffix[i] = jobNameCharset[rand.Intn(len(jobNameCharset))]
	}
	return base + "-" + string(suffix)
}
