package batch

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsbatch "github.com/aws/aws-sdk-go-v2/service/batch"
	"github.com/aws/aws-sdk-go-v2/service/batch/types"
	"github.com/google/go-cmp/cmp"
)

type fakeBatchAPI struct {
	registerInput *awsbatch.RegisterJobDefinitionInput
	submitInput   *awsbatch.SubmitJobInput

	// statuses are returned by successive DescribeJobs calls; the last one
	// repeats once exhausted.
	statuses     []types.JobStatus
	statusReason string
	describes    int
}

func (f *fakeBatchAPI) RegisterJobDefinition(ctx context.Context, params *awsbatch.RegisterJobDefinitionInput, optFns ...func(*awsbatch.Options)) (*awsbatch.RegisterJobDefinitionOutput, error) {
	f.registerInput = params
	return &awsbatch.RegisterJobDefinitionOutput{JobDefinitionName: params.JobDefinitionName}, nil
}

func (f *fakeBatchAPI) SubmitJob(ctx context.Context, params *awsbatch.SubmitJobInput, optFns ...func(*awsbatch.Options)) (*awsbatch.SubmitJobOutput, error) {
	f.submitInput = params
	return &awsbatch.SubmitJobOutput{JobId: aws.String("job-1"), JobName: params.JobName}, nil
}

func (f *fakeBatchAPI) DescribeJobs(ctx context.Context, params *awsbatch.DescribeJobsInput, optFns ...func(*awsbatch.Options)) (*awsbatch.DescribeJobsOutput, error) {
	idx := f.describes
	if idx >= len(f.statuses) {
		idx = len(f.statuses) - 1
	}
	f.describes++
	return &awsbatch.DescribeJobsOutput{Jobs: []types.JobDetail{{
		JobId:        aws.String(params.Jobs[0]),
		Status:       f.statuses[idx],
		StatusReason: aws.String(f.statusReason),
	}}}, nil
}

func newTestOperator(t *testing.T, api API) *Operator {
	t.Helper()
	op, err := New(Config{JobQueue: "ml-queue", PollInterval: time.Millisecond}, api)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return op
}

func TestLaunchWaitsForSuccess(t *testing.T) {
	api := &fakeBatchAPI{statuses: []types.JobStatus{
		types.JobStatusSubmitted,
		types.JobStatusRunning,
		types.JobStatusSucceeded,
	}}
	op := newTestOperator(t, api)

	step := StepRun{
		PipelineName: "training-pipeline",
		StepName:     "trainer",
		Image:        "registry.example.com/zenml/trainer:latest",
		Command:      []string{"python", "-m", "zenml.entrypoint"},
	}
	if err := op.Launch(context.Background(), step); err != nil {
		t.Fatalf("Launch: %v", err)
	}

	if api.describes != 3 {
		t.Errorf("Unexpected describe calls: %d, want 3", api.describes)
	}
	if got := aws.ToString(api.registerInput.ContainerProperties.Image); got != step.Image {
		t.Errorf("Unexpected image on job definition: %q", got)
	}
	if diff := cmp.Diff(step.Command, api.registerInput.ContainerProperties.Command); diff != "" {
		t.Errorf("Unexpected command (-want +got): %v", diff)
	}
	if got := aws.ToString(api.submitInput.JobQueue); got != "ml-queue" {
		t.Errorf("Unexpected job queue: %q", got)
	}
	// the definition registered for this run is the one submitted
	if got, want := aws.ToString(api.submitInput.JobDefinition), aws.ToString(api.registerInput.JobDefinitionName); got != want {
		t.Errorf("Submitted definition %q, registered %q", got, want)
	}
}

func TestLaunchReportsFailure(t *testing.T) {
	api := &fakeBatchAPI{
		statuses:     []types.JobStatus{types.JobStatusFailed},
		statusReason: "Essential container in task exited",
	}
	op := newTestOperator(t, api)

	err := op.Launch(context.Background(), StepRun{PipelineName: "p", StepName: "s", Image: "img"})
	if err == nil {
		t.Fatal("Launch succeeded for a failed job")
	}
	if !strings.Contains(err.Error(), "Essential container in task exited") {
		t.Errorf("Error does not carry the failure reason: %v", err)
	}
}

func TestLaunchStopsOnContextCancellation(t *testing.T) {
	api := &fakeBatchAPI{statuses: []types.JobStatus{types.JobStatusRunning}}
	op := newTestOperator(t, api)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := op.Launch(ctx, StepRun{PipelineName: "p", StepName: "s", Image: "img"})
	if err == nil {
		t.Fatal("Launch succeeded for a job that never finishes")
	}
}

func TestJobName(t *testing.T) {
	tests := []struct {
		name     string
		pipeline string
		step     string
		wantBase string
	}{
		{
			name:     "short names pass through",
			pipeline: "training-pipeline",
			step:     "trainer",
			wantBase: "training-pipeline-trainer",
		},
		{
			name:     "long names truncated to fit the limit",
			pipeline: strings.Repeat("p", 50),
			step:     strings.Repeat("s", 50),
			wantBase: (strings.Repeat("p", 50) + "-" + strings.Repeat("s", 50))[:55],
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := jobName(test.pipeline, test.step)
			if !strings.HasPrefix(got, test.wantBase+"-") {
				t.Errorf("Unexpected base, got: %q, want prefix: %q", got, test.wantBase)
			}
			if want := len(test.wantBase) + 1 + suffixLen; len(got) != want {
				t.Errorf("Unexpected length %d, want %d", len(got), want)
			}
			if len(got) > 63 {
				t.Errorf("Job name %q exceeds the AWS limit", got)
			}
		})
	}
}
