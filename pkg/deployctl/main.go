// deployctl drives a model deployer flavor from the command line: deploy a
// model server, find running ones, or tear one down.
//
// Usage:
//
//	deployctl [flags] deploy|find|delete
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/google/uuid"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	klog "k8s.io/klog/v2"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/config"
	"sigs.k8s.io/controller-runtime/pkg/manager/signals"

	machinelearningv1 "github.com/zenml-io/zenml-plugins/api/v1"
	"github.com/zenml-io/zenml-plugins/pkg/deployer"
	"github.com/zenml-io/zenml-plugins/pkg/deployer/seldon"
	"github.com/zenml-io/zenml-plugins/pkg/storage"
)

var (
	flavor     = flag.String("flavor", seldon.Flavor, "model deployer flavor to use")
	namespace  = flag.String("namespace", "seldon", "namespace the serving platform watches")
	baseURL    = flag.String("base-url", "", "ingress base URL prediction endpoints are exposed under")
	secretName = flag.String("secret-name", "", "existing credential secret to use instead of a generated one")
	timeout    = flag.Duration("timeout", deployer.DefaultTimeout, "how long to wait for the server to settle; 0 returns immediately")

	storeName     = flag.String("artifact-store", "default", "name of the artifact store holding the models")
	storeURI      = flag.String("artifact-store-uri", "", "root URI of the artifact store (s3://...)")
	storeEndpoint = flag.String("s3-endpoint", "", "endpoint URL for an S3-compatible artifact store")

	pipelineName   = flag.String("pipeline", "", "pipeline name")
	stepName       = flag.String("step", "", "pipeline step name")
	runName        = flag.String("run-name", "", "pipeline run name")
	modelName      = flag.String("model", "", "model name")
	modelURI       = flag.String("model-uri", "", "URI of the model artifact to serve")
	implementation = flag.String("implementation", "", "serving implementation, e.g. SKLEARN_SERVER")
	replicas       = flag.Int("replicas", 1, "number of model server replicas")
	replace        = flag.Bool("replace", true, "replace an equivalent running server instead of creating a new one")

	uidFlag = flag.String("uid", "", "model server UID (find filter, required for delete)")
	running = flag.Bool("running", false, "only list running model servers")
	force   = flag.Bool("force", false, "do not wait for graceful shutdown on delete")
)

func newSeldonDeployer(ctx context.Context) (deployer.ModelDeployer, error) {
	cfg, err := config.GetConfig()
	if err != nil {
		return nil, err
	}
	if err := machinelearningv1.AddToScheme(clientgoscheme.Scheme); err != nil {
		return nil, err
	}
	kube, err := client.New(cfg, client.Options{Scheme: clientgoscheme.Scheme})
	if err != nil {
		return nil, err
	}
	var opts []storage.S3Option
	if *storeEndpoint != "" {
		opts = append(opts, storage.WithEndpointURL(*storeEndpoint))
	}
	store, err := storage.NewS3Store(ctx, *storeName, *storeURI, opts...)
	if err != nil {
		return nil, err
	}
	return seldon.New(seldon.Config{
		Namespace:  *namespace,
		BaseURL:    *baseURL,
		SecretName: *secretName,
	}, kube, store)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		klog.Fatalf("Encoding output: %v", err)
	}
}

func serviceConfig() deployer.ServiceConfig {
	return deployer.ServiceConfig{
		PipelineName:     *pipelineName,
		PipelineStepName: *stepName,
		RunName:          *runName,
		ModelName:        *modelName,
		ModelURI:         *modelURI,
		Implementation:   *implementation,
		SecretName:       *secretName,
		Replicas:         int32(*replicas),
	}
}

func findCriteria() deployer.FindCriteria {
	criteria := deployer.FindCriteria{
		Running:          *running,
		PipelineName:     *pipelineName,
		PipelineStepName: *stepName,
		RunName:          *runName,
		ModelName:        *modelName,
		ModelURI:         *modelURI,
		Implementation:   *implementation,
	}
	if *uidFlag != "" {
		uid := parseUID()
		criteria.UID = &uid
	}
	return criteria
}

func parseUID() uuid.UUID {
	uid, err := uuid.Parse(*uidFlag)
	if err != nil {
		klog.Fatalf("Invalid -uid %q: %v", *uidFlag, err)
	}
	return uid
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	if flag.NArg() != 1 {
		klog.Fatal("Expected exactly one command: deploy, find or delete")
	}
	ctx := signals.SetupSignalHandler()

	deployer.Register(seldon.Flavor, func() (deployer.ModelDeployer, error) {
		return newSeldonDeployer(ctx)
	})
	d, err := deployer.New(*flavor)
	if err != nil {
		klog.Fatalf("Building %q model deployer: %v", *flavor, err)
	}

	switch cmd := flag.Arg(0); cmd {
	case "deploy":
		start := time.Now()
		svc, err := d.DeployModel(ctx, serviceConfig(), *replace, *timeout)
		if err != nil {
			klog.Fatalf("Deploying model: %v", err)
		}
		klog.Infof("Model server %s is %s after %s", svc.UID, svc.State, time.Since(start).Round(time.Second))
		printJSON(svc)
	case "find":
		services, err := d.FindModelServer(ctx, findCriteria())
		if err != nil {
			klog.Fatalf("Finding model servers: %v", err)
		}
		printJSON(services)
	case "delete":
		if *uidFlag == "" {
			klog.Fatal("delete requires -uid")
		}
		if err := d.DeleteModelServer(ctx, parseUID(), *timeout, *force); err != nil {
			klog.Fatalf("Deleting model server: %v", err)
		}
	default:
		klog.Fatalf("Unknown command %q: expected deploy, find or delete", cmd)
	}
}
