package seldon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
	"sigs.k8s.io/controller-runtime/pkg/client/interceptor"

	machinelearningv1 "github.com/zenml-io/zenml-plugins/api/v1"
	"github.com/zenml-io/zenml-plugins/pkg/deployer"
	"github.com/zenml-io/zenml-plugins/pkg/storage"
)

const testNamespace = "seldon"

var (
	uid1 = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	uid2 = uuid.MustParse("00000000-0000-0000-0000-000000000002")
	uid3 = uuid.MustParse("00000000-0000-0000-0000-000000000003")

	configV1 = deployer.ServiceConfig{
		PipelineName:     "training-pipeline",
		PipelineStepName: "model-deployer-step",
		ModelName:        "churn-model",
		ModelURI:         "s3://models/churn/v1",
		Implementation:   "SKLEARN_SERVER",
		SecretName:       "zenml-seldon-core-default",
	}
)

func testScheme(t *testing.T) *runtime.Scheme {
	t.Helper()
	scheme := runtime.NewScheme()
	if err := clientgoscheme.AddToScheme(scheme); err != nil {
		t.Fatalf("adding client-go scheme: %v", err)
	}
	if err := machinelearningv1.AddToScheme(scheme); err != nil {
		t.Fatalf("adding seldon scheme: %v", err)
	}
	return scheme
}

// makeDeployment renders the SeldonDeployment a service with the given
// identity would have created, pinned to a creation time and observed state.
func makeDeployment(uid uuid.UUID, config deployer.ServiceConfig, created time.Time, state machinelearningv1.StatusState) *machinelearningv1.SeldonDeployment {
	svc := &Service{UID: uid, Config: config}
	dep := svc.buildDeployment()
	dep.Namespace = testNamespace
	dep.CreationTimestamp = metav1.Time{Time: created}
	dep.Status.State = state
	return dep
}

type callCounter struct {
	gets, lists, creates, updates, deletes int
}

func (c *callCounter) funcs() interceptor.Funcs {
	return interceptor.Funcs{
		Get: func(ctx context.Context, cl client.WithWatch, key client.ObjectKey, obj client.Object, opts ...client.GetOption) error {
			c.gets++
			return cl.Get(ctx, key, obj, opts...)
		},
		List: func(ctx context.Context, cl client.WithWatch, list client.ObjectList, opts ...client.ListOption) error {
			c.lists++
			return cl.List(ctx, list, opts...)
		},
		Create: func(ctx context.Context, cl client.WithWatch, obj client.Object, opts ...client.CreateOption) error {
			c.creates++
			return cl.Create(ctx, obj, opts...)
		},
		Update: func(ctx context.Context, cl client.WithWatch, obj client.Object, opts ...client.UpdateOption) error {
			c.updates++
			return cl.Update(ctx, obj, opts...)
		},
		Delete: func(ctx context.Context, cl client.WithWatch, obj client.Object, opts ...client.DeleteOption) error {
			c.deletes++
			return cl.Delete(ctx, obj, opts...)
		},
	}
}

func testStore(t *testing.T) *storage.S3Store {
	t.Helper()
	store, err := storage.NewS3Store(context.Background(), "default", "s3://models",
		storage.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIAEXAMPLE", "secret", "")))
	if err != nil {
		t.Fatalf("NewS3Store: %v", err)
	}
	return store
}

func newTestDeployer(t *testing.T, counter *callCounter, objs ...client.Object) (*Deployer, client.Client) {
	t.Helper()
	builder := fake.NewClientBuilder().WithScheme(testScheme(t)).WithObjects(objs...)
	if counter != nil {
		builder = builder.WithInterceptorFuncs(counter.funcs())
	}
	kube := builder.Build()
	d, err := New(Config{Namespace: testNamespace, BaseURL: "http://ingress.example.com"}, kube, testStore(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d, kube
}

func TestFindModelServerOrdering(t *testing.T) {
	t1 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(-time.Hour)
	t3 := t1.Add(-2 * time.Hour)

	tests := []struct {
		name     string
		objs     []client.Object
		criteria deployer.FindCriteria
		wantUIDs []uuid.UUID
	}{
		{
			name: "descending creation time",
			objs: []client.Object{
				makeDeployment(uid2, configV1, t2, machinelearningv1.StatusStateAvailable),
				makeDeployment(uid1, configV1, t1, machinelearningv1.StatusStateAvailable),
				makeDeployment(uid3, configV1, t3, machinelearningv1.StatusStateAvailable),
			},
			wantUIDs: []uuid.UUID{uid1, uid2, uid3},
		},
		{
			name: "unknown creation time sorts last",
			objs: []client.Object{
				makeDeployment(uid2, configV1, time.Time{}, machinelearningv1.StatusStateAvailable),
				makeDeployment(uid3, configV1, t3, machinelearningv1.StatusStateAvailable),
				makeDeployment(uid1, configV1, t1, machinelearningv1.StatusStateAvailable),
			},
			wantUIDs: []uuid.UUID{uid1, uid3, uid2},
		},
		{
			name: "running filter preserves order",
			objs: []client.Object{
				makeDeployment(uid1, configV1, t1, machinelearningv1.StatusStateCreating),
				makeDeployment(uid2, configV1, t2, machinelearningv1.StatusStateAvailable),
				makeDeployment(uid3, configV1, t3, machinelearningv1.StatusStateAvailable),
			},
			criteria: deployer.FindCriteria{Running: true},
			wantUIDs: []uuid.UUID{uid2, uid3},
		},
		{
			name: "uid is an exact filter on top of labels",
			objs: []client.Object{
				makeDeployment(uid1, configV1, t1, machinelearningv1.StatusStateAvailable),
				makeDeployment(uid2, configV1, t2, machinelearningv1.StatusStateAvailable),
			},
			criteria: deployer.FindCriteria{UID: &uid2, PipelineName: configV1.PipelineName},
			wantUIDs: []uuid.UUID{uid2},
		},
		{
			name:     "no matches is an empty list",
			objs:     nil,
			criteria: deployer.FindCriteria{ModelName: "no-such-model"},
			wantUIDs: []uuid.UUID{},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			d, _ := newTestDeployer(t, nil, test.objs...)
			services, err := d.FindModelServer(context.Background(), test.criteria)
			if err != nil {
				t.Fatalf("FindModelServer: %v", err)
			}
			gotUIDs := make([]uuid.UUID, 0, len(services))
			for _, svc := range services {
				gotUIDs = append(gotUIDs, svc.UID)
			}
			if diff := cmp.Diff(test.wantUIDs, gotUIDs); diff != "" {
				t.Errorf("Unexpected order (-want +got): %v", diff)
			}
		})
	}
}

func TestStartStopNotSupported(t *testing.T) {
	counter := &callCounter{}
	d, _ := newTestDeployer(t, counter)

	if err := d.StartModelServer(context.Background(), uid1, deployer.DefaultTimeout); !errors.Is(err, deployer.ErrNotSupported) {
		t.Errorf("StartModelServer: got %v, want ErrNotSupported", err)
	}
	if err := d.StopModelServer(context.Background(), uid1, deployer.DefaultTimeout, false); !errors.Is(err, deployer.ErrNotSupported) {
		t.Errorf("StopModelServer: got %v, want ErrNotSupported", err)
	}
	if got := *counter; got != (callCounter{}) {
		t.Errorf("Unexpected platform calls: %+v", got)
	}
}

func TestDeleteModelServerIdempotent(t *testing.T) {
	counter := &callCounter{}
	d, _ := newTestDeployer(t, counter)

	if err := d.DeleteModelServer(context.Background(), uid1, 0, false); err != nil {
		t.Fatalf("DeleteModelServer: %v", err)
	}
	if counter.deletes != 0 {
		t.Errorf("Unexpected delete calls: %d", counter.deletes)
	}
	if counter.lists != 1 {
		t.Errorf("Unexpected list calls: %d, want 1 lookup", counter.lists)
	}
}

func TestDeleteModelServerCleansUpSecret(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Namespace: testNamespace,
			Name:      configV1.SecretName,
			Labels:    map[string]string{labelManagedBy: managedByValue},
		},
	}

	t.Run("secret deleted when unreferenced", func(t *testing.T) {
		d, kube := newTestDeployer(t, nil,
			makeDeployment(uid1, configV1, created, machinelearningv1.StatusStateAvailable),
			secret.DeepCopy(),
		)
		if err := d.DeleteModelServer(context.Background(), uid1, 0, false); err != nil {
			t.Fatalf("DeleteModelServer: %v", err)
		}
		if err := kube.Get(context.Background(), client.ObjectKeyFromObject(secret), &corev1.Secret{}); err == nil {
			t.Error("credential secret still exists after deleting its last consumer")
		}
	})

	t.Run("secret kept while another server references it", func(t *testing.T) {
		d, kube := newTestDeployer(t, nil,
			makeDeployment(uid1, configV1, created, machinelearningv1.StatusStateAvailable),
			makeDeployment(uid2, configV1, created.Add(-time.Hour), machinelearningv1.StatusStateAvailable),
			secret.DeepCopy(),
		)
		if err := d.DeleteModelServer(context.Background(), uid1, 0, false); err != nil {
			t.Fatalf("DeleteModelServer: %v", err)
		}
		if err := kube.Get(context.Background(), client.ObjectKeyFromObject(secret), &corev1.Secret{}); err != nil {
			t.Errorf("credential secret deleted while still referenced: %v", err)
		}
	})

	t.Run("user-pinned secret survives delete", func(t *testing.T) {
		pinned := &corev1.Secret{ObjectMeta: metav1.ObjectMeta{
			Namespace: testNamespace,
			Name:      "my-own-credentials",
		}}
		config := configV1
		config.SecretName = pinned.Name
		d, kube := newTestDeployer(t, nil,
			makeDeployment(uid1, config, created, machinelearningv1.StatusStateAvailable),
			pinned.DeepCopy(),
		)
		if err := d.DeleteModelServer(context.Background(), uid1, 0, false); err != nil {
			t.Fatalf("DeleteModelServer: %v", err)
		}
		if err := kube.Get(context.Background(), client.ObjectKeyFromObject(pinned), &corev1.Secret{}); err != nil {
			t.Errorf("user-provided secret was deleted: %v", err)
		}
	})

	t.Run("generated-looking secret kept without the managed-by label", func(t *testing.T) {
		unmanaged := &corev1.Secret{ObjectMeta: metav1.ObjectMeta{
			Namespace: testNamespace,
			Name:      configV1.SecretName,
		}}
		d, kube := newTestDeployer(t, nil,
			makeDeployment(uid1, configV1, created, machinelearningv1.StatusStateAvailable),
			unmanaged.DeepCopy(),
		)
		if err := d.DeleteModelServer(context.Background(), uid1, 0, false); err != nil {
			t.Fatalf("DeleteModelServer: %v", err)
		}
		if err := kube.Get(context.Background(), client.ObjectKeyFromObject(unmanaged), &corev1.Secret{}); err != nil {
			t.Errorf("secret not owned by the deployer was deleted: %v", err)
		}
	})
}
