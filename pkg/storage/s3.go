package storage

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/pkg/errors"
)

// S3Store is an S3 or S3-compatible artifact store. Credentials come from
// the default AWS credential chain unless an explicit provider is injected.
type S3Store struct {
	name string
	uri  string

	// EndpointURL points at an S3-compatible server such as MinIO. Empty
	// means plain AWS S3.
	EndpointURL string

	credentials aws.CredentialsProvider
}

// S3Option customizes an S3Store.
type S3Option func(*S3Store)

// WithEndpointURL targets an S3-compatible server instead of AWS S3.
func WithEndpointURL(url string) S3Option {
	return func(s *S3Store) {
		s.EndpointURL = url
	}
}

// WithCredentialsProvider overrides the default AWS credential chain.
func WithCredentialsProvider(p aws.CredentialsProvider) S3Option {
	return func(s *S3Store) {
		s.credentials = p
	}
}

// NewS3Store builds an S3 artifact store rooted at uri. The default AWS
// credential chain (env, shared config, IMDS) is resolved once here.
func NewS3Store(ctx context.Context, name, uri string, opts ...S3Option) (*S3Store, error) {
	s := &S3Store{name: name, uri: uri}
	for _, opt := range opts {
		opt(s)
	}
	if s.credentials == nil {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "loading AWS configuration")
		}
		s.credentials = cfg.Credentials
	}
	return s, nil
}

func (s *S3Store) Name() string   { return s.name }
func (s *S3Store) Flavor() Flavor { return FlavorS3 }
func (s *S3Store) URI() string    { return s.uri }

// Credentials returns the static credentials configured for the store. ok is
// false when none are resolvable, in which case callers fall back to the
// implicit (env/IAM) authentication mode of the target platform.
func (s *S3Store) Credentials(ctx context.Context) (aws.Credentials, bool, error) {
	creds, err := s.credentials.Retrieve(ctx)
	if err != nil {
		// An empty credential chain is not an error for the deployer; the
		// serving platform may still authenticate implicitly in-cluster.
		return aws.Credentials{}, false, nil
	}
	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		return aws.Credentials{}, false, nil
	}
	return creds, true, nil
}
