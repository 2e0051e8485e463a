package seldon

import (
	"context"
	"fmt"

	"k8s.io/klog/v2"

	"github.com/zenml-io/zenml-plugins/pkg/storage"
)

const credentialSecretPrefix = "zenml-seldon-core-"

// credentialSecretName derives the name of the generated credential secret
// from the artifact store, so that stacks sharing one deployer across
// several artifact stores get one secret per store.
func credentialSecretName(store storage.ArtifactStore) string {
	return credentialSecretPrefix + sanitizeLabelValue(store.Name())
}

// credentialData converts the artifact store's credentials into the
// rclone-style key set the Seldon Core storage initializer expects. A store
// without configured credentials selects the platform's implicit
// authentication mode; a store flavor without a conversion is an error.
func credentialData(ctx context.Context, store storage.ArtifactStore) (map[string]string, error) {
	switch st := store.(type) {
	case *storage.S3Store:
		return s3CredentialData(ctx, st)
	case *storage.GCSStore:
		return gcsCredentialData(st)
	case *storage.AzureStore:
		return azureCredentialData(st)
	default:
		return nil, fmt.Errorf(
			"cannot derive serving credentials for artifact store flavor %q; use an S3, GCS or Azure artifact store or configure an explicit secret on the model deployer",
			store.Flavor())
	}
}

func s3CredentialData(ctx context.Context, store *storage.S3Store) (map[string]string, error) {
	data := map[string]string{
		"RCLONE_CONFIG_S3_TYPE":     "s3",
		"RCLONE_CONFIG_S3_PROVIDER": "aws",
	}
	creds, ok, err := store.Credentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving S3 credentials: %w", err)
	}
	if !ok {
		klog.Warning("No credentials configured for the S3 artifact store; " +
			"the model server will rely on implicit in-cluster authentication to fetch artifacts")
		data["RCLONE_CONFIG_S3_ENV_AUTH"] = "true"
		return data, nil
	}
	data["RCLONE_CONFIG_S3_ACCESS_KEY_ID"] = creds.AccessKeyID
	data["RCLONE_CONFIG_S3_SECRET_ACCESS_KEY"] = creds.SecretAccessKey
	if creds.SessionToken != "" {
		data["RCLONE_CONFIG_S3_SESSION_TOKEN"] = creds.SessionToken
	}
	if store.EndpointURL != "" {
		data["RCLONE_CONFIG_S3_ENDPOINT"] = store.EndpointURL
		// a custom endpoint means an S3-compatible server, not AWS
		data["RCLONE_CONFIG_S3_PROVIDER"] = "Minio"
	}
	return data, nil
}

func gcsCredentialData(store *storage.GCSStore) (map[string]string, error) {
	data := map[string]string{
		"RCLONE_CONFIG_GS_TYPE": "google cloud storage",
	}
	creds := store.Credentials
	switch {
	case creds.ServiceAccountJSON != "":
		data["RCLONE_CONFIG_GS_SERVICE_ACCOUNT_CREDENTIALS"] = creds.ServiceAccountJSON
	case creds.ClientID != "":
		data["RCLONE_CONFIG_GS_CLIENT_ID"] = creds.ClientID
		data["RCLONE_CONFIG_GS_CLIENT_SECRET"] = creds.ClientSecret
		data["RCLONE_CONFIG_GS_TOKEN"] = fmt.Sprintf(`{"refresh_token":%q}`, creds.RefreshToken)
	case creds.AccessToken != "":
		data["RCLONE_CONFIG_GS_TOKEN"] = fmt.Sprintf(`{"access_token":%q}`, creds.AccessToken)
	default:
		klog.Warning("No credentials configured for the GCS artifact store; " +
			"the model server will rely on implicit in-cluster authentication to fetch artifacts")
		data["RCLONE_CONFIG_GS_ANONYMOUS"] = "false"
	}
	return data, nil
}

func azureCredentialData(store *storage.AzureStore) (map[string]string, error) {
	data := map[string]string{
		"RCLONE_CONFIG_AZ_TYPE": "azureblob",
	}
	creds := store.Credentials
	switch {
	case creds.ConnectionString != "":
		account, key, err := storage.ParseConnectionString(creds.ConnectionString)
		if err != nil {
			return nil, fmt.Errorf("converting Azure artifact store credentials: %w", err)
		}
		data["RCLONE_CONFIG_AZ_ACCOUNT"] = account
		data["RCLONE_CONFIG_AZ_KEY"] = key
	case creds.SASToken != "":
		data["RCLONE_CONFIG_AZ_SAS_URL"] = creds.SASToken
	case creds.AccountName != "" && creds.AccountKey != "":
		data["RCLONE_CONFIG_AZ_ACCOUNT"] = creds.AccountName
		data["RCLONE_CONFIG_AZ_KEY"] = creds.AccountKey
	case creds.ClientID != "":
		data["RCLONE_CONFIG_AZ_CLIENT_ID"] = creds.ClientID
		data["RCLONE_CONFIG_AZ_CLIENT_SECRET"] = creds.ClientSecret
		data["RCLONE_CONFIG_AZ_TENANT"] = creds.TenantID
		data["RCLONE_CONFIG_AZ_ACCOUNT"] = creds.AccountName
	default:
		klog.Warning("No credentials configured for the Azure artifact store; " +
			"the model server will rely on implicit in-cluster authentication to fetch artifacts")
		data["RCLONE_CONFIG_AZ_ENV_AUTH"] = "true"
	}
	return data, nil
}
