// Package storage models the artifact stores a pipeline stack can be
// configured with, limited to what deployer plugins need from them: the
// store's flavor, the artifact location, and the credential material the
// serving platform must receive to download model artifacts.
package storage

// Flavor names the cloud provider behind an artifact store.
type Flavor string

const (
	FlavorS3    Flavor = "s3"
	FlavorGCS   Flavor = "gcp"
	FlavorAzure Flavor = "azure"
)

// ArtifactStore is the deployer-side view of the stack's artifact store.
type ArtifactStore interface {
	// Name identifies the store within the stack; it is stable and is used
	// to derive the name of generated credential secrets.
	Name() string
	Flavor() Flavor
	// URI is the root location artifacts live under, e.g. s3://bucket/path.
	URI() string
}
