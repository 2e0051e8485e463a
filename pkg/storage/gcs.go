package storage

// GCSCredentials carries one of the credential shapes a GCS artifact store
// can be configured with. Exactly one of ServiceAccountJSON, the
// authorized-user triple, or AccessToken is expected to be set; all empty
// means implicit auth.
type GCSCredentials struct {
	// ServiceAccountJSON is the raw content of a service account key file.
	ServiceAccountJSON string
	// ClientID, ClientSecret and RefreshToken form authorized-user
	// credentials as produced by gcloud.
	ClientID     string
	ClientSecret string
	RefreshToken string
	// AccessToken is a short-lived token obtained from a service connector.
	AccessToken string
}

// Empty reports whether no credential material is configured.
func (c GCSCredentials) Empty() bool {
	return c.ServiceAccountJSON == "" && c.ClientID == "" && c.AccessToken == ""
}

// GCSStore is a Google Cloud Storage artifact store.
type GCSStore struct {
	name string
	uri  string

	Credentials GCSCredentials
}

// NewGCSStore builds a GCS artifact store rooted at uri.
func NewGCSStore(name, uri string, creds GCSCredentials) *GCSStore {
	return &GCSStore{name: name, uri: uri, Credentials: creds}
}

func (s *GCSStore) Name() string   { return s.name }
func (s *GCSStore) Flavor() Flavor { return FlavorGCS }
func (s *GCSStore) URI() string    { return s.uri }
