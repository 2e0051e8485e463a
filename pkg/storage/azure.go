package storage

import (
	"strings"

	"github.com/pkg/errors"
)

// AzureCredentials carries one of the credential shapes an Azure Blob
// artifact store can be configured with, in order of precedence: connection
// string, SAS token, account key, service principal. All empty means
// implicit auth.
type AzureCredentials struct {
	ConnectionString string
	SASToken         string
	AccountName      string
	AccountKey       string
	// ClientID, ClientSecret and TenantID form service principal
	// credentials; AccountName must be set alongside them.
	ClientID     string
	ClientSecret string
	TenantID     string
}

// Empty reports whether no credential material is configured.
func (c AzureCredentials) Empty() bool {
	return c.ConnectionString == "" && c.SASToken == "" &&
		c.AccountKey == "" && c.ClientID == ""
}

// AzureStore is an Azure Blob Storage artifact store.
type AzureStore struct {
	name string
	uri  string

	Credentials AzureCredentials
}

// NewAzureStore builds an Azure Blob artifact store rooted at uri.
func NewAzureStore(name, uri string, creds AzureCredentials) *AzureStore {
	return &AzureStore{name: name, uri: uri, Credentials: creds}
}

func (s *AzureStore) Name() string   { return s.name }
func (s *AzureStore) Flavor() Flavor { return FlavorAzure }
func (s *AzureStore) URI() string    { return s.uri }

// ParseConnectionString extracts the account name and key from an Azure
// storage connection string, a ";"-separated list of key=value tokens.
func ParseConnectionString(cs string) (accountName, accountKey string, err error) {
	fields := map[string]string{}
	for _, token := range strings.Split(cs, ";") {
		if token == "" {
			continue
		}
		key, value, found := strings.Cut(token, "=")
		if !found {
			return "", "", errors.Errorf("malformed connection string token %q", token)
		}
		fields[key] = value
	}
	accountName = fields["AccountName"]
	accountKey = fields["AccountKey"]
	if accountName == "" || accountKey == "" {
		return "", "", errors.New("connection string is missing AccountName or AccountKey")
	}
	return accountName, accountKey, nil
}
