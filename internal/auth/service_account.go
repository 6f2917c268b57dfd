package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/dl-alexandre/gdbackup/internal/utils"
	"golang.org/x/oauth2/google"
)

// ServiceAccountKey represents the JSON structure of a service account key file
type ServiceAccountKey struct {
	Type                    string `json:"type"`
	ProjectID               string `json:"project_id"`
	PrivateKeyID            string `json:"private_key_id"`
	PrivateKey              string `json:"private_key"`
	ClientEmail             string `json:"client_email"`
	ClientID                string `json:"client_id"`
	AuthURI                 string `json:"auth_uri"`
	TokenURI                string `json:"token_uri"`
	AuthProviderX509CertURL string `json:"auth_provider_x509_cert_url"`
	ClientX509CertURL       string `json:"client_x509_cert_url"`
}

// ParseServiceAccountKey decodes and sanity-checks a service account key
func ParseServiceAccountKey(keyData []byte) (*ServiceAccountKey, error) {
	var saKey ServiceAccountKey
	if err := json.Unmarshal(keyData, &saKey); err != nil {
		return nil, fmt.Errorf("failed to parse service account key: %w", err)
	}
	if saKey.Type != "service_account" {
		return nil, fmt.Errorf("invalid service account key type: %q", saKey.Type)
	}
	if saKey.ClientEmail == "" {
		return nil, fmt.Errorf("missing client_email in service account key")
	}
	if saKey.PrivateKey == "" {
		return nil, fmt.Errorf("missing private_key in service account key")
	}
	return &saKey, nil
}

// LoadServiceAccount reads the key file and builds credentials for the
// requested scopes. No token is fetched here.
func LoadServiceAccount(ctx context.Context, keyFilePath string, scopes []string, impersonateUser string) (*google.Credentials, *ServiceAccountKey, error) {
	if keyFilePath == "" {
		return nil, nil, fmt.Errorf("service account key file required")
	}
	if len(scopes) == 0 {
		return nil, nil, fmt.Errorf("at least one scope required")
	}
	if impersonateUser != "" && !strings.Contains(impersonateUser, "@") {
		return nil, nil, fmt.Errorf("impersonate user must be an email address")
	}

	keyData, err := os.ReadFile(keyFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("service account key file not found: %s", keyFilePath)
		}
		return nil, nil, fmt.Errorf("failed to read service account key: %w", err)
	}

	saKey, err := ParseServiceAccountKey(keyData)
	if err != nil {
		return nil, nil, err
	}

	creds, err := google.CredentialsFromJSONWithParams(ctx, keyData, google.CredentialsParams{
		Scopes:  scopes,
		Subject: impersonateUser,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse service account key: %w", err)
	}

	return creds, saKey, nil
}

// ValidateScopes checks that the scopes allow reading file content
func ValidateScopes(scopes []string) error {
	for _, s := range scopes {
		if s == utils.ScopeFull || s == utils.ScopeReadonly {
			return nil
		}
	}
	return fmt.Errorf("scopes %v cannot download file content; include %s", scopes, utils.ScopeReadonly)
}
