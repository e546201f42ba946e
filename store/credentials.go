package store

import "os"

// Role distinguishes the source store (read-only, holds CDA parquet plus
// the manifest) from the target store (read/write, holds the Delta log).
// They may be backed by the same physical bucket or different ones.
type Role string

const (
	// RoleSource is the CDA export bucket.
	RoleSource Role = "SOURCE"
	// RoleTarget is the Delta table bucket.
	RoleTarget Role = "TARGET"
)

// Credentials is the resolved credential bundle for one Gateway. Only the
// fields relevant to the selected cloud need to be populated.
type Credentials struct {
	// AWS
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSSessionToken    string
	AWSRegion          string

	// Azure
	AzureTenantID       string
	AzureClientID       string
	AzureClientSecret   string
	AzureStorageAccount string
	AzureStorageKey     string

	// GCP
	GCPCredentialsJSON string // path to a service-account key file, or "" for ADC
}

// ResolveCredentials reads environment variables for role, falling back
// from the role-prefixed variable (e.g. SOURCE_AWS_ACCESS_KEY_ID) to the
// generic one (AWS_ACCESS_KEY_ID) when the prefixed one is unset. This is
// the only place in the core that touches the process environment; the
// CLI is free to populate a Credentials struct some other way and skip
// this entirely.
func ResolveCredentials(role Role) Credentials {
	return Credentials{
		AWSAccessKeyID:     lookupEnv(role, "AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey: lookupEnv(role, "AWS_SECRET_ACCESS_KEY"),
		AWSSessionToken:    lookupEnv(role, "AWS_SESSION_TOKEN"),
		AWSRegion:          lookupEnv(role, "AWS_REGION"),

		AzureTenantID:       lookupEnv(role, "AZURE_TENANT_ID"),
		AzureClientID:       lookupEnv(role, "AZURE_CLIENT_ID"),
		AzureClientSecret:   lookupEnv(role, "AZURE_CLIENT_SECRET"),
		AzureStorageAccount: lookupEnv(role, "AZURE_STORAGE_ACCOUNT"),
		AzureStorageKey:     lookupEnv(role, "AZURE_STORAGE_KEY"),

		GCPCredentialsJSON: lookupEnv(role, "GOOGLE_APPLICATION_CREDENTIALS"),
	}
}

// lookupEnv returns os.Getenv(role + "_" + name) when set, else
// os.Getenv(name).
func lookupEnv(role Role, name string) string {
	prefixed := string(role) + "_" + name
	if v, ok := os.LookupEnv(prefixed); ok {
		return v
	}
	return os.Getenv(name)
}
