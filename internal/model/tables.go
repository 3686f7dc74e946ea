package model

const (
	WebStorageTable = "MessagingClientStorage"

	// WebStorageKeyPrefix is joined with the organization id to scope the
	// persisted session blob.
	WebStorageKeyPrefix = "MESSAGING_CLIENT_"
)

// Item keys inside the persisted session blob.
const (
	StorageKeyJWT                     = "JWT"
	StorageKeyOrganizationID          = "ORGANIZATION_ID"
	StorageKeyDeploymentDeveloperName = "DEPLOYMENT_DEVELOPER_NAME"
	StorageKeyMessagingURL            = "MESSAGING_URL"
	StorageKeyDeploymentConfiguration = "DEPLOYMENT_CONFIGURATION"
)

func WebStorageKey(orgID string) string {
	return WebStorageKeyPrefix + orgID
}

type StorageItem struct {
	StorageKey string `dynamodbav:"storageKey"`
	Blob       string `dynamodbav:"blob"`
	UpdatedAt  string `dynamodbav:"updatedAt"`
	ExpiresAt  int64  `dynamodbav:"expiresAt,omitempty"`
}
