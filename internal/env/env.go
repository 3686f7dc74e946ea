package env

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

const (
	ConfigPath     = "MESSAGING_CONFIG"
	OrgID          = "MESSAGING_ORG_ID"
	DeploymentName = "MESSAGING_DEPLOYMENT_NAME"
	MessagingURL   = "MESSAGING_URL"
	StrictDetails  = "MESSAGING_STRICT_VALIDATION"

	StorageBackend = "STORAGE_BACKEND"
	RedisURL       = "STORAGE_REDIS_URL"
	RedisPass      = "STORAGE_REDIS_PASS"
	RedisDB        = "STORAGE_REDIS_DB"

	AWSRegion        = "AWS_REGION"
	AWSID            = "AWS_ID"
	AWSSecret        = "AWS_SECRET"
	AWSToken         = "AWS_TOKEN"
	DynamoDBEndpoint = "DYNAMODB_ENDPOINT"
	DynamoDBTable    = "DYNAMODB_TABLE"

	BridgeListenAddr = "BRIDGE_LISTEN_ADDR"
	BridgeToken      = "BRIDGE_TOKEN"
	BridgeOrigins    = "BRIDGE_ALLOWED_ORIGINS"

	LogLevel = "LOG_LEVEL"
)

// Load reads the given dotenv files into the process environment. Variables
// already set are left alone and missing files are skipped.
func Load(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

func Get(key string) string {
	return os.Getenv(key)
}

func GetOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func MustGet(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic("env: required environment variable not set: " + key)
	}
	return val
}
