package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"messaging-client/internal/env"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Deployment Deployment `yaml:"deployment"`
	Reconnect  Reconnect  `yaml:"reconnect"`
	Typing     Typing     `yaml:"typing"`
	Validation Validation `yaml:"validation"`
	HTTP       HTTP       `yaml:"http"`
	Storage    Storage    `yaml:"storage"`
	Bridge     Bridge     `yaml:"bridge"`
	Logging    Logging    `yaml:"logging"`
}

type Deployment struct {
	OrgID          string `yaml:"orgId"`
	DeploymentName string `yaml:"deploymentName"`
	MessagingURL   string `yaml:"messagingUrl"`
}

type Reconnect struct {
	MaxAttempts  int           `yaml:"maxAttempts"`
	InitialDelay time.Duration `yaml:"initialDelay"`
	MaxDelay     time.Duration `yaml:"maxDelay"`
	Multiplier   float64       `yaml:"multiplier"`
	// Heartbeat drops a stream that stays silent this long. Zero disables it.
	Heartbeat time.Duration `yaml:"heartbeat"`
}

type Typing struct {
	Timeout time.Duration `yaml:"timeout"`
}

type Validation struct {
	Strict bool `yaml:"strict"`
}

type HTTP struct {
	Timeout time.Duration `yaml:"timeout"`
}

type Storage struct {
	Backend string `yaml:"backend"`
	// TTL bounds how long an idle session blob is kept. Zero keeps it.
	TTL      time.Duration `yaml:"ttl"`
	Redis    Redis         `yaml:"redis"`
	DynamoDB DynamoDB      `yaml:"dynamodb"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type DynamoDB struct {
	Region          string `yaml:"region"`
	Table           string `yaml:"table"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"accessKeyId"`
	SecretAccessKey string `yaml:"secretAccessKey"`
	SessionToken    string `yaml:"sessionToken"`
}

type Bridge struct {
	ListenAddr     string   `yaml:"listenAddr"`
	Token          string   `yaml:"token"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

type Logging struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StorageDynamoDB = "dynamodb"
)

func Default() Config {
	return Config{
		Reconnect: Reconnect{
			MaxAttempts:  10,
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   1.5,
			Heartbeat:    90 * time.Second,
		},
		Typing:  Typing{Timeout: 5 * time.Second},
		HTTP:    HTTP{Timeout: 30 * time.Second},
		Storage: Storage{Backend: StorageMemory, DynamoDB: DynamoDB{Table: "MessagingClientStorage"}},
		Bridge: Bridge{
			ListenAddr:     ":8085",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Logging: Logging{Level: "info"},
	}
}

// Load reads path (when non-empty) over the defaults and then applies
// environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Deployment.OrgID, env.OrgID)
	setString(&c.Deployment.DeploymentName, env.DeploymentName)
	setString(&c.Deployment.MessagingURL, env.MessagingURL)
	setString(&c.Storage.Backend, env.StorageBackend)
	setString(&c.Storage.Redis.Addr, env.RedisURL)
	setString(&c.Storage.Redis.Password, env.RedisPass)
	setString(&c.Storage.DynamoDB.Region, env.AWSRegion)
	setString(&c.Storage.DynamoDB.AccessKeyID, env.AWSID)
	setString(&c.Storage.DynamoDB.SecretAccessKey, env.AWSSecret)
	setString(&c.Storage.DynamoDB.SessionToken, env.AWSToken)
	setString(&c.Storage.DynamoDB.Endpoint, env.DynamoDBEndpoint)
	setString(&c.Storage.DynamoDB.Table, env.DynamoDBTable)
	setString(&c.Bridge.ListenAddr, env.BridgeListenAddr)
	setString(&c.Bridge.Token, env.BridgeToken)
	setString(&c.Logging.Level, env.LogLevel)

	if v := env.Get(env.BridgeOrigins); v != "" {
		origins := make([]string, 0)
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.Bridge.AllowedOrigins = origins
	}
	if v := env.Get(env.RedisDB); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", env.RedisDB, err)
		}
		c.Storage.Redis.DB = db
	}
	if v := env.Get(env.StrictDetails); v != "" {
		strict, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", env.StrictDetails, err)
		}
		c.Validation.Strict = strict
	}
	return nil
}

func setString(dst *string, key string) {
	if v := env.Get(key); v != "" {
		*dst = v
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.Reconnect.MaxAttempts < 0 {
		errs = append(errs, errors.New("reconnect.maxAttempts must not be negative"))
	}
	if c.Reconnect.InitialDelay < 0 || c.Reconnect.MaxDelay < 0 || c.Reconnect.Heartbeat < 0 {
		errs = append(errs, errors.New("reconnect delays and heartbeat must not be negative"))
	}
	if c.Reconnect.MaxDelay < c.Reconnect.InitialDelay {
		errs = append(errs, errors.New("reconnect.maxDelay must be at least reconnect.initialDelay"))
	}
	if c.Reconnect.Multiplier < 1 {
		errs = append(errs, errors.New("reconnect.multiplier must be at least 1"))
	}
	if c.Typing.Timeout <= 0 {
		errs = append(errs, errors.New("typing.timeout must be positive"))
	}
	switch c.Storage.Backend {
	case StorageMemory:
	case StorageRedis:
		if c.Storage.Redis.Addr == "" {
			errs = append(errs, errors.New("storage.redis.addr is required for the redis backend"))
		}
	case StorageDynamoDB:
		if c.Storage.DynamoDB.Table == "" {
			errs = append(errs, errors.New("storage.dynamodb.table is required for the dynamodb backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}
	return errors.Join(errs...)
}
