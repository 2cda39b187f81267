package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DefaultEnvFile = ".env"
	DefaultWorkers = 8
	EnvPrefix      = "TREESYNC"
)

// Config is built once per invocation and handed to everything that talks to
// the object store.
type Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Workers         int
	TransferTimeout time.Duration
	ContentType     string
}

// Load resolves configuration from, lowest precedence first: envFile, the
// optional configFile, the environment, and flags already bound to v.
// A missing envFile is not an error.
func Load(v *viper.Viper, envFile, configFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("env file '%s': %w", envFile, err)
		}
	}

	v.SetDefault("workers", DefaultWorkers)
	for key, names := range map[string][]string{
		"region":            {"AWS_REGION", "AWS_DEFAULT_REGION"},
		"endpoint":          {"AWS_HOST", "AWS_ENDPOINT_URL"},
		"access_key_id":     {"AWS_ACCESS_KEY_ID"},
		"secret_access_key": {"AWS_SECRET_ACCESS_KEY"},
		"session_token":     {"AWS_SESSION_TOKEN"},
	} {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("bind env '%s': %w", key, err)
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config read '%s': %w", configFile, err)
		}
	}

	cfg := &Config{
		Region:          v.GetString("region"),
		Endpoint:        v.GetString("endpoint"),
		AccessKeyID:     v.GetString("access_key_id"),
		SecretAccessKey: v.GetString("secret_access_key"),
		SessionToken:    v.GetString("session_token"),
		Workers:         v.GetInt("workers"),
		TransferTimeout: v.GetDuration("timeout"),
		ContentType:     v.GetString("content_type"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate normalizes the config and reports the first invalid field.
func (c *Config) Validate() error {
	c.Region = strings.TrimSpace(c.Region)
	c.Endpoint = strings.TrimSpace(c.Endpoint)

	if c.Region == "" {
		return errors.New("region is required (set AWS_REGION or --region)")
	}
	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		return errors.New("access key id and secret access key must be set together")
	}

	if c.Endpoint != "" {
		// AWS_HOST is commonly given as a bare host:port.
		if !strings.Contains(c.Endpoint, "://") {
			c.Endpoint = "https://" + c.Endpoint
		}
		u, err := url.Parse(c.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid endpoint url '%s'", c.Endpoint)
		}
	}

	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.TransferTimeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.TransferTimeout)
	}
	return nil
}
