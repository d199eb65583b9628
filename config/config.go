package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
	Service  ServiceConfig  `yaml:"service"`
	Operator OperatorConfig `yaml:"operator"`
	Paths    PathsConfig    `yaml:"paths"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	API      APIConfig      `yaml:"api"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
	// DSN overrides the fields above when set.
	DSN string `yaml:"dsn"`
}

type KafkaConfig struct {
	Host                   string `yaml:"host"`
	Port                   int    `yaml:"port"`
	StatusChangedTopicName string `yaml:"status_changed_topic_name"`
	ConsumerGroup          string `yaml:"consumer_group"`
}

type RedisConfig struct {
	Host                string `yaml:"host"`
	Port                int    `yaml:"port"`
	CodeTableTTLSeconds int    `yaml:"code_table_ttl_seconds"`
	RunLockTTLSeconds   int    `yaml:"run_lock_ttl_seconds"`
}

type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url"`
	JobName        string `yaml:"job_name"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" | "json"
}

type ServiceConfig struct {
	Environments   map[string]EnvironmentConfig `yaml:"environments"`
	TimeoutSeconds int                          `yaml:"timeout_seconds"`
	Namespace      string                       `yaml:"namespace"`
	ActionPrefix   string                       `yaml:"action_prefix"`
}

type EnvironmentConfig struct {
	URL      string `yaml:"url"`
	Domain   string `yaml:"domain"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// OperatorConfig identifies the accommodation provider in every submission.
type OperatorConfig struct {
	ID                string `yaml:"idub"`
	Mark              string `yaml:"mark"`
	Name              string `yaml:"name"`
	Contact           string `yaml:"contact"`
	District          string `yaml:"district"`
	Municipality      string `yaml:"municipality"`
	MunicipalityPart  string `yaml:"municipality_part"`
	Street            string `yaml:"street"`
	HouseNumber       string `yaml:"house_number"`
	OrientationNumber string `yaml:"orientation_number"`
	PostalCode        string `yaml:"postal_code"`
}

type PathsConfig struct {
	Confirmations string `yaml:"confirmations"`
	Diagnostics   string `yaml:"diagnostics"`
	Backups       string `yaml:"backups"`
	Logs          string `yaml:"logs"`
	Exports       string `yaml:"exports"`
}

type PipelineConfig struct {
	FallbackBatchSize int      `yaml:"fallback_batch_size"`
	FatalPrefixes     []string `yaml:"fatal_prefixes"`
	DuplicateMarkers  []string `yaml:"duplicate_markers"`
	BackupKeep        int      `yaml:"backup_keep"`
}

type APIConfig struct {
	HTTPAddr        string `yaml:"http_addr"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}

// ApplyEnv overlays secrets from the environment (and an optional .env file)
// so that passwords do not have to live in the YAML file.
func ApplyEnv(cfg *Config, envFiles ...string) {
	_ = godotenv.Load(envFiles...)

	if v := os.Getenv("UBYSYNC_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("UBYSYNC_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	for name, env := range cfg.Service.Environments {
		if v := os.Getenv("UBYSYNC_SERVICE_USERNAME"); v != "" {
			env.Username = v
		}
		if v := os.Getenv("UBYSYNC_SERVICE_PASSWORD"); v != "" {
			env.Password = v
		}
		cfg.Service.Environments[name] = env
	}
}

// ConnString builds the pgx connection string.
func (d DatabaseConfig) ConnString() string {
	if d.DSN != "" {
		return d.DSN
	}
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.DBName, sslMode)
}

func (c *Config) Environment(name string) (EnvironmentConfig, error) {
	env, ok := c.Service.Environments[name]
	if !ok {
		return EnvironmentConfig{}, fmt.Errorf("environment %q not found in config", name)
	}
	return env, nil
}
