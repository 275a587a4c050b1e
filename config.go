package main

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr     string `yaml:"http_addr"`     // адрес HTTP сервера
	DatabaseURL  string `yaml:"database_url"`  // postgres://, sqlite:<path> или memory:
	DatabaseName string `yaml:"database_name"` // имя базы; по умолчанию из DatabaseURL
	Collection   string `yaml:"collection"`    // имя capped-коллекции
	MaxSizeBytes int64  `yaml:"max_size_bytes"`
	MaxRecords   int    `yaml:"max_records"`
	KafkaBroker  string `yaml:"kafka_broker"` // пусто: приём из Kafka отключён
	KafkaTopic   string `yaml:"kafka_topic"`
	KafkaGroupID string `yaml:"kafka_group_id"`
	LogLevel     string `yaml:"log_level"`
	TraceStdout  bool   `yaml:"trace_stdout"`
}

const defaultDatabaseName = "rest_demo"

var collectionName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Значения по умолчанию: 50 КБ или 1000 записей
func defaultConfig() *Config {
	return &Config{
		HTTPAddr:     ":8080",
		Collection:   "people",
		MaxSizeBytes: 50 * 1024,
		MaxRecords:   1000,
		KafkaTopic:   "people",
		KafkaGroupID: "people-service-group",
		LogLevel:     "info",
	}
}

// LoadConfig собирает конфигурацию: значения по умолчанию, затем YAML-файл
// (если path не пуст), затем переменные окружения.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.resolve()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString(&c.HTTPAddr, "HTTP_ADDR")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.DatabaseName, "DATABASE_NAME")
	setString(&c.Collection, "PEOPLE_COLLECTION")
	setString(&c.KafkaBroker, "KAFKA_BROKER")
	setString(&c.KafkaTopic, "KAFKA_TOPIC")
	setString(&c.KafkaGroupID, "KAFKA_GROUP_ID")
	setString(&c.LogLevel, "LOG_LEVEL")

	if v := os.Getenv("PEOPLE_MAX_SIZE_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("PEOPLE_MAX_SIZE_BYTES: %w", err)
		}
		c.MaxSizeBytes = n
	}
	if v := os.Getenv("PEOPLE_MAX_RECORDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PEOPLE_MAX_RECORDS: %w", err)
		}
		c.MaxRecords = n
	}
	if v := os.Getenv("TRACE_STDOUT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("TRACE_STDOUT: %w", err)
		}
		c.TraceStdout = b
	}
	return nil
}

// resolve выводит имя базы из последнего сегмента DatabaseURL.
func (c *Config) resolve() {
	if c.DatabaseName != "" {
		return
	}
	c.DatabaseName = databaseNameFromURL(c.DatabaseURL)
	if c.DatabaseName == "" {
		c.DatabaseName = defaultDatabaseName
	}
}

func databaseNameFromURL(u string) string {
	if i := strings.IndexByte(u, '?'); i >= 0 {
		u = u[:i]
	}
	if i := strings.Index(u, "://"); i >= 0 {
		u = u[i+3:]
	}
	i := strings.LastIndexByte(u, '/')
	if i < 0 {
		return ""
	}
	return strings.TrimSuffix(u[i+1:], ".db")
}

// Endpoint возвращает DatabaseURL, либо локальный файл SQLite.
func (c *Config) Endpoint() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return "sqlite:" + c.DatabaseName + ".db"
}

func (c *Config) Validate() error {
	if !collectionName.MatchString(c.Collection) {
		return fmt.Errorf("invalid collection name %q", c.Collection)
	}
	if c.MaxSizeBytes <= 0 {
		return fmt.Errorf("max_size_bytes must be positive, got %d", c.MaxSizeBytes)
	}
	if c.MaxRecords <= 0 {
		return fmt.Errorf("max_records must be positive, got %d", c.MaxRecords)
	}
	return nil
}
