package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	ShipWatch ShipWatchConfig `yaml:"shipwatch"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                      string `yaml:"host"`
	Port                      int    `yaml:"port"`
	AlertCreatedTopicName     string `yaml:"alert_created_topic_name"`
	ShipmentUpdatedTopicName  string `yaml:"shipment_updated_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type ShipWatchConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`

	ProviderBaseURL string `yaml:"provider_base_url"`
	ProviderAPIKey  string `yaml:"provider_api_key"`
	ProviderMode    string `yaml:"provider_mode"` // "shipsgo" | "fake"

	ProviderRateLimitPerMinute int `yaml:"provider_rate_limit_per_minute"`

	SyncIntervalSeconds      int `yaml:"sync_interval_seconds"`
	PositionsIntervalSeconds int `yaml:"positions_interval_seconds"`
	SyncBatchSize            int `yaml:"sync_batch_size"`
	SyncShipmentLimit        int `yaml:"sync_shipment_limit"`

	PositionsCacheTTLSeconds int `yaml:"positions_cache_ttl_seconds"`
	RecentAlertsLimit        int `yaml:"recent_alerts_limit"`

	WorkerHTTPAddr string `yaml:"worker_http_addr"`
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
