package config

import (
	"errors"
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

const (
	StreamModeWebSocket = "websocket"
	StreamModeKafka     = "kafka"
)

type Config struct {
	ListenAddr  string `env:"CONSOLE_ADDR"`
	UpstreamURL string `env:"UPSTREAM_URL"`
	Token       string `env:"UPSTREAM_TOKEN"`
	Actor       string `env:"CONSOLE_ACTOR"`
	Role        string `env:"CONSOLE_ROLE"`

	StreamMode   string `env:"STREAM_MODE"`
	StreamURL    string `env:"STREAM_URL"`
	RetryCeiling int    `env:"STREAM_RETRY_CEILING"`

	KafkaBrokers string `env:"KAFKA_BROKERS"`
	KafkaGroupID string `env:"KAFKA_GROUP_ID"`
	KafkaTopic   string `env:"KAFKA_TOPIC"`

	AuditDSN string `env:"AUDIT_DATABASE_URL"`
	PageSize int    `env:"CONSOLE_PAGE_SIZE"`
}

// New reads flags first and lets environment variables override them.
func New() (*Config, error) {
	var cfg Config

	flag.StringVar(&cfg.ListenAddr, "a", ":8080", "console listen address")
	flag.StringVar(&cfg.UpstreamURL, "u", "", "upstream order platform base URL")
	flag.StringVar(&cfg.Token, "t", "", "upstream bearer token")
	flag.StringVar(&cfg.Actor, "actor", "operations", "operator name for the audit log")
	flag.StringVar(&cfg.Role, "role", "operations", "console role (admin, operations, sales)")
	flag.StringVar(&cfg.StreamMode, "stream", StreamModeWebSocket, "live channel mode (websocket, kafka)")
	flag.StringVar(&cfg.StreamURL, "ws", "", "live order websocket URL")
	flag.IntVar(&cfg.RetryCeiling, "retry-ceiling", 10, "reconnect attempts before the degraded indicator")
	flag.StringVar(&cfg.KafkaBrokers, "brokers", "localhost:9092", "kafka brokers")
	flag.StringVar(&cfg.KafkaGroupID, "group", "order-console", "kafka consumer group")
	flag.StringVar(&cfg.KafkaTopic, "topic", "order.events", "kafka order events topic")
	flag.StringVar(&cfg.AuditDSN, "audit-dsn", "", "audit database DSN (optional)")
	flag.IntVar(&cfg.PageSize, "page-size", 20, "default order list page size")
	flag.Parse()

	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}

	if cfg.UpstreamURL == "" {
		return nil, errors.New("upstream URL is required")
	}
	if cfg.Token == "" {
		return nil, errors.New("upstream token is required")
	}

	switch cfg.StreamMode {
	case StreamModeWebSocket:
		if cfg.StreamURL == "" {
			return nil, errors.New("websocket stream URL is required in websocket mode")
		}
	case StreamModeKafka:
		if cfg.KafkaBrokers == "" {
			return nil, errors.New("kafka brokers are required in kafka mode")
		}
	default:
		return nil, fmt.Errorf("unknown stream mode: %q", cfg.StreamMode)
	}

	return &cfg, nil
}
