package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds settings shared by every binary. Each value is read from the
// upper-cased environment variable of its key (port -> PORT).
type Config struct {
	Port                string        `mapstructure:"port"`
	PostgresURL         string        `mapstructure:"postgres_url"`
	PostgresSchema      string        `mapstructure:"postgres_schema"`
	KafkaBrokers        []string      `mapstructure:"kafka_brokers"`
	OrderEventsTopic    string        `mapstructure:"order_events_topic"`
	ShipmentTopic       string        `mapstructure:"shipment_topic"`
	ConsumerGroup       string        `mapstructure:"consumer_group"`
	EmailServiceURL     string        `mapstructure:"email_service_url"`
	OrdersServiceURL    string        `mapstructure:"orders_service_url"`
	InventoryServiceURL string        `mapstructure:"inventory_service_url"`
	RedisAddr           string        `mapstructure:"redis_addr"`
	JWTSecret           string        `mapstructure:"jwt_secret"`
	SweepInterval       time.Duration `mapstructure:"sweep_interval"`
	SweepLockTTL        time.Duration `mapstructure:"sweep_lock_ttl"`
	MigrationsPath      string        `mapstructure:"migrations_path"`
}

func Load(defaultPort string) (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("port", defaultPort)
	v.SetDefault("postgres_url", "")
	v.SetDefault("postgres_schema", "shop")
	v.SetDefault("kafka_brokers", "")
	v.SetDefault("order_events_topic", "order.created")
	v.SetDefault("shipment_topic", "order.shipped")
	v.SetDefault("consumer_group", "notification-worker")
	v.SetDefault("email_service_url", "")
	v.SetDefault("orders_service_url", "")
	v.SetDefault("inventory_service_url", "")
	v.SetDefault("redis_addr", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("sweep_interval", "1m")
	v.SetDefault("sweep_lock_ttl", "50s")
	v.SetDefault("migrations_path", "file://migrations")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers)

	return &cfg, nil
}

// Require returns an error naming every variable whose value is empty.
func Require(values map[string]string) error {
	var missing []string
	for name, value := range values {
		if value == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
}

func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
