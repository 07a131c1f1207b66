package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	BotToken        string
	LogChannelID    int64
	StartImage      string
	JoinLinks       []string
	AdminIDs        []int64
	TwoFactorPhones []string
	FlowTimeout     time.Duration
	SweepInterval   time.Duration
	Batch           BulkConfig
	Broadcast       BulkConfig
	Database        DatabaseConfig
}

// BulkConfig bounds one kind of bulk operation
type BulkConfig struct {
	Limit       int
	Parallelism int
	Rate        float64
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if not exists)
	_ = godotenv.Load()

	p := &parser{}
	cfg := &Config{
		BotToken:        os.Getenv("BOT_TOKEN"),
		LogChannelID:    p.int64("LOG_CHANNEL_ID", 0),
		StartImage:      os.Getenv("START_IMAGE"),
		JoinLinks:       getList("JOIN_LINKS"),
		AdminIDs:        p.int64List("ADMIN_IDS"),
		TwoFactorPhones: getList("TWO_FACTOR_PHONES"),
		FlowTimeout:     p.duration("FLOW_TIMEOUT", 300*time.Second),
		SweepInterval:   p.duration("SWEEP_INTERVAL", 30*time.Second),
		Batch: BulkConfig{
			Limit:       p.int("BATCH_LIMIT", 1000),
			Parallelism: p.int("BATCH_PARALLELISM", 1),
		},
		Broadcast: BulkConfig{
			Limit:       p.int("BATCH_LIMIT", 1000),
			Parallelism: p.int("BROADCAST_PARALLELISM", 4),
			Rate:        p.float("BROADCAST_RATE", 25),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			Name:     getEnv("DB_NAME", "chatagent"),
			User:     getEnv("DB_USER", "chatagent"),
			Password: os.Getenv("DB_PASSWORD"),
		},
	}
	if p.err != nil {
		return nil, p.err
	}

	// Validate required fields
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("BOT_TOKEN is required")
	}
	if cfg.LogChannelID == 0 {
		return nil, fmt.Errorf("LOG_CHANNEL_ID is required")
	}
	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}
	if cfg.FlowTimeout <= 0 {
		return nil, fmt.Errorf("FLOW_TIMEOUT must be positive")
	}

	return cfg, nil
}

// DSN returns PostgreSQL connection string
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getList splits a comma separated variable, dropping empty entries
func getList(key string) []string {
	var list []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}

// parser reads typed variables and keeps the first malformed one
type parser struct {
	err error
}

func (p *parser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
}

func (p *parser) int64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		p.fail(key, value, err)
		return defaultValue
	}
	return n
}

func (p *parser) int(key string, defaultValue int) int {
	return int(p.int64(key, int64(defaultValue)))
}

func (p *parser) float(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		p.fail(key, value, err)
		return defaultValue
	}
	return f
}

func (p *parser) duration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		p.fail(key, value, err)
		return defaultValue
	}
	return d
}

func (p *parser) int64List(key string) []int64 {
	var ids []int64
	for _, item := range getList(key) {
		id, err := strconv.ParseInt(item, 10, 64)
		if err != nil {
			p.fail(key, item, err)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
