package config

import (
	"log"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is the full service configuration, loaded from YAML.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	MySQL     MySQLConfig     `mapstructure:"mysql"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Processor ProcessorConfig `mapstructure:"processor"`
	Business  BusinessConfig  `mapstructure:"business"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers       []string         `mapstructure:"brokers"`
	ConsumerGroup string           `mapstructure:"consumer_group"`
	Topic         KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	UserApproved      string `mapstructure:"user_approved"`
	InvestmentCreated string `mapstructure:"investment_created"`
	RentalPayout      string `mapstructure:"rental_payout"`
	Notifications     string `mapstructure:"notifications"`
}

// ProcessorConfig configures the external Investment Processor client.
type ProcessorConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxAttempts    int    `mapstructure:"max_attempts"`
}

// RewardTier is the referral reward configuration for one currency.
// It is snapshotted onto the referral row at creation time, so later
// config changes never alter already-promised amounts.
type RewardTier struct {
	RefereeReward  string `mapstructure:"referee_reward"`
	ReferrerReward string `mapstructure:"referrer_reward"`
	MinInvestment  string `mapstructure:"min_investment"`
}

type BusinessConfig struct {
	Rewards             map[string]RewardTier `mapstructure:"rewards"`
	MinReinvestAmount   string                `mapstructure:"min_reinvest_amount"`
	MaxRetryCount       int                   `mapstructure:"max_retry_count"`
	ReconcileSeconds    int                   `mapstructure:"reconcile_interval_seconds"`
	SubmitterSeconds    int                   `mapstructure:"submitter_interval_seconds"`
	StaleAllocationMins int                   `mapstructure:"stale_allocation_minutes"`
}

// Tier returns the reward tier for a currency, or false when the
// currency is not an operating market.
func (b *BusinessConfig) Tier(currency string) (RewardTier, bool) {
	tier, ok := b.Rewards[currency]
	return tier, ok
}

// MustDecimal parses a config amount, dying on malformed values so a bad
// deployment fails at startup instead of mis-crediting later.
func MustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		log.Fatalf("invalid decimal in config: %q: %v", s, err)
	}
	return d
}

var GlobalConfig *Config

// LoadConfig reads and parses the YAML config file.
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("read config: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("parse config: %v", err)
	}

	GlobalConfig = config
	return config
}
