/**
 * @description
 * This file handles configuration management for the subscription-service.
 * It loads settings from environment variables, providing defaults for the
 * cron schedules and the expiry grace period.
 */
package config

import (
	"github.com/spf13/viper"
)

// Config holds all configuration for the subscription service.
type Config struct {
	ServerPort             string `mapstructure:"SERVER_PORT"`
	DatabaseURL            string `mapstructure:"DATABASE_URL"`
	RabbitMQURL            string `mapstructure:"RABBITMQ_URL"`
	RedisURL               string `mapstructure:"REDIS_URL"`
	JWKSURL                string `mapstructure:"JWKS_URL"`
	ExchangeRateAPIURL     string `mapstructure:"EXCHANGE_RATE_API_URL"`
	ReminderResyncSchedule string `mapstructure:"REMINDER_RESYNC_SCHEDULE"`
	ExpirySweepSchedule    string `mapstructure:"EXPIRY_SWEEP_SCHEDULE"`
	RateRefreshSchedule    string `mapstructure:"RATE_REFRESH_SCHEDULE"`
	ExpiryGraceDays        int    `mapstructure:"EXPIRY_GRACE_DAYS"`
	Timezone               string `mapstructure:"TIMEZONE"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	viper.SetDefault("SERVER_PORT", "8086")
	viper.SetDefault("EXCHANGE_RATE_API_URL", "https://api.exchangerate-api.com/v4/latest/USD")
	viper.SetDefault("REMINDER_RESYNC_SCHEDULE", "0 6 * * *")  // At 06:00 daily.
	viper.SetDefault("EXPIRY_SWEEP_SCHEDULE", "30 0 * * *")    // At 00:30 daily.
	viper.SetDefault("RATE_REFRESH_SCHEDULE", "0 3 * * *")     // At 03:00 daily.
	viper.SetDefault("EXPIRY_GRACE_DAYS", 3)
	viper.SetDefault("TIMEZONE", "UTC")
	viper.AutomaticEnv()

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("JWKS_URL")
	_ = viper.BindEnv("EXCHANGE_RATE_API_URL")
	_ = viper.BindEnv("REMINDER_RESYNC_SCHEDULE")
	_ = viper.BindEnv("EXPIRY_SWEEP_SCHEDULE")
	_ = viper.BindEnv("RATE_REFRESH_SCHEDULE")
	_ = viper.BindEnv("EXPIRY_GRACE_DAYS")
	_ = viper.BindEnv("TIMEZONE")

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
