package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds application configuration
type Config struct {
	AppEnv string

	// Provider API configuration
	Provider ProviderConfig

	// Database configuration
	DatabaseHost     string
	DatabasePort     string
	DatabaseName     string
	DatabaseUser     string
	DatabasePassword string

	// Redis configuration
	RedisHost     string
	RedisPassword string
	RedisPort     string

	// Email configuration
	Email EmailConfig

	// Alerting configuration
	Alerts AlertConfig

	// Scheduler configuration
	DailyJobTime string // "HH:MM"
	APIPort      int

	// SandboxDayOffset shifts the logical "today" backwards so a sandbox
	// provider account with a frozen timeline still lines up with real dates.
	SandboxDayOffset int
}

// ProviderConfig holds the coaching-platform API configuration
type ProviderConfig struct {
	APIBase      string
	AuthBase     string
	ClientID     string
	ClientSecret string
	Scope        string
	Timeout      time.Duration
}

// EmailConfig holds outbound email (SendGrid) configuration
type EmailConfig struct {
	APIKey         string
	BaseURL        string
	FromEmail      string
	FromName       string
	HeadCoachEmail string
	Timeout        time.Duration
}

// AlertConfig holds recovery-alert evaluation parameters
type AlertConfig struct {
	// RecoveryThreshold is the fractional deviation from baseline that counts
	// as a breach (0.05 = 5%).
	RecoveryThreshold float64
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	return &Config{
		AppEnv: getEnvOrDefault("APP_ENV", "dev"),

		Provider: ProviderConfig{
			APIBase:      getEnvOrDefault("TP_API_BASE", "https://api.sandbox.trainingpeaks.com"),
			AuthBase:     getEnvOrDefault("TP_AUTH_BASE", "https://oauth.sandbox.trainingpeaks.com"),
			ClientID:     os.Getenv("TP_CLIENT_ID"),
			ClientSecret: os.Getenv("TP_CLIENT_SECRET"),
			Scope:        getEnvOrDefault("TP_SCOPE", "athlete:profile metrics:read workouts:read workouts:details"),
			Timeout:      time.Duration(getEnvInt("TP_API_TIMEOUT_SECONDS", 30)) * time.Second,
		},

		// Database configuration
		DatabaseHost:     getEnvOrDefault("DB_HOST", "localhost"),
		DatabasePort:     getEnvOrDefault("DB_PORT", "5432"),
		DatabaseName:     getEnvOrDefault("DB_NAME", "podium_coach"),
		DatabaseUser:     getEnvOrDefault("DB_USER", "podium"),
		DatabasePassword: getEnvOrDefault("DB_PASSWORD", "podium123"),

		// Redis configuration
		RedisHost:     getEnvOrDefault("REDIS_HOST", "localhost"),
		RedisPort:     getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),

		Email: EmailConfig{
			APIKey:         os.Getenv("SENDGRID_API_KEY"),
			BaseURL:        getEnvOrDefault("SENDGRID_BASE_URL", "https://api.sendgrid.com"),
			FromEmail:      getEnvOrDefault("SENDGRID_FROM_EMAIL", "alerts@podium-coach.local"),
			FromName:       getEnvOrDefault("SENDGRID_FROM_NAME", "Podium Coach"),
			HeadCoachEmail: getEnvOrDefault("HEAD_COACH_EMAIL", ""),
			Timeout:        time.Duration(getEnvInt("SENDGRID_TIMEOUT_SECONDS", 10)) * time.Second,
		},

		Alerts: AlertConfig{
			RecoveryThreshold: getEnvFloat("ALERT_RECOVERY_THRESHOLD", 0.05),
		},

		DailyJobTime:     getEnvOrDefault("DAILY_JOB_TIME", "07:30"),
		APIPort:          getEnvInt("API_PORT", 8080),
		SandboxDayOffset: getEnvInt("SANDBOX_CURRENT_DAY_OFFSET", 0),
	}
}

// EffectiveToday returns the logical "today" taking the sandbox offset into
// account, truncated to a UTC calendar date.
func (c *Config) EffectiveToday() time.Time {
	now := time.Now().UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if c.SandboxDayOffset <= 0 {
		return day
	}
	return day.AddDate(0, 0, -c.SandboxDayOffset)
}

// getEnvInt gets environment variable as int or returns default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var intValue int
	if _, err := fmt.Sscanf(value, "%d", &intValue); err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvFloat gets environment variable as float64 or returns default value
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var floatValue float64
	if _, err := fmt.Sscanf(value, "%f", &floatValue); err != nil {
		return defaultValue
	}
	return floatValue
}

// getEnvOrDefault gets environment variable or returns default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
