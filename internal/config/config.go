package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Application
	AppName          string
	AppEnv           string
	AppPort          string
	AppURL           string
	ActivationURL    string
	OrganizationName string

	// Database
	DBHost            string
	DBPort            string
	DBDatabase        string
	DBUsername        string
	DBPassword        string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// JWT
	JWTSecret string

	// Upload
	UploadMaxSize int
	UploadPath    string

	// Processing
	WorkerConcurrency int
	LockTTL           time.Duration

	// Asynq
	AsynqRedisAddr     string
	AsynqRedisPassword string
	AsynqRedisDB       int

	// Credentials
	CredentialHasher string
	BcryptCost       int
	TempSecretLength int
	TempSecretTTL    time.Duration

	// Delivery
	SMSGatewayURL      string
	SMSGatewayAPIKey   string
	SMSSender          string
	MailerSendAPIKey   string
	MailFromName       string
	MailFromEmail      string
	SMTPHost           string
	SMTPPort           int
	SMTPUsername       string
	SMTPPassword       string
	SMSConcurrency     int
	EmailConcurrency   int
	SMSRatePerSecond   float64
	EmailRatePerSecond float64
	SendTimeout        time.Duration

	// Retry
	RetryBaseInterval time.Duration
	RetryMaxInterval  time.Duration
	RetryMaxAttempts  int

	// Events
	NATSURL string

	// Field encryption (hex encoded 32 byte key, empty disables)
	FieldEncryptionKey string
}

func Load() (*Config, error) {
	// Load .env file if exists
	// Try to load from current dir first, then parent dirs
	_ = godotenv.Load()
	_ = godotenv.Load("../../.env") // For when running from cmd/web or cmd/worker

	cfg := &Config{
		AppName:          getEnv("APP_NAME", "Member Onboarding"),
		AppEnv:           getEnv("APP_ENV", "development"),
		AppPort:          getEnv("APP_PORT", "8080"),
		AppURL:           getEnv("APP_URL", "http://localhost:8080"),
		ActivationURL:    getEnv("ACTIVATION_URL", "http://localhost:3000/activate"),
		OrganizationName: getEnv("ORGANIZATION_NAME", "Member Services"),

		DBHost:            getEnv("DB_HOST", "127.0.0.1"),
		DBPort:            getEnv("DB_PORT", "3306"),
		DBDatabase:        getEnv("DB_DATABASE", "onboarding"),
		DBUsername:        getEnv("DB_USERNAME", "onboarding"),
		DBPassword:        getEnv("DB_PASSWORD", ""),
		DBMaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
		DBConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		JWTSecret: getEnv("JWT_SECRET", "change-this-secret-key"),

		UploadMaxSize: getEnvAsInt("UPLOAD_MAX_SIZE", 10485760), // 10MB
		UploadPath:    getEnv("UPLOAD_PATH", "./storage/uploads"),

		WorkerConcurrency: getEnvAsInt("WORKER_CONCURRENCY", 4),
		LockTTL:           getEnvAsDuration("LOCK_TTL", 2*time.Minute),

		AsynqRedisAddr:     getEnv("ASYNQ_REDIS_ADDR", "127.0.0.1:6379"),
		AsynqRedisPassword: getEnv("ASYNQ_REDIS_PASSWORD", ""),
		AsynqRedisDB:       getEnvAsInt("ASYNQ_REDIS_DB", 0),

		CredentialHasher: getEnv("CREDENTIAL_HASHER", "bcrypt"),
		BcryptCost:       getEnvAsInt("BCRYPT_COST", 12),
		TempSecretLength: getEnvAsInt("TEMP_SECRET_LENGTH", 12),
		TempSecretTTL:    getEnvAsDuration("TEMP_SECRET_TTL", 24*time.Hour),

		SMSGatewayURL:      getEnv("SMS_GATEWAY_URL", ""),
		SMSGatewayAPIKey:   getEnv("SMS_GATEWAY_API_KEY", ""),
		SMSSender:          getEnv("SMS_SENDER", "MEMBERS"),
		MailerSendAPIKey:   getEnv("MAILERSEND_API_KEY", ""),
		MailFromName:       getEnv("MAIL_FROM_NAME", "Member Services"),
		MailFromEmail:      getEnv("MAIL_FROM_EMAIL", ""),
		SMTPHost:           getEnv("SMTP_HOST", ""),
		SMTPPort:           getEnvAsInt("SMTP_PORT", 1025),
		SMTPUsername:       getEnv("SMTP_USERNAME", ""),
		SMTPPassword:       getEnv("SMTP_PASSWORD", ""),
		SMSConcurrency:     getEnvAsInt("SMS_CONCURRENCY", 4),
		EmailConcurrency:   getEnvAsInt("EMAIL_CONCURRENCY", 4),
		SMSRatePerSecond:   getEnvAsFloat("SMS_RATE_PER_SECOND", 0),
		EmailRatePerSecond: getEnvAsFloat("EMAIL_RATE_PER_SECOND", 0),
		SendTimeout:        getEnvAsDuration("SEND_TIMEOUT", 10*time.Second),

		RetryBaseInterval: getEnvAsDuration("RETRY_BASE_INTERVAL", 30*time.Second),
		RetryMaxInterval:  getEnvAsDuration("RETRY_MAX_INTERVAL", 10*time.Minute),
		RetryMaxAttempts:  getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),

		NATSURL: getEnv("NATS_URL", ""),

		FieldEncryptionKey: getEnv("FIELD_ENCRYPTION_KEY", ""),
	}

	if cfg.TempSecretLength < 8 {
		return nil, fmt.Errorf("TEMP_SECRET_LENGTH must be at least 8, got %d", cfg.TempSecretLength)
	}
	if cfg.RetryMaxAttempts < 1 {
		return nil, fmt.Errorf("RETRY_MAX_ATTEMPTS must be positive, got %d", cfg.RetryMaxAttempts)
	}

	return cfg, nil
}

func (c *Config) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&loc=UTC&clientFoundRows=true",
		c.DBUsername,
		c.DBPassword,
		c.DBHost,
		c.DBPort,
		c.DBDatabase,
	)
}

func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
