package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/joho/godotenv"
)

type Config struct {
	App          AppConfig
	HTTP         HTTPConfig
	MySQL        MySQLConfig
	JWT          JWTConfig
	Verification VerificationConfig
	Kafka        KafkaConfig
	SMTP         SMTPConfig
	Mail         MailConfig
	Password     PasswordConfig
	Log          LogConfig
}

type AppConfig struct {
	Name      string
	ServerURL string
	Debug     bool
}

type HTTPConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN string
}

type JWTConfig struct {
	Secret          string
	Algorithm       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type VerificationConfig struct {
	CodeTTL time.Duration
}

type KafkaConfig struct {
	Brokers    []string
	EmailTopic string
	GroupID    string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

type MailConfig struct {
	Workers      int
	QueueSize    int
	DrainTimeout time.Duration
	SendTimeout  time.Duration
}

type PasswordConfig struct {
	Policy PasswordPolicy
}

type LogConfig struct {
	Level  string
	Format string
}

type PasswordPolicy struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireNumber    bool
	RequireSpecial   bool
}

func (p PasswordPolicy) Validate(password string) error {
	if len(password) < p.MinLength {
		return fmt.Errorf("password must be at least %d characters long", p.MinLength)
	}

	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, ch := range password {
		switch {
		case unicode.IsUpper(ch):
			hasUpper = true
		case unicode.IsLower(ch):
			hasLower = true
		case unicode.IsDigit(ch):
			hasNumber = true
		case unicode.IsPunct(ch) || unicode.IsSymbol(ch):
			hasSpecial = true
		}
	}

	var missing []string
	if p.RequireUppercase && !hasUpper {
		missing = append(missing, "uppercase letter")
	}
	if p.RequireLowercase && !hasLower {
		missing = append(missing, "lowercase letter")
	}
	if p.RequireNumber && !hasNumber {
		missing = append(missing, "number")
	}
	if p.RequireSpecial && !hasSpecial {
		missing = append(missing, "special character")
	}

	if len(missing) > 0 {
		return fmt.Errorf("password must contain at least one: %s", strings.Join(missing, ", "))
	}

	return nil
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignores error if not found)
	_ = godotenv.Load()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, errors.New("JWT_SECRET environment variable is required")
	}

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	codeTTL := getMinutesEnv("VERIFY_CODE_EXPIRE_MINUTES", 24*time.Hour)
	if codeTTL <= 0 {
		return nil, errors.New("VERIFY_CODE_EXPIRE_MINUTES must be positive")
	}

	sendTimeout := getSecondsEnv("MAIL_SEND_TIMEOUT_SECONDS", 30*time.Second)

	return &Config{
		App: AppConfig{
			Name:      getEnv("APP_NAME", "credentials"),
			ServerURL: strings.TrimRight(getEnv("SERVER_URL", "http://localhost:8080"), "/"),
			Debug:     getBoolEnv("DEBUG_MODE", false),
		},
		HTTP: HTTPConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		MySQL: MySQLConfig{
			DSN: mysqlDSN,
		},
		JWT: JWTConfig{
			Secret:          jwtSecret,
			Algorithm:       getEnv("JWT_ALGORITHM", "HS256"),
			AccessTokenTTL:  getMinutesEnv("ACCESS_TOKEN_EXPIRE_MINUTES", 15*time.Minute),
			RefreshTokenTTL: getDaysEnv("REFRESH_TOKEN_EXPIRE_DAYS", 7*24*time.Hour),
		},
		Verification: VerificationConfig{
			CodeTTL: codeTTL,
		},
		Kafka: KafkaConfig{
			Brokers:    getListEnv("KAFKA_BOOTSTRAP_SERVERS", []string{"localhost:9092"}),
			EmailTopic: getEnv("KAFKA_EMAIL_TOPIC", "email-notifications"),
			GroupID:    getEnv("KAFKA_EMAIL_GROUP", "email-senders"),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_SERVER", "localhost"),
			Port:     getIntEnv("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     getEnv("MAIL_FROM", os.Getenv("SMTP_USERNAME")),
			Timeout:  sendTimeout,
		},
		Mail: MailConfig{
			Workers:      getIntEnv("MAIL_WORKERS", 4),
			QueueSize:    getIntEnv("MAIL_QUEUE_SIZE", 64),
			DrainTimeout: getSecondsEnv("MAIL_DRAIN_TIMEOUT_SECONDS", 10*time.Second),
			SendTimeout:  sendTimeout,
		},
		Password: PasswordConfig{
			Policy: loadPasswordPolicy(),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}, nil
}

func (c *Config) DSN() string {
	return c.MySQL.DSN
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getDaysEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if days, err := strconv.Atoi(value); err == nil {
			return time.Duration(days) * 24 * time.Hour
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}

func loadPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:        getIntEnv("PASSWORD_MIN_LENGTH", 8),
		RequireUppercase: getBoolEnv("PASSWORD_REQUIRE_UPPERCASE", true),
		RequireLowercase: getBoolEnv("PASSWORD_REQUIRE_LOWERCASE", true),
		RequireNumber:    getBoolEnv("PASSWORD_REQUIRE_NUMBER", true),
		RequireSpecial:   getBoolEnv("PASSWORD_REQUIRE_SPECIAL", false),
	}
}
