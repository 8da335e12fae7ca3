package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv     string
	AppPort    string
	AppBaseURL string

	DBHost            string
	DBUser            string
	DBPassword        string
	DBName            string
	DBPort            string
	DBSSLMode         string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	PaystackSecretKey string
	PaystackBaseURL   string
	PaystackTimeout   time.Duration

	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	FrogWigalAPIKey   string
	FrogWigalUsername string
	FrogWigalSenderID string
	FrogWigalBaseURL  string

	KafkaBrokers         []string
	KafkaTopic           string
	KafkaUsername        string
	KafkaPassword        string
	KafkaMaxBuffered     int
	KafkaDeliveryTimeout time.Duration

	JWTSecret         string
	InternalSecretKey string
}

// LoadConfig reads the environment (and a .env file when present). Unset
// integration credentials are left empty so callers can fall back to noop
// implementations instead of failing startup.
func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:     getEnv("APP_ENV", "development"),
		AppPort:    getEnv("APP_PORT", "8080"),
		AppBaseURL: strings.TrimRight(getEnv("APP_BASE_URL", "http://localhost:3000"), "/"),

		DBHost:            getEnv("DB_HOST", "localhost"),
		DBUser:            getEnv("DB_USER", "postgres"),
		DBPassword:        os.Getenv("DB_PASSWORD"),
		DBName:            getEnv("DB_NAME", "cediman"),
		DBPort:            getEnv("DB_PORT", "5432"),
		DBSSLMode:         getEnv("DB_SSLMODE", "disable"),
		DBMaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),

		PaystackSecretKey: os.Getenv("PAYSTACK_SECRET_KEY"),
		PaystackBaseURL:   getEnv("PAYSTACK_BASE_URL", "https://api.paystack.co"),
		PaystackTimeout:   getEnvDuration("PAYSTACK_TIMEOUT", 30*time.Second),

		SendGridAPIKey:    os.Getenv("SENDGRID_API_KEY"),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", "orders@cediman.com"),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Cediman"),

		FrogWigalAPIKey:   os.Getenv("FROGWIGAL_API_KEY"),
		FrogWigalUsername: os.Getenv("FROGWIGAL_USERNAME"),
		FrogWigalSenderID: getEnv("FROGWIGAL_SENDER_ID", "Cediman"),
		FrogWigalBaseURL:  getEnv("FROGWIGAL_BASE_URL", "https://frogapi.wigal.com.gh"),

		KafkaBrokers:         getEnvList("KAFKA_BROKERS"),
		KafkaTopic:           getEnv("KAFKA_TOPIC", "order-status"),
		KafkaUsername:        os.Getenv("KAFKA_USERNAME"),
		KafkaPassword:        os.Getenv("KAFKA_PASSWORD"),
		KafkaMaxBuffered:     getEnvInt("KAFKA_MAX_BUFFERED_RECORDS", 10000),
		KafkaDeliveryTimeout: getEnvDuration("KAFKA_DELIVERY_TIMEOUT", 30*time.Second),

		JWTSecret:         os.Getenv("JWT_SECRET"),
		InternalSecretKey: os.Getenv("INTERNAL_SECRET_KEY"),
	}

	if cfg.PaystackSecretKey == "" {
		log.Println("PAYSTACK_SECRET_KEY not set, payment calls will be rejected by the gateway")
	}

	return cfg
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// TrackingURL is the customer-facing tracking link for an order.
func (c *Config) TrackingURL(orderID string) string {
	return c.AppBaseURL + "/track/" + orderID
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		log.Printf("invalid integer for %s, using default", key)
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		log.Printf("invalid duration for %s, using default", key)
	}
	return defaultValue
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
