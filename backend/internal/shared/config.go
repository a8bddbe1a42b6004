// ============================================================================
// backend/internal/shared/config.go
// Service configuration and environment variable helpers
// ============================================================================

package shared

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ============================================================================
// Configuration Structs
// ============================================================================

// ServiceConfig holds the configuration of the grading service
type ServiceConfig struct {
	ServiceName string
	HTTPPort    string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error

	MongoDB  MongoConfig
	GRPC     GRPCConfig
	Security SecurityConfig
	Kafka    KafkaConfig
	Upload   UploadConfig
	CORS     CORSConfig
}

// GRPCConfig holds the gRPC health endpoint configuration
type GRPCConfig struct {
	HealthPort     string
	MaxRecvMsgSize int // Maximum receive message size in bytes
	MaxSendMsgSize int // Maximum send message size in bytes
	RequestTimeout time.Duration
}

// SecurityConfig holds token verification settings. Tokens are issued by the
// LMS auth service; this service only verifies them.
type SecurityConfig struct {
	JWTSecret string
	JWTIssuer string
}

// KafkaConfig holds the broker settings for posted-grade notifications
type KafkaConfig struct {
	Brokers          []string
	PostedGradeTopic string
	WriteTimeout     time.Duration
}

// UploadConfig holds spreadsheet upload and staging settings
type UploadConfig struct {
	MaxUploadBytes int64
	MetadataRows   int
	StagingTTL     time.Duration
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           int // in seconds
}

// ============================================================================
// Configuration Loading Functions
// ============================================================================

// LoadEnv loads environment variables from .env file
func LoadEnv(envFile string) error {
	if envFile == "" {
		envFile = ".env"
	}

	if err := godotenv.Load(envFile); err != nil {
		log.Printf("WARN: %s file not found, using system environment variables", envFile)
		return err
	}

	log.Printf("INFO: Loaded environment from %s", envFile)
	return nil
}

// LoadServiceConfig loads the service configuration from environment
func LoadServiceConfig(serviceName string) (*ServiceConfig, error) {
	config := &ServiceConfig{
		ServiceName: serviceName,
		HTTPPort:    GetEnv("HTTP_PORT", DefaultHTTPPort),
		Environment: GetEnv("ENVIRONMENT", "development"),
		LogLevel:    GetEnv("LOG_LEVEL", "info"),
	}

	mongoURI := GetEnv("MONGO_URI", "")
	if mongoURI == "" {
		return nil, fmt.Errorf("MONGO_URI environment variable is required")
	}

	config.MongoDB = MongoConfig{
		URI:            mongoURI,
		Database:       GetEnv("MONGO_DB_NAME", "shs_lms"),
		ConnectTimeout: GetDurationEnv("MONGO_CONNECT_TIMEOUT", 20*time.Second),
		MaxPoolSize:    uint64(GetIntEnv("MONGO_MAX_POOL_SIZE", 50)),
		MinPoolSize:    uint64(GetIntEnv("MONGO_MIN_POOL_SIZE", 5)),
		MaxIdleTime:    GetDurationEnv("MONGO_MAX_IDLE_TIME", 30*time.Second),
	}

	config.GRPC = GRPCConfig{
		HealthPort:     GetEnv("GRPC_HEALTH_PORT", DefaultHealthPort),
		MaxRecvMsgSize: GetIntEnv("GRPC_MAX_RECV_MSG_SIZE", 4*1024*1024),
		MaxSendMsgSize: GetIntEnv("GRPC_MAX_SEND_MSG_SIZE", 4*1024*1024),
		RequestTimeout: GetDurationEnv("GRPC_REQUEST_TIMEOUT", 10*time.Second),
	}

	config.Security = SecurityConfig{
		JWTSecret: GetEnv("JWT_SECRET", ""),
		JWTIssuer: GetEnv("JWT_ISSUER", "shs-lms"),
	}

	config.Kafka = KafkaConfig{
		Brokers:          GetStringSliceEnv("KAFKA_BROKERS", nil),
		PostedGradeTopic: GetEnv("KAFKA_POSTED_GRADES_TOPIC", "grades.posted"),
		WriteTimeout:     GetDurationEnv("KAFKA_WRITE_TIMEOUT", 5*time.Second),
	}

	config.Upload = UploadConfig{
		MaxUploadBytes: GetInt64Env("UPLOAD_MAX_BYTES", 5*1024*1024),
		MetadataRows:   GetIntEnv("UPLOAD_METADATA_ROWS", 12),
		StagingTTL:     GetDurationEnv("STAGING_TTL", 12*time.Hour),
	}

	config.CORS = CORSConfig{
		AllowedOrigins:   GetStringSliceEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
		AllowedMethods:   GetStringSliceEnv("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
		AllowedHeaders:   GetStringSliceEnv("CORS_ALLOWED_HEADERS", []string{"Accept", "Authorization", "Content-Type"}),
		AllowCredentials: GetBoolEnv("CORS_ALLOW_CREDENTIALS", true),
		MaxAge:           GetIntEnv("CORS_MAX_AGE", 300),
	}

	return config, nil
}

// ============================================================================
// Environment Variable Helper Functions
// ============================================================================

// GetEnv retrieves an environment variable or returns a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetIntEnv retrieves an integer environment variable or returns a default value
func GetIntEnv(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("WARN: Invalid integer value for %s: %s, using default: %d", key, valueStr, defaultValue)
		return defaultValue
	}

	return value
}

// GetInt64Env retrieves an int64 environment variable or returns a default value
func GetInt64Env(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		log.Printf("WARN: Invalid integer value for %s: %s, using default: %d", key, valueStr, defaultValue)
		return defaultValue
	}

	return value
}

// GetBoolEnv retrieves a boolean environment variable or returns a default value
func GetBoolEnv(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("WARN: Invalid boolean value for %s: %s, using default: %t", key, valueStr, defaultValue)
		return defaultValue
	}

	return value
}

// GetDurationEnv retrieves a duration environment variable or returns a default value
// Supports format like "30s", "5m", "1h"
func GetDurationEnv(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("WARN: Invalid duration value for %s: %s, using default: %v", key, valueStr, defaultValue)
		return defaultValue
	}

	return value
}

// GetStringSliceEnv retrieves a comma-separated string list or returns a default value
func GetStringSliceEnv(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var result []string
	for _, part := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}

	return result
}

// ============================================================================
// Configuration Validation
// ============================================================================

// ValidateServiceConfig validates service configuration
func ValidateServiceConfig(config *ServiceConfig) error {
	if config.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}

	if config.HTTPPort == "" {
		return fmt.Errorf("HTTP port is required")
	}

	if config.MongoDB.URI == "" {
		return fmt.Errorf("MongoDB URI is required")
	}

	if config.MongoDB.Database == "" {
		return fmt.Errorf("MongoDB database name is required")
	}

	if config.Security.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required to verify LMS tokens")
	}

	if config.Upload.MetadataRows <= 0 {
		return fmt.Errorf("UPLOAD_METADATA_ROWS must be positive")
	}

	return nil
}

// PrintConfig prints configuration (sanitized) for debugging
func PrintConfig(config *ServiceConfig) {
	log.Println("=== Service Configuration ===")
	log.Printf("Service Name: %s", config.ServiceName)
	log.Printf("HTTP Port: %s", config.HTTPPort)
	log.Printf("Environment: %s", config.Environment)
	log.Printf("Log Level: %s", GetLogLevel(config))
	log.Println("=== MongoDB Configuration ===")
	log.Printf("Database: %s", config.MongoDB.Database)
	log.Printf("Max Pool Size: %d", config.MongoDB.MaxPoolSize)
	log.Printf("Min Pool Size: %d", config.MongoDB.MinPoolSize)
	log.Println("=== gRPC Health Configuration ===")
	log.Printf("Health Port: %s", config.GRPC.HealthPort)
	log.Println("=== Kafka Configuration ===")
	if len(config.Kafka.Brokers) == 0 {
		log.Println("Brokers: none (posted-grade events are logged only)")
	} else {
		log.Printf("Brokers: %v", config.Kafka.Brokers)
		log.Printf("Posted Grades Topic: %s", config.Kafka.PostedGradeTopic)
	}
	log.Println("=== Upload Configuration ===")
	log.Printf("Max Upload Size: %d bytes", config.Upload.MaxUploadBytes)
	log.Printf("Metadata Rows: %d", config.Upload.MetadataRows)
	log.Printf("Staging TTL: %v", config.Upload.StagingTTL)
	log.Println("=== CORS Configuration ===")
	log.Printf("Allowed Origins: %v", config.CORS.AllowedOrigins)
	log.Println("=============================")
}

// ============================================================================
// Defaults
// ============================================================================

const (
	DefaultHTTPPort   = "8084"
	DefaultHealthPort = "50064"
)

// IsDevelopment checks if running in development environment
func IsDevelopment(config *ServiceConfig) bool {
	return config.Environment == "development"
}

// GetLogLevel returns the configured log level
func GetLogLevel(config *ServiceConfig) string {
	switch config.LogLevel {
	case "debug", "info", "warn", "error":
		return config.LogLevel
	}
	return "info"
}
