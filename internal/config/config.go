package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// APIServerConfig 保存 HTTP/WebSocket 服务器的配置。
type APIServerConfig struct {
	Host          string        `mapstructure:"HOST"`
	Port          string        `mapstructure:"PORT"`
	WebSocketPath string        `mapstructure:"WEBSOCKET_PATH"`
	ReadTimeout   time.Duration `mapstructure:"READ_TIMEOUT"`
	WriteTimeout  time.Duration `mapstructure:"WRITE_TIMEOUT"`
	CORS          CORSConfig    `mapstructure:"CORS"`
}

// CORSConfig holds configuration for CORS.
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"ALLOWED_ORIGINS"`
	AllowedMethods   []string `mapstructure:"ALLOWED_METHODS"`
	AllowedHeaders   []string `mapstructure:"ALLOWED_HEADERS"`
	ExposedHeaders   []string `mapstructure:"EXPOSED_HEADERS"`
	AllowCredentials bool     `mapstructure:"ALLOW_CREDENTIALS"`
	MaxAge           int      `mapstructure:"MAX_AGE"`
}

// RedisConfig holds configuration for Redis.
type RedisConfig struct {
	Addr     string `mapstructure:"ADDR"`
	Password string `mapstructure:"PASSWORD"`
	DB       int    `mapstructure:"DB"`
}

// Config holds all configuration for the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	AppName      string             `mapstructure:"APP_NAME"`
	AppVersion   string             `mapstructure:"APP_VERSION"`
	LogLevel     string             `mapstructure:"LOG_LEVEL"`
	APIServer    APIServerConfig    `mapstructure:"API_SERVER"`
	Kafka        KafkaConfig        `mapstructure:"KAFKA"`
	Database     DatabaseConfig     `mapstructure:"DATABASE"`
	Storage      StorageConfig      `mapstructure:"STORAGE"`
	Auth         AuthConfig         `mapstructure:"AUTH"`
	WebSocket    WebSocketConfig    `mapstructure:"WEBSOCKET"`
	Redis        RedisConfig        `mapstructure:"REDIS"`
	Subscription SubscriptionConfig `mapstructure:"SUBSCRIPTION"`
	Retry        RetryConfig        `mapstructure:"RETRY"`
}

// KafkaConfig holds configuration for Kafka.
type KafkaConfig struct {
	Enabled            bool     `mapstructure:"ENABLED"`
	Brokers            []string `mapstructure:"BROKERS"`
	ClientID           string   `mapstructure:"CLIENT_ID"`
	Protocol           string   `mapstructure:"PROTOCOL"`
	NotificationsTopic string   `mapstructure:"NOTIFICATIONS_TOPIC"` // 推送服务订阅的通知事件
	PurgeTopic         string   `mapstructure:"PURGE_TOPIC"`         // 删除用户后未完成的关系清理
	ConsumerGroup      string   `mapstructure:"CONSUMER_GROUP"`
}

// DatabaseConfig holds configuration for the database.
// TYPE is "postgres" or "memory"; memory keeps everything in process.
type DatabaseConfig struct {
	Type     string `mapstructure:"TYPE"`
	Host     string `mapstructure:"HOST"`
	Port     int    `mapstructure:"PORT"`
	User     string `mapstructure:"USER"`
	Password string `mapstructure:"PASSWORD"`
	DBName   string `mapstructure:"DB_NAME"`
	SSLMode  string `mapstructure:"SSL_MODE"`
	LogSQL   bool   `mapstructure:"LOG_SQL"`
}

// StorageConfig holds configuration for file storage.
type StorageConfig struct {
	Type          string   `mapstructure:"TYPE"` // "local", "s3"
	LocalPath     string   `mapstructure:"LOCAL_PATH"`
	BaseURL       string   `mapstructure:"BASE_URL"` // 本地文件对外访问前缀
	MaxFileSizeMB int64    `mapstructure:"MAX_FILE_SIZE_MB"`
	S3            S3Config `mapstructure:"S3"`
}

// S3Config holds configuration for AWS S3.
type S3Config struct {
	BucketName      string        `mapstructure:"BUCKET_NAME"`
	Region          string        `mapstructure:"REGION"`
	AccessKeyID     string        `mapstructure:"ACCESS_KEY_ID"`
	SecretAccessKey string        `mapstructure:"SECRET_ACCESS_KEY"`
	Endpoint        string        `mapstructure:"ENDPOINT"` // For S3 compatible storage like MinIO
	UsePathStyle    bool          `mapstructure:"USE_PATH_STYLE"`
	PublicBaseURL   string        `mapstructure:"PUBLIC_BASE_URL"` // 为空时返回预签名 URL
	PresignExpiry   time.Duration `mapstructure:"PRESIGN_EXPIRY"`
}

// AuthConfig holds configuration for authentication.
type AuthConfig struct {
	JWTSecretKey string        `mapstructure:"JWT_SECRET_KEY"`
	JWTExpiry    time.Duration `mapstructure:"JWT_EXPIRY"`
	Issuer       string        `mapstructure:"ISSUER"`
	BcryptCost   int           `mapstructure:"BCRYPT_COST"`
	Blacklist    string        `mapstructure:"BLACKLIST"` // "redis" or "memory"
}

// WebSocketConfig holds configuration for WebSocket connections.
type WebSocketConfig struct {
	WriteWaitSeconds    int `mapstructure:"WRITE_WAIT_SECONDS"`
	PongWaitSeconds     int `mapstructure:"PONG_WAIT_SECONDS"`
	PingPeriodSeconds   int `mapstructure:"PING_PERIOD_SECONDS"`
	MaxMessageSizeBytes int `mapstructure:"MAX_MESSAGE_SIZE_BYTES"`
	SendBufferSize      int `mapstructure:"SEND_BUFFER_SIZE"`
}

// SubscriptionConfig bounds per-subscriber queues in the live query hub.
type SubscriptionConfig struct {
	MaxBacklog int `mapstructure:"MAX_BACKLOG"`
}

// RetryConfig drives backoff for reads and snapshot loads.
type RetryConfig struct {
	InitialInterval time.Duration `mapstructure:"INITIAL_INTERVAL"`
	MaxInterval     time.Duration `mapstructure:"MAX_INTERVAL"`
	MaxElapsedTime  time.Duration `mapstructure:"MAX_ELAPSED_TIME"`
	MaxRetries      uint64        `mapstructure:"MAX_RETRIES"`
}

// LoadConfig reads configuration from file or environment variables.
// A .env file in the working directory, if present, is loaded first.
func LoadConfig(path string) (config Config, err error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.AutomaticEnv()
	// API_SERVER.PORT 对应环境变量 API_SERVER_PORT
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err = v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return
		}
		// 没有配置文件时使用默认值
		err = nil
	}

	err = v.Unmarshal(&config)
	return
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_NAME", "mobilechat")
	v.SetDefault("APP_VERSION", "0.1.0")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("API_SERVER.HOST", "0.0.0.0")
	v.SetDefault("API_SERVER.PORT", "8081")
	v.SetDefault("API_SERVER.WEBSOCKET_PATH", "/ws")
	v.SetDefault("API_SERVER.READ_TIMEOUT", 30*time.Second)
	v.SetDefault("API_SERVER.WRITE_TIMEOUT", 30*time.Second)
	v.SetDefault("API_SERVER.CORS.ALLOWED_ORIGINS", []string{"http://localhost:5173"})
	v.SetDefault("API_SERVER.CORS.ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("API_SERVER.CORS.ALLOWED_HEADERS", []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"})
	v.SetDefault("API_SERVER.CORS.EXPOSED_HEADERS", []string{"Content-Length"})
	v.SetDefault("API_SERVER.CORS.ALLOW_CREDENTIALS", true)
	v.SetDefault("API_SERVER.CORS.MAX_AGE", 300)

	v.SetDefault("KAFKA.ENABLED", false)
	v.SetDefault("KAFKA.BROKERS", []string{"localhost:9092"})
	v.SetDefault("KAFKA.CLIENT_ID", "mobilechat")
	v.SetDefault("KAFKA.PROTOCOL", "plaintext")
	v.SetDefault("KAFKA.NOTIFICATIONS_TOPIC", "mobilechat-notifications")
	v.SetDefault("KAFKA.PURGE_TOPIC", "mobilechat-user-purge")
	v.SetDefault("KAFKA.CONSUMER_GROUP", "mobilechat-api")

	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.HOST", "localhost")
	v.SetDefault("DATABASE.PORT", 5432)
	v.SetDefault("DATABASE.USER", "postgres")
	v.SetDefault("DATABASE.PASSWORD", "password")
	v.SetDefault("DATABASE.DB_NAME", "mobilechat")
	v.SetDefault("DATABASE.SSL_MODE", "disable")
	v.SetDefault("DATABASE.LOG_SQL", false)

	v.SetDefault("STORAGE.TYPE", "local")
	v.SetDefault("STORAGE.LOCAL_PATH", "./uploads")
	v.SetDefault("STORAGE.BASE_URL", "/uploads")
	v.SetDefault("STORAGE.MAX_FILE_SIZE_MB", 10)
	v.SetDefault("STORAGE.S3.REGION", "us-east-1")
	v.SetDefault("STORAGE.S3.PRESIGN_EXPIRY", time.Hour)

	v.SetDefault("AUTH.JWT_SECRET_KEY", "a_very_secret_key_that_should_be_changed")
	v.SetDefault("AUTH.JWT_EXPIRY", 24*time.Hour)
	v.SetDefault("AUTH.ISSUER", "mobilechat")
	v.SetDefault("AUTH.BCRYPT_COST", 10)
	v.SetDefault("AUTH.BLACKLIST", "redis")

	v.SetDefault("REDIS.ADDR", "localhost:6379")
	v.SetDefault("REDIS.PASSWORD", "")
	v.SetDefault("REDIS.DB", 0)

	v.SetDefault("WEBSOCKET.WRITE_WAIT_SECONDS", 10)
	v.SetDefault("WEBSOCKET.PONG_WAIT_SECONDS", 60)
	v.SetDefault("WEBSOCKET.PING_PERIOD_SECONDS", 54) // (60 * 9) / 10
	v.SetDefault("WEBSOCKET.MAX_MESSAGE_SIZE_BYTES", 4096)
	v.SetDefault("WEBSOCKET.SEND_BUFFER_SIZE", 256)

	v.SetDefault("SUBSCRIPTION.MAX_BACKLOG", 64)

	v.SetDefault("RETRY.INITIAL_INTERVAL", 100*time.Millisecond)
	v.SetDefault("RETRY.MAX_INTERVAL", 2*time.Second)
	v.SetDefault("RETRY.MAX_ELAPSED_TIME", 10*time.Second)
	v.SetDefault("RETRY.MAX_RETRIES", 5)
}
