package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	WebSocket WebSocketConfig
	MindMap   MindMapConfig
	LogLevel  string

	// EnvFileLoaded reports whether a .env file was read. Load runs before the logger
	// exists, so callers log the outcome once logging is set up.
	EnvFileLoaded bool
}

type ServerConfig struct {
	Port              string
	AllowOrigins      string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

type DatabaseConfig struct {
	URL          string
	User         string
	Password     string
	Host         string
	Port         string
	Name         string
	SSLMode      string
	MaxRetries   int
	RetryDelay   time.Duration
	MaxOpenConns int
	AutoMigrate  bool
}

// DSN returns DATABASE_URL when set, otherwise builds one from the parts.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

// RedisConfig controls the cross-instance room relay. An empty Addr disables it.
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	ChannelPrefix string
}

type AuthConfig struct {
	JWTSecret string
}

type WebSocketConfig struct {
	SendBuffer     int
	WriteWait      time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
	AppendTimeout  time.Duration
}

// MindMapConfig points at an OpenAI compatible API; BaseURL excludes /chat/completions.
type MindMapConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Load reads a .env file when one exists and then the process environment.
func Load() *Config {
	envFileLoaded := godotenv.Load() == nil

	return &Config{
		Server: ServerConfig{
			Port:              getEnv("PORT", ":8080"),
			AllowOrigins:      getEnv("CORS_ALLOW_ORIGINS", "*"),
			ReadHeaderTimeout: getDuration("READ_HEADER_TIMEOUT", 10*time.Second),
			ShutdownTimeout:   getDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			URL:          getEnv("DATABASE_URL", ""),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			Name:         getEnv("DB_NAME", "whiteboard"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			MaxRetries:   getInt("DB_CONNECT_RETRIES", 5),
			RetryDelay:   getDuration("DB_RETRY_DELAY", 2*time.Second),
			MaxOpenConns: getInt("DB_MAX_OPEN_CONNS", 25),
			AutoMigrate:  getBool("DB_AUTO_MIGRATE", false),
		},
		Redis: RedisConfig{
			Addr:          getEnv("REDIS_ADDR", ""),
			Password:      getEnv("REDIS_PASSWORD", ""),
			DB:            getInt("REDIS_DB", 0),
			ChannelPrefix: getEnv("REDIS_CHANNEL_PREFIX", "whiteboard"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		WebSocket: WebSocketConfig{
			SendBuffer:     getInt("WS_SEND_BUFFER", 256),
			WriteWait:      getDuration("WS_WRITE_WAIT", 10*time.Second),
			PongWait:       getDuration("WS_PONG_WAIT", 60*time.Second),
			MaxMessageSize: int64(getInt("WS_MAX_MESSAGE_SIZE", 64*1024)),
			AppendTimeout:  getDuration("APPEND_TIMEOUT", 5*time.Second),
		},
		MindMap: MindMapConfig{
			APIKey:  getEnv("GROQ_API_KEY", ""),
			BaseURL: getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
			Model:   getEnv("GROQ_MODEL", "llama-3.3-70b-versatile"),
			Timeout: getDuration("GROQ_TIMEOUT", 120*time.Second),
		},
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		EnvFileLoaded: envFileLoaded,
	}
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

// getDuration accepts Go durations ("5s") or a bare number of seconds.
func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	return defaultValue
}
