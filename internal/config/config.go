package config

import (
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultJWTSecret = "bookhaven-dev-secret-change-me"
	defaultServerURL = "http://localhost:8000"
)

// Server holds configuration for the bookhaven HTTP server
type Server struct {
	DataDir     string
	DBPath      string
	BindAddr    string
	JWTSecret   string
	TokenTTL    time.Duration
	MaxUploadMB int64
	LogLevel    slog.Level

	// Optional MinIO upload backend. Empty endpoint keeps uploads on disk.
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	// Optional Redis cache for extracted text. Empty address disables it.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TextCacheTTL  time.Duration

	// Catalog lookup that fills missing cover, description and category
	// on upload. Off by default.
	MetadataLookup bool
	MetadataURL    string
}

// UseMinio reports whether uploads go to object storage
func (s *Server) UseMinio() bool {
	return s.MinioEndpoint != ""
}

// UseRedis reports whether extracted text is cached in Redis
func (s *Server) UseRedis() bool {
	return s.RedisAddr != ""
}

// LoadDotEnv loads a .env file from the working directory when present
func LoadDotEnv(paths ...string) error {
	err := godotenv.Load(paths...)
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// LoadServer builds the server configuration from the environment and
// command-line args. The -url flag takes precedence over BOOKHAVEN_PORT.
func LoadServer(args []string) (*Server, error) {
	fset := flag.NewFlagSet("bookhaven", flag.ContinueOnError)
	urlFlag := fset.String("url", "", "Server bind address (e.g., :8000 or 0.0.0.0:8000)")
	if err := fset.Parse(args); err != nil {
		return nil, err
	}

	dataDir := getEnv("BOOKHAVEN_DATA_DIR", "./data")
	cfg := &Server{
		DataDir:        dataDir,
		DBPath:         getEnv("BOOKHAVEN_DB_PATH", filepath.Join(dataDir, "bookhaven.db")),
		BindAddr:       ":" + getEnv("BOOKHAVEN_PORT", "8000"),
		JWTSecret:      getEnv("BOOKHAVEN_JWT_SECRET", defaultJWTSecret),
		TokenTTL:       getDuration("BOOKHAVEN_TOKEN_TTL", 7*24*time.Hour),
		MaxUploadMB:    getInt64("BOOKHAVEN_MAX_UPLOAD_MB", 100),
		LogLevel:       getLevel("BOOKHAVEN_LOG_LEVEL", slog.LevelInfo),
		MinioEndpoint:  getEnv("BOOKHAVEN_MINIO_ENDPOINT", ""),
		MinioAccessKey: getEnv("BOOKHAVEN_MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("BOOKHAVEN_MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("BOOKHAVEN_MINIO_BUCKET", "bookhaven"),
		MinioUseSSL:    getBool("BOOKHAVEN_MINIO_USE_SSL", false),
		RedisAddr:      getEnv("BOOKHAVEN_REDIS_ADDR", ""),
		RedisPassword:  getEnv("BOOKHAVEN_REDIS_PASSWORD", ""),
		RedisDB:        int(getInt64("BOOKHAVEN_REDIS_DB", 0)),
		TextCacheTTL:   getDuration("BOOKHAVEN_TEXT_CACHE_TTL", 24*time.Hour),
		MetadataLookup: getBool("BOOKHAVEN_METADATA_LOOKUP", false),
		MetadataURL:    getEnv("BOOKHAVEN_METADATA_URL", "https://openlibrary.org"),
	}

	if *urlFlag != "" {
		cfg.BindAddr = *urlFlag
	}

	if cfg.JWTSecret == defaultJWTSecret {
		slog.Warn("using default JWT secret, set BOOKHAVEN_JWT_SECRET in production")
	}

	return cfg, nil
}

// Client holds configuration for the command-line reading client
type Client struct {
	ServerURL string
	CachePath string
	Timeout   time.Duration
}

// LoadClient resolves the client configuration. serverURL overrides the
// environment when non-empty.
func LoadClient(serverURL string) (*Client, error) {
	cachePath, err := DefaultCachePath()
	if err != nil {
		return nil, err
	}

	cfg := &Client{
		ServerURL: getEnv("BOOKHAVEN_SERVER_URL", defaultServerURL),
		CachePath: getEnv("BOOKHAVEN_CACHE_PATH", cachePath),
		Timeout:   getDuration("BOOKHAVEN_CLIENT_TIMEOUT", 30*time.Second),
	}
	if serverURL != "" {
		cfg.ServerURL = serverURL
	}
	cfg.ServerURL = strings.TrimSuffix(cfg.ServerURL, "/")
	return cfg, nil
}

// DefaultCachePath returns the client cache file in the user config dir
func DefaultCachePath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "bookhaven", "cache.json"), nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt64(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			return n
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

func getLevel(key string, defaultValue slog.Level) slog.Level {
	if v := os.Getenv(key); v != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(v)); err == nil {
			return level
		}
	}
	return defaultValue
}
