package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Generation GenerationConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// GenerationConfig governs the class generation engine defaults.
type GenerationConfig struct {
	DefaultMinClassSize      int
	DefaultMaxClassSize      int
	NewStudentRatio          float64
	MaxClassesPerTeacher     int
	MaxStudentMovesPerRun    int
	CategoryBalanceTolerance float64
	ReadinessCacheTTL        time.Duration
	AsyncWorkers             int
	AsyncBufferSize          int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Generation = GenerationConfig{
		DefaultMinClassSize:      v.GetInt("GEN_DEFAULT_MIN_CLASS_SIZE"),
		DefaultMaxClassSize:      v.GetInt("GEN_DEFAULT_MAX_CLASS_SIZE"),
		NewStudentRatio:          v.GetFloat64("GEN_NEW_STUDENT_RATIO"),
		MaxClassesPerTeacher:     v.GetInt("GEN_MAX_CLASSES_PER_TEACHER"),
		MaxStudentMovesPerRun:    v.GetInt("GEN_MAX_STUDENT_MOVES_PER_RUN"),
		CategoryBalanceTolerance: v.GetFloat64("GEN_CATEGORY_BALANCE_TOLERANCE"),
		ReadinessCacheTTL:        parseDuration(v.GetString("GEN_READINESS_CACHE_TTL"), time.Minute),
		AsyncWorkers:             v.GetInt("GEN_ASYNC_WORKERS"),
		AsyncBufferSize:          v.GetInt("GEN_ASYNC_BUFFER_SIZE"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "classgen")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("GEN_DEFAULT_MIN_CLASS_SIZE", 7)
	v.SetDefault("GEN_DEFAULT_MAX_CLASS_SIZE", 10)
	v.SetDefault("GEN_NEW_STUDENT_RATIO", 0.4)
	v.SetDefault("GEN_MAX_CLASSES_PER_TEACHER", 6)
	v.SetDefault("GEN_MAX_STUDENT_MOVES_PER_RUN", 5)
	v.SetDefault("GEN_CATEGORY_BALANCE_TOLERANCE", 0.2)
	v.SetDefault("GEN_READINESS_CACHE_TTL", "1m")
	v.SetDefault("GEN_ASYNC_WORKERS", 1)
	v.SetDefault("GEN_ASYNC_BUFFER_SIZE", 4)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
