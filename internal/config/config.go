package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config конфигурация сервера
type Config struct {
	// Сервер
	Port string `json:"port"`

	// Базы данных
	RuleDatabasePath    string `json:"rule_database_path"`
	CatalogDatabasePath string `json:"catalog_database_path"`

	// Словари
	SeedRulesetPath string `json:"seed_ruleset_path"`

	// Пайплайн
	PipelineWorkers int `json:"pipeline_workers"`

	// Периодический пересчет каталога (пустая строка = выключено)
	RefreshCronSpec string `json:"refresh_cron_spec"`

	// Ограничение частоты запросов
	RateLimitPerSec int `json:"rate_limit_per_sec"`
	RateLimitBurst  int `json:"rate_limit_burst"`

	// Логирование
	LogLevel string `json:"log_level"`

	// Таймауты HTTP-сервера
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

// LoadConfig загружает конфигурацию из переменных окружения
func LoadConfig() (*Config, error) {
	config := &Config{
		// Сервер
		Port: getEnv("SERVER_PORT", "9999"),

		// Базы данных
		RuleDatabasePath:    getEnv("RULE_DATABASE_PATH", "rules.db"),
		CatalogDatabasePath: getEnv("CATALOG_DATABASE_PATH", "catalog.db"),

		// Словари
		SeedRulesetPath: getEnv("SEED_RULESET_PATH", "config/ruleset_seed.yaml"),

		// Пайплайн
		PipelineWorkers: getEnvInt("PIPELINE_WORKERS", 4),

		// Пересчет
		RefreshCronSpec: os.Getenv("REFRESH_CRON_SPEC"),

		// Rate limiting
		RateLimitPerSec: getEnvInt("RATE_LIMIT_PER_SEC", 50),
		RateLimitBurst:  getEnvInt("RATE_LIMIT_BURST", 100),

		// Логирование
		LogLevel: getEnv("LOG_LEVEL", "INFO"),

		// Таймауты
		ReadTimeout:     getEnvDuration("HTTP_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:    getEnvDuration("HTTP_WRITE_TIMEOUT", 120*time.Second),
		ShutdownTimeout: getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// getEnv получает переменную окружения или возвращает значение по умолчанию
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt получает переменную окружения как int или возвращает значение по умолчанию
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration получает переменную окружения как Duration или возвращает значение по умолчанию
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
