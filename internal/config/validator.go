package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	var errors []string

	// Валидация порта
	if c.Port == "" {
		errors = append(errors, "port is required")
	} else {
		port, err := strconv.Atoi(c.Port)
		if err != nil {
			errors = append(errors, fmt.Sprintf("invalid port: %s", c.Port))
		} else if port < 1 || port > 65535 {
			errors = append(errors, fmt.Sprintf("port must be between 1 and 65535, got %d", port))
		}
	}

	// Валидация путей к базам данных
	if c.RuleDatabasePath == "" {
		errors = append(errors, "rule database path is required")
	}
	if c.CatalogDatabasePath == "" {
		errors = append(errors, "catalog database path is required")
	}

	// Валидация пайплайна
	if c.PipelineWorkers < 1 {
		errors = append(errors, "pipeline workers must be at least 1")
	}

	// Валидация rate limiting
	if c.RateLimitPerSec < 1 {
		errors = append(errors, "rate limit per second must be at least 1")
	}
	if c.RateLimitBurst < c.RateLimitPerSec {
		errors = append(errors, "rate limit burst cannot be less than rate limit per second")
	}

	// Валидация уровня логирования
	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	if c.LogLevel != "" {
		valid := false
		logLevelUpper := strings.ToUpper(c.LogLevel)
		for _, level := range validLogLevels {
			if logLevelUpper == level {
				valid = true
				break
			}
		}
		if !valid {
			errors = append(errors, fmt.Sprintf("invalid log level: %s (valid: %s)",
				c.LogLevel, strings.Join(validLogLevels, ", ")))
		}
	}

	// Валидация таймаутов
	if c.ReadTimeout < time.Second {
		errors = append(errors, "read timeout must be at least 1 second")
	}
	if c.WriteTimeout < time.Second {
		errors = append(errors, "write timeout must be at least 1 second")
	}

	if len(errors) > 0 {
		return fmt.Errorf("validation errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// GetDefaults возвращает конфигурацию со значениями по умолчанию
func GetDefaults() *Config {
	return &Config{
		Port:                "9999",
		RuleDatabasePath:    "rules.db",
		CatalogDatabasePath: "catalog.db",
		SeedRulesetPath:     "config/ruleset_seed.yaml",
		PipelineWorkers:     4,
		RateLimitPerSec:     50,
		RateLimitBurst:      100,
		LogLevel:            "INFO",
		ReadTimeout:         30 * time.Second,
		WriteTimeout:        120 * time.Second,
		ShutdownTimeout:     10 * time.Second,
	}
}
