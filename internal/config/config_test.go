package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() вернул ошибку: %v", err)
	}

	defaults := GetDefaults()
	if config.Port != defaults.Port {
		t.Errorf("Port = %s, ожидалось %s", config.Port, defaults.Port)
	}
	if config.PipelineWorkers != defaults.PipelineWorkers {
		t.Errorf("PipelineWorkers = %d, ожидалось %d", config.PipelineWorkers, defaults.PipelineWorkers)
	}
	if config.ReadTimeout != defaults.ReadTimeout {
		t.Errorf("ReadTimeout = %v, ожидалось %v", config.ReadTimeout, defaults.ReadTimeout)
	}
	if config.RefreshCronSpec != "" {
		t.Errorf("RefreshCronSpec = %q, ожидалась пустая строка", config.RefreshCronSpec)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "8080")
	t.Setenv("PIPELINE_WORKERS", "8")
	t.Setenv("REFRESH_CRON_SPEC", "0 3 * * *")
	t.Setenv("HTTP_READ_TIMEOUT", "45s")
	t.Setenv("LOG_LEVEL", "DEBUG")

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() вернул ошибку: %v", err)
	}

	if config.Port != "8080" {
		t.Errorf("Port = %s, ожидалось 8080", config.Port)
	}
	if config.PipelineWorkers != 8 {
		t.Errorf("PipelineWorkers = %d, ожидалось 8", config.PipelineWorkers)
	}
	if config.RefreshCronSpec != "0 3 * * *" {
		t.Errorf("RefreshCronSpec = %q", config.RefreshCronSpec)
	}
	if config.ReadTimeout != 45*time.Second {
		t.Errorf("ReadTimeout = %v, ожидалось 45s", config.ReadTimeout)
	}
	if config.LogLevel != "DEBUG" {
		t.Errorf("LogLevel = %s, ожидалось DEBUG", config.LogLevel)
	}
}

// Нечитаемое числовое значение тихо откатывается на значение по умолчанию
func TestLoadConfig_BadNumbersFallBack(t *testing.T) {
	t.Setenv("PIPELINE_WORKERS", "many")
	t.Setenv("HTTP_READ_TIMEOUT", "soon")

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() вернул ошибку: %v", err)
	}
	if config.PipelineWorkers != 4 {
		t.Errorf("PipelineWorkers = %d, ожидалось 4", config.PipelineWorkers)
	}
	if config.ReadTimeout != 30*time.Second {
		t.Errorf("ReadTimeout = %v, ожидалось 30s", config.ReadTimeout)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		wantErr  bool
		errPart  string
	}{
		{
			name:    "конфигурация по умолчанию валидна",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "пустой порт",
			mutate:  func(c *Config) { c.Port = "" },
			wantErr: true,
			errPart: "port is required",
		},
		{
			name:    "порт не число",
			mutate:  func(c *Config) { c.Port = "http" },
			wantErr: true,
			errPart: "invalid port",
		},
		{
			name:    "порт вне диапазона",
			mutate:  func(c *Config) { c.Port = "70000" },
			wantErr: true,
			errPart: "between 1 and 65535",
		},
		{
			name:    "нет пути к базе правил",
			mutate:  func(c *Config) { c.RuleDatabasePath = "" },
			wantErr: true,
			errPart: "rule database path",
		},
		{
			name:    "ноль воркеров",
			mutate:  func(c *Config) { c.PipelineWorkers = 0 },
			wantErr: true,
			errPart: "pipeline workers",
		},
		{
			name:    "burst меньше rate",
			mutate:  func(c *Config) { c.RateLimitBurst = 10 },
			wantErr: true,
			errPart: "burst",
		},
		{
			name:    "неизвестный уровень логирования",
			mutate:  func(c *Config) { c.LogLevel = "VERBOSE" },
			wantErr: true,
			errPart: "invalid log level",
		},
		{
			name:    "слишком маленький таймаут",
			mutate:  func(c *Config) { c.WriteTimeout = 100 * time.Millisecond },
			wantErr: true,
			errPart: "write timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := GetDefaults()
			tt.mutate(config)

			err := config.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("Validate() не вернул ошибку")
				}
				if !strings.Contains(err.Error(), tt.errPart) {
					t.Errorf("ошибка %q не содержит %q", err.Error(), tt.errPart)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() вернул ошибку: %v", err)
			}
		})
	}
}

// Несколько нарушений собираются в одну ошибку
func TestValidate_CollectsAllErrors(t *testing.T) {
	config := GetDefaults()
	config.Port = ""
	config.PipelineWorkers = 0

	err := config.Validate()
	if err == nil {
		t.Fatal("Validate() не вернул ошибку")
	}
	if !strings.Contains(err.Error(), "port is required") ||
		!strings.Contains(err.Error(), "pipeline workers") {
		t.Errorf("ошибка не содержит всех нарушений: %v", err)
	}
}
