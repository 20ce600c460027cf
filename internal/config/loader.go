// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

func (l *Loader) envString(key string, dst *string) {
	l.ConsumedEnvKeys[key] = struct{}{}
	*dst = ParseString(key, *dst)
}

func (l *Loader) envBool(key string, dst *bool) {
	l.ConsumedEnvKeys[key] = struct{}{}
	*dst = ParseBool(key, *dst)
}

func (l *Loader) envInt(key string, dst *int) {
	l.ConsumedEnvKeys[key] = struct{}{}
	*dst = ParseInt(key, *dst)
}

func (l *Loader) envDuration(key string, dst *time.Duration) {
	l.ConsumedEnvKeys[key] = struct{}{}
	*dst = ParseDuration(key, *dst)
}

func (l *Loader) envFloat(key string, dst *float64) {
	l.ConsumedEnvKeys[key] = struct{}{}
	*dst = ParseFloat(key, *dst)
}

func (l *Loader) envList(key string, dst *[]string) {
	l.ConsumedEnvKeys[key] = struct{}{}
	*dst = ParseList(key, *dst)
}

// Load loads configuration with precedence: ENV > File > Defaults.
// Order: defaults -> strict file parse -> env overrides -> validate.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes a YAML file onto cfg with STRICT parsing.
// Unknown fields cause an error to prevent silent misconfiguration.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("%w: %s (only YAML supported)", ErrUnsupportedFormat, ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "not found in type") {
			return fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

func (l *Loader) mergeEnv(cfg *AppConfig) {
	l.envString("HDHR_HOST", &cfg.Discovery.Host)
	l.envList("HDHR_EXTRA_HOSTS", &cfg.Discovery.ExtraHosts)
	l.envBool("HDHR_DISCOVERY_BROADCAST", &cfg.Discovery.Broadcast)
	l.envDuration("HDHR_DISCOVERY_TIMEOUT", &cfg.Discovery.Timeout)

	l.envInt("HDHR_EPG_DAYS", &cfg.Guide.Days)
	l.envInt("HDHR_EPG_HOURS_INCREMENT", &cfg.Guide.HoursIncrement)
	l.envBool("HDHR_USE_OFFICIAL_XMLTV", &cfg.Guide.UseOfficial)
	l.envString("HDHR_OFFICIAL_URL", &cfg.Guide.OfficialURL)
	l.envList("HDHR_GUIDE_URLS", &cfg.Guide.LegacyURLs)
	l.envString("HDHR_APP_NAME", &cfg.Guide.AppName)
	l.envDuration("HDHR_HTTP_TIMEOUT", &cfg.Guide.HTTPTimeout)
	l.envInt("HDHR_FETCH_RETRIES", &cfg.Guide.Retries)
	l.envDuration("HDHR_FETCH_BACKOFF", &cfg.Guide.Backoff)
	l.envInt("HDHR_SLICE_CONCURRENCY", &cfg.Guide.SliceConcurrency)
	l.envFloat("HDHR_REQUEST_RATE", &cfg.Guide.RequestRate)

	l.envString("HDHR_OUTPUT_FILE_PATH", &cfg.Output.FilePath)
	l.envString("HDHR_OUTPUT_FILENAME", &cfg.Output.Filename)
	l.envBool("HDHR_BACKUP_PREVIOUS", &cfg.Output.Backup)
	l.envString("HDHR_XMLTV_TIMEZONE", &cfg.Output.Timezone)

	l.envString("HDHR_SCHEDULE_CRON", &cfg.Schedule.Cron)
	l.envString("HDHR_SCHEDULE_TIMEZONE", &cfg.Schedule.Timezone)
	l.envBool("HDHR_INITIAL_RUN", &cfg.Schedule.InitialRun)

	l.envDuration("HDHR_HEALTH_MAX_AGE", &cfg.Health.MaxAge)
	l.envString("HDHR_STATE_PATH", &cfg.Health.StatePath)
	l.envString("HDHR_STATUS_ADDR", &cfg.Health.StatusAddr)

	l.envString("HDHR_LOG_LEVEL", &cfg.Log.Level)
	l.envString("HDHR_LOG_FORMAT", &cfg.Log.Format)

	l.envBool("HDHR_OTEL_ENABLED", &cfg.Telemetry.Enabled)
	l.envString("HDHR_OTEL_EXPORTER", &cfg.Telemetry.Exporter)
	l.envString("HDHR_OTEL_ENDPOINT", &cfg.Telemetry.Endpoint)
	l.envFloat("HDHR_OTEL_SAMPLING", &cfg.Telemetry.SamplingRate)
}
