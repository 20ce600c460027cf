// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config provides configuration management for hdhr-xmltv.
//
// Values are resolved with the precedence ENV > YAML file > defaults. Every
// environment key is prefixed with HDHR_.
package config

import (
	"path/filepath"
	"time"
)

// Default values.
const (
	DefaultHost             = "hdhomerun.local"
	DefaultEPGDays          = 7
	DefaultHoursIncrement   = 3
	DefaultOfficialURL      = "https://api.hdhomerun.com/api/xmltv"
	DefaultOutputFilePath   = "/output/xmltv.xml"
	DefaultOutputFilename   = "xmltv.xml"
	DefaultCron             = "0 1 * * *"
	DefaultTimezone         = "UTC"
	DefaultAppName          = "HDHomeRun-XMLTV-Converter"
	DefaultStateFilename    = ".hdhr-xmltv.db"
	DefaultHTTPTimeout      = 30 * time.Second
	DefaultDiscoveryTimeout = 3 * time.Second
	DefaultFetchRetries     = 3
	DefaultFetchBackoff     = 500 * time.Millisecond
	DefaultSliceConcurrency = 2
	DefaultRequestRate      = 1.0
)

// DefaultLegacyURLs are the guide hosts tried in order by the legacy strategy.
var DefaultLegacyURLs = []string{
	"https://api.hdhomerun.com/api/guide",
	"https://my.hdhomerun.com/api/guide.php",
}

// AppConfig is the validated runtime configuration.
type AppConfig struct {
	Version string `yaml:"-"`

	Discovery DiscoveryConfig `yaml:"discovery"`
	Guide     GuideConfig     `yaml:"guide"`
	Output    OutputConfig    `yaml:"output"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Health    HealthConfig    `yaml:"health"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// DiscoveryConfig controls how tuners are located.
type DiscoveryConfig struct {
	Host       string        `yaml:"host"`
	ExtraHosts []string      `yaml:"extraHosts"`
	Broadcast  bool          `yaml:"broadcast"`
	Timeout    time.Duration `yaml:"timeout"`
}

// GuideConfig controls guide retrieval.
type GuideConfig struct {
	Days             int           `yaml:"days"`
	HoursIncrement   int           `yaml:"hoursIncrement"`
	UseOfficial      bool          `yaml:"useOfficial"`
	OfficialURL      string        `yaml:"officialURL"`
	LegacyURLs       []string      `yaml:"legacyURLs"`
	AppName          string        `yaml:"appName"`
	HTTPTimeout      time.Duration `yaml:"httpTimeout"`
	Retries          int           `yaml:"retries"`
	Backoff          time.Duration `yaml:"backoff"`
	SliceConcurrency int           `yaml:"sliceConcurrency"`
	RequestRate      float64       `yaml:"requestRate"`
}

// OutputConfig controls the XMLTV artifact.
type OutputConfig struct {
	FilePath string `yaml:"filePath"`
	Filename string `yaml:"filename"`
	Backup   bool   `yaml:"backup"`
	Timezone string `yaml:"timezone"` // programme timestamps; empty follows Schedule.Timezone
}

// ScheduleConfig controls the scheduled mode.
type ScheduleConfig struct {
	Cron       string `yaml:"cron"`
	Timezone   string `yaml:"timezone"`
	InitialRun bool   `yaml:"initialRun"`
}

// HealthConfig controls health evaluation and the status server.
type HealthConfig struct {
	MaxAge     time.Duration `yaml:"maxAge"` // 0 derives 2x the schedule interval
	StatePath  string        `yaml:"statePath"`
	StatusAddr string        `yaml:"statusAddr"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() AppConfig {
	return AppConfig{
		Discovery: DiscoveryConfig{
			Host:      DefaultHost,
			Broadcast: true,
			Timeout:   DefaultDiscoveryTimeout,
		},
		Guide: GuideConfig{
			Days:             DefaultEPGDays,
			HoursIncrement:   DefaultHoursIncrement,
			UseOfficial:      true,
			OfficialURL:      DefaultOfficialURL,
			LegacyURLs:       append([]string(nil), DefaultLegacyURLs...),
			AppName:          DefaultAppName,
			HTTPTimeout:      DefaultHTTPTimeout,
			Retries:          DefaultFetchRetries,
			Backoff:          DefaultFetchBackoff,
			SliceConcurrency: DefaultSliceConcurrency,
			RequestRate:      DefaultRequestRate,
		},
		Output: OutputConfig{
			FilePath: DefaultOutputFilePath,
			Filename: DefaultOutputFilename,
		},
		Schedule: ScheduleConfig{
			Cron:     DefaultCron,
			Timezone: DefaultTimezone,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Exporter:     "http",
			Endpoint:     "localhost:4318",
			SamplingRate: 1.0,
		},
	}
}

// OutputPath resolves the artifact location. A non-default filename replaces
// the base name of FilePath.
func (c AppConfig) OutputPath() string {
	if c.Output.Filename != "" && c.Output.Filename != DefaultOutputFilename {
		return filepath.Join(filepath.Dir(c.Output.FilePath), c.Output.Filename)
	}
	return c.Output.FilePath
}

// StatePath resolves the run-outcome database location.
func (c AppConfig) StatePath() string {
	if c.Health.StatePath != "" {
		return c.Health.StatePath
	}
	return filepath.Join(filepath.Dir(c.OutputPath()), DefaultStateFilename)
}

// HealthMaxAge returns the artifact freshness threshold for a schedule with
// the given interval.
func (c AppConfig) HealthMaxAge(interval time.Duration) time.Duration {
	if c.Health.MaxAge > 0 {
		return c.Health.MaxAge
	}
	return 2 * interval
}

// XMLTVTimezone is the zone programme timestamps are rendered in.
func (c AppConfig) XMLTVTimezone() string {
	switch {
	case c.Output.Timezone != "":
		return c.Output.Timezone
	case c.Schedule.Timezone != "":
		return c.Schedule.Timezone
	}
	return DefaultTimezone
}

// GuideWindow is the total span of guide data requested.
func (c AppConfig) GuideWindow() time.Duration {
	return time.Duration(c.Guide.Days) * 24 * time.Hour
}
