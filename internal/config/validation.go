// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ManuGH/hdhr-xmltv/internal/log"
	"github.com/ManuGH/hdhr-xmltv/internal/validate"
	"github.com/robfig/cron/v3"
)

// CronParser is the parser shared with the scheduler: standard five-field
// expressions plus descriptors such as @daily.
var CronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks cfg and reports every problem at once.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.Range("Guide.Days", cfg.Guide.Days, 1, 14)
	v.Range("Guide.HoursIncrement", cfg.Guide.HoursIncrement, 1, 24)
	v.Range("Guide.Retries", cfg.Guide.Retries, 0, 10)
	v.Range("Guide.SliceConcurrency", cfg.Guide.SliceConcurrency, 1, 8)
	v.FloatRange("Guide.RequestRate", cfg.Guide.RequestRate, 0.01, 100)
	v.MinDuration("Guide.HTTPTimeout", cfg.Guide.HTTPTimeout, time.Second)
	v.MinDuration("Guide.Backoff", cfg.Guide.Backoff, 0)
	v.MinDuration("Discovery.Timeout", cfg.Discovery.Timeout, 100*time.Millisecond)
	v.NotEmpty("Guide.AppName", cfg.Guide.AppName)

	if cfg.Guide.UseOfficial {
		v.URL("Guide.OfficialURL", cfg.Guide.OfficialURL, []string{"http", "https"})
	} else {
		if len(cfg.Guide.LegacyURLs) == 0 {
			v.AddError("Guide.LegacyURLs", "at least one guide URL is required", cfg.Guide.LegacyURLs)
		}
		for i, u := range cfg.Guide.LegacyURLs {
			v.URL(fmt.Sprintf("Guide.LegacyURLs[%d]", i), u, []string{"http", "https"})
		}
	}

	v.NotEmpty("Output.FilePath", cfg.Output.FilePath)
	if strings.ContainsAny(cfg.Output.Filename, `/\`) {
		v.AddError("Output.Filename", "must be a bare file name", cfg.Output.Filename)
	}
	if cfg.Output.FilePath != "" && filepath.Ext(cfg.OutputPath()) == "" {
		v.AddError("Output.FilePath", "must name a file, not a directory", cfg.OutputPath())
	}

	if cfg.Output.Timezone != "" {
		v.Custom("Output.Timezone", cfg.Output.Timezone, checkLocation)
	}
	v.Custom("Schedule.Timezone", cfg.Schedule.Timezone, checkLocation)
	v.Custom("Schedule.Cron", cfg.Schedule.Cron, func(any) error {
		_, err := CronParser.Parse(cfg.Schedule.Cron)
		return err
	})
	v.MinDuration("Health.MaxAge", cfg.Health.MaxAge, 0)

	if !log.ValidLevel(cfg.Log.Level) {
		v.AddError("Log.Level", "unknown log level", cfg.Log.Level)
	}
	v.OneOf("Log.Format", cfg.Log.Format, []string{"json", "console"})

	if cfg.Telemetry.Enabled {
		v.OneOf("Telemetry.Exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("Telemetry.Endpoint", cfg.Telemetry.Endpoint)
		v.FloatRange("Telemetry.SamplingRate", cfg.Telemetry.SamplingRate, 0, 1)
	}

	return v.Err()
}

func checkLocation(value any) error {
	name, _ := value.(string)
	if name == "" {
		return fmt.Errorf("timezone cannot be empty")
	}
	_, err := time.LoadLocation(name)
	return err
}
