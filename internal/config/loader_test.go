// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/ManuGH/hdhr-xmltv/internal/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader("", "v1.2.3").Load()
	require.NoError(t, err)

	assert.Equal(t, "v1.2.3", cfg.Version)
	assert.Equal(t, 7, cfg.Guide.Days)
	assert.Equal(t, 3, cfg.Guide.HoursIncrement)
	assert.True(t, cfg.Guide.UseOfficial)
	assert.Equal(t, "/output/xmltv.xml", cfg.OutputPath())
	assert.Equal(t, "/output/.hdhr-xmltv.db", cfg.StatePath())
	assert.Equal(t, "0 1 * * *", cfg.Schedule.Cron)
	assert.Equal(t, "UTC", cfg.Schedule.Timezone)
	assert.False(t, cfg.Output.Backup)
	assert.Equal(t, DefaultLegacyURLs, cfg.Guide.LegacyURLs)
}

func TestLoadPrecedence(t *testing.T) {
	path := writeConfig(t, `
guide:
  days: 3
  useOfficial: false
  legacyURLs:
    - http://guide.test/api/guide
output:
  filePath: /data/epg/guide.xml
  backup: true
schedule:
  cron: "30 2 * * *"
health:
  maxAge: 12h
`)
	t.Setenv("HDHR_EPG_DAYS", "5")
	t.Setenv("HDHR_EXTRA_HOSTS", "10.0.0.7,10.0.0.8")

	l := NewLoader(path, "dev")
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Guide.Days, "env overrides file")
	assert.False(t, cfg.Guide.UseOfficial, "file overrides default")
	assert.Equal(t, []string{"http://guide.test/api/guide"}, cfg.Guide.LegacyURLs)
	assert.Equal(t, "/data/epg/guide.xml", cfg.OutputPath())
	assert.True(t, cfg.Output.Backup)
	assert.Equal(t, "30 2 * * *", cfg.Schedule.Cron)
	assert.Equal(t, 12*time.Hour, cfg.Health.MaxAge)
	assert.Equal(t, []string{"10.0.0.7", "10.0.0.8"}, cfg.Discovery.ExtraHosts)
	assert.Contains(t, l.ConsumedEnvKeys, "HDHR_EPG_DAYS")
}

func TestLoadRejectsUnknownField(t *testing.T) {
	path := writeConfig(t, "guide:\n  dayz: 3\n")
	_, err := NewLoader(path, "dev").Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownConfigField)
}

func TestLoadRejectsNonYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))
	_, err := NewLoader(path, "dev").Load()
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := NewLoader(writeConfig(t, ""), "dev").Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultEPGDays, cfg.Guide.Days)
}

func TestLoadReportsAllValidationErrors(t *testing.T) {
	t.Setenv("HDHR_EPG_DAYS", "30")
	t.Setenv("HDHR_EPG_HOURS_INCREMENT", "48")
	t.Setenv("HDHR_SCHEDULE_CRON", "every morning")
	t.Setenv("HDHR_SCHEDULE_TIMEZONE", "Mars/Olympus")

	_, err := NewLoader("", "dev").Load()
	require.Error(t, err)

	var verr validate.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"Guide.Days", "Guide.HoursIncrement", "Schedule.Timezone", "Schedule.Cron"}, verr.Fields())
}

func TestOutputPathFilename(t *testing.T) {
	cfg := Defaults()
	cfg.Output.FilePath = "/output/xmltv.xml"
	cfg.Output.Filename = "guide.xml"
	assert.Equal(t, "/output/guide.xml", cfg.OutputPath())
	assert.Equal(t, "/output/.hdhr-xmltv.db", cfg.StatePath())

	cfg.Health.StatePath = "/state/runs.db"
	assert.Equal(t, "/state/runs.db", cfg.StatePath())
}

func TestXMLTVTimezoneFollowsSchedule(t *testing.T) {
	t.Setenv("HDHR_SCHEDULE_TIMEZONE", "America/New_York")
	cfg, err := NewLoader("", "dev").Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.Output.Timezone)
	assert.Equal(t, "America/New_York", cfg.XMLTVTimezone())

	t.Setenv("HDHR_XMLTV_TIMEZONE", "Europe/Berlin")
	cfg, err = NewLoader("", "dev").Load()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", cfg.XMLTVTimezone())

	t.Setenv("HDHR_XMLTV_TIMEZONE", "Mars/Olympus")
	_, err = NewLoader("", "dev").Load()
	var verr validate.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"Output.Timezone"}, verr.Fields())
}

func TestHealthMaxAge(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 48*time.Hour, cfg.HealthMaxAge(24*time.Hour))

	cfg.Health.MaxAge = time.Hour
	assert.Equal(t, time.Hour, cfg.HealthMaxAge(24*time.Hour))
}

func TestValidateLegacyURLs(t *testing.T) {
	cfg := Defaults()
	cfg.Guide.UseOfficial = false
	cfg.Guide.LegacyURLs = nil
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Guide.LegacyURLs")

	cfg.Guide.LegacyURLs = []string{"guide.php"}
	assert.Error(t, Validate(cfg))
}
