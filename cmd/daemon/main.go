// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	_ "time/tzdata"

	"github.com/ManuGH/hdhr-xmltv/internal/config"
	xglog "github.com/ManuGH/hdhr-xmltv/internal/log"
	"github.com/ManuGH/hdhr-xmltv/internal/telemetry"
	"github.com/ManuGH/hdhr-xmltv/internal/version"
)

type mode string

const (
	modeScheduled mode = "scheduled"
	modeOnce      mode = "once"
	modeHealth    mode = "health"
)

type options struct {
	mode        mode
	configPath  string
	showVersion bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func parseArgs(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("hdhr-xmltv", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	var runOnce, healthCheck bool
	fs.StringVar(&opts.configPath, "config", "", "path to config file (YAML)")
	fs.BoolVar(&opts.showVersion, "version", false, "print version and exit")
	fs.BoolVar(&runOnce, "run-once", false, "run the pipeline once and exit")
	fs.BoolVar(&healthCheck, "health-check", false, "print a health report and exit")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if runOnce && healthCheck {
		return options{}, errors.New("--run-once and --health-check are mutually exclusive")
	}
	opts.mode = modeScheduled
	switch {
	case runOnce:
		opts.mode = modeOnce
	case healthCheck:
		opts.mode = modeHealth
	}

	switch rest := fs.Args(); len(rest) {
	case 0:
	case 1:
		m := mode(strings.ToLower(rest[0]))
		switch m {
		case modeScheduled, modeOnce, modeHealth:
		default:
			return options{}, fmt.Errorf("unknown mode %q (want scheduled, once or health)", rest[0])
		}
		if (runOnce || healthCheck) && m != opts.mode {
			return options{}, fmt.Errorf("mode %q conflicts with flags", rest[0])
		}
		opts.mode = m
	default:
		return options{}, fmt.Errorf("unexpected arguments: %s", strings.Join(rest[1:], " "))
	}

	if opts.configPath == "" {
		opts.configPath = strings.TrimSpace(config.ParseString("HDHR_CONFIG", ""))
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		_, _ = fmt.Fprintln(stderr, err)
		return 2
	}
	if opts.showVersion {
		_, _ = fmt.Fprintln(stdout, version.String())
		return 0
	}

	// Health checks keep stdout for the report.
	logOut := io.Writer(stdout)
	if opts.mode == modeHealth {
		logOut = stderr
	}
	xglog.Configure(xglog.Config{Level: "info", Output: logOut, Version: version.Version})
	logger := xglog.WithComponent("daemon")

	cfg, err := config.NewLoader(opts.configPath, version.Version).Load()
	if err != nil {
		logger.Error().
			Err(err).
			Str(xglog.FieldEvent, "config.load_failed").
			Str("config_path", opts.configPath).
			Msg("failed to load configuration")
		return 1
	}
	xglog.Configure(xglog.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  logOut,
		Version: cfg.Version,
	})
	logger = xglog.WithComponent("daemon")
	logger.Info().
		Str(xglog.FieldEvent, "config.loaded").
		Str("mode", string(opts.mode)).
		Str("config_path", opts.configPath).
		Str("output", cfg.OutputPath()).
		Bool("official", cfg.Guide.UseOfficial).
		Msg("configuration loaded")

	if opts.mode == modeHealth {
		return runHealth(ctx, cfg, stdout)
	}

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "hdhr-xmltv",
		ServiceVersion: cfg.Version,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		logger.Error().Err(err).Str(xglog.FieldEvent, "telemetry.init_failed").Msg("failed to initialise tracing")
		return 1
	}
	defer func() {
		if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn().Err(err).Str(xglog.FieldEvent, "telemetry.shutdown_failed").Msg("tracer shutdown failed")
		}
	}()

	switch opts.mode {
	case modeOnce:
		return runOnce(ctx, cfg)
	default:
		return runScheduled(ctx, cfg)
	}
}
