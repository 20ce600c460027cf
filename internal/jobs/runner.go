// SPDX-License-Identifier: MIT

// Package jobs drives one execution of the guide pipeline: discover
// devices, fetch and normalize the guide, render XMLTV and commit the
// artifact. Every execution yields exactly one state.Outcome.
package jobs

import (
	"context"
	"time"

	"github.com/ManuGH/hdhr-xmltv/internal/epg"
	"github.com/ManuGH/hdhr-xmltv/internal/failure"
	"github.com/ManuGH/hdhr-xmltv/internal/guide"
	"github.com/ManuGH/hdhr-xmltv/internal/hdhr"
	xglog "github.com/ManuGH/hdhr-xmltv/internal/log"
	"github.com/ManuGH/hdhr-xmltv/internal/metrics"
	"github.com/ManuGH/hdhr-xmltv/internal/state"
	"github.com/ManuGH/hdhr-xmltv/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Discoverer finds the devices of one run.
type Discoverer interface {
	Discover(ctx context.Context) ([]hdhr.Device, error)
}

// GuideFetcher retrieves the normalized guide.
type GuideFetcher interface {
	Fetch(ctx context.Context, req guide.Request) (*epg.Document, error)
}

// Persister commits the rendered artifact.
type Persister interface {
	Persist(ctx context.Context, data []byte, path string) error
}

// Runner executes the pipeline. A Runner is not safe for concurrent Run
// calls; the scheduler guarantees a single active run.
type Runner struct {
	Discovery  Discoverer
	Fetcher    GuideFetcher
	Writer     Persister
	Store      state.Store // optional
	Strategy   guide.Strategy
	Days       int
	OutputPath string
	Render     epg.RenderOptions

	Now    func() time.Time
	Logger zerolog.Logger
	Tracer trace.Tracer
}

var failureMessages = map[failure.Kind]string{
	failure.NoDevicesFound:          "no HDHomeRun devices found",
	failure.SubscriptionRequired:    "XMLTV feed requires a DVR subscription",
	failure.AccessDenied:            "legacy guide endpoint denied access",
	failure.TransientNetworkFailure: "guide service unreachable",
	failure.MalformedResponse:       "guide service returned unusable data",
	failure.WriteFailure:            "could not write the XMLTV artifact",
	failure.Canceled:                "run canceled",
	failure.Internal:                "run failed",
}

// Run executes the pipeline once and records the outcome. A failed run
// never touches the existing artifact.
func (r *Runner) Run(ctx context.Context) state.Outcome {
	runID := uuid.NewString()
	ctx = xglog.ContextWithRunID(ctx, runID)
	ctx, span := r.tracer().Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String(telemetry.RunIDKey, runID),
		attribute.String(telemetry.StrategyKey, r.Strategy.Name()),
	))
	defer span.End()

	logger := xglog.WithContext(ctx, r.Logger)
	out := state.Outcome{RunID: runID, Started: r.now(), Strategy: r.Strategy.Name()}
	logger.Info().
		Str(xglog.FieldEvent, "run.start").
		Str(xglog.FieldStrategy, out.Strategy).
		Msg("starting guide run")

	err := r.execute(ctx, &out)
	out.Finished = r.now()
	out.Success = err == nil

	if err != nil {
		kind := failure.KindOf(err)
		out.ErrorKind = string(kind)
		out.ErrorMessage = err.Error()
		telemetry.RecordError(span, err, out.ErrorKind, failure.HintOf(err))

		ev := logger.Error()
		if kind == failure.Canceled {
			ev = logger.Warn()
		}
		ev.Err(err).
			Str(xglog.FieldEvent, "run.failed").
			Str(xglog.FieldErrorKind, out.ErrorKind).
			Str(xglog.FieldHint, failure.HintOf(err)).
			Int(xglog.FieldDevices, out.DeviceCount).
			Dur(xglog.FieldDuration, out.Duration()).
			Msg(failureMessages[kind])
	} else {
		logger.Info().
			Str(xglog.FieldEvent, "run.complete").
			Int(xglog.FieldDevices, out.DeviceCount).
			Int(xglog.FieldEntries, out.EntryCount).
			Int(xglog.FieldBytes, out.ArtifactBytes).
			Str(xglog.FieldPath, r.OutputPath).
			Dur(xglog.FieldDuration, out.Duration()).
			Msg("guide run complete")
	}

	metrics.RecordRun(out.Success, out.ErrorKind, out.Duration())
	if r.Store != nil {
		if err := r.Store.Record(context.WithoutCancel(ctx), out); err != nil {
			logger.Error().Err(err).Str(xglog.FieldEvent, "run.record_failed").Msg("failed to record run outcome")
		}
	}
	return out
}

func (r *Runner) execute(ctx context.Context, out *state.Outcome) error {
	var devices []hdhr.Device
	err := r.stage(ctx, "discover", func(ctx context.Context) error {
		var err error
		devices, err = r.Discovery.Discover(ctx)
		out.DeviceCount = len(devices)
		metrics.RecordDevices(len(devices))
		return err
	})
	if err != nil {
		return err
	}

	var doc *epg.Document
	err = r.stage(ctx, "fetch", func(ctx context.Context) error {
		var err error
		doc, err = r.Fetcher.Fetch(ctx, guide.Request{
			Strategy:   r.Strategy,
			Devices:    devices,
			Credential: hdhr.CompositeAuth(devices),
			Window:     guide.NewWindow(r.now(), r.Days),
		})
		if err == nil {
			trace.SpanFromContext(ctx).SetAttributes(telemetry.GuideAttributes(
				r.Strategy.Name(), len(devices), len(doc.Channels), len(doc.Programmes), doc.Stats.Dropped)...)
		}
		return err
	})
	if err != nil {
		return err
	}

	var data []byte
	err = r.stage(ctx, "render", func(context.Context) error {
		var err error
		data, err = epg.Render(doc, r.Render)
		if err != nil {
			return failure.New(failure.Internal, "jobs.render", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return failure.New(failure.Canceled, "jobs.run", err)
	}

	err = r.stage(ctx, "persist", func(ctx context.Context) error {
		trace.SpanFromContext(ctx).SetAttributes(
			attribute.String(telemetry.PathKey, r.OutputPath),
			attribute.Int(telemetry.BytesKey, len(data)),
		)
		return r.Writer.Persist(ctx, data, r.OutputPath)
	})
	if err != nil {
		return err
	}

	out.EntryCount = len(doc.Programmes)
	out.ArtifactBytes = len(data)
	metrics.RecordGuide(len(doc.Programmes), doc.Stats.Dropped+doc.Stats.Overlaps+doc.Stats.Invalid)
	metrics.RecordArtifact(len(data), r.now())
	return nil
}

func (r *Runner) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := r.tracer().Start(ctx, "pipeline."+name)
	defer span.End()

	if err := fn(ctx); err != nil {
		telemetry.RecordError(span, err, string(failure.KindOf(err)), failure.HintOf(err))
		return err
	}
	return nil
}

func (r *Runner) tracer() trace.Tracer {
	if r.Tracer != nil {
		return r.Tracer
	}
	return telemetry.Tracer("github.com/ManuGH/hdhr-xmltv/internal/jobs")
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}
