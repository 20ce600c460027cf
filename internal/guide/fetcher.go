// SPDX-License-Identifier: MIT

// Package guide retrieves guide data for a set of tuners from the
// HDHomeRun guide service. Two strategies exist: the official XMLTV feed,
// which needs a DVR subscription, and the legacy per-slice JSON endpoint.
package guide

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ManuGH/hdhr-xmltv/internal/epg"
	"github.com/ManuGH/hdhr-xmltv/internal/failure"
	"github.com/ManuGH/hdhr-xmltv/internal/hdhr"
	xglog "github.com/ManuGH/hdhr-xmltv/internal/log"
	"github.com/ManuGH/hdhr-xmltv/internal/metrics"
	"github.com/ManuGH/hdhr-xmltv/internal/platform/httpx"
	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	defaultBackoff     = 500 * time.Millisecond
	maxBackoff         = 30 * time.Second
	defaultConcurrency = 2
)

// Strategy is one way of obtaining guide data. The set is closed; use
// Official or Legacy.
type Strategy interface {
	Name() string
	fetch(ctx context.Context, f *Fetcher, req Request) (epg.Payload, error)
}

// Request describes one guide retrieval.
type Request struct {
	Strategy   Strategy
	Devices    []hdhr.Device
	Credential string
	Window     Window
}

// Fetcher runs a Strategy with retry, pacing and bounded concurrency and
// normalizes the result.
type Fetcher struct {
	HTTP        *http.Client
	Devices     *hdhr.Client
	Limiter     *rate.Limiter // nil disables pacing
	Retries     int           // additional attempts after the first
	Backoff     time.Duration // initial retry delay
	Concurrency int           // parallel legacy slices
	Location    *time.Location
	Logger      zerolog.Logger
}

// NewFetcher returns a Fetcher using hc for guide and device requests.
func NewFetcher(hc *http.Client) *Fetcher {
	return &Fetcher{
		HTTP:        hc,
		Devices:     hdhr.NewClient(hc),
		Backoff:     defaultBackoff,
		Concurrency: defaultConcurrency,
		Location:    time.UTC,
		Logger:      xglog.WithComponent("guide"),
	}
}

// Fetch retrieves and normalizes guide data. Only transient network
// failures are retried; every other failure is returned at once.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (*epg.Document, error) {
	if req.Strategy == nil {
		return nil, failure.Newf(failure.Internal, "guide.fetch", "no strategy")
	}
	if len(req.Devices) == 0 || req.Credential == hdhr.EmptyAuth {
		return nil, failure.Newf(failure.NoDevicesFound, "guide.fetch", "no device credential")
	}

	logger := xglog.WithContext(ctx, f.Logger).With().Str(xglog.FieldStrategy, req.Strategy.Name()).Logger()
	started := time.Now()

	payload, err := req.Strategy.fetch(ctx, f, req)
	if err != nil {
		logger.Error().Err(err).
			Str(xglog.FieldEvent, "guide.fetch_failed").
			Str(xglog.FieldErrorKind, failure.KindOf(err).String()).
			Int(xglog.FieldDevices, len(req.Devices)).
			Msg("guide retrieval failed")
		return nil, err
	}

	doc, err := epg.Normalize(payload, epg.NormalizeOptions{Location: f.Location})
	if err != nil {
		return nil, err
	}
	logger.Info().
		Str(xglog.FieldEvent, "guide.fetched").
		Int(xglog.FieldChannels, len(doc.Channels)).
		Int(xglog.FieldEntries, len(doc.Programmes)).
		Int(xglog.FieldDropped, doc.Stats.Dropped).
		Int("duplicates", doc.Stats.Duplicates).
		Int("overlaps", doc.Stats.Overlaps).
		Int("invalid", doc.Stats.Invalid).
		Dur(xglog.FieldDuration, time.Since(started)).
		Msg("guide data normalized")
	return doc, nil
}

// retry runs op until it succeeds, fails with a non-transient error or the
// attempt budget is spent.
func retry[T any](ctx context.Context, f *Fetcher, op string, fn func(context.Context) (T, error)) (T, error) {
	initial := f.Backoff
	if initial <= 0 {
		initial = defaultBackoff
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = maxBackoff

	attempt := 0
	res, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := fn(ctx)
		if err != nil && !failure.KindOf(err).Retryable() {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(max(f.Retries, 0))+1),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			f.Logger.Warn().Err(err).
				Str(xglog.FieldEvent, "guide.retry").
				Str("op", op).
				Int(xglog.FieldAttempt, attempt).
				Dur("next", next).
				Msg("transient guide failure, retrying")
		}),
	)
	if err == nil {
		return res, nil
	}

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}
	if ctx.Err() != nil && failure.KindOf(err) != failure.Canceled {
		return res, failure.New(failure.Canceled, op, err)
	}
	if failure.KindOf(err) == failure.TransientNetworkFailure {
		return res, exhausted(op, attempt, err)
	}
	return res, err
}

// exhausted annotates the last transient failure with the attempt count,
// keeping its operation and status.
func exhausted(op string, attempts int, err error) error {
	var fe *failure.Error
	if !errors.As(err, &fe) {
		return failure.New(failure.TransientNetworkFailure, op, fmt.Errorf("giving up after %d attempts: %w", attempts, err))
	}
	out := *fe
	out.Err = fmt.Errorf("giving up after %d attempts: %w", attempts, fe.Err)
	return &out
}

func (f *Fetcher) pace(ctx context.Context, op string) error {
	if f.Limiter == nil {
		return nil
	}
	if err := f.Limiter.Wait(ctx); err != nil {
		return failure.New(failure.Canceled, op, err)
	}
	return nil
}

func readBody(ctx context.Context, op string, resp *http.Response, limit int64) ([]byte, error) {
	data, err := httpx.ReadBody(resp.Body, limit)
	switch {
	case errors.Is(err, httpx.ErrBodyTooLarge):
		return nil, failure.New(failure.MalformedResponse, op, err)
	case err != nil:
		return nil, failure.FromTransport(ctx, op, err)
	}
	return data, nil
}

func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	return failure.KindOf(err).String()
}

func recordRequest(strategy string, err error) {
	metrics.IncFetchRequest(strategy, outcomeOf(err))
}
