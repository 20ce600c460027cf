// SPDX-License-Identifier: MIT
package guide

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/hdhr-xmltv/internal/epg"
	"github.com/ManuGH/hdhr-xmltv/internal/failure"
	"github.com/ManuGH/hdhr-xmltv/internal/hdhr"
	xglog "github.com/ManuGH/hdhr-xmltv/internal/log"
	"github.com/ManuGH/hdhr-xmltv/internal/platform/httpx"
	"golang.org/x/sync/errgroup"
)

// Identification the legacy guide endpoint expects in the form body.
const (
	legacyAppName      = "HDHomeRun"
	legacyAppVersion   = "20241024"
	legacyPlatform     = "LINUX"
	legacyPlatformInfo = `{"Vendor":"Docker"}`
)

const (
	maxSliceBody       = 32 << 20
	defaultSliceLength = 3 * time.Hour
)

// Legacy fetches the guide in fixed-length slices from the JSON guide
// endpoint, joined against the lineups of the devices.
type Legacy struct {
	URLs  []string      // guide hosts, tried in order
	Slice time.Duration // length of one request window
}

// Name implements Strategy.
func (Legacy) Name() string { return "legacy" }

func (l Legacy) fetch(ctx context.Context, f *Fetcher, req Request) (epg.Payload, error) {
	if len(l.URLs) == 0 {
		return nil, failure.Newf(failure.Internal, "guide.legacy", "no guide hosts configured")
	}
	lineup, err := l.lineup(ctx, f, req.Devices)
	if err != nil {
		return nil, err
	}

	step := l.Slice
	if step <= 0 {
		step = defaultSliceLength
	}
	starts := req.Window.Slices(step)
	slices := make([]epg.Slice, len(starts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(f.Concurrency, 1))
	for i, start := range starts {
		g.Go(func() error {
			body, err := retry(gctx, f, "guide.legacy_slice", func(ctx context.Context) ([]byte, error) {
				return l.slice(ctx, f, req.Credential, start)
			})
			if err != nil {
				return err
			}
			slices[i] = epg.Slice{Seq: i, Start: start, Body: body}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	f.Logger.Debug().
		Str(xglog.FieldEvent, "guide.legacy_received").
		Int("slices", len(slices)).
		Int("channels", len(lineup)).
		Dur("slice_length", step).
		Msg("legacy guide slices received")
	return epg.LegacyPayload{Lineup: lineup, Slices: slices}, nil
}

// lineup merges the device lineups by guide number in discovery order. A
// device whose lineup cannot be read is skipped while another succeeds.
func (l Legacy) lineup(ctx context.Context, f *Fetcher, devices []hdhr.Device) ([]epg.LineupChannel, error) {
	var (
		merged  []epg.LineupChannel
		seen    = make(map[string]bool)
		lastErr error
		ok      int
	)
	for _, d := range devices {
		entries, err := retry(ctx, f, "guide.lineup", func(ctx context.Context) ([]hdhr.LineupEntry, error) {
			return f.Devices.Lineup(ctx, d)
		})
		if err != nil {
			if failure.KindOf(err) == failure.Canceled {
				return nil, err
			}
			f.Logger.Warn().Err(err).
				Str(xglog.FieldEvent, "guide.lineup_skipped").
				Str(xglog.FieldDeviceID, d.DeviceID).
				Str(xglog.FieldHost, d.Address).
				Msg("lineup unavailable, skipping device")
			lastErr = err
			continue
		}
		ok++
		for _, e := range entries {
			if e.GuideNumber == "" || seen[e.GuideNumber] {
				continue
			}
			seen[e.GuideNumber] = true
			merged = append(merged, epg.LineupChannel{Number: e.GuideNumber, Name: e.GuideName, Icon: e.ImageURL})
		}
	}
	if ok == 0 && lastErr != nil {
		return nil, lastErr
	}
	return merged, nil
}

// slice requests one guide window, trying each host in order. The attempt
// is AccessDenied only when every host answers 403.
func (l Legacy) slice(ctx context.Context, f *Fetcher, credential string, start time.Time) ([]byte, error) {
	const op = "guide.legacy_slice"
	form := url.Values{
		"AppName":      {legacyAppName},
		"AppVersion":   {legacyAppVersion},
		"DeviceAuth":   {credential},
		"Platform":     {legacyPlatform},
		"PlatformInfo": {legacyPlatformInfo},
	}.Encode()
	query := url.Values{
		"DeviceAuth": {credential},
		"Start":      {strconv.FormatInt(start.Unix(), 10)},
	}

	var (
		errs      []error
		forbidden int
	)
	for _, host := range l.URLs {
		if err := f.pace(ctx, op); err != nil {
			return nil, err
		}
		body, err := l.post(ctx, f, op, host, query, form)
		recordRequest(l.Name(), err)
		if err == nil {
			return body, nil
		}

		var fe *failure.Error
		if errors.As(err, &fe) && fe.Status == http.StatusForbidden {
			forbidden++
			f.Logger.Warn().
				Str(xglog.FieldEvent, "guide.host_refused").
				Str(xglog.FieldHost, hostOf(host)).
				Time("slice_start", start).
				Msg("guide host refused the request")
			continue
		}
		switch failure.KindOf(err) {
		case failure.TransientNetworkFailure:
			errs = append(errs, hostFailure(host, err))
			continue
		default:
			return nil, err
		}
	}

	if forbidden == len(l.URLs) {
		return nil, failure.Newf(failure.AccessDenied, op, "all %d guide hosts answered 403", forbidden).
			WithStatus(http.StatusForbidden)
	}
	return nil, failure.New(failure.TransientNetworkFailure, op, errors.Join(errs...))
}

func (l Legacy) post(ctx context.Context, f *Fetcher, op, host string, query url.Values, form string) ([]byte, error) {
	target, err := withQuery(host, query)
	if err != nil {
		return nil, failure.New(failure.Internal, op, err)
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form))
	if err != nil {
		return nil, failure.New(failure.Internal, op, err)
	}
	hreq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	hreq.Header.Set("Accept", "application/json, text/plain, */*")

	resp, err := f.HTTP.Do(hreq)
	if err != nil {
		return nil, failure.FromTransport(ctx, op, err)
	}
	defer httpx.Drain(resp)

	if resp.StatusCode == http.StatusForbidden {
		return nil, failure.Newf(failure.AccessDenied, op, "guide host %s refused the request", hostOf(target)).
			WithStatus(http.StatusForbidden)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, failure.FromStatus(op, resp.StatusCode)
	}
	return readBody(ctx, op, resp, maxSliceBody)
}

// hostFailure describes err for one guide host without repeating the
// operation prefix.
func hostFailure(host string, err error) error {
	host = hostOf(host)
	var fe *failure.Error
	if !errors.As(err, &fe) {
		return fmt.Errorf("%s: %w", host, err)
	}
	if fe.Status > 0 {
		return fmt.Errorf("%s: HTTP %d: %w", host, fe.Status, fe.Err)
	}
	return fmt.Errorf("%s: %w", host, fe.Err)
}

func hostOf(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	return u.Host
}
