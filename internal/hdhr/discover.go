// SPDX-License-Identifier: MIT
package hdhr

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ManuGH/hdhr-xmltv/internal/failure"
	xglog "github.com/ManuGH/hdhr-xmltv/internal/log"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultFallbackHosts are tried after configured and broadcast hosts.
var DefaultFallbackHosts = []string{"hdhomerun.local", "hdhomerun"}

const defaultProbeConcurrency = 8

// Discoverer assembles the device set for one run.
type Discoverer struct {
	Client      *Client
	Hosts       []string    // configured hosts, tried first
	Broadcast   Broadcaster // nil disables broadcast discovery
	Fallbacks   []string
	Timeout     time.Duration // per-device discover.json timeout
	Concurrency int
	Logger      zerolog.Logger
}

type candidate struct {
	host  string
	reply *BroadcastReply
}

type probeResult struct {
	device Device
	err    error
}

// Discover probes every candidate host and returns the responding devices
// in candidate order. Devices without a credential and repeated devices are
// skipped. An empty result is a NoDevicesFound failure.
func (d *Discoverer) Discover(ctx context.Context) ([]Device, error) {
	candidates := d.candidates(ctx)
	results := make([]probeResult, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	limit := d.Concurrency
	if limit <= 0 {
		limit = defaultProbeConcurrency
	}
	g.SetLimit(limit)
	for i, c := range candidates {
		g.Go(func() error {
			results[i] = d.probe(gctx, c)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, failure.New(failure.Canceled, "hdhr.discover", err)
	}

	var devices []Device
	seenID := make(map[string]struct{})
	seenAuth := make(map[string]struct{})
	for i, r := range results {
		host := candidates[i].host
		if r.err != nil {
			d.Logger.Debug().Err(r.err).Str(xglog.FieldEvent, "device.probe_failed").Str(xglog.FieldHost, host).Msg("device probe failed")
			continue
		}
		dev := r.device
		if dev.Auth == "" {
			d.Logger.Warn().Str(xglog.FieldEvent, "device.no_auth").Str(xglog.FieldHost, host).Str(xglog.FieldDeviceID, dev.DeviceID).Msg("device reported no DeviceAuth, skipping")
			continue
		}
		if _, dup := seenAuth[dev.Auth]; dup {
			continue
		}
		if dev.DeviceID != "" {
			if _, dup := seenID[dev.DeviceID]; dup {
				continue
			}
			seenID[dev.DeviceID] = struct{}{}
		}
		seenAuth[dev.Auth] = struct{}{}
		devices = append(devices, dev)
		d.Logger.Info().
			Str(xglog.FieldEvent, "device.discovered").
			Str("host", host).
			Str("device_id", dev.DeviceID).
			Int("tuners", dev.TunerCount).
			Str("auth_prefix", authPrefix(dev.Auth)).
			Msg("discovered HDHomeRun device")
	}

	if len(devices) == 0 {
		hosts := make([]string, len(candidates))
		for i, c := range candidates {
			hosts[i] = c.host
		}
		return nil, failure.Newf(failure.NoDevicesFound, "hdhr.discover", "tried hosts: %s", strings.Join(hosts, ", "))
	}
	return devices, nil
}

func (d *Discoverer) candidates(ctx context.Context) []candidate {
	var out []candidate
	seen := make(map[string]struct{})
	add := func(host string, reply *BroadcastReply) {
		host = strings.TrimSpace(host)
		key := strings.ToLower(host)
		if host == "" {
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, candidate{host: host, reply: reply})
	}

	for _, h := range d.Hosts {
		add(h, nil)
	}
	if d.Broadcast != nil {
		replies, err := d.Broadcast.Probe(ctx)
		if err != nil {
			d.Logger.Warn().Err(err).Str(xglog.FieldEvent, "discovery.broadcast_failed").Msg("broadcast discovery failed, continuing with known hosts")
		}
		for i := range replies {
			add(replies[i].Address, &replies[i])
		}
	}
	for _, h := range d.Fallbacks {
		add(h, nil)
	}
	return out
}

func (d *Discoverer) probe(ctx context.Context, c candidate) probeResult {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}
	dev, err := d.Client.Discover(ctx, c.host)
	if err == nil {
		return probeResult{device: dev}
	}
	// A broadcast reply that already carries the credential is enough.
	if c.reply != nil && c.reply.DeviceAuth != "" {
		return probeResult{device: deviceFromReply(*c.reply)}
	}
	return probeResult{err: fmt.Errorf("probe %s: %w", c.host, err)}
}

func deviceFromReply(r BroadcastReply) Device {
	d := Device{
		Address:    r.Address,
		DeviceID:   r.DeviceID,
		Auth:       r.DeviceAuth,
		TunerCount: r.TunerCount,
		BaseURL:    strings.TrimRight(r.BaseURL, "/"),
		LineupURL:  r.LineupURL,
	}
	if d.BaseURL == "" {
		d.BaseURL = "http://" + r.Address
	}
	if d.LineupURL == "" {
		d.LineupURL = d.BaseURL + "/lineup.json"
	}
	return d
}

func authPrefix(auth string) string {
	if len(auth) > 8 {
		return auth[:8] + "..."
	}
	return auth
}
