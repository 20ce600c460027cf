// SPDX-License-Identifier: MIT
package jobs

import (
	"fmt"
	"strings"
	"time"

	"github.com/ManuGH/hdhr-xmltv/internal/artifact"
	"github.com/ManuGH/hdhr-xmltv/internal/config"
	"github.com/ManuGH/hdhr-xmltv/internal/epg"
	"github.com/ManuGH/hdhr-xmltv/internal/guide"
	"github.com/ManuGH/hdhr-xmltv/internal/hdhr"
	xglog "github.com/ManuGH/hdhr-xmltv/internal/log"
	"github.com/ManuGH/hdhr-xmltv/internal/platform/httpx"
	"github.com/ManuGH/hdhr-xmltv/internal/state"
	"github.com/ManuGH/hdhr-xmltv/internal/version"
	"golang.org/x/time/rate"
)

// GeneratorURL is written to the generator-info-url attribute.
const GeneratorURL = "https://github.com/ManuGH/hdhr-xmltv"

// StrategyFor selects the guide strategy configured in cfg.
func StrategyFor(cfg config.AppConfig) guide.Strategy {
	if cfg.Guide.UseOfficial {
		return guide.Official{URL: cfg.Guide.OfficialURL}
	}
	return guide.Legacy{
		URLs:  cfg.Guide.LegacyURLs,
		Slice: time.Duration(cfg.Guide.HoursIncrement) * time.Hour,
	}
}

// NewRunner wires a Runner from validated configuration.
func NewRunner(cfg config.AppConfig, store state.Store) (*Runner, error) {
	tz := cfg.XMLTVTimezone()
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("xmltv timezone %q: %w", tz, err)
	}

	hc := httpx.NewClient(httpx.Options{Timeout: cfg.Guide.HTTPTimeout, UserAgent: version.UserAgent()})

	var hosts []string
	for _, h := range append([]string{cfg.Discovery.Host}, cfg.Discovery.ExtraHosts...) {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	discovery := &hdhr.Discoverer{
		Client:    hdhr.NewClient(hc),
		Hosts:     hosts,
		Fallbacks: hdhr.DefaultFallbackHosts,
		Timeout:   cfg.Discovery.Timeout,
		Logger:    xglog.WithComponent("discovery"),
	}
	if cfg.Discovery.Broadcast {
		discovery.Broadcast = hdhr.UDPBroadcaster{
			Wait:   cfg.Discovery.Timeout,
			Logger: xglog.WithComponent("broadcast"),
		}
	}

	fetcher := guide.NewFetcher(hc)
	fetcher.Retries = cfg.Guide.Retries
	fetcher.Backoff = cfg.Guide.Backoff
	fetcher.Concurrency = cfg.Guide.SliceConcurrency
	fetcher.Location = loc
	if cfg.Guide.RequestRate > 0 {
		fetcher.Limiter = rate.NewLimiter(rate.Limit(cfg.Guide.RequestRate), 1)
	}

	return &Runner{
		Discovery:  discovery,
		Fetcher:    fetcher,
		Writer:     artifact.NewWriter(cfg.Output.Backup),
		Store:      store,
		Strategy:   StrategyFor(cfg),
		Days:       cfg.Guide.Days,
		OutputPath: cfg.OutputPath(),
		Render: epg.RenderOptions{
			Location:      loc,
			GeneratorName: cfg.Guide.AppName,
			GeneratorURL:  GeneratorURL,
		},
		Logger: xglog.WithComponent("jobs"),
	}, nil
}
