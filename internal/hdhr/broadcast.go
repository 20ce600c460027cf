// SPDX-License-Identifier: MIT
package hdhr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"strconv"
	"time"

	xglog "github.com/ManuGH/hdhr-xmltv/internal/log"
	"github.com/rs/zerolog"
)

const (
	// DiscoverPort is the UDP port tuners listen on for discovery requests.
	DiscoverPort = 65001

	// BroadcastAddr is the IPv4 limited broadcast address.
	BroadcastAddr = "255.255.255.255"
)

// Broadcaster finds tuners without prior knowledge of their addresses.
type Broadcaster interface {
	Probe(ctx context.Context) ([]BroadcastReply, error)
}

// UDPBroadcaster sends a libhdhomerun discovery request and collects the
// replies that arrive within Wait.
type UDPBroadcaster struct {
	Target string // host:port, defaults to 255.255.255.255:65001
	Wait   time.Duration
	Logger zerolog.Logger
}

// Probe returns replies ordered by address so the discovery order is
// stable across runs.
func (b UDPBroadcaster) Probe(ctx context.Context) ([]BroadcastReply, error) {
	target := b.Target
	if target == "" {
		target = net.JoinHostPort(BroadcastAddr, strconv.Itoa(DiscoverPort))
	}
	wait := b.Wait
	if wait <= 0 {
		wait = 2 * time.Second
	}

	raddr, err := net.ResolveUDPAddr("udp4", target)
	if err != nil {
		return nil, fmt.Errorf("resolve broadcast target: %w", err)
	}
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero})
	if err != nil {
		return nil, fmt.Errorf("listen UDP: %w", err)
	}
	defer conn.Close()

	if _, err := conn.WriteToUDP(NewDiscoverRequest().Marshal(), raddr); err != nil {
		return nil, fmt.Errorf("send discover request: %w", err)
	}

	deadline := time.Now().Add(wait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()

	var replies []BroadcastReply
	seen := make(map[string]struct{})
	buf := make([]byte, 4096)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				break
			}
			return nil, fmt.Errorf("read discover reply: %w", err)
		}
		reply, err := ParseDiscoverReply(addr.IP.String(), buf[:n])
		if err != nil {
			b.Logger.Debug().Err(err).Str(xglog.FieldEvent, "discovery.invalid_reply").Str("from", addr.String()).Msg("ignoring invalid discovery reply")
			continue
		}
		if reply.DeviceType != 0 && reply.DeviceType != DeviceTypeTuner {
			continue
		}
		if _, dup := seen[reply.Address]; dup {
			continue
		}
		seen[reply.Address] = struct{}{}
		replies = append(replies, reply)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slices.SortFunc(replies, func(a, b BroadcastReply) int {
		return compareAddr(a.Address, b.Address)
	})
	return replies, nil
}

func compareAddr(a, b string) int {
	ia, ib := net.ParseIP(a), net.ParseIP(b)
	if ia != nil && ib != nil {
		return slices.Compare(ia.To16(), ib.To16())
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
