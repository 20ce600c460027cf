// SPDX-License-Identifier: MIT

// Package hdhr locates HDHomeRun tuners on the local network and reads the
// device information the guide service needs.
package hdhr

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ManuGH/hdhr-xmltv/internal/failure"
	"github.com/ManuGH/hdhr-xmltv/internal/platform/httpx"
)

// EmptyAuth is the composite credential of an empty device set.
const EmptyAuth = ""

const maxDeviceBody = 1 << 20

// Device is a tuner discovered during one run. Values are immutable once
// returned by the Discoverer.
type Device struct {
	Address      string
	DeviceID     string
	Auth         string
	TunerCount   int
	BaseURL      string
	LineupURL    string
	FriendlyName string
	ModelNumber  string
}

// CompositeAuth concatenates the device credentials in discovery order.
// The guide service accepts this concatenation to cover every tuner.
func CompositeAuth(devices []Device) string {
	var b strings.Builder
	for _, d := range devices {
		b.WriteString(d.Auth)
	}
	return b.String()
}

// discoverResponse mirrors /discover.json.
type discoverResponse struct {
	FriendlyName    string `json:"FriendlyName"`
	ModelNumber     string `json:"ModelNumber"`
	FirmwareName    string `json:"FirmwareName"`
	FirmwareVersion string `json:"FirmwareVersion"`
	DeviceID        string `json:"DeviceID"`
	DeviceAuth      string `json:"DeviceAuth"`
	BaseURL         string `json:"BaseURL"`
	LineupURL       string `json:"LineupURL"`
	TunerCount      int    `json:"TunerCount"`
}

// LineupEntry is one channel in /lineup.json.
type LineupEntry struct {
	GuideNumber string `json:"GuideNumber"`
	GuideName   string `json:"GuideName"`
	URL         string `json:"URL"`
	ImageURL    string `json:"ImageURL,omitempty"`
	HD          int    `json:"HD,omitempty"`
}

// Client queries the HTTP API of a single tuner.
type Client struct {
	HTTP *http.Client
}

// NewClient returns a Client using hc.
func NewClient(hc *http.Client) *Client {
	return &Client{HTTP: hc}
}

// Discover reads /discover.json from host, which may include a port.
func (c *Client) Discover(ctx context.Context, host string) (Device, error) {
	const op = "hdhr.discover_json"
	var resp discoverResponse
	if err := c.getJSON(ctx, op, "http://"+host+"/discover.json", &resp); err != nil {
		return Device{}, err
	}

	d := Device{
		Address:      host,
		DeviceID:     resp.DeviceID,
		Auth:         resp.DeviceAuth,
		TunerCount:   resp.TunerCount,
		BaseURL:      strings.TrimRight(resp.BaseURL, "/"),
		LineupURL:    resp.LineupURL,
		FriendlyName: resp.FriendlyName,
		ModelNumber:  resp.ModelNumber,
	}
	if d.BaseURL == "" {
		d.BaseURL = "http://" + host
	}
	if d.LineupURL == "" {
		d.LineupURL = d.BaseURL + "/lineup.json"
	}
	return d, nil
}

// Lineup reads the channel lineup of d.
func (c *Client) Lineup(ctx context.Context, d Device) ([]LineupEntry, error) {
	url := d.LineupURL
	if url == "" {
		url = "http://" + d.Address + "/lineup.json"
	}
	var entries []LineupEntry
	if err := c.getJSON(ctx, "hdhr.lineup_json", url, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *Client) getJSON(ctx context.Context, op, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return failure.New(failure.Internal, op, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return failure.FromTransport(ctx, op, err)
	}
	defer httpx.Drain(resp)

	if resp.StatusCode != http.StatusOK {
		return failure.FromStatus(op, resp.StatusCode)
	}
	body, err := httpx.ReadBody(resp.Body, maxDeviceBody)
	if err != nil {
		return failure.New(failure.MalformedResponse, op, err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return failure.New(failure.MalformedResponse, op, fmt.Errorf("decode %s: %w", url, err))
	}
	return nil
}
