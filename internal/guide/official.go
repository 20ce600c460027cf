// SPDX-License-Identifier: MIT
package guide

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ManuGH/hdhr-xmltv/internal/epg"
	"github.com/ManuGH/hdhr-xmltv/internal/failure"
	xglog "github.com/ManuGH/hdhr-xmltv/internal/log"
	"github.com/ManuGH/hdhr-xmltv/internal/platform/httpx"
)

const maxOfficialBody = epg.MaxDocumentSize

// Official fetches the pre-formatted XMLTV feed. It requires a DVR
// subscription associated with at least one of the devices.
type Official struct {
	URL string
}

// Name implements Strategy.
func (Official) Name() string { return "official" }

type officialBody struct {
	data     []byte
	encoding string
}

func (o Official) fetch(ctx context.Context, f *Fetcher, req Request) (epg.Payload, error) {
	const op = "guide.official"
	target, err := withQuery(o.URL, url.Values{"DeviceAuth": {req.Credential}})
	if err != nil {
		return nil, failure.New(failure.Internal, op, err)
	}

	body, err := retry(ctx, f, op, func(ctx context.Context) (officialBody, error) {
		if err := f.pace(ctx, op); err != nil {
			return officialBody{}, err
		}
		b, err := o.get(ctx, f, op, target, len(req.Devices))
		recordRequest(o.Name(), err)
		return b, err
	})
	if err != nil {
		return nil, err
	}

	f.Logger.Debug().
		Str(xglog.FieldEvent, "guide.official_received").
		Int(xglog.FieldBytes, len(body.data)).
		Str("encoding", body.encoding).
		Msg("official XMLTV feed received")
	return epg.OfficialPayload{Body: body.data, Encoding: body.encoding}, nil
}

func (o Official) get(ctx context.Context, f *Fetcher, op, target string, devices int) (officialBody, error) {
	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return officialBody{}, failure.New(failure.Internal, op, err)
	}
	hreq.Header.Set("Accept", "application/xml, text/xml, */*")
	hreq.Header.Set("Accept-Encoding", "gzip, br")

	resp, err := f.HTTP.Do(hreq)
	if err != nil {
		return officialBody{}, failure.FromTransport(ctx, op, err)
	}
	defer httpx.Drain(resp)

	switch {
	case resp.StatusCode == http.StatusForbidden:
		e := failure.Newf(failure.SubscriptionRequired, op,
			"XMLTV feed refused the credential of %d device(s)", devices).WithStatus(resp.StatusCode)
		e.Devices = devices
		return officialBody{}, e.WithHint(fmt.Sprintf(
			"no active DVR subscription is associated with the %d discovered device(s); "+
				"check the subscription and that the devices are linked to the DVR account", devices))
	case resp.StatusCode != http.StatusOK:
		return officialBody{}, failure.FromStatus(op, resp.StatusCode)
	}

	data, err := readBody(ctx, op, resp, maxOfficialBody)
	if err != nil {
		return officialBody{}, err
	}
	return officialBody{data: data, encoding: resp.Header.Get("Content-Encoding")}, nil
}

func withQuery(base string, q url.Values) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse guide url %q: %w", base, err)
	}
	values := u.Query()
	for k, vs := range q {
		for _, v := range vs {
			values.Set(k, v)
		}
	}
	u.RawQuery = values.Encode()
	return u.String(), nil
}
