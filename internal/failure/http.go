// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package failure

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// FromStatus classifies an unexpected HTTP status. 429 and 5xx are
// transient; any other status means the peer rejected or misunderstood the
// request. Callers handle 403 themselves where it carries meaning.
func FromStatus(op string, status int) *Error {
	kind := MalformedResponse
	if status == http.StatusTooManyRequests || status >= 500 {
		kind = TransientNetworkFailure
	}
	return &Error{Kind: kind, Op: op, Status: status, Err: fmt.Errorf("unexpected status %s", http.StatusText(status))}
}

// FromTransport classifies an error returned by http.Client.Do.
func FromTransport(ctx context.Context, op string, err error) *Error {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) || errors.Is(err, context.Canceled) {
		return New(Canceled, op, err)
	}
	return New(TransientNetworkFailure, op, err)
}
