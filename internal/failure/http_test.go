// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package failure

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{http.StatusTooManyRequests, TransientNetworkFailure},
		{http.StatusInternalServerError, TransientNetworkFailure},
		{http.StatusBadGateway, TransientNetworkFailure},
		{http.StatusNotFound, MalformedResponse},
		{http.StatusBadRequest, MalformedResponse},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := FromStatus("op", tt.status)
			assert.Equal(t, tt.want, err.Kind)
			assert.Equal(t, tt.status, err.Status)
		})
	}
}

func TestFromTransport(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, Canceled, FromTransport(ctx, "op", context.Canceled).Kind)

	assert.Equal(t, TransientNetworkFailure, FromTransport(context.Background(), "op", errors.New("connection refused")).Kind)
	assert.Equal(t, TransientNetworkFailure, FromTransport(context.Background(), "op", context.DeadlineExceeded).Kind)
}
