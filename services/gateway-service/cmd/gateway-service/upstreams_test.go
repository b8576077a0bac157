package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUpstreams(t *testing.T) {
	ups, err := parseUpstreams(" auth-service=auth-service:9081, ,booking-service = booking-service:9083")
	require.NoError(t, err)
	assert.Equal(t, []upstream{
		{Service: "auth-service", Addr: "auth-service:9081"},
		{Service: "booking-service", Addr: "booking-service:9083"},
	}, ups)

	ups, err = parseUpstreams("")
	require.NoError(t, err)
	assert.Empty(t, ups)

	_, err = parseUpstreams("auth-service")
	assert.Error(t, err)
	_, err = parseUpstreams("=auth-service:9081")
	assert.Error(t, err)
}

func TestUpstreamCheckFailsWhenUnreachable(t *testing.T) {
	checks, closeAll, err := upstreamChecks([]upstream{{Service: "studio-service", Addr: "127.0.0.1:1"}}, 200*time.Millisecond)
	require.NoError(t, err)
	defer closeAll()

	require.Len(t, checks, 1)
	assert.Equal(t, "studio-service", checks[0].Name)
	assert.Error(t, checks[0].Check(context.Background()))
}
