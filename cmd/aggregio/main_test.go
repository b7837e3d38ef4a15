package main

import (
	"flag"
	"testing"

	"github.com/bzimmer/activity/strava"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func TestStravaEndpoint(t *testing.T) {
	endpoint := strava.Endpoint()
	assert.Contains(t, endpoint.AuthURL, "strava.com")
	assert.Contains(t, endpoint.TokenURL, "strava.com")
}

func TestNewEngine(t *testing.T) {
	set := flag.NewFlagSet("aggregio", flag.ContinueOnError)
	set.String("client-id", "id", "")
	set.String("client-secret", "secret", "")
	set.String("session-key", "key", "")
	set.String("base-url", "http://localhost:9001", "")
	c := cli.NewContext(cli.NewApp(), set, nil)

	engine, err := newEngine(c)
	require.NoError(t, err)
	require.NotNil(t, engine)
}

func TestToken(t *testing.T) {
	first, err := token(16)
	require.NoError(t, err)
	second, err := token(16)
	require.NoError(t, err)
	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}
