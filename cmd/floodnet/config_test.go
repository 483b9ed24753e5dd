package main

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-floodnet/config"
)

func TestSplitAndTrim(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitAndTrim(" a, ,b "))
	assert.Nil(t, splitAndTrim(""))
}

func TestBuildConfig_Flags(t *testing.T) {
	t.Setenv(config.EnvTopics, "")
	require.NoError(t, flag.CommandLine.Parse([]string{
		"-listen", "/ip4/127.0.0.1/tcp/4001",
		"-topic", "chat,news",
		"-discovery", "off",
		"/ip4/127.0.0.1/tcp/4002",
	}))

	cfg, err := buildConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"/ip4/127.0.0.1/tcp/4001"}, cfg.Transport.ListenAddrs)
	assert.Equal(t, []string{"chat", "news"}, cfg.PubSub.Topics)
	assert.False(t, cfg.Discovery.Enabled)
	assert.Equal(t, "/ip4/127.0.0.1/tcp/4002", flag.Arg(0))
}
