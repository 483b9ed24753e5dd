package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
//                              默认配置
// ============================================================================

func TestNewConfig(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []string{DefaultListenAddr}, cfg.Transport.ListenAddrs)
	assert.Equal(t, 5*time.Second, cfg.Discovery.Interval.Duration())
	assert.Equal(t, 15*time.Second, cfg.Discovery.Expiry.Duration())
	assert.Equal(t, DiscoveryModeMulticast, cfg.Discovery.Mode)
	assert.Equal(t, []string{"chat"}, cfg.PubSub.Topics)
}

// ============================================================================
//                              校验
// ============================================================================

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"过期时间不大于间隔", func(c *Config) { c.Discovery.Expiry = c.Discovery.Interval }},
		{"未知发现模式", func(c *Config) { c.Discovery.Mode = "dht" }},
		{"无监听地址", func(c *Config) { c.Transport.ListenAddrs = nil }},
		{"非法监听地址", func(c *Config) { c.Transport.ListenAddrs = []string{"tcp://0.0.0.0"} }},
		{"帧上限过小", func(c *Config) { c.Transport.MaxFrameSize = 10 }},
		{"缓存容量为零", func(c *Config) { c.PubSub.SeenCacheSize = 0 }},
		{"组播地址缺端口", func(c *Config) { c.Discovery.Group = "239.255.70.78" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.modify(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	t.Run("nil", func(t *testing.T) {
		assert.ErrorIs(t, ValidateAll(nil), ErrInvalidConfig)
	})
}

// ============================================================================
//                              加载
// ============================================================================

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("YAML", func(t *testing.T) {
		path := filepath.Join(dir, "node.yaml")
		data := []byte(`
transport:
  listen_addrs: ["/ip4/127.0.0.1/tcp/4001"]
discovery:
  mode: mdns
  interval: 2s
  expiry: 10s
pubsub:
  topics: [chat, news]
`)
		require.NoError(t, os.WriteFile(path, data, 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"/ip4/127.0.0.1/tcp/4001"}, cfg.Transport.ListenAddrs)
		assert.Equal(t, DiscoveryModeMDNS, cfg.Discovery.Mode)
		assert.Equal(t, 2*time.Second, cfg.Discovery.Interval.Duration())
		assert.Equal(t, []string{"chat", "news"}, cfg.PubSub.Topics)
		// 未出现的字段保留默认值
		assert.Equal(t, 1<<20, cfg.Transport.MaxFrameSize)
	})

	t.Run("JSON", func(t *testing.T) {
		path := filepath.Join(dir, "node.json")
		data := []byte(`{"discovery": {"interval": "1s", "expiry": "3s"}}`)
		require.NoError(t, os.WriteFile(path, data, 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, time.Second, cfg.Discovery.Interval.Duration())
	})

	t.Run("语义错误", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		data := []byte(`{"discovery": {"interval": "10s", "expiry": "5s"}}`)
		require.NoError(t, os.WriteFile(path, data, 0o600))

		_, err := Load(path)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("未知字段", func(t *testing.T) {
		_, err := FromJSON([]byte(`{"realm": {}}`))
		assert.Error(t, err)
	})

	t.Run("文件不存在", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "missing.yaml"))
		assert.Error(t, err)
	})
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvListen:        "/ip4/0.0.0.0/tcp/1, /ip4/0.0.0.0/tcp/2",
		EnvDiscoveryMode: "MDNS",
		EnvTopics:        "a,b",
	}
	cfg := NewConfig()
	ApplyEnv(cfg, func(k string) string { return env[k] })

	assert.Equal(t, []string{"/ip4/0.0.0.0/tcp/1", "/ip4/0.0.0.0/tcp/2"}, cfg.Transport.ListenAddrs)
	assert.Equal(t, DiscoveryModeMDNS, cfg.Discovery.Mode)
	assert.Equal(t, []string{"a", "b"}, cfg.PubSub.Topics)
	require.NoError(t, cfg.Validate())
}

func TestDuration(t *testing.T) {
	cfg := NewConfig()
	data, err := cfg.ToYAML()
	require.NoError(t, err)
	assert.Contains(t, string(data), "interval: 5s")

	back, err := FromYAML(data)
	require.NoError(t, err)
	assert.Equal(t, cfg.Discovery, back.Discovery)

	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`1000`)))
	assert.Equal(t, time.Microsecond, d.Duration())
	assert.Error(t, d.UnmarshalJSON([]byte(`"soon"`)))
}
