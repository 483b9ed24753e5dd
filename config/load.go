package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// 环境变量覆盖
const (
	EnvListen        = "FLOODNET_LISTEN"
	EnvIdentityFile  = "FLOODNET_IDENTITY_FILE"
	EnvDiscoveryMode = "FLOODNET_DISCOVERY_MODE"
	EnvTopics        = "FLOODNET_TOPICS"
	EnvMetricsAddr   = "FLOODNET_METRICS_ADDR"
)

// Load 从文件加载配置
//
// 按扩展名选择格式：.yaml/.yml 为 YAML，其余按 JSON 解析。
// 文件中未出现的字段保留默认值；加载后应用环境变量覆盖并校验。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg *Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		cfg, err = FromYAML(data)
	default:
		cfg, err = FromJSON(data)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	ApplyEnv(cfg, os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromJSON 在默认配置之上解析 JSON
func FromJSON(data []byte) (*Config, error) {
	cfg := NewConfig()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromYAML 在默认配置之上解析 YAML
func FromYAML(data []byte) (*Config, error) {
	cfg := NewConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ToJSON 序列化为带缩进的 JSON
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// ToYAML 序列化为 YAML
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// ApplyEnv 应用 FLOODNET_* 环境变量覆盖
func ApplyEnv(c *Config, getenv func(string) string) {
	if v := getenv(EnvListen); v != "" {
		c.Transport.ListenAddrs = splitList(v)
	}
	if v := getenv(EnvIdentityFile); v != "" {
		c.Identity.KeyFile = v
	}
	if v := getenv(EnvDiscoveryMode); v != "" {
		c.Discovery.Mode = strings.ToLower(v)
	}
	if v := getenv(EnvTopics); v != "" {
		c.PubSub.Topics = splitList(v)
	}
	if v := getenv(EnvMetricsAddr); v != "" {
		c.Metrics.ListenAddr = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
