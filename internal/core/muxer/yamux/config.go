// Package yamux 基于 hashicorp/yamux 的流多路复用
package yamux

import (
	"io"
	"time"

	"github.com/hashicorp/yamux"

	"github.com/dep2p/go-floodnet/pkg/types"
)

// ProtocolID 多路复用协议标识（multistream-select 协商）
const ProtocolID = types.ProtocolID("/yamux/1.0.0")

// DefaultConfig 返回默认的 yamux 配置
func DefaultConfig() *yamux.Config {
	return &yamux.Config{
		AcceptBacklog:          256,
		EnableKeepAlive:        true,
		KeepAliveInterval:      30 * time.Second,
		ConnectionWriteTimeout: 10 * time.Second,
		MaxStreamWindowSize:    256 * 1024,
		StreamOpenTimeout:      75 * time.Second,
		StreamCloseTimeout:     5 * time.Minute,
		LogOutput:              io.Discard,
	}
}
