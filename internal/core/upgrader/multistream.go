package upgrader

import (
	"fmt"
	"net"

	mss "github.com/multiformats/go-multistream"

	"github.com/dep2p/go-floodnet/pkg/types"
)

// negotiate 用 multistream-select 协商单个协议
//
// 服务端使用 MultistreamMuxer.Negotiate，客户端使用 SelectProtoOrFail。
func negotiate(conn net.Conn, proto types.ProtocolID, isServer bool) error {
	if isServer {
		muxer := mss.NewMultistreamMuxer[string]()
		muxer.AddHandler(string(proto), nil)

		selected, _, err := muxer.Negotiate(conn)
		if err != nil {
			return fmt.Errorf("negotiate %s: %w", proto, err)
		}
		if selected != string(proto) {
			return fmt.Errorf("%w: %s", ErrProtocolMismatch, selected)
		}
		return nil
	}

	if err := mss.SelectProtoOrFail(string(proto), conn); err != nil {
		return fmt.Errorf("select %s: %w", proto, err)
	}
	return nil
}
