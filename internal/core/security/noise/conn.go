package noise

import (
	"fmt"
	"net"
	"sync"

	"github.com/flynn/noise"

	"github.com/dep2p/go-floodnet/pkg/types"
)

// maxPlaintext 单条记录最大明文（65535 - 16 字节 AEAD 标签）
const maxPlaintext = 65535 - 16

// secureConn Noise 加密连接
type secureConn struct {
	net.Conn

	sendCS *noise.CipherState
	recvCS *noise.CipherState

	localPeer  types.PeerID
	remotePeer types.PeerID

	readMu  sync.Mutex
	writeMu sync.Mutex

	readBuf []byte
}

// Read 读取并解密
func (c *secureConn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for len(c.readBuf) == 0 {
		msg, err := readFrame(c.Conn)
		if err != nil {
			return 0, err
		}
		plaintext, err := c.recvCS.Decrypt(nil, nil, msg)
		if err != nil {
			return 0, fmt.Errorf("decrypt: %w", err)
		}
		c.readBuf = plaintext
	}

	n := copy(p, c.readBuf)
	c.readBuf = c.readBuf[n:]
	return n, nil
}

// Write 加密并写入，超过单条记录上限时分片
func (c *secureConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	written := 0
	for len(p) > 0 {
		chunk := p
		if len(chunk) > maxPlaintext {
			chunk = chunk[:maxPlaintext]
		}
		ciphertext, err := c.sendCS.Encrypt(nil, nil, chunk)
		if err != nil {
			return written, fmt.Errorf("encrypt: %w", err)
		}
		if err := writeFrame(c.Conn, ciphertext); err != nil {
			return written, err
		}
		written += len(chunk)
		p = p[len(chunk):]
	}
	return written, nil
}

// LocalPeer 返回本地节点 ID
func (c *secureConn) LocalPeer() types.PeerID {
	return c.localPeer
}

// RemotePeer 返回已认证的远端节点 ID
func (c *secureConn) RemotePeer() types.PeerID {
	return c.remotePeer
}
