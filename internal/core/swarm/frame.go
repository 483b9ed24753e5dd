package swarm

import (
	"bufio"
	"fmt"
	"io"

	"github.com/multiformats/go-varint"
)

// writeFrame 写入 uvarint(len) || data
func writeFrame(w io.Writer, data []byte) error {
	buf := make([]byte, 0, varint.UvarintSize(uint64(len(data)))+len(data))
	buf = append(buf, varint.ToUvarint(uint64(len(data)))...)
	buf = append(buf, data...)
	_, err := w.Write(buf)
	return err
}

// readFrame 读取一个帧，超过 maxSize 返回 ErrFrameTooLarge
func readFrame(r *bufio.Reader, maxSize int) ([]byte, error) {
	n, err := varint.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	if n > uint64(maxSize) {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, maxSize)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}
