package identity

import (
	"crypto/ed25519"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const pemTypeEd25519Private = "ED25519 PRIVATE KEY"

// ============================================================================
//                              私钥持久化
// ============================================================================

// Save 保存身份私钥到 PEM 文件（权限 0600，原子写入）
func (i *Identity) Save(path string) error {
	block := &pem.Block{
		Type:  pemTypeEd25519Private,
		Bytes: i.priv,
	}
	return atomicWriteFile(path, pem.EncodeToMemory(block), 0o600)
}

// Load 从 PEM 文件加载身份
func Load(path string) (*Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, ErrInvalidPEM
	}
	if block.Type != pemTypeEd25519Private {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKeyType, block.Type)
	}
	if len(block.Bytes) != ed25519.PrivateKeySize {
		return nil, ErrInvalidKeySize
	}
	return FromPrivateKey(ed25519.PrivateKey(block.Bytes))
}

// LoadOrCreate 加载身份；文件不存在且 autoGenerate 时生成并保存
//
// path 为空时返回临时身份。
func LoadOrCreate(path string, autoGenerate bool) (*Identity, error) {
	if path == "" {
		return Generate()
	}

	id, err := Load(path)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, ErrKeyNotFound) || !autoGenerate {
		return nil, fmt.Errorf("load identity %s: %w", path, err)
	}

	id, err = Generate()
	if err != nil {
		return nil, err
	}
	if err := id.Save(path); err != nil {
		return nil, fmt.Errorf("save identity %s: %w", path, err)
	}
	log.Info("已生成新身份", "path", path, "peer", id.PeerID().ShortString())
	return id, nil
}

// ============================================================================
//                              原子写操作
// ============================================================================

// atomicWriteFile 临时文件 + rename，任一步骤失败目标文件保持不变
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".tmp-")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("写入临时文件失败: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("同步临时文件失败: %w", err)
	}
	if err := tmpFile.Chmod(perm); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("设置文件权限失败: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("关闭临时文件失败: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("原子 rename 失败: %w", err)
	}

	success = true
	return nil
}
