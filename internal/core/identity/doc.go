// Package identity 管理节点身份
//
// 节点身份是一个 Ed25519 密钥对，PeerID 由公钥确定性派生。
// 身份可在内存中临时生成，也可持久化为 PEM 文件并在重启后复用。
package identity
