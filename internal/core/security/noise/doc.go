// Package noise 实现 Noise XX 安全通道
//
// 握手流程：
//
//	-> e
//	<- e, ee, s, es, payload
//	-> s, se, payload
//
// 静态 DH 密钥由 Ed25519 身份密钥转换得到（Curve25519）。
// payload 携带 Ed25519 身份公钥以及对静态公钥的签名：
//
//	identity_sig = Sign("noise-floodnet-static-key:" || curve25519_static_pubkey)
//
// 握手完成后每条记录为 2 字节大端长度 + 密文。
package noise
