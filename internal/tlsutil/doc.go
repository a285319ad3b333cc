// Package tlsutil 集中定义出站 (供应商 API、Redis) 与入站 (HTTPS) 的 TLS 配置:
// TLS 1.2 起步, 仅 AEAD 密码套件。
package tlsutil
