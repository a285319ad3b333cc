/*
包 server 管理 HTTP 监听器的生命周期。

Manager 封装 http.Server: Start 在后台 goroutine 中服务 (配置了证书
与密钥时走 HTTPS, TLS 参数来自 tlsutil), Shutdown 在 ShutdownTimeout
内排空请求, WaitForShutdown 等待 SIGINT/SIGTERM、ctx 取消或服务错误
后执行关闭。生成请求可能持续数十秒, 默认写超时据此放宽到 180s。
*/
package server
