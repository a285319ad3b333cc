/*
Package main 提供 eventimage 服务端程序入口。

# 概述

cmd/eventimage 组装配置、日志 (zap)、OpenTelemetry、配置档数据库、
Redis 健康缓存与供应商注册表, 对外提供活动图片生成 HTTP API。
命令树基于 cobra, 全局参数 --config 与 --env-file 对所有子命令生效。

# 子命令

  - serve: 启动 HTTP 服务与独立的 /metrics 端口, 按 cron 表达式预热供应商健康
  - providers: 按配置探测每个供应商并输出健康表, 有不健康的已配置供应商时非零退出
  - migrate: 嵌入式 SQL 迁移 (golang-migrate), 参数标志写在动作之前
  - health, version

# 中间件链

Recovery → RequestID → OTelTracing → Metrics → SecurityHeaders →
RequestLogger → BodyLimit → Authenticate → RateLimiter

Authenticate 接受 X-API-Key (服务调用方, 角色 service) 或
Bearer JWT (HS256, sub 为用户标识)。配置档管理路由另需管理员角色或
service 角色。限流按用户标识分桶, 未鉴权请求按 IP 分桶。

# 降级

数据库不可用时配置档接口返回 503, 生成使用能力默认值;
Redis 不可用时健康状态只在进程内缓存。
*/
package main
