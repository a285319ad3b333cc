/*
包 cache 提供基于 Redis 的共享缓存, 供多个服务实例共享供应商健康状态。

# 核心类型

  - Manager：封装 go-redis 客户端, 负责连接、键前缀、JSON 读写、
    后台探活与优雅关闭。未命中返回 ErrCacheMiss。
  - HealthStore：imagegen.HealthStore 的 Redis 实现。条目只是缓存,
    新鲜度由注册表根据 CheckedAt 判断; 键的过期时间为健康 TTL 的
    三倍, 以便延续连续失败计数。
*/
package cache
