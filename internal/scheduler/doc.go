/*
包 scheduler 按 cron 表达式在后台预热供应商健康缓存。

健康状态按 TTL 惰性刷新, 过期后第一个请求会承担探测延迟。
HealthWarmer 周期性调用 Registry.CheckHealthAll, 让缓存在请求到来前
已经是新鲜的; 开启 Redis 共享缓存时, 结果也同步给其它实例。
*/
package scheduler
