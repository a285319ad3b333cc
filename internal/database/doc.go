/*
包 database 负责打开配置档存储使用的 SQL 数据库 (postgres、mysql、
sqlite) 并管理其连接池。

# 核心类型

  - Config：驱动、DSN、慢查询阈值与连接池配置。
  - PoolManager：持有 GORM 实例与底层 sql.DB, 提供 Ping、Stats、
    Close, 以及 WithTransaction / WithTransactionRetry (死锁、序列化
    失败等瞬时错误按指数退避重试)。

gorm 的日志通过 zap 输出, 慢查询记为 warn。
*/
package database
