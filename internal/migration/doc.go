/*
包 migration 管理配置档表的 Schema 迁移, 基于 golang-migrate,
支持 PostgreSQL、MySQL 与 SQLite。

各方言的 SQL 通过 embed 内嵌在 migrations/<dialect>/ 下。每个供应商
至多一个默认配置档由数据库唯一索引保证: PostgreSQL 与 SQLite 使用
部分索引 (WHERE is_default), MySQL 使用生成列 default_provider 上的
唯一索引。

  - Migrator / DefaultMigrator：Up、Down、Steps、Goto、Force、
    Version、Status、Info。
  - CLI：供 eventimage migrate 子命令使用的格式化输出。
  - NewMigratorFromDatabaseConfig：复用 database.Config 的驱动与 DSN。
*/
package migration
