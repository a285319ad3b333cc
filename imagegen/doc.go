/*
包 imagegen 提供活动图片生成的供应商编排层: 统一的适配器接口、
供应商注册表与健康缓存、配置合并以及生成入口。

# 概述

一次生成请求依次经过: 积分前置检查、供应商选择 (首选或按优先级)、
生效配置合并 (能力默认值 → 配置档基础设置 → 配置档专有设置 →
请求选项)、参数校验、成本估算与上限检查、种子解析, 最后调用
适配器生成。所有失败都被归类为 types 包中封闭的错误码集合。

# 核心类型

  - Adapter：供应商适配器接口 (ValidateParams、EstimateCost、
    Generate、HealthCheck)。内置 openai、flux、stability、ideogram、
    imagen、recraft、fal 七个实现。
  - SpecificSettings：按供应商区分的专有设置 (封闭的标签联合),
    JSON 编码为 {"provider": ..., "settings": {...}} 信封。
  - Registry：编译期供应商表 + 运行期健康缓存 (TTL、singleflight
    合并探测、连续失败阈值, 可选 Redis 共享)。
  - Service：编排入口, 同时提供成本估算与配置档管理。
  - SettingsStore：配置档持久化接口, 实现见 imagegen/settings。

# 种子

DeriveSeed 对 UTF-16 码元做 32 位滚动哈希, 结果落在 [0, 999999],
与历史生成记录保持一致。调用方指定的种子原样使用。
*/
package imagegen
