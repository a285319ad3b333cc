/*
包 metrics 提供基于 Prometheus 的服务指标采集。

Collector 通过 promauto 注册到调用方给定的 Registerer, 覆盖:

  - HTTP：请求数 (按 method/path/状态码段)、耗时、响应大小、限流次数。
  - 生成：按供应商与结果码计数, 成功生成的图片数与估算成本。
  - 缓存：供应商健康缓存的命中与未命中。
  - 数据库：连接池打开、空闲、使用中的连接数。

供应商健康探测的指标由 imagegen 包自行注册。
*/
package metrics
