// Package telemetry 初始化 OpenTelemetry SDK (OTLP gRPC 导出 traces 与 metrics)。
// 未启用时保持全局 no-op provider, imagegen 与 HTTP 中间件的埋点不产生开销。
package telemetry
