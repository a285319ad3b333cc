// Package config 加载 eventimage 服务配置。
//
// 加载顺序为默认值、YAML 文件、环境变量 (前缀 EVENTIMAGE)。
// Config 提供到 imagegen、database、cache、server 各自配置类型的转换,
// 以及汇总全部错误的 Validate。
package config
