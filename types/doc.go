/*
Package types 提供跨包共享的最底层类型定义。

# 概述

types 不依赖任何内部包，为 imagegen、api、cmd 等上层模块提供统一的
错误码与上下文契约，避免循环依赖。

# 核心类型

  - ErrorCode 封闭错误码集合：QUOTA_EXCEEDED、RATE_LIMITED、
    SERVICE_UNAVAILABLE、INVALID_PARAMETERS、INSUFFICIENT_CREDITS、UNKNOWN
  - Error     结构化错误，含 HTTP 状态码、Retryable、Provider 标记

# 主要能力

  - 错误工具链：AsError / GetErrorCode / IsCode / IsRetryable
  - Context 传播：WithRequestID / WithUserID / WithRoles
*/
package types
