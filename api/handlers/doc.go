/*
Package handlers 实现图片生成服务的 HTTP JSON 接口。

所有 Handler 都是标准 net/http 处理函数, 统一使用 Response 包装
(success + data + error + timestamp + request_id)。生成核心的封闭错误码
通过 types.ErrorCode.HTTPStatus 映射为状态码; 配置档存储的哨兵错误映射为
404/409/503。

  - ImageHandler    生成与成本估算, 图片以 base64 内联返回
  - ProviderHandler 供应商列表、健康、能力与生效配置
  - SettingsHandler 配置档管理 (列表、创建/更新、删除)
  - HealthHandler   存活、就绪与版本

鉴权与角色检查由 cmd 中的中间件完成; 这里只从 context 读取调用者身份
(types.UserID / types.HasRole)。
*/
package handlers
