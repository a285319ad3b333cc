// Package api 汇集图片生成服务的 HTTP 接口.
//
// 路由 (cmd/eventimage 注册):
//
//	POST   /api/v1/images/generations
//	POST   /api/v1/images/estimate
//	GET    /api/v1/providers
//	GET    /api/v1/providers/health
//	GET    /api/v1/providers/{id}/capabilities
//	GET    /api/v1/providers/{id}/settings
//	GET    /api/v1/settings/profiles
//	POST   /api/v1/settings/profiles
//	DELETE /api/v1/settings/profiles/{id}
//
// 鉴权: Authorization: Bearer <JWT> (身份服务签发), 或服务间调用的 X-API-Key.
// 配置档接口要求管理员角色或服务调用者.
package api
