// Package api 定义 Poolstall HTTP 接口的请求与响应类型。
//
// 具体的路由处理逻辑在 api/handlers 子包中实现。
package api
