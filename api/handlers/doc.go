// Package handlers 实现 Poolstall 的 HTTP 路由处理器。
//
// 流式路由有两个互相替换的 relay 实现：BoundedRelay（阻塞调用 +
// 固定容量 worker 池，复现饥饿缺陷）与 AsyncRelay（全异步，不占用
// 有界资源）。进程启动时按配置选定其一，运行期间不再切换。
//
// 健康检查在 bounded 模式下刻意与流式请求共用同一个池，
// 其延迟因此成为池饱和程度的直接度量信号。
package handlers
