// Package upstream 实现慢速上游（mock LLM）的两侧：
//
//   - 服务端：Generator 按固定节奏产出有限的 chunk 序列，StreamHandler
//     将其以 SSE 形式暴露为 /slow_stream 端点（cmd/mockllm 使用）。
//   - 客户端：Client 消费该端点，提供阻塞式与异步式两种读取方式，
//     分别服务于 bounded 与 unbounded 两种流式 relay。
//
// 每次调用都产生一条独立的全新序列，序列顺序端到端保持，不可重排。
// 上游不可达对单个请求是终态失败，绝不自动重试。
package upstream
