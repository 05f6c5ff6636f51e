// Package config 提供 Poolstall 的配置管理功能。
//
// 包含配置加载与验证。支持从 YAML 文件和环境变量加载配置，
// 其中流式处理模式（bounded / unbounded）在进程启动时固定，
// 运行期间不可变更。
package config
