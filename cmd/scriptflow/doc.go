// =============================================================================
// 🚀 ScriptFlow 服务入口
// =============================================================================
// scriptflow 命令提供脚本执行服务的启动与运维子命令：
//
//	serve    启动 HTTP API 与 Metrics 服务器
//	version  打印版本信息
//	health   对运行中的实例做健康检查
//	keygen   生成凭据加密密钥
//
// 服务器装配（server.go）负责初始化存储、Redis 输出流代理、
// 脚本执行引擎与各服务层，并通过中间件链（middleware.go）
// 处理认证、限流、日志与指标。
package main
