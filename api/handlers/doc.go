/*
Package handlers 提供 ScriptFlow HTTP API 的请求处理器实现。

# 概述

handlers 包实现了 ScriptFlow 所有 HTTP 端点的请求处理逻辑，
包括脚本管理、脚本执行与历史查询、实时输出 WebSocket 流、
凭据管理、健康检查以及统一的响应/错误处理。
所有 Handler 均遵循标准 net/http 接口。

# 核心类型

  - ScriptHandler     — 脚本库 CRUD 与版本历史
  - ExecutionHandler  — 脚本执行、校验、历史查询与系统信息
  - StreamHandler     — 执行输出 WebSocket 实时流
  - CredentialHandler — 凭据保存/读取/删除（仅管理员）
  - HealthHandler     — 服务健康检查（/health, /healthz, /ready）
  - Response          — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo         — 结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter    — 包装 http.ResponseWriter 以捕获状态码
*/
package handlers
