package api

import (
	"time"

	"github.com/BaSui01/scriptflow/engine"
)

// =============================================================================
// 脚本管理类型
// =============================================================================

// ScriptRequest 代表创建或更新脚本的请求。
type ScriptRequest struct {
	// 脚本唯一名称
	Name string `json:"name" example:"restart-iis"`
	// 脚本用途说明
	Description string `json:"description,omitempty"`
	// PowerShell 脚本内容
	Content string `json:"content"`
	// 声明的参数 schema
	Parameters []engine.ParameterDefinition `json:"parameters,omitempty"`
	// 默认执行超时（秒），0 表示使用服务默认值
	DefaultTimeoutSeconds int `json:"default_timeout_seconds,omitempty" example:"300"`
}

// DefaultTimeout 将请求中的秒数转换为时长。
func (r ScriptRequest) DefaultTimeout() time.Duration {
	return time.Duration(r.DefaultTimeoutSeconds) * time.Second
}

// =============================================================================
// 执行类型
// =============================================================================

// ExecuteRequest 代表一次脚本执行请求。
type ExecuteRequest struct {
	// 执行参数，按脚本声明的 schema 校验
	Parameters map[string]any `json:"parameters,omitempty"`
	// 本次执行的超时（秒），0 表示使用脚本/服务默认值
	TimeoutSeconds int `json:"timeout_seconds,omitempty" example:"60"`
}

// Timeout 将请求中的秒数转换为时长。
func (r ExecuteRequest) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// =============================================================================
// 凭据类型
// =============================================================================

// CredentialRequest 代表保存基础设施凭据的请求。
type CredentialRequest struct {
	// 凭据唯一名称
	Name string `json:"name" example:"vcenter-admin"`
	// 明文密钥，仅在传输中出现，落库前加密
	Secret string `json:"secret"`
	// 凭据用途说明
	Description string `json:"description,omitempty"`
}
