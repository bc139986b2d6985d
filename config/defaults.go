// =============================================================================
// 📦 ScriptFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:   DefaultServerConfig(),
		Engine:   DefaultEngineConfig(),
		Redis:    DefaultRedisConfig(),
		Database: DefaultDatabaseConfig(),
		Auth:     DefaultAuthConfig(),
		Log:      DefaultLogConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		// WriteTimeout 为 0：WebSocket 输出流需要不受限的长连接写入
		WriteTimeout:    0,
		ShutdownTimeout: 15 * time.Second,
		AllowedOrigin:   "",
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultEngineConfig 返回默认引擎配置
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Interpreters:   []string{"pwsh", "powershell"},
		DefaultTimeout: 5 * time.Minute,
		MaxTimeout:     30 * time.Minute,
		MaxScriptBytes: 1 << 20,
		MaxConcurrent:  16,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:          "localhost:6379",
		Password:      "",
		DB:            0,
		PoolSize:      10,
		MinIdleConns:  2,
		ChannelPrefix: "scriptflow:exec:",
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "scriptflow",
		Password:        "",
		Name:            "scriptflow.db",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultAuthConfig 返回默认认证配置
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		JWTSecret:     "",
		TokenTTL:      24 * time.Hour,
		Issuer:        "scriptflow",
		CredentialKey: "",
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}
