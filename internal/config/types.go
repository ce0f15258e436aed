// Package config 统一配置管理
//
// 配置加载优先级（高→低）：
//  1. 环境变量（通过 .env 文件或 shell/systemd 注入）
//  2. YAML 配置文件（{env}.yaml，如 dev.yaml、test.yaml、prod.yaml）
//  3. 代码硬编码默认值
//
// 凭据单一数据源：
//
//	JWT_SECRET、ADMIN_SIGNUP_SECRET、MONGO_URI、REDIS_PASSWORD 只从环境变量读取，
//	YAML 中不存储任何密钥，代码中也没有兜底的默认密钥。
//
// 配置路径确定策略：
//  1. --config 命令行参数（显式路径）
//  2. CONFIG_DIR 环境变量
//  3. 按 APP_ENV 选择默认路径：
//     - prod → /etc/payments-portal/
//     - dev/test → ./configs/
package config

import "time"

// Environment 环境类型
type Environment string

const (
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test"
	EnvDevelopment Environment = "dev"
)

// 数据库驱动
const (
	DriverMongoDB = "mongodb"
	DriverMemory  = "memory"
)

// 限流计数后端
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// YAMLConfig YAML 配置文件结构
type YAMLConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	CORS      CORSConfig      `yaml:"cors"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Port        string    `yaml:"port"`
	DebugRoutes bool      `yaml:"debug_routes"` // 注册 /payments/test-db 和 /payments/debug-data（prod 环境忽略）
	StaticDir   string    `yaml:"static_dir"`   // 前端构建产物目录，为空则不托管
	DevProxy    string    `yaml:"dev_proxy"`    // 前端开发服务器地址，非 API 请求反向代理过去（优先于 static_dir）
	BodyLimit   int64     `yaml:"body_limit"`   // 请求体上限（字节）
	TLS         TLSConfig `yaml:"tls"`
}

// TLSConfig TLS/HTTPS 配置
type TLSConfig struct {
	Enabled      bool   `yaml:"enabled"`
	CertFile     string `yaml:"cert_file"`
	KeyFile      string `yaml:"key_file"`
	CertDir      string `yaml:"cert_dir"`      // auto_generate 时的证书目录
	AutoGenerate bool   `yaml:"auto_generate"` // 证书不存在时生成自签名证书（仅开发用）
	Hosts        string `yaml:"hosts"`         // 证书 SANs（逗号分隔），自动包含 localhost
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // mongodb | memory
	URI    string `yaml:"-"`      // 只从 MONGO_URI / ATLAS_URL 环境变量读取
	Name   string `yaml:"name"`
}

// RedisConfig Redis 配置，URL 为空时不启用
type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"-"` // 只从 REDIS_PASSWORD 环境变量读取
}

// AuthConfig 认证配置
type AuthConfig struct {
	JWTSecret         string         `yaml:"-"` // 只从 JWT_SECRET 环境变量读取
	AdminSignupSecret string         `yaml:"-"` // 只从 ADMIN_SIGNUP_SECRET 环境变量读取
	TokenTTL          time.Duration  `yaml:"token_ttl"`
	LoginThrottle     ThrottleConfig `yaml:"login_throttle"`
}

// ThrottleConfig 登录失败退避配置
type ThrottleConfig struct {
	FreeRetries int           `yaml:"free_retries"`
	MinWait     time.Duration `yaml:"min_wait"`
	MaxWait     time.Duration `yaml:"max_wait"`
	Lifetime    time.Duration `yaml:"lifetime"`
}

// CORSConfig 跨域白名单
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// RateLimitConfig 全局限流配置
type RateLimitConfig struct {
	Window  time.Duration `yaml:"window"`
	Max     int           `yaml:"max"`
	Backend string        `yaml:"backend"` // memory | redis
}

// LogConfig 日志配置（对应 pkg/logging.Config）
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | text
}

// Config 应用配置（最终使用的配置）
type Config struct {
	Env            Environment
	Server         ServerConfig
	Database       DatabaseConfig
	Redis          RedisConfig
	Auth           AuthConfig
	CORS           CORSConfig
	RateLimit      RateLimitConfig
	Log            LogConfig
	ConfigFilePath string // 实际加载的配置文件路径
}

// yamlConfigInternal 内部包装，记录配置文件来源（不参与 YAML 序列化）
type yamlConfigInternal struct {
	YAMLConfig `yaml:",inline"`
	loadedFrom string
}
