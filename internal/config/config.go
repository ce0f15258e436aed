package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// defaultAllowedOrigins 前端开发服务器地址
var defaultAllowedOrigins = []string{
	"http://localhost:3000",
	"https://localhost:3000",
	"http://127.0.0.1:3000",
	"https://127.0.0.1:3000",
}

// Load 加载配置
//  1. 加载 .env.{env} / .env（dev/test）
//  2. 加载 {env}.yaml
//  3. 环境变量覆盖
//
// Load 不做校验，启动前需调用 Validate。
func Load() *Config {
	env := parseEnv(getEnv("APP_ENV", "dev"))
	loadEnvFiles(env)
	// .env 中可能声明了 APP_ENV
	env = parseEnv(getEnv("APP_ENV", string(env)))

	y := loadYAMLConfig(env)

	cfg := &Config{
		Env:            env,
		Server:         y.Server,
		Database:       y.Database,
		Redis:          y.Redis,
		Auth:           y.Auth,
		CORS:           y.CORS,
		RateLimit:      y.RateLimit,
		Log:            y.Log,
		ConfigFilePath: y.loadedFrom,
	}
	cfg.applyEnv()
	return cfg
}

// Default 只含代码默认值的配置（不读文件和环境变量）
func Default() *Config {
	y := defaults()
	return &Config{
		Env:       EnvDevelopment,
		Server:    y.Server,
		Database:  y.Database,
		Redis:     y.Redis,
		Auth:      y.Auth,
		CORS:      y.CORS,
		RateLimit: y.RateLimit,
		Log:       y.Log,
	}
}

// defaults 代码默认值
func defaults() YAMLConfig {
	return YAMLConfig{
		Server: ServerConfig{
			Port:      "5001",
			BodyLimit: 10 << 20,
			TLS: TLSConfig{
				CertDir: "certs",
			},
		},
		Database: DatabaseConfig{
			Driver: DriverMongoDB,
			Name:   "customer_payments",
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
			LoginThrottle: ThrottleConfig{
				FreeRetries: 5,
				MinWait:     5 * time.Minute,
				MaxWait:     time.Hour,
				Lifetime:    24 * time.Hour,
			},
		},
		CORS: CORSConfig{
			AllowedOrigins: append([]string(nil), defaultAllowedOrigins...),
		},
		RateLimit: RateLimitConfig{
			Window:  15 * time.Minute,
			Max:     100,
			Backend: BackendMemory,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// loadYAMLConfig 加载 YAML 配置文件
// 加载顺序：默认值 → {env}.yaml
func loadYAMLConfig(env Environment) *yamlConfigInternal {
	cfg := &yamlConfigInternal{YAMLConfig: defaults()}

	path := findConfigFile(env)
	if path == "" {
		return cfg
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[config] read %s failed: %v", path, err)
		return cfg
	}
	if err := yaml.Unmarshal(data, &cfg.YAMLConfig); err != nil {
		log.Printf("[config] parse %s failed: %v", path, err)
		return cfg
	}
	cfg.loadedFrom = path
	return cfg
}

// applyEnv 环境变量覆盖（密钥只在这里读取）
func (c *Config) applyEnv() {
	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.AdminSignupSecret = os.Getenv("ADMIN_SIGNUP_SECRET")
	c.Database.URI = firstEnv("MONGO_URI", "ATLAS_URL")
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")

	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		c.Database.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		c.Database.Name = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.CORS.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("STATIC_DIR"); v != "" {
		c.Server.StaticDir = v
	}
	if v := os.Getenv("DEV_PROXY"); v != "" {
		c.Server.DevProxy = v
	}
	if v, ok := envBool("DEBUG_ROUTES"); ok {
		c.Server.DebugRoutes = v
	}
	if v, ok := envBool("TLS_ENABLED"); ok {
		c.Server.TLS.Enabled = v
	}
	if v := os.Getenv("TLS_CERT_FILE"); v != "" {
		c.Server.TLS.CertFile = v
	}
	if v := os.Getenv("TLS_KEY_FILE"); v != "" {
		c.Server.TLS.KeyFile = v
	}
	if v := os.Getenv("RATE_LIMIT_BACKEND"); v != "" {
		c.RateLimit.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
}

// Validate 启动前校验，缺少密钥或配置矛盾时返回错误
func (c *Config) Validate() error {
	var errs []error

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Auth.AdminSignupSecret == "" {
		errs = append(errs, errors.New("ADMIN_SIGNUP_SECRET is required"))
	}

	switch c.Database.Driver {
	case DriverMongoDB:
		if c.Database.URI == "" {
			errs = append(errs, errors.New("MONGO_URI (or ATLAS_URL) is required for the mongodb driver"))
		} else if !isMongoURI(c.Database.URI) {
			errs = append(errs, errors.New("MONGO_URI must start with mongodb:// or mongodb+srv://"))
		}
	case DriverMemory:
		if c.Env == EnvProduction {
			errs = append(errs, errors.New("memory database driver is not allowed in prod"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.Database.Driver))
	}

	switch c.RateLimit.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("rate_limit.backend=redis requires redis.url"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown rate limit backend %q", c.RateLimit.Backend))
	}
	if c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rate_limit.max and rate_limit.window must be positive"))
	}

	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}

	tls := c.Server.TLS
	if tls.Enabled && !tls.AutoGenerate && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("TLS enabled but cert_file/key_file not set (or enable auto_generate)"))
	}

	return errors.Join(errs...)
}

// IsProduction 是否为生产环境
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// DebugRoutesEnabled 调试路由仅在非生产环境且显式开启时注册
func (c *Config) DebugRoutesEnabled() bool {
	return c.Server.DebugRoutes && !c.IsProduction()
}

// String 返回配置摘要（隐藏密码，不输出密钥）
func (c *Config) String() string {
	return fmt.Sprintf("Config{Env: %s, Port: %s, TLS: %t, Driver: %s, DB: %s/%s, Redis: %s, RateLimit: %d/%s(%s)}",
		c.Env, c.Server.Port, c.Server.TLS.Enabled, c.Database.Driver,
		maskPassword(c.Database.URI), c.Database.Name, maskPassword(c.Redis.URL),
		c.RateLimit.Max, c.RateLimit.Window, c.RateLimit.Backend)
}
