package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀：QUEST_STORAGE_DB_PATH 覆盖 storage.db_path
const EnvPrefix = "QUEST"

// Config 应用配置
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Storage StorageConfig `mapstructure:"storage"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Gateway GatewayConfig `mapstructure:"gateway"`
	Server  ServerConfig  `mapstructure:"server"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name     string `mapstructure:"name"`
	Version  string `mapstructure:"version"`
	LogLevel string `mapstructure:"log_level"`
	LogPath  string `mapstructure:"log_path"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// EngineConfig 进度引擎配置
type EngineConfig struct {
	LevelPolicy    string `mapstructure:"level_policy"`
	LevelUpFlashMs int    `mapstructure:"level_up_flash_ms"`
	Timezone       string `mapstructure:"timezone"`
	DefaultUser    string `mapstructure:"default_user"`
}

// GatewayConfig 文档网关配置
type GatewayConfig struct {
	Watch            bool `mapstructure:"watch"`
	DebounceMs       int  `mapstructure:"debounce_ms"`
	SubscriberBuffer int  `mapstructure:"subscriber_buffer"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// LevelUpFlash 升级标记保持时长
func (c EngineConfig) LevelUpFlash() time.Duration {
	return time.Duration(c.LevelUpFlashMs) * time.Millisecond
}

// Location 日历日所用时区；空或 Local 表示本机时区
func (c EngineConfig) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("加载时区失败: %w", err)
	}
	return loc, nil
}

// Debounce 外部写入监听的去抖间隔
func (c GatewayConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// Load 加载配置文件
func Load(configPath string) (*Config, error) {
	loadDotEnv()

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			slog.Warn("配置文件未找到，使用默认配置")
		} else {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	} else {
		slog.Info("加载配置文件", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.Storage.DBPath = resolvePath(expandEnv(cfg.Storage.DBPath))
	if p := strings.TrimSpace(expandEnv(cfg.App.LogPath)); p != "" {
		cfg.App.LogPath = resolvePath(p)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default 返回仅含默认值的配置（init-config 使用）
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate 校验取值范围
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Storage.DBPath) == "" {
		return fmt.Errorf("storage.db_path 不能为空")
	}
	if c.Engine.LevelUpFlashMs < 0 {
		return fmt.Errorf("engine.level_up_flash_ms 不能为负数: %d", c.Engine.LevelUpFlashMs)
	}
	if c.Gateway.DebounceMs < 0 {
		return fmt.Errorf("gateway.debounce_ms 不能为负数: %d", c.Gateway.DebounceMs)
	}
	if c.Gateway.SubscriberBuffer < 1 {
		return fmt.Errorf("gateway.subscriber_buffer 至少为 1: %d", c.Gateway.SubscriberBuffer)
	}
	if _, err := c.Engine.Location(); err != nil {
		return err
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// App
	v.SetDefault("app.name", "wrestlequest")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_path", "")

	// Storage
	v.SetDefault("storage.db_path", "./data/quest.db")

	// Engine
	v.SetDefault("engine.level_policy", "recompute")
	v.SetDefault("engine.level_up_flash_ms", 500)
	v.SetDefault("engine.timezone", "Local")
	v.SetDefault("engine.default_user", "local")

	// Gateway
	v.SetDefault("gateway.watch", true)
	v.SetDefault("gateway.debounce_ms", 200)
	v.SetDefault("gateway.subscriber_buffer", 8)

	// Server
	v.SetDefault("server.listen_addr", "127.0.0.1:8420")
}

// loadDotEnv 读取工作目录下可选的 .env，已存在的环境变量优先
func loadDotEnv() {
	if _, err := os.Stat(".env"); err != nil {
		return
	}
	if err := godotenv.Load(); err != nil {
		slog.Warn("加载 .env 失败", "error", err)
		return
	}
	slog.Debug("已加载 .env")
}

// expandEnv 展开环境变量占位符 ${VAR}
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}
	return s
}

// resolvePath 相对路径按可执行文件目录解析
func resolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	exe, err := os.Executable()
	if err != nil {
		return path
	}
	return filepath.Join(filepath.Dir(exe), path)
}
