package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"
)

// DefaultConfigPath 可执行文件旁的 config/config.yaml
func DefaultConfigPath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("获取可执行文件路径失败: %w", err)
	}
	return filepath.Join(filepath.Dir(exe), "config", "config.yaml"), nil
}

// WriteFile 将配置写为 yaml
func WriteFile(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("cfg 不能为空")
	}
	if path == "" {
		return fmt.Errorf("path 不能为空")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	payload := map[string]any{
		"app": map[string]any{
			"name":      cfg.App.Name,
			"version":   cfg.App.Version,
			"log_level": cfg.App.LogLevel,
			"log_path":  cfg.App.LogPath,
		},
		"storage": map[string]any{
			"db_path": cfg.Storage.DBPath,
		},
		"engine": map[string]any{
			"level_policy":      cfg.Engine.LevelPolicy,
			"level_up_flash_ms": cfg.Engine.LevelUpFlashMs,
			"timezone":          cfg.Engine.Timezone,
			"default_user":      cfg.Engine.DefaultUser,
		},
		"gateway": map[string]any{
			"watch":             cfg.Gateway.Watch,
			"debounce_ms":       cfg.Gateway.DebounceMs,
			"subscriber_buffer": cfg.Gateway.SubscriberBuffer,
		},
		"server": map[string]any{
			"listen_addr": cfg.Server.ListenAddr,
		},
	}

	b, err := yaml.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}
	return nil
}
