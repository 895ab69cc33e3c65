package bootstrap

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/yuqie6/WrestleQuest/internal/eventbus"
	"github.com/yuqie6/WrestleQuest/internal/gateway"
	"github.com/yuqie6/WrestleQuest/internal/observability"
	"github.com/yuqie6/WrestleQuest/internal/pkg/config"
	"github.com/yuqie6/WrestleQuest/internal/progression"
	"github.com/yuqie6/WrestleQuest/internal/repository"
	"github.com/yuqie6/WrestleQuest/internal/service"
)

// Core 持有跨二进制共享的核心依赖
type Core struct {
	Cfg       *config.Config
	DB        *repository.Database
	LogCloser io.Closer
	Hub       *eventbus.Hub
	Metrics   *observability.Metrics
	Gateway   *gateway.Gateway
	StartedAt time.Time

	Repos struct {
		Progress    *repository.ProgressRepository
		ActivityLog *repository.ActivityLogRepository
	}

	Services struct {
		Progress *service.ProgressService
	}
}

// NewCore 加载配置、初始化日志后构建核心依赖
func NewCore(cfgPath string) (*Core, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logCloser, err := config.SetupLogger(config.LoggerOptions{
		Level:     cfg.App.LogLevel,
		Path:      cfg.App.LogPath,
		Component: filepath.Base(os.Args[0]),
	})
	if err != nil {
		return nil, err
	}

	c, err := NewCoreWithConfig(cfg)
	if err != nil {
		if logCloser != nil {
			_ = logCloser.Close()
		}
		return nil, err
	}
	c.LogCloser = logCloser
	return c, nil
}

// NewCoreWithConfig 按已加载的配置构建核心依赖（不改动全局日志）
func NewCoreWithConfig(cfg *config.Config) (*Core, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cfg 不能为空")
	}
	loc, err := cfg.Engine.Location()
	if err != nil {
		return nil, err
	}

	db, err := repository.NewDatabase(cfg.Storage.DBPath)
	if err != nil {
		return nil, err
	}

	c := &Core{
		Cfg:       cfg,
		DB:        db,
		Hub:       eventbus.NewHub(),
		Metrics:   observability.NewMetrics(),
		StartedAt: time.Now(),
	}

	// Repos
	c.Repos.Progress = repository.NewProgressRepository(db.DB)
	c.Repos.ActivityLog = repository.NewActivityLogRepository(db.DB)

	// Gateway
	c.Gateway = gateway.New(c.Repos.Progress, c.Hub, gateway.Options{
		SubscriberBuffer: cfg.Gateway.SubscriberBuffer,
	})

	// Services
	c.Services.Progress = service.NewProgressService(c.Gateway, c.Repos.ActivityLog, service.Options{
		Engine:       progression.NewEngine(progression.ParseLevelPolicy(cfg.Engine.LevelPolicy), loc),
		LevelUpFlash: cfg.Engine.LevelUpFlash(),
		Metrics:      c.Metrics,
	})

	return c, nil
}

// DefaultUser 未指定用户时使用的 userID
func (c *Core) DefaultUser() string {
	if c == nil || c.Cfg == nil || c.Cfg.Engine.DefaultUser == "" {
		return "local"
	}
	return c.Cfg.Engine.DefaultUser
}

// Close 关闭核心依赖资源
func (c *Core) Close() error {
	if c == nil {
		return nil
	}
	if c.Services.Progress != nil {
		c.Services.Progress.Close()
	}
	var dbErr error
	if c.DB != nil {
		dbErr = c.DB.Close()
	}
	if c.LogCloser != nil {
		_ = c.LogCloser.Close()
	}
	return dbErr
}
