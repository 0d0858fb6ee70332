// Package app 组装记忆引擎运行所需的全部组件，供 HTTP 服务与命令行工具共用
package app

import (
	"fmt"

	"chatmemory/internal/ai"
	"chatmemory/internal/chat"
	"chatmemory/internal/config"
	"chatmemory/internal/infra"
	"chatmemory/internal/logger"
	"chatmemory/internal/memory"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App 已初始化的组件
type App struct {
	Config *config.Config
	DB     *gorm.DB
	Redis  redis.UniversalClient // 未启用时为 nil
	Chats  *chat.Repository
	Store  *memory.Store
	Models *ai.ClientFactory
	Memory *memory.Service
	logger *zap.Logger
}

// New 初始化数据库、Redis（可选）、模型工厂与记忆引擎
func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	log = logger.OrNop(log)

	db, err := infra.InitDatabase(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("初始化数据库失败: %w", err)
	}

	a := &App{Config: cfg, DB: db, logger: log}

	if cfg.Database.AutoMigrate {
		if err := infra.AutoMigrate(db, Models()...); err != nil {
			a.Close()
			return nil, err
		}
	}

	if cfg.Redis.Enabled {
		rdb, err := infra.InitRedis(&cfg.Redis)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Redis = rdb
	}

	a.Chats = chat.NewRepository(db)
	a.Store = memory.NewStore(db)
	a.Models = ai.NewClientFactory(cfg.AI, log)

	opts, err := memory.BuildOptions(cfg.Memory, a.Chats, a.Redis)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Memory = memory.NewService(a.Chats, a.Store, a.Models, opts, log)

	log.Info("记忆引擎已初始化",
		zap.String("locale", string(opts.Locale)),
		zap.String("default_model", opts.DefaultModel),
		zap.String("lock_mode", cfg.Memory.Lock.Mode),
		zap.Int("retention_slack_factor", opts.RetentionSlackFactor),
	)
	return a, nil
}

// Models 需要迁移的全部表
func Models() []interface{} {
	return append(chat.Models(), &memory.Record{})
}

// Close 释放连接，可重复调用
func (a *App) Close() {
	if a.Models != nil {
		_ = a.Models.Close()
	}
	if a.Redis != nil {
		if err := infra.CloseRedis(); err != nil {
			a.logger.Warn("Redis 关闭异常", zap.Error(err))
		}
		a.Redis = nil
	}
	if a.DB != nil {
		if err := infra.CloseDatabase(); err != nil {
			a.logger.Warn("数据库关闭异常", zap.Error(err))
		}
		a.DB = nil
	}
}
