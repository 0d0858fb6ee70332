package worker

import (
	"fmt"
	"time"

	"chatmemory/internal/config"
	"chatmemory/internal/logger"
	"chatmemory/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// DefaultCleanupCron 未配置时的过期清理周期
const DefaultCleanupCron = "@every 1h"

// Scheduler 周期性投递过期记忆清理任务
type Scheduler struct {
	scheduler *asynq.Scheduler
	cron      string
	logger    *zap.Logger
}

// NewScheduler 创建调度器；cfg.Cron 为空时使用 DefaultCleanupCron
func NewScheduler(redisCfg config.RedisConfig, cfg config.CleanupConfig, log *zap.Logger) *Scheduler {
	log = logger.OrNop(log)
	cron := cfg.Cron
	if cron == "" {
		cron = DefaultCleanupCron
	}
	s := asynq.NewScheduler(RedisOpt(redisCfg), &asynq.SchedulerOpts{
		Location: time.UTC,
		PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
			if err != nil {
				log.Warn("投递定时任务失败", zap.Error(err))
				return
			}
			log.Debug("定时任务已投递", zap.String("type", info.Type), zap.String("id", info.ID))
		},
	})
	return &Scheduler{scheduler: s, cron: cron, logger: log}
}

// Start 注册清理任务并在后台运行
func (s *Scheduler) Start() error {
	task := asynq.NewTask(tasks.TypeCleanupExpired, nil)
	entryID, err := s.scheduler.Register(s.cron, task,
		asynq.Queue(tasks.QueueMaintenance),
		asynq.MaxRetry(1),
		asynq.Unique(10*time.Minute),
	)
	if err != nil {
		return fmt.Errorf("注册过期清理任务失败: %w", err)
	}
	s.logger.Info("过期记忆清理已调度", zap.String("cron", s.cron), zap.String("entry_id", entryID))
	return s.scheduler.Start()
}

// Shutdown 停止调度
func (s *Scheduler) Shutdown() {
	s.scheduler.Shutdown()
}
