package worker

import (
	"context"

	"chatmemory/internal/config"
	"chatmemory/internal/logger"
	"chatmemory/internal/worker/handlers"
	"chatmemory/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type Server struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *zap.Logger
}

// RedisOpt 由配置构造 asynq 连接参数
func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

func NewServer(cfg config.RedisConfig, engine handlers.MemoryMaintainer, log *zap.Logger) *Server {
	log = logger.OrNop(log)
	srv := asynq.NewServer(
		RedisOpt(cfg),
		asynq.Config{
			Concurrency: 10, // 并发 worker 数
			Queues: map[string]int{
				tasks.QueueMemory:      6, // 摘要任务优先
				tasks.QueueMaintenance: 3,
				"default":              1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Error("任务执行失败",
					zap.String("type", task.Type()),
					zap.Error(err),
				)
			}),
		},
	)

	return &Server{
		server: srv,
		mux:    NewMux(engine, log),
		logger: log,
	}
}

// NewMux 注册记忆相关任务处理器
func NewMux(engine handlers.MemoryMaintainer, log *zap.Logger) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	memoryHandler := handlers.NewMemoryHandler(engine, log)
	mux.HandleFunc(tasks.TypeCleanupExpired, memoryHandler.HandleCleanupExpired)
	mux.HandleFunc(tasks.TypeEnforceRetention, memoryHandler.HandleEnforceRetention)
	mux.HandleFunc(tasks.TypeProcessTurn, memoryHandler.HandleProcessTurn)
	return mux
}

// Run 启动 Worker 服务器
func (s *Server) Run() error {
	s.logger.Info("Worker 服务器启动中...")
	return s.server.Run(s.mux)
}

// Start 非阻塞启动
func (s *Server) Start() error {
	s.logger.Info("Worker 服务器启动中 (后台)...")
	return s.server.Start(s.mux)
}

// Shutdown 停止 Worker 服务器
func (s *Server) Shutdown() {
	s.logger.Info("Worker 服务器停止中...")
	s.server.Shutdown()
}
