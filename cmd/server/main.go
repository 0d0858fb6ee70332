package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"chatmemory/api"
	"chatmemory/api/docs"
	"chatmemory/internal/app"
	"chatmemory/internal/config"
	"chatmemory/internal/infra/queue"
	"chatmemory/internal/logger"
	"chatmemory/internal/metrics"
	"chatmemory/internal/worker"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// version 构建时通过 -ldflags "-X main.version=..." 注入
var version = "dev"

func main() {
	// 0. 统一加载 .env，便于集中管理 APP_* 环境变量
	loadEnvFile()

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}

	// 1. 加载配置
	cfg, err := config.Load(env, os.Getenv("APP_CONFIG"))
	if err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("应用启动中...",
		zap.String("env", env),
		zap.String("mode", cfg.Server.Mode),
		zap.String("version", version),
	)
	metrics.RecordBuildInfo(version, runtime.Version())

	// 3. 初始化数据库、Redis 与记忆引擎
	application, err := app.New(cfg, logger.Get())
	if err != nil {
		logger.Fatal("初始化应用失败", zap.Error(err))
	}
	defer application.Close()

	// 4. 异步任务（需要 Redis）
	var (
		queueClient  queue.Client
		workerServer *worker.Server
		scheduler    *worker.Scheduler
	)
	if cfg.Redis.Enabled {
		queueClient = queue.NewClient(cfg.Redis)
		workerServer = worker.NewServer(cfg.Redis, application.Memory, logger.Get())
		if err := workerServer.Start(); err != nil {
			logger.Fatal("Worker 服务器启动失败", zap.Error(err))
		}
		if cfg.Memory.Cleanup.Enabled {
			scheduler = worker.NewScheduler(cfg.Redis, cfg.Memory.Cleanup, logger.Get())
			if err := scheduler.Start(); err != nil {
				logger.Fatal("定时任务启动失败", zap.Error(err))
			}
		}
	} else {
		logger.Info("Redis 未启用，异步任务与定时清理不可用")
	}

	// 5. 创建路由
	docs.SwaggerInfo.Host = fmt.Sprintf("localhost:%d", cfg.Server.Port)
	docs.SwaggerInfo.BasePath = "/"
	deps := api.Dependencies{DB: application.DB, Memory: application.Memory}
	if queueClient != nil {
		deps.Queue = queueClient
	}
	router := api.SetupRouter(cfg, deps)

	// 6. 创建 HTTP 服务器
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器启动", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP 服务器启动失败", zap.Error(err))
		}
	}()

	// 7. 优雅关闭
	gracefulShutdown(server, workerServer, scheduler, queueClient)
}

// loadEnvFile 依次尝试加载当前目录及上级目录的 .env 文件
func loadEnvFile() {
	if path := resolveEnvPath(); path != "" {
		if err := godotenv.Load(path); err != nil {
			fmt.Printf("加载环境变量文件 %s 失败: %v\n", path, err)
		} else {
			fmt.Printf("已加载环境变量文件: %s\n", path)
		}
	} else {
		fmt.Println("未找到 .env 文件，将仅使用系统环境变量和 config/* 配置")
	}
}

// resolveEnvPath 从当前工作目录向上查找 .env
func resolveEnvPath() string {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	dir := filepath.Clean(wd)
	for i := 0; i < 8; i++ {
		path := filepath.Join(dir, ".env")
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// gracefulShutdown 优雅关闭
func gracefulShutdown(server *http.Server, workerServer *worker.Server, scheduler *worker.Scheduler, queueClient queue.Client) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}
	if scheduler != nil {
		scheduler.Shutdown()
	}
	if workerServer != nil {
		workerServer.Shutdown()
	}
	if queueClient != nil {
		if err := queueClient.Close(); err != nil {
			logger.Error("任务队列关闭异常", zap.Error(err))
		}
	}

	logger.Info("服务器已安全关闭")
}
