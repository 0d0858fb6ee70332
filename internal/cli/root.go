// Package cli 实现 memctl 维护命令
package cli

import (
	"context"
	"fmt"

	"chatmemory/internal/app"
	"chatmemory/internal/config"
	"chatmemory/internal/logger"
	"chatmemory/internal/memory"

	"github.com/spf13/cobra"
)

// Opener 打开记忆引擎，返回释放函数
type Opener func(ctx context.Context, env, configPath string) (*memory.Service, func(), error)

type rootOptions struct {
	env        string
	configPath string
	format     string
	open       Opener
}

// NewRootCmd 创建根命令；open 为 nil 时按配置初始化数据库与引擎
func NewRootCmd(version string, open Opener) *cobra.Command {
	opts := &rootOptions{open: open}
	if opts.open == nil {
		opts.open = OpenFromConfig
	}

	root := &cobra.Command{
		Use:   "memctl",
		Short: "会话记忆维护工具",
		Long: `memctl 直接连接记忆库，用于查看 Agent 的记忆配置、浏览与统计记忆、
预览注入提示词的上下文块，以及执行过期清理和保留上限。`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch opts.format {
			case formatText, formatJSON, formatYAML:
				return nil
			}
			return fmt.Errorf("不支持的输出格式: %s（可选 text、json、yaml）", opts.format)
		},
	}

	root.PersistentFlags().StringVar(&opts.env, "env", "dev", "配置环境名（config/<env>.yaml）")
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "配置文件路径，优先于 --env")
	root.PersistentFlags().StringVarP(&opts.format, "format", "o", formatText, "输出格式: text, json, yaml")

	root.AddCommand(newSettingsCmd(opts))
	root.AddCommand(newListCmd(opts))
	root.AddCommand(newStatsCmd(opts))
	root.AddCommand(newContextCmd(opts))
	root.AddCommand(newProcessCmd(opts))
	root.AddCommand(newCleanupExpiredCmd(opts))
	root.AddCommand(newEnforceCapCmd(opts))

	return root
}

// OpenFromConfig 读取配置并初始化引擎；日志输出到 stderr，不干扰命令输出
func OpenFromConfig(ctx context.Context, env, configPath string) (*memory.Service, func(), error) {
	cfg, err := config.Load(env, configPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.Log.Level, "console", "stderr")
	if err != nil {
		return nil, nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	application, err := app.New(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return application.Memory, func() {
		application.Close()
		_ = log.Sync()
	}, nil
}

// withService 打开引擎并在命令结束后释放
func (o *rootOptions) withService(cmd *cobra.Command, fn func(ctx context.Context, svc *memory.Service) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc, closeFn, err := o.open(ctx, o.env, o.configPath)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ctx, svc)
}
