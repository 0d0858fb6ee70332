package cli

import (
	"context"
	"fmt"

	"chatmemory/internal/memory"

	"github.com/spf13/cobra"
)

func newSettingsCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "settings <agent-id>",
		Short: "显示 Agent 生效的记忆配置（含创建者设置与默认值）",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withService(cmd, func(ctx context.Context, svc *memory.Service) error {
				s := svc.ResolveSettings(ctx, args[0])
				w := cmd.OutOrStdout()
				if ok, err := encode(w, o.format, s); ok {
					return err
				}
				fmt.Fprintf(w, "memory_enabled:        %t\n", s.Enabled)
				fmt.Fprintf(w, "memory_model:          %s\n", s.Model)
				fmt.Fprintf(w, "memory_trigger_rounds: %d\n", s.TriggerRounds)
				fmt.Fprintf(w, "max_memory_entries:    %d\n", s.MaxEntries)
				fmt.Fprintf(w, "summary_style:         %s\n", s.SummaryStyle)
				if s.SystemPrompt != "" {
					fmt.Fprintf(w, "memory_system_prompt:  %s\n", truncate(s.SystemPrompt, 60))
				}
				return nil
			})
		},
	}
}

// scopeFlags --conversation / --agent 二选一
type scopeFlags struct {
	conversation string
	agent        string
}

func (s *scopeFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.conversation, "conversation", "", "会话 ID")
	cmd.Flags().StringVar(&s.agent, "agent", "", "Agent ID")
	cmd.MarkFlagsMutuallyExclusive("conversation", "agent")
	cmd.MarkFlagsOneRequired("conversation", "agent")
}

func newListCmd(o *rootOptions) *cobra.Command {
	var scope scopeFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "列出会话或 Agent 的记忆（按重要度、创建时间倒序）",
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withService(cmd, func(ctx context.Context, svc *memory.Service) error {
				var (
					list *memory.MemoryList
					err  error
				)
				if scope.conversation != "" {
					list, err = svc.ListConversationMemories(ctx, scope.conversation)
				} else {
					list, err = svc.ListAgentMemories(ctx, scope.agent)
				}
				if err != nil {
					return err
				}
				view := toListView(list)
				if ok, err := encode(cmd.OutOrStdout(), o.format, view); ok {
					return err
				}
				printList(cmd.OutOrStdout(), view)
				return nil
			})
		},
	}
	scope.bind(cmd)
	return cmd
}

func newStatsCmd(o *rootOptions) *cobra.Command {
	var scope scopeFlags
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "统计记忆条数、节省的 Token 与平均重要度",
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withService(cmd, func(ctx context.Context, svc *memory.Service) error {
				stats, err := svc.Stats(ctx, memory.StatsFilter{ConversationID: scope.conversation, AgentID: scope.agent})
				if err != nil {
					return err
				}
				if ok, err := encode(cmd.OutOrStdout(), o.format, stats); ok {
					return err
				}
				printStats(cmd.OutOrStdout(), stats)
				return nil
			})
		},
	}
	scope.bind(cmd)
	return cmd
}

func newContextCmd(o *rootOptions) *cobra.Command {
	var agentID string
	cmd := &cobra.Command{
		Use:   "context <conversation-id>",
		Short: "预览注入提示词的记忆上下文块",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withService(cmd, func(ctx context.Context, svc *memory.Service) error {
				block := svc.GetMemoryContext(ctx, args[0], agentID)
				if ok, err := encode(cmd.OutOrStdout(), o.format, map[string]string{"context": block}); ok {
					return err
				}
				if block == "" {
					fmt.Fprintln(cmd.OutOrStdout(), "(empty)")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), block)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "Agent ID")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}

func newProcessCmd(o *rootOptions) *cobra.Command {
	var agentID string
	cmd := &cobra.Command{
		Use:   "process <conversation-id>",
		Short: "判定会话是否满足摘要条件，满足则立即生成记忆",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withService(cmd, func(ctx context.Context, svc *memory.Service) error {
				record := svc.ProcessTurn(ctx, args[0], agentID)
				if record == nil {
					if ok, err := encode(cmd.OutOrStdout(), o.format, map[string]bool{"generated": false}); ok {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "No memory generated.")
					return nil
				}
				view := toView(*record)
				if ok, err := encode(cmd.OutOrStdout(), o.format, view); ok {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Generated memory %d for range %s\n", view.ID, view.Range)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "Agent ID")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}

func newCleanupExpiredCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup-expired",
		Short: "删除所有已过期的记忆",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withService(cmd, func(ctx context.Context, svc *memory.Service) error {
				deleted, err := svc.CleanupExpired(ctx)
				if err != nil {
					return err
				}
				if ok, err := encode(cmd.OutOrStdout(), o.format, map[string]int64{"deleted": deleted}); ok {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d expired memories.\n", deleted)
				return nil
			})
		},
	}
}

func newEnforceCapCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "enforce-cap <agent-id>",
		Short: "按创建者设置的上限淘汰 Agent 最旧的记忆",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withService(cmd, func(ctx context.Context, svc *memory.Service) error {
				deleted, err := svc.EnforceRetention(ctx, args[0])
				if err != nil {
					return err
				}
				if ok, err := encode(cmd.OutOrStdout(), o.format, map[string]int{"deleted": deleted}); ok {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d memories beyond the retention cap.\n", deleted)
				return nil
			})
		},
	}
}

