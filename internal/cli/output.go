package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"chatmemory/internal/memory"

	"gopkg.in/yaml.v3"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

// memoryView 命令输出中的记忆，内容已解码
type memoryView struct {
	ID              uint           `json:"id" yaml:"id"`
	ConversationID  string         `json:"conversation_id" yaml:"conversation_id"`
	AgentID         string         `json:"agent_id,omitempty" yaml:"agent_id,omitempty"`
	MemoryType      string         `json:"memory_type" yaml:"memory_type"`
	Range           string         `json:"source_message_range" yaml:"source_message_range"`
	ImportanceScore float64        `json:"importance_score" yaml:"importance_score"`
	TokensSaved     int            `json:"tokens_saved" yaml:"tokens_saved"`
	CreatedAt       time.Time      `json:"created_at" yaml:"created_at"`
	Content         memory.Content `json:"content" yaml:"content"`
}

type listView struct {
	Memories []memoryView `json:"memories" yaml:"memories"`
	Stats    memory.Stats `json:"stats" yaml:"stats"`
}

func toView(r memory.Record) memoryView {
	content, err := r.DecodedContent()
	if err != nil {
		content = memory.RawContent(string(r.Content))
	}
	return memoryView{
		ID:              r.ID,
		ConversationID:  r.ConversationID,
		AgentID:         r.AgentIDValue(),
		MemoryType:      string(r.MemoryType),
		Range:           r.SourceMessageRange,
		ImportanceScore: r.ImportanceScore,
		TokensSaved:     r.TokensSaved,
		CreatedAt:       r.CreatedAt,
		Content:         content,
	}
}

func toListView(list *memory.MemoryList) listView {
	views := make([]memoryView, 0, len(list.Memories))
	for _, r := range list.Memories {
		views = append(views, toView(r))
	}
	return listView{Memories: views, Stats: list.Stats}
}

// encode 以 json / yaml 输出；返回 false 表示需要调用方按文本输出
func encode(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return true, enc.Encode(v)
	}
	return false, nil
}

func printList(w io.Writer, view listView) {
	if len(view.Memories) == 0 {
		fmt.Fprintln(w, "No memories found.")
		return
	}
	fmt.Fprintf(w, "%-6s %-10s %-12s %-10s %-8s %s\n", "ID", "TYPE", "RANGE", "IMPORTANCE", "SAVED", "SUMMARY")
	fmt.Fprintln(w, strings.Repeat("-", 90))
	for _, m := range view.Memories {
		fmt.Fprintf(w, "%-6d %-10s %-12s %-10.2f %-8d %s\n",
			m.ID, m.MemoryType, m.Range, m.ImportanceScore, m.TokensSaved, truncate(m.Content.Summary, 60))
	}
	fmt.Fprintln(w)
	printStats(w, view.Stats)
}

func printStats(w io.Writer, s memory.Stats) {
	fmt.Fprintf(w, "total_memories:     %d\n", s.TotalMemories)
	fmt.Fprintf(w, "total_tokens_saved: %d\n", s.TotalTokensSaved)
	fmt.Fprintf(w, "avg_importance:     %.2f\n", s.AvgImportance)
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
