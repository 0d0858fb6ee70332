package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// MemoryType 记忆类型
type MemoryType string

const (
	TypeSummary   MemoryType = "summary"   // 摘要流水线产出
	TypeContext   MemoryType = "context"   // 预留
	TypeImportant MemoryType = "important" // 预留
)

// Valid 是否为合法记忆类型
func (t MemoryType) Valid() bool {
	switch t {
	case TypeSummary, TypeContext, TypeImportant:
		return true
	}
	return false
}

// Record 会话记忆记录
//
// 同一会话的 SourceMessageRange 首尾相接且互不重叠；RangeStart 冗余保存区间起点，
// 与 ConversationID 组成唯一索引，保证同一检查点只会被写入一次。
type Record struct {
	ID                 uint           `json:"id" gorm:"primaryKey;autoIncrement"`
	ConversationID     string         `json:"conversation_id" gorm:"size:36;not null;index;uniqueIndex:idx_conversation_range_start"`
	AgentID            *string        `json:"agent_id" gorm:"size:36;index"`
	MemoryType         MemoryType     `json:"memory_type" gorm:"size:20;not null;default:summary"`
	Content            datatypes.JSON `json:"content" gorm:"not null"`
	SourceMessageRange string         `json:"source_message_range" gorm:"size:50;not null"`
	RangeStart         int            `json:"-" gorm:"not null;uniqueIndex:idx_conversation_range_start"`
	ImportanceScore    float64        `json:"importance_score" gorm:"not null;index"`
	TokensSaved        int            `json:"tokens_saved" gorm:"not null;default:0"`
	CreatedAt          time.Time      `json:"created_at" gorm:"autoCreateTime;index"`
	ExpiresAt          *time.Time     `json:"expires_at,omitempty" gorm:"index"`
}

// TableName 指定表名
func (Record) TableName() string { return "conversation_memories" }

// AgentIDValue 返回 AgentID，未设置时为空串
func (r *Record) AgentIDValue() string {
	if r.AgentID == nil {
		return ""
	}
	return *r.AgentID
}

// DecodedContent 解析结构化内容
func (r *Record) DecodedContent() (Content, error) {
	return DecodeContent(r.Content)
}

// SummaryText 返回摘要文本；内容无法解析时回退为原始内容
func (r *Record) SummaryText() string {
	content, err := r.DecodedContent()
	if err != nil || content.Summary == "" {
		return string(r.Content)
	}
	return content.Summary
}

// CoveredEnd 记录覆盖到的最后一个消息序号，区间无法解析时为 0
func (r *Record) CoveredEnd() int {
	rng, err := ParseRange(r.SourceMessageRange)
	if err != nil {
		return 0
	}
	return rng.End
}

// Content 记忆的结构化内容
type Content struct {
	Summary         string   `json:"summary" yaml:"summary"`
	ImportantTopics []string `json:"importantTopics" yaml:"important_topics"`
	KeyFacts        []string `json:"keyFacts" yaml:"key_facts"`
	Preferences     []string `json:"preferences" yaml:"preferences"`
	Context         string   `json:"context" yaml:"context"`
}

// normalize 将 nil 列表替换为空列表，序列化结果始终为 []
func (c Content) normalize() Content {
	if c.ImportantTopics == nil {
		c.ImportantTopics = []string{}
	}
	if c.KeyFacts == nil {
		c.KeyFacts = []string{}
	}
	if c.Preferences == nil {
		c.Preferences = []string{}
	}
	return c
}

// RawContent 模型输出无法解析时的兜底内容
func RawContent(raw string) Content {
	return Content{Summary: raw, Context: raw}.normalize()
}

// EncodeContent 序列化结构化内容
func EncodeContent(c Content) (datatypes.JSON, error) {
	data, err := json.Marshal(c.normalize())
	if err != nil {
		return nil, fmt.Errorf("序列化记忆内容失败: %w", err)
	}
	return datatypes.JSON(data), nil
}

// DecodeContent 反序列化结构化内容
func DecodeContent(data []byte) (Content, error) {
	var c Content
	if len(data) == 0 {
		return c, errors.New("记忆内容为空")
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("解析记忆内容失败: %w", err)
	}
	return c.normalize(), nil
}

// MessageRange 闭区间 [Start, End]，按用户/助手消息序号计数（从 1 开始）
type MessageRange struct {
	Start int
	End   int
}

// String 编码为 "start-end"
func (r MessageRange) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// ParseRange 解析 "start-end"
func ParseRange(s string) (MessageRange, error) {
	startStr, endStr, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return MessageRange{}, fmt.Errorf("无效的消息区间: %q", s)
	}
	start, err := strconv.Atoi(strings.TrimSpace(startStr))
	if err != nil {
		return MessageRange{}, fmt.Errorf("无效的区间起点: %q", s)
	}
	end, err := strconv.Atoi(strings.TrimSpace(endStr))
	if err != nil {
		return MessageRange{}, fmt.Errorf("无效的区间终点: %q", s)
	}
	if start < 1 || end < start {
		return MessageRange{}, fmt.Errorf("无效的消息区间: %q", s)
	}
	return MessageRange{Start: start, End: end}, nil
}
