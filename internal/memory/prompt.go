package memory

import (
	"strings"

	"chatmemory/internal/chat"
)

// Locale 提示词与角色标签语言
type Locale string

const (
	LocaleZH Locale = "zh-CN"
	LocaleEN Locale = "en-US"
)

// ParseLocale 未知语言回退为中文
func ParseLocale(s string) Locale {
	if strings.EqualFold(s, string(LocaleEN)) || strings.EqualFold(s, "en") {
		return LocaleEN
	}
	return LocaleZH
}

type promptText struct {
	userLabel      string
	assistantLabel string
	contextHeading string
	schema         string
	styles         map[SummaryStyle]string
	userPrefix     string
	userSuffix     string
}

var prompts = map[Locale]promptText{
	LocaleZH: {
		userLabel:      "用户",
		assistantLabel: "助手",
		contextHeading: "## 历史对话记忆",
		schema: `请严格按以下 JSON 结构输出：
{
  "summary": "对话摘要",
  "importantTopics": ["重要话题"],
  "keyFacts": ["关键事实"],
  "preferences": ["用户偏好"],
  "context": "后续对话需要的上下文"
}`,
		styles: map[SummaryStyle]string{
			StyleBrief:      "你是一个对话记忆助手。请用简洁的语言概括以下对话的要点，摘要控制在两三句话以内。",
			StyleDetailed:   "你是一个对话记忆助手。请详细总结以下对话，保留重要话题、关键事实、用户偏好以及后续对话需要的上下文。",
			StyleStructured: "你是一个对话记忆助手。请将以下对话整理为结构化记忆，各字段使用条目式短语，避免冗余描述。",
		},
		userPrefix: "以下是需要总结的对话：\n\n",
		userSuffix: "\n\n请只返回 JSON，不要包含其他内容。",
	},
	LocaleEN: {
		userLabel:      "User",
		assistantLabel: "Assistant",
		contextHeading: "## Conversation memory",
		schema: `Respond strictly with this JSON structure:
{
  "summary": "summary of the conversation",
  "importantTopics": ["important topic"],
  "keyFacts": ["key fact"],
  "preferences": ["user preference"],
  "context": "context needed for future turns"
}`,
		styles: map[SummaryStyle]string{
			StyleBrief:      "You are a conversation memory assistant. Summarize the key points of the following conversation in two or three sentences.",
			StyleDetailed:   "You are a conversation memory assistant. Summarize the following conversation in detail, keeping important topics, key facts, user preferences and the context needed for future turns.",
			StyleStructured: "You are a conversation memory assistant. Organize the following conversation into structured memory, using short bullet-style phrases in every field.",
		},
		userPrefix: "Conversation to summarize:\n\n",
		userSuffix: "\n\nReturn only the JSON document, nothing else.",
	},
}

func textFor(locale Locale) promptText {
	if p, ok := prompts[locale]; ok {
		return p
	}
	return prompts[LocaleZH]
}

// DefaultSystemPrompt 按摘要风格生成默认系统提示词
func DefaultSystemPrompt(style SummaryStyle, locale Locale) string {
	p := textFor(locale)
	instruction, ok := p.styles[style]
	if !ok {
		instruction = p.styles[DefaultSummaryStyle]
	}
	return instruction + "\n\n" + p.schema
}

// SystemPrompt 自定义提示词优先
func SystemPrompt(s Settings, locale Locale) string {
	if strings.TrimSpace(s.SystemPrompt) != "" {
		return s.SystemPrompt
	}
	return DefaultSystemPrompt(s.SummaryStyle, locale)
}

// RoleLabel 本地化角色标签
func RoleLabel(role string, locale Locale) string {
	p := textFor(locale)
	if role == chat.RoleUser {
		return p.userLabel
	}
	return p.assistantLabel
}

// TranscriptLines 每条消息一行，带角色标签
func TranscriptLines(turns []chat.Turn, locale Locale) []string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, RoleLabel(t.Role, locale)+": "+t.Content)
	}
	return lines
}

// UserPrompt 拼接对话文本与输出要求
func UserPrompt(lines []string, locale Locale) string {
	p := textFor(locale)
	return p.userPrefix + strings.Join(lines, "\n") + p.userSuffix
}

// ContextHeading 记忆上下文块标题
func ContextHeading(locale Locale) string {
	return textFor(locale).contextHeading
}
