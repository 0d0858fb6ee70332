package memory

import (
	"encoding/json"
	"strings"
)

// RepairJSON 移除 Markdown 代码块标记 (```json ... ```) 与首尾空白
func RepairJSON(input string) string {
	cleaned := strings.TrimSpace(input)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}

	lines := strings.Split(cleaned, "\n")
	if len(lines) < 2 {
		return strings.Trim(cleaned, "`")
	}
	lines = lines[1:]
	if last := strings.TrimSpace(lines[len(lines)-1]); strings.HasPrefix(last, "```") {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// extractObject 截取第一个 "{" 到最后一个 "}" 之间的内容
func extractObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// ParseSummary 解析模型输出为结构化内容
// 返回 false 表示输出不符合结构，此时内容为原文包装（summary 与 context 均为原文，列表为空）
func ParseSummary(raw string) (Content, bool) {
	cleaned := RepairJSON(raw)
	candidates := []string{cleaned}
	if obj, ok := extractObject(cleaned); ok && obj != cleaned {
		candidates = append(candidates, obj)
	}

	for _, candidate := range candidates {
		if !strings.HasPrefix(candidate, "{") {
			continue
		}
		var c Content
		if err := json.Unmarshal([]byte(candidate), &c); err != nil {
			continue
		}
		if c.isEmpty() {
			continue
		}
		return c.normalize(), true
	}
	return RawContent(raw), false
}

// isEmpty 五个字段均未填写
func (c Content) isEmpty() bool {
	return c.Summary == "" && c.Context == "" &&
		len(c.ImportantTopics) == 0 && len(c.KeyFacts) == 0 && len(c.Preferences) == 0
}
