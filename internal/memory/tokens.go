package memory

import (
	"math"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// charsPerTokenRatio 按字符差估算 Token 节省量的系数
// 这是粗略近似，不是分词器计数，不能作为计费依据
const charsPerTokenRatio = 0.75

// EstimateTokensSaved 估算摘要节省的 Token 数：max(0, round((原文字符数 - 摘要字符数) * 0.75))
func EstimateTokensSaved(originalChars, summaryChars int) int {
	saved := int(math.Round(float64(originalChars-summaryChars) * charsPerTokenRatio))
	if saved < 0 {
		return 0
	}
	return saved
}

// 重要度评分
const (
	baseImportance      = 0.5
	importanceStep      = 0.1
	maxImportance       = 1.0
	longSummaryMinChars = 100
)

// ScoreImportance 基础分 0.5，主题、事实、偏好非空及摘要超过 100 字符各加 0.1，上限 1.0
func ScoreImportance(c Content) float64 {
	score := baseImportance
	if len(c.ImportantTopics) > 0 {
		score += importanceStep
	}
	if len(c.KeyFacts) > 0 {
		score += importanceStep
	}
	if len(c.Preferences) > 0 {
		score += importanceStep
	}
	if utf8.RuneCountInString(c.Summary) > longSummaryMinChars {
		score += importanceStep
	}
	// 消除 0.1 累加的浮点误差
	score = math.Round(score*100) / 100
	return math.Min(score, maxImportance)
}

// TokenCounter 文本 Token 计数
type TokenCounter interface {
	Count(text string) int
}

// TiktokenCounter 基于 cl100k_base 编码的计数器
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter 加载编码表（首次使用会下载 BPE 文件）
func NewTiktokenCounter() (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, err
	}
	return &TiktokenCounter{enc: enc}, nil
}

// Count 实现 TokenCounter
func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// TranscriptBudget 限制发给摘要模型的对话文本长度，超出时从最早的行开始丢弃
// MaxTokens <= 0 或 Counter 为 nil 时不做限制；只影响提示词，不影响消息区间
type TranscriptBudget struct {
	MaxTokens int
	Counter   TokenCounter
}

// Fit 返回满足预算的行（保留最新的行）
func (b TranscriptBudget) Fit(lines []string) []string {
	if b.MaxTokens <= 0 || b.Counter == nil || len(lines) == 0 {
		return lines
	}
	total := 0
	start := len(lines)
	for i := len(lines) - 1; i >= 0; i-- {
		n := b.Counter.Count(lines[i]) + 1 // 换行
		if total+n > b.MaxTokens && start < len(lines) {
			break
		}
		total += n
		start = i
	}
	return lines[start:]
}
