package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chatmemory/internal/common"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 错误定义
var (
	ErrMemoryNotFound = errors.New("memory not found")
	// ErrRangeConflict 写入时会话检查点已被其他摘要推进
	ErrRangeConflict = errors.New("memory range conflict")
)

// Store 记忆记录存储
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore 创建存储；过期判断与 gorm 写入时间使用同一时钟
func NewStore(db *gorm.DB) *Store {
	now := db.NowFunc
	if now == nil {
		now = time.Now
	}
	return &Store{db: db, now: now}
}

// AutoMigrate 迁移记忆表
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&Record{})
}

// 列表默认排序：重要度优先，其次创建时间
func byImportance(db *gorm.DB) *gorm.DB {
	return db.Order("importance_score DESC").Order("created_at DESC").Order("id DESC")
}

// Create 写入记录，不校验检查点
func (s *Store) Create(ctx context.Context, record *Record) (uint, error) {
	s.prepare(record)
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		if isUniqueViolation(err) {
			return 0, ErrRangeConflict
		}
		return 0, fmt.Errorf("写入记忆失败: %w", err)
	}
	return record.ID, nil
}

// CreateNext 在同一事务内读取会话最新检查点并写入记录
// 检查点与 expectedCovered 不一致时返回 ErrRangeConflict，不写入任何数据
func (s *Store) CreateNext(ctx context.Context, record *Record, expectedCovered int) error {
	s.prepare(record)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		covered, err := latestCovered(tx, record.ConversationID)
		if err != nil {
			return err
		}
		if covered != expectedCovered {
			return ErrRangeConflict
		}
		return tx.Create(record).Error
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrRangeConflict), isUniqueViolation(err):
		return ErrRangeConflict
	default:
		return fmt.Errorf("写入记忆失败: %w", err)
	}
}

func (s *Store) prepare(record *Record) {
	if record.MemoryType == "" {
		record.MemoryType = TypeSummary
	}
	if rng, err := ParseRange(record.SourceMessageRange); err == nil {
		record.RangeStart = rng.Start
	}
}

func latestCovered(tx *gorm.DB, conversationID string) (int, error) {
	var latest Record
	err := tx.Scopes(common.ByConversation(conversationID), common.NewestFirst()).
		Limit(1).Find(&latest).Error
	if err != nil {
		return 0, fmt.Errorf("查询会话检查点失败: %w", err)
	}
	if latest.ID == 0 {
		return 0, nil
	}
	return latest.CoveredEnd(), nil
}

// LatestForConversation 会话最新一条记忆，不存在时返回 nil
func (s *Store) LatestForConversation(ctx context.Context, conversationID string) (*Record, error) {
	var latest Record
	err := s.db.WithContext(ctx).
		Scopes(common.ByConversation(conversationID), common.NewestFirst()).
		Limit(1).Find(&latest).Error
	if err != nil {
		return nil, fmt.Errorf("查询最新记忆失败: %w", err)
	}
	if latest.ID == 0 {
		return nil, nil
	}
	return &latest, nil
}

// LastCovered 会话已覆盖到的消息序号，无记忆或区间无法解析时为 0
func (s *Store) LastCovered(ctx context.Context, conversationID string) (int, error) {
	return latestCovered(s.db.WithContext(ctx), conversationID)
}

// ListByConversation 会话的全部记忆，按重要度、创建时间倒序
func (s *Store) ListByConversation(ctx context.Context, conversationID string) ([]Record, error) {
	var records []Record
	err := s.db.WithContext(ctx).
		Scopes(common.ByConversation(conversationID), byImportance).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("查询会话记忆失败: %w", err)
	}
	return records, nil
}

// ListActive 会话中未过期的记忆
func (s *Store) ListActive(ctx context.Context, conversationID string) ([]Record, error) {
	var records []Record
	err := s.db.WithContext(ctx).
		Scopes(common.ByConversation(conversationID), common.NotExpired(s.now()), byImportance).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("查询有效记忆失败: %w", err)
	}
	return records, nil
}

// ListByAgent Agent 在所有会话中的记忆，按重要度、创建时间倒序
func (s *Store) ListByAgent(ctx context.Context, agentID string) ([]Record, error) {
	var records []Record
	err := s.db.WithContext(ctx).
		Scopes(common.ByAgent(agentID), byImportance).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("查询 Agent 记忆失败: %w", err)
	}
	return records, nil
}

// ListByAgentNewest Agent 的记忆按创建时间倒序，limit <= 0 表示不限
func (s *Store) ListByAgentNewest(ctx context.Context, agentID string, limit int) ([]Record, error) {
	var records []Record
	query := s.db.WithContext(ctx).Scopes(common.ByAgent(agentID), common.NewestFirst())
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("查询 Agent 记忆失败: %w", err)
	}
	return records, nil
}

// Get 获取单条记忆
func (s *Store) Get(ctx context.Context, id uint) (*Record, error) {
	var record Record
	if err := s.db.WithContext(ctx).First(&record, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemoryNotFound
		}
		return nil, fmt.Errorf("查询记忆失败: %w", err)
	}
	return &record, nil
}

// UpdateFields 可编辑字段，nil 表示不修改
type UpdateFields struct {
	Content         *Content
	ImportanceScore *float64
	MemoryType      *MemoryType
}

// Update 更新记忆，返回是否有记录被修改
func (s *Store) Update(ctx context.Context, id uint, fields UpdateFields) (bool, error) {
	updates := map[string]interface{}{}
	if fields.Content != nil {
		data, err := EncodeContent(*fields.Content)
		if err != nil {
			return false, err
		}
		updates["content"] = datatypes.JSON(data)
	}
	if fields.ImportanceScore != nil {
		updates["importance_score"] = *fields.ImportanceScore
	}
	if fields.MemoryType != nil {
		updates["memory_type"] = string(*fields.MemoryType)
	}
	if len(updates) == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&Record{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return false, fmt.Errorf("查询记忆失败: %w", err)
		}
		return count > 0, nil
	}

	result := s.db.WithContext(ctx).Model(&Record{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("更新记忆失败: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Delete 删除单条记忆
func (s *Store) Delete(ctx context.Context, id uint) (bool, error) {
	result := s.db.WithContext(ctx).Delete(&Record{}, id)
	if result.Error != nil {
		return false, fmt.Errorf("删除记忆失败: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// DeleteAllForConversation 删除会话的全部记忆，返回是否删除了记录
func (s *Store) DeleteAllForConversation(ctx context.Context, conversationID string) (bool, error) {
	result := s.db.WithContext(ctx).Scopes(common.ByConversation(conversationID)).Delete(&Record{})
	if result.Error != nil {
		return false, fmt.Errorf("清空会话记忆失败: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// DeleteByIDs 批量删除
func (s *Store) DeleteByIDs(ctx context.Context, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&Record{})
	if result.Error != nil {
		return 0, fmt.Errorf("批量删除记忆失败: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteExpired 删除已过期的记忆，返回删除数量
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", s.now()).
		Delete(&Record{})
	if result.Error != nil {
		return 0, fmt.Errorf("清理过期记忆失败: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Stats 记忆汇总统计
type Stats struct {
	TotalMemories    int64   `json:"total_memories" yaml:"total_memories"`
	TotalTokensSaved int64   `json:"total_tokens_saved" yaml:"total_tokens_saved"`
	AvgImportance    float64 `json:"avg_importance" yaml:"avg_importance"`
}

// StatsFilter 统计范围，二选一
type StatsFilter struct {
	ConversationID string
	AgentID        string
}

// Stats 计算统计信息
func (s *Store) Stats(ctx context.Context, filter StatsFilter) (Stats, error) {
	var row struct {
		TotalMemories    int64
		TotalTokensSaved *int64
		AvgImportance    *float64
	}
	query := s.db.WithContext(ctx).Model(&Record{}).
		Select("COUNT(*) AS total_memories, SUM(tokens_saved) AS total_tokens_saved, AVG(importance_score) AS avg_importance")
	if filter.ConversationID != "" {
		query = query.Scopes(common.ByConversation(filter.ConversationID))
	}
	if filter.AgentID != "" {
		query = query.Scopes(common.ByAgent(filter.AgentID))
	}
	if err := query.Scan(&row).Error; err != nil {
		return Stats{}, fmt.Errorf("统计记忆失败: %w", err)
	}

	stats := Stats{TotalMemories: row.TotalMemories}
	if row.TotalTokensSaved != nil {
		stats.TotalTokensSaved = *row.TotalTokensSaved
	}
	if row.AvgImportance != nil {
		stats.AvgImportance = *row.AvgImportance
	}
	return stats, nil
}

// StatsOf 由已加载的记录计算统计信息
func StatsOf(records []Record) Stats {
	stats := Stats{TotalMemories: int64(len(records))}
	if len(records) == 0 {
		return stats
	}
	var sum float64
	for _, r := range records {
		stats.TotalTokensSaved += int64(r.TokensSaved)
		sum += r.ImportanceScore
	}
	stats.AvgImportance = sum / float64(len(records))
	return stats
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
