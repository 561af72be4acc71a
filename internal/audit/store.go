// Package audit persists an append-only trail of agent cycles: the
// decision that was made, the risk verdict it received and how execution
// went. Records are never updated or deleted after insert.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"quorum/internal/decision"
	"quorum/internal/exchange"
	"quorum/internal/risk"
)

// CycleModel 是一个完整周期的审计记录。JSON 列保留完整结构，
// 标量列冗余出来方便 SQL 过滤。
type CycleModel struct {
	ID         int64          `gorm:"column:id;primaryKey"`
	CycleSeq   uint64         `gorm:"column:cycle_seq;index"`
	Timestamp  int64          `gorm:"column:ts;index"`
	Symbol     string         `gorm:"column:symbol;index"`
	Action     string         `gorm:"column:action"`
	Tier       string         `gorm:"column:tier"`
	Confidence float64        `gorm:"column:confidence"`
	Approved   int            `gorm:"column:approved"`
	Executed   int            `gorm:"column:executed"`
	Equity     float64        `gorm:"column:equity"`
	Decision   datatypes.JSON `gorm:"column:decision_json;type:TEXT"`
	Verdict    datatypes.JSON `gorm:"column:verdict_json;type:TEXT"`
	Execution  datatypes.JSON `gorm:"column:execution_json;type:TEXT"`
	Note       string         `gorm:"column:note"`
	CreatedAt  int64          `gorm:"column:created_at"`
}

func (CycleModel) TableName() string { return "audit_cycles" }

// EventModel 记录周期之外的事件：operator 信号、相位切换、恢复等。
type EventModel struct {
	ID        int64          `gorm:"column:id;primaryKey"`
	Timestamp int64          `gorm:"column:ts;index"`
	Kind      string         `gorm:"column:kind;index"`
	Detail    datatypes.JSON `gorm:"column:detail;type:TEXT"`
	CreatedAt int64          `gorm:"column:created_at"`
}

func (EventModel) TableName() string { return "audit_events" }

// Store implements the audit trail using Gorm + SQLite.
type Store struct {
	db *gorm.DB
}

// NewStore opens (or creates) the audit database at path.
func NewStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("audit store: 数据库路径不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&CycleModel{}, &EventModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CycleEntry 是写入一条周期记录所需的全部输入。
type CycleEntry struct {
	CycleSeq  uint64
	Decision  decision.Decision
	Verdict   *risk.Verdict
	Execution *exchange.ExecutionResult
	Equity    float64
	Note      string
	At        time.Time
}

// AppendCycle 追加一条周期记录。只插入，绝不回写。
func (s *Store) AppendCycle(ctx context.Context, e CycleEntry) error {
	decJSON, err := json.Marshal(e.Decision)
	if err != nil {
		return fmt.Errorf("audit: 序列化决策失败: %w", err)
	}
	m := CycleModel{
		CycleSeq:   e.CycleSeq,
		Timestamp:  e.At.UnixMilli(),
		Symbol:     e.Decision.Symbol,
		Action:     string(e.Decision.Action),
		Tier:       string(e.Decision.Tier),
		Confidence: e.Decision.Confidence,
		Equity:     e.Equity,
		Decision:   decJSON,
		Note:       e.Note,
		CreatedAt:  time.Now().UnixMilli(),
	}
	if e.Verdict != nil {
		vj, err := json.Marshal(e.Verdict)
		if err != nil {
			return fmt.Errorf("audit: 序列化判决失败: %w", err)
		}
		m.Verdict = vj
		if e.Verdict.Approved {
			m.Approved = 1
		}
	}
	if e.Execution != nil {
		xj, err := json.Marshal(e.Execution)
		if err != nil {
			return fmt.Errorf("audit: 序列化执行结果失败: %w", err)
		}
		m.Execution = xj
		m.Executed = 1
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

// AppendEvent 记录一条非周期事件（operator 信号、相位切换等）。
func (s *Store) AppendEvent(ctx context.Context, kind string, detail any) error {
	dj, err := json.Marshal(detail)
	if err != nil {
		dj = []byte(fmt.Sprintf("%q", fmt.Sprint(detail)))
	}
	m := EventModel{
		Timestamp: time.Now().UnixMilli(),
		Kind:      kind,
		Detail:    dj,
		CreatedAt: time.Now().UnixMilli(),
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

// RecentCycles 返回最近 limit 条周期记录，新的在前。
func (s *Store) RecentCycles(ctx context.Context, limit int) ([]CycleModel, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []CycleModel
	err := s.db.WithContext(ctx).
		Order("ts DESC, id DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CyclesSince 返回 ts 之后的周期记录，旧的在前（报表用）。
func (s *Store) CyclesSince(ctx context.Context, since time.Time) ([]CycleModel, error) {
	var out []CycleModel
	err := s.db.WithContext(ctx).
		Where("ts >= ?", since.UnixMilli()).
		Order("ts ASC, id ASC").
		Find(&out).Error
	return out, err
}
