// Package learn 持久化每个已执行决策的结果，供后续复盘与 Provider
// 表现统计。写入是尽力而为的：存储故障只记日志，绝不让主循环停摆。
package learn

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"quorum/internal/decision"

	_ "modernc.org/sqlite"
)

// 结果标签。unknown 专门留给"提交后断连"的模糊结局，
// 绝不能把它折叠进 win/loss。
const (
	ResultWin     = "win"
	ResultLoss    = "loss"
	ResultFlat    = "flat"
	ResultUnknown = "unknown"
)

// OutcomeRecord 是一条已执行决策的最终结果。
type OutcomeRecord struct {
	ID         int64     `json:"id"`
	DecisionID string    `json:"decision_id"`
	Symbol     string    `json:"symbol"`
	Action     string    `json:"action"`
	Tier       string    `json:"tier"`
	Confidence float64   `json:"confidence"`
	Result     string    `json:"result"`
	PnL        float64   `json:"pnl"`
	OrderRef   string    `json:"order_ref,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	Votes      string    `json:"votes,omitempty"` // 投票摘要 JSON
	ExecutedAt time.Time `json:"executed_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// ProviderStat 汇总单个 Provider 的历史命中情况。
type ProviderStat struct {
	ProviderID string  `json:"provider_id"`
	Votes      int     `json:"votes"`
	Agreed     int     `json:"agreed"`
	Wins       int     `json:"wins"`
	WinRate    float64 `json:"win_rate"`
}

// Recorder 基于 SQLite 的结果存储。
type Recorder struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// NewRecorder 初始化存储并建表。
func NewRecorder(path string) (*Recorder, error) {
	if path == "" {
		return nil, fmt.Errorf("learn db path 不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Recorder{db: db, path: path}, nil
}

// Close 关闭底层 DB。
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS decision_outcomes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			decision_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			action TEXT NOT NULL,
			tier TEXT,
			confidence REAL DEFAULT 0,
			result TEXT NOT NULL,
			pnl REAL DEFAULT 0,
			order_ref TEXT,
			detail TEXT,
			votes_json TEXT,
			executed_at INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_decision_outcomes_symbol_ts ON decision_outcomes(symbol, executed_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_decision_outcomes_result ON decision_outcomes(result);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("初始化 learn schema 失败: %w", err)
		}
	}
	return nil
}

// Record 写入一条结果。Votes 摘要从决策自动提取。
func (r *Recorder) Record(ctx context.Context, d decision.Decision, result string, pnl float64, orderRef, detail string, executedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return fmt.Errorf("recorder 已关闭")
	}
	votes, err := json.Marshal(voteSummaries(d.Votes))
	if err != nil {
		votes = []byte("[]")
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO decision_outcomes
		(decision_id, symbol, action, tier, confidence, result, pnl, order_ref, detail, votes_json, executed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Symbol, string(d.Action), string(d.Tier), d.Confidence,
		result, pnl, orderRef, detail, string(votes),
		executedAt.UnixMilli(), time.Now().UnixMilli())
	return err
}

type voteSummary struct {
	ProviderID string  `json:"provider_id"`
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	Status     string  `json:"status"`
}

func voteSummaries(votes []decision.ProviderVote) []voteSummary {
	out := make([]voteSummary, 0, len(votes))
	for _, v := range votes {
		out = append(out, voteSummary{
			ProviderID: v.ProviderID,
			Action:     string(v.Action),
			Confidence: v.Confidence,
			Status:     string(v.Status),
		})
	}
	return out
}

// Recent 返回最近 limit 条结果，新的在前。
func (r *Recorder) Recent(ctx context.Context, limit int) ([]OutcomeRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return nil, fmt.Errorf("recorder 已关闭")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `SELECT id, decision_id, symbol, action, tier, confidence,
		result, pnl, order_ref, detail, votes_json, executed_at, created_at
		FROM decision_outcomes ORDER BY executed_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OutcomeRecord
	for rows.Next() {
		var rec OutcomeRecord
		var orderRef, detail, votes sql.NullString
		var execMs, createdMs int64
		if err := rows.Scan(&rec.ID, &rec.DecisionID, &rec.Symbol, &rec.Action, &rec.Tier,
			&rec.Confidence, &rec.Result, &rec.PnL, &orderRef, &detail, &votes,
			&execMs, &createdMs); err != nil {
			return nil, err
		}
		rec.OrderRef = orderRef.String
		rec.Detail = detail.String
		rec.Votes = votes.String
		rec.ExecutedAt = time.UnixMilli(execMs)
		rec.CreatedAt = time.UnixMilli(createdMs)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ProviderStats 按 Provider 汇总历史命中率。unknown 结果不计入胜负。
func (r *Recorder) ProviderStats(ctx context.Context) ([]ProviderStat, error) {
	records, err := r.Recent(ctx, 500)
	if err != nil {
		return nil, err
	}
	agg := map[string]*ProviderStat{}
	for _, rec := range records {
		if rec.Result == ResultUnknown {
			continue
		}
		var votes []voteSummary
		if err := json.Unmarshal([]byte(rec.Votes), &votes); err != nil {
			continue
		}
		for _, v := range votes {
			if v.Status != string(decision.VoteOK) {
				continue
			}
			st, ok := agg[v.ProviderID]
			if !ok {
				st = &ProviderStat{ProviderID: v.ProviderID}
				agg[v.ProviderID] = st
			}
			st.Votes++
			if sameDirection(v.Action, rec.Action) {
				st.Agreed++
				if rec.Result == ResultWin {
					st.Wins++
				}
			}
		}
	}
	out := make([]ProviderStat, 0, len(agg))
	for _, st := range agg {
		if st.Agreed > 0 {
			st.WinRate = float64(st.Wins) / float64(st.Agreed)
		}
		out = append(out, *st)
	}
	return out, nil
}

// sameDirection 判断原始票方向是否与最终动作一致。
func sameDirection(vote, final string) bool {
	switch vote {
	case string(decision.ActionBuy):
		return final == string(decision.ActionOpenLong) || final == string(decision.ActionCloseShort)
	case string(decision.ActionSell):
		return final == string(decision.ActionOpenShort) || final == string(decision.ActionCloseLong)
	case string(decision.ActionHold):
		return final == string(decision.ActionHold)
	}
	return false
}
