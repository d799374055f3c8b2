package tradelog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store 管理追加式成交流水（TradeRecord），用于审计与后台查询。
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// Record 是一条执行结果流水。状态只增不改：一次 (signal, account)
// 的执行至多落一条 opened/closed/skipped/failed。
type Record struct {
	ID          string  `json:"id"`
	TraceID     string  `json:"trace_id"`
	StrategyID  uint    `json:"strategy_id"`
	AccountID   uint    `json:"account_id"`
	Mode        string  `json:"mode"`
	Action      string  `json:"action"`
	OrderID     string  `json:"order_id,omitempty"`
	Symbol      string  `json:"symbol"`
	Direction   string  `json:"direction"`
	Quantity    float64 `json:"quantity"`
	Price       float64 `json:"price"`
	RealizedPnL float64 `json:"realized_pnl"`
	Status      string  `json:"status"`
	Error       string  `json:"error,omitempty"`
	CreatedAt   int64   `json:"ts"`
}

const (
	StatusPending   = "Pending"
	StatusCompleted = "Completed"
	StatusFailed    = "Failed"
	StatusClosed    = "Closed"
)

// New 打开（必要时创建）流水数据库。
func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("tradelog: 数据库路径不能为空")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db, path: path}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS trade_records (
	id TEXT PRIMARY KEY,
	trace_id TEXT NOT NULL,
	strategy_id INTEGER NOT NULL,
	account_id INTEGER NOT NULL,
	mode TEXT NOT NULL,
	action TEXT NOT NULL,
	order_id TEXT,
	symbol TEXT NOT NULL,
	direction TEXT,
	quantity REAL,
	price REAL,
	realized_pnl REAL,
	status TEXT NOT NULL,
	error TEXT,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trade_records_strategy ON trade_records(strategy_id, created_at);
CREATE INDEX IF NOT EXISTS idx_trade_records_account ON trade_records(account_id, created_at);
CREATE INDEX IF NOT EXISTS idx_trade_records_trace ON trade_records(trace_id);
`
	_, err := s.db.Exec(schema)
	return err
}

// Close 关闭数据库。
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append 追加一条流水。CreatedAt 为空时自动补当前时间。
func (s *Store) Append(ctx context.Context, rec Record) error {
	if strings.TrimSpace(rec.ID) == "" {
		return fmt.Errorf("tradelog: record id is required")
	}
	if rec.CreatedAt == 0 {
		rec.CreatedAt = time.Now().UnixMilli()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO trade_records
	(id, trace_id, strategy_id, account_id, mode, action, order_id, symbol, direction, quantity, price, realized_pnl, status, error, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.TraceID, rec.StrategyID, rec.AccountID, rec.Mode, rec.Action,
		rec.OrderID, rec.Symbol, rec.Direction, rec.Quantity, rec.Price,
		rec.RealizedPnL, rec.Status, rec.Error, rec.CreatedAt)
	return err
}

// Query 过滤条件；零值字段不参与过滤。
type Query struct {
	StrategyID uint
	AccountID  uint
	TraceID    string
	Limit      int
}

// List 按条件倒序返回流水。同一毫秒内的多条记录按写入顺序排序，
// 反手产生的 close/open 对才能保持先后关系。
func (s *Store) List(ctx context.Context, q Query) ([]Record, error) {
	where := make([]string, 0, 3)
	args := make([]any, 0, 3)
	if q.StrategyID > 0 {
		where = append(where, "strategy_id = ?")
		args = append(args, q.StrategyID)
	}
	if q.AccountID > 0 {
		where = append(where, "account_id = ?")
		args = append(args, q.AccountID)
	}
	if strings.TrimSpace(q.TraceID) != "" {
		where = append(where, "trace_id = ?")
		args = append(args, strings.TrimSpace(q.TraceID))
	}
	query := `
SELECT id, trace_id, strategy_id, account_id, mode, action, order_id, symbol, direction, quantity, price, realized_pnl, status, error, created_at
FROM trade_records`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += fmt.Sprintf(" LIMIT %d", limit)

	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var rec Record
		var orderID, direction, errText sql.NullString
		var quantity, price, pnl sql.NullFloat64
		if err := rows.Scan(&rec.ID, &rec.TraceID, &rec.StrategyID, &rec.AccountID,
			&rec.Mode, &rec.Action, &orderID, &rec.Symbol, &direction,
			&quantity, &price, &pnl, &rec.Status, &errText, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.OrderID = orderID.String
		rec.Direction = direction.String
		rec.Quantity = quantity.Float64
		rec.Price = price.Float64
		rec.RealizedPnL = pnl.Float64
		rec.Error = errText.String
		out = append(out, rec)
	}
	return out, rows.Err()
}
