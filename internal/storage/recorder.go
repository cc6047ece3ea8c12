package storage

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/betbot/arbot/internal/domain"
	"github.com/betbot/arbot/pkg/config"
	"github.com/betbot/arbot/pkg/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id               TEXT PRIMARY KEY,
	strategy         TEXT NOT NULL,
	market_id        TEXT NOT NULL,
	status           TEXT NOT NULL,
	realized_profit  TEXT NOT NULL,
	gas_cost         TEXT NOT NULL,
	net_profit       TEXT NOT NULL,
	leg_a_filled     INTEGER NOT NULL,
	leg_b_filled     INTEGER NOT NULL,
	unwind_attempted INTEGER NOT NULL,
	unwind_filled    INTEGER NOT NULL,
	started_at       TIMESTAMP NOT NULL,
	finished_at      TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS errors (
	at      TIMESTAMP NOT NULL,
	scope   TEXT NOT NULL,
	message TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS slippage (
	at        TIMESTAMP NOT NULL,
	strategy  TEXT NOT NULL,
	market_id TEXT NOT NULL,
	expected  TEXT NOT NULL,
	actual    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_strategy ON trades(strategy);
`

type recordKind int

const (
	kindTrade recordKind = iota
	kindError
	kindSlippage
)

type record struct {
	kind  recordKind
	trade *domain.TradeResult

	at      time.Time
	scope   string
	message string

	strategy domain.Strategy
	marketID string
	expected decimal.Decimal
	actual   decimal.Decimal
}

// SlippageStat 单个变体的滚动滑点统计
type SlippageStat struct {
	Count   int
	AvgAbs  decimal.Decimal // 平均绝对偏移
	LastAbs decimal.Decimal
}

// Recorder 交易历史与错误的 sqlite 落盘。
// 写入走带缓冲通道、后台单 worker 消费：热路径绝不等磁盘；
// 队列满时丢弃并告警。Close 排干队列后关库。
type Recorder struct {
	db *sql.DB
	ch chan record

	closeOnce sync.Once
	done      chan struct{}

	mu       sync.Mutex
	slippage map[domain.Strategy]*slippageAccum

	log *logrus.Entry
}

type slippageAccum struct {
	count   int
	sumAbs  decimal.Decimal
	lastAbs decimal.Decimal
}

// Open 打开（必要时建表）并启动写入 worker
func Open(cfg config.StorageConfig) (*Recorder, error) {
	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "create storage dir")
		}
	}

	db, err := sql.Open("sqlite", cfg.SQLitePath)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "apply schema")
	}

	r := &Recorder{
		db:       db,
		ch:       make(chan record, 256),
		done:     make(chan struct{}),
		slippage: make(map[domain.Strategy]*slippageAccum),
		log:      logger.WithField("component", "storage"),
	}
	go r.worker()
	return r, nil
}

// RecordTrade 异步落盘一笔终态交易；队列满时丢弃。
func (r *Recorder) RecordTrade(result *domain.TradeResult) {
	r.enqueue(record{kind: kindTrade, trade: result})
}

// RecordError 异步落盘一条错误
func (r *Recorder) RecordError(scope string, err error) {
	if err == nil {
		return
	}
	r.enqueue(record{kind: kindError, at: time.Now(), scope: scope, message: err.Error()})
}

// RecordSlippage 记录一次滑点超限（实现执行引擎的统计落点）
func (r *Recorder) RecordSlippage(strategy domain.Strategy, marketID string, expected, actual decimal.Decimal) {
	abs := actual.Sub(expected).Abs()

	r.mu.Lock()
	acc, ok := r.slippage[strategy]
	if !ok {
		acc = &slippageAccum{}
		r.slippage[strategy] = acc
	}
	acc.count++
	acc.sumAbs = acc.sumAbs.Add(abs)
	acc.lastAbs = abs
	r.mu.Unlock()

	r.enqueue(record{
		kind:     kindSlippage,
		at:       time.Now(),
		strategy: strategy,
		marketID: marketID,
		expected: expected,
		actual:   actual,
	})
}

// SlippageStats 各变体的滚动滑点统计（心跳日志用）
func (r *Recorder) SlippageStats() map[domain.Strategy]SlippageStat {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[domain.Strategy]SlippageStat, len(r.slippage))
	for s, acc := range r.slippage {
		out[s] = SlippageStat{
			Count:   acc.count,
			AvgAbs:  acc.sumAbs.Div(decimal.NewFromInt(int64(acc.count))),
			LastAbs: acc.lastAbs,
		}
	}
	return out
}

// Close 排干队列后关闭数据库
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		close(r.ch)
	})
	<-r.done
	return r.db.Close()
}

func (r *Recorder) enqueue(rec record) {
	select {
	case r.ch <- rec:
	default:
		r.log.Warn("存储队列已满，丢弃一条记录")
	}
}

func (r *Recorder) worker() {
	defer close(r.done)
	for rec := range r.ch {
		var err error
		switch rec.kind {
		case kindTrade:
			err = r.insertTrade(rec.trade)
		case kindError:
			err = r.insertError(rec)
		case kindSlippage:
			err = r.insertSlippage(rec)
		}
		if err != nil {
			r.log.WithError(err).Warn("记录落盘失败")
		}
	}
}

func (r *Recorder) insertTrade(t *domain.TradeResult) error {
	_, err := r.db.Exec(`INSERT OR REPLACE INTO trades
		(id, strategy, market_id, status, realized_profit, gas_cost, net_profit,
		 leg_a_filled, leg_b_filled, unwind_attempted, unwind_filled, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.OpportunityID, string(t.Strategy), t.MarketID, string(t.Status),
		t.RealizedProfit.String(), t.GasCost.String(), t.NetProfit.String(),
		boolInt(t.LegA.Filled), boolInt(t.LegB.Filled),
		boolInt(t.UnwindAttempted), boolInt(t.UnwindFilled),
		t.StartedAt, t.FinishedAt)
	return err
}

func (r *Recorder) insertError(rec record) error {
	_, err := r.db.Exec(`INSERT INTO errors (at, scope, message) VALUES (?, ?, ?)`,
		rec.at, rec.scope, rec.message)
	return err
}

func (r *Recorder) insertSlippage(rec record) error {
	_, err := r.db.Exec(`INSERT INTO slippage (at, strategy, market_id, expected, actual) VALUES (?, ?, ?, ?, ?)`,
		rec.at, string(rec.strategy), rec.marketID, rec.expected.String(), rec.actual.String())
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// TradeCount 已落盘的交易总数
func (r *Recorder) TradeCount(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trades`).Scan(&n)
	return n, err
}

// StrategyNetProfit 指定变体的净收益合计（报表用）
func (r *Recorder) StrategyNetProfit(ctx context.Context, strategy domain.Strategy) (decimal.Decimal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT net_profit FROM trades WHERE strategy = ?`, string(strategy))
	if err != nil {
		return decimal.Zero, err
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return decimal.Zero, err
		}
		v, err := decimal.NewFromString(s)
		if err != nil {
			continue
		}
		total = total.Add(v)
	}
	return total, rows.Err()
}
