package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/arbot/pkg/logger"
	"github.com/betbot/arbot/pkg/sigchan"
)

// Config 行情流配置
type Config struct {
	// URL combined-streams 基础地址，如 wss://stream.binance.com:9443/stream
	URL string

	// Symbols 订阅的交易对（BTCUSDT 等）
	Symbols []string

	// Window 观测缓冲窗口
	Window time.Duration

	// HandshakeTimeout 握手超时
	HandshakeTimeout time.Duration
}

// Task 外部行情流任务：websocket 拉取成交价写入观测缓冲。
// 断线自动重连（指数退避），读取方通过 Buffer() 同步读取最新观测。
type Task struct {
	cfg    Config
	buffer *Buffer
	log    *logrus.Entry

	conn   *websocket.Conn
	connMu sync.Mutex

	reconnected *sigchan.Chan

	stopCh chan struct{}
	doneCh chan struct{}

	runningMu sync.Mutex
	running   bool
}

// tradeStream combined-stream 包装格式
type tradeStream struct {
	Stream string `json:"stream"`
	Data   struct {
		Symbol    string `json:"s"`
		Price     string `json:"p"`
		TradeTime int64  `json:"T"`
	} `json:"data"`
}

// NewTask 创建行情流任务
func NewTask(cfg Config) *Task {
	if cfg.Window <= 0 {
		cfg.Window = 2 * time.Minute
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	return &Task{
		cfg:         cfg,
		buffer:      NewBuffer(cfg.Window),
		log:         logger.WithField("component", "feed"),
		reconnected: sigchan.New(1),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Buffer 返回观测缓冲（扫描器只读）
func (t *Task) Buffer() *Buffer {
	return t.buffer
}

// Reconnected 断线重连成功后触发一次，供调用方提前补一轮扫描
func (t *Task) Reconnected() <-chan struct{} {
	return t.reconnected.C()
}

// streamURL 构造 combined-streams 地址
func (t *Task) streamURL() string {
	streams := make([]string, 0, len(t.cfg.Symbols))
	for _, sym := range t.cfg.Symbols {
		streams = append(streams, strings.ToLower(sym)+"@trade")
	}
	return fmt.Sprintf("%s?streams=%s", t.cfg.URL, strings.Join(streams, "/"))
}

// Start 建立连接并启动读取循环
func (t *Task) Start(ctx context.Context) error {
	t.runningMu.Lock()
	if t.running {
		t.runningMu.Unlock()
		return fmt.Errorf("行情流任务已在运行")
	}
	t.running = true
	t.runningMu.Unlock()

	if err := t.connect(); err != nil {
		t.runningMu.Lock()
		t.running = false
		t.runningMu.Unlock()
		return fmt.Errorf("初始连接失败: %w", err)
	}

	go t.readLoop(ctx)

	t.log.WithField("symbols", t.cfg.Symbols).Info("行情流已启动")
	return nil
}

// Stop 关闭连接并等待读取循环退出
func (t *Task) Stop() {
	t.runningMu.Lock()
	if !t.running {
		t.runningMu.Unlock()
		return
	}
	t.running = false
	t.runningMu.Unlock()

	close(t.stopCh)

	t.connMu.Lock()
	if t.conn != nil {
		t.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		t.conn.Close()
		t.conn = nil
	}
	t.connMu.Unlock()

	select {
	case <-t.doneCh:
	case <-time.After(5 * time.Second):
		t.log.Warn("行情流关闭超时")
	}
}

// Healthy 最近窗口内是否有任何观测（心跳检查用）
func (t *Task) Healthy() bool {
	for _, sym := range t.cfg.Symbols {
		if _, ok := t.buffer.Latest(sym); ok {
			return true
		}
	}
	return false
}

func (t *Task) connect() error {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	if t.conn != nil {
		t.conn.Close()
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: t.cfg.HandshakeTimeout,
	}
	conn, _, err := dialer.Dial(t.streamURL(), nil)
	if err != nil {
		return err
	}
	t.conn = conn
	return nil
}

func (t *Task) readLoop(ctx context.Context) {
	defer close(t.doneCh)

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		default:
		}

		t.connMu.Lock()
		conn := t.conn
		t.connMu.Unlock()

		if conn == nil {
			select {
			case <-time.After(backoff):
			case <-t.stopCh:
				return
			case <-ctx.Done():
				return
			}
			if err := t.connect(); err != nil {
				t.log.WithError(err).Warn("行情流重连失败")
				backoff *= 2
				if backoff > 30*time.Second {
					backoff = 30 * time.Second
				}
				continue
			}
			t.log.Info("行情流已重连")
			t.reconnected.Emit()
			backoff = time.Second
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			t.connMu.Lock()
			if t.conn != nil {
				t.conn.Close()
				t.conn = nil
			}
			t.connMu.Unlock()

			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			t.log.WithError(err).Warn("行情流读取错误，准备重连")
			continue
		}

		t.handleMessage(message)
	}
}

func (t *Task) handleMessage(message []byte) {
	var msg tradeStream
	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}
	if msg.Data.Symbol == "" || msg.Data.Price == "" {
		return
	}

	price, err := decimal.NewFromString(msg.Data.Price)
	if err != nil || price.LessThanOrEqual(decimal.Zero) {
		return
	}

	at := time.UnixMilli(msg.Data.TradeTime)
	if msg.Data.TradeTime <= 0 {
		at = time.Now()
	}

	t.buffer.Add(Observation{
		Symbol: msg.Data.Symbol,
		Price:  price,
		At:     at,
	})
}
