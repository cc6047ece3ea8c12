package main

import (
	"context"
	"crypto/ecdsa"
	"flag"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/arbot/clob/client"
	"github.com/betbot/arbot/clob/types"
	"github.com/betbot/arbot/internal/domain"
	"github.com/betbot/arbot/internal/engine"
	"github.com/betbot/arbot/internal/execution"
	"github.com/betbot/arbot/internal/feed"
	"github.com/betbot/arbot/internal/oracle"
	"github.com/betbot/arbot/internal/risk"
	"github.com/betbot/arbot/internal/scanner"
	"github.com/betbot/arbot/internal/settlement"
	"github.com/betbot/arbot/internal/storage"
	"github.com/betbot/arbot/internal/txmgr"
	"github.com/betbot/arbot/pkg/config"
	"github.com/betbot/arbot/pkg/logger"
	"github.com/betbot/arbot/pkg/marketmath"
	"github.com/betbot/arbot/pkg/persistence"
	"github.com/betbot/arbot/pkg/ratelimit"
	"github.com/betbot/arbot/pkg/secretstore"
	"github.com/betbot/arbot/pkg/shutdown"
)

func main() {
	configPath := flag.String("config", "yml/config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Logging.Level,
		OutputFile: cfg.Logging.File,
		MaxSize:    cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	logrus.Infof("使用配置文件: %s", *configPath)

	privateKey, err := loadPrivateKey(cfg.Secrets)
	if err != nil {
		logrus.Errorf("加载私钥失败: %v", err)
		os.Exit(1)
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// 链上基础设施：多 RPC 端点 + 交易管理器
	endpoints, err := txmgr.NewEndpointManager(cfg.Chain.RPCEndpoints)
	if err != nil {
		logrus.Errorf("初始化 RPC 端点失败: %v", err)
		os.Exit(1)
	}
	txm := txmgr.NewManager(cfg.TxManager, endpoints, privateKey, big.NewInt(int64(cfg.Venue.ChainID)))
	if err := txm.Init(rootCtx); err != nil {
		logrus.Errorf("初始化交易管理器失败: %v", err)
		os.Exit(1)
	}
	logrus.Infof("交易钱包: %s", txm.Address().Hex())

	ctf, err := client.NewCTFClient(txm, types.Chain(cfg.Venue.ChainID))
	if err != nil {
		logrus.Errorf("初始化 CTF 客户端失败: %v", err)
		os.Exit(1)
	}

	// CLOB 客户端：优先取环境变量凭证，缺失时在线推导
	creds := loadCreds(cfg.Venue)
	if creds == nil {
		logrus.Info("环境变量未提供 API 凭证，在线推导...")
		tempClient := client.NewClient(cfg.Venue.Host, types.Chain(cfg.Venue.ChainID), privateKey, nil)
		creds, err = tempClient.CreateOrDeriveAPIKey(rootCtx, 0)
		if err != nil {
			logrus.Errorf("推导 API 凭证失败: %v", err)
			os.Exit(1)
		}
	}
	clobClient := client.NewClient(cfg.Venue.Host, types.Chain(cfg.Venue.ChainID), privateKey, creds)

	// 场内余额与授权一览（授权不足时下单会被拒，启动即暴露）
	if bal, err := clobClient.GetBalanceAllowance(rootCtx,
		&types.BalanceAllowanceParams{AssetType: types.AssetTypeCollateral}); err != nil {
		logrus.Warnf("查询场内余额失败: %v", err)
	} else {
		logrus.Infof("场内 USDC 余额: %s，授权: %s", bal.Balance, bal.Allowance)
	}

	// 风控：链上资金视图 + 断路器 + 状态恢复
	funds := engine.NewChainFunds(ctf, txm)
	breaker := risk.NewCircuitBreaker(risk.BreakerConfig{
		MaxConsecutiveFailures: int64(cfg.Risk.Breaker.ConsecutiveFailures),
		WinRateFloor:           cfg.Risk.Breaker.WinRateFloor,
		WinRateWindow:          cfg.Risk.Breaker.WinRateWindow,
		MaxHeartbeatFailures:   int64(cfg.Risk.Breaker.HeartbeatFailures),
	})

	capital, err := funds.CurrentCapital(rootCtx)
	if err != nil {
		logrus.Warnf("读取链上资金失败，以持久化快照为准: %v", err)
		capital = decimal.Zero
	}

	persistSvc := persistence.NewJSONFileService(cfg.Persistence.StateDir)
	state := risk.NewState(capital, cfg.Risk.TrailingWindow, persistSvc)
	breakerOpen, breakerReason, err := state.Restore()
	if err != nil {
		logrus.Warnf("恢复风控状态失败: %v", err)
	}
	if breakerOpen {
		breaker.ForceOpen(breakerReason)
		logrus.Warnf("断路器在上次运行中打开（%s），需人工 Reset 后才会交易", breakerReason)
	}
	if !capital.IsZero() {
		state.SetCapital(capital)
	}
	logrus.Infof("起始资金: $%s", state.Capital().StringFixed(2))

	sizer := risk.NewSizer(risk.NewSizerConfig(cfg.Risk))
	gate := risk.NewGate(cfg.Risk, cfg.TxManager.PendingLimit, breaker, sizer, state, funds)

	// 扫描器池：按配置启用变体
	pool := scanner.NewPool(buildScanners(cfg), parsePriority(cfg.Scanners.Priority))

	// 外部行情流（延迟套利依赖；连不上先降级启动）
	feedTask := feed.NewTask(feed.Config{
		URL:     cfg.Feed.WSURL,
		Symbols: cfg.Feed.Symbols,
		Window:  cfg.Feed.Window(),
	})
	if err := feedTask.Start(rootCtx); err != nil {
		logrus.Warnf("行情流启动失败（将在后台重连）: %v", err)
	}

	recorder, err := storage.Open(cfg.Storage)
	if err != nil {
		logrus.Errorf("打开交易历史库失败: %v", err)
		os.Exit(1)
	}

	// 全进程共享一套 API 限流器：下单走令牌桶，盘口走滑动窗口
	limits := ratelimit.NewRateLimitManager()

	executor := execution.NewEngine(cfg.Execution, clobClient, recorder, limits)
	polPrice := decimal.NewFromFloat(cfg.Chain.POLPriceUSD)
	merger := settlement.NewMerger(ctf, txm, polPrice)
	redeemer := settlement.NewRedeemer(ctf, txm, clobClient, polPrice)

	var advisor engine.Advisor
	if cfg.Oracle.Enabled {
		advisor = oracle.NewClient(oracle.Config{
			BaseURL: cfg.Oracle.URL,
			APIKey:  os.Getenv(cfg.Oracle.APIKeyEnv),
			Timeout: cfg.Oracle.Timeout(),
		})
		logrus.Info("外部决策顾问已启用")
	}
	var quotes engine.QuoteSource
	if cfg.Scanners.CrossVenue.Enabled {
		qc := engine.NewQuoteClient(cfg.Scanners.CrossVenue)
		quotes = qc
		// 跨平台双腿需要对手平台下单通道
		executor.SetCrossVenue(qc)
	}

	eng := engine.New(cfg, engine.Deps{
		Pool:    pool,
		Gate:    gate,
		State:   state,
		Breaker: breaker,
		Funds:   funds,

		Markets: engine.NewIngestor(clobClient, limits),
		Quotes:  quotes,
		Feed:    feedTask.Buffer(),
		FeedUp:  feedTask,
		Chain:   txm,
		Resync:  feedTask.Reconnected(),

		Executor: executor,
		Settler:  merger,
		Redeemer: redeemer,
		Sink:     recorder,
		Advisor:  advisor,
	})

	// 关闭顺序：引擎先停（Run 返回前落盘），再收尾外围组件
	shutdownMgr := shutdown.NewManager()
	shutdownMgr.OnShutdown(func(ctx context.Context, wg *sync.WaitGroup) {
		feedTask.Stop()
	})
	// 停机不留挂单：延迟确认等路径可能残留开放订单
	shutdownMgr.OnShutdown(func(ctx context.Context, wg *sync.WaitGroup) {
		open, err := clobClient.GetOpenOrders(ctx, "")
		if err != nil {
			logrus.Warnf("查询开放订单失败: %v", err)
		}
		if err == nil && len(open) == 0 {
			return
		}
		if len(open) > 0 {
			logrus.Warnf("停机时仍有 %d 笔开放订单，全部取消", len(open))
		}
		if err := clobClient.CancelAll(ctx); err != nil {
			logrus.Errorf("取消开放订单失败: %v", err)
		}
	})
	shutdownMgr.OnShutdown(func(ctx context.Context, wg *sync.WaitGroup) {
		if err := recorder.Close(); err != nil {
			logrus.Errorf("关闭交易历史库失败: %v", err)
		}
	})

	engineDone := make(chan error, 1)
	go func() {
		engineDone <- eng.Run(rootCtx)
	}()

	logrus.Info("套利机器人已启动，按 Ctrl+C 停止")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
		logrus.Info("收到停止信号，正在关闭...")
	case err := <-engineDone:
		if err != nil {
			logrus.Errorf("引擎异常退出: %v", err)
		}
	}

	rootCancel()
	shutdownTimeout := time.Duration(cfg.Engine.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// 等引擎完成当前周期（配对执行绝不中途截断）
	select {
	case <-engineDone:
	case <-shutdownCtx.Done():
		logrus.Warn("等待引擎停止超时")
	}
	shutdownMgr.Shutdown(shutdownCtx)

	logrus.Info("套利机器人已停止")
}

// loadPrivateKey 先取环境变量明文私钥（便于容器注入），
// 否则从加密 keystore 读取。
func loadPrivateKey(cfg config.SecretsConfig) (*ecdsa.PrivateKey, error) {
	if raw := strings.TrimSpace(os.Getenv(cfg.PrivateKeyEnv)); raw != "" {
		return crypto.HexToECDSA(strings.TrimPrefix(raw, "0x"))
	}

	encKey, err := secretstore.ParseKey(os.Getenv(cfg.EncryptionKeyEnv))
	if err != nil {
		return nil, fmt.Errorf("解析 keystore 加密密钥失败: %w", err)
	}
	store, err := secretstore.Open(secretstore.OpenOptions{
		Path:          cfg.StorePath,
		EncryptionKey: encKey,
		ReadOnly:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("打开 keystore 失败: %w", err)
	}
	defer store.Close()

	hexKey, found, err := store.GetString(secretstore.KeyPrivateKey)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("keystore 中无私钥，请先运行 wallet-init")
	}
	return crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
}

// loadCreds 从环境变量读取 API 凭证；任一缺失返回 nil（改走在线推导）
func loadCreds(cfg config.VenueConfig) *types.ApiKeyCreds {
	key := strings.TrimSpace(os.Getenv(cfg.APIKeyEnv))
	secret := strings.TrimSpace(os.Getenv(cfg.APISecretEnv))
	passphrase := strings.TrimSpace(os.Getenv(cfg.APIPassphraseEnv))
	if key == "" || secret == "" || passphrase == "" {
		return nil
	}
	return &types.ApiKeyCreds{Key: key, Secret: secret, Passphrase: passphrase}
}

// buildScanners 按配置节开关装配扫描器
func buildScanners(cfg *config.Config) []scanner.Scanner {
	calc := marketmath.NewFeeCalculator()

	var scanners []scanner.Scanner
	if cfg.Scanners.Paired.Enabled {
		scanners = append(scanners, scanner.NewPairedArbScanner(cfg.Scanners.Paired, calc))
	}
	if cfg.Scanners.CrossVenue.Enabled {
		scanners = append(scanners, scanner.NewCrossVenueScanner(cfg.Scanners.CrossVenue, calc))
	}
	if cfg.Scanners.Latency.Enabled {
		scanners = append(scanners, scanner.NewLatencyScanner(cfg.Scanners.Latency, calc, cfg.Feed.Window()))
	}
	if cfg.Scanners.Certainty.Enabled {
		scanners = append(scanners, scanner.NewCertaintyScanner(cfg.Scanners.Certainty, calc))
	}
	for _, s := range scanners {
		logrus.Infof("扫描器已启用: %s", s.Name())
	}
	return scanners
}

// parsePriority 把配置里的变体名映射为优先级序列；
// 未知名字跳过，空配置回落到默认顺序。
func parsePriority(names []string) []domain.Strategy {
	known := map[string]domain.Strategy{}
	for _, s := range domain.AllStrategies {
		known[string(s)] = s
	}
	var out []domain.Strategy
	for _, name := range names {
		s, ok := known[strings.TrimSpace(name)]
		if !ok {
			logrus.Warnf("未知的扫描器优先级名: %q", name)
			continue
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		out = domain.AllStrategies
	}
	return out
}
