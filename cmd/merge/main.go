package main

import (
	"bufio"
	"context"
	"crypto/ecdsa"
	"flag"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/arbot/clob/client"
	"github.com/betbot/arbot/clob/types"
	"github.com/betbot/arbot/internal/settlement"
	"github.com/betbot/arbot/internal/txmgr"
	"github.com/betbot/arbot/pkg/config"
	"github.com/betbot/arbot/pkg/logger"
	"github.com/betbot/arbot/pkg/secretstore"
)

// 手动合并工具：查询指定市场可合并的 YES/NO 完整对数量，
// 经操作员确认后提交链上 merge。机器人停机期间的善后手段。
func main() {
	var (
		configPath  = flag.String("config", "yml/config.yaml", "配置文件路径")
		conditionID = flag.String("condition", "", "市场 conditionID（0x 开头）")
		amountStr   = flag.String("amount", "", "合并数量；留空合并全部可合并数量")
		yes         = flag.Bool("yes", false, "跳过确认直接提交")
	)
	flag.Parse()

	if strings.TrimSpace(*conditionID) == "" {
		fmt.Fprintln(os.Stderr, "error: -condition is required")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(logger.Config{Level: cfg.Logging.Level}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	privateKey, err := loadPrivateKey(cfg.Secrets)
	if err != nil {
		logrus.Errorf("加载私钥失败: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	endpoints, err := txmgr.NewEndpointManager(cfg.Chain.RPCEndpoints)
	if err != nil {
		logrus.Errorf("初始化 RPC 端点失败: %v", err)
		os.Exit(1)
	}
	txm := txmgr.NewManager(cfg.TxManager, endpoints, privateKey, big.NewInt(int64(cfg.Venue.ChainID)))
	if err := txm.Init(ctx); err != nil {
		logrus.Errorf("初始化交易管理器失败: %v", err)
		os.Exit(1)
	}

	ctf, err := client.NewCTFClient(txm, types.Chain(cfg.Venue.ChainID))
	if err != nil {
		logrus.Errorf("初始化 CTF 客户端失败: %v", err)
		os.Exit(1)
	}
	merger := settlement.NewMerger(ctf, txm, decimal.NewFromFloat(cfg.Chain.POLPriceUSD))

	mergeable, err := merger.Mergeable(ctx, *conditionID)
	if err != nil {
		logrus.Errorf("查询可合并数量失败: %v", err)
		os.Exit(1)
	}
	fmt.Printf("钱包:       %s\n", txm.Address().Hex())
	fmt.Printf("condition:  %s\n", *conditionID)
	fmt.Printf("可合并数量: %s\n", mergeable.String())

	if mergeable.IsZero() {
		fmt.Println("无可合并的完整对，退出")
		return
	}

	amount := mergeable
	if strings.TrimSpace(*amountStr) != "" {
		amount, err = decimal.NewFromString(strings.TrimSpace(*amountStr))
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: invalid -amount: %v\n", err)
			os.Exit(1)
		}
		if amount.GreaterThan(mergeable) {
			fmt.Fprintf(os.Stderr, "error: amount %s 超过可合并数量 %s\n", amount, mergeable)
			os.Exit(1)
		}
	}

	// 提交前再核一遍两侧余额，余额在查询与确认之间可能已变化
	if err := ctf.ValidateMergePositions(ctx, txm.Address(), *conditionID, amount); err != nil {
		logrus.Errorf("合并前置校验失败: %v", err)
		os.Exit(1)
	}

	if !*yes {
		fmt.Printf("将合并 %s 份完整对回 USDC，输入 yes 确认: ", amount)
		if strings.TrimSpace(readLine()) != "yes" {
			fmt.Println("已取消")
			return
		}
	}

	receipt, err := merger.Merge(ctx, *conditionID, *conditionID, amount)
	if err != nil {
		logrus.Errorf("合并失败: %v", err)
		if receipt != nil && receipt.TxHash != "" {
			fmt.Printf("tx: %s\n", receipt.TxHash)
		}
		os.Exit(1)
	}

	fmt.Printf("合并完成\n")
	fmt.Printf("tx:         %s\n", receipt.TxHash)
	fmt.Printf("回收抵押品: $%s\n", receipt.CollateralDelta.StringFixed(6))
	fmt.Printf("gas 成本:   $%s\n", receipt.GasCost.StringFixed(4))
}

// loadPrivateKey 与 bot 主程序同一套取钥顺序：环境变量优先，其次加密 keystore
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

func readLine() string {
	br := bufio.NewReader(os.Stdin)
	s, _ := br.ReadString('\n')
	return strings.TrimSpace(s)
}
