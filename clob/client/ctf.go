package client

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/betbot/arbot/clob/types"
)

// ContractCaller 只读合约调用接口（由交易管理器按当前 RPC 端点提供）
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// TxCall 待发送的合约调用（nonce、gas 与签名由交易管理器负责）
type TxCall struct {
	To    common.Address
	Data  []byte
	Value *big.Int
}

// CTFClient CTF 合约客户端
// 只负责 calldata 构造与只读查询，交易生命周期交给上层。
type CTFClient struct {
	caller          ContractCaller
	ctfAddress      common.Address
	collateralToken common.Address
	ctfABI          abi.ABI
	erc20ABI        abi.ABI
	erc1155ABI      abi.ABI
}

// NewCTFClient 创建新的 CTF 客户端
func NewCTFClient(caller ContractCaller, chainID types.Chain) (*CTFClient, error) {
	config, err := GetContractConfig(chainID)
	if err != nil {
		return nil, fmt.Errorf("获取合约配置失败: %w", err)
	}

	ctfABI, err := abi.JSON(strings.NewReader(CTFABI))
	if err != nil {
		return nil, fmt.Errorf("解析CTF ABI失败: %w", err)
	}
	erc20ABI, err := abi.JSON(strings.NewReader(ERC20ABI))
	if err != nil {
		return nil, fmt.Errorf("解析ERC20 ABI失败: %w", err)
	}
	erc1155ABI, err := abi.JSON(strings.NewReader(ERC1155ABI))
	if err != nil {
		return nil, fmt.Errorf("解析ERC1155 ABI失败: %w", err)
	}

	return &CTFClient{
		caller:          caller,
		ctfAddress:      common.HexToAddress(config.ConditionalTokens),
		collateralToken: common.HexToAddress(config.Collateral),
		ctfABI:          ctfABI,
		erc20ABI:        erc20ABI,
		erc1155ABI:      erc1155ABI,
	}, nil
}

// SetCaller 切换只读调用端点（RPC 故障转移后调用）
func (c *CTFClient) SetCaller(caller ContractCaller) {
	c.caller = caller
}

// GetCTFAddress 获取CTF合约地址
func (c *CTFClient) GetCTFAddress() common.Address {
	return c.ctfAddress
}

// GetCollateralToken 获取抵押品代币地址
func (c *CTFClient) GetCollateralToken() common.Address {
	return c.collateralToken
}

// fullSetPartition 二元市场的完整仓位集合
// indexSet 1 = YES (0b01), indexSet 2 = NO (0b10)
func fullSetPartition() []*big.Int {
	return []*big.Int{big.NewInt(1), big.NewInt(2)}
}

// toBaseUnits 转换为 6 位小数的链上整数表示
func toBaseUnits(amount decimal.Decimal) *big.Int {
	return amount.Shift(ConditionalTokenDecimals).Truncate(0).BigInt()
}

// fromBaseUnits 从链上整数表示转换回十进制数量
func fromBaseUnits(raw *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(raw, -ConditionalTokenDecimals)
}

// MergeCalldata 构造 mergePositions 调用（1 YES + 1 NO -> 1 USDC）
func (c *CTFClient) MergeCalldata(conditionID string, amount decimal.Decimal) (*TxCall, error) {
	condition, err := parseConditionID(conditionID)
	if err != nil {
		return nil, err
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("合并数量必须大于0")
	}

	// 二元市场 parentCollectionId 恒为 bytes32(0)
	data, err := c.ctfABI.Pack("mergePositions",
		c.collateralToken,
		common.Hash{},
		condition,
		fullSetPartition(),
		toBaseUnits(amount),
	)
	if err != nil {
		return nil, fmt.Errorf("打包mergePositions参数失败: %w", err)
	}

	return &TxCall{To: c.ctfAddress, Data: data, Value: big.NewInt(0)}, nil
}

// RedeemCalldata 构造 redeemPositions 调用（市场裁决后赎回）
func (c *CTFClient) RedeemCalldata(conditionID string) (*TxCall, error) {
	condition, err := parseConditionID(conditionID)
	if err != nil {
		return nil, err
	}

	data, err := c.ctfABI.Pack("redeemPositions",
		c.collateralToken,
		common.Hash{},
		condition,
		fullSetPartition(),
	)
	if err != nil {
		return nil, fmt.Errorf("打包redeemPositions参数失败: %w", err)
	}

	return &TxCall{To: c.ctfAddress, Data: data, Value: big.NewInt(0)}, nil
}

func parseConditionID(conditionID string) (common.Hash, error) {
	if conditionID == "" {
		return common.Hash{}, fmt.Errorf("conditionId不能为空")
	}
	condition := common.HexToHash(conditionID)
	if condition == (common.Hash{}) {
		return common.Hash{}, fmt.Errorf("无效的conditionId: %s", conditionID)
	}
	return condition, nil
}

// GetCollectionId 计算collectionId（调用合约的 pure 函数）
func (c *CTFClient) GetCollectionId(ctx context.Context, parentCollectionId, conditionId common.Hash, indexSet *big.Int) (common.Hash, error) {
	data, err := c.ctfABI.Pack("getCollectionId", parentCollectionId, conditionId, indexSet)
	if err != nil {
		return common.Hash{}, fmt.Errorf("打包getCollectionId参数失败: %w", err)
	}

	result, err := c.caller.CallContract(ctx, ethereum.CallMsg{
		To:   &c.ctfAddress,
		Data: data,
	}, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("调用getCollectionId失败: %w", err)
	}

	var collectionId common.Hash
	if err := c.ctfABI.UnpackIntoInterface(&collectionId, "getCollectionId", result); err != nil {
		return common.Hash{}, fmt.Errorf("解析getCollectionId结果失败: %w", err)
	}
	return collectionId, nil
}

// GetPositionId 计算positionId
// positionId = uint256(keccak256(abi.encodePacked(collateralToken, collectionId)))
func (c *CTFClient) GetPositionId(ctx context.Context, collectionId common.Hash) (*big.Int, error) {
	data, err := c.ctfABI.Pack("getPositionId", c.collateralToken, collectionId)
	if err != nil {
		return nil, fmt.Errorf("打包getPositionId参数失败: %w", err)
	}

	result, err := c.caller.CallContract(ctx, ethereum.CallMsg{
		To:   &c.ctfAddress,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("调用getPositionId失败: %w", err)
	}

	var positionId *big.Int
	if err := c.ctfABI.UnpackIntoInterface(&positionId, "getPositionId", result); err != nil {
		return nil, fmt.Errorf("解析getPositionId结果失败: %w", err)
	}
	return positionId, nil
}

// PositionIDs 计算二元市场 YES/NO 两侧的 positionId
func (c *CTFClient) PositionIDs(ctx context.Context, conditionID string) (yes, no *big.Int, err error) {
	condition, err := parseConditionID(conditionID)
	if err != nil {
		return nil, nil, err
	}

	for i, indexSet := range fullSetPartition() {
		collectionId, err := c.GetCollectionId(ctx, common.Hash{}, condition, indexSet)
		if err != nil {
			return nil, nil, err
		}
		positionId, err := c.GetPositionId(ctx, collectionId)
		if err != nil {
			return nil, nil, err
		}
		if i == 0 {
			yes = positionId
		} else {
			no = positionId
		}
	}
	return yes, no, nil
}

// CollateralBalance 获取地址的USDC余额
func (c *CTFClient) CollateralBalance(ctx context.Context, address common.Address) (decimal.Decimal, error) {
	data, err := c.erc20ABI.Pack("balanceOf", address)
	if err != nil {
		return decimal.Zero, fmt.Errorf("打包balanceOf参数失败: %w", err)
	}

	result, err := c.caller.CallContract(ctx, ethereum.CallMsg{
		To:   &c.collateralToken,
		Data: data,
	}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("调用balanceOf失败: %w", err)
	}

	var balance *big.Int
	if err := c.erc20ABI.UnpackIntoInterface(&balance, "balanceOf", result); err != nil {
		return decimal.Zero, fmt.Errorf("解析balanceOf结果失败: %w", err)
	}
	return fromBaseUnits(balance), nil
}

// ConditionalBalance 获取地址的条件代币余额（通过positionId）
func (c *CTFClient) ConditionalBalance(ctx context.Context, address common.Address, positionId *big.Int) (decimal.Decimal, error) {
	data, err := c.erc1155ABI.Pack("balanceOf", address, positionId)
	if err != nil {
		return decimal.Zero, fmt.Errorf("打包balanceOf参数失败: %w", err)
	}

	result, err := c.caller.CallContract(ctx, ethereum.CallMsg{
		To:   &c.ctfAddress,
		Data: data,
	}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("调用balanceOf失败: %w", err)
	}

	var balance *big.Int
	if err := c.erc1155ABI.UnpackIntoInterface(&balance, "balanceOf", result); err != nil {
		return decimal.Zero, fmt.Errorf("解析balanceOf结果失败: %w", err)
	}
	return fromBaseUnits(balance), nil
}

// ValidateMergePositions 验证合并前置条件：YES/NO 余额均不低于合并数量
func (c *CTFClient) ValidateMergePositions(ctx context.Context, address common.Address, conditionID string, amount decimal.Decimal) error {
	yesPositionId, noPositionId, err := c.PositionIDs(ctx, conditionID)
	if err != nil {
		return err
	}

	yesBalance, err := c.ConditionalBalance(ctx, address, yesPositionId)
	if err != nil {
		return fmt.Errorf("检查YES余额失败: %w", err)
	}
	if yesBalance.LessThan(amount) {
		return fmt.Errorf("YES代币余额不足: 需要 %s，当前余额 %s", amount, yesBalance)
	}

	noBalance, err := c.ConditionalBalance(ctx, address, noPositionId)
	if err != nil {
		return fmt.Errorf("检查NO余额失败: %w", err)
	}
	if noBalance.LessThan(amount) {
		return fmt.Errorf("NO代币余额不足: 需要 %s，当前余额 %s", amount, noBalance)
	}

	return nil
}

// ERC20ABI ERC20标准ABI（余额检查）
const ERC20ABI = `[
	{
		"inputs": [{"name": "account", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// ERC1155ABI ERC1155标准ABI（条件代币余额检查）
const ERC1155ABI = `[
	{
		"inputs": [
			{"name": "account", "type": "address"},
			{"name": "id", "type": "uint256"}
		],
		"name": "balanceOf",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	}
]`
