package client

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/betbot/arbot/clob/signing"
	"github.com/betbot/arbot/clob/types"
)

// AuthConfig 认证配置
type AuthConfig struct {
	PrivateKey *ecdsa.PrivateKey
	ChainID    types.Chain
	Creds      *types.ApiKeyCreds
}

// Client CLOB 客户端（resty 传输，带有限重试与 429 退避）
type Client struct {
	host    string
	chainID types.Chain
	auth    *AuthConfig
	http    *resty.Client

	mu        sync.RWMutex
	tickSizes types.TickSizes
	negRisk   types.NegRisk
}

// NewClient 创建新的 CLOB 客户端
func NewClient(host string, chainID types.Chain, privateKey *ecdsa.PrivateKey, creds *types.ApiKeyCreds) *Client {
	host = strings.TrimSuffix(host, "/")

	// resty 会自动读取 HTTP_PROXY/HTTPS_PROXY 环境变量
	httpClient := resty.New().
		SetBaseURL(host).
		SetTimeout(15 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetRetryAfter(func(c *resty.Client, resp *resty.Response) (time.Duration, error) {
			if resp.StatusCode() == 429 {
				if ra := resp.Header().Get("Retry-After"); ra != "" {
					if d, err := time.ParseDuration(ra + "s"); err == nil {
						return d, nil
					}
				}
				return 5 * time.Second, nil
			}
			return 0, nil
		}).
		SetHeader("User-Agent", "arbot-clob").
		SetHeader("Accept", "*/*")

	return &Client{
		host:    host,
		chainID: chainID,
		auth: &AuthConfig{
			PrivateKey: privateKey,
			ChainID:    chainID,
			Creds:      creds,
		},
		http:      httpClient,
		tickSizes: make(types.TickSizes),
		negRisk:   make(types.NegRisk),
	}
}

// GetHost 获取主机地址
func (c *Client) GetHost() string {
	return c.host
}

// GetChainID 获取链 ID
func (c *Client) GetChainID() types.Chain {
	return c.chainID
}

// SetCreds 设置 API 凭证（启动时推导后注入）
func (c *Client) SetCreds(creds *types.ApiKeyCreds) {
	c.auth.Creds = creds
}

// CanL1Auth 检查是否可以进行 L1 认证
func (c *Client) CanL1Auth() error {
	if c.auth == nil || c.auth.PrivateKey == nil {
		return fmt.Errorf("L1 认证不可用: 私钥未配置")
	}
	return nil
}

// CanL2Auth 检查是否可以进行 L2 认证
func (c *Client) CanL2Auth() error {
	if c.auth == nil || c.auth.Creds == nil {
		return fmt.Errorf("L2 认证不可用: API 凭证未配置")
	}
	return c.CanL1Auth()
}

// Address 获取账号地址（从私钥计算）
func (c *Client) Address() (string, error) {
	if err := c.CanL1Auth(); err != nil {
		return "", err
	}
	return signing.GetAddressFromPrivateKey(c.auth.PrivateKey).Hex(), nil
}

// l1Headers 构建 L1 认证头
func (c *Client) l1Headers(nonce int64) (map[string]string, error) {
	h, err := signing.CreateL1Headers(c.auth.PrivateKey, c.auth.ChainID, &nonce, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create L1 headers")
	}
	return map[string]string{
		"POLY_ADDRESS":   h.PolyAddress,
		"POLY_SIGNATURE": h.PolySignature,
		"POLY_TIMESTAMP": h.PolyTimestamp,
		"POLY_NONCE":     h.PolyNonce,
	}, nil
}

// l2Headers 构建 L2 认证头
func (c *Client) l2Headers(method, requestPath string, body *string) (map[string]string, error) {
	h, err := signing.CreateL2Headers(c.auth.PrivateKey, c.auth.Creds, &types.L2HeaderArgs{
		Method:      method,
		RequestPath: requestPath,
		Body:        body,
	}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create L2 headers")
	}
	return map[string]string{
		"POLY_ADDRESS":    h.PolyAddress,
		"POLY_SIGNATURE":  h.PolySignature,
		"POLY_TIMESTAMP":  h.PolyTimestamp,
		"POLY_API_KEY":    h.PolyAPIKey,
		"POLY_PASSPHRASE": h.PolyPassphrase,
	}, nil
}

// checkResp 统一处理非 2xx 响应
func checkResp(resp *resty.Response, err error, what string) error {
	if err != nil {
		return errors.Wrap(err, what)
	}
	if !resp.IsSuccess() {
		var body any
		b := resp.Body()
		_ = json.Unmarshal(b, &body)
		if body == nil {
			body = string(b)
		}
		return errors.Errorf("%s: http %d: %v", what, resp.StatusCode(), body)
	}
	return nil
}
