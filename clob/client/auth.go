package client

import (
	"context"
	"net/http"

	"github.com/pkg/errors"

	"github.com/betbot/arbot/clob/types"
)

// CreateOrDeriveAPIKey 创建或推导 API 密钥（L1 方法）
// 先尝试推导现有密钥，账户没有密钥时（400）再创建新的。
func (c *Client) CreateOrDeriveAPIKey(ctx context.Context, nonce int64) (*types.ApiKeyCreds, error) {
	if err := c.CanL1Auth(); err != nil {
		return nil, err
	}

	headers, err := c.l1Headers(nonce)
	if err != nil {
		return nil, err
	}

	var raw types.ApiKeyRaw
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&raw).
		Get(EndpointDeriveAPIKey)
	if err != nil {
		return nil, errors.Wrap(err, "derive api key")
	}

	switch {
	case resp.IsSuccess():
		return credsFromRaw(&raw)
	case resp.StatusCode() == http.StatusBadRequest:
		// 没有现有密钥，创建新的
	default:
		return nil, errors.Errorf("derive api key: http %d: %s", resp.StatusCode(), resp.String())
	}

	raw = types.ApiKeyRaw{}
	resp, err = c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(map[string]any{}).
		SetResult(&raw).
		Post(EndpointCreateAPIKey)
	if err := checkResp(resp, err, "create api key"); err != nil {
		return nil, err
	}
	return credsFromRaw(&raw)
}

// DeriveAPIKey 推导现有 API 密钥
func (c *Client) DeriveAPIKey(ctx context.Context, nonce int64) (*types.ApiKeyCreds, error) {
	if err := c.CanL1Auth(); err != nil {
		return nil, err
	}

	headers, err := c.l1Headers(nonce)
	if err != nil {
		return nil, err
	}

	var raw types.ApiKeyRaw
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&raw).
		Get(EndpointDeriveAPIKey)
	if err := checkResp(resp, err, "derive api key"); err != nil {
		return nil, err
	}
	return credsFromRaw(&raw)
}

func credsFromRaw(raw *types.ApiKeyRaw) (*types.ApiKeyCreds, error) {
	if raw.ApiKey == "" || raw.Secret == "" || raw.Passphrase == "" {
		return nil, errors.New("api key response missing fields")
	}
	return &types.ApiKeyCreds{
		Key:        raw.ApiKey,
		Secret:     raw.Secret,
		Passphrase: raw.Passphrase,
	}, nil
}
