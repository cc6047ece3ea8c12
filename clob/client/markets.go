package client

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/betbot/arbot/clob/types"
)

// GetMarkets 获取市场列表（单页，cursor 为空表示第一页）
func (c *Client) GetMarkets(ctx context.Context, cursor string) (*types.MarketsResponse, error) {
	req := c.http.R().SetContext(ctx)
	if cursor != "" {
		req.SetQueryParam("next_cursor", cursor)
	}

	var page types.MarketsResponse
	resp, err := req.SetResult(&page).Get(EndpointGetMarkets)
	if err := checkResp(resp, err, "get markets"); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetAllMarkets 拉取全部市场（按 cursor 翻页直到 "LTE=" 结束标记）
func (c *Client) GetAllMarkets(ctx context.Context) ([]types.ClobMarket, error) {
	var all []types.ClobMarket
	cursor := ""
	for {
		page, err := c.GetMarkets(ctx, cursor)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Data...)
		// "LTE=" 是 base64 的 "-1"，表示最后一页
		if page.NextCursor == "" || page.NextCursor == "LTE=" {
			break
		}
		cursor = page.NextCursor
	}
	return all, nil
}

// GetMarket 获取单个市场
func (c *Client) GetMarket(ctx context.Context, conditionID string) (*types.ClobMarket, error) {
	var market types.ClobMarket
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&market).
		Get(EndpointGetMarket + conditionID)
	if err := checkResp(resp, err, "get market"); err != nil {
		return nil, err
	}
	return &market, nil
}

// GetOrderBook 获取订单簿
func (c *Client) GetOrderBook(ctx context.Context, tokenID string) (*types.OrderBookSummary, error) {
	var book types.OrderBookSummary
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("token_id", tokenID).
		SetResult(&book).
		Get(EndpointGetOrderBook)
	if err := checkResp(resp, err, "get order book"); err != nil {
		return nil, err
	}
	return &book, nil
}

// GetOrderBooks 批量获取订单簿
func (c *Client) GetOrderBooks(ctx context.Context, params []types.BookParams) ([]types.OrderBookSummary, error) {
	body := make([]map[string]string, 0, len(params))
	for _, p := range params {
		body = append(body, map[string]string{"token_id": p.TokenID})
	}

	var books []types.OrderBookSummary
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&books).
		Post(EndpointGetOrderBooks)
	if err := checkResp(resp, err, "get order books"); err != nil {
		return nil, err
	}
	return books, nil
}

// GetTickSize 获取代币价格精度（带缓存，精度不会变更）
func (c *Client) GetTickSize(ctx context.Context, tokenID string) (types.TickSize, error) {
	c.mu.RLock()
	ts, ok := c.tickSizes[tokenID]
	c.mu.RUnlock()
	if ok {
		return ts, nil
	}

	var result struct {
		MinimumTickSize float64 `json:"minimum_tick_size"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("token_id", tokenID).
		SetResult(&result).
		Get(EndpointGetTickSize)
	if err := checkResp(resp, err, "get tick size"); err != nil {
		return "", err
	}

	ts = types.TickSize(fmt.Sprintf("%g", result.MinimumTickSize))
	switch ts {
	case types.TickSize01, types.TickSize001, types.TickSize0001, types.TickSize00001:
	default:
		return "", errors.Errorf("unexpected tick size %q for token %s", ts, tokenID)
	}

	c.mu.Lock()
	c.tickSizes[tokenID] = ts
	c.mu.Unlock()
	return ts, nil
}

// GetNegRisk 查询代币是否属于 neg-risk 市场（带缓存）
func (c *Client) GetNegRisk(ctx context.Context, tokenID string) (bool, error) {
	c.mu.RLock()
	nr, ok := c.negRisk[tokenID]
	c.mu.RUnlock()
	if ok {
		return nr, nil
	}

	var result struct {
		NegRisk bool `json:"neg_risk"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("token_id", tokenID).
		SetResult(&result).
		Get(EndpointGetNegRisk)
	if err := checkResp(resp, err, "get neg risk"); err != nil {
		return false, err
	}

	c.mu.Lock()
	c.negRisk[tokenID] = result.NegRisk
	c.mu.Unlock()
	return result.NegRisk, nil
}

// GetBalanceAllowance 获取余额和授权
func (c *Client) GetBalanceAllowance(ctx context.Context, params *types.BalanceAllowanceParams) (*types.BalanceAllowanceResponse, error) {
	if err := c.CanL2Auth(); err != nil {
		return nil, err
	}

	queryParams := map[string]string{
		"asset_type": string(params.AssetType),
	}
	if params.TokenID != nil {
		queryParams["token_id"] = *params.TokenID
	}
	if params.SignatureType != nil {
		queryParams["signature_type"] = fmt.Sprintf("%d", int(*params.SignatureType))
	}

	headers, err := c.l2Headers("GET", EndpointGetBalanceAllowance, nil)
	if err != nil {
		return nil, err
	}

	var balance types.BalanceAllowanceResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetQueryParams(queryParams).
		SetResult(&balance).
		Get(EndpointGetBalanceAllowance)
	if err := checkResp(resp, err, "get balance allowance"); err != nil {
		return nil, err
	}
	return &balance, nil
}
