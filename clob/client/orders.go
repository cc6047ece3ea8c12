package client

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/betbot/arbot/clob/types"
)

// CreateOrder 构建并签名订单（不提交）
func (c *Client) CreateOrder(ctx context.Context, userOrder *types.UserOrder, options *types.CreateOrderOptions) (*types.SignedOrder, error) {
	if err := c.CanL1Auth(); err != nil {
		return nil, err
	}

	opts := options
	if opts == nil {
		opts = &types.CreateOrderOptions{}
	}
	if opts.TickSize == "" {
		ts, err := c.GetTickSize(ctx, userOrder.TokenID)
		if err != nil {
			return nil, err
		}
		opts.TickSize = ts
	}
	if opts.NegRisk == nil {
		nr, err := c.GetNegRisk(ctx, userOrder.TokenID)
		if err != nil {
			return nil, err
		}
		opts.NegRisk = &nr
	}

	builder := NewOrderBuilder(c, types.SignatureTypeBrowser, "")
	return builder.BuildOrder(userOrder, opts)
}

// PostOrder 提交已签名订单
// L2 签名基于序列化后的请求体，因此请求体必须与签名时的字节完全一致。
func (c *Client) PostOrder(ctx context.Context, order *types.SignedOrder, orderType types.OrderType) (*types.OrderResponse, error) {
	if err := c.CanL2Auth(); err != nil {
		return nil, err
	}

	newOrder := &types.NewOrder{
		Order:     *order,
		Owner:     c.auth.Creds.Key,
		OrderType: orderType,
	}

	bodyBytes, err := json.Marshal(newOrder)
	if err != nil {
		return nil, errors.Wrap(err, "marshal order")
	}
	body := string(bodyBytes)

	headers, err := c.l2Headers("POST", EndpointPostOrder, &body)
	if err != nil {
		return nil, err
	}

	var result types.OrderResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&result).
		Post(EndpointPostOrder)
	if err := checkResp(resp, err, "post order"); err != nil {
		return nil, err
	}
	if !result.Success {
		return &result, errors.Errorf("order rejected: %s", result.ErrorMsg)
	}
	return &result, nil
}

// PlaceOrder 构建、签名并提交订单
func (c *Client) PlaceOrder(ctx context.Context, userOrder *types.UserOrder, orderType types.OrderType) (*types.OrderResponse, error) {
	signed, err := c.CreateOrder(ctx, userOrder, nil)
	if err != nil {
		return nil, err
	}
	return c.PostOrder(ctx, signed, orderType)
}

// GetOrder 查询订单状态
func (c *Client) GetOrder(ctx context.Context, orderID string) (*types.OpenOrder, error) {
	if err := c.CanL2Auth(); err != nil {
		return nil, err
	}

	requestPath := EndpointGetOrder + orderID
	headers, err := c.l2Headers("GET", requestPath, nil)
	if err != nil {
		return nil, err
	}

	var order types.OpenOrder
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&order).
		Get(requestPath)
	if err := checkResp(resp, err, "get order"); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOpenOrders 查询开放订单
func (c *Client) GetOpenOrders(ctx context.Context, market string) ([]types.OpenOrder, error) {
	if err := c.CanL2Auth(); err != nil {
		return nil, err
	}

	headers, err := c.l2Headers("GET", EndpointGetOpenOrders, nil)
	if err != nil {
		return nil, err
	}

	req := c.http.R().SetContext(ctx).SetHeaders(headers)
	if market != "" {
		req.SetQueryParam("market", market)
	}

	var result types.OpenOrdersAPIResponse
	resp, err := req.SetResult(&result).Get(EndpointGetOpenOrders)
	if err := checkResp(resp, err, "get open orders"); err != nil {
		return nil, err
	}
	if len(result.Data) == 0 {
		// 部分部署直接返回订单数组
		var plain []types.OpenOrder
		if jerr := json.Unmarshal(resp.Body(), &plain); jerr == nil && len(plain) > 0 {
			return plain, nil
		}
	}
	return result.Data, nil
}

// CancelOrder 取消订单
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if err := c.CanL2Auth(); err != nil {
		return err
	}

	bodyBytes, err := json.Marshal(map[string]string{"orderID": orderID})
	if err != nil {
		return errors.Wrap(err, "marshal cancel request")
	}
	body := string(bodyBytes)

	headers, err := c.l2Headers("DELETE", EndpointCancelOrder, &body)
	if err != nil {
		return err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Delete(EndpointCancelOrder)
	return checkResp(resp, err, "cancel order")
}

// CancelAll 取消全部订单
func (c *Client) CancelAll(ctx context.Context) error {
	if err := c.CanL2Auth(); err != nil {
		return err
	}

	headers, err := c.l2Headers("DELETE", EndpointCancelAll, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		Delete(EndpointCancelAll)
	return checkResp(resp, err, "cancel all orders")
}

// IsOrderFilled 根据订单状态判断是否完全成交
func IsOrderFilled(order *types.OpenOrder) bool {
	switch strings.ToLower(order.Status) {
	case "matched", "filled":
		return true
	}
	return order.SizeMatched != "" && order.SizeMatched == order.OriginalSize
}
