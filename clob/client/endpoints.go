package client

// API 端点常量
const (
	EndpointTime = "/time"

	// API Key endpoints
	EndpointCreateAPIKey = "/auth/api-key"
	EndpointGetAPIKeys   = "/auth/api-keys"
	EndpointDeleteAPIKey = "/auth/api-key"
	EndpointDeriveAPIKey = "/auth/derive-api-key"

	// Markets
	EndpointGetMarkets    = "/markets"
	EndpointGetMarket     = "/market/"
	EndpointGetOrderBook  = "/book"
	EndpointGetOrderBooks = "/books"
	EndpointGetTickSize   = "/tick-size"
	EndpointGetNegRisk    = "/neg-risk"
	EndpointGetMidpoint   = "/midpoint"
	EndpointGetPrice      = "/price"

	// Order endpoints
	EndpointPostOrder     = "/order"
	EndpointCancelOrder   = "/order"
	EndpointGetOrder      = "/data/order/"
	EndpointCancelAll     = "/cancel-all"
	EndpointGetOpenOrders = "/data/orders"

	// Balance
	EndpointGetBalanceAllowance = "/balance-allowance"
)
