package domain

import "errors"

var (
	// ErrMarketIncomplete 快照缺少必要字段
	ErrMarketIncomplete = errors.New("market snapshot incomplete")
	// ErrMarketExpired 市场已过截止时间
	ErrMarketExpired = errors.New("market past deadline")
)
