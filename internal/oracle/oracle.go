package oracle

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/arbot/pkg/logger"
)

// Advice 决策建议
type Advice struct {
	Approve    bool    `json:"approve"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// Client 外部决策顾问客户端。
// 顾问只能否决边缘机会，任何失败（超时、网络、解析）都等价于跳过，
// 绝不阻塞交易主路径。
type Client struct {
	http    *resty.Client
	timeout time.Duration
	log     *logrus.Entry
}

// Config 顾问配置
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewClient 创建顾问客户端
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		httpClient.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}

	return &Client{
		http:    httpClient,
		timeout: cfg.Timeout,
		log:     logger.WithField("component", "oracle"),
	}
}

// Advise 请求一次决策建议。超时上限为配置的 timeout，
// 调用方必须把 error 当作“跳过”处理，不得当作拒绝。
func (c *Client) Advise(ctx context.Context, prompt string) (*Advice, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var advice Advice
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"prompt": prompt}).
		SetResult(&advice).
		Post("/advise")
	if err != nil {
		return nil, errors.Wrap(err, "oracle request")
	}
	if !resp.IsSuccess() {
		return nil, errors.Errorf("oracle: http %d", resp.StatusCode())
	}

	c.log.WithFields(logrus.Fields{
		"approve":    advice.Approve,
		"confidence": advice.Confidence,
	}).Debug("顾问应答")
	return &advice, nil
}
