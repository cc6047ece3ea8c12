package txmgr

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/arbot/pkg/config"
	"github.com/betbot/arbot/pkg/logger"
)

// retryTransport 对瞬时传输错误做指数退避重试：
// 间隔 base×2ⁿ，封顶 cap，最多 MaxAttempts 次。
func retryTransport(ctx context.Context, cfg config.TxManagerConfig, op string, fn func() error) error {
	base := time.Duration(cfg.BackoffBaseSeconds) * time.Second
	ceiling := time.Duration(cfg.BackoffCapSeconds) * time.Second
	log := logger.WithField("component", "txmgr")

	delay := base
	var err error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		log.WithError(err).WithFields(logrus.Fields{
			"op":      op,
			"attempt": attempt,
			"delay":   delay.String(),
		}).Warn("传输失败，退避重试")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
		if delay > ceiling {
			delay = ceiling
		}
	}
	return errors.Wrapf(err, "%s failed after %d attempts", op, cfg.MaxAttempts)
}
