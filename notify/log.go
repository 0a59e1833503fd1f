// Package notify delivers timeoff.Message values to people.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/warp/leave-engine/timeoff"
)

// LogNotifier writes every message to a zap logger instead of sending it.
// It is the default driver for development and tests.
type LogNotifier struct {
	logger *zap.Logger
}

var _ timeoff.Notifier = (*LogNotifier)(nil)

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.Named("notify")}
}

func (n *LogNotifier) Notify(_ context.Context, msg timeoff.Message) error {
	n.logger.Info("notification",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body),
	)
	return nil
}
