package notify

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const Stream = "notif_stream"

// Sink delivers out-of-session notifications (share grants, comments).
// Fire-and-forget: delivery failures are logged, never returned.
type Sink interface {
	Notify(ctx context.Context, recipientID, kind, message string)
}

type redisSink struct {
	rdc *redis.Client
}

func NewRedisSink(rdc *redis.Client) Sink { return &redisSink{rdc: rdc} }

func (s *redisSink) Notify(ctx context.Context, recipientID, kind, message string) {
	err := s.rdc.XAdd(ctx, &redis.XAddArgs{
		Stream: Stream,
		Values: map[string]any{
			"rid":  recipientID,
			"kind": kind,
			"msg":  message,
			"at":   time.Now().Unix(),
		},
	}).Err()
	if err != nil {
		zap.L().Warn("notify.xadd", zap.Error(err))
	}
}

// Discard is a Sink that drops everything; used in tests.
type Discard struct{}

func (Discard) Notify(context.Context, string, string, string) {}
