package syncnotify

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"docshub/internal/notify"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Run tails the notification stream and persists every entry. The sink
// side is fire-and-forget; durability happens here, off the hot path.
func Run(ctx context.Context, rdc *redis.Client, db *sql.DB) {
	go func() {
		lastID := "0-0"
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			// block up to 2 s for new entries
			res, err := rdc.XRead(ctx, &redis.XReadArgs{
				Streams: []string{notify.Stream, lastID},
				Count:   100,
				Block:   2000 * time.Millisecond,
			}).Result()
			if err != nil && err != redis.Nil {
				zap.L().Warn("syncnotify.xread", zap.Error(err))
				time.Sleep(time.Second)
				continue
			}
			if len(res) == 0 {
				continue
			}
			entries := res[0].Messages
			if err := persist(ctx, db, entries); err != nil {
				zap.L().Error("syncnotify.persist", zap.Error(err))
			}
			lastID = entries[len(entries)-1].ID
		}
	}()
}

func persist(ctx context.Context, db *sql.DB, msgs []redis.XMessage) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	const ins = `INSERT INTO notifications (recipient_id, kind, message, created_at)
	             VALUES ($1, $2, $3, to_timestamp($4))`
	for _, m := range msgs {
		rid, _ := m.Values["rid"].(string)
		kind, _ := m.Values["kind"].(string)
		msg, _ := m.Values["msg"].(string)
		at, _ := m.Values["at"].(string)
		if rid == "" {
			continue
		}
		ts, _ := strconv.ParseInt(at, 10, 64)
		if _, err := tx.ExecContext(ctx, ins, rid, kind, msg, ts); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
