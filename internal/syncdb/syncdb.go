package syncdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	dirtySet   = "res:dirty"
	hashPrefix = "res:"

	// staged state failing this many consecutive flushes is discarded
	// so one unwritable row cannot hold up the dirty set forever
	maxRowFailures = 5
)

// Run flushes staged live edits ("res:<kind>:<id>" hashes marked dirty)
// into Postgres on a fixed interval. Broadcast already happened; this is
// the asynchronous, debounced half of the persistence policy. Flush
// failures are logged and retried on the next tick, never surfaced to
// connected clients.
func Run(ctx context.Context, rdc *redis.Client, db *sql.DB, interval time.Duration) {
	f := &flusher{rdc: rdc, db: db, fails: make(map[string]int)}
	tk := time.NewTicker(interval)
	go func() {
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				f.flushOnce(ctx)
			}
		}
	}()
}

type flusher struct {
	rdc *redis.Client
	db  *sql.DB

	// consecutive flush failures per dirty-set member
	fails map[string]int
}

type rowResult int

const (
	rowFlushed rowResult = iota
	rowGone
	rowFailed
)

func (f *flusher) flushOnce(ctx context.Context) {
	members, err := f.rdc.SMembers(ctx, dirtySet).Result()
	if err != nil || len(members) == 0 {
		return
	}

	// fetch all staged hashes in one pipelined round-trip
	pipe := f.rdc.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(members))
	for i, m := range members {
		cmds[i] = pipe.HGetAll(ctx, hashPrefix+m)
	}
	if _, err = pipe.Exec(ctx); err != nil {
		zap.L().Error("syncdb.pipeline", zap.Error(err))
		return
	}

	// Rows are flushed one statement each, so a row Postgres rejects
	// cannot drag the rest of the tick down with it.
	flushed := make([]string, 0, len(members))
	for i, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue // key purged between SMEMBERS and HGETALL
		}

		switch f.flushRow(ctx, members[i], data) {
		case rowFlushed:
			// Hash stays behind as the join-snapshot fast path; only
			// the dirty mark goes.
			delete(f.fails, members[i])
			flushed = append(flushed, members[i])
		case rowGone:
			// Resource deleted while the room was live, or the member
			// is garbage. Drop the stale staged state outright.
			delete(f.fails, members[i])
			_ = f.rdc.Del(ctx, hashPrefix+members[i]).Err()
			flushed = append(flushed, members[i])
		case rowFailed:
			f.fails[members[i]]++
			if f.fails[members[i]] < maxRowFailures {
				continue // keep the dirty mark, retry next tick
			}
			zap.L().Error("syncdb.row_discarded",
				zap.String("res", members[i]), zap.Int("failures", f.fails[members[i]]))
			delete(f.fails, members[i])
			_ = f.rdc.Del(ctx, hashPrefix+members[i]).Err()
			flushed = append(flushed, members[i])
		}
	}

	// Clear dirty marks only after the row landed (or was discarded).
	if len(flushed) > 0 {
		_ = f.rdc.SRem(ctx, dirtySet, toAny(flushed)...).Err()
	}
}

// hash field -> resources column, in fixed statement order
var stagedColumns = []struct{ field, column string }{
	{"title", "title"},
	{"content", "content"},
	{"leb", "last_edited_by"},
}

// flushRow writes one staged hash to its row. The SET clause is built
// from the fields actually present in the hash: a staged empty string is
// a deliberate clear and must land as-is, not be skipped as absent.
func (f *flusher) flushRow(ctx context.Context, member string, data map[string]string) rowResult {
	kind, id, ok := strings.Cut(member, ":")
	if !ok {
		return rowGone
	}

	sets := make([]string, 0, len(stagedColumns)+1)
	args := []any{kind, id}
	for _, c := range stagedColumns {
		if v, present := data[c.field]; present {
			args = append(args, v)
			sets = append(sets, fmt.Sprintf("%s = $%d", c.column, len(args)))
		}
	}
	if len(sets) == 0 {
		return rowGone
	}
	sets = append(sets, "updated_at = now()")

	q := "UPDATE resources SET " + strings.Join(sets, ", ") + " WHERE kind = $1 AND id = $2"
	res, err := f.db.ExecContext(ctx, q, args...)
	if err != nil {
		zap.L().Error("syncdb.update", zap.String("res", member), zap.Error(err))
		return rowFailed
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return rowGone
	}
	return rowFlushed
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
