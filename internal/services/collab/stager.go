package collab

import (
	"context"

	"github.com/redis/go-redis/v9"

	"docshub/internal/services/resource"
)

const (
	redisResourceKeyPrefix = "res:"
	redisDirtySet          = "res:dirty"
)

// Stager is the live-edit staging area: fields parked here are visible
// to join snapshots immediately and flushed to Postgres by the syncdb
// worker.
type Stager interface {
	Stage(ctx context.Context, ref resource.Ref, fields map[string]string) error
	Purge(ctx context.Context, ref resource.Ref) error
}

type redisStager struct {
	rdc *redis.Client
}

func NewRedisStager(rdc *redis.Client) Stager { return &redisStager{rdc: rdc} }

// Stage runs the collab_stage Redis Function: HSET all fields plus mark
// the resource dirty, atomically.
func (s *redisStager) Stage(ctx context.Context, ref resource.Ref, fields map[string]string) error {
	args := make([]any, 0, 1+2*len(fields))
	args = append(args, ref.Key())
	for k, v := range fields {
		args = append(args, k, v)
	}
	return s.rdc.FCall(ctx, "collab_stage",
		[]string{redisResourceKeyPrefix + ref.Key(), redisDirtySet},
		args...,
	).Err()
}

func (s *redisStager) Purge(ctx context.Context, ref resource.Ref) error {
	return s.rdc.FCall(ctx, "collab_purge",
		[]string{redisResourceKeyPrefix + ref.Key(), redisDirtySet},
		ref.Key(),
	).Err()
}
