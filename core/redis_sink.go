package core

import (
	"context"
	"fmt"
	"time"

	"github.com/encodeous/trustmesh/state"
	"github.com/redis/go-redis/v9"
)

// RedisViewSink mirrors the global trust view into a redis hash keyed by node id.
type RedisViewSink struct {
	client *redis.Client
	key    string
}

func NewRedisViewSink(addr, key string) *RedisViewSink {
	return &RedisViewSink{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		key:    key,
	}
}

func (s *RedisViewSink) Publish(ctx context.Context, at time.Duration, changes []ViewChange) error {
	ctx, cancel := context.WithTimeout(ctx, state.RedisOpTimeout)
	defer cancel()
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, c := range changes {
			pipe.HSet(ctx, s.key, fmt.Sprint(c.Id), state.FormatScore(c.Score))
		}
		pipe.Set(ctx, s.key+":time", state.FormatSeconds(at.Seconds()), 0)
		return nil
	})
	return err
}

// Load reads the mirrored view back.
func (s *RedisViewSink) Load(ctx context.Context) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, state.RedisOpTimeout)
	defer cancel()
	return s.client.HGetAll(ctx, s.key).Result()
}

func (s *RedisViewSink) Close() error {
	return s.client.Close()
}
