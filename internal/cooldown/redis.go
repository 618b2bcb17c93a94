package cooldown

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/inboundly/mailcore/interfaces"
)

const keyPrefix = "mailcore:cooldown:"

// RedisStore records when an alert last went out so repeat notifications stay
// suppressed across process restarts and replicas.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

var _ interfaces.CooldownStore = (*RedisStore)(nil)

// ShouldNotify claims the key atomically with SET NX. The first caller within
// the ttl window wins; everyone else backs off until the key expires.
func (s *RedisStore) ShouldNotify(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, keyPrefix+key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "cooldown claim")
	}
	return ok, nil
}
