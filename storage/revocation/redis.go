package revocation

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/wazazi/core"
	"github.com/trezcool/wazazi/core/user"
)

const keyPrefix = "revoked:"

type redisRevoker struct {
	rdb     *redis.Client
	nowFunc func() time.Time
}

var _ user.Revoker = (*redisRevoker)(nil) // interface compliance check

// OpenRedis connects to the configured redis server.
func OpenRedis(ctx context.Context, conf core.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         conf.Addr,
		Password:     conf.Password,
		DB:           conf.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return rdb, nil
}

func NewRedisRevoker(rdb *redis.Client) user.Revoker {
	return &redisRevoker{rdb: rdb, nowFunc: time.Now}
}

func (r *redisRevoker) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(r.nowFunc())
	if ttl <= 0 {
		return nil // expired anyway
	}
	return errors.Wrap(r.rdb.Set(ctx, keyPrefix+tokenID, "1", ttl).Err(), "revoking token")
}

func (r *redisRevoker) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.rdb.Exists(ctx, keyPrefix+tokenID).Result()
	if err != nil {
		return false, errors.Wrap(err, "checking revoked token")
	}
	return n > 0, nil
}
