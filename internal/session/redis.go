package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "session:"
	maxTxRetries     = 5
)

// NewRedisClient は URL から Redis クライアントを作成し、疎通を確認します。
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping error: %w", err)
	}
	return rdb, nil
}

// RedisRegistry はセッションを Redis に JSON で保存します。
type RedisRegistry struct {
	rdb *redis.Client
}

// NewRedisRegistry は RedisRegistry を作成します。
func NewRedisRegistry(rdb *redis.Client) *RedisRegistry {
	return &RedisRegistry{rdb: rdb}
}

// Create はセッションを TTL 付きで保存します。
func (r *RedisRegistry) Create(ctx context.Context, record *Record, ttl time.Duration) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("record with id is required")
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	ok, err := r.rdb.SetNX(ctx, sessionKey(record.ID), payload, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("session id collision: %s", record.ID)
	}
	return nil
}

// Get はセッションを取得します。
func (r *RedisRegistry) Get(ctx context.Context, id string) (*Record, error) {
	if id == "" {
		return nil, nil
	}
	data, err := r.rdb.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Touch は最終アクセス時刻を更新します。TTL は発行時のまま維持します。
func (r *RedisRegistry) Touch(ctx context.Context, id string, at time.Time) error {
	return r.updatePartial(ctx, id, func(record *Record) {
		record.LastActivity = at
	})
}

// Delete はセッションを削除します。
func (r *RedisRegistry) Delete(ctx context.Context, id string) error {
	return r.rdb.Del(ctx, sessionKey(id)).Err()
}

func (r *RedisRegistry) updatePartial(ctx context.Context, id string, mutate func(*Record)) error {
	key := sessionKey(id)
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				// ログアウト等で消えた直後のアクセスは更新不要
				return nil
			}
			return err
		}
		var record Record
		if err := json.Unmarshal(data, &record); err != nil {
			return err
		}
		mutate(&record)
		payload, err := json.Marshal(&record)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetArgs(ctx, key, payload, redis.SetArgs{KeepTTL: true})
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("session update conflicted too many times: %s", id)
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}
