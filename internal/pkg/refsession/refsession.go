package refsession

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "referral:capture:"

var ErrInvalidToken = errors.New("推荐链接已失效，请重新打开推荐链接")

// Store 保存落地页捕获的推荐关系，注册时一次性消费
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

// TTL 返回 token 有效期
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Capture 生成随机 token 并记录 sponsorID
func (s *Store) Capture(ctx context.Context, sponsorID int64) (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate referral token: %w", err)
	}
	token := hex.EncodeToString(buf)

	if err := s.rdb.Set(ctx, keyPrefix+token, sponsorID, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store referral token: %w", err)
	}
	return token, nil
}

// Consume 校验 token 并删除，防止重复使用
func (s *Store) Consume(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, ErrInvalidToken
	}
	key := keyPrefix + token

	var sponsorID int64
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return ErrInvalidToken
		}
		if err != nil {
			return fmt.Errorf("failed to get referral token: %w", err)
		}

		sponsorID, err = strconv.ParseInt(val, 10, 64)
		if err != nil {
			return ErrInvalidToken
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return 0, err
	}

	return sponsorID, nil
}
