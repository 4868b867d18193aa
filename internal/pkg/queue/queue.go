package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// deadLetterSuffix 放弃重试的任务所在 list 的后缀
const deadLetterSuffix = ":dead"

// AllocationMessage 需要重新分配佣金的支付
type AllocationMessage struct {
	PaymentID  string    `json:"payment_id"`
	Attempt    int       `json:"attempt"`
	LastError  string    `json:"last_error,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Queue 佣金分配重试队列。pending list 按 LPUSH/BRPOP 先进先出，
// 放弃的任务进入 dead list 等待 reconcile 或人工处理
type Queue struct {
	rdb     *redis.Client
	pending string
	dead    string
}

func NewQueue(rdb *redis.Client, name string) *Queue {
	return &Queue{rdb: rdb, pending: name, dead: name + deadLetterSuffix}
}

func encode(msg *AllocationMessage) ([]byte, error) {
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode allocation message %s: %w", msg.PaymentID, err)
	}
	return data, nil
}

func decode(raw string) (*AllocationMessage, error) {
	var msg AllocationMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil, fmt.Errorf("decode allocation message: %w", err)
	}
	return &msg, nil
}

// Push 加入待处理队列
func (q *Queue) Push(ctx context.Context, msg *AllocationMessage) error {
	data, err := encode(msg)
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, q.pending, data).Err()
}

// Pop 阻塞等待下一条任务，超时返回 nil, nil
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*AllocationMessage, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.pending).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("pop %s: %w", q.pending, err)
	case len(res) < 2:
		return nil, nil
	}
	return decode(res[1])
}

// Length 待处理任务数
func (q *Queue) Length(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.pending).Result()
}

// DeadLetter 记录放弃重试的任务
func (q *Queue) DeadLetter(ctx context.Context, msg *AllocationMessage) error {
	data, err := encode(msg)
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, q.dead, data).Err()
}

// DeadLetters 最近放弃的 limit 条任务，新的在前
func (q *Queue) DeadLetters(ctx context.Context, limit int64) ([]*AllocationMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	raws, err := q.rdb.LRange(ctx, q.dead, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", q.dead, err)
	}
	msgs := make([]*AllocationMessage, 0, len(raws))
	for _, raw := range raws {
		msg, err := decode(raw)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// Replay 把 dead list 中的任务重新放回待处理队列，attempt 清零，返回搬运条数
func (q *Queue) Replay(ctx context.Context) (int, error) {
	moved := 0
	for {
		raw, err := q.rdb.RPop(ctx, q.dead).Result()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("replay %s: %w", q.dead, err)
		}
		msg, err := decode(raw)
		if err != nil {
			return moved, err
		}
		msg.Attempt = 1
		msg.EnqueuedAt = time.Time{}
		if err := q.Push(ctx, msg); err != nil {
			return moved, err
		}
		moved++
	}
}
