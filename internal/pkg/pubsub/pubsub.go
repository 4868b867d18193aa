package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const ChannelMemberEvents = "member_events"

// 事件类型
const (
	EventCommissionCreated = "commission_created"
	EventMilestoneAchieved = "milestone_achieved"
	EventKYCReviewed       = "kyc_reviewed"
	EventPaymentUpdated    = "payment_updated"
)

// Event 推送给会员的事件，由 server 进程转发到 websocket
type Event struct {
	Type   string          `json:"type"`
	UserID int64           `json:"user_id"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// NewEvent 构造事件，data 会被序列化
func NewEvent(eventType string, userID int64, data interface{}) (*Event, error) {
	evt := &Event{Type: eventType, UserID: userID}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event data: %w", err)
		}
		evt.Data = raw
	}
	return evt, nil
}

// Publisher Redis 发布者
type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) Publish(ctx context.Context, evt *Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	return p.client.Publish(ctx, ChannelMemberEvents, data).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client *redis.Client
}

func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe 阻塞订阅，直到 ctx 取消
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*Event)) error {
	sub := s.client.Subscribe(ctx, ChannelMemberEvents)
	defer sub.Close()

	ch := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				continue
			}

			handler(&evt)
		}
	}
}
