package notifier

import (
	"context"
	"encoding/json"
	"fmt"
)

// Publisher 消息发布接口（同步，由 AsyncNotifier 的工作协程调用）
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// StreamClient Redis Stream 写入能力，pkg/redis.Client 实现该接口
type StreamClient interface {
	PublishStream(ctx context.Context, stream string, maxLen int64, values map[string]interface{}) (string, error)
}

// RedisPublisher 以 XADD 方式写入 Redis Stream
type RedisPublisher struct {
	client StreamClient
	stream string
	maxLen int64
}

// NewRedisPublisher 创建 Redis Stream 发布器
func NewRedisPublisher(client StreamClient, stream string, maxLen int64) *RedisPublisher {
	return &RedisPublisher{client: client, stream: stream, maxLen: maxLen}
}

func (p *RedisPublisher) Publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("序列化通知消息失败: %w", err)
	}

	_, err = p.client.PublishStream(ctx, p.stream, p.maxLen, map[string]interface{}{
		"event_id": msg.EventID,
		"action":   msg.Action,
		"payload":  string(payload),
	})
	if err != nil {
		return fmt.Errorf("写入 stream %s 失败: %w", p.stream, err)
	}
	return nil
}
