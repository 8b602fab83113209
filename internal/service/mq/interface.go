package mq

import "context"

// Message 代表一条通用的业务消息
type Message struct {
	ID      string // 消息ID (例如 Redis Stream ID)
	Topic   string // 主题 (例如 "wallet_events_operation")
	Key     string // 分区键 (例如 SessionID), 同样用于 Kafka Partition
	Payload []byte // 消息体 (JSON)
}

// Producer 生产者接口
// 管线只负责发布终态事件，下游 (风控、对账) 自行消费。
type Producer interface {
	// Publish 发送消息
	// key: 用于分区排序 (Partition Key), 例如 SessionID. 传空字符串则随机分区.
	Publish(ctx context.Context, topic string, key string, payload []byte) error

	// Close 关闭生产者
	Close() error
}
