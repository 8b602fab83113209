package records

import (
	"context"
	"time"

	"passkey-core/internal/model"
	"passkey-core/internal/service/mq"
	"passkey-core/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Relay 负责把本地消息表里的待发事件搬运到 MQ
type Relay struct {
	db       *gorm.DB
	producer mq.Producer
	interval time.Duration
}

func NewRelay(db *gorm.DB, producer mq.Producer) *Relay {
	return &Relay{
		db:       db,
		producer: producer,
		interval: 500 * time.Millisecond, // 500ms 轮询一次
	}
}

func (r *Relay) Start(ctx context.Context) {
	logger.Info("消息中继启动")
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("消息中继停止")
			return
		case <-ticker.C:
			r.processPending(ctx)
		}
	}
}

func (r *Relay) processPending(ctx context.Context) {
	// 每次取 50 条，避免积压时一次拉太多
	var messages []model.OutboxMessage
	if err := r.db.WithContext(ctx).Where("status = ?", "PENDING").Limit(50).Find(&messages).Error; err != nil {
		logger.Error("查询待发消息失败", zap.Error(err))
		return
	}
	if len(messages) == 0 {
		return
	}

	for _, msg := range messages {
		if err := r.producer.Publish(ctx, msg.Topic, msg.Key, msg.Payload); err != nil {
			logger.Warn("投递消息失败", zap.Uint64("id", msg.ID), zap.Error(err))
			continue
		}
		// 发送成功才置 SENT => At-least-once, 消费端需幂等 (按 session_id 去重)
		if err := r.db.WithContext(ctx).Model(&msg).Update("status", "SENT").Error; err != nil {
			logger.Warn("更新消息状态失败", zap.Uint64("id", msg.ID), zap.Error(err))
		}
	}
}
