package records

import (
	"context"
	"encoding/json"

	"passkey-core/internal/event"
	"passkey-core/internal/model"
	"passkey-core/internal/service/mq"
	"passkey-core/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TopicOperationFinished 终态事件主题
const TopicOperationFinished = "wallet_events_operation"

// Service 终态审计：把到达终态的会话写成审计记录，并向 MQ 发布事件。
// 有 DB 时走 Transactional Outbox (记录和事件同事务落库，Relay 异步投递)；
// 没有 DB 时直接发 MQ，尽力而为。
type Service struct {
	db       *gorm.DB    // 可为 nil
	producer mq.Producer // 可为 nil
}

func NewService(db *gorm.DB, producer mq.Producer) *Service {
	return &Service{db: db, producer: producer}
}

// RecordTerminal 记录一个终态会话。失败只记日志，不影响会话结果。
func (s *Service) RecordTerminal(ctx context.Context, sess *model.TransactionSession) {
	evt := event.OperationFinishedEvent{
		SessionID: sess.ID,
		State:     string(sess.State),
		Recipient: sess.Intent.Recipient,
		Amount:    sess.Intent.Amount.String(),
		Currency:  sess.Intent.Currency,
		Network:   sess.Intent.Network,
	}
	if sess.Result != nil {
		evt.GasMethod = string(sess.Result.GasMethod)
		evt.OperationHash = sess.Result.OperationHash
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		logger.Error("编码终态事件失败", zap.Error(err))
		return
	}

	if s.db == nil {
		if s.producer != nil {
			if err := s.producer.Publish(ctx, TopicOperationFinished, sess.ID, payload); err != nil {
				logger.Warn("发布终态事件失败", zap.String("session_id", sess.ID), zap.Error(err))
			}
		}
		return
	}

	record := buildRecord(sess)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return err
		}
		return tx.Create(&model.OutboxMessage{
			Topic:   TopicOperationFinished,
			Key:     sess.ID,
			Payload: payload,
			Status:  "PENDING",
		}).Error
	})
	if err != nil {
		logger.Error("终态审计落库失败", zap.String("session_id", sess.ID), zap.Error(err))
	}
}

func buildRecord(sess *model.TransactionSession) *model.OperationRecord {
	record := &model.OperationRecord{
		SessionID: sess.ID,
		Recipient: sess.Intent.Recipient,
		Amount:    sess.Intent.Amount.String(),
		Currency:  sess.Intent.Currency,
		Network:   sess.Intent.Network,
		State:     string(sess.State),
	}
	if sess.Result != nil {
		record.GasMethod = string(sess.Result.GasMethod)
		record.OperationHash = sess.Result.OperationHash
		record.ErrorKind = sess.Result.ErrorKind
		record.ErrorMessage = sess.Result.ErrorMessage
	}
	if sess.Safety != nil {
		record.SafetyScore = sess.Safety.Score
	}
	return record
}
