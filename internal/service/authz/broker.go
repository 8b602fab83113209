package authz

import (
	"context"
	"errors"
	"time"

	"passkey-core/internal/client"
	"passkey-core/internal/model"
	"passkey-core/pkg/errno"
	"passkey-core/pkg/logger"
	"passkey-core/pkg/monitor"

	"go.uber.org/zap"
)

// ChallengeIssuer 挑战签发服务 (client.ChallengeClient 实现)
type ChallengeIssuer interface {
	Request(ctx context.Context, intent model.TransferIntent) (*model.AuthorizationChallenge, error)
}

// Authenticator 平台认证器 (client.AuthenticatorClient 实现)
type Authenticator interface {
	Sign(ctx context.Context, challenge *model.AuthorizationChallenge) (*client.SignedPayload, error)
}

// Submitter 链提交端点 (client.BundlerClient 实现)
type Submitter interface {
	Submit(ctx context.Context, intent model.TransferIntent, payload *client.SignedPayload, method model.GasOption, idempotencyKey string) (*client.SubmitResult, error)
}

// Broker 负责：签发挑战、驱动全系统唯一的认证器仪式、提交签名结果。
type Broker struct {
	issuer        ChallengeIssuer
	authenticator Authenticator
	submitter     Submitter
	ceremonyLock  *CeremonyLock
	timeout       time.Duration // 仪式上限，平台认证器惯例 60s
}

func NewBroker(issuer ChallengeIssuer, authenticator Authenticator, submitter Submitter, lock *CeremonyLock, timeout time.Duration) *Broker {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Broker{
		issuer:        issuer,
		authenticator: authenticator,
		submitter:     submitter,
		ceremonyLock:  lock,
		timeout:       timeout,
	}
}

// RequestChallenge 签发一个绑定意图内容的单次挑战
func (b *Broker) RequestChallenge(ctx context.Context, intent model.TransferIntent) (*model.AuthorizationChallenge, error) {
	return b.issuer.Request(ctx, intent)
}

// Authorize 走完整的授权流程：抢锁 → 签发挑战 → 仪式 → 释放锁。
// 锁在函数返回时必然释放 (defer)，无论成功、失败、取消还是超时。
// 锁被占用时快速失败返回 retryable，绝不排队。
func (b *Broker) Authorize(ctx context.Context, intent model.TransferIntent) (*client.SignedPayload, error) {
	guard := b.ceremonyLock.TryAcquire()
	if guard == nil {
		if monitor.Business != nil {
			monitor.Business.CeremonyLockContended.Inc()
		}
		return nil, errno.ErrCeremonyBusy
	}
	defer guard.Release()

	challenge, err := b.RequestChallenge(ctx, intent)
	if err != nil {
		return nil, err
	}
	if challenge.Expired(time.Now()) {
		return nil, errno.ErrChallengeExpired
	}

	return b.PerformCeremony(ctx, challenge)
}

// PerformCeremony 调起平台认证器。
// 用户取消是可恢复结果 (回到确认页，不是终态错误)；
// 其余认证器错误映射为带用户文案的终态错误。
func (b *Broker) PerformCeremony(ctx context.Context, challenge *model.AuthorizationChallenge) (*client.SignedPayload, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	start := time.Now()
	payload, err := b.authenticator.Sign(ctx, challenge)
	if monitor.Business != nil {
		monitor.Business.CeremonyDuration.Observe(time.Since(start).Seconds())
	}

	if err != nil {
		return nil, mapCeremonyError(err)
	}
	return payload, nil
}

func mapCeremonyError(err error) error {
	var ce *client.CeremonyError
	if errors.As(err, &ce) {
		switch ce.Kind {
		case "cancelled":
			return errno.ErrCeremonyCancelled
		case "invalid_state":
			return errno.ErrAuthInvalidState
		case "security":
			return errno.ErrAuthInsecure
		default:
			// generic → 透传认证器的原始消息
			return errno.ErrAuthFailed.WithMessage(ce.Error())
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		// 超时按可恢复处理，不能让用户面对一个挂死的流程
		return errno.ErrCeremonyTimeout
	}
	if errors.Is(err, context.Canceled) {
		return errno.ErrCeremonyCancelled
	}
	return errno.ErrAuthFailed.WithMessage(err.Error())
}

// Submit 提交签名结果。sessionID 作为幂等键随请求携带，
// 重试导致的重复提交由接收服务识别并丢弃。
// 失败时这里不自动重试：旧挑战单次有效，必须由 Controller 重新签发。
func (b *Broker) Submit(ctx context.Context, intent model.TransferIntent, payload *client.SignedPayload, method model.GasOption, sessionID string) (*client.SubmitResult, error) {
	result, err := b.submitter.Submit(ctx, intent, payload, method, sessionID)
	if err != nil {
		logger.Warn("链提交失败", zap.String("session_id", sessionID), zap.Error(err))
		return nil, err
	}
	logger.Info("链提交成功",
		zap.String("session_id", sessionID),
		zap.String("operation_hash", result.OperationHash))
	return result, nil
}
