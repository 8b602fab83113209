package session

import (
	"context"

	"passkey-core/internal/client"
	"passkey-core/internal/model"
)

// 下游依赖全部用小接口注入，Controller 可以脱离网络和认证器测试。

type SafetyAnalyzer interface {
	Analyze(ctx context.Context, intent model.TransferIntent) *model.SafetyResult
}

type GasService interface {
	Estimate(ctx context.Context, intent model.TransferIntent, option model.GasOption) (*model.GasEstimate, error)
	ResolveForSubmit(ctx context.Context, intent model.TransferIntent, option model.GasOption) (*model.GasResolution, *model.GasEstimate, error)
}

type DeployGuard interface {
	EnsureDeployed(ctx context.Context, userID, address string) error
}

type Authorizer interface {
	Authorize(ctx context.Context, intent model.TransferIntent) (*client.SignedPayload, error)
	Submit(ctx context.Context, intent model.TransferIntent, payload *client.SignedPayload, method model.GasOption, sessionID string) (*client.SubmitResult, error)
}

// Recorder 终态落库/发事件 (internal/service/records.Service 实现)
type Recorder interface {
	RecordTerminal(ctx context.Context, sess *model.TransactionSession)
}
