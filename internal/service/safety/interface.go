package safety

import (
	"context"

	"passkey-core/internal/model"
)

// Checker 四个安全子检查的抽象，外部服务实现 (internal/client.SafetyClient)。
// 单独抽象出来是为了让评分逻辑可以脱离 HTTP 测试。
type Checker interface {
	VerifyCalldata(ctx context.Context, intent model.TransferIntent) (*model.CalldataCheck, error)
	CheckRecipient(ctx context.Context, intent model.TransferIntent) (*model.RecipientRisk, error)
	Simulate(ctx context.Context, intent model.TransferIntent) (*model.SimulationCheck, error)
	CheckHistory(ctx context.Context, intent model.TransferIntent) (*model.HistoryCheck, error)
}
