package gas

import (
	"context"
	"fmt"

	"passkey-core/internal/client"
	"passkey-core/internal/model"
	"passkey-core/pkg/errno"
	"passkey-core/pkg/logger"
	"passkey-core/pkg/monitor"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Quoter 链服务的报价抽象 (internal/client.GasClient 实现)
type Quoter interface {
	Quote(ctx context.Context, intent model.TransferIntent, option model.GasOption) (*client.GasQuote, error)
}

// fallbackOrder 默认 (sponsored) 选项的级联回退顺序。
// 顺序是协议的一部分：赞助被拒 → USDC → 原生币。
var fallbackOrder = []model.GasOption{model.GasSponsored, model.GasUSDC, model.GasETH}

// Resolver 费用支付方式的选择与估算
type Resolver struct {
	quoter       Quoter
	epsilon      decimal.Decimal
	highCostUSD  decimal.Decimal
	highGasLimit uint64
}

func NewResolver(quoter Quoter, epsilon, highCostUSD decimal.Decimal, highGasLimit uint64) *Resolver {
	return &Resolver{
		quoter:       quoter,
		epsilon:      epsilon,
		highCostUSD:  highCostUSD,
		highGasLimit: highGasLimit,
	}
}

// Estimate 为 review 阶段做估算。
// gasOption 或意图变化后必须重新调用；旧估算整体丢弃，不做合并。
// 注意估算只是参考值：sponsored 选项在提交时刻可能触发回退，
// 实际支付方式以 ResolveForSubmit 的结果为准。
func (r *Resolver) Estimate(ctx context.Context, intent model.TransferIntent, option model.GasOption) (*model.GasEstimate, error) {
	if option == model.GasSponsored {
		// 对默认选项按回退链给出当前时刻最可能的方式
		resolution, estimate, err := r.resolveChain(ctx, intent)
		if err != nil {
			return nil, err
		}
		logger.Debug("估算走回退链", zap.String("method", string(resolution.Method)))
		return estimate, nil
	}

	quote, err := r.quoter.Quote(ctx, intent, option)
	if err != nil {
		return nil, err
	}
	if !quote.Approved {
		return nil, errno.InternalServerError.WithMessage(
			fmt.Sprintf("支付方式 %s 不可用: %s", option, quote.Reason))
	}
	return r.buildEstimate(quote), nil
}

// ResolveForSubmit 在提交时刻决定实际支付方式。
// 回退只对 sponsored 选项生效，且只在此时评估一次：
// review 阶段的估算是建议性的，提交那一刻情况可能已经改变。
// 返回终选方式及完整的尝试轨迹，便于审计。
func (r *Resolver) ResolveForSubmit(ctx context.Context, intent model.TransferIntent, option model.GasOption) (*model.GasResolution, *model.GasEstimate, error) {
	if option != model.GasSponsored {
		// 用户显式指定的方式不做回退
		quote, err := r.quoter.Quote(ctx, intent, option)
		if err != nil {
			return nil, nil, err
		}
		attempt := model.GasAttempt{Method: option}
		if !quote.Approved {
			attempt.Rejected = true
			attempt.Reason = quote.Reason
			return nil, nil, errno.ErrSubmitRejected.WithMessage(
				fmt.Sprintf("支付方式 %s 不可用: %s", option, quote.Reason))
		}
		if insufficient(quote) {
			return nil, nil, errno.ErrSubmitRejected.WithMessage(
				fmt.Sprintf("%s 余额不足以支付费用", quote.FeeCurrency))
		}
		resolution := &model.GasResolution{Method: option, Attempts: []model.GasAttempt{attempt}}
		r.record(resolution)
		return resolution, r.buildEstimate(quote), nil
	}

	resolution, estimate, err := r.resolveChain(ctx, intent)
	if err != nil {
		return nil, nil, err
	}
	r.record(resolution)
	return resolution, estimate, nil
}

// resolveChain 依次尝试 sponsored → usdc → eth
func (r *Resolver) resolveChain(ctx context.Context, intent model.TransferIntent) (*model.GasResolution, *model.GasEstimate, error) {
	var attempts []model.GasAttempt

	for _, method := range fallbackOrder {
		quote, err := r.quoter.Quote(ctx, intent, method)
		if err != nil {
			// 报价服务本身失败是调用错误，不算一次"被拒"
			return nil, nil, err
		}

		if !quote.Approved {
			attempts = append(attempts, model.GasAttempt{
				Method: method, Rejected: true, Reason: quote.Reason,
			})
			continue
		}
		if method != model.GasSponsored && insufficient(quote) {
			attempts = append(attempts, model.GasAttempt{
				Method: method, Rejected: true,
				Reason: fmt.Sprintf("%s 余额不足", quote.FeeCurrency),
			})
			continue
		}

		attempts = append(attempts, model.GasAttempt{Method: method})
		return &model.GasResolution{Method: method, Attempts: attempts},
			r.buildEstimate(quote), nil
	}

	return nil, nil, errno.ErrSubmitRejected.WithMessage("没有可用的费用支付方式")
}

// insufficient 余额不足以覆盖估算费用
func insufficient(q *client.GasQuote) bool {
	return q.Balance.LessThan(q.FeeAmount)
}

func (r *Resolver) buildEstimate(q *client.GasQuote) *model.GasEstimate {
	est := &model.GasEstimate{
		FeeAmount:        q.FeeAmount,
		FeeCurrency:      q.FeeCurrency,
		EstimatedCostUSD: q.EstimatedCostUSD,
		GasLimit:         q.GasLimit,
	}
	// 异常高费用只是 UI 预警，不拦截
	if est.EstimatedCostUSD.GreaterThanOrEqual(r.highCostUSD) || est.GasLimit >= r.highGasLimit {
		est.HighCost = true
	}
	return est
}

func (r *Resolver) record(res *model.GasResolution) {
	if monitor.Business != nil {
		monitor.Business.GasFallbackTotal.WithLabelValues(string(res.Method)).Inc()
	}
}
