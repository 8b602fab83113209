package safety

import (
	"context"
	"sync"

	"passkey-core/internal/model"
	"passkey-core/pkg/logger"
	"passkey-core/pkg/monitor"

	"go.uber.org/zap"
)

// Analyzer 聚合四个子检查为一个评分/结论。
// 子检查互相独立，失败的那一项不计入扣分，只标记 Partial。
type Analyzer struct {
	checker   Checker
	threshold int
}

func NewAnalyzer(checker Checker, threshold int) *Analyzer {
	return &Analyzer{
		checker:   checker,
		threshold: threshold,
	}
}

// Analyze 并发发起四个子检查并聚合。
// 任何子检查失败都不会让整个分析失败：这是给用户的参考信息，不是门禁。
func (a *Analyzer) Analyze(ctx context.Context, intent model.TransferIntent) *model.SafetyResult {
	var (
		details model.SafetyDetails
		mu      sync.Mutex
		wg      sync.WaitGroup
		partial bool
	)

	fail := func(name string, err error) {
		mu.Lock()
		partial = true
		mu.Unlock()
		logger.Warn("安全子检查失败，结果降级为部分分析",
			zap.String("check", name), zap.Error(err))
	}

	wg.Add(4)
	go func() {
		defer wg.Done()
		cd, err := a.checker.VerifyCalldata(ctx, intent)
		if err != nil {
			fail("calldata", err)
			return
		}
		mu.Lock()
		details.Calldata = cd
		mu.Unlock()
	}()
	go func() {
		defer wg.Done()
		rr, err := a.checker.CheckRecipient(ctx, intent)
		if err != nil {
			fail("recipient", err)
			return
		}
		mu.Lock()
		details.Recipient = rr
		mu.Unlock()
	}()
	go func() {
		defer wg.Done()
		sim, err := a.checker.Simulate(ctx, intent)
		if err != nil {
			fail("simulation", err)
			return
		}
		mu.Lock()
		details.Simulation = sim
		mu.Unlock()
	}()
	go func() {
		defer wg.Done()
		h, err := a.checker.CheckHistory(ctx, intent)
		if err != nil {
			fail("history", err)
			return
		}
		mu.Lock()
		details.History = h
		mu.Unlock()
	}()
	wg.Wait()

	result := Evaluate(details, partial, a.threshold)

	if monitor.Business != nil {
		monitor.Business.SafetyScore.Observe(float64(result.Score))
		if result.Partial {
			monitor.Business.SafetyPartialTotal.Inc()
		}
	}

	logger.Info("安全分析完成",
		zap.Int("score", result.Score),
		zap.Bool("is_safe", result.IsSafe),
		zap.Bool("partial", result.Partial))

	return result
}
