package session

import (
	"context"
	"errors"

	"passkey-core/internal/model"
	"passkey-core/pkg/errno"
	"passkey-core/pkg/logger"

	"go.uber.org/zap"
)

// Advance 按当前状态把会话向前推一步。
//
// 重入规则：对不在预期源状态的会话 (含终态) 调用是 no-op —— UI 重渲染
// 触发的重复 advance 不会产生重复副作用 (不会签发第二个挑战)。
//
//	draft      → reviewing  (后台发起安全分析 + 费用估算，互相独立、不阻塞)
//	reviewing  → ...        (本次调用即用户确认，串行驱动
//	                         deploying → authorizing → submitting 直到终态)
//	deploying  → ...        (上次部署确认被链延迟打断后的重试入口)
//
// 可恢复/可重试的失败不产生终态：会话停在能安全重试的状态，错误原样返回。
func (c *Controller) Advance(id string) (*model.TransactionSession, error) {
	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok {
		c.mu.Unlock()
		return nil, errno.ErrSessionNotFound
	}

	if e.advancing || e.sess.State.IsTerminal() {
		// 重入: no-op，返回当前快照
		snap := e.sess
		c.mu.Unlock()
		return &snap, nil
	}

	switch e.sess.State {
	case model.StateDraft:
		e.sess.State = model.StateReviewing
		ctx := e.ctx
		needSafety := e.sess.Safety == nil || e.sess.SafetyFor != e.sess.Intent.Fingerprint()
		snap := e.sess
		c.mu.Unlock()

		// 信息性检查，非阻塞；失败不影响状态机
		if needSafety {
			go c.fetchSafety(ctx, id)
		}
		go c.fetchEstimate(ctx, id)
		return &snap, nil

	case model.StateReviewing, model.StateDeploying:
		e.advancing = true
		ctx := e.ctx
		c.mu.Unlock()

		err := c.runConfirmed(ctx, id)

		c.mu.Lock()
		e.advancing = false
		snap := e.sess
		c.mu.Unlock()
		return &snap, err

	default:
		// authorizing/submitting 只会在 runConfirmed 内部出现，
		// 外部调用赶上这些瞬态一律视为重入
		snap := e.sess
		c.mu.Unlock()
		return &snap, nil
	}
}

// fetchSafety 后台执行安全分析并写回会话。
// 结果按意图指纹缓存：UI 重新可见后若意图未变，不会重复发起。
func (c *Controller) fetchSafety(ctx context.Context, id string) {
	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok {
		c.mu.Unlock()
		return
	}
	intent := e.sess.Intent
	c.mu.Unlock()

	result := c.analyzer.Analyze(ctx, intent)
	if ctx.Err() != nil {
		return // 会话已取消/不可见，丢弃
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[id]; ok && !e.sess.State.IsTerminal() {
		e.sess.Safety = result
		e.sess.SafetyFor = intent.Fingerprint()
	}
}

func (c *Controller) fetchEstimate(ctx context.Context, id string) {
	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok {
		c.mu.Unlock()
		return
	}
	intent := e.sess.Intent
	option := e.sess.GasOption
	c.mu.Unlock()

	estimate, err := c.gas.Estimate(ctx, intent, option)
	if err != nil {
		logger.Warn("费用估算失败", zap.String("session_id", id), zap.Error(err))
		return
	}
	if ctx.Err() != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[id]; ok && !e.sess.State.IsTerminal() {
		// 旧估算整体替换，不合并
		e.sess.Estimate = estimate
	}
}

// SetGasOption 用户在 review 阶段切换支付方式。
// 旧估算立即作废并重新估算。
func (c *Controller) SetGasOption(id string, option model.GasOption) (*model.TransactionSession, error) {
	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok {
		c.mu.Unlock()
		return nil, errno.ErrSessionNotFound
	}
	if e.sess.State != model.StateReviewing && e.sess.State != model.StateDraft {
		snap := e.sess
		c.mu.Unlock()
		return &snap, nil
	}
	e.sess.GasOption = option
	e.sess.Estimate = nil
	ctx := e.ctx
	snap := e.sess
	c.mu.Unlock()

	go c.fetchEstimate(ctx, id)
	return &snap, nil
}

// runConfirmed 用户确认后的主链路：部署预检 → 授权仪式 → 提交。
// submitting 之前没有任何资金侧副作用，中途取消都是安全的。
func (c *Controller) runConfirmed(ctx context.Context, id string) error {
	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok {
		c.mu.Unlock()
		return errno.ErrSessionNotFound
	}
	intent := e.sess.Intent
	gasOption := e.sess.GasOption
	needDeploy := !c.deployConfirmed && !e.sess.DeploymentChecked
	e.sess.State = model.StateDeploying
	c.mu.Unlock()

	// 1. 部署预检：账户必须先存在，才能自己付费
	if needDeploy {
		if err := c.guard.EnsureDeployed(ctx, c.userID, c.account); err != nil {
			return c.stepFailed(id, err, model.StateDeploying)
		}
		c.mu.Lock()
		c.deployConfirmed = true
		e.sess.DeploymentChecked = true
		c.mu.Unlock()
	} else {
		c.mu.Lock()
		e.sess.DeploymentChecked = true
		c.mu.Unlock()
	}

	// 2. 授权仪式 (全程持有单飞锁，锁在 Broker 内保证释放)
	if !c.setState(id, ctx, model.StateAuthorizing) {
		return c.stepFailed(id, context.Canceled, model.StateDeploying)
	}
	payload, err := c.broker.Authorize(ctx, intent)
	if err != nil {
		return c.stepFailed(id, err, model.StateAuthorizing)
	}

	// 3. 提交：提交时刻才真正决定支付方式 (回退链在此评估一次)。
	// 仪式返回与进入 submitting 之间取消域可能已被可见性切换重建，
	// 迁移被拒绝时会话停在 reviewing，不会卡在 submitting
	if !c.setState(id, ctx, model.StateSubmitting) {
		return c.stepFailed(id, context.Canceled, model.StateAuthorizing)
	}
	c.mu.Lock()
	e.payload = payload
	c.mu.Unlock()

	resolution, estimate, err := c.gas.ResolveForSubmit(ctx, intent, gasOption)
	if err != nil {
		return c.stepFailed(id, err, model.StateSubmitting)
	}

	result, err := c.broker.Submit(ctx, intent, payload, resolution.Method, id)
	if err != nil {
		return c.stepFailed(id, err, model.StateSubmitting)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// abort 在提交期间抢先收敛的话终态保持 aborted，不重复记录
	if e, ok := c.entries[id]; ok && !e.sess.State.IsTerminal() {
		e.payload = nil
		e.sess.Estimate = estimate
		c.finishLocked(e, model.StateSuccess, &model.SessionResult{
			OperationHash: result.OperationHash,
			ExplorerURL:   result.ExplorerURL,
			GasMethod:     resolution.Method,
		}, nil)
	}
	return nil
}

// setState 推进非终态会话。entry 的取消域与 ctx 不一致时 (可见性切换
// 已回退并重建了 ctx) 拒绝迁移，返回 false。
func (c *Controller) setState(id string, ctx context.Context, state model.SessionState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok || e.sess.State.IsTerminal() || e.ctx != ctx {
		return false
	}
	e.sess.State = state
	return true
}

// stepFailed 统一的失败收敛。
// recoverable (用户取消) → 回 reviewing，不算错误终态；
// retryable (锁竞争/挑战过期/部署未确认) → 停在可重试状态并透传错误；
// 其余 → error 终态，用户必须重新发起一个全新 Session (避免重复上链)。
func (c *Controller) stepFailed(id string, err error, at model.SessionState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return err
	}
	if e.sess.State.IsTerminal() {
		// abort 已经抢先收敛，保持终态
		return err
	}
	if errors.Is(err, context.Canceled) {
		// 可见性切换或 abort 主动中断了调用，状态由对应入口收敛
		e.payload = nil
		return err
	}

	e.payload = nil

	switch errno.KindOf(err) {
	case errno.KindRecoverable:
		// 用户在认证器上取消：回到确认页，不展示错误
		e.sess.State = model.StateReviewing
		logger.Info("授权被用户取消，回到确认页", zap.String("session_id", id))
	case errno.KindRetryable:
		switch at {
		case model.StateDeploying:
			e.sess.State = model.StateDeploying // 停在 deploying，advance 重试
		default:
			e.sess.State = model.StateReviewing
		}
		logger.Warn("会话遇到可重试失败",
			zap.String("session_id", id),
			zap.String("at", string(at)),
			zap.Error(err))
	default:
		c.finishLocked(e, model.StateError, nil, err)
	}
	return err
}
