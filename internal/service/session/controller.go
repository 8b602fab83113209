package session

import (
	"context"
	"sync"
	"time"

	"passkey-core/internal/client"
	"passkey-core/internal/model"
	"passkey-core/pkg/errno"
	"passkey-core/pkg/logger"
	"passkey-core/pkg/monitor"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// maxDecimals 原生币精度，金额小数位不得超过
const maxDecimals = 18

// terminalRetention 终态 Session 在内存中保留多久后回收
const terminalRetention = 10 * time.Minute

// entry 一个 Session 的运行时包装。
// Session 本身是纯数据 (model.TransactionSession)；
// ctx/cancel 等运行时资源放在这里，与数据分离。
type entry struct {
	sess    model.TransactionSession
	ctx     context.Context
	cancel  context.CancelFunc
	visible bool
	// advancing 为 true 时是重入：UI 重渲染触发的重复 advance 直接 no-op
	advancing bool
	// payload 仪式产出的签名，只在 authorizing→submitting 间存活
	payload *client.SignedPayload
	// doneAt 终态时间，janitor 据此回收
	doneAt time.Time
}

// Controller 顶层状态机。
// 持有 Session 的身份；宿主 UI 任意挂载/卸载/隐藏都不影响已创建的 Session。
type Controller struct {
	mu      sync.Mutex
	entries map[string]*entry

	analyzer SafetyAnalyzer
	gas      GasService
	guard    DeployGuard
	broker   Authorizer
	recorder Recorder // 可为 nil (不落库)

	userID    string
	account   string // 智能账户地址
	maxAmount decimal.Decimal

	// deployConfirmed: 本进程生命周期内已确认过部署，后续 Session 跳过
	deployConfirmed bool
}

func NewController(analyzer SafetyAnalyzer, gasSvc GasService, guard DeployGuard, broker Authorizer, recorder Recorder, userID, account string, maxAmount decimal.Decimal) *Controller {
	return &Controller{
		entries:   make(map[string]*entry),
		analyzer:  analyzer,
		gas:       gasSvc,
		guard:     guard,
		broker:    broker,
		recorder:  recorder,
		userID:    userID,
		account:   account,
		maxAmount: maxAmount,
	}
}

// CreateSession 校验意图并创建 draft Session。
// 校验失败时 Session 不会被创建 (validation 错误在此拦截)。
// ID 生成一次后永不变化 —— 这是 UI 反复重渲染下安全恢复的基石。
func (c *Controller) CreateSession(intent model.TransferIntent, gasOption model.GasOption) (*model.TransactionSession, error) {
	if err := c.validateIntent(intent); err != nil {
		return nil, err
	}
	if gasOption == "" {
		gasOption = model.GasSponsored
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &entry{
		sess: model.TransactionSession{
			ID:        uuid.NewString(),
			Intent:    intent,
			State:     model.StateDraft,
			GasOption: gasOption,
			CreatedAt: time.Now(),
		},
		ctx:     ctx,
		cancel:  cancel,
		visible: true,
	}

	c.mu.Lock()
	c.entries[e.sess.ID] = e
	c.mu.Unlock()

	if monitor.Business != nil {
		monitor.Business.SessionCreatedTotal.Inc()
	}
	logger.Info("创建转账会话",
		zap.String("session_id", e.sess.ID),
		zap.String("recipient", intent.Recipient),
		zap.String("amount", intent.Amount.String()))

	snap := e.sess
	return &snap, nil
}

func (c *Controller) validateIntent(intent model.TransferIntent) error {
	if !isChainAddress(intent.Recipient) {
		return errno.ErrInvalidRecipient
	}
	if !intent.Amount.IsPositive() {
		return errno.ErrInvalidAmount
	}
	if c.maxAmount.IsPositive() && intent.Amount.GreaterThan(c.maxAmount) {
		return errno.ErrAmountTooLarge
	}
	if intent.Amount.Exponent() < -maxDecimals {
		return errno.ErrAmountPrecision
	}
	return nil
}

// Get 返回 Session 的只读快照
func (c *Controller) Get(id string) (*model.TransactionSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return nil, errno.ErrSessionNotFound
	}
	snap := e.sess
	return &snap, nil
}

// Abort 从任意非终态取消会话。幂等：重复 abort、对已终态 abort 都是 no-op。
// 取消会中断该会话所有在途网络调用 (ctx 级联)；submitting 之前不存在任何
// 资金侧副作用，所以任何时刻 abort 都是安全的。
func (c *Controller) Abort(id string) (*model.TransactionSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return nil, errno.ErrSessionNotFound
	}
	if e.sess.State.IsTerminal() {
		snap := e.sess
		return &snap, nil
	}

	e.cancel()
	c.finishLocked(e, model.StateAborted, nil, nil)

	snap := e.sess
	return &snap, nil
}

// SetVisibility 宿主 UI 可见性变化的显式输入。
// 不可见 + 非终态：中断在途调用 (包括认证器仪式，仪式锁随之释放)，
// 状态回到 reviewing；submitting 不回退 —— 签名结果可能已经送达链端。
// 重新可见：直接从既有 Session 数据恢复；意图没变且结果还在就不重发
// 安全检查，不可见期间被中断而丢失的分析/估算在这里重新发起。
func (c *Controller) SetVisibility(id string, visible bool) (*model.TransactionSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return nil, errno.ErrSessionNotFound
	}

	if e.visible == visible {
		snap := e.sess
		return &snap, nil
	}
	e.visible = visible

	if !visible && !e.sess.State.IsTerminal() && e.sess.State != model.StateSubmitting {
		e.cancel()
		// 重建 ctx，重新可见后的 advance 用新的取消域
		e.ctx, e.cancel = context.WithCancel(context.Background())
		e.payload = nil
		if e.sess.State == model.StateDeploying || e.sess.State == model.StateAuthorizing {
			logger.Debug("UI 不可见，会话回退到 reviewing", zap.String("session_id", id))
			e.sess.State = model.StateReviewing
		}
	}

	if visible && e.sess.State == model.StateReviewing {
		ctx := e.ctx
		if e.sess.Safety == nil || e.sess.SafetyFor != e.sess.Intent.Fingerprint() {
			go c.fetchSafety(ctx, id)
		}
		if e.sess.Estimate == nil {
			go c.fetchEstimate(ctx, id)
		}
	}

	snap := e.sess
	return &snap, nil
}

// finishLocked 收敛到终态并记录。调用方必须持有 c.mu。
func (c *Controller) finishLocked(e *entry, state model.SessionState, result *model.SessionResult, err error) {
	e.sess.State = state
	e.doneAt = time.Now()

	switch state {
	case model.StateSuccess:
		e.sess.Result = result
	case model.StateError:
		e.sess.Result = &model.SessionResult{
			ErrorKind:    string(errno.KindOf(err)),
			ErrorMessage: err.Error(),
		}
	case model.StateAborted:
		e.sess.Result = &model.SessionResult{}
	}

	if monitor.Business != nil {
		monitor.Business.SessionTerminalTotal.WithLabelValues(string(state)).Inc()
	}
	logger.Info("会话到达终态",
		zap.String("session_id", e.sess.ID),
		zap.String("state", string(state)))

	if c.recorder != nil {
		snap := e.sess
		go c.recorder.RecordTerminal(context.Background(), &snap)
	}
}

// StartJanitor 周期回收已终态且超过保留期的 Session
func (c *Controller) StartJanitor(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.sweep()
			}
		}
	}()
}

// isChainAddress 0x + 40 hex
func isChainAddress(s string) bool {
	return common.IsHexAddress(s)
}

func (c *Controller) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for id, e := range c.entries {
		if e.sess.State.IsTerminal() && now.Sub(e.doneAt) > terminalRetention {
			delete(c.entries, id)
		}
	}
}
