package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"passkey-core/internal/client"
	"passkey-core/internal/model"
	"passkey-core/pkg/errno"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRecipient = "0x2222222222222222222222222222222222222222"

type fakeAnalyzer struct {
	delay time.Duration
	calls int32
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, intent model.TransferIntent) *model.SafetyResult {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return &model.SafetyResult{Partial: true}
		}
	}
	return &model.SafetyResult{Score: 100, IsSafe: true}
}

type fakeGas struct {
	resolveErr error
}

func (f *fakeGas) Estimate(ctx context.Context, intent model.TransferIntent, option model.GasOption) (*model.GasEstimate, error) {
	return &model.GasEstimate{FeeCurrency: "ETH"}, nil
}

func (f *fakeGas) ResolveForSubmit(ctx context.Context, intent model.TransferIntent, option model.GasOption) (*model.GasResolution, *model.GasEstimate, error) {
	if f.resolveErr != nil {
		return nil, nil, f.resolveErr
	}
	return &model.GasResolution{Method: model.GasETH}, &model.GasEstimate{FeeCurrency: "ETH"}, nil
}

type fakeGuard struct {
	// errs 依次弹出；耗尽后返回 nil
	errs  []error
	calls int32
}

func (f *fakeGuard) EnsureDeployed(ctx context.Context, userID, address string) error {
	atomic.AddInt32(&f.calls, 1)
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

type fakeBroker struct {
	authorizeErr error
	submitErr    error
	delay        time.Duration
	started      chan struct{}
	startOnce    sync.Once
	// gate 非 nil 时 Authorize 阻塞到 gate 关闭才返回，且不理会 ctx，
	// 用于构造"仪式已成功返回但会话状态已变"的窗口
	gate          chan struct{}
	submitStarted chan struct{}
	submitOnce    sync.Once
	submitGate    chan struct{}
	authCalls     int32
}

func (f *fakeBroker) Authorize(ctx context.Context, intent model.TransferIntent) (*client.SignedPayload, error) {
	atomic.AddInt32(&f.authCalls, 1)
	if f.started != nil {
		f.startOnce.Do(func() { close(f.started) })
	}
	if f.gate != nil {
		<-f.gate
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.authorizeErr != nil {
		return nil, f.authorizeErr
	}
	return &client.SignedPayload{CredentialID: "cred-1"}, nil
}

func (f *fakeBroker) Submit(ctx context.Context, intent model.TransferIntent, payload *client.SignedPayload, method model.GasOption, sessionID string) (*client.SubmitResult, error) {
	if f.submitStarted != nil {
		f.submitOnce.Do(func() { close(f.submitStarted) })
	}
	if f.submitGate != nil {
		<-f.submitGate
	}
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &client.SubmitResult{OperationHash: "0xhash", ExplorerURL: "https://example/tx/0xhash"}, nil
}

type fakeRecorder struct {
	calls int32
}

func (f *fakeRecorder) RecordTerminal(ctx context.Context, sess *model.TransactionSession) {
	atomic.AddInt32(&f.calls, 1)
}

type deps struct {
	analyzer *fakeAnalyzer
	gas      *fakeGas
	guard    *fakeGuard
	broker   *fakeBroker
}

func newTestController(d *deps) *Controller {
	return NewController(d.analyzer, d.gas, d.guard, d.broker, nil,
		"user-1", "0x3333333333333333333333333333333333333333",
		decimal.RequireFromString("100"))
}

func defaultDeps() *deps {
	return &deps{
		analyzer: &fakeAnalyzer{},
		gas:      &fakeGas{},
		guard:    &fakeGuard{},
		broker:   &fakeBroker{},
	}
}

func testIntent(amount string) model.TransferIntent {
	return model.TransferIntent{
		Recipient: testRecipient,
		Amount:    decimal.RequireFromString(amount),
		Currency:  "ETH",
		Network:   "sepolia",
	}
}

func TestCreateSessionValidation(t *testing.T) {
	c := newTestController(defaultDeps())

	tests := []struct {
		name     string
		intent   model.TransferIntent
		wantCode int
	}{
		{"非法地址", model.TransferIntent{Recipient: "not-an-address", Amount: decimal.NewFromInt(1)}, errno.ErrInvalidRecipient.Code},
		{"金额为零", testIntent("0"), errno.ErrInvalidAmount.Code},
		{"金额为负", testIntent("-1"), errno.ErrInvalidAmount.Code},
		{"超过单笔上限", testIntent("100.01"), errno.ErrAmountTooLarge.Code},
		{"精度超过 18 位", testIntent("0.0000000000000000001"), errno.ErrAmountPrecision.Code},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.CreateSession(tt.intent, model.GasSponsored)
			require.Error(t, err)
			code, _ := errno.Decode(err)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}

func TestHappyPath(t *testing.T) {
	d := defaultDeps()
	c := newTestController(d)

	sess, err := c.CreateSession(testIntent("1.5"), model.GasSponsored)
	require.NoError(t, err)
	assert.Equal(t, model.StateDraft, sess.State)
	id := sess.ID

	// draft → reviewing，评估在后台进行
	sess, err = c.Advance(id)
	require.NoError(t, err)
	assert.Equal(t, model.StateReviewing, sess.State)
	assert.Equal(t, id, sess.ID)

	// 等待安全评估写回
	require.Eventually(t, func() bool {
		s, err := c.Get(id)
		return err == nil && s.Safety != nil && s.Estimate != nil
	}, 2*time.Second, 10*time.Millisecond)

	// 确认：部署预检 → 授权 → 提交，一路到 success
	sess, err = c.Advance(id)
	require.NoError(t, err)
	assert.Equal(t, model.StateSuccess, sess.State)
	require.NotNil(t, sess.Result)
	assert.Equal(t, "0xhash", sess.Result.OperationHash)
	// 实际支付方式是提交时刻的决议，不是创建时的选项
	assert.Equal(t, model.GasETH, sess.Result.GasMethod)
	assert.Equal(t, int32(1), atomic.LoadInt32(&d.guard.calls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&d.broker.authCalls))
}

// 确认链路进行中的重复 advance 是 no-op，不会触发第二次授权
func TestAdvanceReentrant(t *testing.T) {
	d := defaultDeps()
	d.broker.delay = 200 * time.Millisecond
	d.broker.started = make(chan struct{})
	c := newTestController(d)

	sess, err := c.CreateSession(testIntent("1"), model.GasSponsored)
	require.NoError(t, err)
	id := sess.ID

	_, err = c.Advance(id)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Advance(id)
	}()

	<-d.broker.started
	// 授权进行中：外部 advance 直接返回快照
	snap, err := c.Advance(id)
	require.NoError(t, err)
	assert.False(t, snap.State.IsTerminal())

	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&d.broker.authCalls))

	final, _ := c.Get(id)
	assert.Equal(t, model.StateSuccess, final.State)
}

func TestAbortIdempotent(t *testing.T) {
	c := newTestController(defaultDeps())

	sess, err := c.CreateSession(testIntent("1"), model.GasSponsored)
	require.NoError(t, err)
	id := sess.ID

	sess, err = c.Abort(id)
	require.NoError(t, err)
	assert.Equal(t, model.StateAborted, sess.State)

	// 重复 abort 是 no-op
	sess, err = c.Abort(id)
	require.NoError(t, err)
	assert.Equal(t, model.StateAborted, sess.State)

	// 终态后的 advance 也是 no-op
	sess, err = c.Advance(id)
	require.NoError(t, err)
	assert.Equal(t, model.StateAborted, sess.State)
}

// 余额不足是终态错误：不会进入授权，必须新建会话
func TestNeedsFundsTerminal(t *testing.T) {
	d := defaultDeps()
	d.guard.errs = []error{errno.ErrNeedsFunds}
	c := newTestController(d)

	sess, _ := c.CreateSession(testIntent("1"), model.GasSponsored)
	id := sess.ID
	c.Advance(id)

	sess, err := c.Advance(id)
	require.Error(t, err)
	assert.Equal(t, model.StateError, sess.State)
	require.NotNil(t, sess.Result)
	assert.Equal(t, string(errno.KindTerminal), sess.Result.ErrorKind)
	assert.Zero(t, atomic.LoadInt32(&d.broker.authCalls))
}

// 部署未确认是可重试失败：会话停在 deploying，下一次 advance 重试
func TestDeployUnsettledRetry(t *testing.T) {
	d := defaultDeps()
	d.guard.errs = []error{errno.ErrDeployUnsettled}
	c := newTestController(d)

	sess, _ := c.CreateSession(testIntent("1"), model.GasSponsored)
	id := sess.ID
	c.Advance(id)

	sess, err := c.Advance(id)
	require.Error(t, err)
	assert.Equal(t, model.StateDeploying, sess.State)

	// 重试成功，走完剩余链路
	sess, err = c.Advance(id)
	require.NoError(t, err)
	assert.Equal(t, model.StateSuccess, sess.State)
	assert.Equal(t, int32(2), atomic.LoadInt32(&d.guard.calls))
}

// 用户在认证器上取消是可恢复结果：回到 reviewing，不算错误终态
func TestCeremonyCancelledRecoverable(t *testing.T) {
	d := defaultDeps()
	d.broker.authorizeErr = errno.ErrCeremonyCancelled
	c := newTestController(d)

	sess, _ := c.CreateSession(testIntent("1"), model.GasSponsored)
	id := sess.ID
	c.Advance(id)

	sess, err := c.Advance(id)
	require.Error(t, err)
	assert.Equal(t, model.StateReviewing, sess.State)
	assert.Nil(t, sess.Result)
}

// 不可见时授权被中断，会话回到 reviewing 且不产生错误终态
func TestVisibilityRewindsAuthorizing(t *testing.T) {
	d := defaultDeps()
	d.broker.delay = 5 * time.Second
	d.broker.started = make(chan struct{})
	c := newTestController(d)

	sess, _ := c.CreateSession(testIntent("1"), model.GasSponsored)
	id := sess.ID
	c.Advance(id)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Advance(id)
	}()

	<-d.broker.started
	sess, err := c.SetVisibility(id, false)
	require.NoError(t, err)
	assert.Equal(t, model.StateReviewing, sess.State)

	wg.Wait()
	sess, _ = c.Get(id)
	assert.Equal(t, model.StateReviewing, sess.State)
	assert.Nil(t, sess.Result)

	// 重新可见后用同一个 ID 恢复
	sess, err = c.SetVisibility(id, true)
	require.NoError(t, err)
	assert.Equal(t, id, sess.ID)
	assert.Equal(t, model.StateReviewing, sess.State)
}

// submitting 不因可见性变化回退
func TestVisibilityKeepsSubmitting(t *testing.T) {
	c := newTestController(defaultDeps())

	sess, _ := c.CreateSession(testIntent("1"), model.GasSponsored)
	id := sess.ID

	// 直接构造 submitting 状态
	c.mu.Lock()
	c.entries[id].sess.State = model.StateSubmitting
	c.mu.Unlock()

	sess, err := c.SetVisibility(id, false)
	require.NoError(t, err)
	assert.Equal(t, model.StateSubmitting, sess.State)
}

// 分析进行中被不可见打断后，重新可见要补发分析，结果不能永久丢失
func TestVisibilityResumesInterruptedAnalysis(t *testing.T) {
	d := defaultDeps()
	d.analyzer.delay = 300 * time.Millisecond
	c := newTestController(d)

	sess, err := c.CreateSession(testIntent("1"), model.GasSponsored)
	require.NoError(t, err)
	id := sess.ID
	_, err = c.Advance(id)
	require.NoError(t, err)

	// 分析尚未完成时切到后台，在途调用被取消
	time.Sleep(50 * time.Millisecond)
	_, err = c.SetVisibility(id, false)
	require.NoError(t, err)
	_, err = c.SetVisibility(id, true)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s, err := c.Get(id)
		return err == nil && s.Safety != nil
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&d.analyzer.calls))

	s, _ := c.Get(id)
	assert.True(t, s.Safety.IsSafe)
	assert.NotNil(t, s.Estimate)
}

// 意图没变且结果还在时，重新可见不重发安全检查
func TestVisibilityKeepsCachedAnalysis(t *testing.T) {
	d := defaultDeps()
	c := newTestController(d)

	sess, _ := c.CreateSession(testIntent("1"), model.GasSponsored)
	id := sess.ID
	c.Advance(id)

	require.Eventually(t, func() bool {
		s, _ := c.Get(id)
		return s.Safety != nil && s.Estimate != nil
	}, 2*time.Second, 10*time.Millisecond)

	_, err := c.SetVisibility(id, false)
	require.NoError(t, err)
	_, err = c.SetVisibility(id, true)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&d.analyzer.calls))
}

// 提交期间 abort 抢先收敛：终态保持 aborted，且只记录一次
func TestAbortDuringSubmitKeepsAborted(t *testing.T) {
	d := defaultDeps()
	d.broker.submitStarted = make(chan struct{})
	d.broker.submitGate = make(chan struct{})
	rec := &fakeRecorder{}
	c := NewController(d.analyzer, d.gas, d.guard, d.broker, rec,
		"user-1", "0x3333333333333333333333333333333333333333",
		decimal.RequireFromString("100"))

	sess, _ := c.CreateSession(testIntent("1"), model.GasSponsored)
	id := sess.ID
	c.Advance(id)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Advance(id)
	}()

	<-d.broker.submitStarted
	sess, err := c.Abort(id)
	require.NoError(t, err)
	assert.Equal(t, model.StateAborted, sess.State)

	close(d.broker.submitGate)
	<-done

	final, err := c.Get(id)
	require.NoError(t, err)
	assert.Equal(t, model.StateAborted, final.State)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&rec.calls) == 1
	}, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&rec.calls))
}

// 仪式返回签名之前回退发生：会话停在 reviewing，不会卡死在 submitting
func TestVisibilityRewindBeforeSubmitStaysReviewing(t *testing.T) {
	d := defaultDeps()
	d.broker.started = make(chan struct{})
	d.broker.gate = make(chan struct{})
	c := newTestController(d)

	sess, _ := c.CreateSession(testIntent("1"), model.GasSponsored)
	id := sess.ID
	c.Advance(id)

	errc := make(chan error, 1)
	go func() {
		_, err := c.Advance(id)
		errc <- err
	}()

	// 仪式进行中切到后台再回来 (ctx 被重建)，随后仪式才带着签名返回
	<-d.broker.started
	_, err := c.SetVisibility(id, false)
	require.NoError(t, err)
	_, err = c.SetVisibility(id, true)
	require.NoError(t, err)
	close(d.broker.gate)

	assert.ErrorIs(t, <-errc, context.Canceled)

	sess, _ = c.Get(id)
	assert.Equal(t, model.StateReviewing, sess.State)
	assert.Nil(t, sess.Result)

	// 会话没有卡死，可以重新确认走到终态
	final, err := c.Advance(id)
	require.NoError(t, err)
	assert.Equal(t, model.StateSuccess, final.State)
	assert.Equal(t, int32(2), atomic.LoadInt32(&d.broker.authCalls))
}

func TestSetGasOptionInvalidatesEstimate(t *testing.T) {
	c := newTestController(defaultDeps())

	sess, _ := c.CreateSession(testIntent("1"), model.GasSponsored)
	id := sess.ID
	c.Advance(id)

	require.Eventually(t, func() bool {
		s, _ := c.Get(id)
		return s.Estimate != nil
	}, 2*time.Second, 10*time.Millisecond)

	sess, err := c.SetGasOption(id, model.GasUSDC)
	require.NoError(t, err)
	assert.Equal(t, model.GasUSDC, sess.GasOption)
	// 切换瞬间旧估算作废 (返回的快照里已经清空)
	assert.Nil(t, sess.Estimate)
}

func TestGetNotFound(t *testing.T) {
	c := newTestController(defaultDeps())
	_, err := c.Get("missing")
	require.Error(t, err)
	code, _ := errno.Decode(err)
	assert.Equal(t, errno.ErrSessionNotFound.Code, code)
}
