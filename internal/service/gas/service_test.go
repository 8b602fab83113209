package gas

import (
	"context"
	"errors"
	"testing"

	"passkey-core/internal/client"
	"passkey-core/internal/model"
	"passkey-core/pkg/errno"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQuoter 按方式返回预设报价
type fakeQuoter struct {
	quotes map[model.GasOption]*client.GasQuote
	err    error
	calls  []model.GasOption
}

func (f *fakeQuoter) Quote(ctx context.Context, intent model.TransferIntent, option model.GasOption) (*client.GasQuote, error) {
	f.calls = append(f.calls, option)
	if f.err != nil {
		return nil, f.err
	}
	q, ok := f.quotes[option]
	if !ok {
		return &client.GasQuote{Approved: false, Reason: "unsupported"}, nil
	}
	return q, nil
}

func newTestResolver(q Quoter) *Resolver {
	return NewResolver(q,
		decimal.RequireFromString("0.0001"),
		decimal.RequireFromString("1000"),
		10_000_000,
	)
}

func approvedQuote(currency, fee, balance string) *client.GasQuote {
	return &client.GasQuote{
		Approved:         true,
		FeeAmount:        decimal.RequireFromString(fee),
		FeeCurrency:      currency,
		EstimatedCostUSD: decimal.RequireFromString("1.5"),
		GasLimit:         100_000,
		Balance:          decimal.RequireFromString(balance),
	}
}

func TestResolveSponsoredApproved(t *testing.T) {
	quoter := &fakeQuoter{quotes: map[model.GasOption]*client.GasQuote{
		model.GasSponsored: approvedQuote("ETH", "0", "0"),
	}}
	r := newTestResolver(quoter)

	res, est, err := r.ResolveForSubmit(context.Background(), model.TransferIntent{}, model.GasSponsored)
	require.NoError(t, err)
	assert.Equal(t, model.GasSponsored, res.Method)
	assert.Len(t, res.Attempts, 1)
	assert.False(t, res.Attempts[0].Rejected)
	assert.NotNil(t, est)
	// 只报价了一次，没有多余的回退尝试
	assert.Equal(t, []model.GasOption{model.GasSponsored}, quoter.calls)
}

// 赞助被拒且 USDC 余额为零时落到原生币
func TestResolveFallsBackToNative(t *testing.T) {
	quoter := &fakeQuoter{quotes: map[model.GasOption]*client.GasQuote{
		model.GasSponsored: {Approved: false, Reason: "policy declined"},
		model.GasUSDC:      approvedQuote("USDC", "1.2", "0"),
		model.GasETH:       approvedQuote("ETH", "0.001", "0.5"),
	}}
	r := newTestResolver(quoter)

	res, _, err := r.ResolveForSubmit(context.Background(), model.TransferIntent{}, model.GasSponsored)
	require.NoError(t, err)
	assert.Equal(t, model.GasETH, res.Method)

	// 轨迹完整记录了两次被拒
	require.Len(t, res.Attempts, 3)
	assert.True(t, res.Attempts[0].Rejected)
	assert.Equal(t, "policy declined", res.Attempts[0].Reason)
	assert.True(t, res.Attempts[1].Rejected)
	assert.Contains(t, res.Attempts[1].Reason, "余额不足")
	assert.False(t, res.Attempts[2].Rejected)
}

func TestResolveAllRejected(t *testing.T) {
	quoter := &fakeQuoter{quotes: map[model.GasOption]*client.GasQuote{
		model.GasSponsored: {Approved: false, Reason: "declined"},
		model.GasUSDC:      {Approved: false, Reason: "no paymaster"},
		model.GasETH:       approvedQuote("ETH", "0.01", "0.001"),
	}}
	r := newTestResolver(quoter)

	_, _, err := r.ResolveForSubmit(context.Background(), model.TransferIntent{}, model.GasSponsored)
	require.Error(t, err)
	code, _ := errno.Decode(err)
	assert.Equal(t, errno.ErrSubmitRejected.Code, code)
}

// 显式指定的方式不做回退
func TestResolveExplicitNoFallback(t *testing.T) {
	quoter := &fakeQuoter{quotes: map[model.GasOption]*client.GasQuote{
		model.GasUSDC: {Approved: false, Reason: "no paymaster"},
		model.GasETH:  approvedQuote("ETH", "0.001", "0.5"),
	}}
	r := newTestResolver(quoter)

	_, _, err := r.ResolveForSubmit(context.Background(), model.TransferIntent{}, model.GasUSDC)
	require.Error(t, err)
	assert.Equal(t, []model.GasOption{model.GasUSDC}, quoter.calls)
}

// 报价服务自身失败是调用错误，不是一次"被拒"
func TestResolveQuoterError(t *testing.T) {
	quoter := &fakeQuoter{err: errors.New("connection refused")}
	r := newTestResolver(quoter)

	_, _, err := r.ResolveForSubmit(context.Background(), model.TransferIntent{}, model.GasSponsored)
	require.Error(t, err)
	assert.Len(t, quoter.calls, 1)
}

func TestEstimateHighCostFlag(t *testing.T) {
	expensive := approvedQuote("ETH", "0.5", "10")
	expensive.EstimatedCostUSD = decimal.RequireFromString("1500")
	quoter := &fakeQuoter{quotes: map[model.GasOption]*client.GasQuote{
		model.GasETH: expensive,
	}}
	r := newTestResolver(quoter)

	est, err := r.Estimate(context.Background(), model.TransferIntent{}, model.GasETH)
	require.NoError(t, err)
	assert.True(t, est.HighCost)
}

func TestEstimateHighGasLimitFlag(t *testing.T) {
	heavy := approvedQuote("ETH", "0.001", "10")
	heavy.GasLimit = 20_000_000
	quoter := &fakeQuoter{quotes: map[model.GasOption]*client.GasQuote{
		model.GasETH: heavy,
	}}
	r := newTestResolver(quoter)

	est, err := r.Estimate(context.Background(), model.TransferIntent{}, model.GasETH)
	require.NoError(t, err)
	assert.True(t, est.HighCost)
}
