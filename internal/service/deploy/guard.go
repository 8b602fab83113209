package deploy

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"passkey-core/internal/model"
	"passkey-core/pkg/cache"
	"passkey-core/pkg/errno"
	"passkey-core/pkg/logger"
	"passkey-core/pkg/monitor"
	"passkey-core/pkg/utils/lock"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ChainReader 只读链访问 (ethclient.Client 原生满足)
type ChainReader interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Deployer 触发智能账户部署。
// 部署本身也是一笔链上操作，走与普通交易相同的签名路径 (Authorization Broker)。
type Deployer interface {
	DeployAccount(ctx context.Context, userID string, address string) error
}

const (
	// undeployedTTL 未部署结果只允许在一个 Session 内复用；
	// 已部署的结论在本进程内不会回退，缓存 24h，后续 Session 据此跳过检查。
	undeployedTTL = 30 * time.Second
	// confirmDelay 部署后轮询确认前的等待
	confirmDelay = 3 * time.Second
)

// Guard 预检智能账户部署状态。
// 账户必须先存在于链上，才能自己支付费用。
type Guard struct {
	chain      ChainReader          // nil → 模拟模式 (视为已部署)
	cache      cache.Cache          // 按地址缓存 DeploymentState
	distLock   lock.DistributedLock // 跨实例去重部署尝试，可为 nil
	deployer   Deployer
	minReserve *big.Int // wei
}

func NewGuard(chain ChainReader, c cache.Cache, distLock lock.DistributedLock, deployer Deployer, minReserveNative decimal.Decimal) *Guard {
	// 原生币 → wei
	reserve := minReserveNative.Mul(decimal.New(1, 18)).BigInt()
	return &Guard{
		chain:      chain,
		cache:      c,
		distLock:   distLock,
		deployer:   deployer,
		minReserve: reserve,
	}
}

type cachedState struct {
	IsDeployed     bool   `json:"isDeployed"`
	BalanceWei     string `json:"balanceWei"`
	HasEnoughFunds bool   `json:"hasEnoughFunds"`
}

// CheckDeployed 查询地址上是否存在合约代码。
// 已部署的结论在本进程内长期有效；未部署的结论只短暂缓存。
func (g *Guard) CheckDeployed(ctx context.Context, address string) (*model.DeploymentState, error) {
	key := "deploy:" + address

	var cached cachedState
	if err := g.cache.Get(ctx, key, &cached); err == nil {
		balance, _ := new(big.Int).SetString(cached.BalanceWei, 10)
		return &model.DeploymentState{
			IsDeployed:     cached.IsDeployed,
			Balance:        balance,
			HasEnoughFunds: cached.HasEnoughFunds,
		}, nil
	}

	state, err := g.query(ctx, address)
	if err != nil {
		return nil, err
	}

	ttl := undeployedTTL
	if state.IsDeployed {
		ttl = 24 * time.Hour
	}
	_ = g.cache.Set(ctx, key, cachedState{
		IsDeployed:     state.IsDeployed,
		BalanceWei:     state.Balance.String(),
		HasEnoughFunds: state.HasEnoughFunds,
	}, ttl)

	return state, nil
}

func (g *Guard) query(ctx context.Context, address string) (*model.DeploymentState, error) {
	if g.chain == nil {
		// 模拟模式：RPC 不可达时不阻塞开发流程
		logger.Warn("链 RPC 未连接，部署检查运行在模拟模式", zap.String("address", address))
		return &model.DeploymentState{
			IsDeployed:     true,
			Balance:        big.NewInt(0),
			HasEnoughFunds: true,
		}, nil
	}

	addr := common.HexToAddress(address)
	code, err := g.chain.CodeAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("查询合约代码失败: %w", err)
	}
	balance, err := g.chain.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("查询余额失败: %w", err)
	}

	return &model.DeploymentState{
		IsDeployed:     len(code) > 0,
		Balance:        balance,
		HasEnoughFunds: balance.Cmp(g.minReserve) >= 0,
	}, nil
}

// EnsureDeployed 保证账户已部署。
// 已部署 → no-op；余额低于部署储备 → 不可重试的 needs-funds 失败
// (本系统不代充值)；部署已触发但链上尚未确认 → 可重试的 unsettled。
func (g *Guard) EnsureDeployed(ctx context.Context, userID, address string) error {
	state, err := g.CheckDeployed(ctx, address)
	if err != nil {
		return err
	}
	if state.IsDeployed {
		return nil
	}

	if !state.HasEnoughFunds {
		g.outcome("needs_funds")
		logger.Warn("账户余额低于部署储备",
			zap.String("address", address),
			zap.String("balance_wei", state.Balance.String()),
			zap.String("reserve_wei", g.minReserve.String()))
		return errno.ErrNeedsFunds
	}

	// 跨实例去重：同一地址同时只允许一次部署尝试
	if g.distLock != nil {
		acquired, lockErr := g.distLock.Acquire(ctx, "deploy:"+address, 2*time.Minute)
		if lockErr != nil {
			return lockErr
		}
		if !acquired {
			g.outcome("busy")
			return errno.ErrDeployBusy
		}
		defer g.distLock.Release(context.WithoutCancel(ctx), "deploy:"+address)
	}

	logger.Info("触发智能账户部署", zap.String("address", address), zap.String("user_id", userID))
	if err := g.deployer.DeployAccount(ctx, userID, address); err != nil {
		g.outcome("failed")
		return err
	}

	// 等一拍再确认；链上确认有正常延迟，确认不到不算硬失败
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(confirmDelay):
	}

	_ = g.cache.Delete(ctx, "deploy:"+address)
	state, err = g.CheckDeployed(ctx, address)
	if err != nil {
		return err
	}
	if !state.IsDeployed {
		g.outcome("unsettled")
		return errno.ErrDeployUnsettled
	}

	g.outcome("deployed")
	return nil
}

func (g *Guard) outcome(outcome string) {
	if monitor.Business != nil {
		monitor.Business.DeployAttemptTotal.WithLabelValues(outcome).Inc()
	}
}
