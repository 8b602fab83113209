package model

import (
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// SessionState 会话状态机的状态
type SessionState string

const (
	StateDraft       SessionState = "draft"
	StateReviewing   SessionState = "reviewing"
	StateDeploying   SessionState = "deploying"
	StateAuthorizing SessionState = "authorizing"
	StateSubmitting  SessionState = "submitting"
	StateSuccess     SessionState = "success"
	StateError       SessionState = "error"
	StateAborted     SessionState = "aborted"
)

// IsTerminal 终态判断 (success / error / aborted)
func (s SessionState) IsTerminal() bool {
	return s == StateSuccess || s == StateError || s == StateAborted
}

// GasOption 费用支付方式
type GasOption string

const (
	GasSponsored GasOption = "sponsored" // 默认: 先尝试赞助，失败时级联回退
	GasUSDC      GasOption = "usdc"
	GasETH       GasOption = "eth"
)

// TransferIntent 用户录入的转账意图。Session 创建后不可变。
type TransferIntent struct {
	Recipient string          `json:"recipient"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Network   string          `json:"network"`
	Calldata  []byte          `json:"calldata,omitempty"`
}

// Fingerprint 意图的稳定摘要。
// 安全分析结果按它缓存：意图没变就不重复发起分析。
func (i TransferIntent) Fingerprint() string {
	h := sha256.New()
	h.Write([]byte(i.Recipient))
	h.Write([]byte(i.Amount.String()))
	h.Write([]byte(i.Currency))
	h.Write([]byte(i.Network))
	h.Write(i.Calldata)
	return hex.EncodeToString(h.Sum(nil))
}

// CalldataCheck 解码校验结果 (外部服务返回)
type CalldataCheck struct {
	RecipientMatches    bool     `json:"recipientMatches"`
	ValueMatches        bool     `json:"valueMatches"`
	SuspiciousSignature bool     `json:"suspiciousSignature"`
	Selectors           []string `json:"selectors,omitempty"`
}

// RecipientRisk 收款方信誉查询结果
type RecipientRisk struct {
	RiskScore  int      `json:"riskScore"` // 0-100, 越高越危险
	Category   string   `json:"category"`
	Indicators []string `json:"indicators"`
}

// SimulationCheck 模拟执行结果
type SimulationCheck struct {
	Ran          bool     `json:"ran"`
	Success      bool     `json:"success"`
	GasUsed      uint64   `json:"gasUsed"`
	StateChanges int      `json:"stateChanges"`
	Warnings     []string `json:"warnings"`
}

// HistoryCheck 收款地址历史
type HistoryCheck struct {
	IsContract   bool   `json:"isContract"`
	IsVerified   bool   `json:"isVerified"`
	DeployedDays int    `json:"deployedDays"`
	TxVolume     uint64 `json:"txVolume"`
}

// SafetyDetails 四个子检查的明细
type SafetyDetails struct {
	Calldata   *CalldataCheck   `json:"calldataVerification,omitempty"`
	Recipient  *RecipientRisk   `json:"recipientRisk,omitempty"`
	Simulation *SimulationCheck `json:"simulation,omitempty"`
	History    *HistoryCheck    `json:"historyCheck,omitempty"`
}

// SafetyResult 聚合后的安全评估。每个 Session 只产出一次。
type SafetyResult struct {
	Score    int           `json:"score"` // [0,100]
	IsSafe   bool          `json:"isSafe"`
	Partial  bool          `json:"partial"` // 有子检查失败，结果不完整
	Warnings []string      `json:"warnings"`
	Details  SafetyDetails `json:"details"`
}

// AuthorizationChallenge 单次有效的认证挑战。
// 全局同一时刻最多一个 Session 持有存活的 Challenge。
type AuthorizationChallenge struct {
	Challenge []byte                 `json:"challenge"`
	Options   map[string]interface{} `json:"options"`
	ExpiresAt time.Time              `json:"expiresAt"`
}

// Expired 判断挑战是否已过期
func (c *AuthorizationChallenge) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// GasEstimate 费用估算。gasOption 或意图变化后重新计算，旧值整体丢弃。
type GasEstimate struct {
	FeeAmount        decimal.Decimal `json:"feeAmount"`
	FeeCurrency      string          `json:"feeCurrency"`
	EstimatedCostUSD decimal.Decimal `json:"estimatedCostUSD"`
	GasLimit         uint64          `json:"gasLimit"`
	HighCost         bool            `json:"highCost,omitempty"` // 费用异常偏高，UI 提示用
}

// GasAttempt 回退链中的一次尝试，带拒绝原因，便于审计
type GasAttempt struct {
	Method   GasOption `json:"method"`
	Rejected bool      `json:"rejected"`
	Reason   string    `json:"reason,omitempty"`
}

// GasResolution 提交时刻实际决定的支付方式
type GasResolution struct {
	Method   GasOption    `json:"method"`
	Attempts []GasAttempt `json:"attempts"`
}

// DeploymentState 智能账户的部署状态，按地址缓存
type DeploymentState struct {
	IsDeployed     bool     `json:"isDeployed"`
	Balance        *big.Int `json:"balance"` // wei
	HasEnoughFunds bool     `json:"hasEnoughFunds"`
}

// SessionResult 终态结果
type SessionResult struct {
	OperationHash string    `json:"operationHash,omitempty"`
	ExplorerURL   string    `json:"explorerUrl,omitempty"`
	GasMethod     GasOption `json:"gasMethod,omitempty"`
	ErrorKind     string    `json:"errorKind,omitempty"`
	ErrorMessage  string    `json:"errorMessage,omitempty"`
}

// TransactionSession 一次转账的全部会话数据。
// 纯数据值，不持有任何 UI 引用；ID 创建后永不变化，
// 这是宿主组件反复挂载/卸载时安全恢复的前提。
type TransactionSession struct {
	ID                string         `json:"id"`
	Intent            TransferIntent `json:"intent"`
	State             SessionState   `json:"state"`
	GasOption         GasOption      `json:"gasOption"`
	Safety            *SafetyResult  `json:"safetyResult,omitempty"`
	SafetyFor         string         `json:"-"` // Safety 对应的意图指纹
	Estimate          *GasEstimate   `json:"gasEstimate,omitempty"`
	DeploymentChecked bool           `json:"deploymentChecked"`
	Result            *SessionResult `json:"result,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
}
