package client

import (
	"context"
	"encoding/hex"

	"passkey-core/internal/model"
)

// SafetyClient 调用四个独立的交易安全子检查。
// 每个子检查都是同一个端点，type 字段区分；实现对我们不透明。
type SafetyClient struct {
	http    *httpClient
	url     string
	from    string // 智能账户地址
	network string
}

func NewSafetyClient(url, from, network string) *SafetyClient {
	return &SafetyClient{http: newHTTPClient(), url: url, from: from, network: network}
}

type safetyRequest struct {
	To      string `json:"to"`
	Value   string `json:"value"`
	Data    string `json:"data,omitempty"`
	From    string `json:"from"`
	Network string `json:"network"`
	Type    string `json:"type"` // calldata / recipient / simulation / history
}

func (c *SafetyClient) request(intent model.TransferIntent, checkType string) safetyRequest {
	req := safetyRequest{
		To:      intent.Recipient,
		Value:   intent.Amount.String(),
		From:    c.from,
		Network: c.network,
		Type:    checkType,
	}
	if len(intent.Calldata) > 0 {
		req.Data = "0x" + hex.EncodeToString(intent.Calldata)
	}
	return req
}

// VerifyCalldata 解码 calldata 并与展示的意图对比
func (c *SafetyClient) VerifyCalldata(ctx context.Context, intent model.TransferIntent) (*model.CalldataCheck, error) {
	var out model.CalldataCheck
	if err := c.http.postJSON(ctx, c.url, c.request(intent, "calldata"), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckRecipient 收款方信誉查询
func (c *SafetyClient) CheckRecipient(ctx context.Context, intent model.TransferIntent) (*model.RecipientRisk, error) {
	var out model.RecipientRisk
	if err := c.http.postJSON(ctx, c.url, c.request(intent, "recipient"), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Simulate 对当前链状态做 dry-run
func (c *SafetyClient) Simulate(ctx context.Context, intent model.TransferIntent) (*model.SimulationCheck, error) {
	var out model.SimulationCheck
	if err := c.http.postJSON(ctx, c.url, c.request(intent, "simulation"), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckHistory 收款地址的合约/历史信息
func (c *SafetyClient) CheckHistory(ctx context.Context, intent model.TransferIntent) (*model.HistoryCheck, error) {
	var out model.HistoryCheck
	if err := c.http.postJSON(ctx, c.url, c.request(intent, "history"), &out); err != nil {
		return nil, err
	}
	return &out, nil
}
