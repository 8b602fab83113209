package client

import (
	"context"
	"encoding/hex"

	"passkey-core/internal/model"

	"github.com/shopspring/decimal"
)

// GasClient 调用链服务做费用估算与支付方式评估。
// 同一个端点同时服务估算 (review 阶段) 和提交时刻的回退决策。
type GasClient struct {
	http *httpClient
	url  string
	from string
}

func NewGasClient(url, from string) *GasClient {
	return &GasClient{http: newHTTPClient(), url: url, from: from}
}

type gasRequest struct {
	To        string `json:"to"`
	Value     string `json:"value"`
	Data      string `json:"data,omitempty"`
	From      string `json:"from"`
	GasOption string `json:"gasOption"`
}

// GasQuote 单个支付方式的报价。
// Approved=false 表示该方式被拒 (赞助策略限制、预算不足等)。
type GasQuote struct {
	Approved         bool            `json:"approved"`
	Reason           string          `json:"reason,omitempty"`
	FeeAmount        decimal.Decimal `json:"feeAmount"`
	FeeCurrency      string          `json:"feeCurrency"`
	EstimatedCostUSD decimal.Decimal `json:"estimatedCostUSD"`
	GasLimit         uint64          `json:"gasLimit"`
	Balance          decimal.Decimal `json:"balance"` // 账户在 FeeCurrency 上的余额
}

// Quote 查询某个支付方式的报价
func (c *GasClient) Quote(ctx context.Context, intent model.TransferIntent, option model.GasOption) (*GasQuote, error) {
	req := gasRequest{
		To:        intent.Recipient,
		Value:     intent.Amount.String(),
		From:      c.from,
		GasOption: string(option),
	}
	if len(intent.Calldata) > 0 {
		req.Data = "0x" + hex.EncodeToString(intent.Calldata)
	}

	var out GasQuote
	if err := c.http.postJSON(ctx, c.url, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
