package request

// CreateSessionRequest 创建转账会话
type CreateSessionRequest struct {
	Recipient string `json:"recipient" binding:"required,chain_addr"`
	Amount    string `json:"amount" binding:"required"`
	Currency  string `json:"currency" binding:"omitempty,oneof=ETH USDC"`
	Network   string `json:"network"`
	Calldata  string `json:"calldata"` // hex, 可选
	GasOption string `json:"gas_option" binding:"omitempty,oneof=sponsored usdc eth"`
}

// SetGasOptionRequest 切换 gas 支付方式 (仅限 reviewing 之前)
type SetGasOptionRequest struct {
	GasOption string `json:"gas_option" binding:"required,oneof=sponsored usdc eth"`
}

// SetVisibilityRequest 宿主可见性变化通知
type SetVisibilityRequest struct {
	Visible *bool `json:"visible" binding:"required"`
}
