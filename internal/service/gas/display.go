package gas

import (
	"github.com/shopspring/decimal"
)

// DisplayAmount 费用/USD 金额的展示规则。
// 低于 epsilon 的正数显示为 "< ε" 而不是 0，避免让用户以为操作免费。
func DisplayAmount(amount, epsilon decimal.Decimal) string {
	if amount.IsPositive() && amount.LessThan(epsilon) {
		return "< " + epsilon.String()
	}
	return amount.String()
}

// DisplayFee Resolver 配置下的费用展示
func (r *Resolver) DisplayFee(amount decimal.Decimal) string {
	return DisplayAmount(amount, r.epsilon)
}
