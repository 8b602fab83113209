package gas

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestDisplayAmount(t *testing.T) {
	eps := decimal.RequireFromString("0.0001")

	tests := []struct {
		name   string
		amount string
		want   string
	}{
		{"零显示为零", "0", "0"},
		{"远小于阈值", "0.00000001", "< 0.0001"},
		{"等于阈值", "0.0001", "0.0001"},
		{"普通金额", "1.25", "1.25"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DisplayAmount(decimal.RequireFromString(tt.amount), eps)
			assert.Equal(t, tt.want, got)
		})
	}
}
