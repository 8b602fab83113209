package safety

import (
	"fmt"
	"math"
	"strings"

	"passkey-core/internal/model"
)

// 扣分规则常量。评分从 100 开始逐项扣减，最后 clamp 到 [0,100]。
const (
	deductRecipientMismatch  = 30
	deductValueMismatch      = 20
	deductSuspiciousSig      = 40
	deductPerIndicator       = 7
	indicatorCap             = 30
	deductSevereIndicator    = 25 // 不设上限
	deductUnverifiedContract = 15
	deductSimulationFailed   = 40
	deductPerWarning         = 10
	warningCap               = 30

	// riskScoreWeight 收款方原始风险分 (0-100) 的换算权重。
	// 按比例而非 1:1：单靠信誉分最多扣 30，不会独自把干净的意图拉下安全线。
	riskScoreWeight = 0.3
)

// severeKeywords 高危关键词，命中一次扣 25 且不封顶
var severeKeywords = []string{"phishing", "scam", "blacklist", "malicious"}

// Deduction 一条扣分记录
type Deduction struct {
	Category string
	Points   int
}

// categoryCaps 按类别的扣分上限；不在表里的类别不封顶
var categoryCaps = map[string]int{
	"indicators": indicatorCap,
	"warnings":   warningCap,
}

// aggregate 对扣分列表做按类别封顶的求和。
// 与顺序无关：同类别先求和再封顶。
func aggregate(deds []Deduction) int {
	perCategory := make(map[string]int)
	for _, d := range deds {
		perCategory[d.Category] += d.Points
	}

	total := 0
	for cat, points := range perCategory {
		if limit, ok := categoryCaps[cat]; ok && points > limit {
			points = limit
		}
		total += points
	}
	return total
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func isSevere(indicator string) bool {
	lower := strings.ToLower(indicator)
	for _, kw := range severeKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Evaluate 纯函数：由四个子检查的明细算出聚合结果。
// 缺失的子检查 (调用失败) 不参与扣分，只置 Partial 标记。
func Evaluate(details model.SafetyDetails, partial bool, threshold int) *model.SafetyResult {
	var deds []Deduction
	var warnings []string

	mismatch := false
	suspicious := false

	if cd := details.Calldata; cd != nil {
		if !cd.RecipientMatches {
			mismatch = true
			deds = append(deds, Deduction{"calldata", deductRecipientMismatch})
			warnings = append(warnings, "calldata 解码出的收款地址与展示不一致")
		}
		if !cd.ValueMatches {
			deds = append(deds, Deduction{"calldata", deductValueMismatch})
			warnings = append(warnings, "calldata 解码出的金额与展示不一致")
		}
		if cd.SuspiciousSignature {
			suspicious = true
			deds = append(deds, Deduction{"calldata", deductSuspiciousSig})
			warnings = append(warnings, "calldata 包含已知危险的函数选择器")
		}
	}

	if rr := details.Recipient; rr != nil {
		if rr.RiskScore > 0 {
			scaled := int(math.Round(float64(rr.RiskScore) * riskScoreWeight))
			deds = append(deds, Deduction{"risk_score", scaled})
		}
		for _, ind := range rr.Indicators {
			if isSevere(ind) {
				deds = append(deds, Deduction{"severe", deductSevereIndicator})
				warnings = append(warnings, fmt.Sprintf("收款方命中高危标记: %s", ind))
			} else {
				deds = append(deds, Deduction{"indicators", deductPerIndicator})
			}
		}
	}

	if h := details.History; h != nil {
		if h.IsContract && !h.IsVerified {
			deds = append(deds, Deduction{"history", deductUnverifiedContract})
			warnings = append(warnings, "收款合约源码未验证")
		}
	}

	if sim := details.Simulation; sim != nil {
		if sim.Ran && !sim.Success {
			deds = append(deds, Deduction{"simulation", deductSimulationFailed})
			warnings = append(warnings, "模拟执行失败")
		}
		warnings = append(warnings, sim.Warnings...)
	}

	for range warnings {
		deds = append(deds, Deduction{"warnings", deductPerWarning})
	}

	score := clamp(100 - aggregate(deds))

	return &model.SafetyResult{
		Score:    score,
		IsSafe:   !mismatch && !suspicious && score >= threshold,
		Partial:  partial,
		Warnings: warnings,
		Details:  details,
	}
}
