package cmd

import (
	"fmt"
	"os"
	"time"

	"passkey-core/internal/model"

	"github.com/spf13/cobra"
)

var transferCmd = &cobra.Command{
	Use:   "transfer",
	Short: "发起一笔转账会话",
	Long: `创建转账会话并推进到 reviewing，打印安全评估和费用预估。
加 --confirm 后继续推进确认链路 (部署检查 → 授权 → 提交) 并等待终态。`,
	Run: func(cmd *cobra.Command, args []string) {
		server, _ := cmd.Flags().GetString("server")
		to, _ := cmd.Flags().GetString("to")
		amount, _ := cmd.Flags().GetString("amount")
		currency, _ := cmd.Flags().GetString("currency")
		gasOption, _ := cmd.Flags().GetString("gas")
		confirm, _ := cmd.Flags().GetBool("confirm")

		// 1. 创建会话
		var sess model.TransactionSession
		err := callAPI(server, "POST", "/api/v1/sessions", map[string]string{
			"recipient":  to,
			"amount":     amount,
			"currency":   currency,
			"gas_option": gasOption,
		}, &sess)
		if err != nil {
			fmt.Printf("创建会话失败: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("会话已创建: %s\n", sess.ID)

		// 2. 推进到 reviewing，后台开始跑安全评估和费用预估
		if err := callAPI(server, "POST", "/api/v1/sessions/"+sess.ID+"/advance", nil, &sess); err != nil {
			fmt.Printf("推进失败: %v\n", err)
			os.Exit(1)
		}

		// 3. 轮询等待评估结果
		for i := 0; i < 30 && sess.Safety == nil; i++ {
			time.Sleep(500 * time.Millisecond)
			if err := callAPI(server, "GET", "/api/v1/sessions/"+sess.ID, nil, &sess); err != nil {
				fmt.Printf("查询失败: %v\n", err)
				os.Exit(1)
			}
		}
		printReview(&sess)

		if !confirm {
			fmt.Printf("\n确认请执行: wallet-cli transfer --confirm 或 wallet-cli status %s\n", sess.ID)
			return
		}

		// 4. 确认，进入部署检查/授权/提交链路
		if err := callAPI(server, "POST", "/api/v1/sessions/"+sess.ID+"/advance", nil, &sess); err != nil {
			fmt.Printf("❌ 确认失败: %v\n", err)
			os.Exit(1)
		}

		// 5. 等待终态
		for i := 0; i < 240 && !sess.State.IsTerminal(); i++ {
			time.Sleep(500 * time.Millisecond)
			if err := callAPI(server, "GET", "/api/v1/sessions/"+sess.ID, nil, &sess); err != nil {
				fmt.Printf("查询失败: %v\n", err)
				os.Exit(1)
			}
		}
		printResult(&sess)
	},
}

func printReview(sess *model.TransactionSession) {
	fmt.Printf("\n===== 转账确认单 =====\n")
	fmt.Printf("收款地址: %s\n", sess.Intent.Recipient)
	fmt.Printf("金额:     %s %s\n", sess.Intent.Amount.String(), sess.Intent.Currency)
	if sess.Safety != nil {
		mark := "✅"
		if !sess.Safety.IsSafe {
			mark = "⚠️"
		}
		fmt.Printf("安全评分: %s %d/100\n", mark, sess.Safety.Score)
		if sess.Safety.Partial {
			fmt.Printf("          (部分检查未完成)\n")
		}
		for _, w := range sess.Safety.Warnings {
			fmt.Printf("  - %s\n", w)
		}
	} else {
		fmt.Printf("安全评分: 等待中...\n")
	}
	if sess.Estimate != nil {
		fmt.Printf("预估费用: %s %s (~$%s)\n",
			sess.Estimate.FeeAmount.String(), sess.Estimate.FeeCurrency,
			sess.Estimate.EstimatedCostUSD.String())
	}
}

func printResult(sess *model.TransactionSession) {
	fmt.Printf("\n===== 结果 =====\n")
	fmt.Printf("状态: %s\n", sess.State)
	if sess.Result == nil {
		return
	}
	switch sess.State {
	case model.StateSuccess:
		fmt.Printf("✅ 提交成功!\n")
		fmt.Printf("操作哈希: %s\n", sess.Result.OperationHash)
		fmt.Printf("gas 方式: %s\n", sess.Result.GasMethod)
		if sess.Result.ExplorerURL != "" {
			fmt.Printf("浏览器:   %s\n", sess.Result.ExplorerURL)
		}
	case model.StateError:
		fmt.Printf("❌ 失败 (%s): %s\n", sess.Result.ErrorKind, sess.Result.ErrorMessage)
	}
}

func init() {
	rootCmd.AddCommand(transferCmd)
	transferCmd.Flags().String("to", "", "收款地址 (0x...)")
	transferCmd.Flags().String("amount", "", "金额")
	transferCmd.Flags().String("currency", "ETH", "币种 (ETH/USDC)")
	transferCmd.Flags().String("gas", "sponsored", "gas 支付方式 (sponsored/usdc/eth)")
	transferCmd.Flags().Bool("confirm", false, "直接确认并等待提交结果")
	transferCmd.MarkFlagRequired("to")
	transferCmd.MarkFlagRequired("amount")
}
