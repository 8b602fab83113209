package cmd

import (
	"fmt"
	"os"

	"passkey-core/internal/model"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <session-id>",
	Short: "查询会话状态",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		server, _ := cmd.Flags().GetString("server")

		var sess model.TransactionSession
		if err := callAPI(server, "GET", "/api/v1/sessions/"+args[0], nil, &sess); err != nil {
			fmt.Printf("查询失败: %v\n", err)
			os.Exit(1)
		}

		printReview(&sess)
		if sess.State.IsTerminal() {
			printResult(&sess)
		} else {
			fmt.Printf("\n状态: %s\n", sess.State)
		}
	},
}

var abortCmd = &cobra.Command{
	Use:   "abort <session-id>",
	Short: "终止会话",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		server, _ := cmd.Flags().GetString("server")

		var sess model.TransactionSession
		if err := callAPI(server, "POST", "/api/v1/sessions/"+args[0]+"/abort", nil, &sess); err != nil {
			fmt.Printf("终止失败: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("会话 %s 已终止 (状态: %s)\n", sess.ID, sess.State)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(abortCmd)
}
