package cmd

import (
	"MemoFM/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动MemoFM服务器",
	Long:  `启动MemoFM录音系统的HTTP服务器，提供API服务、WebSocket状态推送和Web界面`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
