package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var simulateFailures int

var simulateCmd = &cobra.Command{
	Use:   "simulate-report",
	Short: "模拟一次刷新报告并推送告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateFailures < 0 {
			return errors.New("--failures 不能为负数")
		}
		return getApp().SimulateReport(cmd.Context(), simulateFailures)
	},
}

func init() {
	simulateCmd.Flags().IntVar(&simulateFailures, "failures", 1, "模拟失败单元数量")
}
