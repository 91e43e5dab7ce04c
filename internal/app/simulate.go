package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sector-dashboard/internal/alerting"
)

// SimulateReport 推送一份模拟的刷新报告，用于验证告警通道配置。
func (a *App) SimulateReport(ctx context.Context, failures int) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("未配置任何告警通道")
	}

	note := alerting.Notification{
		Job:       "simulate",
		StartedAt: time.Now().UTC(),
		Duration:  42 * time.Second,
		Succeeded: 30,
	}
	for i := 0; i < failures; i++ {
		note.Failures = append(note.Failures, alerting.Failure{
			Unit:  fmt.Sprintf("sector:SIM%d", i+1),
			Error: "simulated provider timeout",
		})
	}
	return notifier.Notify(ctx, note)
}
