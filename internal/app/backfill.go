package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"sector-dashboard/internal/sector"
	"sector-dashboard/internal/service"
)

// Refresh runs one refresh job and prints its report.
func (a *App) Refresh(ctx context.Context) error {
	res, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc, err := a.newService(res, nil)
	if err != nil {
		return err
	}

	report, err := svc.Refresh(ctx)
	if errors.Is(err, service.ErrLockHeld) {
		a.Logger.Warn().Msg("另一个刷新任务正在运行，跳过")
		return nil
	}
	printReport(report)
	if err != nil {
		return fmt.Errorf("部分刷新单元失败: %w", err)
	}
	return nil
}

func printReport(report service.Report) {
	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Unit\tRows\tSkipped\tDuration\tError")
	for _, u := range report.Units {
		errMsg := ""
		if u.Err != nil {
			errMsg = sanitizeInline(u.Err.Error())
		}
		fmt.Fprintf(writer, "%s\t%d\t%t\t%s\t%s\n", u.Name(), u.Rows, u.Skipped, u.Duration.Round(time.Millisecond), errMsg)
	}
	writer.Flush()
}

// Backfill rebuilds ticker histories from an earlier start date.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	tickers := opts.Tickers
	if len(tickers) == 0 {
		tickers = sector.Tickers()
	}

	res, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc, err := a.newService(res, nil)
	if err != nil {
		return err
	}

	processed := 0
	failed := 0
	for _, ticker := range tickers {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := svc.Backfill(ctx, ticker, opts.From)
		if err != nil {
			failed++
			a.Logger.Error().Err(err).Str("ticker", ticker).Msg("回填失败")
			continue
		}
		a.Logger.Info().Str("ticker", ticker).Int64("rows", n).Msg("回填写入")
		processed++
	}

	a.Logger.Info().Int("processed", processed).Int("failed", failed).Msg("回填完成")
	if failed > 0 {
		return errors.New("部分 ticker 回填失败，请检查日志")
	}
	return nil
}
