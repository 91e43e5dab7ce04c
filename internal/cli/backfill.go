package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"sector-dashboard/internal/app"
	"sector-dashboard/internal/timeseries"
)

var (
	backfillFrom    string
	backfillTickers []string
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Rebuild stored ticker histories from an earlier start date",
	RunE: func(cmd *cobra.Command, args []string) error {
		if backfillFrom == "" {
			return fmt.Errorf("--from must be provided")
		}

		from, err := time.Parse(timeseries.DateLayout, backfillFrom)
		if err != nil {
			return fmt.Errorf("invalid --from value: %w", err)
		}
		if !from.Before(time.Now()) {
			return fmt.Errorf("--from must be in the past")
		}

		opts := app.BackfillOptions{
			Tickers: backfillTickers,
			From:    from,
		}

		return getApp().Backfill(cmd.Context(), opts)
	},
}

func init() {
	backfillCmd.Flags().StringVar(&backfillFrom, "from", "", "Start date (YYYY-MM-DD, inclusive)")
	backfillCmd.Flags().StringSliceVar(&backfillTickers, "ticker", nil, "Tickers to rebuild (defaults to every tracked ticker)")
}
