package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"sector-dashboard/internal/app"
)

var (
	showTicker    string
	showLimit     int
	showWatchlist bool
	showSector    string
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the latest stored rows of a ticker or the watchlist",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !showWatchlist && showTicker == "" {
			return fmt.Errorf("either --ticker or --watchlist must be provided")
		}
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Ticker:    showTicker,
			Limit:     showLimit,
			Watchlist: showWatchlist,
			Sector:    showSector,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showTicker, "ticker", "", "Tracked ticker to display")
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of rows to display")
	showCmd.Flags().BoolVar(&showWatchlist, "watchlist", false, "Display the watchlist instead of a ticker")
	showCmd.Flags().StringVar(&showSector, "sector", "all", "Sector fund filter for the watchlist")
}
