package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"sector-dashboard/internal/app"
	"sector-dashboard/internal/service"
)

var (
	exportTarget     string
	exportName       string
	exportYears      int
	exportSmoothing  int
	exportMaturities string
	exportSector     string
	exportBar        bool
	exportPNGPath    string
	exportCSVPath    string
	exportXLSXPath   string
	exportMaxPoints  int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a dashboard chart or the watchlist as CSV, PNG or XLSX",
	RunE: func(cmd *cobra.Command, args []string) error {
		switch exportTarget {
		case app.TargetMetric, app.TargetSector, app.TargetMacro:
			if exportName == "" {
				return fmt.Errorf("--name is required for target %q", exportTarget)
			}
		case app.TargetWatchlist:
		default:
			return fmt.Errorf("invalid --target %q", exportTarget)
		}
		if exportYears < 0 || exportSmoothing < 0 {
			return fmt.Errorf("--years and --smoothing must not be negative")
		}

		opts := app.ExportOptions{
			Target:     exportTarget,
			Name:       exportName,
			Years:      exportYears,
			Smoothing:  exportSmoothing,
			Maturities: service.ParseMaturities(exportMaturities),
			Sector:     exportSector,
			AsBar:      exportBar,
			PNGPath:    exportPNGPath,
			CSVPath:    exportCSVPath,
			XLSXPath:   exportXLSXPath,
			MaxPoints:  exportMaxPoints,
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportTarget, "target", app.TargetMetric, "What to export: metric, sector, macro or watchlist")
	exportCmd.Flags().StringVar(&exportName, "name", "", "Metric name, sector ticker or macro group")
	exportCmd.Flags().IntVar(&exportYears, "years", 2, "Years of history before the current year")
	exportCmd.Flags().IntVar(&exportSmoothing, "smoothing", 1, "Rolling mean window in rows")
	exportCmd.Flags().StringVar(&exportMaturities, "maturities", "", "Comma-separated treasury maturities for the interest_rates group")
	exportCmd.Flags().StringVar(&exportSector, "sector", "all", "Sector fund filter for the watchlist")
	exportCmd.Flags().BoolVar(&exportBar, "bar", false, "Export the latest metric value per sector as a bar chart")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().StringVar(&exportXLSXPath, "xlsx", "", "Path to write the watchlist workbook")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum data points to export (defaults to config)")
}
