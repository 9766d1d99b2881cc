package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "papertrader",
	Short: "A paper-trading simulator with candle storage and replay",
	Long: `Papertrader is a market-data store and paper-trading simulator written in Go.

It provides tools for:
  - Storing per-symbol, per-timeframe candle series with live tick updates
  - Simulated accounts and positions with SL/TP enforcement
  - Scripted trading sessions driven from CSV tick files
  - Historical replay with a movable read cursor
  - Trade journaling to CSV or SQLite
  - Session snapshots for resume`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}
