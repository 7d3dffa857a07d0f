package commands

import (
	"github.com/spf13/cobra"
)

var (
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "insight-back",
	Short: "Trading insights aggregation backend",
	Long: `Backend for the trading insights dashboard.

It aggregates several market-data vendors behind one normalized API:
• Price-movement predictions with ticker search
• Quotes, price history, company profiles and technical indicators
• Historical and real-time streaming market news
• Generated text insights and speech narration
• Runtime credential management with per-vendor key slots`,
	Version: "1.0.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
