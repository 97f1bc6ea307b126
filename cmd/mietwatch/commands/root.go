// Package commands implements the CLI commands for mietwatch.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mietwatch/mietwatch/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "mietwatch",
	Short: "Rental listing crawler with self-learning extraction",
	Long: `Mietwatch crawls rental portals, classifies pages, extracts listing
fields through a strategy chain (structured data, learned selectors,
heuristics, AI fallback) and persists deduplicated listings to SQLite.

Per-host selector patterns are learned across runs, so repeat crawls of
a site get cheaper and stop needing the AI fallback.

Examples:
  # Crawl a rental portal and persist everything it finds
  mietwatch crawl -u "https://www.example-wohnen.de"

  # Dry run with a listing cap, report to stdout
  mietwatch crawl -u "https://www.example-wohnen.de" \
      --save=false --max-listings 20

  # Use site-specific selector overrides
  mietwatch crawl -u "https://www.example-wohnen.de" --sites sites.yaml

  # Inspect learned per-site patterns
  mietwatch sites`,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version.Version, version.Commit, version.Date)

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config file (default $HOME/.mietwatch.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "suppress progress output")
	rootCmd.PersistentFlags().String("db", "mietwatch.db", "path to the SQLite database")

	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
}

func initConfig() {
	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName(".mietwatch")
		viper.SetConfigType("yaml")
	}

	// Environment variables
	viper.SetEnvPrefix("MIETWATCH")
	viper.AutomaticEnv()

	// Also check common API key env vars
	_ = viper.BindEnv("api_key", "ANTHROPIC_API_KEY", "OPENAI_API_KEY", "OPENROUTER_API_KEY")

	// Read config file (ignore error if not found)
	_ = viper.ReadInConfig()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// logError prints an error message to stderr.
func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
