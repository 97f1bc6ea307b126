package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mietwatch/mietwatch/internal/logger"
	"github.com/mietwatch/mietwatch/internal/store"
)

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "List learned per-site extraction patterns",
	Long: `Sites shows what the pattern learner knows about each crawled host:
which strategy and selector wins per field category, with its success
and failure counts.

Examples:
  mietwatch sites
  mietwatch sites --json`,
	RunE: runSites,
}

func init() {
	rootCmd.AddCommand(sitesCmd)

	sitesCmd.Flags().Bool("json", false, "emit profiles as JSON")
}

func runSites(cmd *cobra.Command, args []string) error {
	logger.Init(logger.Options{
		Debug: viper.GetBool("debug"),
		Quiet: viper.GetBool("quiet"),
	})

	dbPath := viper.GetString("db")
	db, err := store.OpenSQLite(dbPath)
	if err != nil {
		logError("failed to open database %s: %v", dbPath, err)
		return err
	}
	defer func() { _ = db.Close() }()

	profiles, err := db.LoadProfiles(context.Background())
	if err != nil {
		logError("failed to load site profiles: %v", err)
		return err
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(profiles)
	}

	if len(profiles) == 0 {
		fmt.Println("no learned sites yet")
		return nil
	}

	hosts := make([]string, 0, len(profiles))
	for host := range profiles {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)

	for _, host := range hosts {
		p := profiles[host]
		fmt.Printf("%s (provider: %s)\n", host, p.Provider)
		for _, pat := range p.Patterns {
			fmt.Printf("  %-12s %-10s ok=%-4d fail=%-4d %s\n",
				pat.Category, pat.Strategy, pat.Successes, pat.Failures, pat.Selector)
		}
		if len(p.DisallowedPaths) > 0 {
			fmt.Printf("  robots disallows: %d paths\n", len(p.DisallowedPaths))
		}
		fmt.Println()
	}
	return nil
}
