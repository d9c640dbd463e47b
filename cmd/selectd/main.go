// Command selectd serves permission-gated search endpoints for incremental
// select widgets.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/selectd/internal/config"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// rootFlags are shared by every subcommand.
type rootFlags struct {
	env        string
	configPath string
}

func (f *rootFlags) load() (config.Config, error) {
	if f.configPath != "" {
		return config.LoadFile(f.configPath)
	}
	return config.Load(f.env)
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "selectd",
		Short: "Permission-gated search backend for incremental select widgets",
		Long: `selectd serves paginated, filterable and authorized option lists over
configured views of SQL tables or static records, and caches permission
decisions in Redis, Valkey or memory.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.env, "env", config.GetEnv(), "environment name, selects config/<env>.yaml")
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "explicit config file path (overrides --env lookup)")

	root.AddCommand(
		newServeCommand(flags),
		newInvalidateCommand(flags),
		newQueryCommand(),
		newVersionCommand(),
	)
	return root
}
