package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile    string
	appVersion string // set in Execute, used by serve for telemetry
)

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	appVersion = version
	rootCmd := newRootCmd(version, commit, date)
	return rootCmd.Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "s4kit",
		Short: "Expose SAP OData services through a secure API-key proxy",
		Long: `S4Kit: put your SAP OData services behind a single secure endpoint.

S4Kit authenticates callers with scoped API keys, enforces per-entity
permissions and rate limits, injects SAP credentials server-side (basic,
API key, OAuth2 client credentials, or custom headers), and keeps a
body-free audit log of every proxied request. Credentials are encrypted
at rest and never leave the proxy.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./s4kit.yaml)")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory for SQLite config (default: ~/.s4kit)")

	cobra.OnInitialize(initConfig)

	// Add subcommands
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))
	cmd.AddCommand(newKeyCmd())
	cmd.AddCommand(newAdminCmd())
	cmd.AddCommand(newKeygenCmd())
	cmd.AddCommand(newOpenAPICmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("s4kit")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.s4kit")
	}

	viper.SetEnvPrefix("S4KIT")
	viper.AutomaticEnv()
	viper.ReadInConfig() // Ignore error - config file is optional
}
