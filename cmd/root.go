package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "pgreorg",
	Short: "Online physical table reorganization for PostgreSQL",
	Long: `pgreorg reorganizes a PostgreSQL table's physical storage online.

It rebuilds a table (optionally sorted by a cluster key or a custom column
list) and all of its indexes into fresh storage, replays concurrent writes
through a change log, and swaps the new storage in under a brief
access-exclusive lock — without blocking readers and writers for the
duration of the rebuild.

Know exactly which tables reorganized cleanly and which didn't. No guesses.`,
}

// Execute is called by main.main(). It adds all child commands to the root
// command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.pgreorg/config.yaml)")
	rootCmd.PersistentFlags().StringP("host", "H", "", "PostgreSQL host")
	rootCmd.PersistentFlags().IntP("port", "P", 5432, "PostgreSQL port")
	rootCmd.PersistentFlags().StringP("user", "U", "", "PostgreSQL user")
	rootCmd.PersistentFlags().StringP("password", "W", "", "PostgreSQL password (prompted for when none is supplied)")
	rootCmd.PersistentFlags().Lookup("password").NoOptDefVal = "" // Empty: -W requires a value; commands prompt when no password is supplied
	rootCmd.PersistentFlags().StringP("dbname", "d", "", "Target database")
	rootCmd.PersistentFlags().StringP("socket", "S", "", "Unix socket directory")
	rootCmd.PersistentFlags().String("sslmode", "", "SSL mode: disable, allow, prefer, require, verify-ca, verify-full")
	rootCmd.PersistentFlags().StringP("format", "f", "text", "Output format: text, plain, json, markdown")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Dump descriptor and phase headers to stderr/log")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Suppress progress output")

	// Bind flags to viper
	viper.BindPFlag("host", rootCmd.PersistentFlags().Lookup("host"))
	viper.BindPFlag("port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("user", rootCmd.PersistentFlags().Lookup("user"))
	viper.BindPFlag("password", rootCmd.PersistentFlags().Lookup("password"))
	viper.BindPFlag("dbname", rootCmd.PersistentFlags().Lookup("dbname"))
	viper.BindPFlag("socket", rootCmd.PersistentFlags().Lookup("socket"))
	viper.BindPFlag("sslmode", rootCmd.PersistentFlags().Lookup("sslmode"))
	viper.BindPFlag("format", rootCmd.PersistentFlags().Lookup("format"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return
		}
		viper.AddConfigPath(home + "/.pgreorg")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("PGREORG")
	viper.AutomaticEnv()

	// Silently ignore missing config file — it's optional
	if err := viper.ReadInConfig(); err == nil {
		// Map nested config structure to flat keys that flags expect
		// Only set these if the flags haven't been explicitly set by the user
		if !rootCmd.PersistentFlags().Changed("host") && viper.IsSet("connections.default.host") {
			viper.Set("host", viper.GetString("connections.default.host"))
		}
		if !rootCmd.PersistentFlags().Changed("port") && viper.IsSet("connections.default.port") {
			viper.Set("port", viper.GetInt("connections.default.port"))
		}
		if !rootCmd.PersistentFlags().Changed("user") && viper.IsSet("connections.default.user") {
			viper.Set("user", viper.GetString("connections.default.user"))
		}
		if !rootCmd.PersistentFlags().Changed("dbname") && viper.IsSet("connections.default.dbname") {
			viper.Set("dbname", viper.GetString("connections.default.dbname"))
		}
		if !rootCmd.PersistentFlags().Changed("format") && viper.IsSet("defaults.format") {
			viper.Set("format", viper.GetString("defaults.format"))
		}
	}
}
