// Package cmd assembles groktest's Cobra command tree: the root
// command's positional PROJECT/SUITE/FILE... resolution, flag binding,
// and viper-based user config discovery, grounded on a cmd/root.go
// style (cobra.OnInitialize + viper home-directory config search) and
// a cmd/version.go style (a VersionInfo struct and -V/--version
// handling).
package cmd

import (
	"fmt"
	"os"

	"github.com/flanksource/commons/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	_ "github.com/gar1t/groktest/runtime/python"
	_ "github.com/gar1t/groktest/runtime/shell"
)

var (
	cfgFile     string
	failFast    bool
	concurrency int
	showSkipped bool
	debug       bool
	preview     bool
	last        bool
	showVersion bool
)

var rootCmd = &cobra.Command{
	Use:   "groktest [PROJECT [SUITE]] | [FILE...]",
	Short: "Run literate tests embedded in plain-text documents",
	Long: `groktest extracts prompt-prefixed example blocks from plain-text
documents, evaluates each expression against a long-lived language
runtime, and checks the actual output against the expected output
under a configurable matching policy.`,
	Args: cobra.ArbitraryArgs,
	RunE: func(c *cobra.Command, args []string) error {
		if showVersion {
			printVersion()
			return nil
		}
		return runRoot(c, args)
	},
}

// Execute runs the command tree (error to stderr, non-zero exit).
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// previewCmd and lastCmd give --preview and --last their own entry
// points, matching common Cobra practice, while the root command
// keeps accepting the equivalent flags for direct invocation.
var previewCmd = &cobra.Command{
	Use:   "preview [PROJECT [SUITE]] | [FILE...]",
	Short: "Extract and list tests without running them",
	Args:  cobra.ArbitraryArgs,
	RunE: func(c *cobra.Command, args []string) error {
		preview = true
		return runRoot(c, args)
	},
}

var lastCmd = &cobra.Command{
	Use:   "last",
	Short: "Re-run the most recently run session",
	Args:  cobra.NoArgs,
	RunE: func(c *cobra.Command, args []string) error {
		last = true
		return runRoot(c, nil)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.groktest.yaml)")
	rootCmd.Flags().BoolVarP(&showVersion, "version", "V", false, "show version information")
	rootCmd.Flags().BoolVarP(&failFast, "fail-fast", "f", false, "stop a document's tests at the first failure")
	rootCmd.Flags().IntVarP(&concurrency, "concurrency", "C", 1, "number of documents to run concurrently")
	rootCmd.Flags().BoolVar(&showSkipped, "show-skipped", false, "accepted; skipped tests are not listed in the report")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "log a debug-mode notice (the log level is left unchanged)")
	rootCmd.Flags().BoolVar(&preview, "preview", false, "extract and list tests without running them")
	rootCmd.Flags().BoolVar(&last, "last", false, "re-run the most recent session")

	for _, c := range []*cobra.Command{previewCmd, lastCmd} {
		c.Flags().BoolVarP(&failFast, "fail-fast", "f", false, "stop a document's tests at the first failure")
		c.Flags().IntVarP(&concurrency, "concurrency", "C", 1, "number of documents to run concurrently")
		c.Flags().BoolVar(&showSkipped, "show-skipped", false, "accepted; skipped tests are not listed in the report")
	}
	rootCmd.AddCommand(previewCmd, lastCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigType("yaml")
			viper.SetConfigName(".groktest")
		}
	}

	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err == nil {
		logger.Debugf("using config file: %s", viper.ConfigFileUsed())
	}
}

func printVersion() {
	fmt.Printf("groktest version %s (commit: %s, built: %s)\n", version, commit, date)
}

// version, commit, and date are overridden at link time, package-level
// build-info vars set from main.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// SetVersionInfo lets main supply build-time values.
func SetVersionInfo(v, c, d string) {
	version, commit, date = v, c, d
}
