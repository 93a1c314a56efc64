// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the enexconv CLI.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// version is set at build time via ldflags.
var version = "dev"

// Exit codes.
const (
	exitOK      = 0
	exitPartial = 1
	exitFatal   = 2
)

// rootCmd is the base command for the enexconv CLI.
var rootCmd = &cobra.Command{
	Use:   "enexconv",
	Short: "Convert Evernote exports to and from Markdown and HTML",
	Long: `enexconv converts Evernote export files (.enex) into Markdown or HTML
documents with their attachments, and generates export files from such
documents.

Each direction is a subcommand: parse reads exports, generate writes them.
Inputs may be files, directories or glob patterns; every note is converted
independently and reported on its own line.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./enexconv.yaml or ~/.config/enexconv/enexconv.yaml)")
	pf.Int("workers", 1, "number of items converted concurrently")
	pf.Bool("fail-fast", false, "skip the remaining items after the first failure")
	pf.Int("max-depth", 8, "maximum list and quote nesting depth")
	pf.String("report", "", "write a run report to this .yaml or .json file")

	bindFlag("workers", pf.Lookup("workers"))
	bindFlag("fail_fast", pf.Lookup("fail-fast"))
	bindFlag("max_depth", pf.Lookup("max-depth"))
	bindFlag("report", pf.Lookup("report"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("enexconv")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "enexconv"))
		}
	}

	viper.SetEnvPrefix("ENEXCONV")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// bindFlag binds a flag to a config key. Both are declared in this package,
// so a failure is a programming error.
func bindFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

// exitCode maps a command error to the process exit status: 1 when some
// items failed and others were converted, 2 for anything that stopped the
// run as a whole.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var partial *partialError
	if errors.As(err, &partial) {
		return exitPartial
	}
	return exitFatal
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}
