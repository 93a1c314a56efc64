// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/enexconv/internal/convert"
	"github.com/pdiddy/enexconv/pkg/types"
)

var parseCmd = &cobra.Command{
	Use:   "parse [exports...]",
	Short: "Convert Evernote exports to Markdown or HTML",
	Long: `Parse decodes each .enex export and writes every note as a Markdown or
HTML document in its own directory, with its attachments extracted next to
it under attachments/. Directories are searched for **/*.enex.

With --lenient a malformed note fails on its own and the rest of its export
is still converted; otherwise the whole export fails.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runParse,
}

func init() {
	parseCmd.Flags().StringP("output", "o", ".", "directory receiving the converted notes")
	parseCmd.Flags().String("format", "markdown", "output format: markdown or html")
	parseCmd.Flags().Bool("lenient", false, "keep converting an export after a malformed note")

	bindFlag("parse.output_dir", parseCmd.Flags().Lookup("output"))
	bindFlag("parse.format", parseCmd.Flags().Lookup("format"))
	bindFlag("parse.lenient", parseCmd.Flags().Lookup("lenient"))

	rootCmd.AddCommand(parseCmd)
}

// parseSettings builds the parse configuration from flags, config file and
// environment.
func parseSettings() (types.ParseConfig, error) {
	cfg := types.ParseConfig{
		BatchConfig: batchSettings(),
		Format:      types.Format(viper.GetString("parse.format")),
		Lenient:     viper.GetBool("parse.lenient"),
		OutputDir:   viper.GetString("parse.output_dir"),
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func runParse(cmd *cobra.Command, args []string) error {
	cfg, err := parseSettings()
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	return runBatch(cmd.Context(), types.DirectionParse, args, convert.Options{Parse: cfg}, os.Stdout)
}
