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

var generateCmd = &cobra.Command{
	Use:   "generate [documents...]",
	Short: "Build Evernote exports from Markdown or HTML documents",
	Long: `Generate reads Markdown (with optional YAML frontmatter) or HTML
documents and writes each as an .enex export holding one note. Local images
and links become attachments; they are looked up relative to the document,
in --attachments-dir, and in assets/, images/ and attachments/ next to it.

A single document is written to the --output path; several are written to
<output>/<name>.enex.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringP("output", "o", "", "export file, or directory for several documents")
	generateCmd.Flags().String("format", "", "input format: markdown or html (default: by extension)")
	generateCmd.Flags().String("attachments-dir", "", "directory searched for referenced attachments")

	bindFlag("generate.output", generateCmd.Flags().Lookup("output"))
	bindFlag("generate.format", generateCmd.Flags().Lookup("format"))
	bindFlag("generate.attachments_dir", generateCmd.Flags().Lookup("attachments-dir"))

	rootCmd.AddCommand(generateCmd)
}

// generateSettings builds the generate configuration from flags, config file
// and environment.
func generateSettings() (types.GenerateConfig, error) {
	cfg := types.GenerateConfig{
		BatchConfig:    batchSettings(),
		Format:         types.Format(viper.GetString("generate.format")),
		AttachmentsDir: viper.GetString("generate.attachments_dir"),
		Output:         viper.GetString("generate.output"),
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := generateSettings()
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	return runBatch(cmd.Context(), types.DirectionGenerate, args, convert.Options{Generate: cfg}, os.Stdout)
}
