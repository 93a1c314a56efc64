// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/viper"

	"github.com/pdiddy/enexconv/internal/convert"
	"github.com/pdiddy/enexconv/pkg/types"
)

// partialError reports a run in which some items failed.
type partialError struct {
	failed, total int
}

func (e *partialError) Error() string {
	return fmt.Sprintf("%d of %d item(s) failed", e.failed, e.total)
}

// batchSettings reads the settings shared by both directions.
func batchSettings() types.BatchConfig {
	return types.BatchConfig{
		Workers:  viper.GetInt("workers"),
		FailFast: viper.GetBool("fail_fast"),
		MaxDepth: viper.GetInt("max_depth"),
		Report:   viper.GetString("report"),
	}
}

// runBatch expands args and runs the job until done or interrupted.
func runBatch(ctx context.Context, dir types.Direction, args []string, opts convert.Options, w io.Writer) error {
	inputs, err := convert.ExpandInputs(args, dir)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts.Progress = w
	opts.Version = version
	report, err := convert.Run(ctx, convert.Job{Direction: dir, Inputs: inputs}, opts)
	if err != nil {
		return err
	}
	if n := report.Count(types.StateFailed); n > 0 {
		return &partialError{failed: n, total: len(report.Items)}
	}
	return nil
}
