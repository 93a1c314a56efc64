// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package convert runs batches of conversions between export containers and
// plain-text documents. It owns the filesystem boundary: it reads inputs,
// writes outputs atomically and materializes attachments, while the
// enex and transcode packages stay pure.
//
// Every batch item moves through pending, decoding, transcoding and
// encoding to done, or ends failed at whichever stage broke. One item's
// failure never affects its siblings unless FailFast is set, in which case
// items after it that have not started are skipped.
package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/enexconv/internal/attach"
	"github.com/pdiddy/enexconv/internal/dedup"
	"github.com/pdiddy/enexconv/internal/note"
	"github.com/pdiddy/enexconv/pkg/types"
)

// ErrNoneConverted is returned by Run when no item reached done.
var ErrNoneConverted = errors.New("no item converted")

// Job is one batch: a direction and its already expanded input paths.
type Job struct {
	Direction types.Direction
	Inputs    []string
}

// Options configures Run. Only the config of the job's direction is used;
// it must have been validated.
type Options struct {
	Parse    types.ParseConfig
	Generate types.GenerateConfig

	// Progress receives one status line per item and a summary. Nil
	// discards them.
	Progress io.Writer

	// Now stamps generated containers; time.Now when nil.
	Now func() time.Time

	// Version is written on generated containers.
	Version string
}

// Run converts every input of job and returns the per-item report in input
// order. The error is ErrNoneConverted when nothing was converted, or a
// setup failure; item failures are only reported.
func Run(ctx context.Context, job Job, opts Options) (types.Report, error) {
	if opts.Progress == nil {
		opts.Progress = io.Discard
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	index, err := dedup.Open()
	if err != nil {
		return types.Report{}, err
	}
	defer index.Close()

	r := &runner{opts: opts, index: index, w: opts.Progress}

	var (
		items []*item
		batch types.BatchConfig
	)
	switch job.Direction {
	case types.DirectionParse:
		batch = opts.Parse.BatchConfig
		items = r.planParse(ctx, job.Inputs)
	case types.DirectionGenerate:
		batch = opts.Generate.BatchConfig
		items = r.planGenerate(job.Inputs)
	default:
		return types.Report{}, fmt.Errorf("unknown direction %q", job.Direction)
	}

	r.execute(ctx, items, batch)

	report := types.Report{Direction: job.Direction}
	for _, it := range items {
		report.Items = append(report.Items, it.report)
	}
	// The run context may be cancelled by now; the index is ours alone.
	shared, err := index.Shared(context.Background())
	if err != nil {
		return report, err
	}
	report.Shared = byItem(shared, items)

	r.summarize(report)

	if batch.Report != "" {
		if err := WriteReport(batch.Report, report); err != nil {
			return report, err
		}
	}
	if report.Count(types.StateDone) == 0 {
		return report, ErrNoneConverted
	}
	return report, nil
}

// item is one unit of work. Items that failed while planning carry err and
// no work.
type item struct {
	report types.ItemReport
	err    error
	work   func(ctx context.Context, it *item) error

	// owner is the ID of the note the item converts; the dedup index knows
	// the item by it.
	owner string
}

// byItem replaces the note IDs of shared with the IDs of the items that
// converted those notes.
func byItem(shared []types.SharedAttachment, items []*item) []types.SharedAttachment {
	ids := make(map[string]string, len(items))
	for _, it := range items {
		if it.owner != "" {
			ids[it.owner] = it.report.ID
		}
	}
	for i := range shared {
		for j, owner := range shared[i].Notes {
			if id, ok := ids[owner]; ok {
				shared[i].Notes[j] = id
			}
		}
	}
	return shared
}

func newItem(id, input string) *item {
	return &item{report: types.ItemReport{ID: id, Input: input, State: types.StatePending}}
}

func (it *item) advance(state types.ItemState) {
	it.report.State = state
}

func (it *item) warn(msgs ...string) {
	it.report.Warnings = append(it.report.Warnings, msgs...)
}

func (it *item) output(paths ...string) {
	it.report.Output = append(it.report.Output, paths...)
}

// fail records err against the stage the item was in.
func (it *item) fail(err error) {
	stage := it.report.State
	if stage == types.StatePending {
		stage = types.StateDecoding
	}
	it.report.Stage = stage
	it.report.State = types.StateFailed
	it.report.Error = err.Error()
	it.report.ErrorKind = note.Kind(err)
}

type runner struct {
	opts  Options
	index *dedup.Index

	mu sync.Mutex
	w  io.Writer

	// dirs caches attachment directories indexed for the generate direction.
	dirsMu sync.Mutex
	dirs   map[string]*attach.Dir
}

func (r *runner) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, format, args...)
}

// execute runs the items on a pool of batch.Workers goroutines. The context
// and the fail-fast flag are checked before each item starts; items already
// running finish. Under FailFast only items after the first failure in input
// order are skipped.
func (r *runner) execute(ctx context.Context, items []*item, batch types.BatchConfig) {
	workers := batch.Workers
	if workers <= 0 {
		workers = 1
	}

	var firstFailed atomic.Int64
	firstFailed.Store(math.MaxInt64)
	finish := func(i int, it *item) {
		if it.report.State == types.StateFailed && batch.FailFast {
			for {
				cur := firstFailed.Load()
				if int64(i) >= cur || firstFailed.CompareAndSwap(cur, int64(i)) {
					break
				}
			}
		}
		r.status(it)
	}
	skip := func(i int, it *item) bool {
		if ctx.Err() == nil && int64(i) < firstFailed.Load() {
			return false
		}
		it.report.State = types.StateSkipped
		r.status(it)
		return true
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i, it := range items {
		if it.report.State != types.StatePending && it.err == nil {
			finish(i, it)
			continue
		}
		if it.err != nil {
			it.fail(it.err)
			finish(i, it)
			continue
		}
		if skip(i, it) {
			continue
		}
		i, it := i, it
		g.Go(func() error {
			if skip(i, it) {
				return nil
			}
			if err := it.work(ctx, it); err != nil {
				it.fail(err)
				if it.owner != "" {
					if rerr := r.index.Release(context.Background(), it.owner); rerr != nil {
						it.warn(fmt.Sprintf("releasing attachments: %v", rerr))
					}
				}
			} else {
				it.advance(types.StateDone)
			}
			finish(i, it)
			return nil
		})
	}
	g.Wait()
}

func (r *runner) status(it *item) {
	rep := it.report
	r.mu.Lock()
	defer r.mu.Unlock()
	switch rep.State {
	case types.StateDone:
		target := ""
		if len(rep.Output) > 0 {
			target = " -> " + rep.Output[0]
		}
		fmt.Fprintf(r.w, "converted: %s%s\n", rep.ID, target)
	case types.StateFailed:
		fmt.Fprintf(r.w, "failed:  %s (%s)\n", rep.ID, rep.Error)
	case types.StateSkipped:
		fmt.Fprintf(r.w, "skipped: %s\n", rep.ID)
	}
	for _, msg := range rep.Warnings {
		fmt.Fprintf(r.w, "  warning: %s: %s\n", rep.ID, msg)
	}
}

func (r *runner) summarize(report types.Report) {
	done := report.Count(types.StateDone)
	skipped := report.Count(types.StateSkipped)
	failed := report.Count(types.StateFailed)
	r.printf("\nBatch summary: %d converted, %d skipped, %d failed (total: %d)\n",
		done, skipped, failed, len(report.Items))

	if len(report.Shared) > 0 {
		saved, err := r.index.Saved(context.Background())
		if err != nil {
			r.printf("warning: %v\n", err)
			return
		}
		r.printf("Shared attachments: %d (%d bytes not duplicated)\n", len(report.Shared), saved)
	}
}
