package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/studiowebux/perfwatch/internal/config"
	"github.com/studiowebux/perfwatch/internal/filter"
	"github.com/studiowebux/perfwatch/internal/history"
	"github.com/studiowebux/perfwatch/internal/poller"
	"github.com/studiowebux/perfwatch/internal/replay"
	"github.com/studiowebux/perfwatch/internal/session"
)

// ShowOptions contains options for a one-shot execution report
type ShowOptions struct {
	ExecutionID  string
	OutputFormat string // json, yaml, text
	Query        string // JMESPath query or $(bash command)
	Target       string // fuzzy target pattern
	Tab          string // samples, error, httpCode
	SavePath     string
	Follow       bool          // wait for running executions to finish
	Timeout      time.Duration // bound on waiting for the first tick
	Color        bool
	Session      session.Options
}

// Show opens an execution, waits until it is drained (or, for a running
// execution, until the first tick is in), and writes a report.
func Show(ctx context.Context, src session.Source, opts ShowOptions, w io.Writer) error {
	tab, err := poller.ParseTab(opts.Tab)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle Ctrl+C for graceful cancellation
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			fmt.Fprintln(os.Stderr, "\nWatch cancelled by user")
			cancel()
		case <-ctx.Done():
		}
	}()

	s := session.New(src, opts.Session)
	defer s.Close()
	s.SetTab(tab)

	updates, unsubscribe := s.Subscribe()
	defer unsubscribe()

	if err := s.Open(ctx, opts.ExecutionID); err != nil {
		return err
	}

	if err := wait(ctx, s, updates, tab, opts); err != nil {
		return err
	}
	if err := s.Err(); err != nil {
		return err
	}

	return Report(ctx, s.Snapshot(), opts, w)
}

// wait blocks until the session drained or, unless following, has a first report
func wait(ctx context.Context, s *session.Session, updates <-chan struct{}, tab poller.Tab, opts ShowOptions) error {
	var deadline <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case <-s.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("timed out waiting for execution %s", opts.ExecutionID)
		case _, ok := <-updates:
			if !ok {
				return nil
			}
			if !opts.Follow && ready(s.Snapshot(), tab) {
				return nil
			}
		}
	}
}

// ready reports whether a running execution has enough data for a report
func ready(snap *session.Snapshot, tab poller.Tab) bool {
	if len(snap.Data.Timestamps) == 0 {
		return false
	}
	switch tab {
	case poller.TabError:
		return snap.ErrorsLoaded
	case poller.TabHTTPCode:
		return snap.StatusCodesLoaded
	}
	return true
}

// Report narrows, queries and writes a snapshot
func Report(ctx context.Context, snap *session.Snapshot, opts ShowOptions, w io.Writer) error {
	if opts.Target != "" {
		selected := SelectTargets(opts.Target, snap.Data.Targets)
		if len(selected) == 0 {
			return fmt.Errorf("no target matches %q (known: %s)", opts.Target, strings.Join(snap.Data.Targets, ", "))
		}
		NarrowSnapshot(snap, selected)
	}

	if opts.Query != "" {
		out, err := filter.Apply(ctx, snap, opts.Query)
		if err != nil {
			return err
		}
		return emit(w, out+"\n", opts, !filter.IsShellCommand(opts.Query))
	}

	output, err := FormatSnapshot(snap, opts.OutputFormat, opts.Color)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	return emit(w, output, opts, opts.OutputFormat == FormatJSON)
}

func emit(w io.Writer, output string, opts ShowOptions, isJSON bool) error {
	if opts.SavePath != "" {
		if err := os.WriteFile(opts.SavePath, []byte(output), config.FilePermissions); err != nil {
			return fmt.Errorf("failed to save report: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Report saved to %s\n", opts.SavePath)
		return nil
	}
	if isJSON {
		return writeJSON(w, output, opts.Color)
	}
	_, err := io.WriteString(w, output)
	return err
}

// Replay ingests a recorded dump offline and writes a report
func Replay(ctx context.Context, path string, opts ShowOptions, w io.Writer) error {
	src, err := replay.Load(path)
	if err != nil {
		return err
	}
	opts.ExecutionID = src.ExecutionID()
	opts.Follow = true
	return Show(ctx, src, opts, w)
}

// HistoryOptions contains options for listing recorded runs
type HistoryOptions struct {
	Limit        int
	OutputFormat string
	Delete       int64
}

// History lists, or deletes, recorded runs
func History(ctx context.Context, mgr *history.Manager, opts HistoryOptions, w io.Writer) error {
	if opts.Delete > 0 {
		if err := mgr.DeleteRun(ctx, opts.Delete); err != nil {
			return err
		}
		fmt.Fprintf(w, "Deleted run %d\n", opts.Delete)
		return nil
	}

	runs, err := mgr.ListRuns(ctx, opts.Limit)
	if err != nil {
		return err
	}
	out, err := FormatRuns(runs, opts.OutputFormat)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}
