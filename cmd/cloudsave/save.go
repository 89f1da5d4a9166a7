package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/franksops/cloudsave/engine"
	"github.com/franksops/cloudsave/format"
	"github.com/franksops/cloudsave/pipeline"
	"github.com/franksops/cloudsave/ui"
)

type saveFlags struct {
	raw      bool
	from     string
	value    string
	progress bool
}

func newSaveCmd(a *app) *cobra.Command {
	f := &saveFlags{}
	cmd := &cobra.Command{
		Use:   "save <uri> [-- command [args...]]",
		Short: "Save stdin, a value or a command's output to a location",
		Example: `  tar c ./data | cloudsave save s3://backups/data.tar
  cloudsave save --from json s3://reports/today.yaml < report.json
  cloudsave save file:///tmp/listing.txt -- ls -l /var/log`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSave(cmd, args, f)
		},
	}

	cmd.Flags().BoolVarP(&f.raw, "raw", "r", false, "Write data as is, without converting it for the file extension")
	cmd.Flags().StringVar(&f.from, "from", fromBytes, "How to read stdin: bytes, lines, json or string")
	cmd.Flags().StringVar(&f.value, "value", "", "Save this string instead of reading stdin")
	cmd.Flags().BoolVar(&f.progress, "progress", false, "Show a progress view on the terminal")
	return cmd
}

func (a *app) runSave(cmd *cobra.Command, args []string, f *saveFlags) error {
	uri := args[0]
	var command []string
	if dash := cmd.ArgsLenAtDash(); dash >= 0 {
		if dash != 1 {
			return fmt.Errorf("expected exactly one location before --, got %d", dash)
		}
		command = args[dash:]
		if len(command) == 0 {
			return errors.New("missing command after --")
		}
	} else if len(args) > 1 {
		return fmt.Errorf("expected one location, got %d arguments", len(args))
	}

	// the first signal stops the transfer between chunks; a second one
	// also cancels in-flight backend calls
	var interrupted atomic.Bool
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigChan:
				if interrupted.Swap(true) {
					a.logger.WithField("signal", sig).Warn("second signal, cancelling now")
					cancel()
					return
				}
				a.logger.WithField("signal", sig).Info("interrupted, stopping transfer")
			}
		}
	}()

	locSpan := pipeline.Span{Start: 0, End: len(uri)}
	src := inputSource{from: f.from, command: command, span: locSpan}
	if cmd.Flags().Changed("value") {
		src.value = &f.value
	}
	in, err := buildInput(cmd.InOrStdin(), src)
	if err != nil {
		return err
	}

	journal, err := a.openJournal()
	if err != nil {
		// a busy or broken journal must not stop the save
		a.logger.WithError(err).Warn("journal unavailable, saving without it")
		journal = nil
	}
	var tracker *engine.JobTracker
	if journal != nil {
		defer journal.Close()
		tracker = engine.NewJobTracker(journal, engine.DefaultCheckpointConfig)
	}

	opts := engine.Options{
		Resolver:          a.cfg.NewResolver(),
		Formats:           format.New(),
		Signals:           pipeline.NewSignals(&interrupted),
		Logger:            a.logger,
		Tracker:           tracker,
		PartSize:          a.cfg.Transfer.PartSize,
		KeepFailedUploads: !a.cfg.Transfer.AbortOnError,
		Metadata:          a.cfg.MetadataMapper(),
	}

	var view *progressView
	if f.progress {
		view = startProgressView(uri, opts.PartSize, in.size, func() { interrupted.Store(true) })
		opts.Observer = view.feed.Observe
	}

	saver := engine.NewSaver(opts)
	var res *engine.Result
	err = engine.NewRuntime(a.logger).Block(ctx, func(ctx context.Context) error {
		var err error
		res, err = saver.Save(ctx, in.channel, uri, locSpan, f.raw)
		return err
	})

	if view != nil {
		view.finish(res, err)
	}
	if finishErr := in.finish(err); err == nil {
		err = finishErr
	}
	if err != nil {
		return err
	}

	a.logger.WithFields(logrus.Fields{
		"job_id":   res.JobID,
		"mode":     res.Mode,
		"bytes":    res.Bytes,
		"checksum": fmt.Sprintf("%016x", res.Checksum),
	}).Info("save complete")
	return nil
}

// progressView runs the terminal progress display next to a save.
type progressView struct {
	feed *ui.Feed
	done chan struct{}
}

func startProgressView(dest string, partSize int, size int64, cancel func()) *progressView {
	v := &progressView{feed: ui.NewFeed(), done: make(chan struct{})}
	model := ui.NewTUIModel(v.feed, ui.Options{
		Destination:   dest,
		PartSize:      partSize,
		ExpectedBytes: size,
		Cancel:        cancel,
	})
	// stdin may carry the data, so keys are read from the terminal itself
	program := tea.NewProgram(model, tea.WithOutput(os.Stderr), tea.WithInputTTY())
	go func() {
		defer close(v.done)
		_, _ = program.Run()
	}()
	return v
}

// finish reports the outcome, which also ends the view, and waits for it
// to restore the terminal.
func (v *progressView) finish(res *engine.Result, err error) {
	last := v.feed.Snapshot()
	last.Done = true
	last.Err = err
	if res != nil {
		last.Bytes = res.Bytes
		last.Chunks = res.Chunks
		last.Parts = res.Parts
	}
	v.feed.Observe(last)
	<-v.done
}
