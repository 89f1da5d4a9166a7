package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/franksops/cloudsave/config"
	"github.com/franksops/cloudsave/pipeline"
	"github.com/franksops/cloudsave/store"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *logrus.Logger
}

func main() {
	a := &app{}
	if err := newRootCmd(a).Execute(); err != nil {
		a.reportError(err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "cloudsave",
		Short:         "Stream pipeline data into object storage",
		Long:          "cloudsave writes stdin, a value or a command's output to s3://, minio://, oss:// or file:// locations.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to the configuration file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (trace, debug, info, warning, error)")

	root.AddCommand(newSaveCmd(a))
	root.AddCommand(newHistoryCmd(a))
	root.AddCommand(newCleanupCmd(a))
	return root
}

func (a *app) load() error {
	cfg, source, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logger, err := cfg.Logging.NewLogger(os.Stderr)
	if err != nil {
		return err
	}
	logger.WithField("config", source).Debug("loaded configuration")

	a.cfg = cfg
	a.logger = logger
	return nil
}

// openJournal opens the transfer journal. It returns nil when the journal is
// disabled.
func (a *app) openJournal() (store.Store, error) {
	if !a.cfg.State.Enabled {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(a.cfg.StatePath()), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return store.NewBoltStore(a.cfg.StatePath())
}

// reportError writes err as one line on stderr, structured when the logger
// is up.
func (a *app) reportError(err error) {
	if a.logger == nil {
		_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
		return
	}

	entry := a.logger.WithError(err)
	var pe *pipeline.Error
	if errors.As(err, &pe) {
		entry = entry.WithFields(logrus.Fields{
			"kind": pe.Kind,
			"op":   pe.Op,
		})
		if !pe.Span.IsZero() {
			entry = entry.WithField("span", fmt.Sprintf("%d-%d", pe.Span.Start, pe.Span.End))
		}
	}
	entry.Error("cloudsave failed")
}
