package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/lostphotosfound/cli/config"
	"github.com/lostphotosfound/cli/extract"
	"github.com/lostphotosfound/cli/filter"
	"github.com/lostphotosfound/cli/imap"
	"github.com/lostphotosfound/cli/message"
	"github.com/lostphotosfound/cli/progress"
	"github.com/lostphotosfound/cli/runner"
	"github.com/lostphotosfound/cli/stats"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "lost-photos-found",
		Short: "Recover image attachments from an IMAP mailbox",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cmd)
			if err != nil {
				return err
			}

			logger, cleanup, err := setupLogger(cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = cleanup()
			}()

			slog.SetDefault(logger)
			logger.Info("starting lost-photos-found",
				"host", cfg.Host,
				"user", cfg.Username,
				"output", cfg.SaveRoot(),
				"bySender", cfg.BySender,
				"ignoreIndex", cfg.IgnoreIndex)

			return run(cfg, logger)
		},
	}

	if err := config.RegisterFlags(rootCmd); err != nil {
		fmt.Fprintf(os.Stderr, "failed to register CLI flags: %v\n", err)
		os.Exit(1)
	}

	rootCmd.AddCommand(newStatusCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	r, err := runner.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("runner.New: %w", err)
	}
	stats.NewReporter(r, logger)
	progress.NewProgressReporter(r, progress.New(cfg.LogLevel), logger)

	sessionOpts := imap.Options{
		Host:               cfg.Host,
		Port:               cfg.Port,
		Username:           cfg.Username,
		Password:           cfg.Password,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		Folder:             cfg.Folder,
	}

	dialSearch := func() (imap.Searcher, func(), error) {
		session, err := imap.Dial(sessionOpts, logger)
		if err != nil {
			return nil, nil, err
		}
		return session, session.Close, nil
	}
	if _, err := imap.NewScanner(filter.Criteria(cfg.Search), dialSearch, r, logger); err != nil {
		return fmt.Errorf("imap.NewScanner: %w", err)
	}

	extractor := extract.New(cfg.SaveRoot(), cfg.Username, cfg.BySender, r.Hashes(), logger)
	dialFetch := func() (message.Fetcher, func(), error) {
		session, err := imap.Dial(sessionOpts, logger)
		if err != nil {
			return nil, nil, err
		}
		return session, session.Close, nil
	}
	if _, err := message.NewProcessor(dialFetch, extractor, r, logger); err != nil {
		return fmt.Errorf("message.NewProcessor: %w", err)
	}

	if err := r.Start(); err != nil {
		return err
	}

	fmt.Printf("All done, see %s for your collection of images.\n", filepath.Join(cfg.SaveRoot(), cfg.Username))
	return nil
}

func setupLogger(cfg config.Config) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, cleanup, err
		}

		logFilePath := filepath.Join(cfg.LogDir, fmt.Sprintf("lost-photos-found-%s.log", time.Now().Format("20060102T150405")))
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, err
		}

		handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, file), opts)
		cleanup = func() error {
			return file.Close()
		}
		return slog.New(handler), cleanup, nil
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler), cleanup, nil
}
