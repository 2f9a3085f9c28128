package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/Haraven/autobiographical-exercise/internal/credential"
	"github.com/Haraven/autobiographical-exercise/internal/logging"
	"github.com/Haraven/autobiographical-exercise/internal/mailbox"
	"github.com/Haraven/autobiographical-exercise/internal/model"
	"github.com/Haraven/autobiographical-exercise/internal/roster"
	"github.com/Haraven/autobiographical-exercise/internal/router"
	"github.com/Haraven/autobiographical-exercise/internal/store"
	"github.com/Haraven/autobiographical-exercise/internal/sync"
	"github.com/Haraven/autobiographical-exercise/internal/theme"
)

// runService wires the collaborators together and polls until SIGINT or
// SIGTERM. SIGHUP triggers an immediate poll.
func runService(opts options, stderr io.Writer) error {
	cfg, err := model.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}

	level := cfg.Log.Level
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	root, closeLog, err := logging.New(logging.Options{
		Level:   level,
		File:    cfg.Log.File,
		Console: stderr,
		NoColor: opts.noColor,
	})
	if err != nil {
		return err
	}
	defer closeLog()

	log := logging.For(root, logging.ComponentSystem)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, closeStore, err := buildRouter(ctx, cfg, root)
	if err != nil {
		log.Error().Err(err).Msg("Cannot start")
		return err
	}
	defer closeStore()

	task := func(ctx context.Context) error {
		report, err := rt.Tick(ctx)
		logTick(log, report)
		return err
	}

	if opts.once {
		return task(ctx)
	}

	fmt.Fprintln(stderr, theme.BannerStyle.Render("You may exit this application at any time with Ctrl+C"))

	poller := sync.NewPoller(cfg.PollInterval, task, logging.For(root, logging.ComponentScheduler))

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				log.Info().Msg("Poll requested")
				poller.Trigger()
			}
		}
	}()

	err = poller.Run(ctx)
	log.Info().Msg("Stopped")
	return err
}

// buildRouter opens the roster, pairing store and mailbox and loads the
// router over them. The returned function closes the store.
func buildRouter(
	ctx context.Context, cfg *model.AppConfig, root zerolog.Logger,
) (*router.Router, func() error, error) {
	rosterLog := logging.For(root, logging.ComponentRoster)
	users, err := roster.Load(cfg.Paths.Roster)
	if err != nil {
		// The service keeps polling with nobody eligible rather than exiting.
		rosterLog.Error().Err(err).Msg("Could not read registered users")
	} else {
		rosterLog.Info().Int("users", users.Len()).Msg("Read all registered users successfully")
	}

	pairings, err := store.Open(cfg.Store.Driver, cfg.Paths.Pairings)
	if err != nil {
		return nil, nil, fmt.Errorf("opening pairing store: %w", err)
	}

	password, err := credential.MailboxPassword(cfg.Mailbox.Password, cfg.Mailbox.Username)
	if err != nil {
		pairings.Close()
		if errors.Is(err, credential.ErrNotFound) {
			return nil, nil, fmt.Errorf("no mailbox password for %s: run `autobiographer login` or set %s_MAILBOX_PASSWORD",
				cfg.Mailbox.Username, model.EnvPrefix)
		}
		return nil, nil, err
	}

	mb := mailbox.FromConfig(cfg.Mailbox, password, logging.For(root, logging.ComponentMailbox))

	rt, err := router.New(
		ctx,
		router.ConfigFrom(cfg),
		mb,
		users,
		pairings,
		logging.For(root, logging.ComponentRouter),
	)
	if err != nil {
		pairings.Close()
		if errors.Is(err, store.ErrCorrupt) {
			return nil, nil, fmt.Errorf("%w; fix or restore %s before restarting", err, cfg.Paths.Pairings)
		}
		return nil, nil, err
	}

	return rt, pairings.Close, nil
}

// logTick writes the per-tick summary line.
func logTick(log zerolog.Logger, report *router.TickReport) {
	if report == nil {
		return
	}
	for _, o := range report.Skipped() {
		log.Warn().
			Str("kind", string(o.Kind)).
			Str("sender", o.Message.Sender).
			Str("reason", string(o.Reason)).
			Msg("Submission will be retried")
	}
	log.Info().
		Int("listed", report.Listed).
		Int("new_autobiographies", report.NewAutobiographies).
		Int("new_feedback", report.NewFeedback).
		Int("delivered", len(report.Delivered())).
		Int("skipped", len(report.Skipped())).
		Bool("flushed", report.Flushed).
		Msg("Poll finished")
}
