package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/rs/zerolog"

	"github.com/Haraven/autobiographical-exercise/internal/credential"
	"github.com/Haraven/autobiographical-exercise/internal/mailbox"
	"github.com/Haraven/autobiographical-exercise/internal/model"
	"github.com/Haraven/autobiographical-exercise/internal/report"
	"github.com/Haraven/autobiographical-exercise/internal/roster"
	"github.com/Haraven/autobiographical-exercise/internal/store"
	"github.com/Haraven/autobiographical-exercise/internal/theme"
)

// runStatus prints the persisted pairing table.
func runStatus(opts options, stdout io.Writer) error {
	cfg, err := model.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}

	users, rosterErr := roster.Load(cfg.Paths.Roster)

	pairingStore, err := store.Open(cfg.Store.Driver, cfg.Paths.Pairings)
	if err != nil {
		return fmt.Errorf("opening pairing store: %w", err)
	}
	defer pairingStore.Close()

	pairings, err := pairingStore.Load(context.Background())
	if err != nil {
		return err
	}

	fmt.Fprint(stdout, report.Render(pairings, users.All()))
	if rosterErr != nil {
		fmt.Fprintln(stdout, theme.HelpStyle.Render("roster unavailable: "+rosterErr.Error()))
	}
	return nil
}

// runCheck logs in to the mailbox and selects the polled folder.
func runCheck(opts options, stdout io.Writer) error {
	cfg, err := model.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}

	password, err := credential.MailboxPassword(cfg.Mailbox.Password, cfg.Mailbox.Username)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	mb := mailbox.FromConfig(cfg.Mailbox, password, zerolog.Nop())
	user, err := mb.ValidateConnection(ctx)
	if err != nil {
		if mailbox.IsAuthError(err) {
			return fmt.Errorf("%w (run `autobiographer login` to update the password)", err)
		}
		return err
	}

	fmt.Fprintf(stdout, "Connected to %s:%s as %s, folder %s is readable\n",
		cfg.Mailbox.IMAPHost, cfg.Mailbox.IMAPPort, user, cfg.Mailbox.Folder)
	return nil
}

// runLogin prompts for the mailbox password and stores it in the keyring.
func runLogin(opts options, stdout io.Writer) error {
	cfg, err := model.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}

	var password string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title(fmt.Sprintf("Password for %s", cfg.Mailbox.Username)).
			Description("Stored in the system keyring, never in the config file.").
			EchoMode(huh.EchoModePassword).
			Value(&password).
			Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return errors.New("password cannot be empty")
				}
				return nil
			}),
	))
	if err := form.Run(); err != nil {
		return fmt.Errorf("reading password: %w", err)
	}

	if err := credential.SaveMailboxPassword(cfg.Mailbox.Username, password); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Stored mailbox password for %s\n", cfg.Mailbox.Username)
	return nil
}

// runLogout removes the stored mailbox password.
func runLogout(opts options, stdout io.Writer) error {
	cfg, err := model.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}

	if err := credential.ForgetMailboxPassword(cfg.Mailbox.Username); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Removed mailbox password for %s\n", cfg.Mailbox.Username)
	return nil
}

// runInit writes the default configuration unless a file already exists.
func runInit(opts options, stdout io.Writer) error {
	if _, err := os.Stat(opts.configPath); err == nil {
		return fmt.Errorf("%s already exists", opts.configPath)
	}

	if err := model.SaveConfig(opts.configPath, model.DefaultConfig()); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Wrote %s; set mailbox.username, then run `autobiographer login`\n", opts.configPath)
	return nil
}
