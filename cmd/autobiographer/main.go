// Command autobiographer polls an exchange mailbox for autobiography and
// feedback submissions, pairs authors with reviewers and forwards the
// attachments between them.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/Haraven/autobiographical-exercise/internal/model"
	"github.com/Haraven/autobiographical-exercise/internal/theme"
)

const usage = `Usage: autobiographer [command] [flags]

Commands:
  run      poll the mailbox and route submissions (default)
  status   print the pairing table
  check    verify the mailbox connection and credentials
  login    store the mailbox password in the system keyring
  logout   remove the stored mailbox password
  init     write a default configuration file

Flags:
`

// options are the global command-line flags.
type options struct {
	configPath string
	logLevel   string
	noColor    bool
	once       bool
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, theme.ErrorStyle.Render("error: "+err.Error()))
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("autobiographer", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	fs.StringVarP(&opts.configPath, "config", "c", "", "configuration file (default ./config.yaml or ~/.config/autobiographer/config.yaml)")
	fs.StringVar(&opts.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	fs.BoolVar(&opts.noColor, "no-color", false, "disable colored console output")
	fs.BoolVar(&opts.once, "once", false, "run a single poll and exit")
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	if opts.configPath == "" {
		opts.configPath = model.DefaultConfigPath()
	}

	command := "run"
	if fs.NArg() > 0 {
		command = fs.Arg(0)
	}

	switch command {
	case "run":
		return runService(opts, stderr)
	case "status":
		return runStatus(opts, stdout)
	case "check":
		return runCheck(opts, stdout)
	case "login":
		return runLogin(opts, stdout)
	case "logout":
		return runLogout(opts, stdout)
	case "init":
		return runInit(opts, stdout)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}
