// ticketctl is the operator CLI for the ticketing backend: sign in, manage
// events and tickets, and run a one-off scan from the terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"tixie.local/checkin/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run returns the process exit code: 0 on success, 1 on failure, 2 on usage errors.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	flagSet := pflag.NewFlagSet("ticketctl", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.SetInterspersed(false)
	flagSet.StringVar(&cfg.APIURL, "api-url", cfg.APIURL, "backend base URL (API_URL)")
	flagSet.StringVar(&cfg.Locale, "locale", cfg.Locale, "Accept-Language and message locale (LOCALE)")
	flagSet.StringVar(&cfg.TokenFile, "token-file", cfg.TokenFile, "where the session token is kept (TOKEN_FILE)")
	verbose := flagSet.BoolP("verbose", "v", false, "log HTTP traffic")
	flagSet.Usage = func() { printUsage(stderr, flagSet) }

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	if flagSet.NArg() == 0 {
		printUsage(stderr, flagSet)
		return 2
	}

	name := flagSet.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", name)
		printUsage(stderr, flagSet)
		return 2
	}
	if cmd.needsBackend && cfg.APIURL == "" {
		fmt.Fprintf(stderr, "error: %v\n", config.ErrAPIURLRequired)
		return 1
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	a, err := newApp(cfg, stdout, logger)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	cmdFlags := pflag.NewFlagSet("ticketctl "+name, pflag.ContinueOnError)
	cmdFlags.SetOutput(stderr)
	if err := cmd.run(ctx, a, cmdFlags, flagSet.Args()[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		var usage usageError
		if errors.As(err, &usage) {
			fmt.Fprintf(stderr, "usage: ticketctl %s %s\n", name, cmd.usage)
			return 2
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func printUsage(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, "Usage: ticketctl [flags] <command> [args]\n\nCommands:\n")
	for _, name := range commandOrder {
		cmd := commands[name]
		fmt.Fprintf(w, "  %-14s %s\n", name, cmd.summary)
	}
	fmt.Fprintf(w, "\nFlags:\n%s", flagSet.FlagUsages())
}
