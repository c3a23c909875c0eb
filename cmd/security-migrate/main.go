// Package main is the entry point for the security component migration tool.
// It applies the embedded schema migrations of the configured account store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/pressly/goose/v3"

	"github.com/koor-fr/security-component/internal/config"
	"github.com/koor-fr/security-component/internal/logging"
	"github.com/koor-fr/security-component/internal/security"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	fs := flag.NewFlagSet("security-migrate", flag.ExitOnError)
	configPath := fs.String("config", "", "path to the configuration file")
	fs.Usage = printUsage
	_ = fs.Parse(os.Args[1:])

	if fs.NArg() != 1 {
		printUsage()
		os.Exit(1)
	}

	command := fs.Arg(0)
	switch command {
	case "version":
		fmt.Printf("Security Component Migration Tool\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)
		return

	case "help", "-h", "--help":
		printUsage()
		return

	case "up", "down", "status", "db-version":

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, *configPath, command, os.Stdout)
	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, command string, out io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	cfg.Logging.Output = "stderr"
	logger, _, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}

	store, err := security.OpenStore(ctx, cfg.Database, false, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	provider, err := store.MigrationProvider()
	if err != nil {
		return err
	}

	return migrate(ctx, provider, command, out)
}

// migrate runs one goose command against provider.
func migrate(ctx context.Context, provider *goose.Provider, command string, out io.Writer) error {
	switch command {
	case "up":
		results, err := provider.Up(ctx)
		if err != nil {
			return fmt.Errorf("failed to apply migrations: %w", err)
		}
		if len(results) == 0 {
			fmt.Fprintln(out, "No pending migrations")
		}
		for _, r := range results {
			fmt.Fprintf(out, "Applied %s in %s\n", r.Source.Path, r.Duration)
		}
		return nil

	case "down":
		result, err := provider.Down(ctx)
		if err != nil {
			if errors.Is(err, goose.ErrNoNextVersion) {
				fmt.Fprintln(out, "No migration to roll back")
				return nil
			}
			return fmt.Errorf("failed to roll back migration: %w", err)
		}
		fmt.Fprintf(out, "Rolled back %s in %s\n", result.Source.Path, result.Duration)
		return nil

	case "status":
		statuses, err := provider.Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to read migration status: %w", err)
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "VERSION\tSTATE\tAPPLIED AT\tSOURCE")
		for _, s := range statuses {
			applied := "-"
			if !s.AppliedAt.IsZero() {
				applied = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.Source.Version, s.State, applied, s.Source.Path)
		}
		return tw.Flush()

	case "db-version":
		version, err := provider.GetDBVersion(ctx)
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}
		fmt.Fprintf(out, "Schema version: %d\n", version)
		return nil

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func printUsage() {
	fmt.Println(`Security Component Migration Tool

Usage:
  security-migrate [-config path] <command>

Commands:
  up          Run all pending migrations
  down        Roll back the last migration
  status      Show the state of every migration
  db-version  Print the current schema version
  version     Print version information
  help        Show this help message

The store is selected by the database section of the configuration
(SECURITY_DATABASE_DRIVER, SECURITY_DATABASE_PATH, ...).

Examples:
  security-migrate up
  security-migrate -config /etc/security-component/config.yaml status`)
}
