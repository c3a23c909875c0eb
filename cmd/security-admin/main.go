// Package main is the entry point for the security component admin CLI.
// This tool manages users and roles directly against the account store.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/koor-fr/security-component/internal/config"
	"github.com/koor-fr/security-component/internal/logging"
	"github.com/koor-fr/security-component/internal/pkg/crypto"
	"github.com/koor-fr/security-component/internal/security"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var errUsage = errors.New("usage")

func main() {
	fs := flag.NewFlagSet("security-admin", flag.ExitOnError)
	configPath := fs.String("config", "", "path to the configuration file")
	fs.Usage = printUsage
	_ = fs.Parse(os.Args[1:])

	args := fs.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := dispatch(ctx, *configPath, args, os.Stdin, os.Stdout)
	stop()

	if errors.Is(err, errUsage) {
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func dispatch(ctx context.Context, configPath string, args []string, in *os.File, out io.Writer) error {
	switch args[0] {
	case "version":
		fmt.Fprintf(out, "Security Component Admin CLI\n")
		fmt.Fprintf(out, "Version: %s\n", Version)
		fmt.Fprintf(out, "Build Time: %s\n", BuildTime)
		fmt.Fprintf(out, "Git Commit: %s\n", GitCommit)
		return nil

	case "keygen":
		pepper, err := crypto.GeneratePepper()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, pepper)
		return nil

	case "help", "-h", "--help":
		printUsage()
		return nil

	case "user", "role", "verify":
		if len(args) < 2 {
			return errUsage
		}

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		return errUsage
	}

	manager, err := openManager(ctx, configPath)
	if err != nil {
		return err
	}
	defer manager.Close()

	c := &cli{
		users: manager.Users(),
		roles: manager.Roles(),
		in:    bufio.NewReader(in),
		fd:    int(in.Fd()),
		out:   out,
	}

	switch args[0] {
	case "user":
		return c.user(ctx, args[1], args[2:])
	case "role":
		return c.role(ctx, args[1], args[2:])
	default:
		return c.verify(ctx, args[1])
	}
}

// openManager opens the store described by the configuration, logging
// warnings and errors to stderr only.
func openManager(ctx context.Context, configPath string) (*security.SQLManager, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	cfg.Logging.Output = "stderr"
	cfg.Logging.Format = "console"
	cfg.Logging.Level = "warn"
	logger, _, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	manager := security.NewSQLManager(cfg, nil, logger)
	if err := manager.Open(ctx); err != nil {
		return nil, err
	}
	return manager, nil
}

func printUsage() {
	fmt.Println(`Security Component Admin CLI

Usage:
  security-admin [-config path] <command> [arguments]

Commands:
  user create <login> [-first name] [-last name] [-email address] [-generate]
  user get <login>
  user enable <login>       Enable an account and clear its error counter
  user disable <login>
  user passwd <login>       Change the password (asks for the current one)
  user delete <login>
  role create <name>
  role list
  role delete <name>
  role assign <login> <role>
  role revoke <login> <role>
  verify <login>            Check a password like the server does
  keygen                    Print a new password pepper
  version                   Print version information
  help                      Show this help message

Passwords are read from the terminal without echo, or one per line from stdin.

Examples:
  security-admin user create bond -first James -last Bond
  security-admin role assign bond agent
  security-admin -config /etc/security-component/config.yaml role list`)
}
