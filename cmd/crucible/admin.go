package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/crucible-dev/crucible/internal/adapter/postgres"
	"github.com/crucible-dev/crucible/internal/config"
)

// runAdmin dispatches admin subcommands (hash-token, checkpoints, prune-checkpoints).
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "hash-token":
		return runAdminHashToken(args[1:])
	case "checkpoints":
		return runAdminCheckpoints(args[1:])
	case "prune-checkpoints":
		return runAdminPruneCheckpoints(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: crucible admin <command> [options]

Commands:
  hash-token         Hash an API bearer token for server.api_token_hash
  checkpoints        List the checkpoint trail for a task
  prune-checkpoints  Delete checkpoints older than a retention period
  help               Show this help message

Examples:
  crucible admin hash-token
  crucible admin checkpoints --task task-1
  crucible admin prune-checkpoints --older-than 720h
`)
}

// runAdminHashToken reads a token from the terminal without echoing and
// prints its bcrypt hash for the server config.
func runAdminHashToken(args []string) error {
	fs := flag.NewFlagSet("hash-token", flag.ContinueOnError)
	cost := fs.Int("cost", bcrypt.DefaultCost, "bcrypt cost factor")
	if err := fs.Parse(args); err != nil {
		return err
	}

	token, err := promptSecret("API token: ")
	if err != nil {
		return fmt.Errorf("read token: %w", err)
	}
	if token == "" {
		return fmt.Errorf("token must not be empty")
	}
	confirm, err := promptSecret("Confirm token: ")
	if err != nil {
		return fmt.Errorf("read token: %w", err)
	}
	if token != confirm {
		return fmt.Errorf("tokens do not match")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(token), *cost)
	if err != nil {
		return fmt.Errorf("hash token: %w", err)
	}

	fmt.Println(string(hash))
	return nil
}

func loadAdminStore() (*postgres.CheckpointStore, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	pool, err := postgres.NewPool(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	return postgres.NewCheckpointStore(pool), pool.Close, nil
}

func runAdminCheckpoints(args []string) error {
	fs := flag.NewFlagSet("checkpoints", flag.ContinueOnError)
	taskID := fs.String("task", "", "task id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *taskID == "" {
		return fmt.Errorf("--task is required")
	}

	store, cleanup, err := loadAdminStore()
	if err != nil {
		return err
	}
	defer cleanup()

	records, err := store.List(context.Background(), *taskID)
	if err != nil {
		return fmt.Errorf("list checkpoints: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("No checkpoints found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tKIND\tPHASE\tAGENT\tDETAIL\tCREATED")
	for i := range records {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			records[i].ID, records[i].Kind, records[i].Phase, records[i].Agent,
			records[i].Detail, records[i].CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func runAdminPruneCheckpoints(args []string) error {
	fs := flag.NewFlagSet("prune-checkpoints", flag.ContinueOnError)
	olderThan := fs.Duration("older-than", 30*24*time.Hour, "retention period")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, cleanup, err := loadAdminStore()
	if err != nil {
		return err
	}
	defer cleanup()

	n, err := store.Prune(context.Background(), time.Now().Add(-*olderThan))
	if err != nil {
		return fmt.Errorf("prune checkpoints: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Pruned %d checkpoints\n", n)
	return nil
}

// promptSecret reads a value from the terminal without echoing.
func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
