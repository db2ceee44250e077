// cmd/tools/notify-pass/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"kennel-notifications/internal/bootstrap"
	"kennel-notifications/internal/common/config"
	"kennel-notifications/internal/common/database"
	"kennel-notifications/internal/common/logger"
	"kennel-notifications/internal/notifications/store"
	processdue "kennel-notifications/internal/workers/notifications/process-due"
)

func main() {
	var (
		once       = flag.Bool("once", false, "run one notification pass and print the summary")
		requeue    = flag.String("requeue", "", "move a FAILED notification back to PENDING")
		listFailed = flag.Int("list-failed", 0, "print the N most recent FAILED notifications")
		configPath = flag.String("config", "", "config file (default: configs/config.yaml)")
		logLevel   = flag.String("log-level", "warn", "log level")
	)
	flag.Parse()

	if !*once && *requeue == "" && *listFailed <= 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fail(err)
	}
	log := logger.NewStructured(*logLevel, "console")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *once:
		err = runOnce(ctx, cfg, log)
	case *requeue != "":
		err = withStore(ctx, cfg, func(s *store.PostgresStore) error {
			ok, err := s.Requeue(ctx, *requeue)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("notification %s is not FAILED", *requeue)
			}
			fmt.Printf("notification %s requeued\n", *requeue)
			return nil
		})
	default:
		err = withStore(ctx, cfg, func(s *store.PostgresStore) error {
			failed, err := s.ListFailed(ctx, *listFailed)
			if err != nil {
				return err
			}
			return printJSON(failed)
		})
	}
	if err != nil {
		fail(err)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func runOnce(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	components, err := bootstrap.Build(ctx, cfg, "notify-pass", log)
	if err != nil {
		return err
	}
	defer components.Close()

	summary, err := components.Handler.RunPass(ctx, processdue.TriggerCLI)
	if printErr := printJSON(summary); printErr != nil {
		return printErr
	}
	return err
}

func withStore(ctx context.Context, cfg *config.Config, fn func(s *store.PostgresStore) error) error {
	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		return err
	}
	defer pg.Close()

	if err := pg.Ping(ctx); err != nil {
		return fmt.Errorf("postgres unreachable: %w", err)
	}
	return fn(store.NewPostgresStore(pg.DB))
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "notify-pass: %v\n", err)
	os.Exit(1)
}
