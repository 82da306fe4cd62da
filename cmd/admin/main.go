package main

import (
	"context"
	"os"
	"time"

	"cdr.dev/slog/v3"
	"cdr.dev/slog/v3/sloggers/sloghuman"

	"rollcall/internal/config"
	"rollcall/internal/schoolstore"
	"rollcall/internal/store"
)

func main() {
	logger := slog.Make(sloghuman.Sink(os.Stderr)).Named("admin")
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cli := commandLine{
		cfg: cfg,
		out: os.Stdout,
		openStore: func(ctx context.Context) (migrator, func() error, error) {
			db, err := store.OpenDB(ctx, cfg.DatabaseURL, store.DefaultPool)
			if err != nil {
				return nil, nil, err
			}
			return schoolstore.NewRepository(db.Client), db.Close, nil
		},
	}
	if err := cli.run(ctx, os.Args); err != nil {
		if err != errHelp {
			logger.Error(ctx, "command failed", slog.Error(err))
		}
		cancel()
		os.Exit(1)
	}
}
