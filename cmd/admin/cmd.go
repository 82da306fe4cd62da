package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"rollcall/internal/auth"
	"rollcall/internal/config"
)

var errHelp = errors.New("help provided")

// migrator is the part of the school store the CLI drives.
type migrator interface {
	Migrate(ctx context.Context) error
	SeedDemo(ctx context.Context) error
}

type commandLine struct {
	cfg config.App
	out io.Writer
	// openStore connects to the school database. The returned func closes it.
	openStore func(ctx context.Context) (migrator, func() error, error)
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  token -username USERNAME [-role ROLE] [-ttl DURATION] - issue a console bearer token")
	fmt.Fprintln(cli.out, "  migrate [-seed] - apply the school schema, optionally with demo data")
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	tokenCmd := flag.NewFlagSet("token", flag.ContinueOnError)
	tokenCmd.SetOutput(cli.out)
	tokenUsername := tokenCmd.String("username", "", "The teacher's login name.")
	tokenRole := tokenCmd.String("role", cli.cfg.TeacherRole, "Role claim of the token.")
	tokenTTL := tokenCmd.Duration("ttl", cli.cfg.AccessTTL, "Token lifetime.")

	migrateCmd := flag.NewFlagSet("migrate", flag.ContinueOnError)
	migrateCmd.SetOutput(cli.out)
	migrateSeed := migrateCmd.Bool("seed", cli.cfg.SeedDemo, "Insert the demo school after migrating.")

	switch args[1] {
	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *tokenUsername == "" || *tokenTTL <= 0 {
			tokenCmd.Usage()
			return errHelp
		}
		return cli.issueToken(*tokenUsername, *tokenRole, *tokenTTL)
	case "migrate":
		if err := migrateCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.migrate(ctx, *migrateSeed)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) issueToken(username, role string, ttl time.Duration) error {
	tok, err := auth.Issue(username, role, cli.cfg.JWTIssuer, cli.cfg.JWTSigningKey, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, tok.Value)
	return nil
}

func (cli *commandLine) migrate(ctx context.Context, seed bool) error {
	repo, closeFn, err := cli.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeFn() //nolint:errcheck

	if err := repo.Migrate(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cli.out, "schema applied")
	if !seed {
		return nil
	}
	if err := repo.SeedDemo(ctx); err != nil {
		return fmt.Errorf("seed demo data: %w", err)
	}
	fmt.Fprintln(cli.out, "demo data seeded")
	return nil
}
