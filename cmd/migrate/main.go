package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/identitywear/storefront-backend/pkg/config"
	"github.com/identitywear/storefront-backend/pkg/db"
	"github.com/identitywear/storefront-backend/pkg/logger"
	"github.com/identitywear/storefront-backend/pkg/migrate"
)

type options struct {
	dir     string
	name    string
	version string
	out     io.Writer
}

// offline commands never open a database connection.
var offline = map[string]func(options) error{
	"create": func(opts options) error {
		if opts.name == "" {
			return errors.New("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name)
		if err != nil {
			return err
		}
		fmt.Fprintln(opts.out, "created migration:", path)
		return nil
	},
	"validate": func(opts options) error {
		if err := migrate.ValidateDir(opts.dir); err != nil {
			return err
		}
		fmt.Fprintln(opts.out, "migration validation passed")
		return nil
	},
}

var online = map[string]func(context.Context, *migrate.Migrator, options) error{
	"up": func(ctx context.Context, m *migrate.Migrator, opts options) error {
		results, err := m.Up(ctx)
		for _, r := range results {
			fmt.Fprintf(opts.out, "OK   %s (%s)\n", r.Source.Path, r.Duration.Round(time.Millisecond))
		}
		return err
	},
	"down": func(ctx context.Context, m *migrate.Migrator, opts options) error {
		result, err := m.Down(ctx)
		if result != nil && result.Source != nil {
			fmt.Fprintf(opts.out, "DOWN %s\n", result.Source.Path)
		}
		return err
	},
	"redo": func(ctx context.Context, m *migrate.Migrator, _ options) error {
		return m.Redo(ctx)
	},
	"status": func(ctx context.Context, m *migrate.Migrator, opts options) error {
		statuses, err := m.Status(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(opts.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "APPLIED AT\tMIGRATION")
		for _, s := range statuses {
			applied := "pending"
			if !s.AppliedAt.IsZero() {
				applied = s.AppliedAt.UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(tw, "%s\t%s\n", applied, s.Source.Path)
		}
		return tw.Flush()
	},
	"version": func(ctx context.Context, m *migrate.Migrator, opts options) error {
		if opts.version == "" {
			current, err := m.Version(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(opts.out, "current version:", current)
			return nil
		}
		target, err := migrate.ParseVersion(opts.version)
		if err != nil {
			return err
		}
		return m.To(ctx, target)
	},
}

func main() {
	cmd := flag.String("cmd", "up", "migration command: up|down|redo|status|version|create|validate")
	opts := options{out: os.Stdout}
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	flag.StringVar(&opts.name, "name", "", "migration name (for create)")
	flag.StringVar(&opts.version, "version", "", "target version YYYYMMDDHHMMSS for -cmd=version; empty prints the current one")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "migrate"})
	ctx := logg.WithFields(context.Background(), map[string]any{"cmd": *cmd, "dir": opts.dir})

	if err := run(ctx, logg, *cmd, opts); err != nil {
		logg.Error(ctx, "migrate failed", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logg *logger.Logger, cmd string, opts options) (err error) {
	if fn, ok := offline[cmd]; ok {
		return fn(opts)
	}
	fn, ok := online[cmd]
	if !ok {
		return fmt.Errorf("unknown -cmd value %q", cmd)
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	var sqlDB *sql.DB
	if sqlDB, err = dbClient.DB().DB(); err != nil {
		return err
	}
	migrator, err := migrate.New(sqlDB, opts.dir)
	if err != nil {
		return err
	}
	return fn(logg.WithField(ctx, "env", cfg.App.Env), migrator, opts)
}
