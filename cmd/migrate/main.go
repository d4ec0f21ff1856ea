package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/furnique/furnique-backend/pkg/config"
	"github.com/furnique/furnique-backend/pkg/db"
	"github.com/furnique/furnique-backend/pkg/logger"
	"github.com/furnique/furnique-backend/pkg/migrate"
)

const usage = `usage: migrate -cmd <command> [flags]

commands without a database:
  create -name <name>     write a new empty migration
  validate                check file names and goose sections
  list                    print migrations in apply order

commands against FURNIQUE_DB_DSN:
  up | down | redo | status
  version -version <YYYYMMDDHHMMSS>
`

func main() {
	cmd := flag.String("cmd", "up", "migration command")
	dir := flag.String("dir", migrate.DefaultDir, "goose migrations directory")
	name := flag.String("name", "", "migration name for create")
	version := flag.String("version", "", "target version for -cmd=version")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if done := offline(*cmd, *dir, *name); done {
		return
	}

	logg := logger.New(logger.Options{ServiceName: "migrate"})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		fail(context.Background(), logg, "failed to load config", err)
	}
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"cmd":    *cmd,
		"dir":    *dir,
		"driver": cfg.DB.Driver,
	})

	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		fail(ctx, logg, "failed to bootstrap database", err)
	}
	defer client.Close()

	if cfg.DB.UsesSQLite() {
		if *cmd != "up" {
			fail(ctx, logg, "unsupported on sqlite", fmt.Errorf("sqlite databases only support -cmd=up"))
		}
		if err := migrate.SQLite(client.DB()); err != nil {
			fail(ctx, logg, "sqlite migration failed", err)
		}
		logg.Info(ctx, "sqlite schema up to date")
		return
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		fail(ctx, logg, "failed to open sql handle", err)
	}
	switch *cmd {
	case "up", "down", "redo", "status":
		err = migrate.Goose(ctx, sqlDB, *dir, *cmd)
	case "version":
		if *version == "" {
			err = fmt.Errorf("-version is required")
			break
		}
		err = migrate.To(ctx, sqlDB, *dir, *version)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fail(ctx, logg, "migration failed", err)
	}
	logg.Info(ctx, "migration finished")
}

// offline handles the commands that only touch the migrations directory.
func offline(cmd, dir, name string) bool {
	switch cmd {
	case "create":
		if name == "" {
			fmt.Fprintln(os.Stderr, "create needs -name")
			os.Exit(2)
		}
		path, err := migrate.CreateSQLMigration(dir, name)
		exitOn(err)
		fmt.Println(path)
	case "validate":
		exitOn(migrate.ValidateDir(dir))
		fmt.Println("ok")
	case "list":
		files, err := migrate.Scan(dir)
		exitOn(err)
		for _, f := range files {
			fmt.Printf("%s  %s\n", f.Version, f.Name)
		}
	default:
		return false
	}
	return true
}

func exitOn(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func fail(ctx context.Context, logg *logger.Logger, msg string, err error) {
	logg.Error(ctx, msg, err)
	os.Exit(1)
}
