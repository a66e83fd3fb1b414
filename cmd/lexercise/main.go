// Command lexercise builds a language corpus from web articles and authors,
// renders, grades and schedules exercises over it.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/japaniel/lexercise/pkg/analyzer"
	"github.com/japaniel/lexercise/pkg/config"
	"github.com/japaniel/lexercise/pkg/db"
	"github.com/japaniel/lexercise/pkg/exercise"
)

// errUsage marks command line mistakes.
var errUsage = errors.New("usage")

type command struct {
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"init":           {"create or migrate the database", runInit},
	"import-article": {"fetch an article and add its sentences to the corpus", runImportArticle},
	"import-dict":    {"attach JMdict definitions to terms without one", runImportDict},
	"import-corpus":  {"add terms, relations, media, examples and cardsets from YAML", runImportCorpus},
	"sources":        {"list imported sources and their progress", runSources},
	"create":         {"validate and store an exercise read from JSON", runCreate},
	"build":          {"render an exercise", runBuild},
	"check":          {"grade an answer and record the attempt", runCheck},
	"list":           {"list exercises in seeded order", runList},
	"history":        {"show the attempts on an exercise", runHistory},
}

func main() {
	// A missing .env is fine; the environment and config file still apply.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "lexercise: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, errUsage), errors.Is(err, exercise.ErrInvalid):
		return 2
	case errors.Is(err, exercise.ErrNotFound):
		return 3
	case errors.Is(err, exercise.ErrConflict):
		return 4
	}
	return 1
}

// app carries what every command shares.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	in     io.Reader
	out    io.Writer
	conn   *sql.DB
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("lexercise", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", os.Getenv(config.EnvPrefix+"CONFIG"), "path to the YAML config file")
	dbPath := fs.String("db", "", "path to the SQLite database (overrides the config)")
	fs.Usage = func() { usage(fs) }
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("%w: missing command", errUsage)
	}
	name := fs.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fs.Usage()
		return fmt.Errorf("%w: unknown command %q", errUsage, name)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	level, err := cfg.LogLevel()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	conn, err := db.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer conn.Close()
	logger.Debug("database ready", "path", cfg.Database.Path)

	a := &app{cfg: cfg, logger: logger, in: stdin, out: stdout, conn: conn}
	return cmd.run(ctx, a, fs.Args()[1:])
}

func usage(fs *flag.FlagSet) {
	out := fs.Output()
	fmt.Fprintln(out, "Usage: lexercise [-config file] [-db path] <command> [flags]")
	fmt.Fprintln(out, "\nCommands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-15s %s\n", name, commands[name].summary)
	}
	fmt.Fprintln(out, "\nFlags:")
	fs.PrintDefaults()
}

// service wires the exercise engine to the database.
func (a *app) service() (*exercise.Service, error) {
	opts := []exercise.Option{exercise.WithLogger(a.logger)}
	an, err := analyzer.New()
	if err != nil {
		return nil, fmt.Errorf("create analyzer: %w", err)
	}
	opts = append(opts, exercise.WithTokenizer(an))
	store := db.NewStore(a.conn)
	return exercise.NewService(store, store, opts...), nil
}
