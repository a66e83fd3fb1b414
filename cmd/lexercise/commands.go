package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/japaniel/lexercise/pkg/analyzer"
	"github.com/japaniel/lexercise/pkg/db"
	"github.com/japaniel/lexercise/pkg/dictionary"
	"github.com/japaniel/lexercise/pkg/exercise"
	"github.com/japaniel/lexercise/pkg/ingest"
)

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %s: %v", errUsage, fs.Name(), err)
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: %s: unexpected argument %q", errUsage, fs.Name(), fs.Arg(0))
	}
	return nil
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// splitList splits a comma separated flag value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func runInit(ctx context.Context, a *app, args []string) error {
	if err := parse(newFlagSet("init"), args); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Database initialized at %s\n", a.cfg.Database.Path)
	return nil
}

// loadDictionary returns nil when no dictionary file is available.
func (a *app) loadDictionary(path string) *dictionary.Importer {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		a.logger.Warn("dictionary not available, definitions will be empty", "path", path, "error", err)
		return nil
	}
	start := time.Now()
	entries, err := dictionary.LoadJMdictSimplified(path)
	if err != nil {
		a.logger.Warn("failed to load dictionary", "path", path, "error", err)
		return nil
	}
	im := dictionary.NewImporter(a.conn, entries)
	im.Logger = a.logger
	a.logger.Info("dictionary loaded", "entries", len(entries), "forms", im.Len(), "elapsed", time.Since(start))
	return im
}

func runImportArticle(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("import-article")
	pageURL := fs.String("url", "", "article URL (required)")
	file := fs.String("file", "", "read the HTML from this file instead of downloading -url")
	language := fs.String("lang", analyzer.Japanese, "language of the article")
	dictPath := fs.String("dict", a.cfg.Dictionary.Path, "JMdict-simplified file used for readings and definitions")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *pageURL == "" {
		return fmt.Errorf("%w: import-article: -url is required", errUsage)
	}

	var article analyzer.Article
	var err error
	if *file != "" {
		body, rerr := os.ReadFile(*file)
		if rerr != nil {
			return fmt.Errorf("read article: %w", rerr)
		}
		article, err = analyzer.ExtractArticle(body, *pageURL)
	} else {
		a.logger.Info("fetching article", "url", *pageURL)
		article, err = analyzer.NewFetcher(a.cfg.HTTP.UserAgent, a.cfg.HTTP.Timeout).Fetch(ctx, *pageURL)
	}
	if err != nil {
		return err
	}
	a.logger.Info("extracted article", "title", article.Title, "chars", len(article.Text))

	sourceID, err := db.CreateOrGetSource(ctx, a.conn, "website_article", article.Title, article.Byline, article.SiteName, article.URL, "")
	if err != nil {
		return fmt.Errorf("persist source: %w", err)
	}

	an, err := analyzer.New()
	if err != nil {
		return fmt.Errorf("create analyzer: %w", err)
	}
	sentences := an.AnalyzeText(*language, article.Text)
	a.logger.Info("analyzed article", "source", sourceID, "sentences", len(sentences))

	var dict *dictionary.Importer
	if *language == analyzer.Japanese {
		dict = a.loadDictionary(*dictPath)
	}
	ig := ingest.NewIngester(a.conn, dict)
	ig.Language = *language
	ig.Workers = a.cfg.Ingest.Workers
	ig.BatchSize = a.cfg.Ingest.BatchSize
	ig.FlushInterval = a.cfg.Ingest.FlushInterval
	ig.Logger = a.logger
	ig.OnProgress = func(current, total int) {
		a.logger.Debug("ingest progress", "source", sourceID, "current", current, "total", total)
	}
	links, err := ig.Ingest(ctx, sourceID, sentences)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	fmt.Fprintf(a.out, "Processing complete. Source %d: linked %d term occurrences.\n", sourceID, links)
	return nil
}

func runImportDict(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("import-dict")
	path := fs.String("path", a.cfg.Dictionary.Path, "JMdict-simplified JSON file")
	if err := parse(fs, args); err != nil {
		return err
	}
	entries, err := dictionary.LoadJMdictSimplified(*path)
	if err != nil {
		return fmt.Errorf("load dictionary: %w", err)
	}
	a.logger.Info("loaded dictionary", "entries", len(entries))

	im := dictionary.NewImporter(a.conn, entries)
	im.Logger = a.logger
	count, err := im.ProcessUpdates(ctx)
	if err != nil {
		return fmt.Errorf("update definitions: %w", err)
	}
	fmt.Fprintf(a.out, "Successfully added definitions for %d terms.\n", count)
	return nil
}

func runImportCorpus(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("import-corpus")
	file := fs.String("file", "", "YAML corpus document (required)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("%w: import-corpus: -file is required", errUsage)
	}
	doc, err := ingest.LoadDocument(*file)
	if err != nil {
		return err
	}
	stats, err := ingest.ImportDocument(ctx, a.conn, doc)
	if err != nil {
		return fmt.Errorf("import corpus: %w", err)
	}
	a.logger.Info("imported corpus document", "file", *file, "language", doc.Language)
	return a.printJSON(stats)
}

func runSources(ctx context.Context, a *app, args []string) error {
	if err := parse(newFlagSet("sources"), args); err != nil {
		return err
	}
	sources, err := db.ListSources(ctx, a.conn)
	if err != nil {
		return err
	}
	type row struct {
		ID            int64     `json:"id"`
		Type          string    `json:"type"`
		Title         string    `json:"title,omitempty"`
		URL           string    `json:"url,omitempty"`
		AddedAt       time.Time `json:"added_at"`
		LastProcessed int       `json:"last_processed_sentence"`
	}
	out := make([]row, 0, len(sources))
	for _, s := range sources {
		out = append(out, row{s.ID, s.SourceType, s.Title, s.URL, s.AddedAt, s.LastProcessed})
	}
	return a.printJSON(out)
}

func runCreate(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("create")
	file := fs.String("file", "-", "exercise JSON file, - for stdin")
	if err := parse(fs, args); err != nil {
		return err
	}
	var r io.Reader = a.in
	if *file != "-" {
		f, err := os.Open(*file)
		if err != nil {
			return fmt.Errorf("open exercise: %w", err)
		}
		defer f.Close()
		r = f
	}
	var ex exercise.Exercise
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&ex); err != nil {
		return fmt.Errorf("%w: decode exercise: %v", errUsage, err)
	}

	svc, err := a.service()
	if err != nil {
		return err
	}
	created, err := svc.Create(ctx, ex)
	if err != nil {
		return err
	}
	return a.printJSON(created)
}

// exerciseFlags registers the -id and -type flags shared by several commands.
func exerciseFlags(fs *flag.FlagSet) (*int64, *string) {
	return fs.Int64("id", 0, "exercise id (required)"), fs.String("type", "", "exercise type (required)")
}

func requireExercise(cmd string, id int64, typ string) error {
	if id <= 0 || typ == "" {
		return fmt.Errorf("%w: %s: -id and -type are required", errUsage, cmd)
	}
	return nil
}

func runBuild(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("build")
	id, typ := exerciseFlags(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := requireExercise("build", *id, *typ); err != nil {
		return err
	}
	svc, err := a.service()
	if err != nil {
		return err
	}
	payload, err := svc.Build(ctx, *id, exercise.Type(*typ))
	if err != nil {
		return err
	}
	return a.printJSON(payload)
}

func runCheck(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("check")
	id, typ := exerciseFlags(fs)
	user := fs.String("user", "", "learner id (required)")
	answer := fs.String("answer", "", `answer body, e.g. {"answer": "ipsum"}`)
	request := fs.String("request", "", "payload the learner was shown")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := requireExercise("check", *id, *typ); err != nil {
		return err
	}
	for _, raw := range []string{*answer, *request} {
		if raw != "" && !json.Valid([]byte(raw)) {
			return fmt.Errorf("%w: check: %q is not valid JSON", errUsage, raw)
		}
	}

	svc, err := a.service()
	if err != nil {
		return err
	}
	res, err := svc.Check(ctx, exercise.CheckRequest{
		UserID:     *user,
		ExerciseID: *id,
		Type:       exercise.Type(*typ),
		Answer:     json.RawMessage(*answer),
		Request:    json.RawMessage(*request),
	})
	if err != nil {
		return err
	}
	return a.printJSON(res)
}

func runList(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("list")
	langs := fs.String("lang", "", "comma separated languages (required)")
	types := fs.String("type", "", "comma separated exercise types, empty or random for all")
	levels := fs.String("level", "", "comma separated levels")
	cardset := fs.Int64("cardset", 0, "cardset whose terms come first")
	seed := fs.String("seed", "", "ordering seed, generated when empty")
	offset := fs.Int("offset", 0, "entries to skip")
	limit := fs.Int("limit", 0, "entries to show, 0 for all")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *seed == "" {
		*seed = uuid.NewString()
		a.logger.Info("generated listing seed", "seed", *seed)
	}
	q := exercise.ListQuery{
		Languages: splitList(*langs),
		Levels:    splitList(*levels),
		CardsetID: *cardset,
		Seed:      *seed,
		PageSize:  a.cfg.Scheduler.PageSize,
	}
	for _, t := range splitList(*types) {
		q.Types = append(q.Types, exercise.Type(t))
	}

	svc, err := a.service()
	if err != nil {
		return err
	}
	listing, err := svc.List(q)
	if err != nil {
		return err
	}

	var entries []exercise.Entry
	if *limit > 0 {
		entries, err = listing.Page(ctx, *offset, *limit)
		if err != nil {
			return err
		}
	} else {
		skipped := 0
		for e, err := range listing.All(ctx) {
			if err != nil {
				return err
			}
			if skipped < *offset {
				skipped++
				continue
			}
			entries = append(entries, e)
		}
	}
	if entries == nil {
		entries = []exercise.Entry{}
	}
	return a.printJSON(struct {
		Seed    string           `json:"seed"`
		Entries []exercise.Entry `json:"entries"`
	}{*seed, entries})
}

func runHistory(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("history")
	id := fs.Int64("id", 0, "exercise id (required)")
	user := fs.String("user", "", "only attempts of this learner")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *id <= 0 {
		return fmt.Errorf("%w: history: -id is required", errUsage)
	}
	svc, err := a.service()
	if err != nil {
		return err
	}
	hist, err := svc.History(ctx, *id, *user)
	if err != nil {
		return err
	}
	if hist == nil {
		hist = []exercise.History{}
	}
	return a.printJSON(hist)
}
