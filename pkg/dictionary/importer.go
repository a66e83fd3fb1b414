package dictionary

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"

	"github.com/japaniel/lexercise/pkg/corpus"
	"github.com/japaniel/lexercise/pkg/db"
)

const (
	// TermLanguage is the language of the headwords JMdict describes.
	TermLanguage = "ja"
	// GlossLanguage is the language definitions are stored in.
	GlossLanguage = "en"
)

// Importer matches corpus terms against an in-memory JMdict index.
type Importer struct {
	conn *sql.DB
	// index maps kanji and kana forms to the entries containing them. It is
	// built once and only read afterwards, so workers share it without locks.
	index  map[string][]JMdictEntry
	Logger *slog.Logger
}

// NewImporter creates an importer and builds an in-memory index of the provided dictionary.
func NewImporter(conn *sql.DB, entries []JMdictEntry) *Importer {
	idx := make(map[string][]JMdictEntry)
	for _, e := range entries {
		for _, k := range e.Kanji {
			idx[k.Text] = append(idx[k.Text], e)
		}
		for _, k := range e.Kana {
			idx[k.Text] = append(idx[k.Text], e)
		}
	}
	return &Importer{
		conn:   conn,
		index:  idx,
		Logger: slog.Default(),
	}
}

// Len reports the number of indexed forms.
func (im *Importer) Len() int { return len(im.index) }

// ProcessUpdates attaches definitions to every Japanese term that has none
// yet. It returns the number of terms updated.
func (im *Importer) ProcessUpdates(ctx context.Context) (int, error) {
	terms, err := db.TermsWithoutDefinitions(ctx, im.conn, TermLanguage)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, t := range terms {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		senses := Senses(im.Lookup(t.Expression, t.Expression, t.Phonetic))
		if len(senses) == 0 {
			continue
		}
		if err := im.addDefinitions(ctx, t.ID, senses); err != nil {
			im.Logger.Warn("failed to add definitions", "term", t.Expression, "error", err)
			continue
		}
		updated++
	}
	im.Logger.Info("dictionary import finished", "candidates", len(terms), "updated", updated)
	return updated, nil
}

func (im *Importer) addDefinitions(ctx context.Context, termID int64, senses []string) error {
	tx, err := im.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := AddDefinitions(ctx, tx, termID, senses); err != nil {
		return err
	}
	return tx.Commit()
}

// AddDefinitions stores one English definition per sense on the term.
func AddDefinitions(ctx context.Context, exec db.DBExecutor, termID int64, senses []string) error {
	for _, s := range senses {
		if _, err := db.AddDefinition(ctx, exec, corpus.Definition{
			TermID:   termID,
			Language: GlossLanguage,
			Text:     s,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Lookup finds matching entries for a given word, lemma, and pronunciation.
// It returns nil when nothing matches.
func (im *Importer) Lookup(word, lemma, pronunciation string) []JMdictEntry {
	return im.findMatches(word, lemma, pronunciation)
}

func (im *Importer) findMatches(word, lemma, pronunciation string) []JMdictEntry {
	// Candidates come from the surface and the lemma, deduplicated by entry
	// id, then filtered by pronunciation when one is known.
	candidates := make(map[string]JMdictEntry)
	search := func(term string) {
		if term == "" {
			return
		}
		for _, e := range im.index[term] {
			candidates[e.Id] = e
		}
	}
	search(word)
	search(lemma)

	var results []JMdictEntry
	for _, entry := range candidates {
		if isMatch(entry, word, lemma, pronunciation) {
			results = append(results, entry)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Id < results[j].Id
	})
	return results
}

func isMatch(entry JMdictEntry, word, lemma, pronunciation string) bool {
	hasText := false
	for _, k := range entry.Kanji {
		if k.Text == word || k.Text == lemma {
			hasText = true
			break
		}
	}
	for _, k := range entry.Kana {
		if k.Text == word || k.Text == lemma {
			hasText = true
			break
		}
	}
	if !hasText {
		return false
	}
	if pronunciation == "" {
		return true
	}

	want := ToHiragana(pronunciation)
	for _, k := range entry.Kana {
		if ToHiragana(k.Text) == want {
			return true
		}
	}
	return false
}
