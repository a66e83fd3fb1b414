package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/japaniel/lexercise/pkg/corpus"
)

// DBExecutor is an interface that allows methods to accept either *sql.DB or *sql.Tx
type DBExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// isUniqueConstraintErr returns true when the error is a unique or primary key
// violation.
func isUniqueConstraintErr(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// nullableInt64 returns nil for 0 (meaning unset) else the value.
func nullableInt64(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// CreateOrGetTerm returns the id of the term, inserting it when missing. A
// non-empty level replaces the stored one.
func CreateOrGetTerm(ctx context.Context, db DBExecutor, language, expression, level string) (int64, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return 0, fmt.Errorf("expression must be non-empty")
	}
	if language == "" {
		return 0, fmt.Errorf("language must be non-empty")
	}
	var id int64
	err := db.QueryRowContext(ctx, `INSERT INTO terms (language, expression, level)
		VALUES (?, ?, ?)
		ON CONFLICT(expression, language)
		DO UPDATE SET level = COALESCE(excluded.level, terms.level)
		RETURNING id`, language, expression, nullableString(level)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert term: %w", err)
	}
	return id, nil
}

// CreateOrGetExample returns the id of the example sentence, inserting it when
// missing.
func CreateOrGetExample(ctx context.Context, db DBExecutor, language, text, level string, sourceID int64) (int64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, fmt.Errorf("example text must be non-empty")
	}
	var id int64
	err := db.QueryRowContext(ctx, `INSERT INTO term_examples (language, text, level, source_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(text, language)
		DO UPDATE SET
		  level = COALESCE(excluded.level, term_examples.level),
		  source_id = COALESCE(term_examples.source_id, excluded.source_id)
		RETURNING id`, language, text, nullableString(level), nullableInt64(sourceID)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert example: %w", err)
	}
	return id, nil
}

// LinkTermExample records where a term or a lexical appears in an example.
// Linking the same pair again replaces its highlight ranges.
func LinkTermExample(ctx context.Context, db DBExecutor, link corpus.ExampleLink) (int64, error) {
	if link.TermExampleID <= 0 {
		return 0, fmt.Errorf("termExampleID must be positive")
	}
	if (link.TermID == 0) == (link.TermLexicalID == 0) {
		return 0, fmt.Errorf("exactly one of termID and termLexicalID must be set")
	}
	highlight := link.Highlight
	if highlight == nil {
		highlight = []corpus.Range{}
	}
	h, err := json.Marshal(highlight)
	if err != nil {
		return 0, fmt.Errorf("encode highlight: %w", err)
	}

	var id int64
	err = db.QueryRowContext(ctx, `SELECT id FROM term_example_links
		WHERE term_example_id = ? AND IFNULL(term_id, 0) = ? AND IFNULL(term_lexical_id, 0) = ?`,
		link.TermExampleID, link.TermID, link.TermLexicalID).Scan(&id)
	switch {
	case err == nil:
		if _, err := db.ExecContext(ctx, `UPDATE term_example_links SET highlight = ? WHERE id = ?`, string(h), id); err != nil {
			return 0, fmt.Errorf("update example link: %w", err)
		}
		return id, nil
	case !errors.Is(err, sql.ErrNoRows):
		return 0, fmt.Errorf("find example link: %w", err)
	}

	res, err := db.ExecContext(ctx, `INSERT INTO term_example_links (term_example_id, term_id, term_lexical_id, highlight)
		VALUES (?, ?, ?, ?)`,
		link.TermExampleID, nullableInt64(link.TermID), nullableInt64(link.TermLexicalID), string(h))
	if err != nil {
		return 0, fmt.Errorf("insert example link: %w", err)
	}
	return res.LastInsertId()
}

// SetPronunciation stores the pronunciation of its owner (a term, a lexical or
// an example), keeping the existing audio file or phonetic text when the new
// value is empty.
func SetPronunciation(ctx context.Context, db DBExecutor, p corpus.Pronunciation) (int64, error) {
	owners := 0
	for _, id := range []int64{p.TermID, p.TermLexicalID, p.TermExampleID} {
		if id != 0 {
			owners++
		}
	}
	if owners != 1 {
		return 0, fmt.Errorf("pronunciation must belong to exactly one term, lexical or example")
	}

	var id int64
	err := db.QueryRowContext(ctx, `SELECT id FROM term_pronunciations
		WHERE IFNULL(term_id, 0) = ? AND IFNULL(term_lexical_id, 0) = ? AND IFNULL(term_example_id, 0) = ?`,
		p.TermID, p.TermLexicalID, p.TermExampleID).Scan(&id)
	switch {
	case err == nil:
		_, err := db.ExecContext(ctx, `UPDATE term_pronunciations SET
			audio_file = COALESCE(?, audio_file),
			phonetic = COALESCE(?, phonetic)
			WHERE id = ?`, nullableString(p.AudioFile), nullableString(p.Phonetic), id)
		if err != nil {
			return 0, fmt.Errorf("update pronunciation: %w", err)
		}
		return id, nil
	case !errors.Is(err, sql.ErrNoRows):
		return 0, fmt.Errorf("find pronunciation: %w", err)
	}

	res, err := db.ExecContext(ctx, `INSERT INTO term_pronunciations (term_id, term_lexical_id, term_example_id, audio_file, phonetic)
		VALUES (?, ?, ?, ?, ?)`,
		nullableInt64(p.TermID), nullableInt64(p.TermLexicalID), nullableInt64(p.TermExampleID),
		nullableString(p.AudioFile), nullableString(p.Phonetic))
	if err != nil {
		return 0, fmt.Errorf("insert pronunciation: %w", err)
	}
	return res.LastInsertId()
}

// AddLexical returns the id of the lexical relation, inserting it when the
// same relation is not stored yet.
func AddLexical(ctx context.Context, db DBExecutor, l corpus.Lexical) (int64, error) {
	if l.TermID <= 0 {
		return 0, fmt.Errorf("termID must be positive")
	}
	if l.Type == "" {
		return 0, fmt.Errorf("lexical type must be non-empty")
	}
	var id int64
	err := db.QueryRowContext(ctx, `SELECT id FROM term_lexicals
		WHERE term_id = ? AND IFNULL(term_ref_id, 0) = ? AND type = ? AND IFNULL(value, '') = ?`,
		l.TermID, l.TermRefID, string(l.Type), l.Value).Scan(&id)
	switch {
	case err == nil:
		return id, nil
	case !errors.Is(err, sql.ErrNoRows):
		return 0, fmt.Errorf("find lexical: %w", err)
	}
	res, err := db.ExecContext(ctx, `INSERT INTO term_lexicals (term_id, term_ref_id, type, value) VALUES (?, ?, ?, ?)`,
		l.TermID, nullableInt64(l.TermRefID), string(l.Type), nullableString(l.Value))
	if err != nil {
		return 0, fmt.Errorf("insert lexical: %w", err)
	}
	return res.LastInsertId()
}

// AddDefinition returns the id of the definition, inserting it when the owner
// does not have the same text yet.
func AddDefinition(ctx context.Context, db DBExecutor, d corpus.Definition) (int64, error) {
	if (d.TermID == 0) == (d.TermLexicalID == 0) {
		return 0, fmt.Errorf("exactly one of termID and termLexicalID must be set")
	}
	text := strings.TrimSpace(d.Text)
	if text == "" {
		return 0, fmt.Errorf("definition text must be non-empty")
	}
	if _, err := db.ExecContext(ctx, `INSERT OR IGNORE INTO term_definitions (term_id, term_lexical_id, language, text)
		VALUES (?, ?, ?, ?)`, nullableInt64(d.TermID), nullableInt64(d.TermLexicalID), d.Language, text); err != nil {
		return 0, fmt.Errorf("insert definition: %w", err)
	}
	var id int64
	err := db.QueryRowContext(ctx, `SELECT id FROM term_definitions
		WHERE IFNULL(term_id, 0) = ? AND IFNULL(term_lexical_id, 0) = ? AND language = ? AND text = ?`,
		d.TermID, d.TermLexicalID, d.Language, text).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("find definition: %w", err)
	}
	return id, nil
}

// AddImage returns the id of the image of a term, inserting it when missing.
func AddImage(ctx context.Context, db DBExecutor, termID int64, url string) (int64, error) {
	if termID <= 0 {
		return 0, fmt.Errorf("termID must be positive")
	}
	if url == "" {
		return 0, fmt.Errorf("image url must be non-empty")
	}
	var id int64
	err := db.QueryRowContext(ctx, `INSERT INTO term_images (term_id, url) VALUES (?, ?)
		ON CONFLICT(term_id, url) DO UPDATE SET url = excluded.url
		RETURNING id`, termID, url).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert image: %w", err)
	}
	return id, nil
}

// CreateOrGetCardset returns the id of the named cardset.
func CreateOrGetCardset(ctx context.Context, db DBExecutor, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("cardset name must be non-empty")
	}
	var id int64
	err := db.QueryRowContext(ctx, `INSERT INTO cardsets (name) VALUES (?)
		ON CONFLICT(name) DO UPDATE SET name = excluded.name
		RETURNING id`, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert cardset: %w", err)
	}
	return id, nil
}

// AddCard puts a term on a cardset. Adding it twice is a no-op.
func AddCard(ctx context.Context, db DBExecutor, cardsetID, termID int64) error {
	if cardsetID <= 0 || termID <= 0 {
		return fmt.Errorf("cardsetID and termID must be positive")
	}
	if _, err := db.ExecContext(ctx, `INSERT OR IGNORE INTO cards (cardset_id, term_id) VALUES (?, ?)`, cardsetID, termID); err != nil {
		return fmt.Errorf("insert card: %w", err)
	}
	return nil
}

// CreateOrGetSource returns existing source id or inserts a new source and returns its id.
func CreateOrGetSource(ctx context.Context, db DBExecutor, sourceType, title, author, website, url, meta string) (int64, error) {
	trimmedSourceType := strings.TrimSpace(sourceType)
	if trimmedSourceType == "" {
		return 0, fmt.Errorf("sourceType must be non-empty")
	}

	const maxRetries = 3

	var id int64
	for attempt := 0; attempt < maxRetries; attempt++ {
		err := db.QueryRowContext(ctx,
			`SELECT id FROM sources WHERE IFNULL(url, '') = ? AND IFNULL(title, '') = ? AND IFNULL(author, '') = ?`,
			url, title, author,
		).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("find source: %w", err)
		}

		res, err := db.ExecContext(ctx,
			`INSERT INTO sources (source_type, title, author, website, url, meta) VALUES (?, ?, ?, ?, ?, ?)`,
			trimmedSourceType, title, author, website, url, meta,
		)
		if err != nil {
			// Another writer inserted the same source; select again.
			if isUniqueConstraintErr(err) {
				continue
			}
			return 0, fmt.Errorf("insert source: %w", err)
		}
		return res.LastInsertId()
	}
	return 0, fmt.Errorf("could not create or get source after %d retries", maxRetries)
}

// GetSourceProgress returns the last processed sentence index for a source,
// -1 when nothing was processed yet.
func GetSourceProgress(ctx context.Context, db DBExecutor, sourceID int64) (int, error) {
	var index int
	err := db.QueryRowContext(ctx, "SELECT last_processed_sentence FROM sources WHERE id = ?", sourceID).Scan(&index)
	if err != nil {
		return 0, fmt.Errorf("source progress: %w", err)
	}
	return index, nil
}

// UpdateSourceProgress updates the last processed sentence index.
func UpdateSourceProgress(ctx context.Context, db DBExecutor, sourceID int64, index int) error {
	_, err := db.ExecContext(ctx, "UPDATE sources SET last_processed_sentence = ? WHERE id = ?", index, sourceID)
	return err
}

// ListSources returns every source, oldest first.
func ListSources(ctx context.Context, db DBExecutor) ([]Source, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, source_type, IFNULL(title, ''), IFNULL(author, ''), IFNULL(website, ''),
		IFNULL(url, ''), IFNULL(meta, ''), added_at, last_processed_sentence
		FROM sources ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var out []Source
	for rows.Next() {
		var s Source
		if err := rows.Scan(&s.ID, &s.SourceType, &s.Title, &s.Author, &s.Website, &s.URL, &s.Meta, &s.AddedAt, &s.LastProcessed); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// TermsWithoutDefinitions lists the terms of a language that have no
// definition yet, with the phonetic reading of their own pronunciation.
func TermsWithoutDefinitions(ctx context.Context, db DBExecutor, language string) ([]TermReading, error) {
	rows, err := db.QueryContext(ctx, `SELECT t.id, t.expression, IFNULL(p.phonetic, '')
		FROM terms t
		LEFT JOIN term_pronunciations p
		  ON p.term_id = t.id AND p.term_lexical_id IS NULL AND p.term_example_id IS NULL
		WHERE t.language = ?
		  AND NOT EXISTS (SELECT 1 FROM term_definitions d WHERE d.term_id = t.id)
		ORDER BY t.id`, language)
	if err != nil {
		return nil, fmt.Errorf("query terms without definitions: %w", err)
	}
	defer rows.Close()
	var out []TermReading
	for rows.Next() {
		var tr TermReading
		if err := rows.Scan(&tr.ID, &tr.Expression, &tr.Phonetic); err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}
