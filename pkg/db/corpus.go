package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/japaniel/lexercise/pkg/corpus"
)

// Store is the sqlite implementation of corpus.Reader and exercise.Store.
type Store struct {
	db *sql.DB
}

var _ corpus.Reader = (*Store)(nil)

// NewStore returns a store over an opened and migrated database.
func NewStore(conn *sql.DB) *Store {
	return &Store{db: conn}
}

// DB returns the underlying connection.
func (s *Store) DB() *sql.DB { return s.db }

func notFound(what string, id int64, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %d", corpus.ErrNotFound, what, id)
	}
	return fmt.Errorf("get %s %d: %w", what, id, err)
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// inOrder returns the rows of byID in the order of ids, skipping missing and
// repeated ids.
func inOrder[T any](ids []int64, byID map[int64]T) []T {
	out := make([]T, 0, len(byID))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if v, ok := byID[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, v)
		}
	}
	return out
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const termColumns = `id, language, expression, IFNULL(level, '')`

func scanTerm(sc scanner) (corpus.Term, error) {
	var t corpus.Term
	err := sc.Scan(&t.ID, &t.Language, &t.Expression, &t.Level)
	return t, err
}

func (s *Store) Term(ctx context.Context, id int64) (corpus.Term, error) {
	t, err := scanTerm(s.db.QueryRowContext(ctx, `SELECT `+termColumns+` FROM terms WHERE id = ?`, id))
	if err != nil {
		return corpus.Term{}, notFound("term", id, err)
	}
	return t, nil
}

func (s *Store) Terms(ctx context.Context, ids []int64) ([]corpus.Term, error) {
	return queryByIDs(ctx, s.db, `SELECT `+termColumns+` FROM terms`, ids, scanTerm, func(t corpus.Term) int64 { return t.ID })
}

const lexicalColumns = `id, term_id, IFNULL(term_ref_id, 0), type, IFNULL(value, '')`

func scanLexical(sc scanner) (corpus.Lexical, error) {
	var l corpus.Lexical
	err := sc.Scan(&l.ID, &l.TermID, &l.TermRefID, &l.Type, &l.Value)
	return l, err
}

func (s *Store) Lexical(ctx context.Context, id int64) (corpus.Lexical, error) {
	l, err := scanLexical(s.db.QueryRowContext(ctx, `SELECT `+lexicalColumns+` FROM term_lexicals WHERE id = ?`, id))
	if err != nil {
		return corpus.Lexical{}, notFound("term_lexical", id, err)
	}
	return l, nil
}

func (s *Store) Lexicals(ctx context.Context, ids []int64) ([]corpus.Lexical, error) {
	return queryByIDs(ctx, s.db, `SELECT `+lexicalColumns+` FROM term_lexicals`, ids, scanLexical, func(l corpus.Lexical) int64 { return l.ID })
}

// LexicalsByTerm returns the lexicals of a term with the given relation type,
// in insertion order.
func (s *Store) LexicalsByTerm(ctx context.Context, termID int64, typ corpus.LexicalType) ([]corpus.Lexical, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+lexicalColumns+` FROM term_lexicals WHERE term_id = ? AND type = ? ORDER BY id`, termID, string(typ))
	if err != nil {
		return nil, fmt.Errorf("query lexicals of term %d: %w", termID, err)
	}
	defer rows.Close()
	var out []corpus.Lexical
	for rows.Next() {
		l, err := scanLexical(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) Example(ctx context.Context, id int64) (corpus.Example, error) {
	var e corpus.Example
	err := s.db.QueryRowContext(ctx, `SELECT id, language, text, IFNULL(level, '') FROM term_examples WHERE id = ?`, id).
		Scan(&e.ID, &e.Language, &e.Text, &e.Level)
	if err != nil {
		return corpus.Example{}, notFound("term_example", id, err)
	}
	return e, nil
}

// Highlight returns the highlight ranges of the link selected by sel.
func (s *Store) Highlight(ctx context.Context, sel corpus.LinkSelector) ([]corpus.Range, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT highlight FROM term_example_links
		WHERE term_example_id = ? AND IFNULL(term_id, 0) = ? AND IFNULL(term_lexical_id, 0) = ?`,
		sel.TermExampleID, sel.TermID, sel.TermLexicalID).Scan(&raw)
	if err != nil {
		return nil, notFound("term_example_link of term_example", sel.TermExampleID, err)
	}
	var ranges []corpus.Range
	if err := json.Unmarshal([]byte(raw), &ranges); err != nil {
		return nil, fmt.Errorf("decode highlight: %w", err)
	}
	return ranges, nil
}

const pronunciationColumns = `id, IFNULL(term_id, 0), IFNULL(term_lexical_id, 0), IFNULL(term_example_id, 0),
	IFNULL(audio_file, ''), IFNULL(phonetic, '')`

func scanPronunciation(sc scanner) (corpus.Pronunciation, error) {
	var p corpus.Pronunciation
	err := sc.Scan(&p.ID, &p.TermID, &p.TermLexicalID, &p.TermExampleID, &p.AudioFile, &p.Phonetic)
	return p, err
}

func (s *Store) Pronunciation(ctx context.Context, id int64) (corpus.Pronunciation, error) {
	p, err := scanPronunciation(s.db.QueryRowContext(ctx, `SELECT `+pronunciationColumns+` FROM term_pronunciations WHERE id = ?`, id))
	if err != nil {
		return corpus.Pronunciation{}, notFound("term_pronunciation", id, err)
	}
	return p, nil
}

// TermPronunciations returns the pronunciation attached to each term itself.
// Terms without one are absent from the map.
func (s *Store) TermPronunciations(ctx context.Context, termIDs []int64) (map[int64]corpus.Pronunciation, error) {
	out := make(map[int64]corpus.Pronunciation, len(termIDs))
	if len(termIDs) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+pronunciationColumns+` FROM term_pronunciations
		WHERE term_id IN (`+placeholders(len(termIDs))+`) AND term_lexical_id IS NULL AND term_example_id IS NULL
		ORDER BY id`, int64Args(termIDs)...)
	if err != nil {
		return nil, fmt.Errorf("query term pronunciations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanPronunciation(rows)
		if err != nil {
			return nil, err
		}
		if _, ok := out[p.TermID]; !ok {
			out[p.TermID] = p
		}
	}
	return out, rows.Err()
}

const definitionColumns = `id, IFNULL(term_id, 0), IFNULL(term_lexical_id, 0), language, text`

func scanDefinition(sc scanner) (corpus.Definition, error) {
	var d corpus.Definition
	err := sc.Scan(&d.ID, &d.TermID, &d.TermLexicalID, &d.Language, &d.Text)
	return d, err
}

func (s *Store) Definition(ctx context.Context, id int64) (corpus.Definition, error) {
	d, err := scanDefinition(s.db.QueryRowContext(ctx, `SELECT `+definitionColumns+` FROM term_definitions WHERE id = ?`, id))
	if err != nil {
		return corpus.Definition{}, notFound("term_definition", id, err)
	}
	return d, nil
}

func (s *Store) Definitions(ctx context.Context, ids []int64) ([]corpus.Definition, error) {
	return queryByIDs(ctx, s.db, `SELECT `+definitionColumns+` FROM term_definitions`, ids, scanDefinition, func(d corpus.Definition) int64 { return d.ID })
}

func scanImage(sc scanner) (corpus.Image, error) {
	var i corpus.Image
	err := sc.Scan(&i.ID, &i.TermID, &i.URL)
	return i, err
}

func (s *Store) Image(ctx context.Context, id int64) (corpus.Image, error) {
	i, err := scanImage(s.db.QueryRowContext(ctx, `SELECT id, term_id, url FROM term_images WHERE id = ?`, id))
	if err != nil {
		return corpus.Image{}, notFound("term_image", id, err)
	}
	return i, nil
}

func (s *Store) Images(ctx context.Context, ids []int64) ([]corpus.Image, error) {
	return queryByIDs(ctx, s.db, `SELECT id, term_id, url FROM term_images`, ids, scanImage, func(i corpus.Image) int64 { return i.ID })
}

// queryByIDs runs selectFrom with an "id IN (...)" filter and returns the rows
// in the order of ids. Unknown ids are skipped.
func queryByIDs[T any](ctx context.Context, db DBExecutor, selectFrom string, ids []int64, scan func(scanner) (T, error), idOf func(T) int64) ([]T, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := db.QueryContext(ctx, selectFrom+` WHERE id IN (`+placeholders(len(ids))+`)`, int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("query by ids: %w", err)
	}
	defer rows.Close()
	byID := make(map[int64]T, len(ids))
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		byID[idOf(v)] = v
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return inOrder(ids, byID), nil
}
