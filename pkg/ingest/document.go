package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/japaniel/lexercise/pkg/analyzer"
	"github.com/japaniel/lexercise/pkg/corpus"
	"github.com/japaniel/lexercise/pkg/db"
)

// Document is a hand-written corpus file. Terms are addressed by expression,
// so a document never needs database ids.
type Document struct {
	Language string            `yaml:"language"`
	Source   string            `yaml:"source"`
	Terms    []DocumentTerm    `yaml:"terms"`
	Examples []DocumentExample `yaml:"examples"`
	Cardsets []DocumentCardset `yaml:"cardsets"`
}

// DocumentTerm describes a term and everything attached to it.
type DocumentTerm struct {
	Expression  string            `yaml:"expression"`
	Level       string            `yaml:"level"`
	Audio       string            `yaml:"audio"`
	Phonetic    string            `yaml:"phonetic"`
	Definitions []string          `yaml:"definitions"`
	Images      []string          `yaml:"images"`
	Rhymes      []string          `yaml:"rhymes"`
	Lexicals    []DocumentLexical `yaml:"lexicals"`
}

// DocumentLexical is a relation of a term to a value or to another term.
type DocumentLexical struct {
	Type  corpus.LexicalType `yaml:"type"`
	Value string             `yaml:"value"`
	Ref   string             `yaml:"ref"`
	Audio string             `yaml:"audio"`
}

// DocumentExample is a sentence. Every listed term, and every lexical value
// listed under lexicals, is linked to it where it occurs in the text.
type DocumentExample struct {
	Text     string   `yaml:"text"`
	Level    string   `yaml:"level"`
	Audio    string   `yaml:"audio"`
	Phonetic string   `yaml:"phonetic"`
	Terms    []string `yaml:"terms"`
	Lexicals []string `yaml:"lexicals"`
}

// DocumentCardset is a named list of terms.
type DocumentCardset struct {
	Name  string   `yaml:"name"`
	Terms []string `yaml:"terms"`
}

// DocumentStats counts what an import touched.
type DocumentStats struct {
	Terms    int `json:"terms"`
	Lexicals int `json:"lexicals"`
	Examples int `json:"examples"`
	Links    int `json:"links"`
	Cards    int `json:"cards"`
}

// ReadDocument decodes a YAML corpus document. Unknown keys are rejected.
func ReadDocument(r io.Reader) (*Document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var doc Document
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode corpus document: %w", err)
	}
	if doc.Language == "" {
		return nil, fmt.Errorf("corpus document: language is required")
	}
	return &doc, nil
}

// LoadDocument reads a corpus document from path.
func LoadDocument(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus document: %w", err)
	}
	defer f.Close()
	return ReadDocument(f)
}

// ImportDocument writes doc in one transaction. Importing the same document
// twice changes nothing.
func ImportDocument(ctx context.Context, conn *sql.DB, doc *Document) (DocumentStats, error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return DocumentStats{}, fmt.Errorf("begin import: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	im := &docImport{ctx: ctx, tx: tx, lang: doc.Language, terms: map[string]int64{}, values: map[string]int64{}}
	if err := im.run(doc); err != nil {
		return DocumentStats{}, err
	}
	if err := tx.Commit(); err != nil {
		return DocumentStats{}, fmt.Errorf("commit import: %w", err)
	}
	return im.stats, nil
}

type docImport struct {
	ctx    context.Context
	tx     *sql.Tx
	lang   string
	terms  map[string]int64
	values map[string]int64 // lexical value -> lexical id
	stats  DocumentStats
}

// term returns the id of expr, creating the term on first use.
func (im *docImport) term(expr, level string) (int64, error) {
	expr = strings.TrimSpace(expr)
	if id, ok := im.terms[expr]; ok && level == "" {
		return id, nil
	}
	id, err := db.CreateOrGetTerm(im.ctx, im.tx, im.lang, expr, level)
	if err != nil {
		return 0, fmt.Errorf("term %q: %w", expr, err)
	}
	if _, ok := im.terms[expr]; !ok {
		im.stats.Terms++
	}
	im.terms[expr] = id
	return id, nil
}

func (im *docImport) run(doc *Document) error {
	var sourceID int64
	if doc.Source != "" {
		var err error
		sourceID, err = db.CreateOrGetSource(im.ctx, im.tx, "corpus_document", doc.Source, "", "", "", "")
		if err != nil {
			return fmt.Errorf("source: %w", err)
		}
	}

	for _, t := range doc.Terms {
		if err := im.addTerm(t); err != nil {
			return err
		}
	}
	for _, e := range doc.Examples {
		if err := im.addExample(e, sourceID); err != nil {
			return err
		}
	}
	for _, c := range doc.Cardsets {
		cardsetID, err := db.CreateOrGetCardset(im.ctx, im.tx, c.Name)
		if err != nil {
			return err
		}
		for _, expr := range c.Terms {
			termID, err := im.term(expr, "")
			if err != nil {
				return err
			}
			if err := db.AddCard(im.ctx, im.tx, cardsetID, termID); err != nil {
				return err
			}
			im.stats.Cards++
		}
	}
	return nil
}

func (im *docImport) addTerm(t DocumentTerm) error {
	termID, err := im.term(t.Expression, t.Level)
	if err != nil {
		return err
	}
	if t.Audio != "" || t.Phonetic != "" {
		p := corpus.Pronunciation{TermID: termID, AudioFile: t.Audio, Phonetic: t.Phonetic}
		if _, err := db.SetPronunciation(im.ctx, im.tx, p); err != nil {
			return fmt.Errorf("term %q: %w", t.Expression, err)
		}
	}
	for _, text := range t.Definitions {
		d := corpus.Definition{TermID: termID, Language: im.lang, Text: text}
		if _, err := db.AddDefinition(im.ctx, im.tx, d); err != nil {
			return fmt.Errorf("term %q: %w", t.Expression, err)
		}
	}
	for _, u := range t.Images {
		if _, err := db.AddImage(im.ctx, im.tx, termID, u); err != nil {
			return fmt.Errorf("term %q: %w", t.Expression, err)
		}
	}

	lexicals := t.Lexicals
	for _, r := range t.Rhymes {
		lexicals = append(lexicals, DocumentLexical{Type: corpus.Rhyme, Ref: r})
	}
	for _, l := range lexicals {
		lex := corpus.Lexical{TermID: termID, Type: l.Type, Value: l.Value}
		if l.Ref != "" {
			if lex.TermRefID, err = im.term(l.Ref, ""); err != nil {
				return err
			}
		}
		id, err := db.AddLexical(im.ctx, im.tx, lex)
		if err != nil {
			return fmt.Errorf("term %q: %w", t.Expression, err)
		}
		im.stats.Lexicals++
		if l.Value != "" {
			im.values[l.Value] = id
		}
		if l.Audio != "" {
			if _, err := db.SetPronunciation(im.ctx, im.tx, corpus.Pronunciation{TermLexicalID: id, AudioFile: l.Audio}); err != nil {
				return fmt.Errorf("lexical %d: %w", id, err)
			}
		}
	}
	return nil
}

func (im *docImport) addExample(e DocumentExample, sourceID int64) error {
	e.Text = strings.TrimSpace(e.Text)
	exampleID, err := db.CreateOrGetExample(im.ctx, im.tx, im.lang, e.Text, e.Level, sourceID)
	if err != nil {
		return fmt.Errorf("example %q: %w", e.Text, err)
	}
	im.stats.Examples++
	if e.Audio != "" || e.Phonetic != "" {
		p := corpus.Pronunciation{TermExampleID: exampleID, AudioFile: e.Audio, Phonetic: e.Phonetic}
		if _, err := db.SetPronunciation(im.ctx, im.tx, p); err != nil {
			return fmt.Errorf("example %q: %w", e.Text, err)
		}
	}

	link := func(l corpus.ExampleLink, expr string) error {
		l.TermExampleID = exampleID
		l.Highlight = analyzer.Occurrences(e.Text, expr)
		if len(l.Highlight) == 0 {
			return fmt.Errorf("example %q does not contain %q", e.Text, expr)
		}
		if _, err := db.LinkTermExample(im.ctx, im.tx, l); err != nil {
			return fmt.Errorf("example %q: %w", e.Text, err)
		}
		im.stats.Links++
		return nil
	}
	for _, expr := range e.Terms {
		termID, err := im.term(expr, "")
		if err != nil {
			return err
		}
		if err := link(corpus.ExampleLink{TermID: termID}, expr); err != nil {
			return err
		}
	}
	for _, value := range e.Lexicals {
		id, ok := im.values[value]
		if !ok {
			return fmt.Errorf("example %q: no lexical with value %q", e.Text, value)
		}
		if err := link(corpus.ExampleLink{TermLexicalID: id}, value); err != nil {
			return err
		}
	}
	return nil
}
