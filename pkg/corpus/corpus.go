// Package corpus describes the linguistic dataset exercises are built from.
//
// The corpus is populated by the ingestion and dictionary tools and is only
// ever read by the exercise engine.
package corpus

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a Reader when the requested entity does not exist.
var ErrNotFound = errors.New("corpus entity not found")

// LexicalType names the relation a Lexical expresses between two terms.
type LexicalType string

const (
	Rhyme   LexicalType = "rhyme"
	Synonym LexicalType = "synonym"
	Antonym LexicalType = "antonym"
	Form    LexicalType = "form"
)

// Term is a dictionary headword in a given language.
type Term struct {
	ID         int64
	Language   string
	Expression string
	Level      string
}

// Lexical relates a term to a value or to another term (TermRefID).
type Lexical struct {
	ID        int64
	TermID    int64
	TermRefID int64
	Type      LexicalType
	Value     string
}

// Example is a sentence showing terms in context.
type Example struct {
	ID       int64
	Language string
	Text     string
	Level    string
}

// Range is an inclusive [start, end] pair of rune offsets into an example text.
type Range [2]int

// ExampleLink ties a term or a lexical to an example, with the character ranges
// where it appears.
type ExampleLink struct {
	ID            int64
	TermExampleID int64
	TermID        int64
	TermLexicalID int64
	Highlight     []Range
}

// Definition explains a term or a lexical.
type Definition struct {
	ID            int64
	TermID        int64
	TermLexicalID int64
	Language      string
	Text          string
}

// Pronunciation carries the audio and phonetic transcription of exactly one of
// a term, a lexical or an example.
type Pronunciation struct {
	ID            int64
	TermID        int64
	TermLexicalID int64
	TermExampleID int64
	AudioFile     string
	Phonetic      string
}

// Image illustrates a term.
type Image struct {
	ID     int64
	TermID int64
	URL    string
}

// Card is a flashcard in a cardset. Cards belong to the card feature; the
// scheduler only reads which terms they point at.
type Card struct {
	ID        int64
	CardsetID int64
	TermID    int64
}

// LinkSelector picks the example link between an example and either a term or
// a lexical.
type LinkSelector struct {
	TermExampleID int64
	TermID        int64
	TermLexicalID int64
}

// Reader is the read-only view of the corpus the exercise engine depends on.
// Bulk lookups silently skip ids that do not exist.
type Reader interface {
	Term(ctx context.Context, id int64) (Term, error)
	Terms(ctx context.Context, ids []int64) ([]Term, error)
	Lexical(ctx context.Context, id int64) (Lexical, error)
	Lexicals(ctx context.Context, ids []int64) ([]Lexical, error)
	LexicalsByTerm(ctx context.Context, termID int64, typ LexicalType) ([]Lexical, error)
	Example(ctx context.Context, id int64) (Example, error)
	Highlight(ctx context.Context, sel LinkSelector) ([]Range, error)
	Pronunciation(ctx context.Context, id int64) (Pronunciation, error)
	// TermPronunciations returns the pronunciations attached directly to each
	// of the given terms, keyed by term id.
	TermPronunciations(ctx context.Context, termIDs []int64) (map[int64]Pronunciation, error)
	Definition(ctx context.Context, id int64) (Definition, error)
	Definitions(ctx context.Context, ids []int64) ([]Definition, error)
	Image(ctx context.Context, id int64) (Image, error)
	Images(ctx context.Context, ids []int64) ([]Image, error)
}
