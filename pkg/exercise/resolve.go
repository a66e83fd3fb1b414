package exercise

import (
	"context"
	"errors"
	"fmt"

	"github.com/japaniel/lexercise/pkg/corpus"
)

// Resolved is an exercise together with the corpus entities it references.
// Pointers are nil when the reference is unset.
type Resolved struct {
	Exercise
	Term          *corpus.Term
	Lexical       *corpus.Lexical
	LexicalTerm   *corpus.Term // the term a lexical belongs to
	TermRef       *corpus.Term // the term a lexical points at, if any
	Example       *corpus.Example
	Pronunciation *corpus.Pronunciation
	Definition    *corpus.Definition
	Image         *corpus.Image
}

// resolve loads every referenced corpus entity. A missing entity is reported
// as ErrNotFound naming the reference.
func resolve(ctx context.Context, rd corpus.Reader, ex Exercise) (*Resolved, error) {
	r := &Resolved{Exercise: ex}

	if ex.TermID != 0 {
		t, err := rd.Term(ctx, ex.TermID)
		if err != nil {
			return nil, notFound(RefTerm, ex.TermID, err)
		}
		r.Term = &t
	}
	if ex.TermLexicalID != 0 {
		l, err := rd.Lexical(ctx, ex.TermLexicalID)
		if err != nil {
			return nil, notFound(RefLexical, ex.TermLexicalID, err)
		}
		r.Lexical = &l
		owner, err := rd.Term(ctx, l.TermID)
		if err != nil {
			return nil, notFound("term_lexical.term", l.TermID, err)
		}
		r.LexicalTerm = &owner
		if l.TermRefID != 0 {
			t, err := rd.Term(ctx, l.TermRefID)
			if err != nil {
				return nil, notFound("term_lexical.term_ref", l.TermRefID, err)
			}
			r.TermRef = &t
		}
	}
	if ex.TermExampleID != 0 {
		e, err := rd.Example(ctx, ex.TermExampleID)
		if err != nil {
			return nil, notFound(RefExample, ex.TermExampleID, err)
		}
		r.Example = &e
	}
	if ex.TermPronunciationID != 0 {
		p, err := rd.Pronunciation(ctx, ex.TermPronunciationID)
		if err != nil {
			return nil, notFound(RefPronunciation, ex.TermPronunciationID, err)
		}
		r.Pronunciation = &p
	}
	if ex.TermDefinitionID != 0 {
		d, err := rd.Definition(ctx, ex.TermDefinitionID)
		if err != nil {
			return nil, notFound(RefDefinition, ex.TermDefinitionID, err)
		}
		r.Definition = &d
	}
	if ex.TermImageID != 0 {
		i, err := rd.Image(ctx, ex.TermImageID)
		if err != nil {
			return nil, notFound(RefImage, ex.TermImageID, err)
		}
		r.Image = &i
	}
	return r, nil
}

func notFound(ref Ref, id int64, err error) error {
	if errors.Is(err, corpus.ErrNotFound) {
		return fmt.Errorf("%w: %s %d", ErrNotFound, ref, id)
	}
	return fmt.Errorf("load %s %d: %w", ref, id, err)
}

func isCorpusNotFound(err error) bool {
	return errors.Is(err, corpus.ErrNotFound)
}

// primaryText is the text the learner must recognize, chosen by sub-type.
func (r *Resolved) primaryText() string {
	switch r.Content.SubType {
	case SubTypeLexicalValue:
		if r.Lexical != nil {
			return r.Lexical.Value
		}
	case SubTypeLexicalTermRef:
		if r.TermRef != nil {
			return r.TermRef.Expression
		}
	}
	if r.Term != nil {
		return r.Term.Expression
	}
	return ""
}

// primaryID is the id a choice exercise keys its correct answer by.
func (r *Resolved) primaryID() int64 {
	switch r.Content.SubType {
	case SubTypeLexicalValue:
		return r.TermLexicalID
	case SubTypeLexicalTermRef:
		if r.Lexical != nil {
			return r.Lexical.TermRefID
		}
	}
	return r.TermID
}

// levels collects the difficulty levels of the linked corpus items.
func (r *Resolved) levels() []string {
	seen := map[string]bool{}
	var out []string
	add := func(level string) {
		if level == "" || seen[level] {
			return
		}
		seen[level] = true
		out = append(out, level)
	}
	if r.Term != nil {
		add(r.Term.Level)
	}
	if r.LexicalTerm != nil {
		add(r.LexicalTerm.Level)
	}
	if r.TermRef != nil {
		add(r.TermRef.Level)
	}
	if r.Example != nil {
		add(r.Example.Level)
	}
	return out
}
