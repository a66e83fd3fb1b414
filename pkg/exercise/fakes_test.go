package exercise

import (
	"context"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/japaniel/lexercise/pkg/corpus"
)

// fakeCorpus is an in-memory corpus.Reader.
type fakeCorpus struct {
	terms       map[int64]corpus.Term
	lexicals    map[int64]corpus.Lexical
	examples    map[int64]corpus.Example
	links       []corpus.ExampleLink
	prons       map[int64]corpus.Pronunciation
	definitions map[int64]corpus.Definition
	images      map[int64]corpus.Image
}

func newFakeCorpus() *fakeCorpus {
	return &fakeCorpus{
		terms:       map[int64]corpus.Term{},
		lexicals:    map[int64]corpus.Lexical{},
		examples:    map[int64]corpus.Example{},
		prons:       map[int64]corpus.Pronunciation{},
		definitions: map[int64]corpus.Definition{},
		images:      map[int64]corpus.Image{},
	}
}

func (f *fakeCorpus) addTerm(id int64, expr string) {
	f.terms[id] = corpus.Term{ID: id, Language: "en", Expression: expr}
}

func (f *fakeCorpus) Term(_ context.Context, id int64) (corpus.Term, error) {
	t, ok := f.terms[id]
	if !ok {
		return corpus.Term{}, corpus.ErrNotFound
	}
	return t, nil
}

func (f *fakeCorpus) Terms(_ context.Context, ids []int64) ([]corpus.Term, error) {
	var out []corpus.Term
	for _, id := range ids {
		if t, ok := f.terms[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeCorpus) Lexical(_ context.Context, id int64) (corpus.Lexical, error) {
	l, ok := f.lexicals[id]
	if !ok {
		return corpus.Lexical{}, corpus.ErrNotFound
	}
	return l, nil
}

func (f *fakeCorpus) Lexicals(_ context.Context, ids []int64) ([]corpus.Lexical, error) {
	var out []corpus.Lexical
	for _, id := range ids {
		if l, ok := f.lexicals[id]; ok {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeCorpus) LexicalsByTerm(_ context.Context, termID int64, typ corpus.LexicalType) ([]corpus.Lexical, error) {
	var out []corpus.Lexical
	for _, l := range f.lexicals {
		if l.TermID == termID && l.Type == typ {
			out = append(out, l)
		}
	}
	slices.SortFunc(out, func(a, b corpus.Lexical) int { return int(a.ID - b.ID) })
	return out, nil
}

func (f *fakeCorpus) Example(_ context.Context, id int64) (corpus.Example, error) {
	e, ok := f.examples[id]
	if !ok {
		return corpus.Example{}, corpus.ErrNotFound
	}
	return e, nil
}

func (f *fakeCorpus) Highlight(_ context.Context, sel corpus.LinkSelector) ([]corpus.Range, error) {
	for _, l := range f.links {
		if l.TermExampleID == sel.TermExampleID && l.TermID == sel.TermID && l.TermLexicalID == sel.TermLexicalID {
			return l.Highlight, nil
		}
	}
	return nil, corpus.ErrNotFound
}

func (f *fakeCorpus) Pronunciation(_ context.Context, id int64) (corpus.Pronunciation, error) {
	p, ok := f.prons[id]
	if !ok {
		return corpus.Pronunciation{}, corpus.ErrNotFound
	}
	return p, nil
}

func (f *fakeCorpus) TermPronunciations(_ context.Context, termIDs []int64) (map[int64]corpus.Pronunciation, error) {
	out := map[int64]corpus.Pronunciation{}
	for _, p := range f.prons {
		if p.TermID != 0 && slices.Contains(termIDs, p.TermID) {
			out[p.TermID] = p
		}
	}
	return out, nil
}

func (f *fakeCorpus) Definition(_ context.Context, id int64) (corpus.Definition, error) {
	d, ok := f.definitions[id]
	if !ok {
		return corpus.Definition{}, corpus.ErrNotFound
	}
	return d, nil
}

func (f *fakeCorpus) Definitions(_ context.Context, ids []int64) ([]corpus.Definition, error) {
	var out []corpus.Definition
	for _, id := range ids {
		if d, ok := f.definitions[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeCorpus) Image(_ context.Context, id int64) (corpus.Image, error) {
	i, ok := f.images[id]
	if !ok {
		return corpus.Image{}, corpus.ErrNotFound
	}
	return i, nil
}

func (f *fakeCorpus) Images(_ context.Context, ids []int64) ([]corpus.Image, error) {
	var out []corpus.Image
	for _, id := range ids {
		if i, ok := f.images[id]; ok {
			out = append(out, i)
		}
	}
	return out, nil
}

// fakeStore is an in-memory Store. Listing orders by SeedKey and ignores
// cardsets.
type fakeStore struct {
	mu        sync.Mutex
	nextID    int64
	exercises []Exercise
	history   []History
	listCalls int
}

func (s *fakeStore) key(ex Exercise) []int64 {
	k := []int64{}
	for _, r := range Catalog[ex.Type].Unique {
		k = append(k, ex.ref(r))
	}
	return k
}

func (s *fakeStore) Create(_ context.Context, ex Exercise) (Exercise, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.exercises {
		if other.Type == ex.Type && other.Language == ex.Language && slices.Equal(s.key(other), s.key(ex)) {
			return Exercise{}, ErrConflict
		}
	}
	s.nextID++
	ex.ID = s.nextID
	ex.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.exercises = append(s.exercises, ex)
	return ex, nil
}

func (s *fakeStore) Get(_ context.Context, id int64, t Type) (Exercise, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ex := range s.exercises {
		if ex.ID == id && ex.Type == t {
			return ex, nil
		}
	}
	return Exercise{}, ErrNotFound
}

func (s *fakeStore) List(_ context.Context, q ListQuery, offset, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	var matched []Exercise
	for _, ex := range s.exercises {
		if !slices.Contains(q.Languages, ex.Language) {
			continue
		}
		if !q.AnyType() && !slices.Contains(q.Types, ex.Type) {
			continue
		}
		matched = append(matched, ex)
	}
	slices.SortFunc(matched, func(a, b Exercise) int {
		ka, kb := SeedKey(a.ID, q.Seed), SeedKey(b.ID, q.Seed)
		switch {
		case ka < kb:
			return -1
		case ka > kb:
			return 1
		}
		return 0
	})
	var out []Entry
	for i := offset; i < len(matched) && len(out) < limit; i++ {
		out = append(out, Entry{ID: matched[i].ID, Type: matched[i].Type})
	}
	return out, nil
}

func (s *fakeStore) AppendHistory(_ context.Context, h History) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, h)
	return nil
}

func (s *fakeStore) History(_ context.Context, exerciseID int64, userID string) ([]History, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []History
	for i := len(s.history) - 1; i >= 0; i-- {
		h := s.history[i]
		if h.ExerciseID == exerciseID && (userID == "" || h.UserID == userID) {
			out = append(out, h)
		}
	}
	return out, nil
}

func seededRand() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

// newTestService returns a service over a fresh store. Builds use fresh,
// distinct generators so repeated builds can differ.
func newTestService(rd corpus.Reader) (*Service, *fakeStore) {
	store := &fakeStore{}
	var n uint64
	var mu sync.Mutex
	svc := NewService(store, rd,
		WithRand(func() *rand.Rand {
			mu.Lock()
			defer mu.Unlock()
			n++
			return rand.New(rand.NewPCG(n, n*7))
		}),
		WithClock(func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }),
	)
	return svc, store
}
