package exercise

import "slices"

// Ref names an optional reference column of an Exercise.
type Ref string

const (
	RefTerm          Ref = "term"
	RefExample       Ref = "term_example"
	RefPronunciation Ref = "term_pronunciation"
	RefLexical       Ref = "term_lexical"
	RefDefinition    Ref = "term_definition"
	RefImage         Ref = "term_image"
)

var allRefs = []Ref{RefTerm, RefExample, RefPronunciation, RefLexical, RefDefinition, RefImage}

// AnswerKind tells how a learner's answer is shaped and compared.
type AnswerKind int

const (
	FreeText AnswerKind = iota
	SingleChoice
	MultiChoice
	// Ungraded answers are accepted without any check.
	Ungraded
)

// Pool describes a distractor pool an exercise type needs.
type Pool struct {
	Name string
	Min  int
}

// Descriptor is the field shape of one exercise type.
type Descriptor struct {
	// Required references must be set; any reference not listed in Required
	// or Optional is rejected.
	Required []Ref
	Optional []Ref
	// Primary means exactly one of term / term_lexical carries the content,
	// selected by Content.SubType.
	Primary bool
	// Pools lists distractor pools; the pool used by a sub-type may depend on
	// it, see poolFor.
	Pools          []Pool
	MinConnections int
	Answer         AnswerKind
	// Unique lists the columns that, with type and language, identify an
	// exercise.
	Unique []Ref
}

// Catalog maps every storable type to its descriptor.
var Catalog = map[Type]Descriptor{
	OrderSentence: {
		Required: []Ref{RefExample},
		Optional: []Ref{RefTerm},
		Pools:    []Pool{{Name: PoolTerm, Min: 0}},
		Answer:   FreeText,
		Unique:   []Ref{RefExample},
	},
	ListenTerm: {
		Required: []Ref{RefPronunciation},
		Primary:  true,
		Answer:   FreeText,
		Unique:   []Ref{RefTerm, RefLexical, RefPronunciation},
	},
	ListenTermMChoice: {
		Required: []Ref{RefTerm, RefPronunciation},
		Answer:   SingleChoice,
		Unique:   []Ref{RefTerm, RefPronunciation},
	},
	ListenSentence: {
		Required: []Ref{RefExample, RefPronunciation},
		Answer:   FreeText,
		Unique:   []Ref{RefExample, RefPronunciation},
	},
	SpeakTerm: {
		Required: []Ref{RefPronunciation},
		Primary:  true,
		Answer:   Ungraded,
		Unique:   []Ref{RefTerm, RefLexical, RefPronunciation},
	},
	SpeakSentence: {
		Required: []Ref{RefExample, RefPronunciation},
		Answer:   Ungraded,
		Unique:   []Ref{RefExample, RefPronunciation},
	},
	TermMChoice: {
		Required: []Ref{RefExample},
		Primary:  true,
		Pools:    []Pool{{Name: PoolTerm, Min: 3}},
		Answer:   SingleChoice,
		Unique:   []Ref{RefTerm, RefLexical, RefExample},
	},
	TermDefinitionMChoice: {
		Required: []Ref{RefDefinition},
		Primary:  true,
		Pools:    []Pool{{Name: PoolDefinition, Min: 3}},
		Answer:   SingleChoice,
		Unique:   []Ref{RefTerm, RefLexical, RefDefinition},
	},
	TermImageMChoice: {
		Required: []Ref{RefTerm, RefImage, RefPronunciation},
		Pools:    []Pool{{Name: PoolImage, Min: 3}},
		Answer:   SingleChoice,
		Unique:   []Ref{RefTerm, RefImage},
	},
	TermImageMChoiceText: {
		Required: []Ref{RefTerm, RefImage},
		Pools:    []Pool{{Name: PoolTerm, Min: 3}},
		Answer:   SingleChoice,
		Unique:   []Ref{RefTerm, RefImage},
	},
	TermConnection: {
		Required:       []Ref{RefTerm},
		Pools:          []Pool{{Name: PoolTerm, Min: 8}},
		MinConnections: 4,
		Answer:         MultiChoice,
		Unique:         []Ref{RefTerm},
	},
}

// Types returns the storable types in a stable order.
func Types() []Type {
	out := make([]Type, 0, len(Catalog))
	for t := range Catalog {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// Describe returns the descriptor of t.
func Describe(t Type) (Descriptor, bool) {
	d, ok := Catalog[t]
	return d, ok
}

func (d Descriptor) allows(r Ref) bool {
	if slices.Contains(d.Required, r) || slices.Contains(d.Optional, r) {
		return true
	}
	return d.Primary && (r == RefTerm || r == RefLexical)
}

// poolFor returns the pool the exercise draws distractors from. Term
// multiple-choice exercises authored on a lexical value offer lexical values
// as distractors instead of term expressions.
func poolFor(t Type, sub SubType, p Pool) Pool {
	if t == TermMChoice && sub == SubTypeLexicalValue {
		return Pool{Name: PoolLexical, Min: p.Min}
	}
	return p
}

func (e Exercise) ref(r Ref) int64 {
	switch r {
	case RefTerm:
		return e.TermID
	case RefExample:
		return e.TermExampleID
	case RefPronunciation:
		return e.TermPronunciationID
	case RefLexical:
		return e.TermLexicalID
	case RefDefinition:
		return e.TermDefinitionID
	case RefImage:
		return e.TermImageID
	}
	return 0
}
