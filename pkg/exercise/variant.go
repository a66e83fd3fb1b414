package exercise

import (
	"fmt"
	"math/rand/v2"

	"github.com/japaniel/lexercise/pkg/corpus"
)

// Payload is the renderable challenge returned by Build. It always carries
// title, description and header, plus type-specific fields.
type Payload map[string]any

// Choice is one option of a multiple-choice exercise, keyed by entity id.
type Choice struct {
	ID        int64  `json:"id"`
	Text      string `json:"text,omitempty"`
	AudioFile string `json:"audio_file,omitempty"`
	Image     string `json:"image,omitempty"`
}

// Variant is the per-type behavior of a loaded exercise. Build may sample
// differently on every call; CorrectAnswer is fixed when the variant is
// created.
type Variant interface {
	Build(rng *rand.Rand) Payload
	Assert(a Answer) Grade
	CorrectAnswer() any
}

// material is what a variant needs besides the exercise's own references:
// resolved pools, rhyme siblings, highlight ranges and sentence tokens. It is
// empty when a variant is only created for grading.
type material struct {
	tokens      []string
	terms       []corpus.Term
	lexicals    []corpus.Lexical
	definitions []corpus.Definition
	images      []corpus.Image
	connections []corpus.Term
	rhymes      []rhyme
	highlight   []corpus.Range
}

var texts = map[Type]struct{ title, description string }{
	OrderSentence:         {"Order the sentence", "Put the words in order. Some of them do not belong to the sentence."},
	ListenTerm:            {"Listen and write", "Write down the word you hear."},
	ListenTermMChoice:     {"Listen and choose", "Pick the recording that matches the word."},
	ListenSentence:        {"Listen and write", "Write down the sentence you hear."},
	SpeakTerm:             {"Say it", "Listen, then say the word out loud."},
	SpeakSentence:         {"Say it", "Listen, then say the sentence out loud."},
	TermMChoice:           {"Fill the gap", "Pick the word missing from the sentence."},
	TermDefinitionMChoice: {"Pick the definition", "Pick the definition of the word."},
	TermImageMChoice:      {"Pick the image", "Pick the image that shows the word."},
	TermImageMChoiceText:  {"Name the image", "Pick the word the image shows."},
	TermConnection:        {"Find the connections", "Pick every word related to the one shown."},
}

func newPayload(t Type, header string) Payload {
	txt := texts[t]
	return Payload{
		"title":       txt.title,
		"description": txt.description,
		"header":      header,
	}
}

// newVariant dispatches on the exercise type.
func newVariant(r *Resolved, m *material) (Variant, error) {
	if m == nil {
		m = &material{}
	}
	switch r.Type {
	case OrderSentence:
		return newOrderSentence(r, m), nil
	case ListenTerm:
		return &listen{r: r, freeText: freeText{answer: r.primaryText()}}, nil
	case ListenSentence:
		return &listen{r: r, freeText: freeText{answer: r.Example.Text}}, nil
	case ListenTermMChoice:
		return &listenChoice{r: r, rhymes: m.rhymes, singleChoice: singleChoice{correct: r.TermID}}, nil
	case SpeakTerm:
		return &speak{r: r, text: r.primaryText()}, nil
	case SpeakSentence:
		return &speak{r: r, text: r.Example.Text}, nil
	case TermMChoice:
		return newCloze(r, m), nil
	case TermDefinitionMChoice:
		return newDefinitionChoice(r, m), nil
	case TermImageMChoice:
		return newImageChoice(r, m), nil
	case TermImageMChoiceText:
		return newImageTextChoice(r, m), nil
	case TermConnection:
		return newConnection(r, m), nil
	}
	return nil, fmt.Errorf("no variant for exercise type %q", r.Type)
}

type freeText struct{ answer string }

func (f freeText) Assert(a Answer) Grade {
	return Grade{Correct: sameText(a.Text, f.answer), Graded: true}
}

func (f freeText) CorrectAnswer() any { return f.answer }

type singleChoice struct{ correct int64 }

func (c singleChoice) Assert(a Answer) Grade {
	return Grade{Correct: a.Choice != 0 && a.Choice == c.correct, Graded: true}
}

func (c singleChoice) CorrectAnswer() any { return c.correct }

// choices puts the correct choice and up to n sampled distractors together
// in random order.
func choices(rng *rand.Rand, correct Choice, pool []Choice, n int) []Choice {
	out := append([]Choice{correct}, sample(rng, pool, n)...)
	shuffle(rng, out)
	return out
}

// withoutIDs drops choices whose id is in skip or was already seen.
func withoutIDs(in []Choice, skip ...int64) []Choice {
	seen := make(map[int64]bool, len(in)+len(skip))
	for _, id := range skip {
		seen[id] = true
	}
	out := make([]Choice, 0, len(in))
	for _, c := range in {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	return out
}

func termChoices(terms []corpus.Term) []Choice {
	out := make([]Choice, 0, len(terms))
	for _, t := range terms {
		out = append(out, Choice{ID: t.ID, Text: t.Expression})
	}
	return out
}
