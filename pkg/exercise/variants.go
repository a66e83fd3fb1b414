package exercise

import (
	"fmt"
	"math/rand/v2"
	"slices"
)

// choiceCount is how many distractors a single-choice exercise shows.
const choiceCount = 3

// orderSentence scrambles the words of an example, mixed with a random number
// of distractor terms. The header tells how many words the sentence has.
type orderSentence struct {
	freeText
	tokens      []string
	distractors []string
}

func newOrderSentence(r *Resolved, m *material) *orderSentence {
	v := &orderSentence{freeText: freeText{answer: r.Example.Text}, tokens: m.tokens}
	for _, t := range m.terms {
		v.distractors = append(v.distractors, t.Expression)
	}
	return v
}

func (v *orderSentence) Build(rng *rand.Rand) Payload {
	extra := sample(rng, v.distractors, rng.IntN(len(v.distractors)+1))
	words := append(slices.Clone(v.tokens), extra...)
	shuffle(rng, words)

	p := newPayload(OrderSentence, fmt.Sprintf("%d words", len(v.tokens)))
	p["choices"] = words
	return p
}

// listen plays a recording the learner has to write down.
type listen struct {
	freeText
	r *Resolved
}

func (v *listen) Build(*rand.Rand) Payload {
	p := newPayload(v.r.Type, "")
	p["audio_file"] = v.r.Pronunciation.AudioFile
	return p
}

// listenChoice asks for the recording of a term among rhyming siblings.
type listenChoice struct {
	singleChoice
	r      *Resolved
	rhymes []rhyme
}

func (v *listenChoice) Build(rng *rand.Rand) Payload {
	pool := make([]Choice, 0, len(v.rhymes))
	for _, s := range v.rhymes {
		pool = append(pool, Choice{ID: s.Term.ID, Text: s.Term.Expression, AudioFile: s.Audio})
	}
	correct := Choice{ID: v.r.TermID, Text: v.r.Term.Expression, AudioFile: v.r.Pronunciation.AudioFile}

	p := newPayload(ListenTermMChoice, "")
	p["choices"] = choices(rng, correct, withoutIDs(pool, v.r.TermID), choiceCount)
	return p
}

// speak shows a recording and its transcription. There is no speech
// recognition, so every answer is accepted and reported as ungraded.
type speak struct {
	r    *Resolved
	text string
}

func (v *speak) Build(*rand.Rand) Payload {
	p := newPayload(v.r.Type, v.text)
	p["audio_file"] = v.r.Pronunciation.AudioFile
	p["phonetic"] = v.r.Pronunciation.Phonetic
	if v.r.Type == SpeakSentence {
		p["sentence"] = v.text
	}
	return p
}

func (v *speak) Assert(Answer) Grade { return Grade{Correct: true, Graded: false} }

func (v *speak) CorrectAnswer() any { return v.text }

// cloze masks the highlighted occurrences of the primary text in an example.
type cloze struct {
	singleChoice
	r       *Resolved
	correct Choice
	pool    []Choice
	masked  string
}

func newCloze(r *Resolved, m *material) *cloze {
	v := &cloze{
		r:            r,
		singleChoice: singleChoice{correct: r.primaryID()},
		masked:       mask(r.Example.Text, m.highlight),
	}
	v.correct = Choice{ID: v.singleChoice.correct, Text: r.primaryText()}
	if r.Content.SubType == SubTypeLexicalValue {
		for _, l := range m.lexicals {
			v.pool = append(v.pool, Choice{ID: l.ID, Text: l.Value})
		}
	} else {
		v.pool = termChoices(m.terms)
	}
	v.pool = withoutIDs(v.pool, v.correct.ID)
	return v
}

func (v *cloze) Build(rng *rand.Rand) Payload {
	p := newPayload(TermMChoice, v.masked)
	p["sentence"] = v.masked
	p["choices"] = choices(rng, v.correct, v.pool, choiceCount)
	return p
}

// definitionChoice asks for the definition of a term or lexical.
type definitionChoice struct {
	singleChoice
	r       *Resolved
	correct Choice
	pool    []Choice
}

func newDefinitionChoice(r *Resolved, m *material) *definitionChoice {
	v := &definitionChoice{
		r:            r,
		singleChoice: singleChoice{correct: r.TermDefinitionID},
		correct:      Choice{ID: r.Definition.ID, Text: r.Definition.Text},
	}
	for _, d := range m.definitions {
		v.pool = append(v.pool, Choice{ID: d.ID, Text: d.Text})
	}
	v.pool = withoutIDs(v.pool, r.Definition.ID)
	return v
}

func (v *definitionChoice) Build(rng *rand.Rand) Payload {
	p := newPayload(TermDefinitionMChoice, v.r.primaryText())
	p["choices"] = choices(rng, v.correct, v.pool, choiceCount)
	return p
}

// imageChoice asks which image shows a term. Choices are keyed by the term
// each image belongs to.
type imageChoice struct {
	singleChoice
	r       *Resolved
	correct Choice
	pool    []Choice
}

func newImageChoice(r *Resolved, m *material) *imageChoice {
	v := &imageChoice{
		r:            r,
		singleChoice: singleChoice{correct: r.Image.TermID},
		correct:      Choice{ID: r.Image.TermID, Image: r.Image.URL},
	}
	for _, img := range m.images {
		v.pool = append(v.pool, Choice{ID: img.TermID, Image: img.URL})
	}
	v.pool = withoutIDs(v.pool, r.Image.TermID)
	return v
}

func (v *imageChoice) Build(rng *rand.Rand) Payload {
	p := newPayload(TermImageMChoice, v.r.Term.Expression)
	p["audio_file"] = v.r.Pronunciation.AudioFile
	p["choices"] = choices(rng, v.correct, v.pool, choiceCount)
	return p
}

// imageTextChoice shows an image and asks for the term it illustrates.
type imageTextChoice struct {
	singleChoice
	r       *Resolved
	correct Choice
	pool    []Choice
}

func newImageTextChoice(r *Resolved, m *material) *imageTextChoice {
	return &imageTextChoice{
		r:            r,
		singleChoice: singleChoice{correct: r.TermID},
		correct:      Choice{ID: r.TermID, Text: r.Term.Expression},
		pool:         withoutIDs(termChoices(m.terms), r.TermID),
	}
}

func (v *imageTextChoice) Build(rng *rand.Rand) Payload {
	p := newPayload(TermImageMChoiceText, "")
	p["image"] = v.r.Image.URL
	p["choices"] = choices(rng, v.correct, v.pool, choiceCount)
	return p
}

// connectionDistractors is how many unrelated terms a connection puzzle shows.
const connectionDistractors = 8

// connection asks for every term related to the shown one.
type connection struct {
	r           *Resolved
	connections []int64
	related     []Choice
	pool        []Choice
}

func newConnection(r *Resolved, m *material) *connection {
	v := &connection{
		r:           r,
		connections: slices.Clone(r.Content.Connections),
		related:     termChoices(m.connections),
	}
	v.pool = withoutIDs(termChoices(m.terms), append([]int64{r.TermID}, v.connections...)...)
	return v
}

func (v *connection) Build(rng *rand.Rand) Payload {
	all := append(sample(rng, v.pool, connectionDistractors), v.related...)
	shuffle(rng, all)

	p := newPayload(TermConnection, v.r.Term.Expression)
	p["choices"] = all
	return p
}

// Assert accepts any non-empty selection made only of related terms; the
// number of picks is not checked.
func (v *connection) Assert(a Answer) Grade {
	if len(a.Choices) == 0 {
		return Grade{Graded: true}
	}
	for _, id := range a.Choices {
		if !slices.Contains(v.connections, id) {
			return Grade{Graded: true}
		}
	}
	return Grade{Correct: true, Graded: true}
}

func (v *connection) CorrectAnswer() any { return slices.Clone(v.connections) }
