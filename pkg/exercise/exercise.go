// Package exercise implements the exercise variant engine: the catalog of
// exercise types, authoring-time validation, rendering, grading, attempt
// history and seeded listing.
package exercise

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Type tags an exercise and decides which of its optional fields matter.
type Type string

const (
	OrderSentence         Type = "order_sentence"
	ListenTerm            Type = "listen_term"
	ListenTermMChoice     Type = "listen_term_mchoice"
	ListenSentence        Type = "listen_sentence"
	SpeakTerm             Type = "speak_term"
	SpeakSentence         Type = "speak_sentence"
	TermMChoice           Type = "term_mchoice"
	TermDefinitionMChoice Type = "term_definition_mchoice"
	TermImageMChoice      Type = "term_image_mchoice"
	TermImageMChoiceText  Type = "term_image_mchoice_text"
	TermConnection        Type = "term_connection"

	// Random matches every type when listing. It is never stored.
	Random Type = "random"
)

// SubType tells where the primary text of an exercise comes from.
type SubType string

const (
	SubTypeTerm           SubType = "term"
	SubTypeLexicalValue   SubType = "term_lexical_value"
	SubTypeLexicalTermRef SubType = "term_lexical_term_ref"
)

func (s SubType) valid() bool {
	switch s {
	case SubTypeTerm, SubTypeLexicalValue, SubTypeLexicalTermRef:
		return true
	}
	return false
}

// Pool names used as keys of Content.Distractors.
const (
	PoolTerm       = "term"
	PoolLexical    = "term_lexical"
	PoolDefinition = "definition"
	PoolImage      = "image"
)

// Content is the open payload stored next to an exercise
// (additional_content).
type Content struct {
	SubType     SubType            `json:"sub_type,omitempty"`
	Distractors map[string][]int64 `json:"distractors,omitempty"`
	Connections []int64            `json:"connections,omitempty"`
}

// Clone returns a deep copy, so sanitizing never touches the caller's lists.
func (c Content) Clone() Content {
	out := Content{SubType: c.SubType, Connections: slices.Clone(c.Connections)}
	if c.Distractors != nil {
		out.Distractors = make(map[string][]int64, len(c.Distractors))
		for k, v := range c.Distractors {
			out.Distractors[k] = slices.Clone(v)
		}
	}
	return out
}

// Exercise is one authored exercise. Reference ids are zero when unset.
type Exercise struct {
	ID                  int64     `json:"id"`
	Type                Type      `json:"type"`
	Language            string    `json:"language"`
	TermID              int64     `json:"term_id,omitempty"`
	TermExampleID       int64     `json:"term_example_id,omitempty"`
	TermPronunciationID int64     `json:"term_pronunciation_id,omitempty"`
	TermLexicalID       int64     `json:"term_lexical_id,omitempty"`
	TermDefinitionID    int64     `json:"term_definition_id,omitempty"`
	TermImageID         int64     `json:"term_image_id,omitempty"`
	Content             Content   `json:"additional_content"`
	Levels              []string  `json:"levels,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

// History is one recorded grading attempt.
type History struct {
	ID         uuid.UUID       `json:"id"`
	ExerciseID int64           `json:"exercise_id"`
	UserID     string          `json:"user_id"`
	CreatedAt  time.Time       `json:"created_at"`
	Correct    bool            `json:"correct"`
	Response   json.RawMessage `json:"response"`
	Request    json.RawMessage `json:"request"`
}
