package exercise

import (
	"encoding/json"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Answer is a learner's submission, decoded according to the exercise type.
type Answer struct {
	Text    string
	Choice  int64
	Choices []int64
	// Raw is the submitted body as received.
	Raw json.RawMessage
}

// Grade is the outcome of comparing an answer to the correct one. Graded is
// false for exercises nothing can check automatically; those are accepted.
type Grade struct {
	Correct bool
	Graded  bool
}

// DecodeAnswer decodes a {"answer": ...} body whose shape depends on the
// exercise type: a string for free text, an id for a single choice, a list of
// ids for connections. Ungraded types accept any body.
func DecodeAnswer(t Type, raw []byte) (Answer, error) {
	d, ok := Catalog[t]
	if !ok {
		return Answer{}, invalid("type", "unknown exercise type %q", t)
	}
	a := Answer{Raw: json.RawMessage(raw)}
	if d.Answer == Ungraded {
		return a, nil
	}

	var body struct {
		Answer json.RawMessage `json:"answer"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Answer) == 0 {
		return Answer{}, invalid("answer", "answer is required")
	}
	switch d.Answer {
	case FreeText:
		if err := json.Unmarshal(body.Answer, &a.Text); err != nil {
			return Answer{}, invalid("answer", "answer must be a string")
		}
	case SingleChoice:
		if err := json.Unmarshal(body.Answer, &a.Choice); err != nil {
			return Answer{}, invalid("answer", "answer must be a choice id")
		}
	case MultiChoice:
		if err := json.Unmarshal(body.Answer, &a.Choices); err != nil {
			return Answer{}, invalid("answer", "answer must be a list of choice ids")
		}
	}
	return a, nil
}

// sameText compares free-text answers ignoring surrounding space, case and
// Unicode normalization form.
func sameText(got, want string) bool {
	return fold(got) == fold(want)
}

func fold(s string) string {
	s = norm.NFC.String(strings.TrimSpace(s))
	return cases.Fold().String(s)
}
