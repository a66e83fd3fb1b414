package exercise

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeAnswer(t *testing.T) {
	a, err := DecodeAnswer(ListenTerm, []byte(`{"answer": "neko"}`))
	require.NoError(t, err)
	assert.Equal(t, "neko", a.Text)
	assert.JSONEq(t, `{"answer": "neko"}`, string(a.Raw))

	a, err = DecodeAnswer(TermMChoice, []byte(`{"answer": 42}`))
	require.NoError(t, err)
	assert.Equal(t, int64(42), a.Choice)

	a, err = DecodeAnswer(TermConnection, []byte(`{"answer": [1, 2, 3]}`))
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, a.Choices)

	a, err = DecodeAnswer(SpeakSentence, []byte(`not json`))
	require.NoError(t, err, "ungraded types accept any body")
	assert.Equal(t, "not json", string(a.Raw))
}

func TestDecodeAnswerErrors(t *testing.T) {
	cases := []struct {
		typ  Type
		body string
		msg  string
	}{
		{"bogus", `{"answer": 1}`, `unknown exercise type "bogus"`},
		{ListenTerm, `{}`, "answer is required"},
		{ListenTerm, `[`, "answer is required"},
		{ListenTerm, `{"answer": 1}`, "answer must be a string"},
		{TermMChoice, `{"answer": "a"}`, "answer must be a choice id"},
		{TermConnection, `{"answer": 1}`, "answer must be a list of choice ids"},
	}
	for _, tc := range cases {
		_, err := DecodeAnswer(tc.typ, []byte(tc.body))
		assert.ErrorIs(t, err, ErrInvalid, tc.body)
		assert.EqualError(t, err, tc.msg)
	}
}

func TestSameText(t *testing.T) {
	assert.True(t, sameText(" Neko\n", "neko"))
	assert.True(t, sameText("CAFE\u0301", "café"), "normalization form is ignored")
	assert.True(t, sameText("ねこ", "ねこ"))
	assert.False(t, sameText("ねこ", "ネコ"))
	assert.False(t, sameText("neko", "nekox"))
}
