package exercise

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/lexercise/pkg/corpus"
)

// loremCorpus builds a small corpus around term 1 ("orem") and example 10.
//
//	terms 1..6         orem, cat, dog, bird, fish, tree
//	terms 100..111     connection material
//	lexicals 30..34    rhymes of term 1 pointing at terms 2..6
//	lexicals 40..43    values; 44 refers to term 3 and has no value
//	prons 20..25       term audio (term 6 has none), 70 example, 80 lexical 44
//	definitions 50..53 images 60..63 (terms 1..4), 64 65 (term 2), 66 (term 1)
func loremCorpus() *fakeCorpus {
	f := newFakeCorpus()
	for i, expr := range []string{"orem", "cat", "dog", "bird", "fish", "tree"} {
		f.addTerm(int64(i+1), expr)
	}
	for id := int64(100); id <= 111; id++ {
		f.addTerm(id, "word"+string(rune('a'+id-100)))
	}
	f.examples[10] = corpus.Example{ID: 10, Language: "en", Text: "Lorem ipsum dolor sit amet"}
	f.links = append(f.links,
		corpus.ExampleLink{ID: 1, TermExampleID: 10, TermID: 1, Highlight: []corpus.Range{{1, 5}, {14, 17}}},
		corpus.ExampleLink{ID: 2, TermExampleID: 10, TermLexicalID: 40, Highlight: []corpus.Range{{0, 4}}},
	)

	audio := map[int64]string{1: "t1.mp3", 2: "t2.mp3", 3: "t3.mp3", 4: "t4.mp3", 5: "t5.mp3", 6: ""}
	for term, file := range audio {
		f.prons[19+term] = corpus.Pronunciation{ID: 19 + term, TermID: term, AudioFile: file, Phonetic: "/" + file + "/"}
	}
	f.prons[70] = corpus.Pronunciation{ID: 70, TermExampleID: 10, AudioFile: "s10.mp3", Phonetic: "/lorem/"}
	f.prons[80] = corpus.Pronunciation{ID: 80, TermLexicalID: 44, AudioFile: "l44.mp3"}

	for i, ref := range []int64{2, 3, 4, 5, 6} {
		id := int64(30 + i)
		f.lexicals[id] = corpus.Lexical{ID: id, TermID: 1, TermRefID: ref, Type: corpus.Rhyme}
	}
	f.lexicals[40] = corpus.Lexical{ID: 40, TermID: 1, Type: corpus.Synonym, Value: "lorem"}
	f.lexicals[41] = corpus.Lexical{ID: 41, TermID: 2, Type: corpus.Synonym, Value: "kitty"}
	f.lexicals[42] = corpus.Lexical{ID: 42, TermID: 3, Type: corpus.Synonym, Value: "hound"}
	f.lexicals[43] = corpus.Lexical{ID: 43, TermID: 4, Type: corpus.Synonym, Value: "fowl"}
	f.lexicals[44] = corpus.Lexical{ID: 44, TermID: 1, TermRefID: 3, Type: corpus.Form}

	f.definitions[50] = corpus.Definition{ID: 50, TermID: 1, Language: "en", Text: "a made-up word"}
	f.definitions[51] = corpus.Definition{ID: 51, TermID: 2, Language: "en", Text: "a small feline"}
	f.definitions[52] = corpus.Definition{ID: 52, TermID: 3, Language: "en", Text: "a loyal canine"}
	f.definitions[53] = corpus.Definition{ID: 53, TermID: 4, Language: "en", Text: "a feathered animal"}

	for i := int64(0); i < 4; i++ {
		f.images[60+i] = corpus.Image{ID: 60 + i, TermID: i + 1, URL: "https://img.test/" + string(rune('a'+i)) + ".png"}
	}
	f.images[64] = corpus.Image{ID: 64, TermID: 2, URL: "https://img.test/b2.png"}
	f.images[65] = corpus.Image{ID: 65, TermID: 2, URL: "https://img.test/b3.png"}
	f.images[66] = corpus.Image{ID: 66, TermID: 1, URL: "https://img.test/a2.png"}
	return f
}

func terms(ids ...int64) map[string][]int64 { return map[string][]int64{PoolTerm: ids} }

// validExercises has one valid exercise of every graded type.
func validExercises() map[string]Exercise {
	return map[string]Exercise{
		"order sentence": {Type: OrderSentence, TermExampleID: 10, Content: Content{Distractors: terms(2, 3)}},
		"listen term":    {Type: ListenTerm, TermID: 1, TermPronunciationID: 20, Content: Content{SubType: SubTypeTerm}},
		"listen term ref": {Type: ListenTerm, TermLexicalID: 44, TermPronunciationID: 80,
			Content: Content{SubType: SubTypeLexicalTermRef}},
		"listen mchoice":  {Type: ListenTermMChoice, TermID: 1, TermPronunciationID: 20},
		"listen sentence": {Type: ListenSentence, TermExampleID: 10, TermPronunciationID: 70},
		"cloze term": {Type: TermMChoice, TermID: 1, TermExampleID: 10,
			Content: Content{SubType: SubTypeTerm, Distractors: terms(2, 3, 4)}},
		"cloze lexical value": {Type: TermMChoice, TermLexicalID: 40, TermExampleID: 10,
			Content: Content{SubType: SubTypeLexicalValue, Distractors: map[string][]int64{PoolLexical: {41, 42, 43}}}},
		"definition": {Type: TermDefinitionMChoice, TermID: 1, TermDefinitionID: 50,
			Content: Content{SubType: SubTypeTerm, Distractors: map[string][]int64{PoolDefinition: {51, 52, 53}}}},
		"image": {Type: TermImageMChoice, TermID: 1, TermImageID: 60, TermPronunciationID: 20,
			Content: Content{Distractors: map[string][]int64{PoolImage: {61, 62, 63}}}},
		"image text": {Type: TermImageMChoiceText, TermID: 1, TermImageID: 60, Content: Content{Distractors: terms(2, 3, 4)}},
		"connection": {Type: TermConnection, TermID: 1, Content: Content{
			Connections: []int64{100, 101, 102, 103},
			Distractors: terms(104, 105, 106, 107, 108, 109, 110, 111),
		}},
	}
}

func create(t *testing.T, svc *Service, ex Exercise) Exercise {
	t.Helper()
	if ex.Language == "" {
		ex.Language = "en"
	}
	created, err := svc.Create(context.Background(), ex)
	require.NoError(t, err)
	return created
}

func choicesOf(t *testing.T, p Payload) []Choice {
	t.Helper()
	cs, ok := p["choices"].([]Choice)
	require.True(t, ok, "choices is %T", p["choices"])
	return cs
}

func TestBuildClozeMasksHighlight(t *testing.T) {
	svc, _ := newTestService(loremCorpus())
	ex := create(t, svc, Exercise{
		Type:          TermMChoice,
		TermID:        1,
		TermExampleID: 10,
		Content:       Content{SubType: SubTypeTerm, Distractors: terms(2, 3, 4, 99)},
	})
	assert.Equal(t, []int64{2, 3, 4}, ex.Content.Distractors[PoolTerm])

	p, err := svc.Build(context.Background(), ex.ID, TermMChoice)
	require.NoError(t, err)
	assert.Equal(t, "L_____ipsum do____sit amet", p["header"])
	assert.Equal(t, "L_____ipsum do____sit amet", p["sentence"])

	cs := choicesOf(t, p)
	require.Len(t, cs, 4)
	assert.Contains(t, cs, Choice{ID: 1, Text: "orem"})
	assert.Equal(t, ex.ID, p["id"])
	assert.Equal(t, TermMChoice, p["type"])
}

func TestBuildClozeLexicalValue(t *testing.T) {
	svc, _ := newTestService(loremCorpus())
	ex := create(t, svc, validExercises()["cloze lexical value"])

	p, err := svc.Build(context.Background(), ex.ID, TermMChoice)
	require.NoError(t, err)
	assert.Equal(t, "_____ ipsum dolor sit amet", p["header"])
	cs := choicesOf(t, p)
	assert.ElementsMatch(t, []Choice{
		{ID: 40, Text: "lorem"}, {ID: 41, Text: "kitty"}, {ID: 42, Text: "hound"}, {ID: 43, Text: "fowl"},
	}, cs)
}

func TestBuildListenTermMChoiceUsesRhymes(t *testing.T) {
	svc, _ := newTestService(loremCorpus())
	ex := create(t, svc, Exercise{Type: ListenTermMChoice, TermID: 1, TermPronunciationID: 20})

	rhymeAudio := map[int64]string{2: "t2.mp3", 3: "t3.mp3", 4: "t4.mp3", 5: "t5.mp3"}
	for i := 0; i < 2; i++ {
		p, err := svc.Build(context.Background(), ex.ID, ListenTermMChoice)
		require.NoError(t, err)
		cs := choicesOf(t, p)
		require.Len(t, cs, 4)
		assert.Contains(t, cs, Choice{ID: 1, Text: "orem", AudioFile: "t1.mp3"})

		others := map[int64]bool{}
		for _, c := range cs {
			if c.ID == 1 {
				continue
			}
			want, ok := rhymeAudio[c.ID]
			require.True(t, ok, "choice %d is not a rhyme with audio", c.ID)
			assert.Equal(t, want, c.AudioFile)
			others[c.ID] = true
		}
		assert.Len(t, others, 3)
	}
}

func TestBuildEveryType(t *testing.T) {
	svc, _ := newTestService(loremCorpus())
	ctx := context.Background()

	for name, ex := range validExercises() {
		t.Run(name, func(t *testing.T) {
			created := create(t, svc, ex)
			p, err := svc.Build(ctx, created.ID, created.Type)
			require.NoError(t, err)
			assert.NotEmpty(t, p["title"])
			assert.NotEmpty(t, p["description"])
			assert.Contains(t, p, "header")
			assert.Equal(t, created.ID, p["id"])
		})
	}
}

func TestBuildPayloadFields(t *testing.T) {
	svc, _ := newTestService(loremCorpus())
	ctx := context.Background()
	ex := validExercises()

	order := create(t, svc, ex["order sentence"])
	p, err := svc.Build(ctx, order.ID, OrderSentence)
	require.NoError(t, err)
	words, ok := p["choices"].([]string)
	require.True(t, ok)
	assert.Subset(t, words, []string{"Lorem", "ipsum", "dolor", "sit", "amet"})
	assert.GreaterOrEqual(t, len(words), 5)
	assert.LessOrEqual(t, len(words), 7)
	assert.Equal(t, "5 words", p["header"])

	listen := create(t, svc, ex["listen sentence"])
	p, err = svc.Build(ctx, listen.ID, ListenSentence)
	require.NoError(t, err)
	assert.Equal(t, "s10.mp3", p["audio_file"])

	def := create(t, svc, ex["definition"])
	p, err = svc.Build(ctx, def.ID, TermDefinitionMChoice)
	require.NoError(t, err)
	assert.Equal(t, "orem", p["header"])
	assert.Contains(t, choicesOf(t, p), Choice{ID: 50, Text: "a made-up word"})

	img := create(t, svc, ex["image"])
	p, err = svc.Build(ctx, img.ID, TermImageMChoice)
	require.NoError(t, err)
	assert.Equal(t, "t1.mp3", p["audio_file"])
	var keys []int64
	for _, c := range choicesOf(t, p) {
		keys = append(keys, c.ID)
	}
	assert.ElementsMatch(t, []int64{1, 2, 3, 4}, keys, "image choices are keyed by term")

	imgText := create(t, svc, ex["image text"])
	p, err = svc.Build(ctx, imgText.ID, TermImageMChoiceText)
	require.NoError(t, err)
	assert.Equal(t, "https://img.test/a.png", p["image"])
	assert.Contains(t, choicesOf(t, p), Choice{ID: 1, Text: "orem"})

	conn := create(t, svc, ex["connection"])
	p, err = svc.Build(ctx, conn.ID, TermConnection)
	require.NoError(t, err)
	cs := choicesOf(t, p)
	assert.Len(t, cs, 12)
	var ids []int64
	for _, c := range cs {
		ids = append(ids, c.ID)
	}
	assert.Subset(t, ids, []int64{100, 101, 102, 103})

	speak := create(t, svc, Exercise{Type: SpeakSentence, TermExampleID: 10, TermPronunciationID: 70})
	p, err = svc.Build(ctx, speak.ID, SpeakSentence)
	require.NoError(t, err)
	assert.Equal(t, "/lorem/", p["phonetic"])
	assert.Equal(t, "Lorem ipsum dolor sit amet", p["sentence"])
}

func TestBuildNotFound(t *testing.T) {
	svc, _ := newTestService(loremCorpus())
	ex := create(t, svc, validExercises()["listen sentence"])

	_, err := svc.Build(context.Background(), ex.ID, SpeakSentence)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Build(context.Background(), ex.ID+1, ListenSentence)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateConflict(t *testing.T) {
	svc, _ := newTestService(loremCorpus())
	ex := validExercises()["listen sentence"]
	create(t, svc, ex)

	ex.Language = "en"
	_, err := svc.Create(context.Background(), ex)
	assert.ErrorIs(t, err, ErrConflict)

	ex.Language = "fr"
	_, err = svc.Create(context.Background(), ex)
	assert.NoError(t, err, "the unique key includes the language")
}

func choiceIDs(cs []Choice) []int64 {
	ids := make([]int64, 0, len(cs))
	for _, c := range cs {
		ids = append(ids, c.ID)
	}
	return ids
}

// Pools submitted with the correct answer, or with several images of one
// term, are stored without them and still render a full set of choices.
func TestBuildShowsFullChoicesFromOverlappingPools(t *testing.T) {
	cases := []struct {
		name   string
		ex     Exercise
		pool   string
		stored []int64
		want   []int64
	}{
		{
			name:   "cloze term",
			ex:     Exercise{Type: TermMChoice, TermID: 1, TermExampleID: 10, Content: Content{SubType: SubTypeTerm, Distractors: terms(1, 2, 3, 1, 4)}},
			pool:   PoolTerm,
			stored: []int64{2, 3, 4},
			want:   []int64{1, 2, 3, 4},
		},
		{
			name: "cloze lexical value",
			ex: Exercise{Type: TermMChoice, TermLexicalID: 40, TermExampleID: 10,
				Content: Content{SubType: SubTypeLexicalValue, Distractors: map[string][]int64{PoolLexical: {40, 41, 42, 43}}}},
			pool:   PoolLexical,
			stored: []int64{41, 42, 43},
			want:   []int64{40, 41, 42, 43},
		},
		{
			name: "definition",
			ex: Exercise{Type: TermDefinitionMChoice, TermID: 1, TermDefinitionID: 50,
				Content: Content{SubType: SubTypeTerm, Distractors: map[string][]int64{PoolDefinition: {50, 51, 52, 53}}}},
			pool:   PoolDefinition,
			stored: []int64{51, 52, 53},
			want:   []int64{50, 51, 52, 53},
		},
		{
			name: "image",
			ex: Exercise{Type: TermImageMChoice, TermID: 1, TermImageID: 60, TermPronunciationID: 20,
				Content: Content{Distractors: map[string][]int64{PoolImage: {60, 61, 64, 66, 62, 65, 63}}}},
			pool:   PoolImage,
			stored: []int64{61, 62, 63},
			want:   []int64{1, 2, 3, 4},
		},
		{
			name:   "image text",
			ex:     Exercise{Type: TermImageMChoiceText, TermID: 1, TermImageID: 60, Content: Content{Distractors: terms(2, 1, 3, 4)}},
			pool:   PoolTerm,
			stored: []int64{2, 3, 4},
			want:   []int64{1, 2, 3, 4},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, _ := newTestService(loremCorpus())
			ex := create(t, svc, tc.ex)
			assert.Equal(t, tc.stored, ex.Content.Distractors[tc.pool])

			for range 5 {
				p, err := svc.Build(context.Background(), ex.ID, ex.Type)
				require.NoError(t, err)
				cs := choicesOf(t, p)
				require.Len(t, cs, 4)
				assert.ElementsMatch(t, tc.want, choiceIDs(cs))
			}
		})
	}
}

func TestBuildConnectionKeepsDistractorsApart(t *testing.T) {
	svc, _ := newTestService(loremCorpus())
	ex := create(t, svc, Exercise{Type: TermConnection, TermID: 1, Content: Content{
		Connections: []int64{1, 100, 101, 102, 103},
		Distractors: terms(1, 100, 101, 104, 105, 106, 107, 108, 109, 110, 111),
	}})
	assert.Equal(t, []int64{100, 101, 102, 103}, ex.Content.Connections)
	assert.Equal(t, []int64{104, 105, 106, 107, 108, 109, 110, 111}, ex.Content.Distractors[PoolTerm])

	p, err := svc.Build(context.Background(), ex.ID, TermConnection)
	require.NoError(t, err)
	cs := choicesOf(t, p)
	require.Len(t, cs, 12)
	assert.ElementsMatch(t, []int64{100, 101, 102, 103, 104, 105, 106, 107, 108, 109, 110, 111}, choiceIDs(cs))
}

func TestCreateDerivesLevels(t *testing.T) {
	rd := loremCorpus()
	for id, level := range map[int64]string{1: "N3", 3: "N5"} {
		term := rd.terms[id]
		term.Level = level
		rd.terms[id] = term
	}
	rd.examples[11] = corpus.Example{ID: 11, Text: "A dog", Level: "N4"}
	rd.prons[71] = corpus.Pronunciation{ID: 71, TermExampleID: 11, AudioFile: "s11.mp3"}
	svc, _ := newTestService(rd)

	ref := create(t, svc, validExercises()["listen term ref"])
	assert.Equal(t, []string{"N3", "N5"}, ref.Levels, "the lexical's term, then the referenced term")

	value := create(t, svc, validExercises()["cloze lexical value"])
	assert.Equal(t, []string{"N3"}, value.Levels, "a value lexical takes the level of its term")

	sentence := create(t, svc, Exercise{Type: ListenSentence, TermExampleID: 11, TermPronunciationID: 71})
	assert.Equal(t, []string{"N4"}, sentence.Levels)
}

func answerFor(t *testing.T, kind AnswerKind, correct any) Answer {
	t.Helper()
	switch kind {
	case FreeText:
		return Answer{Text: correct.(string)}
	case SingleChoice:
		return Answer{Choice: correct.(int64)}
	case MultiChoice:
		return Answer{Choices: correct.([]int64)}
	}
	t.Fatalf("no answer for kind %d", kind)
	return Answer{}
}

func TestCorrectAnswerIsAccepted(t *testing.T) {
	rd := loremCorpus()
	svc, store := newTestService(rd)
	ctx := context.Background()

	for name, ex := range validExercises() {
		t.Run(name, func(t *testing.T) {
			created := create(t, svc, ex)
			stored, err := store.Get(ctx, created.ID, created.Type)
			require.NoError(t, err)
			r, err := resolve(ctx, rd, stored)
			require.NoError(t, err)
			v, err := newVariant(r, nil)
			require.NoError(t, err)

			kind := Catalog[created.Type].Answer
			correct := v.CorrectAnswer()
			g := v.Assert(answerFor(t, kind, correct))
			assert.True(t, g.Correct)
			assert.True(t, g.Graded)

			if kind == FreeText {
				g = v.Assert(Answer{Text: correct.(string) + "x"})
				assert.False(t, g.Correct)
			}
		})
	}
}

func TestCorrectAnswers(t *testing.T) {
	svc, _ := newTestService(loremCorpus())
	ctx := context.Background()
	ex := validExercises()

	cases := []struct {
		name string
		want any
	}{
		{"listen term", "orem"},
		{"listen term ref", "dog"},
		{"listen sentence", "Lorem ipsum dolor sit amet"},
		{"order sentence", "Lorem ipsum dolor sit amet"},
		{"listen mchoice", int64(1)},
		{"cloze term", int64(1)},
		{"cloze lexical value", int64(40)},
		{"definition", int64(50)},
		{"image", int64(1)},
		{"image text", int64(1)},
		{"connection", []int64{100, 101, 102, 103}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			created := create(t, svc, ex[tc.name])
			res, err := svc.Check(ctx, CheckRequest{
				UserID:     "u1",
				ExerciseID: created.ID,
				Type:       created.Type,
				Answer:     json.RawMessage(`{"answer": 0}`),
			})
			if Catalog[created.Type].Answer == FreeText {
				// 0 is not a string.
				require.ErrorIs(t, err, ErrInvalid)
				res, err = svc.Check(ctx, CheckRequest{UserID: "u1", ExerciseID: created.ID, Type: created.Type,
					Answer: json.RawMessage(`{"answer": ""}`)})
			}
			if created.Type == TermConnection {
				require.ErrorIs(t, err, ErrInvalid)
				res, err = svc.Check(ctx, CheckRequest{UserID: "u1", ExerciseID: created.ID, Type: created.Type,
					Answer: json.RawMessage(`{"answer": []}`)})
			}
			require.NoError(t, err)
			assert.False(t, res.Correct)
			assert.Equal(t, tc.want, res.CorrectAnswer)
		})
	}
}

func TestCheckFreeText(t *testing.T) {
	svc, _ := newTestService(loremCorpus())
	ctx := context.Background()
	ex := create(t, svc, validExercises()["listen term"])

	check := func(body string) Result {
		res, err := svc.Check(ctx, CheckRequest{UserID: "u1", ExerciseID: ex.ID, Type: ListenTerm, Answer: json.RawMessage(body)})
		require.NoError(t, err)
		return res
	}
	assert.True(t, check(`{"answer": "  OREM "}`).Correct)
	assert.False(t, check(`{"answer": "oremx"}`).Correct)
	assert.True(t, check(`{"answer": "orem"}`).Graded)
}

func TestCheckConnectionSubset(t *testing.T) {
	svc, _ := newTestService(loremCorpus())
	ctx := context.Background()
	ex := create(t, svc, validExercises()["connection"])

	cases := []struct {
		answer string
		want   bool
	}{
		{`[100, 101, 102, 103]`, true},
		{`[103, 100]`, true},
		{`[101]`, true},
		// The number of picks is not checked, only membership.
		{`[100, 100, 100, 100, 100]`, true},
		{`[100, 104]`, false},
		{`[1]`, false},
		{`[]`, false},
	}
	for _, tc := range cases {
		res, err := svc.Check(ctx, CheckRequest{UserID: "u1", ExerciseID: ex.ID, Type: TermConnection,
			Answer: json.RawMessage(`{"answer": ` + tc.answer + `}`)})
		require.NoError(t, err)
		assert.Equal(t, tc.want, res.Correct, tc.answer)
	}
}

func TestCheckSpeakIsUngraded(t *testing.T) {
	svc, store := newTestService(loremCorpus())
	ctx := context.Background()
	ex := create(t, svc, Exercise{Type: SpeakTerm, TermID: 1, TermPronunciationID: 20, Content: Content{SubType: SubTypeTerm}})

	p, err := svc.Build(ctx, ex.ID, SpeakTerm)
	require.NoError(t, err)
	assert.Equal(t, "t1.mp3", p["audio_file"])
	assert.Equal(t, "orem", p["header"])

	res, err := svc.Check(ctx, CheckRequest{UserID: "u1", ExerciseID: ex.ID, Type: SpeakTerm, Answer: json.RawMessage(`"whatever"`)})
	require.NoError(t, err)
	assert.True(t, res.Correct)
	assert.False(t, res.Graded)
	assert.Len(t, store.history, 1)
}

func TestCheckAppendsHistoryEveryTime(t *testing.T) {
	svc, store := newTestService(loremCorpus())
	ctx := context.Background()
	ex := create(t, svc, validExercises()["cloze term"])

	shown := json.RawMessage(`{"header":"L_____ipsum do____sit amet"}`)
	req := CheckRequest{UserID: "u1", ExerciseID: ex.ID, Type: TermMChoice, Answer: json.RawMessage(`{"answer": 1}`), Request: shown}
	for i := 0; i < 2; i++ {
		res, err := svc.Check(ctx, req)
		require.NoError(t, err)
		assert.True(t, res.Correct)
		assert.Equal(t, int64(1), res.CorrectAnswer)
	}

	rows, err := svc.History(ctx, ex.ID, "u1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.NotEqual(t, rows[0].ID, rows[1].ID)
	for _, h := range rows {
		assert.Equal(t, "u1", h.UserID)
		assert.True(t, h.Correct)
		assert.JSONEq(t, string(shown), string(h.Request))
		assert.JSONEq(t, `{"answer": 1, "correct": true, "correct_answer": 1, "graded": true}`, string(h.Response))
		assert.Equal(t, 2024, h.CreatedAt.Year())
	}

	other, err := svc.History(ctx, ex.ID, "u2")
	require.NoError(t, err)
	assert.Empty(t, other)

	// A wrong answer is recorded too; a missing request is stored as {}.
	_, err = svc.Check(ctx, CheckRequest{UserID: "u2", ExerciseID: ex.ID, Type: TermMChoice, Answer: json.RawMessage(`{"answer": 3}`)})
	require.NoError(t, err)
	require.Len(t, store.history, 3)
	last := store.history[2]
	assert.False(t, last.Correct)
	assert.JSONEq(t, `{}`, string(last.Request))
}

func TestCheckErrorsRecordNothing(t *testing.T) {
	svc, store := newTestService(loremCorpus())
	ctx := context.Background()
	ex := create(t, svc, validExercises()["cloze term"])

	_, err := svc.Check(ctx, CheckRequest{ExerciseID: ex.ID, Type: TermMChoice, Answer: json.RawMessage(`{"answer": 1}`)})
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = svc.Check(ctx, CheckRequest{UserID: "u1", ExerciseID: ex.ID, Type: ListenTerm, Answer: json.RawMessage(`{"answer": "x"}`)})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Check(ctx, CheckRequest{UserID: "u1", ExerciseID: ex.ID, Type: TermMChoice, Answer: json.RawMessage(`{"answer": "one"}`)})
	assert.ErrorIs(t, err, ErrInvalid)

	assert.Empty(t, store.history)
}

func TestMergeResponseKeepsNonObjectBodies(t *testing.T) {
	b, err := mergeResponse(json.RawMessage(`"hello"`), Result{Correct: true, CorrectAnswer: "hi", Graded: false})
	require.NoError(t, err)
	assert.JSONEq(t, `{"answer": "hello", "correct": true, "correct_answer": "hi", "graded": false}`, string(b))
}
