package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/lexercise/pkg/db"
	"github.com/japaniel/lexercise/pkg/exercise"
)

const articleHTML = `<!DOCTYPE html>
<html><head><title>猫の一日</title></head>
<body>
<nav><a href="/">ホーム</a></nav>
<article>
<h1>猫の一日</h1>
<p>朝、<ruby>猫<rt>ねこ</rt></ruby>は窓のそばで日向ぼっこをします。昼になると台所へ行き、ご飯を待ちます。
午後はソファーの上でゆっくり眠ります。夕方には庭に出て、鳥を眺めるのが好きです。</p>
<p>夜になると家族のそばに来て、静かに過ごします。猫の一日はとても穏やかです。
私たちは猫と一緒に暮らすことで、毎日少しだけ優しい気持ちになれます。</p>
</article>
</body></html>`

const dictJSON = `{"words": [{"id": "1", "kanji": [{"text": "猫", "common": true}], "kana": [{"text": "ねこ", "common": true}],
  "sense": [{"gloss": [{"text": "cat"}], "partOfSpeech": ["n"]}]}]}`

type cli struct {
	t      *testing.T
	dbPath string
	dict   string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	tmp := t.TempDir()
	dict := filepath.Join(tmp, "jmdict.json")
	require.NoError(t, os.WriteFile(dict, []byte(dictJSON), 0o644))
	// Keep the developer's environment out of the test.
	t.Setenv("LEXERCISE_CONFIG", "")
	t.Setenv("LEXERCISE_LOG_LEVEL", "warn")
	return &cli{t: t, dbPath: filepath.Join(tmp, "lexercise.db"), dict: dict}
}

func (c *cli) run(stdin string, args ...string) (string, error) {
	var out, errOut bytes.Buffer
	all := append([]string{"-db", c.dbPath}, args...)
	err := run(context.Background(), all, strings.NewReader(stdin), &out, &errOut)
	if err != nil {
		c.t.Logf("lexercise %s: %v\n%s", strings.Join(args, " "), err, errOut.String())
	}
	return out.String(), err
}

func (c *cli) query(t *testing.T, dst any, query string, args ...any) {
	t.Helper()
	conn, err := db.Open(c.dbPath)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.QueryRow(query, args...).Scan(dst))
}

func TestCLI_OfflineServer(t *testing.T) {
	c := newCLI(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	out, err := c.run("", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Database initialized")

	out, err = c.run("", "import-article", "-url", srv.URL+"/cat", "-dict", c.dict)
	require.NoError(t, err)
	assert.Contains(t, out, "Processing complete")

	var sources int
	c.query(t, &sources, `SELECT COUNT(*) FROM sources`)
	assert.Equal(t, 1, sources)

	var catID, exampleID int64
	var definition string
	c.query(t, &catID, `SELECT id FROM terms WHERE expression = '猫'`)
	c.query(t, &definition, `SELECT text FROM term_definitions WHERE term_id = ?`, catID)
	assert.Equal(t, "cat", definition)
	c.query(t, &exampleID, `SELECT l.term_example_id FROM term_example_links l
		JOIN term_examples e ON e.id = l.term_example_id
		WHERE l.term_id = ? AND e.text LIKE '%日向ぼっこ%' ORDER BY l.id LIMIT 1`, catID)

	var distractors []int64
	conn, err := db.Open(c.dbPath)
	require.NoError(t, err)
	rows, err := conn.Query(`SELECT id FROM terms WHERE id != ? ORDER BY id LIMIT 3`, catID)
	require.NoError(t, err)
	for rows.Next() {
		var id int64
		require.NoError(t, rows.Scan(&id))
		distractors = append(distractors, id)
	}
	require.NoError(t, rows.Err())
	rows.Close()
	conn.Close()
	require.Len(t, distractors, 3)

	body, err := json.Marshal(map[string]any{
		"type":            exercise.TermMChoice,
		"language":        "ja",
		"term_id":         catID,
		"term_example_id": exampleID,
		"additional_content": map[string]any{
			"sub_type":    exercise.SubTypeTerm,
			"distractors": map[string][]int64{exercise.PoolTerm: distractors},
		},
	})
	require.NoError(t, err)

	out, err = c.run(string(body), "create")
	require.NoError(t, err)
	var created exercise.Exercise
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	require.NotZero(t, created.ID)
	id := fmt.Sprint(created.ID)

	_, err = c.run(string(body), "create")
	require.ErrorIs(t, err, exercise.ErrConflict)
	assert.Equal(t, 4, exitCode(err))

	out, err = c.run("", "build", "-id", id, "-type", string(exercise.TermMChoice))
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	assert.Len(t, payload["choices"], 4)
	assert.NotContains(t, payload["header"], "猫")

	out, err = c.run("", "check", "-id", id, "-type", string(exercise.TermMChoice),
		"-user", "learner-1", "-answer", fmt.Sprintf(`{"answer": %d}`, catID))
	require.NoError(t, err)
	var res exercise.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Correct)
	assert.True(t, res.Graded)

	out, err = c.run("", "history", "-id", id, "-user", "learner-1")
	require.NoError(t, err)
	var hist []exercise.History
	require.NoError(t, json.Unmarshal([]byte(out), &hist))
	require.Len(t, hist, 1)
	assert.True(t, hist[0].Correct)

	out, err = c.run("", "list", "-lang", "ja", "-seed", "abc")
	require.NoError(t, err)
	var listing struct {
		Seed    string           `json:"seed"`
		Entries []exercise.Entry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &listing))
	assert.Equal(t, "abc", listing.Seed)
	assert.Equal(t, []exercise.Entry{{ID: created.ID, Type: exercise.TermMChoice}}, listing.Entries)
}

func TestCLIErrors(t *testing.T) {
	c := newCLI(t)

	_, err := c.run("")
	assert.ErrorIs(t, err, errUsage)

	_, err = c.run("", "frobnicate")
	assert.ErrorIs(t, err, errUsage)

	_, err = c.run("", "build", "-id", "1")
	assert.ErrorIs(t, err, errUsage)

	_, err = c.run("", "build", "-id", "1", "-type", string(exercise.ListenTerm))
	assert.ErrorIs(t, err, exercise.ErrNotFound)
	assert.Equal(t, 3, exitCode(err))

	_, err = c.run(`{"type": "random", "language": "ja"}`, "create")
	assert.ErrorIs(t, err, exercise.ErrInvalid)
	assert.Equal(t, 2, exitCode(err))

	_, err = c.run("", "list", "-seed", "s")
	assert.ErrorContains(t, err, "at least one language is required")

	_, err = c.run("", "check", "-id", "1", "-type", string(exercise.ListenTerm), "-answer", "{nope")
	assert.ErrorIs(t, err, errUsage)
}

const corpusYAML = `
language: en
source: pets
terms:
  - expression: cat
    images: [https://img.test/cat.png]
  - expression: dog
  - expression: bird
  - expression: fish
`

func TestCLIImportCorpus(t *testing.T) {
	c := newCLI(t)
	doc := filepath.Join(t.TempDir(), "pets.yaml")
	require.NoError(t, os.WriteFile(doc, []byte(corpusYAML), 0o644))

	out, err := c.run("", "import-corpus", "-file", doc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"terms": 4, "lexicals": 0, "examples": 0, "links": 0, "cards": 0}`, out)

	out, err = c.run("", "sources")
	require.NoError(t, err)
	var sources []struct {
		Title         string `json:"title"`
		LastProcessed int    `json:"last_processed_sentence"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &sources))
	require.Len(t, sources, 1)
	assert.Equal(t, "pets", sources[0].Title)
	assert.Equal(t, -1, sources[0].LastProcessed)

	ids := map[string]int64{}
	for _, expr := range []string{"cat", "dog", "bird", "fish"} {
		var id int64
		c.query(t, &id, `SELECT id FROM terms WHERE expression = ?`, expr)
		ids[expr] = id
	}
	var imageID int64
	c.query(t, &imageID, `SELECT id FROM term_images WHERE term_id = ?`, ids["cat"])

	body := fmt.Sprintf(`{"type": "term_image_mchoice_text", "language": "en", "term_id": %d, "term_image_id": %d,
		"additional_content": {"distractors": {"term": [%d, %d, %d]}}}`, ids["cat"], imageID, ids["dog"], ids["bird"], ids["fish"])
	out, err = c.run(body, "create")
	require.NoError(t, err)
	var created exercise.Exercise
	require.NoError(t, json.Unmarshal([]byte(out), &created))

	out, err = c.run("", "build", "-id", fmt.Sprint(created.ID), "-type", string(exercise.TermImageMChoiceText))
	require.NoError(t, err)
	var payload struct {
		Image   string            `json:"image"`
		Choices []exercise.Choice `json:"choices"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	assert.Equal(t, "https://img.test/cat.png", payload.Image)
	assert.Len(t, payload.Choices, 4)

	_, err = c.run("", "import-corpus")
	assert.ErrorIs(t, err, errUsage)
}
