// Package analyzer segments and tokenizes example text. Japanese goes through
// the kagome morphological analyzer; other languages are split on white space.
package analyzer

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"

	"github.com/japaniel/lexercise/pkg/corpus"
)

// Japanese is the language code analyzed morphologically.
const Japanese = "ja"

// Token represents a single analyzed unit of text.
type Token struct {
	Surface       string   // The text as it appears (e.g. "行っ")
	BaseForm      string   // The dictionary form (e.g. "行く")
	Reading       string   // The pronunciation (katakana, e.g. "イッ")
	PartsOfSpeech []string // e.g. ["動詞", "自立", "*", "*"] (Kagome POS labels)
	// PrimaryPOS stores the first (primary) part of speech if available.
	PrimaryPOS string
	// Start and End are the inclusive rune offsets of Surface in the analyzed
	// text.
	Start, End int
}

// Range returns the highlight range covered by the token.
func (t Token) Range() corpus.Range { return corpus.Range{t.Start, t.End} }

// Sentence represents a sentence containing tokens.
type Sentence struct {
	Text   string
	Tokens []Token
}

// Analyzer handles text segmentation.
type Analyzer struct {
	t *tokenizer.Tokenizer
}

// New creates an analyzer backed by the IPA dictionary.
func New() (*Analyzer, error) {
	t, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, err
	}
	return &Analyzer{t: t}, nil
}

// Analyze breaks text into tokens with readings, base forms and offsets.
func (a *Analyzer) Analyze(text string) []Token {
	var result []Token
	for _, token := range a.t.Tokenize(text) {
		if token.Class == tokenizer.DUMMY {
			continue
		}
		if strings.TrimSpace(token.Surface) == "" {
			continue
		}

		// IPA features: 0-3 part of speech, 4-5 conjugation, 6 base form,
		// 7 reading, 8 pronunciation.
		features := token.Features()

		base := token.Surface
		if len(features) > 6 && features[6] != "*" {
			base = features[6]
		}
		reading := ""
		if len(features) > 7 && features[7] != "*" {
			reading = features[7]
		}
		primaryPOS := ""
		if len(features) > 0 {
			primaryPOS = features[0]
		}

		result = append(result, Token{
			Surface:       token.Surface,
			BaseForm:      base,
			Reading:       reading,
			PartsOfSpeech: features,
			PrimaryPOS:    primaryPOS,
			Start:         token.Start,
			End:           token.End - 1,
		})
	}
	return result
}

// AnalyzeDocument splits the text into sentences and tokenizes each sentence.
func (a *Analyzer) AnalyzeDocument(text string) []Sentence {
	var result []Sentence
	for _, s := range SplitSentences(text) {
		result = append(result, Sentence{Text: s, Tokens: a.Analyze(s)})
	}
	return result
}

// AnalyzeText splits text into sentences tokenized for language: kagome for
// Japanese, SplitWords otherwise.
func (a *Analyzer) AnalyzeText(language, text string) []Sentence {
	if language == Japanese {
		return a.AnalyzeDocument(text)
	}
	var result []Sentence
	for _, s := range SplitSentences(text) {
		result = append(result, Sentence{Text: s, Tokens: SplitWords(s)})
	}
	return result
}

// SplitWords tokenizes text on white space, trimming surrounding punctuation.
// Base forms are lower-cased; offsets are in runes like kagome's.
func SplitWords(sentence string) []Token {
	const punct = ".,;:!?\"'()"
	var tokens []Token
	runes := []rune(sentence)
	start := -1
	for i := 0; i <= len(runes); i++ {
		space := i == len(runes) || unicode.IsSpace(runes[i])
		switch {
		case !space && start < 0:
			start = i
		case space && start >= 0:
			field := string(runes[start:i])
			lead := len([]rune(field)) - len([]rune(strings.TrimLeft(field, punct)))
			word := strings.Trim(field, punct)
			if word != "" {
				tokens = append(tokens, Token{
					Surface:       word,
					BaseForm:      strings.ToLower(word),
					PrimaryPOS:    "word",
					PartsOfSpeech: []string{"word"},
					Start:         start + lead,
					End:           start + lead + len([]rune(word)) - 1,
				})
			}
			start = -1
		}
	}
	return tokens
}

// Words splits a sentence into the words an ordering exercise shuffles.
// Japanese text is split into morphemes; other text on white space.
func (a *Analyzer) Words(language, text string) []string {
	if language != Japanese {
		return strings.Fields(text)
	}
	tokens := a.Analyze(text)
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, t.Surface)
	}
	return out
}

// SplitSentences splits on Japanese and Latin sentence delimiters and on
// newlines. Sentences are trimmed and blank ones dropped.
func SplitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}
	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)
		switch r {
		case '。', '！', '？', '\n':
			flush()
		case '.', '!', '?':
			// Latin punctuation ends a sentence only before white space or
			// the end of text, so "3.5" and "e.g.x" stay whole.
			if i == len(runes)-1 || unicode.IsSpace(runes[i+1]) {
				flush()
			}
		}
	}
	flush()
	return sentences
}

// Occurrences returns the inclusive rune ranges of every non-overlapping
// occurrence of expr in text.
func Occurrences(text, expr string) []corpus.Range {
	if expr == "" {
		return nil
	}
	var out []corpus.Range
	n := utf8.RuneCountInString(expr)
	offset := 0 // runes consumed before rest
	rest := text
	for {
		i := strings.Index(rest, expr)
		if i < 0 {
			return out
		}
		start := offset + utf8.RuneCountInString(rest[:i])
		out = append(out, corpus.Range{start, start + n - 1})
		offset = start + n
		rest = rest[i+len(expr):]
	}
}

var (
	// (?s) allows dot to match newlines
	// (?i) makes it case-insensitive
	reRT = regexp.MustCompile(`(?si)<rt\b[^>]*>.*?</rt>`)
	reRP = regexp.MustCompile(`(?si)<rp\b[^>]*>.*?</rp>`)
)

// SanitizeRuby removes ruby text (<rt>...</rt>) and ruby parentheses (<rp>...</rp>)
// from HTML content. Readability keeps furigana as plain text otherwise, so
// "漢字" would be extracted as "漢字かんじ".
func SanitizeRuby(content []byte) []byte {
	cleaned := reRT.ReplaceAll(content, []byte{})
	cleaned = reRP.ReplaceAll(cleaned, []byte{})
	return cleaned
}
