// Package dictionary loads JMdict-simplified dictionaries and attaches their
// glosses to corpus terms as definitions.
package dictionary

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// JMdictEntry matches the structure of jmdict-simplified entries.
type JMdictEntry struct {
	Id    string          `json:"id"`
	Kanji []JMdictElement `json:"kanji"`
	Kana  []JMdictElement `json:"kana"`
	Sense []JMdictSense   `json:"sense"`
}

type JMdictElement struct {
	Text   string   `json:"text"`
	Common bool     `json:"common"`
	Tags   []string `json:"tags"`
}

type JMdictSense struct {
	PartOfSpeech []string      `json:"partOfSpeech"`
	Gloss        []JMdictGloss `json:"gloss"`
}

type JMdictGloss struct {
	Text string `json:"text"`
	Lang string `json:"lang"` // defaults to 'eng' if missing
}

// LoadJMdictSimplified reads a dictionary file, either the release format
// { "words": [...] } or a bare array of entries.
func LoadJMdictSimplified(path string) ([]JMdictEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var wrapper struct {
		Words []JMdictEntry `json:"words"`
	}
	dec := json.NewDecoder(f)
	if err := dec.Decode(&wrapper); err == nil && len(wrapper.Words) > 0 {
		return wrapper.Words, nil
	}

	if _, err := f.Seek(0, 0); err != nil {
		return nil, err
	}
	var entries []JMdictEntry
	dec = json.NewDecoder(f)
	if err := dec.Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to parse dictionary as object or array: %w", err)
	}
	return entries, nil
}

// Senses flattens the entries into one definition text per sense, glosses
// joined with "; ". Duplicate senses across entries are kept once.
func Senses(entries []JMdictEntry) []string {
	var out []string
	seen := make(map[string]bool)
	for _, e := range entries {
		for _, s := range e.Sense {
			glosses := make([]string, 0, len(s.Gloss))
			for _, g := range s.Gloss {
				if g.Text != "" {
					glosses = append(glosses, g.Text)
				}
			}
			text := strings.Join(glosses, "; ")
			if text == "" || seen[text] {
				continue
			}
			seen[text] = true
			out = append(out, text)
		}
	}
	return out
}

// PrimaryReading returns the hiragana reading of the first entry, preferring
// its first common kana element.
func PrimaryReading(entries []JMdictEntry) string {
	if len(entries) == 0 || len(entries[0].Kana) == 0 {
		return ""
	}
	for _, k := range entries[0].Kana {
		if k.Common {
			return ToHiragana(k.Text)
		}
	}
	return ToHiragana(entries[0].Kana[0].Text)
}

// ToHiragana converts Katakana to Hiragana.
func ToHiragana(s string) string {
	runes := []rune(s)
	for i, r := range runes {
		if r >= 0x30A1 && r <= 0x30F6 {
			runes[i] = r - 0x60
		}
	}
	return string(runes)
}
