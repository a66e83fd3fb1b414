package exercise

import (
	"context"
	"fmt"
	"slices"

	"github.com/japaniel/lexercise/pkg/corpus"
)

// sanitizer rewrites the content of a candidate, dropping ids the corpus does
// not know or the builder could not show. It runs before any check.
type sanitizer func(ctx context.Context, rd corpus.Reader, r *Resolved, c Content) (Content, error)

// check validates a resolved candidate and returns a *ValidationError on the
// first broken rule.
type check func(ctx context.Context, rd corpus.Reader, r *Resolved) error

type chain struct {
	sanitize []sanitizer
	checks   []check
}

// chains holds the per-type validation pipeline. Checks shared by several
// types are the same functions.
var chains = map[Type]chain{
	OrderSentence: {
		sanitize: []sanitizer{sanitizePools},
		checks:   []check{checkPools},
	},
	ListenTerm: {
		checks: []check{checkPrimary, checkSubType, checkPronunciationOwner, checkAudio},
	},
	ListenTermMChoice: {
		checks: []check{checkSubType, checkPronunciationOwner, checkAudio, checkRhymes},
	},
	ListenSentence: {
		checks: []check{checkPronunciationOwner, checkAudio},
	},
	SpeakTerm: {
		checks: []check{checkPrimary, checkSubType, checkPronunciationOwner, checkAudio},
	},
	SpeakSentence: {
		checks: []check{checkPronunciationOwner, checkAudio},
	},
	TermMChoice: {
		sanitize: []sanitizer{sanitizePools},
		checks:   []check{checkPrimary, checkSubType, checkHighlight, checkPools},
	},
	TermDefinitionMChoice: {
		sanitize: []sanitizer{sanitizePools},
		checks:   []check{checkPrimary, checkSubType, checkDefinitionOwner, checkPools},
	},
	TermImageMChoice: {
		sanitize: []sanitizer{sanitizePools},
		checks:   []check{checkSubType, checkImageOwner, checkPronunciationOwner, checkAudio, checkPools},
	},
	TermImageMChoiceText: {
		sanitize: []sanitizer{sanitizePools},
		checks:   []check{checkSubType, checkImageOwner, checkPools},
	},
	TermConnection: {
		sanitize: []sanitizer{sanitizePools, sanitizeConnections},
		checks:   []check{checkSubType, checkPools, checkConnections},
	},
}

// Validator runs the validation pipeline of an exercise type.
type Validator struct {
	corpus corpus.Reader
}

// NewValidator returns a validator resolving pool ids against rd.
func NewValidator(rd corpus.Reader) *Validator {
	return &Validator{corpus: rd}
}

// Validate runs the sanitizers then the checks registered for r.Type. It
// returns the sanitized content to persist; r is left untouched. The shape of
// r.Exercise is expected to have been checked before it was resolved.
func (v *Validator) Validate(ctx context.Context, r *Resolved) (Content, error) {
	c, ok := chains[r.Type]
	if !ok {
		return Content{}, invalid("type", "unknown exercise type %q", r.Type)
	}

	content := r.Content.Clone()
	for _, s := range c.sanitize {
		var err error
		if content, err = s(ctx, v.corpus, r, content); err != nil {
			return Content{}, err
		}
	}

	candidate := *r
	candidate.Content = content
	for _, chk := range c.checks {
		if err := chk(ctx, v.corpus, &candidate); err != nil {
			return Content{}, err
		}
	}
	return content, nil
}

// checkShape enforces the catalog descriptor: known type, language, required
// and accepted references.
func checkShape(ex Exercise) error {
	if ex.Type == Random {
		return invalid("type", "%s is a listing wildcard and cannot be stored", Random)
	}
	d, ok := Catalog[ex.Type]
	if !ok {
		return invalid("type", "unknown exercise type %q", ex.Type)
	}
	if ex.Language == "" {
		return invalid("language", "language is required")
	}
	for _, r := range d.Required {
		if ex.ref(r) == 0 {
			return invalid("required", "%s requires %s", ex.Type, r)
		}
	}
	for _, r := range allRefs {
		if ex.ref(r) != 0 && !d.allows(r) {
			return invalid("forbidden", "%s does not accept %s", ex.Type, r)
		}
	}
	return nil
}

func checkPrimary(_ context.Context, _ corpus.Reader, r *Resolved) error {
	if (r.TermID == 0) == (r.TermLexicalID == 0) {
		return invalid("primary", "exactly one of term or term_lexical must be set")
	}
	return nil
}

func checkSubType(_ context.Context, _ corpus.Reader, r *Resolved) error {
	sub := r.Content.SubType
	if !Catalog[r.Type].Primary {
		if sub != "" && sub != SubTypeTerm {
			return invalid("sub_type", "sub_type %q is not used by %s", sub, r.Type)
		}
		return nil
	}
	if sub == "" {
		return invalid("sub_type", "sub_type is required")
	}
	if !sub.valid() {
		return invalid("sub_type", "sub_type %q is not valid", sub)
	}
	switch sub {
	case SubTypeTerm:
		if r.Term == nil {
			return invalid("sub_type", "sub_type %s requires term", sub)
		}
	case SubTypeLexicalValue:
		if r.Lexical == nil {
			return invalid("sub_type", "sub_type %s requires term_lexical", sub)
		}
		if r.Lexical.Value == "" {
			return invalid("sub_type", "term_lexical %d has no value", r.Lexical.ID)
		}
	case SubTypeLexicalTermRef:
		if r.Lexical == nil {
			return invalid("sub_type", "sub_type %s requires term_lexical", sub)
		}
		if r.Lexical.TermRefID == 0 {
			return invalid("sub_type", "term_lexical %d has no term reference", r.Lexical.ID)
		}
	}
	return nil
}

func checkPronunciationOwner(_ context.Context, _ corpus.Reader, r *Resolved) error {
	p := r.Pronunciation
	if p == nil {
		return invalid("pronunciation", "%s requires %s", r.Type, RefPronunciation)
	}
	switch {
	case r.Type == ListenSentence || r.Type == SpeakSentence:
		if p.TermExampleID != r.TermExampleID {
			return invalid("pronunciation", "term_pronunciation %d does not belong to term_example %d", p.ID, r.TermExampleID)
		}
	case r.TermLexicalID != 0:
		if p.TermLexicalID != r.TermLexicalID {
			return invalid("pronunciation", "term_pronunciation %d does not belong to term_lexical %d", p.ID, r.TermLexicalID)
		}
	default:
		if p.TermID != r.TermID {
			return invalid("pronunciation", "term_pronunciation %d does not belong to term %d", p.ID, r.TermID)
		}
	}
	return nil
}

func checkAudio(_ context.Context, _ corpus.Reader, r *Resolved) error {
	if r.Pronunciation == nil || r.Pronunciation.AudioFile == "" {
		return invalid("audio", "term_pronunciation has no audio_file")
	}
	return nil
}

func checkDefinitionOwner(_ context.Context, _ corpus.Reader, r *Resolved) error {
	d := r.Definition
	if r.TermLexicalID != 0 {
		if d.TermLexicalID != r.TermLexicalID {
			return invalid("definition", "term_definition %d does not belong to term_lexical %d", d.ID, r.TermLexicalID)
		}
		return nil
	}
	if d.TermID != r.TermID {
		return invalid("definition", "term_definition %d does not belong to term %d", d.ID, r.TermID)
	}
	return nil
}

func checkImageOwner(_ context.Context, _ corpus.Reader, r *Resolved) error {
	if r.Image.TermID != r.TermID {
		return invalid("image", "term_image %d does not belong to term %d", r.Image.ID, r.TermID)
	}
	return nil
}

// minRhymes is how many rhyme siblings a listen multiple-choice needs.
const minRhymes = 3

func checkRhymes(ctx context.Context, rd corpus.Reader, r *Resolved) error {
	rhymes, err := rhymesWithAudio(ctx, rd, r.TermID)
	if err != nil {
		return err
	}
	if len(rhymes) < minRhymes {
		return invalid("rhymes", "term needs at least %d rhymes with audio, found %d", minRhymes, len(rhymes))
	}
	return nil
}

// rhyme is a sibling term related by the rhyme relation, with its audio.
type rhyme struct {
	Term  corpus.Term
	Audio string
}

func rhymesWithAudio(ctx context.Context, rd corpus.Reader, termID int64) ([]rhyme, error) {
	lexicals, err := rd.LexicalsByTerm(ctx, termID, corpus.Rhyme)
	if err != nil {
		return nil, fmt.Errorf("load rhymes of term %d: %w", termID, err)
	}
	var refs []int64
	for _, l := range lexicals {
		if l.TermRefID != 0 && l.TermRefID != termID && !slices.Contains(refs, l.TermRefID) {
			refs = append(refs, l.TermRefID)
		}
	}
	if len(refs) == 0 {
		return nil, nil
	}
	terms, err := rd.Terms(ctx, refs)
	if err != nil {
		return nil, fmt.Errorf("load rhyme terms: %w", err)
	}
	prons, err := rd.TermPronunciations(ctx, refs)
	if err != nil {
		return nil, fmt.Errorf("load rhyme pronunciations: %w", err)
	}
	var out []rhyme
	for _, t := range terms {
		if p, ok := prons[t.ID]; ok && p.AudioFile != "" {
			out = append(out, rhyme{Term: t, Audio: p.AudioFile})
		}
	}
	return out, nil
}

func checkHighlight(ctx context.Context, rd corpus.Reader, r *Resolved) error {
	sel, target := highlightSelector(r)
	ranges, err := rd.Highlight(ctx, sel)
	if err != nil && !isCorpusNotFound(err) {
		return fmt.Errorf("load highlight: %w", err)
	}
	if len(ranges) == 0 {
		return invalid("highlight", "term_example %d has no highlight link to the %s", r.TermExampleID, target)
	}
	return nil
}

func highlightSelector(r *Resolved) (corpus.LinkSelector, Ref) {
	if r.TermLexicalID != 0 {
		return corpus.LinkSelector{TermExampleID: r.TermExampleID, TermLexicalID: r.TermLexicalID}, RefLexical
	}
	return corpus.LinkSelector{TermExampleID: r.TermExampleID, TermID: r.TermID}, RefTerm
}

func checkPools(_ context.Context, _ corpus.Reader, r *Resolved) error {
	for _, p := range Catalog[r.Type].Pools {
		p = poolFor(r.Type, r.Content.SubType, p)
		if n := len(r.Content.Distractors[p.Name]); n < p.Min {
			return invalid("distractors", "at least %d %s distractors are required, found %d", p.Min, p.Name, n)
		}
	}
	return nil
}

func checkConnections(_ context.Context, _ corpus.Reader, r *Resolved) error {
	want := Catalog[r.Type].MinConnections
	if n := len(r.Content.Connections); n < want {
		return invalid("connections", "at least %d connections are required, found %d", want, n)
	}
	return nil
}

// sanitizePools keeps, for every pool the type uses, only the ids that exist
// in the corpus, in submitted order and without duplicates. Ids of the correct
// answer are dropped, and an image pool keeps one image per other term, so the
// stored pool is exactly what Build can show.
func sanitizePools(ctx context.Context, rd corpus.Reader, r *Resolved, c Content) (Content, error) {
	t := r.Type
	used := map[string]bool{}
	for _, p := range Catalog[t].Pools {
		used[poolFor(t, c.SubType, p).Name] = true
	}
	for name := range c.Distractors {
		if !used[name] {
			return Content{}, invalid("distractors", "distractor pool %q is not used by %s", name, t)
		}
	}
	for name := range used {
		ids, ok := c.Distractors[name]
		if !ok {
			continue
		}
		if name == PoolImage {
			kept, err := imagesOfOtherTerms(ctx, rd, ids, r.TermID)
			if err != nil {
				return Content{}, err
			}
			c.Distractors[name] = kept
			continue
		}
		existing, err := existingIDs(ctx, rd, name, ids)
		if err != nil {
			return Content{}, err
		}
		c.Distractors[name] = keepExisting(ids, existing, answerIDs(r, name)...)
	}
	return c, nil
}

// answerIDs are the ids of pool that would duplicate the correct answer.
func answerIDs(r *Resolved, pool string) []int64 {
	switch pool {
	case PoolTerm:
		return []int64{r.TermID, r.primaryID()}
	case PoolLexical:
		return []int64{r.TermLexicalID}
	case PoolDefinition:
		return []int64{r.TermDefinitionID}
	}
	return nil
}

// imagesOfOtherTerms keeps the first existing image of every term but owner.
// Image choices are keyed by term, so two images of one term are one choice.
func imagesOfOtherTerms(ctx context.Context, rd corpus.Reader, ids []int64, owner int64) ([]int64, error) {
	images, err := rd.Images(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve %s pool: %w", PoolImage, err)
	}
	termOf := make(map[int64]int64, len(images))
	for _, img := range images {
		termOf[img.ID] = img.TermID
	}
	seen := map[int64]bool{owner: true}
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		term, ok := termOf[id]
		if !ok || seen[term] {
			continue
		}
		seen[term] = true
		out = append(out, id)
	}
	return out, nil
}

// sanitizeConnections keeps the existing related terms, never the shown term
// itself, and removes them from the term distractors.
func sanitizeConnections(ctx context.Context, rd corpus.Reader, r *Resolved, c Content) (Content, error) {
	if len(c.Connections) == 0 {
		return c, nil
	}
	existing, err := existingIDs(ctx, rd, PoolTerm, c.Connections)
	if err != nil {
		return Content{}, err
	}
	c.Connections = keepExisting(c.Connections, existing, r.TermID)
	if pool, ok := c.Distractors[PoolTerm]; ok {
		c.Distractors[PoolTerm] = slices.DeleteFunc(slices.Clone(pool), func(id int64) bool {
			return slices.Contains(c.Connections, id)
		})
	}
	return c, nil
}

func existingIDs(ctx context.Context, rd corpus.Reader, pool string, ids []int64) (map[int64]bool, error) {
	found := make(map[int64]bool, len(ids))
	switch pool {
	case PoolTerm:
		terms, err := rd.Terms(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("resolve %s pool: %w", pool, err)
		}
		for _, t := range terms {
			found[t.ID] = true
		}
	case PoolLexical:
		lexicals, err := rd.Lexicals(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("resolve %s pool: %w", pool, err)
		}
		for _, l := range lexicals {
			found[l.ID] = true
		}
	case PoolDefinition:
		defs, err := rd.Definitions(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("resolve %s pool: %w", pool, err)
		}
		for _, d := range defs {
			found[d.ID] = true
		}
	default:
		return nil, fmt.Errorf("unknown pool %q", pool)
	}
	return found, nil
}

// keepExisting filters ids down to the existing ones, in order, without
// duplicates or any of skip.
func keepExisting(ids []int64, existing map[int64]bool, skip ...int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if existing[id] && !slices.Contains(out, id) && !slices.Contains(skip, id) {
			out = append(out, id)
		}
	}
	return out
}
