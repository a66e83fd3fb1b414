// Package ingest stores analyzed sentences in the corpus: each sentence
// becomes an example, its content words become terms linked to the example
// with highlight ranges, and token readings become term pronunciations.
package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/japaniel/lexercise/pkg/analyzer"
	"github.com/japaniel/lexercise/pkg/corpus"
	"github.com/japaniel/lexercise/pkg/db"
	"github.com/japaniel/lexercise/pkg/dictionary"
)

// WorkerPoolInterface abstracts the worker pool so tests can inject failing implementations.
type WorkerPoolInterface interface {
	Start(ctx context.Context)
	Submit(Job) error
	// SubmitCtx attempts to enqueue a job but returns promptly if ctx is canceled.
	SubmitCtx(ctx context.Context, job Job) error
	Close()
}

// Ingester handles the ingestion of sentences into the corpus.
type Ingester struct {
	DB           *sql.DB
	DictImporter *dictionary.Importer
	// Language tags the examples and terms written.
	Language  string
	BatchSize int
	// FlushInterval bounds how long a partial batch waits before it is written.
	FlushInterval time.Duration
	Logger        *slog.Logger
	// OnProgress is called periodically with the number of processed sentences and total sentences.
	OnProgress func(current, total int)

	Workers int

	// PoolFactory allows tests to inject custom worker pool implementations.
	PoolFactory func(workers, queue int) WorkerPoolInterface
}

// NewIngester creates a new Ingester for Japanese text. dict may be nil.
func NewIngester(conn *sql.DB, dict *dictionary.Importer) *Ingester {
	return &Ingester{
		DB:            conn,
		DictImporter:  dict,
		Language:      analyzer.Japanese,
		BatchSize:     50,
		FlushInterval: 100 * time.Millisecond,
		Logger:        slog.Default(),
		Workers:       4,
	}
}

// termData is a content word of a sentence with every place it occurs.
type termData struct {
	Expression  string
	Reading     string
	Definitions []string
	Highlight   []corpus.Range
}

// processedSentence holds the result of processing a sentence before DB ingestion
type processedSentence struct {
	Index    int
	Sentence string
	Terms    []termData
	Error    error
}

var (
	asciiRegex   = regexp.MustCompile(`^[a-zA-Z0-9\s[:punct:]]+$`)
	numericRegex = regexp.MustCompile(`^[0-9\s[:punct:]]+$`)
)

// Ingest processes sentences and saves them to the database using concurrent
// workers and batched writes. It resumes after the last sentence checkpointed
// for sourceID and returns the number of term occurrences linked.
func (ig *Ingester) Ingest(ctx context.Context, sourceID int64, sentences []analyzer.Sentence) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	log := ig.Logger
	if log == nil {
		log = slog.Default()
	}

	lastProcessed, err := db.GetSourceProgress(ctx, ig.DB, sourceID)
	if err != nil {
		log.Warn("failed to retrieve progress", "source", sourceID, "error", err)
		lastProcessed = -1
	}
	if lastProcessed >= 0 {
		log.Info("resuming ingestion", "source", sourceID, "skipped", lastProcessed+1)
	}

	totalSentences := len(sentences)
	startIdx := lastProcessed + 1
	if startIdx >= totalSentences {
		return 0, nil
	}

	workers := ig.Workers
	if workers <= 0 {
		workers = 1
	}
	var wp WorkerPoolInterface
	if ig.PoolFactory != nil {
		wp = ig.PoolFactory(workers, workers*2)
	} else {
		wp = NewWorkerPool(workers, workers*2)
	}
	resultCh := make(chan processedSentence, workers*2)
	closedResultCh := false
	doneCh := make(chan error, 1)

	var totalLinks int64

	bw := NewBatchWriter(ig.DB, ig.BatchSize, ig.FlushInterval)
	var batchErr error
	var batchErrMu sync.Mutex
	bw.OnError = func(e error) {
		batchErrMu.Lock()
		if batchErr == nil {
			batchErr = e
		}
		batchErrMu.Unlock()
	}

	defer func() {
		wp.Close()
		if !closedResultCh {
			close(resultCh)
		}
		_ = bw.Close()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wp.Start(ctx)

	write := func(item processedSentence) WriteFunc {
		return func(ctx context.Context, tx *sql.Tx) error {
			n, err := ig.store(ctx, tx, sourceID, item)
			if err != nil {
				return err
			}
			atomic.AddInt64(&totalLinks, int64(n))
			return nil
		}
	}

	// Consumer: restore sentence order and hand writes to the batch writer.
	go func() {
		defer close(doneCh)
		buffer := make(map[int]processedSentence)
		nextIdx := startIdx

		drain := func() error {
			for {
				item, ok := buffer[nextIdx]
				if !ok {
					return nil
				}
				delete(buffer, nextIdx)
				if err := bw.Submit(write(item)); err != nil {
					return err
				}
				if ig.OnProgress != nil && ig.BatchSize > 0 && (nextIdx+1)%ig.BatchSize == 0 {
					ig.OnProgress(nextIdx+1, totalSentences)
				}
				nextIdx++
			}
		}

		for {
			select {
			case <-ctx.Done():
				doneCh <- ctx.Err()
				return
			default:
			}

			res, ok := <-resultCh
			if !ok {
				if err := drain(); err != nil {
					cancel()
					doneCh <- err
					return
				}
				if nextIdx < totalSentences {
					// Producers stopped early; the context error is reported above.
					doneCh <- ctx.Err()
					return
				}
				if ig.OnProgress != nil {
					ig.OnProgress(totalSentences, totalSentences)
				}
				doneCh <- nil
				return
			}

			if res.Error != nil {
				cancel()
				doneCh <- res.Error
				return
			}
			buffer[res.Index] = res
			if err := drain(); err != nil {
				cancel()
				doneCh <- err
				return
			}
		}
	}()

	// Producer: submit analysis jobs.
Loop:
	for i := startIdx; i < totalSentences; i++ {
		select {
		case <-ctx.Done():
			break Loop
		default:
		}

		idx := i
		sent := sentences[i]
		job := func(ctx context.Context) error {
			res := ig.processSentence(idx, sent)
			select {
			case resultCh <- res:
			case <-ctx.Done():
			}
			return nil
		}

		if err := wp.SubmitCtx(ctx, job); err != nil {
			if errors.Is(err, ctx.Err()) || errors.Is(err, ErrPoolClosed) {
				break Loop
			}
			return 0, fmt.Errorf("submit sentence %d: %w", idx, err)
		}
	}

	// Workers are done once Close returns, so no job can send on resultCh after
	// it is closed.
	wp.Close()
	close(resultCh)
	closedResultCh = true

	consumerErr := <-doneCh

	if err := bw.Close(); err != nil && consumerErr == nil {
		consumerErr = err
	}
	batchErrMu.Lock()
	if batchErr != nil && consumerErr == nil {
		consumerErr = batchErr
	}
	batchErrMu.Unlock()

	links := int(atomic.LoadInt64(&totalLinks))
	if consumerErr == nil {
		log.Info("ingested sentences", "source", sourceID, "sentences", totalSentences-startIdx, "links", links)
	}
	return links, consumerErr
}

// store writes one processed sentence and checkpoints it. It returns the
// number of term occurrences linked.
func (ig *Ingester) store(ctx context.Context, tx *sql.Tx, sourceID int64, item processedSentence) (int, error) {
	exampleID, err := db.CreateOrGetExample(ctx, tx, ig.Language, item.Sentence, "", sourceID)
	if err != nil {
		return 0, fmt.Errorf("persist example %d: %w", item.Index, err)
	}
	links := 0
	for _, t := range item.Terms {
		termID, err := db.CreateOrGetTerm(ctx, tx, ig.Language, t.Expression, "")
		if err != nil {
			return 0, fmt.Errorf("persist term %s: %w", t.Expression, err)
		}
		if _, err := db.LinkTermExample(ctx, tx, corpus.ExampleLink{
			TermExampleID: exampleID,
			TermID:        termID,
			Highlight:     t.Highlight,
		}); err != nil {
			return 0, fmt.Errorf("link term %d: %w", termID, err)
		}
		if t.Reading != "" {
			if _, err := db.SetPronunciation(ctx, tx, corpus.Pronunciation{TermID: termID, Phonetic: t.Reading}); err != nil {
				return 0, fmt.Errorf("set reading of term %d: %w", termID, err)
			}
		}
		if len(t.Definitions) > 0 {
			if err := dictionary.AddDefinitions(ctx, tx, termID, t.Definitions); err != nil {
				return 0, fmt.Errorf("define term %d: %w", termID, err)
			}
		}
		links += len(t.Highlight)
	}
	if err := db.UpdateSourceProgress(ctx, tx, sourceID, item.Index); err != nil {
		return 0, fmt.Errorf("failed to save progress: %w", err)
	}
	return links, nil
}

// isContentWord drops symbols, particles, auxiliaries and numbers. Plain
// ASCII tokens in Japanese text are dropped too.
func (ig *Ingester) isContentWord(t analyzer.Token) bool {
	switch t.PrimaryPOS {
	case "記号", "補助記号", "助詞", "助動詞":
		return false
	}
	if len(t.PartsOfSpeech) > 1 && t.PartsOfSpeech[1] == "数" {
		return false
	}
	if ig.Language == analyzer.Japanese {
		return !asciiRegex.MatchString(t.Surface)
	}
	return !numericRegex.MatchString(t.Surface)
}

// processSentence performs the CPU-heavy token filtering and dictionary lookup.
func (ig *Ingester) processSentence(index int, sentence analyzer.Sentence) processedSentence {
	byLemma := make(map[string]*termData)
	exact := make(map[string]bool) // reading taken from an uninflected surface
	var ordered []string

	for _, t := range sentence.Tokens {
		if !ig.isContentWord(t) {
			continue
		}
		lemma := t.Surface
		if t.BaseForm != "" && t.BaseForm != "*" {
			lemma = t.BaseForm
		}

		td, ok := byLemma[lemma]
		if !ok {
			td = &termData{Expression: lemma}
			byLemma[lemma] = td
			ordered = append(ordered, lemma)
		}
		// An inflected surface reads differently from its lemma ("行っ" is
		// イッ), so a reading of the lemma itself replaces one taken earlier.
		if reading := dictionary.ToHiragana(t.Reading); reading != "" && !exact[lemma] {
			if td.Reading == "" || t.Surface == lemma {
				td.Reading = reading
			}
			exact[lemma] = t.Surface == lemma
		}
		td.Highlight = append(td.Highlight, t.Range())
	}

	terms := make([]termData, 0, len(ordered))
	for _, lemma := range ordered {
		td := byLemma[lemma]
		if ig.DictImporter != nil {
			matches := ig.DictImporter.Lookup(lemma, lemma, "")
			if len(matches) > 0 {
				td.Definitions = dictionary.Senses(matches)
				if r := dictionary.PrimaryReading(matches); r != "" {
					td.Reading = r
				}
			}
		}
		terms = append(terms, *td)
	}

	return processedSentence{
		Index:    index,
		Sentence: sentence.Text,
		Terms:    terms,
	}
}
