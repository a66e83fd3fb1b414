package db

import "time"

// Source is a provenance record for imported example sentences.
type Source struct {
	ID         int64
	SourceType string
	Title      string
	Author     string
	Website    string
	URL        string
	Meta       string
	AddedAt    time.Time
	// LastProcessed is the index of the last ingested sentence, -1 if none.
	LastProcessed int
}

// TermReading is a term with the phonetic reading of its own pronunciation,
// if any.
type TermReading struct {
	ID         int64
	Expression string
	Phonetic   string
}
