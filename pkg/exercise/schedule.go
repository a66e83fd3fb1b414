package exercise

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"iter"
	"slices"
	"strconv"
)

// DefaultPageSize is the page size Listing.All uses when none is set.
const DefaultPageSize = 50

// ListQuery filters and orders the exercises offered to a learner.
type ListQuery struct {
	// Languages is required.
	Languages []string
	// Types empty, or containing Random, matches every type.
	Types []Type
	// Levels empty matches every level.
	Levels []string
	// CardsetID, when set, moves exercises on terms of that cardset first.
	CardsetID int64
	Seed      string
	PageSize  int
}

// AnyType reports whether the query skips the type filter.
func (q ListQuery) AnyType() bool {
	return len(q.Types) == 0 || slices.Contains(q.Types, Random)
}

// Entry is one listed exercise.
type Entry struct {
	ID   int64 `json:"id"`
	Type Type  `json:"type"`
}

// SeedKey is the ordering key of exercise id under seed: the hex MD5 digest
// of the id followed by the seed. Stores must order by the same key.
func SeedKey(id int64, seed string) string {
	sum := md5.Sum([]byte(strconv.FormatInt(id, 10) + seed))
	return hex.EncodeToString(sum[:])
}

// Listing is a seeded, restartable ordering of exercises.
type Listing struct {
	store Store
	query ListQuery
}

// List validates q and returns its listing. Nothing is read until a page is
// requested.
func (s *Service) List(q ListQuery) (*Listing, error) {
	if len(q.Languages) == 0 {
		return nil, invalid("languages", "at least one language is required")
	}
	if q.Seed == "" {
		return nil, invalid("seed", "seed is required")
	}
	for _, t := range q.Types {
		if _, ok := Catalog[t]; !ok && t != Random {
			return nil, invalid("type", "unknown exercise type %q", t)
		}
	}
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}
	q.Languages = slices.Clone(q.Languages)
	q.Types = slices.Clone(q.Types)
	q.Levels = slices.Clone(q.Levels)
	return &Listing{store: s.store, query: q}, nil
}

// Query returns the normalized query of the listing.
func (l *Listing) Query() ListQuery { return l.query }

// Page returns up to limit entries starting at offset.
func (l *Listing) Page(ctx context.Context, offset, limit int) ([]Entry, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		return nil, nil
	}
	return l.store.List(ctx, l.query, offset, limit)
}

// All yields every entry, one page at a time. Each range over the sequence
// starts from the beginning.
func (l *Listing) All(ctx context.Context) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		size := l.query.PageSize
		for offset := 0; ; offset += size {
			page, err := l.Page(ctx, offset, size)
			if err != nil {
				yield(Entry{}, err)
				return
			}
			for _, e := range page {
				if !yield(e, nil) {
					return
				}
			}
			if len(page) < size {
				return
			}
		}
	}
}
