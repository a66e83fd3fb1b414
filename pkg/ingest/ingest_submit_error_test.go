package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/lexercise/pkg/db"
)

var errSubmit = errors.New("submit failed")

// failingPool always returns an error on Submit to simulate producer error.
type failingPool struct{}

func (f *failingPool) Start(ctx context.Context) {}
func (f *failingPool) Submit(job Job) error      { return errSubmit }
func (f *failingPool) SubmitCtx(ctx context.Context, job Job) error {
	return errSubmit
}
func (f *failingPool) Close() {}

func TestIngestHandlesSubmitErrorClosesResultCh(t *testing.T) {
	conn := setupDB(t)
	sourceID := newSource(t, conn, "http://submit")

	ingester := NewIngester(conn, nil)
	ingester.PoolFactory = func(workers, queue int) WorkerPoolInterface { return &failingPool{} }

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := ingester.Ingest(ctx, sourceID, nounSentences(10))
	assert.ErrorIs(t, err, errSubmit)

	var examples int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM term_examples`).Scan(&examples))
	assert.Zero(t, examples)

	progress, err := db.GetSourceProgress(ctx, conn, sourceID)
	require.NoError(t, err)
	assert.Equal(t, -1, progress, "progress is untouched when nothing was stored")
}
