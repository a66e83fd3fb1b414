package ingest

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/lexercise/pkg/db"
)

func setupScratchDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = conn.Exec("CREATE TABLE scratch (id INTEGER PRIMARY KEY, val TEXT)")
	require.NoError(t, err)
	return conn
}

func insertVal(val string) WriteFunc {
	return func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO scratch (val) VALUES (?)", val)
		return err
	}
}

func countRows(t *testing.T, conn *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM scratch").Scan(&n))
	return n
}

func TestBatchWriterTransactions(t *testing.T) {
	conn := setupScratchDB(t)

	bw := NewBatchWriter(conn, 2, 0)
	require.NoError(t, bw.Submit(insertVal("A")))
	require.NoError(t, bw.Submit(insertVal("B")))
	require.NoError(t, bw.Submit(insertVal("C")))

	doneCh := make(chan error, 1)
	go func() { doneCh <- bw.Close() }()
	select {
	case err := <-doneCh:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for batch commit/close")
	}

	assert.Equal(t, 3, countRows(t, conn))
	assert.ErrorIs(t, bw.Submit(insertVal("D")), ErrBatchWriterClosed)
	assert.ErrorIs(t, bw.Close(), ErrBatchWriterClosed)
}

func TestBatchWriterRollback(t *testing.T) {
	conn := setupScratchDB(t)

	bw := NewBatchWriter(conn, 2, 0)
	errCh := make(chan error, 1)
	bw.OnError = func(e error) { errCh <- e }

	intentional := errors.New("intentional error")
	require.NoError(t, bw.Submit(insertVal("C")))
	require.NoError(t, bw.Submit(func(ctx context.Context, tx *sql.Tx) error { return intentional }))

	assert.ErrorIs(t, bw.Close(), intentional)
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, intentional)
	default:
		t.Fatal("expected OnError to be called")
	}
	assert.Zero(t, countRows(t, conn), "the whole batch rolls back")
}

func TestBatchWriterFlushesBySize(t *testing.T) {
	bw := NewBatchWriter(nil, 5, 0)
	var mu sync.Mutex
	called := 0
	for i := 0; i < 12; i++ {
		require.NoError(t, bw.Submit(func(ctx context.Context, tx *sql.Tx) error {
			mu.Lock()
			called++
			mu.Unlock()
			return nil
		}))
	}
	require.NoError(t, bw.Close())
	assert.Equal(t, 12, called)
}

func TestBatchWriterFlushesOnInterval(t *testing.T) {
	bw := NewBatchWriter(nil, 10, 20*time.Millisecond)
	flushed := make(chan struct{})
	require.NoError(t, bw.Submit(func(ctx context.Context, tx *sql.Tx) error {
		close(flushed)
		return nil
	}))

	select {
	case <-flushed:
	case <-time.After(time.Second):
		t.Fatal("partial batch was not flushed by the ticker")
	}
	require.NoError(t, bw.Close())
}

func TestBatchWriterDropsBatchOnCancel(t *testing.T) {
	bw := NewBatchWriter(nil, 1, 0)
	errCh := make(chan error, 4)
	bw.OnError = func(e error) { errCh <- e }

	blocker := make(chan struct{})
	noop := func(ctx context.Context, tx *sql.Tx) error { return nil }

	// The committer blocks on the first batch; the next two fill commitCh.
	require.NoError(t, bw.Submit(func(ctx context.Context, tx *sql.Tx) error {
		<-blocker
		return nil
	}))
	require.NoError(t, bw.Submit(noop))
	require.NoError(t, bw.Submit(noop))

	bw.cancel()
	require.NoError(t, bw.Submit(noop))
	close(blocker)

	select {
	case e := <-errCh:
		assert.ErrorContains(t, e, "dropping batch")
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected OnError to be called when batch dropped")
	}
	assert.ErrorContains(t, bw.Close(), "dropping batch")
}
