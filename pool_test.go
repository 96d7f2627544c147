package repoql

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countRows(n int) []MapRow {
	rows := make([]MapRow, n)
	for i := range rows {
		rows[i] = MapRow{"s": &RowEntry{
			Path:       fmt.Sprintf("/n%d", i),
			Properties: map[string]Value{"count": Long(int64(i))},
		}}
	}
	return rows
}

func TestEvalPool_FilterKeepsInputOrder(t *testing.T) {
	p := newEvalPool(4)
	defer p.stop()

	rows := countRows(10 * minChunkRows)
	c := mustConstraint(t, "count >= 100", "s")
	got, err := p.filter(context.Background(), c, rows, nil)
	require.NoError(t, err)
	require.Len(t, got, len(rows)-100)
	for i, row := range got {
		path, _ := row.Path("s")
		assert.Equal(t, fmt.Sprintf("/n%d", i+100), path)
	}
}

func TestEvalPool_FilterAfterStop(t *testing.T) {
	p := newEvalPool(2)
	p.stop()
	p.stop()

	c := mustConstraint(t, "count >= 0", "s")
	for _, n := range []int{1, 4 * minChunkRows} {
		_, err := p.filter(context.Background(), c, countRows(n), nil)
		assert.ErrorIs(t, err, ErrClosed, "%d rows", n)
	}
}

func TestEvalPool_StopDuringFilter(t *testing.T) {
	p := newEvalPool(4)
	rows := countRows(8 * minChunkRows)
	c := mustConstraint(t, "count >= 0", "s")

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				got, err := p.filter(context.Background(), c, rows, nil)
				switch {
				case errors.Is(err, ErrClosed):
					return
				case err != nil:
					errs <- err
					return
				case len(got) != len(rows):
					errs <- fmt.Errorf("got %d rows, want %d", len(got), len(rows))
					return
				}
			}
		}()
	}
	p.stop()
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
