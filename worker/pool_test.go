package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/wgdzlh/segtile/grid"
)

func makeCells(t *testing.T, n int) []grid.Cell {
	cells, err := grid.Generate(grid.GeoTransform{0, 1, 0, 0, 0, -1}, n*4, 4, 4)
	require.NoError(t, err)
	require.Len(t, cells, n)
	return cells
}

func TestRunAllCellsOnce(t *testing.T) {
	cells := makeCells(t, 50)
	var mu sync.Mutex
	seen := map[int]int{}
	rep := NewPool(4).Run(context.Background(), cells, func(_ context.Context, c grid.Cell) (int, error) {
		mu.Lock()
		seen[c.Index]++
		mu.Unlock()
		return 0, nil
	})
	require.NoError(t, rep.Err())
	assert.Len(t, seen, 50)
	for i, n := range seen {
		assert.Equal(t, 1, n, "cell %d", i)
	}
	assert.Len(t, rep.Processed, 50)
	assert.Equal(t, 1, rep.Processed[0])
	assert.Equal(t, 50, rep.Processed[49])
}

func TestRunIsolatesFailures(t *testing.T) {
	cells := makeCells(t, 10)
	errIO := errors.New("write failed")
	rep := NewPool(3).Run(context.Background(), cells, func(_ context.Context, c grid.Cell) (int, error) {
		switch c.Index {
		case 3:
			return 0, errIO
		case 7:
			panic("bad geometry")
		case 9:
			return 2, nil
		}
		return 0, nil
	})
	assert.Equal(t, []int{3, 7}, rep.FailedIndices())
	assert.Len(t, rep.Processed, 8)
	assert.Equal(t, []int{9}, rep.DegradedIndices())
	assert.Equal(t, 2, rep.Degraded[9])
	assert.ErrorIs(t, rep.Failed[3], errIO)
	assert.ErrorContains(t, rep.Failed[7], "bad geometry")

	err := rep.Err()
	require.Error(t, err)
	errs := multierr.Errors(err)
	require.Len(t, errs, 2)
	var ce *CellError
	require.ErrorAs(t, errs[0], &ce)
	assert.Equal(t, 3, ce.Index)
	assert.ErrorIs(t, err, errIO)
	assert.Contains(t, rep.Summary(), "failed=2")
}

func TestRunCancelled(t *testing.T) {
	cells := makeCells(t, 20)
	ctx, cancel := context.WithCancel(context.Background())
	var started atomic.Int32
	rep := NewPool(1).Run(ctx, cells, func(_ context.Context, c grid.Cell) (int, error) {
		started.Add(1)
		if c.Index == 5 {
			cancel()
		}
		return 0, nil
	})
	assert.Equal(t, int32(5), started.Load())
	assert.Len(t, rep.Processed, 5)
	assert.Len(t, rep.Failed, 15)
	assert.ErrorIs(t, rep.Failed[6], context.Canceled)
}

func TestRunEmpty(t *testing.T) {
	rep := NewPool(0).Run(context.Background(), nil, func(context.Context, grid.Cell) (int, error) {
		t.Fatal("must not be called")
		return 0, nil
	})
	assert.Equal(t, 0, rep.Total)
	assert.NoError(t, rep.Err())
}
