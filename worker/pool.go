package worker

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/wgdzlh/segtile/grid"
	"github.com/wgdzlh/segtile/log"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// 单元处理函数，degraded为该单元因数据质量问题跳过的多边形个数
type CellFunc func(ctx context.Context, cell grid.Cell) (degraded int, err error)

// 固定大小的工作池，每个单元只执行一次，单元间互不影响
type Pool struct {
	Workers int
	logTag  string
}

func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{Workers: workers, logTag: "Pool:"}
}

type CellError struct {
	Index int
	Err   error
}

func (e *CellError) Error() string {
	return fmt.Sprintf("cell %d: %v", e.Index, e.Err)
}

func (e *CellError) Unwrap() error {
	return e.Err
}

type result struct {
	index    int
	degraded int
	err      error
}

// Run processes every cell on the pool and returns once all of them have been
// attempted. Failures are recorded against the cell index; they never stop
// other cells. Cells not yet started when ctx is done fail with ctx's error.
func (p *Pool) Run(ctx context.Context, cells []grid.Cell, fn CellFunc) *Report {
	workers := p.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = max(1, min(workers, len(cells)))
	start := time.Now()
	log.Info(p.logTag+"start", zap.Int("cells", len(cells)), zap.Int("workers", workers))

	readyChan := make(chan grid.Cell)
	results := make(chan result, workers)
	var wg sync.WaitGroup
	for id := 0; id < workers; id++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for c := range readyChan {
				results <- p.runCell(ctx, workerID, c, fn)
			}
		}(id)
	}
	go func() {
		for _, c := range cells {
			readyChan <- c
		}
		close(readyChan)
		wg.Wait()
		close(results)
	}()

	rep := newReport(len(cells))
	for r := range results {
		rep.add(r)
	}
	rep.Elapsed = time.Since(start)
	rep.finish()
	log.Info(p.logTag+"done", zap.Int("processed", len(rep.Processed)), zap.Int("degraded", len(rep.Degraded)),
		zap.Int("failed", len(rep.Failed)), zap.Duration("elapsed", rep.Elapsed))
	return rep
}

func (p *Pool) runCell(ctx context.Context, workerID int, c grid.Cell, fn CellFunc) (r result) {
	r.index = c.Index
	if err := ctx.Err(); err != nil {
		r.err = err
		return
	}
	defer func() {
		if v := recover(); v != nil {
			log.Error(p.logTag+"cell panicked", zap.Int("cell", c.Index), zap.Any("panic", v), zap.ByteString("stack", debug.Stack()))
			r.err = fmt.Errorf("panic: %v", v)
		}
	}()
	log.Debug(p.logTag+"cell picked", zap.Int("worker", workerID), zap.Int("cell", c.Index))
	r.degraded, r.err = fn(ctx, c)
	if r.err != nil {
		log.Error(p.logTag+"cell failed", zap.Int("cell", c.Index), zap.Stringer("window", c.Window), zap.Error(r.err))
	}
	return
}

// 运行结果汇总
type Report struct {
	Total     int
	Processed []int         // 成功的单元编号（升序）
	Degraded  map[int]int   // 成功但跳过了未解析标注的单元 -> 跳过个数
	Failed    map[int]error // 失败单元 -> 原因
	Elapsed   time.Duration
}

func newReport(total int) *Report {
	return &Report{
		Total:    total,
		Degraded: map[int]int{},
		Failed:   map[int]error{},
	}
}

func (r *Report) add(res result) {
	if res.err != nil {
		r.Failed[res.index] = res.err
		return
	}
	r.Processed = append(r.Processed, res.index)
	if res.degraded > 0 {
		r.Degraded[res.index] = res.degraded
	}
}

func (r *Report) finish() {
	sort.Ints(r.Processed)
}

func (r *Report) FailedIndices() []int {
	ids := make([]int, 0, len(r.Failed))
	for i := range r.Failed {
		ids = append(ids, i)
	}
	sort.Ints(ids)
	return ids
}

func (r *Report) DegradedIndices() []int {
	ids := make([]int, 0, len(r.Degraded))
	for i := range r.Degraded {
		ids = append(ids, i)
	}
	sort.Ints(ids)
	return ids
}

// 所有失败原因合并为一个错误，按单元编号排序
func (r *Report) Err() (err error) {
	for _, i := range r.FailedIndices() {
		err = multierr.Append(err, &CellError{Index: i, Err: r.Failed[i]})
	}
	return
}

func (r *Report) Summary() string {
	return fmt.Sprintf("cells=%d processed=%d degraded=%d failed=%d elapsed=%s",
		r.Total, len(r.Processed), len(r.Degraded), len(r.Failed), r.Elapsed.Round(time.Millisecond))
}
