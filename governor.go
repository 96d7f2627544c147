package repoql

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"
)

var (
	// ErrResultTooLarge is returned when a query stage produces more rows
	// than Options.MaxResultRows.
	ErrResultTooLarge = errors.New("repoql: result set exceeds MaxResultRows limit")

	// ErrQueryPanic is returned when evaluation panics. The repository
	// stays usable.
	ErrQueryPanic = errors.New("repoql: query panicked")
)

// Query stages checked against the row limit.
const (
	stageJoin   = "join"
	stageFilter = "filter"
)

// queryLimits bounds the work of a single query. Built once in Open.
type queryLimits struct {
	maxRows int           // 0 = unlimited
	timeout time.Duration // applied only when the caller set no deadline
}

func newQueryLimits(opts Options) queryLimits {
	return queryLimits{maxRows: opts.MaxResultRows, timeout: opts.DefaultQueryTimeout}
}

// withDeadline returns ctx bounded by the default timeout. cancel must be
// called.
func (l queryLimits) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || l.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, l.timeout)
}

// checkRows fails once stage has produced more than maxRows rows.
func (l queryLimits) checkRows(stage string, n int) error {
	if l.maxRows <= 0 || n <= l.maxRows {
		return nil
	}
	return fmt.Errorf("%w: %s produced %d rows, limit is %d", ErrResultTooLarge, stage, n, l.maxRows)
}

// guard runs fn and reports a panic as ErrQueryPanic with the stack of the
// panicking goroutine.
func guard[T any](fn func() (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := make([]byte, 4096)
			stack = stack[:runtime.Stack(stack, false)]
			var zero T
			result, err = zero, fmt.Errorf("%w: %v\n%s", ErrQueryPanic, r, stack)
		}
	}()
	return fn()
}
