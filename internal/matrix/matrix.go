// Package matrix hands the verification gate's cell requests out to its
// worker pool. Cells within a pass carry no ordering constraints; the
// ordering between passes lives in the gate.
package matrix

import (
	"context"

	"github.com/relcut/relcut/pkg/api"
)

// CellQueue is a fixed batch of cell requests drained concurrently by
// verification workers. Each request is handed out exactly once.
type CellQueue struct {
	ch chan api.CellRequest
}

// NewCellQueue returns a queue pre-loaded with reqs. A pass enqueues its
// whole matrix up front, so the queue only ever shrinks.
func NewCellQueue(reqs []api.CellRequest) *CellQueue {
	ch := make(chan api.CellRequest, len(reqs))
	for _, r := range reqs {
		ch <- r
	}
	close(ch)
	return &CellQueue{ch: ch}
}

// Next hands out the next request. ok is false once the queue is drained
// or ctx is cancelled; cancellation wins over queued requests so workers
// stop promptly when a pass aborts.
func (q *CellQueue) Next(ctx context.Context) (api.CellRequest, bool) {
	select {
	case <-ctx.Done():
		return api.CellRequest{}, false
	default:
	}
	select {
	case r, ok := <-q.ch:
		return r, ok
	case <-ctx.Done():
		return api.CellRequest{}, false
	}
}

// Remaining reports how many requests have not been handed out yet.
func (q *CellQueue) Remaining() int {
	return len(q.ch)
}
