package series

import (
	"context"

	"github.com/agrosense/irrigation-core/internal/model"
)

// Window is an inclusive [Start, End] filter in epoch seconds.
type Window struct {
	Start float64
	End   float64
}

func (w Window) Contains(ts float64) bool { return ts >= w.Start && ts <= w.End }

// HistoricalSource is the durable batch store of past readings. Query
// returns up to limit raw records: without a window the newest limit,
// descending; with a window the window's oldest limit, ascending. The
// window filter runs on the raw (unnormalized) timestamp, which may diverge
// from the resolved value, so callers refilter.
type HistoricalSource interface {
	Query(ctx context.Context, window *Window, limit int) ([]model.RawRecord, error)
}

// LiveSource yields the most recent device reading as one raw record.
type LiveSource interface {
	Snapshot(ctx context.Context) (model.RawRecord, error)
}
