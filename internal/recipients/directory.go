// Package recipients answers "who should receive a broadcast right now".
package recipients

import (
	"context"

	logx "fitbuddy/pkg/logx"
)

// Source is the storage capability the directory needs.
type Source interface {
	ListRecipientIDs(ctx context.Context) ([]int64, error)
}

type Directory struct {
	src Source
	log logx.Logger
}

func New(src Source, log logx.Logger) *Directory {
	return &Directory{src: src, log: log}
}

// ListActive returns the current recipients, read fresh on every call.
// A store failure is logged and reported as an empty list.
func (d *Directory) ListActive(ctx context.Context) []int64 {
	ids, err := d.src.ListRecipientIDs(ctx)
	if err != nil {
		d.log.Error("list recipients failed", logx.Err(err))
		return []int64{}
	}
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id != 0 {
			out = append(out, id)
		}
	}
	return out
}
