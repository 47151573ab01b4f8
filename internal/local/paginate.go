package local

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/panelguard-project/panelguard/internal/protocol"
)

// PageSize is the number of records the panel returns per paginated
// request.
const PageSize = 10

// PageRecord is one element of a paginated result together with its
// 1-based protocol index, which stays stable across pages.
type PageRecord struct {
	Index  int
	Fields json.RawMessage
}

// FetchPaginated retrieves records start..end (1-based, inclusive) of a
// paginated command. end 0 means all available records; the total from
// the first page caps the range either way. An empty page terminates
// the loop even when the announced total was not reached.
func (t *Transport) FetchPaginated(ctx context.Context, code, start, end int) ([]PageRecord, error) {
	if start < 1 {
		start = 1
	}
	var records []PageRecord
	for {
		pageEnd := start + PageSize - 1
		if end > 0 && pageEnd > end {
			pageEnd = end
		}
		fields, err := t.SendCommand(ctx, code, []int{start, pageEnd})
		if err != nil {
			return nil, err
		}
		if fields == nil {
			return nil, fmt.Errorf("%w: empty reply to paginated command %d", ErrDevice, code)
		}
		info, rest, err := protocol.DecodePageInfo(fields)
		if err != nil {
			return nil, err
		}
		if end == 0 || end > info.Total {
			end = info.Total
		}
		for i, raw := range rest {
			records = append(records, PageRecord{Index: info.Start + i, Fields: raw})
		}
		if info.Count == 0 || info.Start+info.Count-1 >= end {
			return records, nil
		}
		start = info.Start + info.Count
	}
}
