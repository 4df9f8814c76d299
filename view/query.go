package view

import (
	"bytes"
	"fmt"
	"sort"
)

// QueryOptions selects rows from a view.
//
// With Key set, only rows whose key equals it are returned; a null Key
// matches rows emitted with a null key. Otherwise rows are selected from the
// half-open range [StartKey, EndKey); a nil bound is open.
type QueryOptions struct {
	StartKey *Key
	EndKey   *Key
	Key      *Key

	// Descending returns the selected rows in reverse key order.
	Descending bool

	// IncludeDocs keeps the stored document body on every row.
	IncludeDocs bool

	// Limit caps the number of rows returned. Zero means no limit.
	Limit int
}

// Validate rejects contradictory options.
func (o QueryOptions) Validate() error {
	if o.Key != nil && (o.StartKey != nil || o.EndKey != nil) {
		return fmt.Errorf("%w: key cannot be combined with a range", ErrInvalidQuery)
	}
	if o.Limit < 0 {
		return fmt.Errorf("%w: negative limit %d", ErrInvalidQuery, o.Limit)
	}
	return nil
}

// Contains reports whether key is selected by the options.
func (o QueryOptions) Contains(key Key) bool {
	if o.Key != nil {
		return key.Compare(*o.Key) == 0
	}
	if o.StartKey != nil && key.Compare(*o.StartKey) < 0 {
		return false
	}
	if o.EndKey != nil && key.Compare(*o.EndKey) >= 0 {
		return false
	}
	return true
}

// Less orders rows by key, then by document id, then by value.
func Less(a, b Row) bool {
	if c := a.Key.Compare(b.Key); c != 0 {
		return c < 0
	}
	if a.ID != b.ID {
		return a.ID < b.ID
	}
	return bytes.Compare(a.Value, b.Value) < 0
}

// Sort orders rows in collation order.
func Sort(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		return Less(rows[i], rows[j])
	})
}

// Select applies query options to rows already in collation order. The
// input is not modified.
func Select(rows []Row, opts QueryOptions) ([]Row, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	var lo, hi int
	switch {
	case opts.Key != nil:
		lo = sort.Search(len(rows), func(i int) bool { return rows[i].Key.Compare(*opts.Key) >= 0 })
		hi = sort.Search(len(rows), func(i int) bool { return rows[i].Key.Compare(*opts.Key) > 0 })
	default:
		lo = 0
		if opts.StartKey != nil {
			lo = sort.Search(len(rows), func(i int) bool { return rows[i].Key.Compare(*opts.StartKey) >= 0 })
		}
		hi = len(rows)
		if opts.EndKey != nil {
			hi = sort.Search(len(rows), func(i int) bool { return rows[i].Key.Compare(*opts.EndKey) >= 0 })
		}
	}
	if hi < lo {
		hi = lo
	}

	selected := make([]Row, 0, hi-lo)
	for _, row := range rows[lo:hi] {
		if !opts.IncludeDocs {
			row.Doc = nil
		}
		selected = append(selected, row)
	}
	if opts.Descending {
		for i, j := 0, len(selected)-1; i < j; i, j = i+1, j-1 {
			selected[i], selected[j] = selected[j], selected[i]
		}
	}
	if opts.Limit > 0 && len(selected) > opts.Limit {
		selected = selected[:opts.Limit]
	}
	return selected, nil
}
