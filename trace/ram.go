package trace

import (
	"github.com/pkg/errors"

	"github.com/CraigKelly/adaptmc/buffer"
)

// RAM keeps the newest draws of every node in memory. Once a node has
// capacity rows the oldest are evicted and indices refer to what is left.
type RAM struct {
	capacity int
	rows     map[string]*buffer.Rows
	closed   bool
}

// NewRAM returns an in-memory backend retaining capacity draws per node
func NewRAM(capacity int) (*RAM, error) {
	if capacity < 1 {
		return nil, errors.Errorf("RAM trace capacity must be positive, got %d", capacity)
	}
	return &RAM{
		capacity: capacity,
		rows:     make(map[string]*buffer.Rows),
	}, nil
}

// Append implements Backend
func (r *RAM) Append(name string, value []float64) error {
	if r.closed {
		return errors.New("Append on closed RAM trace")
	}

	buf, ok := r.rows[name]
	if !ok {
		buf = buffer.NewRows(r.capacity)
		r.rows[name] = buf
	}
	buf.Add(value)
	return nil
}

// Slice implements Backend
func (r *RAM) Slice(name string, start, stop int) ([][]float64, error) {
	buf, ok := r.rows[name]
	if !ok {
		return [][]float64{}, nil
	}

	lo, hi := bounds(buf.Count, start, stop)
	out := make([][]float64, 0, hi-lo)
	for it := buf.Iter(lo, hi); it.Next(); {
		out = append(out, it.Value())
	}
	return out, nil
}

// Len implements Backend
func (r *RAM) Len(name string) (int, error) {
	buf, ok := r.rows[name]
	if !ok {
		return 0, nil
	}
	return buf.Count, nil
}

// Seen is the total number of rows ever appended for name, evicted or not
func (r *RAM) Seen(name string) int64 {
	buf, ok := r.rows[name]
	if !ok {
		return 0
	}
	return buf.TotalSeen
}

// Close implements Backend. Rows stay readable after Close.
func (r *RAM) Close() error {
	r.closed = true
	return nil
}
