package buffer

// Rows is a circular buffer of float64 rows (flattened node values). Once
// full, every Add overwrites the oldest row. Rows are copied in and out.
type Rows struct {
	buffer    [][]float64 // actual storage
	pos       int         // Current position in buffer
	BufSize   int         // BufSize is the fixed number of rows maintained in memory
	Count     int         // Count is the number of rows in memory. Will always be <= BufSize
	TotalSeen int64       // TotalSeen is the total number of times Add has been called
}

// NewRows creates a new circular buffer holding at most totalSize rows. A
// size below 1 is adjusted to 1.
func NewRows(totalSize int) *Rows {
	if totalSize < 1 {
		totalSize = 1
	}

	return &Rows{
		buffer:  make([][]float64, totalSize),
		pos:     0,
		BufSize: totalSize,
		Count:   0,
	}
}

// Internal: return the next array position
func (c *Rows) nextPos() int {
	return (c.pos + 1) % c.BufSize
}

// Internal: storage index of the i-th oldest retained row
func (c *Rows) index(i int) int {
	oldest := c.pos
	if c.Count < c.BufSize {
		oldest = 0
	}
	return (oldest + i) % c.BufSize
}

// Add appends a copy of row to the buffer, overwriting the oldest entry
func (c *Rows) Add(row []float64) {
	c.TotalSeen++

	// Reuse the evicted slice when the width matches
	dst := c.buffer[c.pos]
	if len(dst) != len(row) {
		dst = make([]float64, len(row))
	}
	copy(dst, row)
	c.buffer[c.pos] = dst

	c.pos = c.nextPos()

	c.Count++
	if c.Count > c.BufSize {
		c.Count = c.BufSize // max out
	}
}

// At returns a copy of the i-th oldest retained row (0 <= i < Count)
func (c *Rows) At(i int) []float64 {
	if i < 0 || i >= c.Count {
		panic("buffer.Rows index out of range")
	}
	src := c.buffer[c.index(i)]
	row := make([]float64, len(src))
	copy(row, src)
	return row
}

// Iter returns an iterator over retained rows [start, stop) in the order
// they were added. Bounds are clamped to [0, Count].
func (c *Rows) Iter(start, stop int) *RowsIterator {
	if start < 0 {
		start = 0
	}
	if stop > c.Count {
		stop = c.Count
	}
	remain := stop - start
	if remain < 0 {
		remain = 0
	}

	return &RowsIterator{
		buf:    c,
		curr:   start,
		remain: remain,
	}
}

// RowsIterator provides an iterator over a Rows buffer
type RowsIterator struct {
	buf    *Rows
	curr   int
	remain int
}

// Next returns True when there are more values to read via Value
func (i *RowsIterator) Next() bool {
	return i.remain > 0
}

// Value returns a copy of the next row. Should only be called if Next() is
// True
func (i *RowsIterator) Value() []float64 {
	v := i.buf.At(i.curr)
	i.curr++
	i.remain--
	return v
}
