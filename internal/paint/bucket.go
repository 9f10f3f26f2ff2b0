package paint

// DefaultBuckets is the number of buckets per sort axis.
const DefaultBuckets = 6

// BucketGrid groups strokes by their sort keys. Walking it row-major gives
// the paint order: lowest scores first, highest last.
type BucketGrid struct {
	rows, cols int
	cells      [][]Stroke
	count      int
}

// BucketStrokes distributes strokes into an n×n grid using the calibrated ranges.
// Axes whose range is zero collapse to a single bucket; when both collapse
// every stroke lands in one bucket in generation order.
func BucketStrokes(strokes []Stroke, cal Calibration, n int) *BucketGrid {
	n = max(n, 1)
	min1, rng1 := int64(cal.Sort1.Min), int64(cal.Sort1.Max)-int64(cal.Sort1.Min)
	min2, rng2 := int64(cal.Sort2.Min), int64(cal.Sort2.Max)-int64(cal.Sort2.Min)
	if cal.Sort1.Empty() {
		rng1 = 0
	}
	if cal.Sort2.Empty() {
		rng2 = 0
	}

	g := &BucketGrid{}
	var index func(s Stroke) int
	switch {
	case rng1 == 0 && rng2 == 0:
		g.rows, g.cols = 1, 1
		index = func(Stroke) int { return 0 }
	case rng1 == 0:
		g.rows, g.cols = 1, n
		index = func(s Stroke) int { return bucketIndex(s.Sort2, min2, rng2, n) }
	case rng2 == 0:
		g.rows, g.cols = n, 1
		index = func(s Stroke) int { return bucketIndex(s.Sort1, min1, rng1, n) }
	default:
		g.rows, g.cols = n, n
		index = func(s Stroke) int {
			return bucketIndex(s.Sort1, min1, rng1, n)*n + bucketIndex(s.Sort2, min2, rng2, n)
		}
	}

	g.cells = make([][]Stroke, g.rows*g.cols)
	for _, s := range strokes {
		i := index(s)
		g.cells[i] = append(g.cells[i], s)
	}
	g.count = len(strokes)
	return g
}

func bucketIndex(score int32, lo, rng int64, n int) int {
	i := (int64(score) - lo) * int64(n-1) / rng
	return int(min(max(i, 0), int64(n-1)))
}

// Dims returns the grid shape.
func (g *BucketGrid) Dims() (rows, cols int) {
	return g.rows, g.cols
}

// Len returns the total number of strokes.
func (g *BucketGrid) Len() int {
	return g.count
}

// NonEmpty returns the number of allocated buckets.
func (g *BucketGrid) NonEmpty() int {
	n := 0
	for _, c := range g.cells {
		if c != nil {
			n++
		}
	}
	return n
}

// Bucket returns the strokes in cell (row, col), or nil if it was never filled.
func (g *BucketGrid) Bucket(row, col int) []Stroke {
	return g.cells[row*g.cols+col]
}

// Each calls fn for every non-empty bucket in paint order.
func (g *BucketGrid) Each(fn func(bucket []Stroke)) {
	for _, c := range g.cells {
		if c != nil {
			fn(c)
		}
	}
}

// Strokes returns all strokes flattened in paint order.
func (g *BucketGrid) Strokes() []Stroke {
	out := make([]Stroke, 0, g.count)
	g.Each(func(b []Stroke) { out = append(out, b...) })
	return out
}
