package paint

// Number is the set of types MinMaxRange can track.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 | ~float32 | ~float64
}

// MinMaxRange tracks the smallest and largest value seen.
// The zero value is empty and ready to use.
type MinMaxRange[T Number] struct {
	Min   T   `json:"min"`
	Max   T   `json:"max"`
	Count int `json:"count"`
}

// Add widens the range to include v.
func (m *MinMaxRange[T]) Add(v T) {
	if m.Count == 0 {
		m.Min, m.Max = v, v
	} else {
		if v < m.Min {
			m.Min = v
		}
		if v > m.Max {
			m.Max = v
		}
	}
	m.Count++
}

// Empty reports whether no values have been added.
func (m MinMaxRange[T]) Empty() bool {
	return m.Count == 0
}

// Range returns Max - Min, or zero for an empty range.
func (m MinMaxRange[T]) Range() T {
	if m.Count == 0 {
		return 0
	}
	return m.Max - m.Min
}

// Calibration holds the sort-key ranges that map scores to buckets.
type Calibration struct {
	Sort1 MinMaxRange[int32] `json:"sort1"`
	Sort2 MinMaxRange[int32] `json:"sort2"`
}

// CalibrationOf collects the sort-key ranges of strokes.
func CalibrationOf(strokes []Stroke) Calibration {
	var c Calibration
	for _, s := range strokes {
		c.Sort1.Add(s.Sort1)
		c.Sort2.Add(s.Sort2)
	}
	return c
}
