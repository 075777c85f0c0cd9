package data

import "fmt"

// ColumnRange is the half-open feature interval [Start, End) held by one party.
type ColumnRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (r ColumnRange) Len() int {
	return r.End - r.Start
}

func (r ColumnRange) Empty() bool {
	return r.End <= r.Start
}

func (r ColumnRange) String() string {
	return fmt.Sprintf("[%d, %d)", r.Start, r.End)
}

// ColumnRanges splits c columns over n parties: every party gets c div n columns
// and the first c mod n parties get one more. Ranges are contiguous from 0 in party order.
func ColumnRanges(n, c int) []ColumnRange {
	if n <= 0 || c < 0 {
		return nil
	}

	base, extra := c/n, c%n
	ranges := make([]ColumnRange, n)
	start := 0
	for i := range ranges {
		width := base
		if i < extra {
			width++
		}
		ranges[i] = ColumnRange{Start: start, End: start + width}
		start += width
	}
	return ranges
}
