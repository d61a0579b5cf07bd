package affinity

// Table is a sparse, symmetric joint probability distribution over point
// pairs in compressed-row form. Row i spans Cols[RowPtr[i]:RowPtr[i+1]] and
// the matching Vals range; columns within a row are sorted ascending. The
// table is built once and, apart from uniform scaling, immutable afterwards.
type Table struct {
	N      int
	RowPtr []int64
	Cols   []int32
	Vals   []float64
}

// Row returns the column indices and values of row i.
func (t *Table) Row(i int) (cols []int32, vals []float64) {
	lo, hi := t.RowPtr[i], t.RowPtr[i+1]
	return t.Cols[lo:hi], t.Vals[lo:hi]
}

// NNZ returns the number of stored entries.
func (t *Table) NNZ() int { return len(t.Vals) }

// Sum returns the total probability mass of the table.
func (t *Table) Sum() float64 {
	var sum float64
	for _, v := range t.Vals {
		sum += v
	}
	return sum
}

// Scale multiplies every entry by f. The optimizer uses this to apply and
// remove the early-exaggeration factor.
func (t *Table) Scale(f float64) {
	for i := range t.Vals {
		t.Vals[i] *= f
	}
}

// At returns the stored value at (i, j), or 0 when the pair is absent.
// Columns are sorted, so a binary search would do; rows are short enough
// that a scan is fine for the test and debugging paths that use this.
func (t *Table) At(i, j int) float64 {
	cols, vals := t.Row(i)
	for pos, c := range cols {
		if int(c) == j {
			return vals[pos]
		}
	}
	return 0
}
