package query

// LongContextReorder takes results in descending relevance and places the
// most relevant ones at both ends, leaving the weakest in the middle.
func LongContextReorder[T any](items []T) []T {
	out := make([]T, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		idx := len(items) - 1 - i
		if idx%2 == 1 {
			out = append(out, items[i])
		} else {
			out = append([]T{items[i]}, out...)
		}
	}
	return out
}
