package util

func FindIf[T any](data []T, pred func(t T) bool) int {
	for i, ele := range data {
		if pred(ele) {
			return i
		}
	}
	return -1
}

// Erase removes a[i] by moving the last element into its place. The vacated
// tail is zeroed so the slice no longer references the removed element.
func Erase[T any](a []T, i int) []T {
	if i < 0 || i >= len(a) {
		return a
	}
	last := len(a) - 1
	a[i] = a[last]
	var zero T
	a[last] = zero
	return a[:last]
}
