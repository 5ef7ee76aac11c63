package containers

// Insert places v at index i, shifting the tail one slot to the right.
// i may equal len(s) to append.
func Insert[T any](s []T, i int, v T) []T {
	if i < 0 || i > len(s) {
		panic("containers.Insert: index out of range")
	}
	var zero T
	s = append(s, zero)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

// Delete removes the element at index i, shifting the tail one slot to the left.
// Relative order of the remaining elements is kept.
func Delete[T any](s []T, i int) []T {
	if i < 0 || i >= len(s) {
		panic("containers.Delete: index out of range")
	}
	copy(s[i:], s[i+1:])
	var zero T
	s[len(s)-1] = zero
	return s[:len(s)-1]
}
