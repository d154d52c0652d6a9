// Package batch slices record sequences into fixed-size, ordered groups.
package batch

import "iter"

// Slice groups seq into slices of size elements. The final group may be
// shorter. Nothing is emitted for an empty sequence. Only the group being
// filled is held in memory, so Slice streams inputs of any length.
//
// Slice panics if size is less than one.
func Slice[T any](seq iter.Seq[T], size int) iter.Seq[[]T] {
	if size < 1 {
		panic("batch: size must be positive")
	}

	return func(yield func([]T) bool) {
		group := make([]T, 0, size)

		for item := range seq {
			group = append(group, item)
			if len(group) < size {
				continue
			}

			if !yield(group) {
				return
			}

			group = make([]T, 0, size)
		}

		if len(group) > 0 {
			yield(group)
		}
	}
}

// Skip drops the first n elements of seq. A shorter sequence yields nothing.
func Skip[T any](seq iter.Seq[T], n int) iter.Seq[T] {
	return func(yield func(T) bool) {
		skipped := 0

		for item := range seq {
			if skipped < n {
				skipped++

				continue
			}

			if !yield(item) {
				return
			}
		}
	}
}

// Numbered tags each group with a 1-based sequence number that continues
// after the given offset: the first group is after+1.
func Numbered[T any](groups iter.Seq[[]T], after int) iter.Seq2[int, []T] {
	return func(yield func(int, []T) bool) {
		seq := after

		for group := range groups {
			seq++

			if !yield(seq, group) {
				return
			}
		}
	}
}
