package rules

// MoveElement returns a copy of list with the element at from moved to index to.
// Both indices are clamped into range, so out-of-range moves go to the nearest end.
func MoveElement[T any](list []T, from, to int) []T {
	out := make([]T, len(list))
	copy(out, list)
	if len(out) < 2 {
		return out
	}

	from = clamp(from, 0, len(out)-1)
	to = clamp(to, 0, len(out)-1)
	if from == to {
		return out
	}

	item := out[from]
	if from < to {
		copy(out[from:to], out[from+1:to+1])
	} else {
		copy(out[to+1:from+1], out[to:from])
	}
	out[to] = item
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
