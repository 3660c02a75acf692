package buffer

// Ring is a fixed-capacity buffer that overwrites its oldest entry once full.
type Ring[T any] struct {
	entries []T
	next    int
	filled  int
}

func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{
		entries: make([]T, capacity),
	}
}

func (r *Ring[T]) Add(entry T) {
	if r == nil || len(r.entries) == 0 {
		return
	}
	r.entries[r.next] = entry
	r.next = (r.next + 1) % len(r.entries)
	if r.filled < len(r.entries) {
		r.filled++
	}
}

func (r *Ring[T]) Len() int {
	if r == nil {
		return 0
	}
	return r.filled
}

func (r *Ring[T]) Cap() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// List returns the buffered entries oldest first.
func (r *Ring[T]) List() []T {
	if r == nil || r.filled == 0 {
		return nil
	}
	start := (r.next - r.filled + len(r.entries)) % len(r.entries)
	out := make([]T, r.filled)
	for i := 0; i < r.filled; i++ {
		out[i] = r.entries[(start+i)%len(r.entries)]
	}
	return out
}
