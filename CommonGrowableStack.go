package broadphase

/// GrowableStack is the traversal stack used by tree queries. It keeps its
/// backing slice between queries so a hot query loop does not allocate.
type GrowableStack[T any] struct {
	items []T
}

func NewGrowableStack[T any](capacity int) *GrowableStack[T] {
	return &GrowableStack[T]{items: make([]T, 0, capacity)}
}

// Return the stack's length
func (s GrowableStack[T]) GetCount() int {
	return len(s.items)
}

func (s *GrowableStack[T]) Push(value T) {
	s.items = append(s.items, value)
}

// Remove the top element from the stack and return it.
// ok is false when the stack is empty.
func (s *GrowableStack[T]) Pop() (value T, ok bool) {
	n := len(s.items)
	if n == 0 {
		return value, false
	}
	value = s.items[n-1]
	s.items = s.items[:n-1]
	return value, true
}

func (s *GrowableStack[T]) Reset() {
	s.items = s.items[:0]
}
