package livecache

// Filter returns the entities matching pred, in collection order.
func (c *Collection[T]) Filter(pred func(T) bool) []T {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]T, 0, len(c.items))
	for _, it := range c.items {
		if pred(it) {
			out = append(out, it)
		}
	}
	return out
}

func (c *Collection[T]) Count(pred func(T) bool) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, it := range c.items {
		if pred(it) {
			n++
		}
	}
	return n
}

// GroupBy buckets the current list by key, keeping collection order inside
// each bucket.
func GroupBy[T any, K comparable](c *Collection[T], key func(T) K) map[K][]T {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[K][]T)
	for _, it := range c.items {
		k := key(it)
		out[k] = append(out[k], it)
	}
	return out
}
