package monitor

// DedupWindow is a bounded set of recently-seen identity keys. It is owned by
// the classifier's single consumer; membership test and insert are one call.
type DedupWindow struct {
	capacity int
	order    []string
	next     int
	seen     map[string]struct{}
}

// NewDedupWindow creates a window holding up to capacity keys, evicting the
// oldest once full. Capacity should cover the maximum expected resubscription
// overlap.
func NewDedupWindow(capacity int) *DedupWindow {
	if capacity < 1 {
		capacity = 1
	}
	return &DedupWindow{
		capacity: capacity,
		order:    make([]string, capacity),
		seen:     make(map[string]struct{}, capacity),
	}
}

// Seen reports whether key is resident and inserts it if not.
func (w *DedupWindow) Seen(key string) bool {
	if _, ok := w.seen[key]; ok {
		return true
	}

	if evicted := w.order[w.next]; evicted != "" {
		delete(w.seen, evicted)
	}
	w.order[w.next] = key
	w.next = (w.next + 1) % w.capacity
	w.seen[key] = struct{}{}
	return false
}

// Len returns the number of resident keys.
func (w *DedupWindow) Len() int {
	return len(w.seen)
}
