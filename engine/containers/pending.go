package containers

// PendingEntry is one queued write, keyed by its destination.
type PendingEntry[K comparable, V any] struct {
	Key   K
	Value V
}

// PendingWrites batches keyed writes until a single flush point. A second
// write to the same key replaces the queued value in place, so a flush
// applies at most one write per key, in first-queued order.
type PendingWrites[K comparable, V any] struct {
	order []K
	index map[K]int
	vals  []V
}

func NewPendingWrites[K comparable, V any]() *PendingWrites[K, V] {
	return &PendingWrites[K, V]{
		index: make(map[K]int),
	}
}

func (p *PendingWrites[K, V]) Set(key K, value V) {
	if i, ok := p.index[key]; ok {
		p.vals[i] = value
		return
	}
	p.index[key] = len(p.order)
	p.order = append(p.order, key)
	p.vals = append(p.vals, value)
}

// Get returns the queued value for key, if any.
func (p *PendingWrites[K, V]) Get(key K) (V, bool) {
	if i, ok := p.index[key]; ok {
		return p.vals[i], true
	}
	var zero V
	return zero, false
}

// Dirty reports whether anything is waiting to be flushed.
func (p *PendingWrites[K, V]) Dirty() bool {
	return len(p.order) > 0
}

func (p *PendingWrites[K, V]) Len() int {
	return len(p.order)
}

// Drain returns the queued writes in first-queued order and clears the batch.
func (p *PendingWrites[K, V]) Drain() []PendingEntry[K, V] {
	if len(p.order) == 0 {
		return nil
	}
	out := make([]PendingEntry[K, V], len(p.order))
	for i, k := range p.order {
		out[i] = PendingEntry[K, V]{Key: k, Value: p.vals[i]}
	}
	p.Reset()
	return out
}

// Reset drops every queued write without applying it.
func (p *PendingWrites[K, V]) Reset() {
	clear(p.index)
	clear(p.vals)
	p.order = p.order[:0]
	p.vals = p.vals[:0]
}
