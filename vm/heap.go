package vm

import "time"

// ---------------------------------------------------------------------------
// Ref: generation-checked arena reference
// ---------------------------------------------------------------------------

// Ref names an arena slot: the low 32 bits are the slot index, the high 32
// bits the slot's generation when the object was allocated. A Ref to a
// swept slot no longer matches the slot's generation and resolves to nil.
type Ref uint64

func makeRef(index, gen uint32) Ref {
	return Ref(uint64(gen)<<32 | uint64(index))
}

func (r Ref) index() uint32 { return uint32(r) }
func (r Ref) gen() uint32   { return uint32(r >> 32) }

// ---------------------------------------------------------------------------
// Heap: object arena with a mark-sweep collector
// ---------------------------------------------------------------------------

type heapSlot struct {
	obj    *Object
	gen    uint32
	marked bool
}

// GCStats holds statistics from a single collection.
type GCStats struct {
	Marked   int
	Swept    int
	Live     int
	Duration time.Duration
}

// HeapStats summarises the arena.
type HeapStats struct {
	Live        int // objects currently allocated
	Capacity    int // arena slots, live or free
	Allocations uint64
	Collections uint64
	LastGC      GCStats
}

// heap is the per-VM object arena. It is not safe for concurrent use.
type heap struct {
	slots []heapSlot // slot 0 is never used so the zero Ref is invalid
	free  []uint32
	live  int

	sinceGC     int
	allocations uint64
	collections uint64
	last        GCStats
}

func newHeap() *heap {
	return &heap{slots: make([]heapSlot, 1, 256)}
}

// alloc places o in a free slot and returns its reference.
func (h *heap) alloc(o *Object) Ref {
	var idx uint32
	if n := len(h.free); n > 0 {
		idx = h.free[n-1]
		h.free = h.free[:n-1]
	} else {
		idx = uint32(len(h.slots))
		h.slots = append(h.slots, heapSlot{})
	}
	s := &h.slots[idx]
	s.gen++
	s.obj = o
	s.marked = false
	h.live++
	h.sinceGC++
	h.allocations++
	return makeRef(idx, s.gen)
}

// get resolves r, returning nil for invalid or stale references.
func (h *heap) get(r Ref) *Object {
	idx := r.index()
	if idx == 0 || int(idx) >= len(h.slots) {
		return nil
	}
	s := &h.slots[idx]
	if s.gen != r.gen() || s.obj == nil {
		return nil
	}
	return s.obj
}

// ---------------------------------------------------------------------------
// Collection
// ---------------------------------------------------------------------------

// marker accumulates reachable slots during a collection.
type marker struct {
	h    *heap
	work []uint32
	n    int
}

// value marks the object v refers to, if any.
func (m *marker) value(v Value) {
	if v.kind != KindObject {
		return
	}
	r := v.Ref()
	idx := r.index()
	if idx == 0 || int(idx) >= len(m.h.slots) {
		return
	}
	s := &m.h.slots[idx]
	if s.obj == nil || s.gen != r.gen() || s.marked {
		return
	}
	s.marked = true
	m.n++
	m.work = append(m.work, idx)
}

func (m *marker) values(vs []Value) {
	for _, v := range vs {
		m.value(v)
	}
}

// drain traces every object reachable from the marked set.
func (m *marker) drain() {
	for len(m.work) > 0 {
		idx := m.work[len(m.work)-1]
		m.work = m.work[:len(m.work)-1]
		o := m.h.slots[idx].obj
		m.values(o.slots)
		m.values(o.elems)
		m.values(o.scope)
		if o.dyn != nil {
			m.values(o.dyn.vals)
		}
		if o.fn != nil {
			m.value(o.fn.this)
		}
	}
}

// collect marks everything reachable from roots and frees the rest.
// Cycles among unreachable objects are freed like any other garbage.
func (h *heap) collect(roots func(m *marker)) GCStats {
	start := time.Now()
	m := &marker{h: h}
	roots(m)
	m.drain()

	swept := 0
	for i := 1; i < len(h.slots); i++ {
		s := &h.slots[i]
		if s.obj == nil {
			continue
		}
		if s.marked {
			s.marked = false
			continue
		}
		s.obj = nil
		h.free = append(h.free, uint32(i))
		swept++
	}
	h.live -= swept
	h.sinceGC = 0
	h.collections++
	h.last = GCStats{Marked: m.n, Swept: swept, Live: h.live, Duration: time.Since(start)}
	return h.last
}

func (h *heap) stats() HeapStats {
	return HeapStats{
		Live:        h.live,
		Capacity:    len(h.slots) - 1,
		Allocations: h.allocations,
		Collections: h.collections,
		LastGC:      h.last,
	}
}
