package atl

import "errors"

// ErrPoolExhausted is returned when a non-growing pool has no free slot.
var ErrPoolExhausted = errors.New("atl: pool exhausted")

// handle packs a slot index (plus one, so zero stays invalid) and the slot's
// generation. A handle kept beyond its entity's destruction no longer
// resolves, because destruction bumps the generation.
type handle uint64

func makeHandle(index, gen uint32) handle {
	return handle(uint64(gen)<<32 | uint64(index+1))
}

func (h handle) index() (uint32, bool) {
	i := uint32(h)
	if i == 0 {
		return 0, false
	}
	return i - 1, true
}

func (h handle) gen() uint32 { return uint32(h >> 32) }

type slot[T any] struct {
	gen  uint32
	item *T
}

// pool is an index arena with generation-checked handles. Only the audio
// goroutine touches it.
type pool[T any] struct {
	slots []slot[T]
	free  []uint32
	cfg   PoolConfig
	live  int
}

func newPool[T any](cfg PoolConfig) *pool[T] {
	return &pool[T]{
		slots: make([]slot[T], 0, cfg.Capacity),
		cfg:   cfg,
	}
}

// insert stores item and returns its handle.
func (p *pool[T]) insert(item *T) (handle, error) {
	if n := len(p.free); n > 0 {
		i := p.free[n-1]
		p.free = p.free[:n-1]
		p.slots[i].item = item
		p.live++
		return makeHandle(i, p.slots[i].gen), nil
	}
	if !p.cfg.Grow && len(p.slots) >= p.cfg.Capacity {
		return 0, ErrPoolExhausted
	}
	p.slots = append(p.slots, slot[T]{item: item})
	p.live++
	return makeHandle(uint32(len(p.slots)-1), 0), nil
}

// get resolves h, failing for stale or foreign handles.
func (p *pool[T]) get(h handle) (*T, bool) {
	i, ok := h.index()
	if !ok || int(i) >= len(p.slots) {
		return nil, false
	}
	s := p.slots[i]
	if s.item == nil || s.gen != h.gen() {
		return nil, false
	}
	return s.item, true
}

// remove frees the slot of h and invalidates every copy of h.
func (p *pool[T]) remove(h handle) (*T, bool) {
	item, ok := p.get(h)
	if !ok {
		return nil, false
	}
	i, _ := h.index()
	p.slots[i].item = nil
	p.slots[i].gen++
	p.free = append(p.free, i)
	p.live--
	return item, true
}

// len returns the number of live items.
func (p *pool[T]) len() int { return p.live }

// each calls fn for every live item in slot order.
func (p *pool[T]) each(fn func(h handle, item *T)) {
	for i, s := range p.slots {
		if s.item != nil {
			fn(makeHandle(uint32(i), s.gen), s.item)
		}
	}
}
