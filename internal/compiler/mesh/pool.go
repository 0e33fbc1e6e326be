package mesh

// Pool interns values and hands out dense ids in first-occurrence order.
// Items are kept in a slice indexed by id, so iteration never depends on
// map ordering. The zero value is ready to use.
type Pool[K comparable] struct {
	ids   map[K]int
	items []K
}

// Intern returns the id for k, assigning the next free id on first sight.
func (p *Pool[K]) Intern(k K) int {
	if id, ok := p.ids[k]; ok {
		return id
	}
	if p.ids == nil {
		p.ids = make(map[K]int)
	}
	id := len(p.items)
	p.ids[k] = id
	p.items = append(p.items, k)
	return id
}

// Len returns the number of distinct values interned.
func (p *Pool[K]) Len() int {
	return len(p.items)
}

// Items returns the interned values ordered by id.
func (p *Pool[K]) Items() []K {
	return p.items
}
