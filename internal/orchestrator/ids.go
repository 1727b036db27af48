package orchestrator

// idAllocator hands out controller ids. Released ids are reused most recent
// first; without a released id the next unused integer is taken.
type idAllocator struct {
	next     int
	released []int
}

func (a *idAllocator) allocate() int {
	if n := len(a.released); n > 0 {
		id := a.released[n-1]
		a.released = a.released[:n-1]
		return id
	}
	id := a.next
	a.next++
	return id
}

func (a *idAllocator) release(id int) {
	a.released = append(a.released, id)
}
