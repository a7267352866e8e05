// Package idpool hands out connection identifiers in ascending order and
// takes them back for reuse. Identifier 0 belongs to the server and is never
// pooled.
package idpool

import (
	"container/heap"

	"github.com/pkg/errors"
)

var ErrPoolExhausted = errors.New("idpool: no free identifier")

// 小顶堆, 保证每次拿到最小的空闲id
type minHeap []uint32

func (h minHeap) Len() int           { return len(h) }
func (h minHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *minHeap) Push(x interface{}) {
	*h = append(*h, x.(uint32))
}

func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// Pool is not goroutine safe; callers serialize access.
type Pool struct {
	max  uint32
	free minHeap
	set  map[uint32]struct{} // 去重
}

// New returns a pool populated with 1..max.
func New(max uint32) *Pool {
	p := &Pool{max: max}
	p.Reset()
	return p
}

// Reset 重新填满 1..max
func (p *Pool) Reset() {
	p.free = make(minHeap, 0, p.max)
	p.set = make(map[uint32]struct{}, p.max)
	for id := uint32(1); id <= p.max && id != 0; id++ {
		p.free = append(p.free, id)
		p.set[id] = struct{}{}
	}
	heap.Init(&p.free)
}

// Acquire removes and returns the smallest free identifier.
func (p *Pool) Acquire() (uint32, error) {
	if len(p.free) == 0 {
		return 0, ErrPoolExhausted
	}
	id := heap.Pop(&p.free).(uint32)
	delete(p.set, id)
	return id, nil
}

// Release puts id back. Duplicates and ids outside [1, max] are ignored.
func (p *Pool) Release(id uint32) {
	if id == 0 || id > p.max {
		return
	}
	if _, ok := p.set[id]; ok {
		return
	}
	p.set[id] = struct{}{}
	heap.Push(&p.free, id)
}

func (p *Pool) Contains(id uint32) bool {
	_, ok := p.set[id]
	return ok
}

// Size 空闲id数量
func (p *Pool) Size() int {
	return len(p.free)
}

func (p *Pool) Max() uint32 {
	return p.max
}
