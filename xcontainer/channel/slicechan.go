package channel

import (
	"sync"

	"github.com/qixi7/xjustnet/xcontainer/queue"
)

// SliceChan 无界的多生产者channel. Write永不阻塞, Read在空时阻塞直到有数据或关闭
type SliceChan[T any] struct {
	queue    *queue.Queue[T]
	mu       sync.Mutex
	nonEmpty *sync.Cond
	closed   bool
}

func NewSliceChan[T any](bufLen int) *SliceChan[T] {
	s := &SliceChan[T]{queue: queue.NewWithSize[T](bufLen)}
	s.nonEmpty = sync.NewCond(&s.mu)
	return s
}

// Write 关闭后写入直接丢弃, 返回false
func (s *SliceChan[T]) Write(ele T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.queue.Push(ele)
	s.nonEmpty.Signal()
	return true
}

func (s *SliceChan[T]) TryRead() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		var zero T
		return zero, false
	}
	return s.queue.Pop()
}

func (s *SliceChan[T]) Read() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.queue.Length() < 1 && !s.closed {
		s.nonEmpty.Wait()
	}
	if s.closed {
		var zero T
		return zero, false
	}
	return s.queue.Pop()
}

func (s *SliceChan[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Length()
}

func (s *SliceChan[T]) Close() {
	s.mu.Lock()
	s.closed = true
	s.nonEmpty.Broadcast()
	s.mu.Unlock()
}
