package queue

const initQueueLen = 16

// Queue 环形缓冲队列, 满了自动扩容. 非goroutine safe
type Queue[T any] struct {
	buf     []T
	head    int
	tail    int
	count   int
	initLen int
}

func New[T any]() *Queue[T] {
	return NewWithSize[T](initQueueLen)
}

func NewWithSize[T any](size int) *Queue[T] {
	if size <= 0 {
		size = initQueueLen
	}
	return &Queue[T]{
		buf:     make([]T, size),
		initLen: size,
	}
}

func (q *Queue[T]) resize(size int) {
	newBuf := make([]T, size)
	if q.count > 0 {
		if q.tail > q.head {
			copy(newBuf, q.buf[q.head:q.tail])
		} else {
			n := copy(newBuf, q.buf[q.head:])
			copy(newBuf[n:], q.buf[:q.tail])
		}
	}
	q.head = 0
	q.tail = q.count % size
	q.buf = newBuf
}

func (q *Queue[T]) Push(ele T) {
	if q.count == len(q.buf) {
		q.resize(q.count << 1)
	}
	q.buf[q.tail] = ele
	q.tail = (q.tail + 1) % len(q.buf)
	q.count++
}

// Pop 队列为空时返回零值和false
func (q *Queue[T]) Pop() (T, bool) {
	var zero T
	if q.count <= 0 {
		return zero, false
	}
	ret := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	if len(q.buf) > q.initLen && (q.count<<2) == len(q.buf) {
		q.resize(len(q.buf) >> 1)
	}
	return ret, true
}

// Peek return the ele at the head of the queue
func (q *Queue[T]) Peek() (T, bool) {
	var zero T
	if q.count <= 0 {
		return zero, false
	}
	return q.buf[q.head], true
}

func (q *Queue[T]) Length() int {
	return q.count
}
