package camera

// frameQueue is a bounded FIFO of captured frames. When full, enqueue
// overwrites the oldest frame and hands it back so the caller can release it.
// It has no lock of its own; the device lock guards it.
type frameQueue struct {
	frames []*Frame
	size   int
	head   int // oldest entry
	count  int
}

func newFrameQueue(capacity int) *frameQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &frameQueue{
		frames: make([]*Frame, capacity),
		size:   capacity,
	}
}

// enqueue appends f and returns the frame it displaced, if any.
func (q *frameQueue) enqueue(f *Frame) *Frame {
	if q.count < q.size {
		q.frames[(q.head+q.count)%q.size] = f
		q.count++
		return nil
	}

	dropped := q.frames[q.head]
	q.frames[q.head] = f
	q.head = (q.head + 1) % q.size
	return dropped
}

// dequeue removes the oldest frame. ok is false when the queue is empty.
func (q *frameQueue) dequeue() (f *Frame, ok bool) {
	if q.count == 0 {
		return nil, false
	}
	f = q.frames[q.head]
	q.frames[q.head] = nil
	q.head = (q.head + 1) % q.size
	q.count--
	return f, true
}

// drain empties the queue and returns its frames oldest first.
func (q *frameQueue) drain() []*Frame {
	if q.count == 0 {
		return nil
	}
	out := make([]*Frame, 0, q.count)
	for {
		f, ok := q.dequeue()
		if !ok {
			break
		}
		out = append(out, f)
	}
	q.head = 0
	return out
}

func (q *frameQueue) len() int { return q.count }

func (q *frameQueue) capacity() int { return q.size }
